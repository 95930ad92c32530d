package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/splitkit/splitkit/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// findExperiment resolves a CLI argument to an experiment by full id, id
// prefix, or exact name.
func findExperiment(ctx context.Context, s store.Store, key string) (*store.Experiment, error) {
	exp, err := s.GetExperiment(ctx, key)
	if err == nil {
		return exp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	experiments, err := s.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}

	var match *store.Experiment
	for _, e := range experiments {
		if e.Name == key || strings.HasPrefix(e.ID, key) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous experiment %q: matches %s and %s", key, match.ID, e.ID)
			}
			match = e
		}
	}
	if match == nil {
		return nil, fmt.Errorf("experiment '%s' not found", key)
	}
	return match, nil
}
