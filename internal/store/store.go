package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store defines the storage operations the engine needs. Implementations
// must make PutAssignment an atomic check-and-insert so the one-assignment-
// per-user invariant holds under concurrent requests.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperiment(ctx context.Context, exp *Experiment) error
	// DeleteExperiment cascades: assignments and events go with it.
	DeleteExperiment(ctx context.Context, id string) error

	// Assignment operations
	GetAssignment(ctx context.Context, experimentID, userID string) (*Assignment, error)
	// PutAssignment inserts a unless an assignment already exists for the
	// pair, in which case the existing one is returned with created=false.
	PutAssignment(ctx context.Context, a *Assignment) (*Assignment, bool, error)
	ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error)

	// Event operations
	RecordEvent(ctx context.Context, ev *TrackingEvent) error
	ListEvents(ctx context.Context, experimentID string) ([]*TrackingEvent, error)

	// GetVariantCounts returns participants and distinct converted users
	// per variant, used to enrich experiment listings.
	GetVariantCounts(ctx context.Context, experimentID string) ([]VariantCount, error)

	// Lifecycle
	Close() error
}
