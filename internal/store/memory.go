package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use and is
// primarily intended for tests and ephemeral local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	order       []string
	assignments map[string]map[string]*Assignment // experimentID -> userID
	events      map[string][]*TrackingEvent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		assignments: make(map[string]map[string]*Assignment),
		events:      make(map[string][]*TrackingEvent),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[exp.ID] = cloneExperiment(exp)
	s.order = append(s.order, exp.ID)
	return nil
}

func (s *MemoryStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExperiment(exp), nil
}

func (s *MemoryStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Newest first, matching the SQL store ordering.
	experiments := make([]*Experiment, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if exp, ok := s.experiments[s.order[i]]; ok {
			experiments = append(experiments, cloneExperiment(exp))
		}
	}
	return experiments, nil
}

func (s *MemoryStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[exp.ID]; !ok {
		return ErrNotFound
	}
	s.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (s *MemoryStore) DeleteExperiment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[id]; !ok {
		return ErrNotFound
	}
	delete(s.experiments, id)
	delete(s.assignments, id)
	delete(s.events, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, experimentID, userID string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[experimentID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) PutAssignment(ctx context.Context, a *Assignment) (*Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.assignments[a.ExperimentID]
	if !ok {
		byUser = make(map[string]*Assignment)
		s.assignments[a.ExperimentID] = byUser
	}
	if existing, ok := byUser[a.UserID]; ok {
		out := *existing
		return &out, false, nil
	}
	stored := *a
	byUser[a.UserID] = &stored
	out := stored
	return &out, true, nil
}

func (s *MemoryStore) ListAssignments(ctx context.Context, experimentID string) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.assignments[experimentID]
	assignments := make([]*Assignment, 0, len(byUser))
	for _, a := range byUser {
		out := *a
		assignments = append(assignments, &out)
	}
	// Map iteration is unordered; sort by assignment time for stable output.
	for i := 1; i < len(assignments); i++ {
		for j := i; j > 0 && assignments[j].AssignedAt.Before(assignments[j-1].AssignedAt); j-- {
			assignments[j], assignments[j-1] = assignments[j-1], assignments[j]
		}
	}
	return assignments, nil
}

func (s *MemoryStore) RecordEvent(ctx context.Context, ev *TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *ev
	s.events[ev.ExperimentID] = append(s.events[ev.ExperimentID], &stored)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, experimentID string) ([]*TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]*TrackingEvent, 0, len(s.events[experimentID]))
	for _, ev := range s.events[experimentID] {
		out := *ev
		events = append(events, &out)
	}
	return events, nil
}

func (s *MemoryStore) GetVariantCounts(ctx context.Context, experimentID string) ([]VariantCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	converted := make(map[string]bool)
	for _, ev := range s.events[experimentID] {
		if ev.EventType == EventTypeConversion {
			converted[ev.UserID] = true
		}
	}

	byVariant := make(map[string]*VariantCount)
	var order []string
	for _, a := range s.assignments[experimentID] {
		c, ok := byVariant[a.Variant.ID]
		if !ok {
			c = &VariantCount{VariantID: a.Variant.ID}
			byVariant[a.Variant.ID] = c
			order = append(order, a.Variant.ID)
		}
		c.Participants++
		if converted[a.UserID] {
			c.Conversions++
		}
	}

	counts := make([]VariantCount, 0, len(order))
	for _, id := range order {
		counts = append(counts, *byVariant[id])
	}
	return counts, nil
}

func cloneExperiment(exp *Experiment) *Experiment {
	out := *exp
	out.Variants = make([]Variant, len(exp.Variants))
	copy(out.Variants, exp.Variants)
	if exp.SegmentationRules != nil {
		out.SegmentationRules = make([]SegmentationRule, len(exp.SegmentationRules))
		copy(out.SegmentationRules, exp.SegmentationRules)
	}
	if exp.StartDate != nil {
		t := *exp.StartDate
		out.StartDate = &t
	}
	if exp.EndDate != nil {
		t := *exp.EndDate
		out.EndDate = &t
	}
	return &out
}
