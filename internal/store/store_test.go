package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitkit/splitkit/internal/store"
)

var baseTime = time.Unix(1756000000, 0)

func newExperiment(id, name string, created time.Time) *store.Experiment {
	return &store.Experiment{
		ID:     id,
		Name:   name,
		Status: store.StatusDraft,
		Variants: []store.Variant{
			{ID: id + "-control", Name: "Control", Weight: 50},
			{ID: id + "-treatment", Name: "Treatment", Weight: 50, Config: map[string]any{"color": "green"}},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("ExperimentRoundTrip", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Pricing page", baseTime)
		exp.Description = "Green button test"
		exp.SegmentationRules = []store.SegmentationRule{
			{Field: "country", Operator: "equals", Value: "US"},
			{Field: "age", Operator: "greater_than", Value: float64(18)},
		}
		require.NoError(t, s.CreateExperiment(ctx, exp))

		got, err := s.GetExperiment(ctx, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, "Pricing page", got.Name)
		assert.Equal(t, "Green button test", got.Description)
		assert.Equal(t, store.StatusDraft, got.Status)
		assert.Equal(t, exp.Variants, got.Variants)
		assert.Equal(t, exp.SegmentationRules, got.SegmentationRules)
		assert.Nil(t, got.StartDate)
		assert.Equal(t, baseTime.Unix(), got.CreatedAt.Unix())
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.GetExperiment(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("UpdateExperiment", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Before", baseTime)
		require.NoError(t, s.CreateExperiment(ctx, exp))

		start := baseTime.Add(time.Hour)
		exp.Name = "After"
		exp.Status = store.StatusRunning
		exp.StartDate = &start
		exp.UpdatedAt = start
		require.NoError(t, s.UpdateExperiment(ctx, exp))

		got, err := s.GetExperiment(ctx, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, "After", got.Name)
		assert.Equal(t, store.StatusRunning, got.Status)
		require.NotNil(t, got.StartDate)
		assert.Equal(t, start.Unix(), got.StartDate.Unix())
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("ghost", "Ghost", baseTime)
		assert.ErrorIs(t, s.UpdateExperiment(ctx, exp), store.ErrNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 3; i++ {
			exp := newExperiment(fmt.Sprintf("exp-%d", i), fmt.Sprintf("Experiment %d", i), baseTime.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.CreateExperiment(ctx, exp))
		}

		experiments, err := s.ListExperiments(ctx)
		require.NoError(t, err)
		require.Len(t, experiments, 3)
		assert.Equal(t, "exp-2", experiments[0].ID)
		assert.Equal(t, "exp-0", experiments[2].ID)
	})

	t.Run("AssignmentGetOrCreate", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Test", baseTime)
		require.NoError(t, s.CreateExperiment(ctx, exp))

		first := &store.Assignment{
			ExperimentID: "exp-1",
			UserID:       "user-1",
			Variant:      exp.Variants[0],
			AssignedAt:   baseTime,
		}
		stored, created, err := s.PutAssignment(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, exp.Variants[0].ID, stored.Variant.ID)

		// A second put for the same pair returns the original row even if
		// the caller computed a different variant.
		second := &store.Assignment{
			ExperimentID: "exp-1",
			UserID:       "user-1",
			Variant:      exp.Variants[1],
			AssignedAt:   baseTime.Add(time.Hour),
		}
		stored, created, err = s.PutAssignment(ctx, second)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, exp.Variants[0].ID, stored.Variant.ID)
		assert.Equal(t, baseTime.Unix(), stored.AssignedAt.Unix())

		got, err := s.GetAssignment(ctx, "exp-1", "user-1")
		require.NoError(t, err)
		assert.Equal(t, exp.Variants[0].ID, got.Variant.ID)
	})

	t.Run("GetAssignmentNotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.GetAssignment(ctx, "exp-1", "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ListAssignments", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Test", baseTime)
		require.NoError(t, s.CreateExperiment(ctx, exp))

		for i := 0; i < 3; i++ {
			a := &store.Assignment{
				ExperimentID: "exp-1",
				UserID:       fmt.Sprintf("user-%d", i),
				Variant:      exp.Variants[i%2],
				AssignedAt:   baseTime.Add(time.Duration(i) * time.Minute),
			}
			_, _, err := s.PutAssignment(ctx, a)
			require.NoError(t, err)
		}

		assignments, err := s.ListAssignments(ctx, "exp-1")
		require.NoError(t, err)
		require.Len(t, assignments, 3)
		assert.Equal(t, "user-0", assignments[0].UserID)
		assert.Equal(t, "user-2", assignments[2].UserID)
	})

	t.Run("EventRoundTrip", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Test", baseTime)
		require.NoError(t, s.CreateExperiment(ctx, exp))

		ev := &store.TrackingEvent{
			ExperimentID: "exp-1",
			UserID:       "user-1",
			EventType:    store.EventTypeConversion,
			Value:        2.5,
			Metadata:     map[string]any{"source": "checkout"},
			Timestamp:    baseTime,
		}
		require.NoError(t, s.RecordEvent(ctx, ev))

		events, err := s.ListEvents(ctx, "exp-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, store.EventTypeConversion, events[0].EventType)
		assert.Equal(t, 2.5, events[0].Value)
		assert.Equal(t, map[string]any{"source": "checkout"}, events[0].Metadata)
		assert.Equal(t, baseTime.Unix(), events[0].Timestamp.Unix())
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Test", baseTime)
		require.NoError(t, s.CreateExperiment(ctx, exp))

		_, _, err := s.PutAssignment(ctx, &store.Assignment{
			ExperimentID: "exp-1", UserID: "user-1", Variant: exp.Variants[0], AssignedAt: baseTime,
		})
		require.NoError(t, err)
		require.NoError(t, s.RecordEvent(ctx, &store.TrackingEvent{
			ExperimentID: "exp-1", UserID: "user-1", EventType: store.EventTypeConversion, Value: 1, Timestamp: baseTime,
		}))

		require.NoError(t, s.DeleteExperiment(ctx, "exp-1"))

		_, err = s.GetExperiment(ctx, "exp-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assignments, err := s.ListAssignments(ctx, "exp-1")
		require.NoError(t, err)
		assert.Empty(t, assignments)
		events, err := s.ListEvents(ctx, "exp-1")
		require.NoError(t, err)
		assert.Empty(t, events)

		assert.ErrorIs(t, s.DeleteExperiment(ctx, "exp-1"), store.ErrNotFound)
	})

	t.Run("VariantCounts", func(t *testing.T) {
		s := open(t)
		exp := newExperiment("exp-1", "Test", baseTime)
		require.NoError(t, s.CreateExperiment(ctx, exp))

		// Two users in control, one in treatment.
		for _, pair := range []struct {
			user    string
			variant store.Variant
		}{
			{"user-1", exp.Variants[0]},
			{"user-2", exp.Variants[0]},
			{"user-3", exp.Variants[1]},
		} {
			_, _, err := s.PutAssignment(ctx, &store.Assignment{
				ExperimentID: "exp-1", UserID: pair.user, Variant: pair.variant, AssignedAt: baseTime,
			})
			require.NoError(t, err)
		}

		// user-1 converts twice (counts once), user-3 converts once.
		for _, user := range []string{"user-1", "user-1", "user-3"} {
			require.NoError(t, s.RecordEvent(ctx, &store.TrackingEvent{
				ExperimentID: "exp-1", UserID: user, EventType: store.EventTypeConversion, Value: 1, Timestamp: baseTime,
			}))
		}

		counts, err := s.GetVariantCounts(ctx, "exp-1")
		require.NoError(t, err)
		byVariant := make(map[string]store.VariantCount, len(counts))
		for _, c := range counts {
			byVariant[c.VariantID] = c
		}
		require.Len(t, byVariant, 2)
		assert.Equal(t, 2, byVariant["exp-1-control"].Participants)
		assert.Equal(t, 1, byVariant["exp-1-control"].Conversions)
		assert.Equal(t, 1, byVariant["exp-1-treatment"].Participants)
		assert.Equal(t, 1, byVariant["exp-1-treatment"].Conversions)
	})
}
