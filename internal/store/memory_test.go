package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitkit/splitkit/internal/store"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	exp := newExperiment("exp-1", "Original", baseTime)
	require.NoError(t, s.CreateExperiment(ctx, exp))

	// Mutating what the store handed back must not leak into stored state.
	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	got.Name = "Mutated"
	got.Variants[0].Weight = 99

	fresh, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Original", fresh.Name)
	assert.Equal(t, float64(50), fresh.Variants[0].Weight)

	// Same for the caller's input struct.
	exp.Name = "Changed after create"
	fresh, err = s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "Original", fresh.Name)
}
