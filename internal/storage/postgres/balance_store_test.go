package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-forge/internal/domain"
	"token-forge/internal/storage"
)

const (
	testAlice = domain.Address("AliceAddr111")
	testBob   = domain.Address("BobAddr222")
)

func TestBalanceStore_AddGetSub(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceStore(pool)

	require.NoError(t, store.Add(ctx, 0, testAlice, 50))

	qty, err := store.Get(ctx, 0, testAlice)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), qty)

	// Accumulates on conflict
	require.NoError(t, store.Add(ctx, 0, testAlice, 10))
	qty, _ = store.Get(ctx, 0, testAlice)
	assert.Equal(t, uint64(60), qty)

	require.NoError(t, store.Sub(ctx, 0, testAlice, 25))
	qty, _ = store.Get(ctx, 0, testAlice)
	assert.Equal(t, uint64(35), qty)
}

func TestBalanceStore_AbsentReadsZero(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceStore(pool)

	qty, err := store.Get(ctx, 7, testBob)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), qty)
}

func TestBalanceStore_SubInsufficient(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceStore(pool)

	require.NoError(t, store.Add(ctx, 0, testAlice, 1))

	err := store.Sub(ctx, 0, testAlice, 2)
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)

	err = store.Sub(ctx, 0, testBob, 1)
	assert.ErrorIs(t, err, storage.ErrInsufficientBalance)
}

func TestBalanceStore_SubRemovesDrainedEntry(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceStore(pool)

	require.NoError(t, store.Add(ctx, 0, testAlice, 1))
	require.NoError(t, store.Sub(ctx, 0, testAlice, 1))

	entries, err := store.ListByHolder(ctx, testAlice)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBalanceStore_TotalSupply(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceStore(pool)

	require.NoError(t, store.Add(ctx, 0, testAlice, 47))
	require.NoError(t, store.Add(ctx, 0, testBob, 3))
	require.NoError(t, store.Add(ctx, 1, testAlice, 9))

	total, err := store.TotalSupply(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), total)

	total, err = store.TotalSupply(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), total)
}

func TestBalanceStore_ListByHolder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceStore(pool)

	require.NoError(t, store.Add(ctx, 2, testAlice, 1))
	require.NoError(t, store.Add(ctx, 0, testAlice, 5))
	require.NoError(t, store.Add(ctx, 1, testBob, 7))

	entries, err := store.ListByHolder(ctx, testAlice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(0), entries[0].TokenID)
	assert.Equal(t, uint64(2), entries[1].TokenID)
}
