package memory

import (
	"context"
	"errors"
	"testing"

	"token-forge/internal/storage"

	"token-forge/internal/domain"
)

const (
	alice = domain.Address("AliceAddr111")
	bob   = domain.Address("BobAddr222")
)

func TestBalanceStore_AddAndGet(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	if err := store.Add(ctx, 0, alice, 50); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	qty, err := store.Get(ctx, 0, alice)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if qty != 50 {
		t.Errorf("Get = %d, want 50", qty)
	}

	// Absent entries read as zero, not an error
	qty, err = store.Get(ctx, 0, bob)
	if err != nil {
		t.Fatalf("Get for absent entry failed: %v", err)
	}
	if qty != 0 {
		t.Errorf("Get for absent entry = %d, want 0", qty)
	}
}

func TestBalanceStore_AddAccumulates(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	_ = store.Add(ctx, 1, alice, 10)
	_ = store.Add(ctx, 1, alice, 15)

	qty, _ := store.Get(ctx, 1, alice)
	if qty != 25 {
		t.Errorf("Get = %d, want 25", qty)
	}
}

func TestBalanceStore_Sub(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	_ = store.Add(ctx, 0, alice, 3)

	if err := store.Sub(ctx, 0, alice, 2); err != nil {
		t.Fatalf("Sub failed: %v", err)
	}

	qty, _ := store.Get(ctx, 0, alice)
	if qty != 1 {
		t.Errorf("Get after Sub = %d, want 1", qty)
	}
}

func TestBalanceStore_SubInsufficient(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	_ = store.Add(ctx, 0, alice, 1)

	err := store.Sub(ctx, 0, alice, 2)
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	err = store.Sub(ctx, 0, bob, 1)
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance for absent entry, got %v", err)
	}
}

func TestBalanceStore_SubRemovesZeroEntry(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	_ = store.Add(ctx, 0, alice, 1)
	if err := store.Sub(ctx, 0, alice, 1); err != nil {
		t.Fatalf("Sub failed: %v", err)
	}

	entries, err := store.ListByHolder(ctx, alice)
	if err != nil {
		t.Fatalf("ListByHolder failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected zero entries after draining balance, got %d", len(entries))
	}
}

func TestBalanceStore_TotalSupply(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	_ = store.Add(ctx, 0, alice, 47)
	_ = store.Add(ctx, 0, bob, 3)
	_ = store.Add(ctx, 1, alice, 10)

	total, err := store.TotalSupply(ctx, 0)
	if err != nil {
		t.Fatalf("TotalSupply failed: %v", err)
	}
	if total != 50 {
		t.Errorf("TotalSupply(0) = %d, want 50", total)
	}

	total, _ = store.TotalSupply(ctx, 2)
	if total != 0 {
		t.Errorf("TotalSupply(2) = %d, want 0", total)
	}
}

func TestBalanceStore_ListByHolder_Ordered(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	_ = store.Add(ctx, 2, alice, 1)
	_ = store.Add(ctx, 0, alice, 5)
	_ = store.Add(ctx, 1, bob, 7)

	entries, err := store.ListByHolder(ctx, alice)
	if err != nil {
		t.Fatalf("ListByHolder failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].TokenID != 0 || entries[1].TokenID != 2 {
		t.Errorf("Entries not ordered by token id: %d, %d", entries[0].TokenID, entries[1].TokenID)
	}
}

func TestBalanceStore_InvalidInput(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()

	if err := store.Add(ctx, 0, domain.ZeroAddress, 1); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero address, got %v", err)
	}
	if err := store.Add(ctx, 0, alice, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero quantity, got %v", err)
	}
	if err := store.Sub(ctx, 0, alice, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero quantity, got %v", err)
	}
}
