package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUnconfiguredStore(t *testing.T) {
	var store *Store
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnsureSchema: expected ErrNotConfigured, got %v", err)
	}
	if _, err := store.InsertAlert(ctx, AlertRecord{Symbol: "BTC_USDT"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertAlert: expected ErrNotConfigured, got %v", err)
	}
	if _, err := store.ListRecentAlerts(ctx, 10); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentAlerts: expected ErrNotConfigured, got %v", err)
	}
	if _, err := store.DeleteAlertsBefore(ctx, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("DeleteAlertsBefore: expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := store.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("TryAdvisoryLock: expected ErrNotConfigured, got %v", err)
	}

	// Close on a nil store is a no-op.
	store.Close()
}

func TestStoreWithoutPool(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.CountAlerts(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CountAlerts: expected ErrNotConfigured, got %v", err)
	}
}
