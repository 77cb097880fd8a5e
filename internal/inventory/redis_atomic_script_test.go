package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newScriptStore(t *testing.T) *AtomicHoldStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewAtomicHoldStore(client)
}

func seedCounters(t *testing.T, store *AtomicHoldStore, categories map[string]int) {
	t.Helper()
	for categoryID, total := range categories {
		if err := store.InitCounter(context.Background(), "ev-1", categoryID, total, 0); err != nil {
			t.Fatalf("InitCounter(%s) error = %v", categoryID, err)
		}
	}
}

func snapshotOf(t *testing.T, store *AtomicHoldStore, categoryID string) *CounterSnapshot {
	t.Helper()
	snap, err := store.GetCounterSnapshot(context.Background(), "ev-1", categoryID)
	if err != nil {
		t.Fatalf("GetCounterSnapshot(%s) error = %v", categoryID, err)
	}
	if snap == nil {
		t.Fatalf("no counters seeded for %s", categoryID)
	}
	return snap
}

func TestAcquireHoldLeavesCountersUntouchedOnShortage(t *testing.T) {
	store := newScriptStore(t)
	seedCounters(t, store, map[string]int{"cat-1": 1, "cat-2": 5})

	entries := []HoldEntry{
		{EventID: "ev-1", CategoryID: "cat-2", Quantity: 1},
		{EventID: "ev-1", CategoryID: "cat-1", Quantity: 2},
	}
	result, err := store.AcquireHold(context.Background(), "tok-short", entries, time.Minute, nil, "")
	if err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}
	if result.Success {
		t.Fatalf("AcquireHold() success = true, want refusal")
	}
	if result.Error != ErrCodeInsufficientStock {
		t.Errorf("error code = %q, want %q", result.Error, ErrCodeInsufficientStock)
	}
	if result.CategoryID != "cat-1" || result.Available != 1 {
		t.Errorf("shortage reported for %q with %d available, want cat-1 with 1", result.CategoryID, result.Available)
	}

	// cat-2 passed its check before cat-1 failed, its counters must not move
	for _, categoryID := range []string{"cat-1", "cat-2"} {
		snap := snapshotOf(t, store, categoryID)
		if snap.Pending != 0 || snap.Available != snap.Total {
			t.Errorf("%s counters = %+v, want untouched", categoryID, snap)
		}
	}
}

func TestAcquireHoldNeverOversells(t *testing.T) {
	store := newScriptStore(t)
	seedCounters(t, store, map[string]int{"cat-1": 3})
	entries := []HoldEntry{{EventID: "ev-1", CategoryID: "cat-1", Quantity: 2}}

	first, err := store.AcquireHold(context.Background(), "tok-1", entries, time.Minute, nil, "")
	if err != nil {
		t.Fatalf("AcquireHold(tok-1) error = %v", err)
	}
	if !first.Success {
		t.Fatalf("AcquireHold(tok-1) refused: %s", first.Error)
	}

	second, err := store.AcquireHold(context.Background(), "tok-2", entries, time.Minute, nil, "")
	if err != nil {
		t.Fatalf("AcquireHold(tok-2) error = %v", err)
	}
	if second.Success {
		t.Fatalf("AcquireHold(tok-2) succeeded with only 1 seat left")
	}
	if second.Error != ErrCodeInsufficientStock || second.Available != 1 {
		t.Errorf("refusal = %q with %d available, want %q with 1", second.Error, second.Available, ErrCodeInsufficientStock)
	}

	snap := snapshotOf(t, store, "cat-1")
	if snap.Available != 1 || snap.Pending != 2 || snap.Sold != 0 {
		t.Errorf("counters = %+v, want available=1 pending=2 sold=0", snap)
	}
	if snap.Available+snap.Pending+snap.Sold != snap.Total {
		t.Errorf("counters %+v no longer sum to total", snap)
	}
}

func TestAcquireHoldRejectsDuplicateToken(t *testing.T) {
	store := newScriptStore(t)
	seedCounters(t, store, map[string]int{"cat-1": 10})
	entries := []HoldEntry{{EventID: "ev-1", CategoryID: "cat-1", Quantity: 1}}

	if _, err := store.AcquireHold(context.Background(), "tok-dup", entries, time.Minute, nil, ""); err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}
	again, err := store.AcquireHold(context.Background(), "tok-dup", entries, time.Minute, nil, "")
	if err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}
	if again.Success || again.Error != ErrCodeHoldAlreadyExists {
		t.Fatalf("second acquire = %+v, want %s refusal", again, ErrCodeHoldAlreadyExists)
	}

	snap := snapshotOf(t, store, "cat-1")
	if snap.Pending != 1 {
		t.Errorf("pending = %d after duplicate token, want 1", snap.Pending)
	}
}

func TestFinalizeHoldMovesPendingToSoldOnce(t *testing.T) {
	store := newScriptStore(t)
	seedCounters(t, store, map[string]int{"cat-1": 5})
	entries := []HoldEntry{{EventID: "ev-1", CategoryID: "cat-1", Quantity: 3}}

	if _, err := store.AcquireHold(context.Background(), "tok-fin", entries, time.Minute, nil, ""); err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}
	claim, err := store.ClaimHold(context.Background(), "tok-fin", "ord-1", 2*time.Minute)
	if err != nil {
		t.Fatalf("ClaimHold() error = %v", err)
	}
	if !claim.Success {
		t.Fatalf("ClaimHold() refused: %s", claim.Error)
	}

	finalized, err := store.FinalizeHold(context.Background(), "tok-fin", "ord-1", "pay-1", time.Hour)
	if err != nil {
		t.Fatalf("FinalizeHold() error = %v", err)
	}
	if !finalized {
		t.Fatalf("FinalizeHold() = false, want true")
	}

	snap := snapshotOf(t, store, "cat-1")
	if snap.Sold != 3 || snap.Pending != 0 || snap.Available != 2 {
		t.Errorf("counters after finalize = %+v, want sold=3 pending=0 available=2", snap)
	}

	// A redelivered finalization reports success without moving counters again
	replayed, err := store.FinalizeHold(context.Background(), "tok-fin", "ord-1", "pay-1", time.Hour)
	if err != nil {
		t.Fatalf("FinalizeHold() replay error = %v", err)
	}
	if !replayed {
		t.Fatalf("FinalizeHold() replay = false, want true")
	}
	snap = snapshotOf(t, store, "cat-1")
	if snap.Sold != 3 || snap.Pending != 0 || snap.Available != 2 {
		t.Errorf("counters after replay = %+v, want unchanged", snap)
	}

	expired, err := store.ListExpired(context.Background(), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("finalized token still in the expiration index: %v", expired)
	}
}

func TestReleaseHoldRestoresAvailability(t *testing.T) {
	store := newScriptStore(t)
	seedCounters(t, store, map[string]int{"cat-1": 4, "cat-2": 4})
	entries := []HoldEntry{
		{EventID: "ev-1", CategoryID: "cat-1", Quantity: 2},
		{EventID: "ev-1", CategoryID: "cat-2", Quantity: 1},
	}

	if _, err := store.AcquireHold(context.Background(), "tok-rel", entries, time.Minute, nil, ""); err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}

	released, err := store.ReleaseHold(context.Background(), "tok-rel", "expired",
		HoldStatusExpired, []HoldStatus{HoldStatusHeld}, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReleaseHold() error = %v", err)
	}
	if !released {
		t.Fatalf("ReleaseHold() = false, want true")
	}

	for _, categoryID := range []string{"cat-1", "cat-2"} {
		snap := snapshotOf(t, store, categoryID)
		if snap.Available != 4 || snap.Pending != 0 || snap.Sold != 0 {
			t.Errorf("%s counters after release = %+v, want fully restored", categoryID, snap)
		}
	}

	hold, err := store.GetHold(context.Background(), "tok-rel")
	if err != nil {
		t.Fatalf("GetHold() error = %v", err)
	}
	if hold == nil || hold.Status != HoldStatusExpired {
		t.Errorf("released hold status = %v, want %s", hold, HoldStatusExpired)
	}

	expired, err := store.ListExpired(context.Background(), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("released token still in the expiration index: %v", expired)
	}
}

func TestReleaseHoldRespectsAllowedStatuses(t *testing.T) {
	store := newScriptStore(t)
	seedCounters(t, store, map[string]int{"cat-1": 4})
	entries := []HoldEntry{{EventID: "ev-1", CategoryID: "cat-1", Quantity: 2}}

	if _, err := store.AcquireHold(context.Background(), "tok-claim", entries, time.Minute, nil, ""); err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}
	if _, err := store.ClaimHold(context.Background(), "tok-claim", "ord-1", 2*time.Minute); err != nil {
		t.Fatalf("ClaimHold() error = %v", err)
	}

	// An expiry sweep only releases plain holds, a claimed one stays put
	released, err := store.ReleaseHold(context.Background(), "tok-claim", "expired",
		HoldStatusExpired, []HoldStatus{HoldStatusHeld}, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReleaseHold() error = %v", err)
	}
	if released {
		t.Fatalf("ReleaseHold() = true for a claimed hold, want refusal")
	}
	snap := snapshotOf(t, store, "cat-1")
	if snap.Pending != 2 || snap.Available != 2 {
		t.Errorf("counters = %+v, want pending=2 available=2", snap)
	}

	// Checkout compensation names the claimed statuses and goes through
	released, err = store.ReleaseHold(context.Background(), "tok-claim", "checkout failed",
		HoldStatusCancelled, []HoldStatus{HoldStatusCheckoutPending, HoldStatusCheckoutCommitted}, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReleaseHold() error = %v", err)
	}
	if !released {
		t.Fatalf("ReleaseHold() = false for checkout compensation, want true")
	}
	snap = snapshotOf(t, store, "cat-1")
	if snap.Pending != 0 || snap.Available != 4 {
		t.Errorf("counters after compensation = %+v, want pending=0 available=4", snap)
	}
}
