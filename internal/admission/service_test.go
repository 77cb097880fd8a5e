package admission

import (
	"context"
	"testing"
	"time"

	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/pkg/logger"
)

type fakeQueueRepo struct {
	entries    map[string]*Entry
	index      map[string][]string
	lockDenied bool
	lockTaken  int
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		entries: make(map[string]*Entry),
		index:   make(map[string][]string),
	}
}

func (f *fakeQueueRepo) SaveEntry(ctx context.Context, entry *Entry) error {
	saved := *entry
	f.entries[entry.QueueID] = &saved
	return nil
}

func (f *fakeQueueRepo) LoadEntry(ctx context.Context, queueID string) (*Entry, error) {
	entry, ok := f.entries[queueID]
	if !ok {
		return nil, nil
	}
	loaded := *entry
	return &loaded, nil
}

func (f *fakeQueueRepo) AddToIndex(ctx context.Context, eventID, queueID string, arrival time.Time) error {
	f.index[eventID] = append(f.index[eventID], queueID)
	return nil
}

func (f *fakeQueueRepo) RemoveFromIndex(ctx context.Context, eventID, queueID string) error {
	members := f.index[eventID]
	for i, member := range members {
		if member == queueID {
			f.index[eventID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeQueueRepo) Rank(ctx context.Context, eventID, queueID string) (int64, bool, error) {
	for i, member := range f.index[eventID] {
		if member == queueID {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeQueueRepo) TryPromotionLock(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if f.lockDenied {
		return false, nil
	}
	f.lockTaken++
	return true, nil
}

type fakeHolds struct {
	acquireResult *inventory.AcquireResult
	acquireCalls  int
	extendResult  *inventory.ExtendResult
	extendCalls   int
	released      []string
	releaseReason string
}

func (f *fakeHolds) AcquireHold(ctx context.Context, req inventory.HoldRequest) (*inventory.AcquireResult, error) {
	f.acquireCalls++
	if f.acquireResult != nil {
		return f.acquireResult, nil
	}
	return &inventory.AcquireResult{Success: false, Error: inventory.ErrCodeInsufficientStock}, nil
}

func (f *fakeHolds) ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*inventory.ExtendResult, error) {
	f.extendCalls++
	if f.extendResult != nil {
		return f.extendResult, nil
	}
	return &inventory.ExtendResult{Success: true}, nil
}

func (f *fakeHolds) ReleaseHold(ctx context.Context, token, reason string) (bool, error) {
	f.released = append(f.released, token)
	f.releaseReason = reason
	return true, nil
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		EntryTTL:          time.Hour,
		PromotionCooldown: 5 * time.Second,
		ETAPerPosition:    45 * time.Second,
		ETAMin:            30 * time.Second,
		ETAMax:            15 * time.Minute,
	}
}

func newTestService(repo Repository, holds HoldService) *service {
	return NewService(repo, holds, testQueueConfig(), logger.New()).(*service)
}

func TestJoinAssignsPositionAndETA(t *testing.T) {
	repo := newFakeQueueRepo()
	holds := &fakeHolds{}
	svc := newTestService(repo, holds)

	first, err := svc.Join(context.Background(), JoinRequest{
		EventID:    "ev-1",
		Selections: []Selection{{CategoryID: "cat-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if first.Position != 1 {
		t.Errorf("first position = %d, want 1", first.Position)
	}
	if first.ETASeconds != 45 {
		t.Errorf("first eta = %d, want 45", first.ETASeconds)
	}

	second, err := svc.Join(context.Background(), JoinRequest{
		EventID:    "ev-1",
		Selections: []Selection{{CategoryID: "cat-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if second.Position != 2 {
		t.Errorf("second position = %d, want 2", second.Position)
	}
	if second.ETASeconds != 90 {
		t.Errorf("second eta = %d, want 90", second.ETASeconds)
	}
}

func TestETASecondsClamping(t *testing.T) {
	svc := newTestService(newFakeQueueRepo(), &fakeHolds{})

	if got := svc.etaSeconds(1); got != 45 {
		t.Errorf("eta at front = %d, want 45", got)
	}
	if got := svc.etaSeconds(0); got != 45 {
		t.Errorf("eta at position zero = %d, want 45", got)
	}
	if got := svc.etaSeconds(1000); got != 900 {
		t.Errorf("eta deep in queue = %d, want capped at 900", got)
	}
}

func TestStatusMissingEntry(t *testing.T) {
	svc := newTestService(newFakeQueueRepo(), &fakeHolds{})

	status, err := svc.Status(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != nil {
		t.Fatalf("Status() = %+v, want nil for missing entry", status)
	}
}

func TestStatusBehindTheFrontDoesNotPromote(t *testing.T) {
	repo := newFakeQueueRepo()
	holds := &fakeHolds{}
	svc := newTestService(repo, holds)

	svc.Join(context.Background(), JoinRequest{EventID: "ev-1", Selections: []Selection{{CategoryID: "c", Quantity: 1}}})
	second, _ := svc.Join(context.Background(), JoinRequest{EventID: "ev-1", Selections: []Selection{{CategoryID: "c", Quantity: 1}}})

	status, err := svc.Status(context.Background(), second.QueueID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Status != EntryStatusQueued {
		t.Errorf("status = %v, want queued", status.Status)
	}
	if status.Position != 2 {
		t.Errorf("position = %d, want 2", status.Position)
	}
	if holds.acquireCalls != 0 {
		t.Errorf("acquire attempts = %d, want 0 for non-front entry", holds.acquireCalls)
	}
}

func TestStatusPromotesFrontEntry(t *testing.T) {
	repo := newFakeQueueRepo()
	holds := &fakeHolds{
		acquireResult: &inventory.AcquireResult{
			Success:   true,
			HoldToken: "tok-1",
			ExpiresAt: time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339),
		},
	}
	svc := newTestService(repo, holds)

	joined, _ := svc.Join(context.Background(), JoinRequest{
		EventID:    "ev-1",
		Selections: []Selection{{CategoryID: "cat-1", Quantity: 2}},
	})

	status, err := svc.Status(context.Background(), joined.QueueID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Status != EntryStatusReady {
		t.Fatalf("status = %v, want ready", status.Status)
	}
	if status.HoldToken != "tok-1" {
		t.Errorf("hold token = %q, want tok-1", status.HoldToken)
	}
	if len(repo.index["ev-1"]) != 0 {
		t.Errorf("promoted entry still in index: %v", repo.index["ev-1"])
	}
}

func TestStatusPromotionRespectsCooldown(t *testing.T) {
	repo := newFakeQueueRepo()
	holds := &fakeHolds{}
	svc := newTestService(repo, holds)

	joined, _ := svc.Join(context.Background(), JoinRequest{
		EventID:    "ev-1",
		Selections: []Selection{{CategoryID: "cat-1", Quantity: 1}},
	})

	// First poll burns an acquire attempt, the immediate second poll must not
	if _, err := svc.Status(context.Background(), joined.QueueID); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if _, err := svc.Status(context.Background(), joined.QueueID); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if holds.acquireCalls != 1 {
		t.Errorf("acquire attempts = %d, want 1 within cooldown", holds.acquireCalls)
	}
}

func TestStatusPromotionSkippedWhenLockHeld(t *testing.T) {
	repo := newFakeQueueRepo()
	repo.lockDenied = true
	holds := &fakeHolds{}
	svc := newTestService(repo, holds)

	joined, _ := svc.Join(context.Background(), JoinRequest{
		EventID:    "ev-1",
		Selections: []Selection{{CategoryID: "cat-1", Quantity: 1}},
	})

	status, err := svc.Status(context.Background(), joined.QueueID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Status != EntryStatusQueued {
		t.Errorf("status = %v, want queued while lock held elsewhere", status.Status)
	}
	if holds.acquireCalls != 0 {
		t.Errorf("acquire attempts = %d, want 0 when lock denied", holds.acquireCalls)
	}
}

func TestStatusExpiresEntryGoneFromIndex(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(repo, &fakeHolds{})

	entry := &Entry{
		QueueID: "q-1",
		EventID: "ev-1",
		Status:  EntryStatusQueued,
	}
	repo.SaveEntry(context.Background(), entry)

	status, err := svc.Status(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Status != EntryStatusExpired {
		t.Errorf("status = %v, want expired when index entry is gone", status.Status)
	}
}

func TestStatusExpiresLapsedReadyHold(t *testing.T) {
	repo := newFakeQueueRepo()
	svc := newTestService(repo, &fakeHolds{})

	repo.SaveEntry(context.Background(), &Entry{
		QueueID:       "q-1",
		EventID:       "ev-1",
		Status:        EntryStatusReady,
		HoldToken:     "tok-1",
		HoldExpiresAt: time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
	})

	status, err := svc.Status(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Status != EntryStatusExpired {
		t.Errorf("status = %v, want expired for lapsed hold", status.Status)
	}
}

func TestLeaveReleasesGrantedHold(t *testing.T) {
	repo := newFakeQueueRepo()
	holds := &fakeHolds{}
	svc := newTestService(repo, holds)

	repo.SaveEntry(context.Background(), &Entry{
		QueueID:   "q-1",
		EventID:   "ev-1",
		Status:    EntryStatusReady,
		HoldToken: "tok-1",
	})
	repo.AddToIndex(context.Background(), "ev-1", "q-1", time.Now())

	status, err := svc.Leave(context.Background(), "q-1", "")
	if err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if status.Status != EntryStatusCancelled {
		t.Errorf("status = %v, want cancelled", status.Status)
	}
	if len(holds.released) != 1 || holds.released[0] != "tok-1" {
		t.Errorf("released holds = %v, want [tok-1]", holds.released)
	}
	if holds.releaseReason != "user_cancelled" {
		t.Errorf("release reason = %q, want user_cancelled", holds.releaseReason)
	}
	if len(repo.index["ev-1"]) != 0 {
		t.Errorf("entry still in index after leave: %v", repo.index["ev-1"])
	}
}

func TestLeaveQueuedEntryDoesNotTouchHolds(t *testing.T) {
	repo := newFakeQueueRepo()
	holds := &fakeHolds{}
	svc := newTestService(repo, holds)

	repo.SaveEntry(context.Background(), &Entry{
		QueueID: "q-1",
		EventID: "ev-1",
		Status:  EntryStatusQueued,
	})

	if _, err := svc.Leave(context.Background(), "q-1", "changed_mind"); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if len(holds.released) != 0 {
		t.Errorf("released holds = %v, want none for a queued entry", holds.released)
	}
}

func TestClaimHappyPath(t *testing.T) {
	repo := newFakeQueueRepo()
	newExpiry := time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339)
	holds := &fakeHolds{
		extendResult: &inventory.ExtendResult{Success: true, ExpiresAt: newExpiry},
	}
	svc := newTestService(repo, holds)

	repo.SaveEntry(context.Background(), &Entry{
		QueueID:   "q-1",
		EventID:   "ev-1",
		Status:    EntryStatusReady,
		HoldToken: "tok-1",
	})

	result, err := svc.Claim(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Claim() success = false, reason %q", result.Reason)
	}
	if result.HoldToken != "tok-1" {
		t.Errorf("hold token = %q, want tok-1", result.HoldToken)
	}
	if result.HoldExpiresAt != newExpiry {
		t.Errorf("hold expiry = %q, want refreshed %q", result.HoldExpiresAt, newExpiry)
	}
	if holds.extendCalls != 1 {
		t.Errorf("extend calls = %d, want 1", holds.extendCalls)
	}
}

func TestClaimFailures(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		svc := newTestService(newFakeQueueRepo(), &fakeHolds{})

		result, err := svc.Claim(context.Background(), "nope")
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if result.Success || result.Reason != ReasonQueueNotFound {
			t.Errorf("result = %+v, want QUEUE_NOT_FOUND", result)
		}
	})

	t.Run("still queued", func(t *testing.T) {
		repo := newFakeQueueRepo()
		svc := newTestService(repo, &fakeHolds{})
		repo.SaveEntry(context.Background(), &Entry{
			QueueID: "q-1",
			EventID: "ev-1",
			Status:  EntryStatusQueued,
		})

		result, err := svc.Claim(context.Background(), "q-1")
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if result.Success || result.Reason != ReasonQueueNotReady {
			t.Errorf("result = %+v, want QUEUE_NOT_READY", result)
		}
	})

	t.Run("hold expired underneath", func(t *testing.T) {
		repo := newFakeQueueRepo()
		holds := &fakeHolds{
			extendResult: &inventory.ExtendResult{Success: false, Error: inventory.ErrCodeHoldExpired},
		}
		svc := newTestService(repo, holds)
		repo.SaveEntry(context.Background(), &Entry{
			QueueID:   "q-1",
			EventID:   "ev-1",
			Status:    EntryStatusReady,
			HoldToken: "tok-1",
		})

		result, err := svc.Claim(context.Background(), "q-1")
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if result.Success || result.Reason != inventory.ErrCodeHoldExpired {
			t.Errorf("result = %+v, want HOLD_EXPIRED", result)
		}

		entry, _ := repo.LoadEntry(context.Background(), "q-1")
		if entry.Status != EntryStatusExpired {
			t.Errorf("entry status = %v, want expired after failed claim", entry.Status)
		}
	})
}
