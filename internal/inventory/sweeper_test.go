package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tixly/pkg/logger"
)

type fakeSweepSource struct {
	expired     []string
	listErr     error
	holds       map[string]*Hold
	removed     []string
	removeErr   error
	getHoldErrs map[string]error
}

func (f *fakeSweepSource) ListExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.expired, nil
}

func (f *fakeSweepSource) GetHold(ctx context.Context, token string) (*Hold, error) {
	if err, ok := f.getHoldErrs[token]; ok {
		return nil, err
	}
	return f.holds[token], nil
}

func (f *fakeSweepSource) RemoveFromExpirationIndex(ctx context.Context, token string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, token)
	return nil
}

type fakeReleaser struct {
	released   []string
	releaseOK  map[string]bool
	releaseErr error
}

func (f *fakeReleaser) ReleaseExpiredHold(ctx context.Context, token string) (bool, error) {
	if f.releaseErr != nil {
		return false, f.releaseErr
	}
	f.released = append(f.released, token)
	if f.releaseOK == nil {
		return true, nil
	}
	return f.releaseOK[token], nil
}

func TestSweepOnceReleasesExpiredHeldHolds(t *testing.T) {
	source := &fakeSweepSource{
		expired: []string{"tok-1", "tok-2"},
		holds: map[string]*Hold{
			"tok-1": {Token: "tok-1", Status: HoldStatusHeld},
			"tok-2": {Token: "tok-2", Status: HoldStatusHeld},
		},
	}
	releaser := &fakeReleaser{}
	sweeper := NewSweeper(source, releaser, nil, logger.New())

	stats := sweeper.SweepOnce(context.Background())

	if stats.Total != 2 || stats.Released != 2 || stats.Skipped != 0 || stats.Errors != 0 {
		t.Fatalf("stats = %+v, want total=2 released=2", stats)
	}
	if len(releaser.released) != 2 {
		t.Errorf("released tokens = %v, want both", releaser.released)
	}
}

func TestSweepOnceSkipsClaimedAndMissingHolds(t *testing.T) {
	source := &fakeSweepSource{
		expired: []string{"claimed", "vanished"},
		holds: map[string]*Hold{
			"claimed": {Token: "claimed", Status: HoldStatusCheckoutPending},
		},
	}
	releaser := &fakeReleaser{}
	sweeper := NewSweeper(source, releaser, nil, logger.New())

	stats := sweeper.SweepOnce(context.Background())

	if stats.Skipped != 2 || stats.Released != 0 {
		t.Fatalf("stats = %+v, want skipped=2 released=0", stats)
	}
	if len(releaser.released) != 0 {
		t.Errorf("releaser called for %v, want none", releaser.released)
	}
	if len(source.removed) != 2 {
		t.Errorf("index removals = %v, want both candidates dropped", source.removed)
	}
}

func TestSweepOnceCountsLostRaceAsSkipped(t *testing.T) {
	source := &fakeSweepSource{
		expired: []string{"tok-1"},
		holds: map[string]*Hold{
			"tok-1": {Token: "tok-1", Status: HoldStatusHeld},
		},
	}
	releaser := &fakeReleaser{releaseOK: map[string]bool{"tok-1": false}}
	sweeper := NewSweeper(source, releaser, nil, logger.New())

	stats := sweeper.SweepOnce(context.Background())

	if stats.Released != 0 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v, want skipped=1 released=0", stats)
	}
}

func TestSweepOnceReportsListFailure(t *testing.T) {
	source := &fakeSweepSource{listErr: errors.New("redis down")}
	releaser := &fakeReleaser{}
	sweeper := NewSweeper(source, releaser, nil, logger.New())

	stats := sweeper.SweepOnce(context.Background())

	if stats.Errors != 1 || stats.Total != 0 {
		t.Fatalf("stats = %+v, want errors=1 total=0", stats)
	}
}

func TestSweepOnceContinuesPastReadErrors(t *testing.T) {
	source := &fakeSweepSource{
		expired: []string{"broken", "tok-1"},
		holds: map[string]*Hold{
			"tok-1": {Token: "tok-1", Status: HoldStatusHeld},
		},
		getHoldErrs: map[string]error{"broken": errors.New("read failed")},
	}
	releaser := &fakeReleaser{}
	sweeper := NewSweeper(source, releaser, nil, logger.New())

	stats := sweeper.SweepOnce(context.Background())

	if stats.Errors != 1 || stats.Released != 1 {
		t.Fatalf("stats = %+v, want errors=1 released=1", stats)
	}
}
