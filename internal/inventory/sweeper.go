package inventory

import (
	"context"
	"time"

	"tixly/pkg/logger"
)

// ExpiredHoldSource is the slice of Service the sweeper needs
type ExpiredHoldSource interface {
	ListExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	GetHold(ctx context.Context, token string) (*Hold, error)
	RemoveFromExpirationIndex(ctx context.Context, token string) error
}

// ExpiredHoldReleaser releases a single expired hold
type ExpiredHoldReleaser interface {
	ReleaseExpiredHold(ctx context.Context, token string) (bool, error)
}

// Sweeper periodically returns expired holds to available inventory.
// It re-reads each candidate before releasing: a hold the ZSET still lists
// may have been claimed, released or finalized since it was scored.
type Sweeper struct {
	source    ExpiredHoldSource
	releaser  ExpiredHoldReleaser
	interval  time.Duration
	batchSize int64
	log       *logger.Logger
	done      chan struct{}
}

// SweeperConfig contains configuration for the expired hold sweeper
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval:  30 * time.Second,
		BatchSize: 100,
	}
}

// NewSweeper creates a new expired hold sweeper
func NewSweeper(source ExpiredHoldSource, releaser ExpiredHoldReleaser, config *SweeperConfig, log *logger.Logger) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}

	return &Sweeper{
		source:    source,
		releaser:  releaser,
		interval:  config.Interval,
		batchSize: int64(config.BatchSize),
		log:       log,
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context ends
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	close(s.done)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.InfoWithContext(ctx, "Started expired hold sweeper", map[string]interface{}{
		"interval":   s.interval.String(),
		"batch_size": s.batchSize,
	})

	for {
		select {
		case <-ticker.C:
			stats := s.SweepOnce(ctx)
			if stats.Total > 0 {
				s.log.InfoWithContext(ctx, "Expired hold sweep completed", map[string]interface{}{
					"total":    stats.Total,
					"released": stats.Released,
					"skipped":  stats.Skipped,
					"errors":   stats.Errors,
				})
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce performs a single sweep pass and reports what it did
func (s *Sweeper) SweepOnce(ctx context.Context) SweepStats {
	var stats SweepStats

	tokens, err := s.source.ListExpired(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.log.ErrorWithContext(ctx, "Failed to list expired holds", err, nil)
		stats.Errors++
		return stats
	}

	stats.Total = len(tokens)

	for _, token := range tokens {
		hold, err := s.source.GetHold(ctx, token)
		if err != nil {
			s.log.ErrorWithContext(ctx, "Failed to read expired hold candidate", err, map[string]interface{}{
				"hold_token": token,
			})
			stats.Errors++
			continue
		}

		// Record vanished or already moved past held: just drop the index entry.
		// Claimed holds stay untouched, the checkout path owns their fate.
		if hold == nil || hold.Status != HoldStatusHeld {
			if err := s.source.RemoveFromExpirationIndex(ctx, token); err != nil {
				stats.Errors++
				continue
			}
			stats.Skipped++
			continue
		}

		released, err := s.releaser.ReleaseExpiredHold(ctx, token)
		if err != nil {
			s.log.ErrorWithContext(ctx, "Failed to release expired hold", err, map[string]interface{}{
				"hold_token": token,
			})
			stats.Errors++
			continue
		}
		if released {
			stats.Released++
		} else {
			// Lost the race to a claim or another sweeper
			stats.Skipped++
		}
	}

	return stats
}
