package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tixly/internal/shared/config"
	"tixly/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNoEntries         = errors.New("hold request must include at least one category entry")
	ErrMixedEvents       = errors.New("all hold entries must reference the same event")
	ErrQuantityExceeded  = errors.New("hold request exceeds the per-hold quantity limit")
	ErrInvalidQuantity   = errors.New("hold entry quantity must be positive")
	ErrDuplicateCategory = errors.New("hold entries must not repeat a category")
)

// Store is the atomic hold storage the service drives. AtomicHoldStore is the
// Redis implementation.
type Store interface {
	AcquireHold(ctx context.Context, token string, entries []HoldEntry, ttl time.Duration, metadata map[string]string, traceID string) (*AcquireResult, error)
	ClaimHold(ctx context.Context, token, orderReference string, extendTTL time.Duration) (*ClaimResult, error)
	MarkCommitted(ctx context.Context, token, orderReference string) error
	ReleaseHold(ctx context.Context, token, reason string, newStatus HoldStatus, allowedFrom []HoldStatus, retain time.Duration) (bool, error)
	FinalizeHold(ctx context.Context, token, orderID, paymentReference string, retain time.Duration) (bool, error)
	ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*ExtendResult, error)
	GetHold(ctx context.Context, token string) (*Hold, error)
	ListExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	RemoveFromExpirationIndex(ctx context.Context, token string) error
	InitCounter(ctx context.Context, eventID, categoryID string, total, sold int) error
	GetCounterSnapshot(ctx context.Context, eventID, categoryID string) (*CounterSnapshot, error)
}

// HoldRequest is a validated request to pin inventory across categories
type HoldRequest struct {
	EventID     string
	RequesterID string
	TraceID     string
	Entries     []HoldEntry
}

type Service interface {
	AcquireHold(ctx context.Context, req HoldRequest) (*AcquireResult, error)
	ClaimHold(ctx context.Context, token, orderReference string) (*ClaimResult, error)
	MarkCommitted(ctx context.Context, token, orderReference string) error
	ReleaseHold(ctx context.Context, token, reason string) (bool, error)
	ReleaseExpiredHold(ctx context.Context, token string) (bool, error)
	ReleaseStuckCheckout(ctx context.Context, token, reason string) (bool, error)
	FinalizeHold(ctx context.Context, token, orderID, paymentReference string) (bool, error)
	ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*ExtendResult, error)
	GetHold(ctx context.Context, token string) (*Hold, error)
	SeedCounter(ctx context.Context, eventID, categoryID string, total, sold int) error
	Snapshot(ctx context.Context, eventID, categoryID string) (*CounterSnapshot, error)
}

type service struct {
	store Store
	cfg   config.HoldConfig
	log   *logger.Logger
}

func NewService(store Store, cfg config.HoldConfig, log *logger.Logger) Service {
	return &service{
		store: store,
		cfg:   cfg,
		log:   log,
	}
}

func (s *service) AcquireHold(ctx context.Context, req HoldRequest) (*AcquireResult, error) {
	if len(req.Entries) == 0 {
		return nil, ErrNoEntries
	}

	totalQuantity := 0
	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		if entry.EventID != req.EventID {
			return nil, ErrMixedEvents
		}
		if entry.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		// A repeated category would decrement the same counter twice
		if _, dup := seen[entry.CategoryID]; dup {
			return nil, ErrDuplicateCategory
		}
		seen[entry.CategoryID] = struct{}{}
		totalQuantity += entry.Quantity
	}
	if s.cfg.MaxQuantity > 0 && totalQuantity > s.cfg.MaxQuantity {
		return nil, ErrQuantityExceeded
	}

	token := uuid.New().String()
	metadata := map[string]string{
		"eventId": req.EventID,
	}
	if req.RequesterID != "" {
		metadata["requesterId"] = req.RequesterID
	}

	result, err := s.store.AcquireHold(ctx, token, req.Entries, s.cfg.TTL, metadata, req.TraceID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire hold: %w", err)
	}

	if result.Success {
		for _, entry := range req.Entries {
			s.log.LogHoldAcquired(ctx, token, entry.EventID, entry.CategoryID, entry.Quantity)
		}
	}
	return result, nil
}

func (s *service) ClaimHold(ctx context.Context, token, orderReference string) (*ClaimResult, error) {
	result, err := s.store.ClaimHold(ctx, token, orderReference, s.cfg.CheckoutTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim hold: %w", err)
	}
	return result, nil
}

func (s *service) MarkCommitted(ctx context.Context, token, orderReference string) error {
	return s.store.MarkCommitted(ctx, token, orderReference)
}

// ReleaseHold cancels a live hold at the buyer's request
func (s *service) ReleaseHold(ctx context.Context, token, reason string) (bool, error) {
	released, err := s.store.ReleaseHold(ctx, token, reason, HoldStatusCancelled,
		[]HoldStatus{HoldStatusHeld}, s.cfg.ReleasedRetention)
	if err != nil {
		return false, err
	}
	if released {
		s.log.LogHoldReleased(ctx, token, reason)
	}
	return released, nil
}

// ReleaseExpiredHold is the sweeper's release path: held holds past their
// deadline transition to expired.
func (s *service) ReleaseExpiredHold(ctx context.Context, token string) (bool, error) {
	released, err := s.store.ReleaseHold(ctx, token, "hold-expired", HoldStatusExpired,
		[]HoldStatus{HoldStatusHeld}, s.cfg.ReleasedRetention)
	if err != nil {
		return false, err
	}
	if released {
		s.log.LogHoldReleased(ctx, token, "hold-expired")
	}
	return released, nil
}

// ReleaseStuckCheckout unwinds a hold that a failed checkout left in
// checkout_pending or checkout_committed.
func (s *service) ReleaseStuckCheckout(ctx context.Context, token, reason string) (bool, error) {
	released, err := s.store.ReleaseHold(ctx, token, reason, HoldStatusCancelled,
		[]HoldStatus{HoldStatusCheckoutPending, HoldStatusCheckoutCommitted}, s.cfg.ReleasedRetention)
	if err != nil {
		return false, err
	}
	if released {
		s.log.LogHoldReleased(ctx, token, reason)
	}
	return released, nil
}

func (s *service) FinalizeHold(ctx context.Context, token, orderID, paymentReference string) (bool, error) {
	return s.store.FinalizeHold(ctx, token, orderID, paymentReference, s.cfg.FinalizedRetention)
}

func (s *service) ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*ExtendResult, error) {
	if extendBy <= 0 {
		extendBy = s.cfg.TTL
	}
	return s.store.ExtendHold(ctx, token, extendBy)
}

func (s *service) GetHold(ctx context.Context, token string) (*Hold, error) {
	return s.store.GetHold(ctx, token)
}

func (s *service) SeedCounter(ctx context.Context, eventID, categoryID string, total, sold int) error {
	return s.store.InitCounter(ctx, eventID, categoryID, total, sold)
}

func (s *service) Snapshot(ctx context.Context, eventID, categoryID string) (*CounterSnapshot, error) {
	return s.store.GetCounterSnapshot(ctx, eventID, categoryID)
}
