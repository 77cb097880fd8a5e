package admission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/pkg/logger"
)

// HoldService is the slice of the inventory service the queue needs
type HoldService interface {
	AcquireHold(ctx context.Context, req inventory.HoldRequest) (*inventory.AcquireResult, error)
	ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*inventory.ExtendResult, error)
	ReleaseHold(ctx context.Context, token, reason string) (bool, error)
}

// Service manages the per-event admission queue. Buyers land here when an
// acquire overflows available stock, poll their position, and collect a
// hold once they reach the front.
type Service interface {
	Join(ctx context.Context, req JoinRequest) (*JoinResult, error)
	Status(ctx context.Context, queueID string) (*StatusResponse, error)
	Leave(ctx context.Context, queueID, reason string) (*StatusResponse, error)
	Claim(ctx context.Context, queueID string) (*ClaimResult, error)
}

type service struct {
	repo  Repository
	holds HoldService
	cfg   config.QueueConfig
	log   *logger.Logger
	nowFn func() time.Time
}

// NewService creates a new admission queue service
func NewService(repo Repository, holds HoldService, cfg config.QueueConfig, log *logger.Logger) Service {
	return &service{
		repo:  repo,
		holds: holds,
		cfg:   cfg,
		log:   log,
		nowFn: time.Now,
	}
}

// etaSeconds estimates the wait from the one-based position
func (s *service) etaSeconds(position int) int {
	per := int(s.cfg.ETAPerPosition.Seconds())
	eta := per * max(position-1, 0)
	eta += per

	minimum := int(s.cfg.ETAMin.Seconds())
	maximum := int(s.cfg.ETAMax.Seconds())
	if eta < minimum {
		return minimum
	}
	if eta > maximum {
		return maximum
	}
	return eta
}

func (s *service) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	now := s.nowFn()
	entry := &Entry{
		QueueID:       uuid.New().String(),
		EventID:       req.EventID,
		Selections:    req.Selections,
		RequesterID:   req.RequesterID,
		CorrelationID: req.CorrelationID,
		TraceID:       req.TraceID,
		Status:        EntryStatusQueued,
		CreatedAtIso:  now.UTC().Format(time.RFC3339),
	}

	if err := s.repo.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.repo.AddToIndex(ctx, req.EventID, entry.QueueID, now); err != nil {
		return nil, err
	}

	rank, found, err := s.repo.Rank(ctx, req.EventID, entry.QueueID)
	if err != nil {
		return nil, err
	}
	if !found {
		rank = 0
	}

	position := int(rank) + 1
	s.log.InfoWithContext(ctx, "Queue entry created", map[string]interface{}{
		"queue_id": entry.QueueID,
		"event_id": req.EventID,
		"position": position,
	})

	return &JoinResult{
		QueueID:    entry.QueueID,
		Position:   position,
		ETASeconds: s.etaSeconds(position),
	}, nil
}

// attemptPromote tries to turn a front-of-queue entry into a live hold.
// Only rank zero is eligible, and each entry waits out a cooldown between
// attempts so a tight poll loop does not hammer the counters.
func (s *service) attemptPromote(ctx context.Context, entry *Entry, rank int64) (*Entry, error) {
	if entry.Status != EntryStatusQueued || rank > 0 {
		return entry, nil
	}

	nowEpoch := s.nowFn().Unix()
	cooldown := int64(s.cfg.PromotionCooldown.Seconds())
	if entry.LastAttemptEpoch > 0 && nowEpoch-entry.LastAttemptEpoch < cooldown {
		return entry, nil
	}

	locked, err := s.repo.TryPromotionLock(ctx, entry.EventID, s.cfg.PromotionCooldown)
	if err != nil {
		return nil, err
	}
	if !locked {
		return entry, nil
	}

	entry.LastAttemptEpoch = nowEpoch

	traceID := entry.CorrelationID
	if traceID == "" {
		traceID = entry.TraceID
	}

	holdEntries := make([]inventory.HoldEntry, 0, len(entry.Selections))
	for _, sel := range entry.Selections {
		holdEntries = append(holdEntries, inventory.HoldEntry{
			EventID:    entry.EventID,
			CategoryID: sel.CategoryID,
			Quantity:   sel.Quantity,
		})
	}

	result, err := s.holds.AcquireHold(ctx, inventory.HoldRequest{
		EventID:     entry.EventID,
		RequesterID: entry.RequesterID,
		TraceID:     traceID,
		Entries:     holdEntries,
	})
	if err != nil {
		return nil, err
	}

	if result.Success && result.HoldToken != "" {
		entry.Status = EntryStatusReady
		entry.HoldToken = result.HoldToken
		entry.HoldExpiresAt = result.ExpiresAt
		entry.ReadyAtIso = s.nowFn().UTC().Format(time.RFC3339)
		entry.Message = ""
		if err := s.repo.RemoveFromIndex(ctx, entry.EventID, entry.QueueID); err != nil {
			s.log.ErrorWithContext(ctx, "Failed to drop promoted entry from index", err, map[string]interface{}{
				"queue_id": entry.QueueID,
			})
		}
		s.log.InfoWithContext(ctx, "Queue entry promoted", map[string]interface{}{
			"queue_id":   entry.QueueID,
			"event_id":   entry.EventID,
			"hold_token": entry.HoldToken,
		})
	} else if result.Error != "" {
		entry.Message = result.Error
	}

	if err := s.repo.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Status(ctx context.Context, queueID string) (*StatusResponse, error) {
	entry, err := s.repo.LoadEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	if entry.Status == EntryStatusQueued {
		rank, found, err := s.repo.Rank(ctx, entry.EventID, entry.QueueID)
		if err != nil {
			return nil, err
		}
		if !found {
			entry.Status = EntryStatusExpired
			if entry.Message == "" {
				entry.Message = "Queue entry no longer active"
			}
			if err := s.repo.SaveEntry(ctx, entry); err != nil {
				return nil, err
			}
			return &StatusResponse{
				Status:        EntryStatusExpired,
				QueueID:       entry.QueueID,
				CorrelationID: entry.CorrelationID,
				Message:       entry.Message,
			}, nil
		}

		entry, err = s.attemptPromote(ctx, entry, rank)
		if err != nil {
			return nil, err
		}
		if entry.Status == EntryStatusReady {
			return s.readyResponse(entry), nil
		}

		currentRank, found, err := s.repo.Rank(ctx, entry.EventID, entry.QueueID)
		if err != nil {
			return nil, err
		}
		if !found {
			currentRank = rank
		}
		position := int(currentRank) + 1

		entry.Message = ""
		if err := s.repo.SaveEntry(ctx, entry); err != nil {
			return nil, err
		}

		return &StatusResponse{
			Status:        EntryStatusQueued,
			QueueID:       entry.QueueID,
			Position:      position,
			ETASeconds:    s.etaSeconds(position),
			CorrelationID: entry.CorrelationID,
		}, nil
	}

	if entry.Status == EntryStatusReady {
		if s.holdLapsed(entry) {
			entry.Status = EntryStatusExpired
			entry.Message = "Hold expired"
			if err := s.repo.SaveEntry(ctx, entry); err != nil {
				return nil, err
			}
			return &StatusResponse{
				Status:        EntryStatusExpired,
				QueueID:       entry.QueueID,
				CorrelationID: entry.CorrelationID,
				Message:       entry.Message,
			}, nil
		}
		return s.readyResponse(entry), nil
	}

	return &StatusResponse{
		Status:        entry.Status,
		QueueID:       entry.QueueID,
		CorrelationID: entry.CorrelationID,
		Message:       entry.Message,
	}, nil
}

func (s *service) readyResponse(entry *Entry) *StatusResponse {
	return &StatusResponse{
		Status:        EntryStatusReady,
		QueueID:       entry.QueueID,
		HoldToken:     entry.HoldToken,
		HoldExpiresAt: entry.HoldExpiresAt,
		CorrelationID: entry.CorrelationID,
	}
}

func (s *service) holdLapsed(entry *Entry) bool {
	if entry.HoldExpiresAt == "" {
		return false
	}
	expiresAt, err := time.Parse(time.RFC3339, entry.HoldExpiresAt)
	if err != nil {
		return false
	}
	return !expiresAt.After(s.nowFn())
}

func (s *service) Leave(ctx context.Context, queueID, reason string) (*StatusResponse, error) {
	if reason == "" {
		reason = "user_cancelled"
	}

	entry, err := s.repo.LoadEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	if err := s.repo.RemoveFromIndex(ctx, entry.EventID, entry.QueueID); err != nil {
		s.log.ErrorWithContext(ctx, "Failed to remove leaving entry from index", err, map[string]interface{}{
			"queue_id": entry.QueueID,
		})
	}

	if entry.HoldToken != "" && entry.Status == EntryStatusReady {
		if _, err := s.holds.ReleaseHold(ctx, entry.HoldToken, reason); err != nil {
			s.log.ErrorWithContext(ctx, "Failed to release hold for leaving entry", err, map[string]interface{}{
				"queue_id":   entry.QueueID,
				"hold_token": entry.HoldToken,
			})
		}
	}

	entry.Status = EntryStatusCancelled
	entry.CancelledAtIso = s.nowFn().UTC().Format(time.RFC3339)
	entry.Message = reason
	if err := s.repo.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}

	return &StatusResponse{
		Status:        EntryStatusCancelled,
		QueueID:       entry.QueueID,
		CorrelationID: entry.CorrelationID,
		Message:       reason,
	}, nil
}

// Claim hands the promoted hold over to the buyer and buys them a fresh
// full window on it. The hold itself stays in the held state, checkout
// claims it for real when the order is placed.
func (s *service) Claim(ctx context.Context, queueID string) (*ClaimResult, error) {
	entry, err := s.repo.LoadEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &ClaimResult{Success: false, Reason: ReasonQueueNotFound}, nil
	}

	if entry.Status != EntryStatusReady || entry.HoldToken == "" {
		return &ClaimResult{
			Success: false,
			Reason:  ReasonQueueNotReady,
			Status:  string(entry.Status),
		}, nil
	}

	result, err := s.holds.ExtendHold(ctx, entry.HoldToken, 0)
	if err != nil {
		return nil, err
	}

	if !result.Success {
		if result.Error == inventory.ErrCodeHoldExpired || result.Status == string(inventory.HoldStatusExpired) {
			entry.Status = EntryStatusExpired
			entry.Message = "Hold expired"
			if err := s.repo.SaveEntry(ctx, entry); err != nil {
				return nil, err
			}
		}

		reason := result.Error
		if reason == "" {
			reason = "claim_failed"
		}
		return &ClaimResult{
			Success: false,
			Reason:  reason,
			Status:  result.Status,
		}, nil
	}

	if result.ExpiresAt != "" {
		entry.HoldExpiresAt = result.ExpiresAt
		if err := s.repo.SaveEntry(ctx, entry); err != nil {
			return nil, err
		}
	}

	return &ClaimResult{
		Success:       true,
		HoldToken:     entry.HoldToken,
		HoldExpiresAt: entry.HoldExpiresAt,
	}, nil
}
