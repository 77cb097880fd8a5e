package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tixly/internal/shared/constants"
)

// Repository persists queue entries and the per-event arrival index
type Repository interface {
	SaveEntry(ctx context.Context, entry *Entry) error
	LoadEntry(ctx context.Context, queueID string) (*Entry, error)
	AddToIndex(ctx context.Context, eventID, queueID string, arrival time.Time) error
	RemoveFromIndex(ctx context.Context, eventID, queueID string) error
	Rank(ctx context.Context, eventID, queueID string) (int64, bool, error)
	TryPromotionLock(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

type redisRepository struct {
	redis    *redis.Client
	entryTTL time.Duration
}

// NewRepository creates a Redis-backed queue repository
func NewRepository(client *redis.Client, entryTTL time.Duration) Repository {
	return &redisRepository{
		redis:    client,
		entryTTL: entryTTL,
	}
}

func (r *redisRepository) SaveEntry(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	key := constants.BuildQueueEntryKey(entry.QueueID)
	if err := r.redis.Set(ctx, key, data, r.entryTTL).Err(); err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	return nil
}

func (r *redisRepository) LoadEntry(ctx context.Context, queueID string) (*Entry, error) {
	key := constants.BuildQueueEntryKey(queueID)
	raw, err := r.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Corrupt record, treat as gone
		return nil, nil
	}
	return &entry, nil
}

func (r *redisRepository) AddToIndex(ctx context.Context, eventID, queueID string, arrival time.Time) error {
	key := constants.BuildQueueIndexKey(eventID)
	err := r.redis.ZAdd(ctx, key, redis.Z{
		Score:  float64(arrival.UnixMilli()),
		Member: queueID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add queue entry to index: %w", err)
	}
	return nil
}

func (r *redisRepository) RemoveFromIndex(ctx context.Context, eventID, queueID string) error {
	key := constants.BuildQueueIndexKey(eventID)
	if err := r.redis.ZRem(ctx, key, queueID).Err(); err != nil {
		return fmt.Errorf("failed to remove queue entry from index: %w", err)
	}
	return nil
}

// Rank returns the zero-based arrival position, or false when the entry
// is no longer in the index.
func (r *redisRepository) Rank(ctx context.Context, eventID, queueID string) (int64, bool, error) {
	key := constants.BuildQueueIndexKey(eventID)
	rank, err := r.redis.ZRank(ctx, key, queueID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get queue rank: %w", err)
	}
	return rank, true, nil
}

// TryPromotionLock serializes promotion attempts for one event so
// concurrent status polls do not race each other into the hold store.
func (r *redisRepository) TryPromotionLock(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := constants.BuildQueuePromotionKey(eventID)
	ok, err := r.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to take promotion lock: %w", err)
	}
	return ok, nil
}
