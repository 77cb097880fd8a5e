package constants

import "time"

// Redis Key Configuration
// This file centralizes the Redis keys shared between the API server, the
// finalizer worker and the sweeper so the three processes never drift.
// Pattern: {module}:{identifier}:{sub-identifier?}

// ================== INVENTORY LEDGER ==================

const (
	// Hash per event/category pair holding the counter fields
	// total, available, pending, sold and version
	KEY_PREFIX_INVENTORY = "inventory:"

	// Hash per hold token holding the full hold record
	KEY_PREFIX_HOLD = "holds:"

	// ZSET of active hold tokens scored by expiration unix ms
	KEY_HOLD_EXPIRATION_INDEX = "holds:expiration-index"
)

// ================== ADMISSION QUEUE ==================

const (
	// String per queue entry holding the entry JSON
	KEY_PREFIX_QUEUE_ENTRY = "queue:entry:"

	// ZSET per event of entry ids scored by arrival unix ms
	KEY_PREFIX_QUEUE_INDEX = "queue:index:"

	// String per event recording the last promotion attempt, used as a cooldown gate
	KEY_PREFIX_QUEUE_PROMOTION = "queue:promotion:"
)

// ================== RETENTION TTLS ==================

// Terminal hold records are kept around briefly so late readers get a
// definite status instead of a miss.
const (
	TTL_HOLD_RELEASED_RETENTION  = 5 * time.Minute
	TTL_HOLD_FINALIZED_RETENTION = 30 * time.Minute
)

// ================== HELPER FUNCTIONS ==================

// BuildInventoryKey constructs the counter hash key for an event/category pair
func BuildInventoryKey(eventID, categoryID string) string {
	return KEY_PREFIX_INVENTORY + eventID + ":" + categoryID
}

// BuildHoldKey constructs the hold record key for a token
func BuildHoldKey(token string) string {
	return KEY_PREFIX_HOLD + token
}

// BuildQueueEntryKey constructs the entry record key for a queue entry id
func BuildQueueEntryKey(entryID string) string {
	return KEY_PREFIX_QUEUE_ENTRY + entryID
}

// BuildQueueIndexKey constructs the per-event queue index key
func BuildQueueIndexKey(eventID string) string {
	return KEY_PREFIX_QUEUE_INDEX + eventID
}

// BuildQueuePromotionKey constructs the per-event promotion cooldown key
func BuildQueuePromotionKey(eventID string) string {
	return KEY_PREFIX_QUEUE_PROMOTION + eventID
}
