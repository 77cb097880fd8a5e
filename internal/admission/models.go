package admission

import "tixly/internal/inventory"

// EntryStatus is the lifecycle state of a queue entry
type EntryStatus string

const (
	EntryStatusQueued    EntryStatus = "queued"
	EntryStatusReady     EntryStatus = "ready"
	EntryStatusExpired   EntryStatus = "expired"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Selection is one requested category and quantity inside a queue entry
type Selection struct {
	CategoryID string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}

// Entry is the stored queue record. It lives as a JSON string in Redis
// with its own TTL, separate from the per-event arrival index.
type Entry struct {
	QueueID          string      `json:"queueId"`
	EventID          string      `json:"eventId"`
	Selections       []Selection `json:"selections"`
	RequesterID      string      `json:"requesterId,omitempty"`
	CorrelationID    string      `json:"correlationId,omitempty"`
	TraceID          string      `json:"traceId,omitempty"`
	Status           EntryStatus `json:"status"`
	CreatedAtIso     string      `json:"createdAtIso"`
	ReadyAtIso       string      `json:"readyAtIso,omitempty"`
	CancelledAtIso   string      `json:"cancelledAtIso,omitempty"`
	LastAttemptEpoch int64       `json:"lastAttemptEpoch,omitempty"`
	HoldToken        string      `json:"holdToken,omitempty"`
	HoldExpiresAt    string      `json:"holdExpiresAt,omitempty"`
	Message          string      `json:"message,omitempty"`
}

// JoinRequest asks for a place in an event's admission queue
type JoinRequest struct {
	EventID       string
	Selections    []Selection
	RequesterID   string
	CorrelationID string
	TraceID       string
}

// JoinResult reports the granted place
type JoinResult struct {
	QueueID    string
	Position   int
	ETASeconds int
}

// StatusResponse is the polled view of a queue entry
type StatusResponse struct {
	Status        EntryStatus `json:"status"`
	QueueID       string      `json:"queue_id"`
	Position      int         `json:"position,omitempty"`
	ETASeconds    int         `json:"eta_seconds,omitempty"`
	HoldToken     string      `json:"hold_token,omitempty"`
	HoldExpiresAt string      `json:"hold_expires_at,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// ClaimResult is the outcome of claiming a promoted entry's hold
type ClaimResult struct {
	Success       bool   `json:"success"`
	HoldToken     string `json:"hold_token,omitempty"`
	HoldExpiresAt string `json:"hold_expires_at,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status,omitempty"`
}

// Claim failure reasons
const (
	ReasonQueueNotFound = "QUEUE_NOT_FOUND"
	ReasonQueueNotReady = "QUEUE_NOT_READY"
	ReasonHoldExpired   = inventory.ErrCodeHoldExpired
)
