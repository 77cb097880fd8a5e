package inventory

import (
	"time"
)

// HoldStatus is the lifecycle state of a hold record
type HoldStatus string

const (
	HoldStatusHeld              HoldStatus = "held"
	HoldStatusCheckoutPending   HoldStatus = "checkout_pending"
	HoldStatusCheckoutCommitted HoldStatus = "checkout_committed"
	HoldStatusFinalized         HoldStatus = "finalized"
	HoldStatusExpired           HoldStatus = "expired"
	HoldStatusCancelled         HoldStatus = "cancelled"
)

// Active reports whether the hold still pins pending inventory
func (s HoldStatus) Active() bool {
	switch s {
	case HoldStatusHeld, HoldStatusCheckoutPending, HoldStatusCheckoutCommitted:
		return true
	}
	return false
}

// HoldEntry is one category line inside a hold. JSON field names are part of
// the stored record format and shared with the Lua scripts.
type HoldEntry struct {
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}

// Hold is the full hold record as stored in Redis
type Hold struct {
	Token          string
	Status         HoldStatus
	Entries        []HoldEntry
	ExpiresAt      time.Time
	ExpiresAtEpoch int64
	OrderReference string
}

// Expired reports whether the hold deadline has passed at the given instant
func (h *Hold) Expired(now time.Time) bool {
	return h.ExpiresAtEpoch > 0 && h.ExpiresAtEpoch <= now.Unix()
}

// Script error codes returned by the atomic hold operations
const (
	ErrCodeHoldAlreadyExists  = "HOLD_ALREADY_EXISTS"
	ErrCodeInvalidQuantity    = "INVALID_QUANTITY"
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeHoldNotFound       = "HOLD_NOT_FOUND"
	ErrCodeHoldNotActive      = "HOLD_NOT_ACTIVE"
	ErrCodeHoldExpired        = "HOLD_EXPIRED"
	ErrCodeHoldNotReleasable  = "HOLD_NOT_RELEASABLE"
	ErrCodeHoldNotFinalizable = "HOLD_NOT_FINALIZABLE"
	ErrCodeHoldNotExtendable  = "HOLD_NOT_EXTENDABLE"
)

// AcquireResult is the outcome of an atomic hold acquisition
type AcquireResult struct {
	Success        bool                `json:"success"`
	HoldToken      string              `json:"holdToken,omitempty"`
	ExpiresAt      string              `json:"expiresAt,omitempty"`
	ExpiresAtEpoch int64               `json:"expiresAtEpoch,omitempty"`
	Error          string              `json:"error,omitempty"`
	CategoryID     string              `json:"categoryId,omitempty"`
	Available      int                 `json:"available,omitempty"`
	Entries        []AcquireEntryState `json:"entries,omitempty"`
}

// AcquireEntryState is the post-acquire counter view for one category
type AcquireEntryState struct {
	CategoryID string `json:"categoryId"`
	Available  int    `json:"available"`
	Pending    int    `json:"pending"`
	Total      int    `json:"total"`
}

// ClaimResult is the outcome of transitioning a hold into checkout
type ClaimResult struct {
	Success        bool        `json:"success"`
	Error          string      `json:"error,omitempty"`
	Status         string      `json:"status,omitempty"`
	Entries        []HoldEntry `json:"entries,omitempty"`
	ExpiresAt      string      `json:"expiresAt,omitempty"`
	ExpiresAtEpoch int64       `json:"expiresAtEpoch,omitempty"`
}

// ExtendResult is the outcome of pushing a hold deadline out
type ExtendResult struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	Status         string `json:"status,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
	ExpiresAtEpoch int64  `json:"expiresAtEpoch,omitempty"`
}

// CounterSnapshot is the live counter view for one event/category pair
type CounterSnapshot struct {
	Total     int   `json:"total"`
	Available int   `json:"available"`
	Pending   int   `json:"pending"`
	Sold      int   `json:"sold"`
	Version   int64 `json:"version"`
}

// StockStatus buckets availability for storefront display
type StockStatus string

const (
	StockStatusSoldOut       StockStatus = "sold-out"
	StockStatusAlmostSoldOut StockStatus = "almost-sold-out"
	StockStatusLowStock      StockStatus = "low-stock"
	StockStatusAvailable     StockStatus = "available"
)

// DeriveStockStatus maps a counter snapshot to a display bucket
func DeriveStockStatus(available, total int) StockStatus {
	if available <= 0 {
		return StockStatusSoldOut
	}
	if total <= 0 {
		return StockStatusAvailable
	}
	ratio := float64(available) / float64(total)
	switch {
	case ratio <= 0.05:
		return StockStatusAlmostSoldOut
	case ratio <= 0.2:
		return StockStatusLowStock
	default:
		return StockStatusAvailable
	}
}

// SweepStats summarizes one expired hold sweep pass
type SweepStats struct {
	Total    int `json:"total"`
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}
