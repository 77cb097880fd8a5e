package inventory

// HoldAttemptResponse covers the three outcomes of an acquire attempt:
// acquired, queued and rejected. Only the fields for the relevant outcome
// are populated.
type HoldAttemptResponse struct {
	Status           string `json:"status"`
	HoldID           string `json:"hold_id,omitempty"`
	HoldToken        string `json:"hold_token,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	ExpiresInSeconds int    `json:"expires_in_seconds,omitempty"`

	QueueID           string `json:"queue_id,omitempty"`
	Position          int    `json:"position,omitempty"`
	ETASeconds        int    `json:"eta_seconds,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`

	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

type HoldStatusResponse struct {
	HoldToken      string      `json:"hold_token"`
	Status         HoldStatus  `json:"status"`
	Entries        []HoldEntry `json:"entries"`
	ExpiresAt      string      `json:"expires_at,omitempty"`
	OrderReference string      `json:"order_reference,omitempty"`
}

type HoldExtendResponse struct {
	HoldToken string `json:"hold_token"`
	ExpiresAt string `json:"expires_at"`
}

type CategoryInventoryResponse struct {
	CategoryID  string      `json:"category_id"`
	Name        string      `json:"name"`
	Price       float64     `json:"price"`
	Currency    string      `json:"currency"`
	Total       int         `json:"total"`
	Available   int         `json:"available"`
	Pending     int         `json:"pending"`
	Sold        int         `json:"sold"`
	StockStatus StockStatus `json:"stock_status"`
}

type EventInventoryResponse struct {
	EventID    string                      `json:"event_id"`
	Categories []CategoryInventoryResponse `json:"categories"`
}
