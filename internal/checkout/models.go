package checkout

import (
	"time"

	"github.com/google/uuid"
)

// Order status values. Checkout writes the row as pending_payment, flips
// it to processing once the finalization message is handed off, and the
// finalizer confirms it. Cancelled is reserved for manual reconciliation.
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusProcessing     = "processing"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusCancelled      = "cancelled"
)

// Payment status values
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Idempotency record status values
const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
	IdempotencyFailed     = "failed"
)

// Order is the relational record a successful checkout produces
type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber string    `gorm:"size:40;uniqueIndex;not null" json:"order_number"`
	EventID     uuid.UUID `gorm:"type:uuid;index;not null" json:"event_id"`
	UserID      string    `gorm:"size:100;index" json:"user_id,omitempty"`

	// Each hold can only ever produce one order
	HoldToken string `gorm:"size:64;uniqueIndex:unique_order_hold_token;not null" json:"hold_token"`

	Status        string `gorm:"type:varchar(20);default:'pending_payment'" json:"status"`
	PaymentStatus string `gorm:"type:varchar(20);default:'pending'" json:"payment_status"`
	PaymentMethod string `gorm:"size:50" json:"payment_method"`
	PaymentRef    string `gorm:"size:100" json:"payment_reference,omitempty"`

	// Hold deadline at checkout time, kept for reconciliation of orders
	// whose finalization never arrived
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Subtotal   float64 `gorm:"not null" json:"subtotal"`
	ServiceFee float64 `gorm:"not null" json:"service_fee"`
	Tax        float64 `gorm:"not null" json:"tax"`
	Total      float64 `gorm:"not null" json:"total"`
	Currency   string  `gorm:"type:varchar(3);default:'USD'" json:"currency"`

	AttendeeFirstName string `gorm:"size:100" json:"attendee_first_name"`
	AttendeeLastName  string `gorm:"size:100" json:"attendee_last_name"`
	AttendeeEmail     string `gorm:"size:255" json:"attendee_email"`
	AttendeePhone     string `gorm:"size:30" json:"attendee_phone"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE;"`
}

// OrderItem is one priced category line within an order
type OrderItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:unique_order_item_category" json:"order_id"`
	TicketCategoryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:unique_order_item_category" json:"ticket_category_id"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	UnitPrice        float64   `gorm:"not null" json:"unit_price"`
	LineTotal        float64   `gorm:"not null" json:"line_total"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IdempotencyRecord pins one checkout execution to one Idempotency-Key.
// The row is taken FOR UPDATE at the start of each attempt, so a retry
// either replays the stored response or collides with the in-flight run.
type IdempotencyRecord struct {
	Key                string     `gorm:"size:100;primaryKey" json:"key"`
	Status             string     `gorm:"type:varchar(20);not null" json:"status"`
	HoldToken          string     `gorm:"size:64;index" json:"hold_token"`
	RequestFingerprint string     `gorm:"size:64" json:"request_fingerprint"`
	Response           []byte     `gorm:"type:jsonb" json:"response,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ExpiresAt          time.Time  `json:"expires_at"`
}

// TableName sets the table name for Order
func (Order) TableName() string {
	return "orders"
}

// TableName sets the table name for OrderItem
func (OrderItem) TableName() string {
	return "order_items"
}

// TableName sets the table name for IdempotencyRecord
func (IdempotencyRecord) TableName() string {
	return "api_idempotency"
}

// Confirmed reports whether the finalizer already processed this order
func (o *Order) Confirmed() bool {
	return o.Status == OrderStatusConfirmed
}

// FinalizationMessage is the envelope checkout hands to the async
// finalizer once the order row is committed and the hold is claimed.
type FinalizationMessage struct {
	OrderID          string             `json:"orderId"`
	OrderNumber      string             `json:"orderNumber"`
	HoldToken        string             `json:"holdToken"`
	EventID          string             `json:"eventId"`
	Items            []FinalizationItem `json:"items"`
	PaymentMethod    string             `json:"paymentMethod"`
	PaymentReference string             `json:"paymentReference,omitempty"`
	CorrelationID    string             `json:"correlationId,omitempty"`
}

// FinalizationItem is one category line inside a finalization message
type FinalizationItem struct {
	CategoryID string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}
