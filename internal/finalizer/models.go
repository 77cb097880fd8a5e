package finalizer

import (
	"time"

	"github.com/google/uuid"
)

// Ticket status values
const (
	TicketStatusValid = "valid"
	TicketStatusUsed  = "used"
	TicketStatusVoid  = "void"
)

// Ticket is the admission artifact minted when an order is finalized.
// Ticket numbers are derived from the order number, so a replayed
// finalization regenerates the same numbers and the unique constraint
// folds the duplicates away.
type Ticket struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TicketNumber     string    `gorm:"size:60;uniqueIndex:unique_ticket_number;not null" json:"ticket_number"`
	OrderID          uuid.UUID `gorm:"type:uuid;index;not null" json:"order_id"`
	EventID          uuid.UUID `gorm:"type:uuid;index;not null" json:"event_id"`
	TicketCategoryID uuid.UUID `gorm:"type:uuid;not null" json:"ticket_category_id"`
	QRCodeData       string    `gorm:"size:255" json:"qr_code_data"`
	Status           string    `gorm:"type:varchar(20);default:'valid'" json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName sets the table name for Ticket
func (Ticket) TableName() string {
	return "tickets"
}
