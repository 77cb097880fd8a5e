package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string      `json:"name" gorm:"not null;size:255"`
	Description string      `json:"description" gorm:"type:text"`
	Venue       string      `json:"venue" gorm:"not null;size:255"`
	StartsAt    time.Time   `json:"starts_at" gorm:"not null"`
	Status      EventStatus `json:"status" gorm:"type:varchar(20);default:'draft'"`

	Categories []TicketCategory `json:"-" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE;"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TicketCategory is a price tier within an event. QuantitySold is the durable
// sold count and only moves forward when the finalizer confirms an order; the
// live availability view lives in the Redis ledger.
type TicketCategory struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID `json:"event_id" gorm:"type:uuid;not null;index"`
	Name          string    `json:"name" gorm:"not null;size:100"`
	Price         float64   `json:"price" gorm:"not null;check:price >= 0"`
	Currency      string    `json:"currency" gorm:"not null;size:3;default:'USD'"`
	QuantityTotal int       `json:"quantity_total" gorm:"not null;check:quantity_total > 0"`
	QuantitySold  int       `json:"quantity_sold" gorm:"default:0;check:quantity_sold >= 0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type EventResponse struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Venue       string                   `json:"venue"`
	StartsAt    time.Time                `json:"starts_at"`
	Status      EventStatus              `json:"status"`
	Categories  []TicketCategoryResponse `json:"categories,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

type TicketCategoryResponse struct {
	ID            string  `json:"id"`
	EventID       string  `json:"event_id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	QuantityTotal int     `json:"quantity_total"`
	QuantitySold  int     `json:"quantity_sold"`
}

type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=255"`
	Description string    `json:"description" binding:"max=2000"`
	Venue       string    `json:"venue" binding:"required,min=3,max=255"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
}

type CreateCategoryRequest struct {
	Name          string  `json:"name" binding:"required,min=1,max=100"`
	Price         float64 `json:"price" binding:"required,min=0"`
	Currency      string  `json:"currency" binding:"omitempty,len=3"`
	QuantityTotal int     `json:"quantity_total" binding:"required,min=1,max=1000000"`
}

type EventListQuery struct {
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Search string `form:"search"`
	Status string `form:"status" binding:"omitempty,oneof=draft on_sale closed"`
}

type PaginatedEvents struct {
	Events     []EventResponse `json:"events"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return
}

func (c *TicketCategory) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}

func (e *Event) ToResponse() EventResponse {
	resp := EventResponse{
		ID:          e.ID.String(),
		Name:        e.Name,
		Description: e.Description,
		Venue:       e.Venue,
		StartsAt:    e.StartsAt,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	for _, c := range e.Categories {
		resp.Categories = append(resp.Categories, c.ToResponse())
	}
	return resp
}

func (c *TicketCategory) ToResponse() TicketCategoryResponse {
	return TicketCategoryResponse{
		ID:            c.ID.String(),
		EventID:       c.EventID.String(),
		Name:          c.Name,
		Price:         c.Price,
		Currency:      c.Currency,
		QuantityTotal: c.QuantityTotal,
		QuantitySold:  c.QuantitySold,
	}
}

// TableName specifies the table name for GORM
func (Event) TableName() string {
	return "events"
}

func (TicketCategory) TableName() string {
	return "ticket_categories"
}
