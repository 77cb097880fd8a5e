package database

import (
	"tixly/internal/checkout"
	"tixly/internal/events"
	"tixly/internal/finalizer"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&events.Event{},
		&events.TicketCategory{},
		&checkout.IdempotencyRecord{},
		&checkout.Order{},
		&checkout.OrderItem{},
		&finalizer.Ticket{},
	)
}
