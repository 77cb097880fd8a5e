package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	// One order per hold token, enforced at the database level so concurrent
	// checkouts for the same hold collapse into a single row
	err := db.Exec(`
		ALTER TABLE orders
		ADD CONSTRAINT IF NOT EXISTS unique_order_hold_token
		UNIQUE (hold_token);
	`).Error
	if err != nil {
		return err
	}

	// One order line per category within an order
	err = db.Exec(`
		ALTER TABLE order_items
		ADD CONSTRAINT IF NOT EXISTS unique_order_item_category
		UNIQUE (order_id, ticket_category_id);
	`).Error
	if err != nil {
		return err
	}

	// Ticket numbers are globally unique so finalization replays cannot mint duplicates
	err = db.Exec(`
		ALTER TABLE tickets
		ADD CONSTRAINT IF NOT EXISTS unique_ticket_number
		UNIQUE (ticket_number);
	`).Error
	if err != nil {
		return err
	}

	// Add index for order lookups by event
	err = db.Exec(`
		CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_orders_event_id
		ON orders (event_id);
	`).Error
	if err != nil {
		return err
	}

	// Add index for ticket lookups by order
	err = db.Exec(`
		CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_tickets_order_id
		ON tickets (order_id);
	`).Error
	if err != nil {
		return err
	}

	return nil
}
