package finalizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tixly/internal/checkout"
	"tixly/internal/events"
	"tixly/pkg/logger"
)

// HoldFinalizer is the slice of the inventory service the processor needs
type HoldFinalizer interface {
	FinalizeHold(ctx context.Context, token, orderID, paymentReference string) (bool, error)
}

// Processor applies one finalization message: confirm the order row,
// move sold counts, mint tickets, then settle the counter ledger.
type Processor struct {
	db    *gorm.DB
	holds HoldFinalizer
	log   *logger.Logger
}

// NewProcessor creates a new finalization processor
func NewProcessor(db *gorm.DB, holds HoldFinalizer, log *logger.Logger) *Processor {
	return &Processor{
		db:    db,
		holds: holds,
		log:   log,
	}
}

// ProcessMessage handles a finalization message end to end. Every step is
// replay safe: the order row check short-circuits the relational work,
// ticket numbers are deterministic, and the ledger call is a no-op on an
// already finalized hold. Returning an error asks the transport to retry.
func (p *Processor) ProcessMessage(ctx context.Context, msg checkout.FinalizationMessage) error {
	orderID, err := uuid.Parse(msg.OrderID)
	if err != nil {
		return fmt.Errorf("finalization message carries a bad order id: %w", err)
	}

	alreadyConfirmed := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order checkout.Order
		q := tx.Where("id = ?", orderID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&order).Error; err != nil {
			return fmt.Errorf("order %s not found: %w", msg.OrderID, err)
		}

		if order.Confirmed() {
			alreadyConfirmed = true
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":         checkout.OrderStatusConfirmed,
			"payment_status": checkout.PaymentStatusPaid,
			"confirmed_at":   now,
			"updated_at":     now,
		}
		if msg.PaymentReference != "" {
			updates["payment_ref"] = msg.PaymentReference
		}
		if err := tx.Model(&checkout.Order{}).Where("id = ?", orderID).Updates(updates).Error; err != nil {
			return err
		}

		for _, item := range msg.Items {
			err := tx.Model(&events.TicketCategory{}).
				Where("id = ?", item.CategoryID).
				Updates(map[string]interface{}{
					"quantity_sold": gorm.Expr("quantity_sold + ?", item.Quantity),
					"updated_at":    now,
				}).Error
			if err != nil {
				return err
			}
		}

		return p.mintTickets(tx, &order, msg)
	})
	if err != nil {
		return err
	}

	// Settle the counter ledger even on a relational replay, a crash
	// between the commit above and this call would otherwise leave the
	// pending count stuck forever.
	finalized, err := p.holds.FinalizeHold(ctx, msg.HoldToken, msg.OrderID, msg.PaymentReference)
	if err != nil {
		return fmt.Errorf("failed to finalize hold %s: %w", msg.HoldToken, err)
	}
	if !finalized {
		// The relational side is committed, so a redelivery lands on the
		// already-confirmed branch and retries only this ledger call.
		return fmt.Errorf("ledger refused to finalize hold %s for order %s", msg.HoldToken, msg.OrderID)
	}

	if alreadyConfirmed {
		p.log.InfoWithContext(ctx, "Order already confirmed, relational work skipped", map[string]interface{}{
			"order_id": msg.OrderID,
		})
		return nil
	}

	ticketCount := 0
	for _, item := range msg.Items {
		ticketCount += item.Quantity
	}
	p.log.LogOrderFinalized(ctx, msg.OrderID, ticketCount)
	return nil
}

// mintTickets inserts one ticket per purchased seat. Numbers are derived
// from the order number and line position, replays collide on the unique
// ticket number and are dropped.
func (p *Processor) mintTickets(tx *gorm.DB, order *checkout.Order, msg checkout.FinalizationMessage) error {
	seq := 0
	for _, item := range msg.Items {
		categoryID, err := uuid.Parse(item.CategoryID)
		if err != nil {
			return fmt.Errorf("finalization item carries a bad category id: %w", err)
		}

		for i := 0; i < item.Quantity; i++ {
			seq++
			ticketNumber := fmt.Sprintf("TKT-%s-%03d", order.OrderNumber, seq)
			ticket := Ticket{
				ID:               uuid.New(),
				TicketNumber:     ticketNumber,
				OrderID:          order.ID,
				EventID:          order.EventID,
				TicketCategoryID: categoryID,
				QRCodeData:       qrCodeData(ticketNumber, order.ID.String()),
				Status:           TicketStatusValid,
			}

			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "ticket_number"}},
				DoNothing: true,
			}).Create(&ticket).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// qrCodeData derives the scannable payload for a ticket. Deterministic so
// reminted tickets verify against the same code.
func qrCodeData(ticketNumber, orderID string) string {
	sum := sha256.Sum256([]byte(ticketNumber + ":" + orderID))
	return hex.EncodeToString(sum[:])
}
