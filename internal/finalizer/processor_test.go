package finalizer

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tixly/internal/checkout"
	"tixly/internal/events"
	"tixly/pkg/logger"
)

type fakeHoldFinalizer struct {
	calls     []string
	finalized bool
	err       error
}

func (f *fakeHoldFinalizer) FinalizeHold(ctx context.Context, token, orderID, paymentReference string) (bool, error) {
	f.calls = append(f.calls, token)
	if f.err != nil {
		return false, f.err
	}
	return f.finalized, nil
}

func setupFinalizerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:finalizer_%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(&events.TicketCategory{}, &checkout.Order{}, &checkout.OrderItem{}, &Ticket{})
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type finalizeFixture struct {
	db         *gorm.DB
	holds      *fakeHoldFinalizer
	processor  *Processor
	order      checkout.Order
	categoryID uuid.UUID
}

func newFinalizeFixture(t *testing.T) *finalizeFixture {
	t.Helper()

	db := setupFinalizerDB(t)
	eventID := uuid.New()

	category := events.TicketCategory{
		ID:            uuid.New(),
		EventID:       eventID,
		Name:          "General",
		Price:         75.00,
		Currency:      "USD",
		QuantityTotal: 100,
	}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}

	order := checkout.Order{
		ID:          uuid.New(),
		OrderNumber: "EVX-2026-ABCD1234",
		EventID:     eventID,
		HoldToken:   uuid.New().String(),
		Status:      checkout.OrderStatusProcessing,
		Subtotal:    150.00,
		Total:       150.00,
		Currency:    "USD",
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}

	holds := &fakeHoldFinalizer{finalized: true}
	return &finalizeFixture{
		db:         db,
		holds:      holds,
		processor:  NewProcessor(db, holds, logger.New()),
		order:      order,
		categoryID: category.ID,
	}
}

func (fx *finalizeFixture) message(quantity int) checkout.FinalizationMessage {
	return checkout.FinalizationMessage{
		OrderID:          fx.order.ID.String(),
		OrderNumber:      fx.order.OrderNumber,
		HoldToken:        fx.order.HoldToken,
		EventID:          fx.order.EventID.String(),
		Items:            []checkout.FinalizationItem{{CategoryID: fx.categoryID.String(), Quantity: quantity}},
		PaymentMethod:    "card",
		PaymentReference: "pay-123",
	}
}

func TestProcessMessageFinalizesOrder(t *testing.T) {
	fx := newFinalizeFixture(t)

	if err := fx.processor.ProcessMessage(context.Background(), fx.message(2)); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}

	var order checkout.Order
	if err := fx.db.First(&order, "id = ?", fx.order.ID).Error; err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if order.Status != checkout.OrderStatusConfirmed {
		t.Errorf("order status = %q, want confirmed", order.Status)
	}
	if order.PaymentStatus != checkout.PaymentStatusPaid {
		t.Errorf("payment status = %q, want paid", order.PaymentStatus)
	}
	if order.ConfirmedAt == nil {
		t.Errorf("confirmed_at not stamped")
	}

	var category events.TicketCategory
	if err := fx.db.First(&category, "id = ?", fx.categoryID).Error; err != nil {
		t.Fatalf("failed to reload category: %v", err)
	}
	if category.QuantitySold != 2 {
		t.Errorf("quantity_sold = %d, want 2", category.QuantitySold)
	}

	var tickets []Ticket
	if err := fx.db.Order("ticket_number ASC").Find(&tickets).Error; err != nil {
		t.Fatalf("failed to load tickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("tickets = %d, want 2", len(tickets))
	}
	if tickets[0].TicketNumber != "TKT-EVX-2026-ABCD1234-001" {
		t.Errorf("first ticket number = %q, want TKT-EVX-2026-ABCD1234-001", tickets[0].TicketNumber)
	}
	for _, ticket := range tickets {
		if ticket.Status != TicketStatusValid {
			t.Errorf("ticket %s status = %q, want valid", ticket.TicketNumber, ticket.Status)
		}
		if ticket.QRCodeData == "" {
			t.Errorf("ticket %s has no QR payload", ticket.TicketNumber)
		}
	}

	if len(fx.holds.calls) != 1 || fx.holds.calls[0] != fx.order.HoldToken {
		t.Errorf("hold finalize calls = %v, want [%s]", fx.holds.calls, fx.order.HoldToken)
	}
}

func TestProcessMessageReplayIsIdempotent(t *testing.T) {
	fx := newFinalizeFixture(t)
	msg := fx.message(3)

	if err := fx.processor.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("first ProcessMessage() error = %v", err)
	}
	if err := fx.processor.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("second ProcessMessage() error = %v", err)
	}

	var category events.TicketCategory
	fx.db.First(&category, "id = ?", fx.categoryID)
	if category.QuantitySold != 3 {
		t.Errorf("quantity_sold = %d after replay, want 3", category.QuantitySold)
	}

	var ticketCount int64
	fx.db.Model(&Ticket{}).Count(&ticketCount)
	if ticketCount != 3 {
		t.Errorf("tickets = %d after replay, want 3", ticketCount)
	}

	// The ledger call runs on every delivery, its script is the no-op guard
	if len(fx.holds.calls) != 2 {
		t.Errorf("hold finalize calls = %d, want 2", len(fx.holds.calls))
	}
}

func TestProcessMessageUnknownOrder(t *testing.T) {
	fx := newFinalizeFixture(t)
	msg := fx.message(1)
	msg.OrderID = uuid.New().String()

	if err := fx.processor.ProcessMessage(context.Background(), msg); err == nil {
		t.Fatalf("ProcessMessage() error = nil, want missing order error")
	}
	if len(fx.holds.calls) != 0 {
		t.Errorf("hold finalize calls = %v, want none for missing order", fx.holds.calls)
	}
}

func TestProcessMessageRetriesWhenLedgerRefuses(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.holds.finalized = false
	msg := fx.message(1)

	if err := fx.processor.ProcessMessage(context.Background(), msg); err == nil {
		t.Fatalf("ProcessMessage() error = nil, want error so the transport redelivers")
	}
	if len(fx.holds.calls) != 1 {
		t.Fatalf("hold finalize calls = %d, want 1", len(fx.holds.calls))
	}

	// The relational commit went through, the refusal only covers the ledger
	var order checkout.Order
	fx.db.First(&order, "id = ?", fx.order.ID)
	if order.Status != checkout.OrderStatusConfirmed {
		t.Errorf("order status = %q, want confirmed", order.Status)
	}

	// A redelivery finds the order confirmed and settles the ledger alone
	fx.holds.finalized = true
	if err := fx.processor.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivered ProcessMessage() error = %v", err)
	}
	if len(fx.holds.calls) != 2 {
		t.Errorf("hold finalize calls = %d after redelivery, want 2", len(fx.holds.calls))
	}
}
