package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Transaction runs fn inside one database transaction
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Idempotency operations. Lock and create run inside the checkout
	// transaction, the terminal status writes run in their own.
	LockIdempotency(tx *gorm.DB, key string) (*IdempotencyRecord, error)
	CreateIdempotency(tx *gorm.DB, record *IdempotencyRecord) error
	RestartIdempotency(tx *gorm.DB, key, holdToken, fingerprint string, expiresAt time.Time) error
	CompleteIdempotency(ctx context.Context, key string, response []byte) error
	FailIdempotency(ctx context.Context, key string) error

	// Order operations
	UpsertOrder(tx *gorm.DB, order *Order) error
	UpsertOrderItem(tx *gorm.DB, item *OrderItem) error
	GetOrderInTx(tx *gorm.DB, holdToken string) (*Order, error)
	MarkOrderProcessing(ctx context.Context, id uuid.UUID) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByHoldToken(ctx context.Context, holdToken string) (*Order, error)
	GetOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// LockIdempotency takes the key's row lock for the rest of the
// transaction. Returns nil when no record exists yet.
func (r *repository) LockIdempotency(tx *gorm.DB, key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	q := tx.Where("key = ?", key)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) CreateIdempotency(tx *gorm.DB, record *IdempotencyRecord) error {
	return tx.Create(record).Error
}

// RestartIdempotency reclaims a previously failed key for a fresh attempt
func (r *repository) RestartIdempotency(tx *gorm.DB, key, holdToken, fingerprint string, expiresAt time.Time) error {
	return tx.Model(&IdempotencyRecord{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"status":              IdempotencyInProgress,
			"hold_token":          holdToken,
			"request_fingerprint": fingerprint,
			"expires_at":          expiresAt,
			"updated_at":          time.Now(),
		}).Error
}

func (r *repository) CompleteIdempotency(ctx context.Context, key string, response []byte) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&IdempotencyRecord{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"status":       IdempotencyCompleted,
			"response":     response,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (r *repository) FailIdempotency(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Model(&IdempotencyRecord{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"status":     IdempotencyFailed,
			"updated_at": time.Now(),
		}).Error
}

// UpsertOrder collapses concurrent checkouts for the same hold into one
// row, keyed on the hold token's unique constraint.
func (r *repository) UpsertOrder(tx *gorm.DB, order *Order) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hold_token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subtotal", "service_fee", "tax", "total", "currency",
			"payment_method", "payment_ref", "expires_at",
			"attendee_first_name", "attendee_last_name", "attendee_email", "attendee_phone",
			"updated_at",
		}),
	}).Create(order).Error
}

// MarkOrderProcessing records that the order's finalization message is on
// the wire. Only a pending_payment row moves, a concurrent finalizer win
// stays confirmed.
func (r *repository) MarkOrderProcessing(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, OrderStatusPendingPayment).
		Updates(map[string]interface{}{
			"status":     OrderStatusProcessing,
			"updated_at": time.Now(),
		}).Error
}

func (r *repository) UpsertOrderItem(tx *gorm.DB, item *OrderItem) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "ticket_category_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quantity", "unit_price", "line_total", "updated_at",
		}),
	}).Create(item).Error
}

// GetOrderInTx reads the canonical order row back after an upsert, a
// replayed upsert keeps the first insert's id and order number.
func (r *repository) GetOrderInTx(tx *gorm.DB, holdToken string) (*Order, error) {
	var order Order
	if err := tx.Where("hold_token = ?", holdToken).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrderByHoldToken(ctx context.Context, holdToken string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("hold_token = ?", holdToken).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int64, error) {
	var orders []Order
	var totalCount int64

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	baseQuery := r.db.WithContext(ctx).Model(&Order{}).Where("user_id = ?", userID)
	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	err := baseQuery.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}

	return orders, totalCount, nil
}
