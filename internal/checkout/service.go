package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"tixly/internal/events"
	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/pkg/logger"
)

// HoldService is the slice of the inventory service checkout needs
type HoldService interface {
	ClaimHold(ctx context.Context, token, orderReference string) (*inventory.ClaimResult, error)
	MarkCommitted(ctx context.Context, token, orderReference string) error
	ReleaseStuckCheckout(ctx context.Context, token, reason string) (bool, error)
}

// CategoryLocker loads and row-locks the categories being priced
type CategoryLocker interface {
	LockCategoriesForPricing(tx *gorm.DB, ids []uuid.UUID) ([]events.TicketCategory, error)
}

// FinalizationPublisher hands committed orders to the async finalizer
type FinalizationPublisher interface {
	Publish(ctx context.Context, msg FinalizationMessage) error
}

var (
	// ErrIdempotencyConflict means another request with the same key is mid-flight
	ErrIdempotencyConflict = errors.New("idempotent request is already being processed")

	// ErrCategoryMismatch means a requested category could not be locked for this event
	ErrCategoryMismatch = errors.New("one or more ticket categories could not be locked for checkout")

	// ErrCurrencyMismatch means the requested categories do not share a currency
	ErrCurrencyMismatch = errors.New("ticket categories in one order must share a currency")
)

// HoldClaimError carries the ledger's refusal to move a hold into checkout
type HoldClaimError struct {
	Code   string
	Result *inventory.ClaimResult
}

func (e *HoldClaimError) Error() string {
	return fmt.Sprintf("hold claim rejected: %s", e.Code)
}

// CustomerInfo identifies the attendee on the order
type CustomerInfo struct {
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone" binding:"required,min=5,max=30"`
}

// ItemRequest is one requested category line
type ItemRequest struct {
	CategoryID uuid.UUID `json:"category_id" binding:"required"`
	Quantity   int       `json:"quantity" binding:"required,min=1"`
}

// CheckoutRequest is the request to convert a claimed hold into an order
type CheckoutRequest struct {
	HoldToken        string
	EventID          uuid.UUID
	IdempotencyKey   string
	UserID           string
	Customer         CustomerInfo
	Items            []ItemRequest
	PaymentMethod    string
	PaymentReference string
}

// Totals is the priced breakdown of an order
type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	ServiceFee float64 `json:"service_fee"`
	Tax        float64 `json:"tax"`
	Total      float64 `json:"total"`
}

// CheckoutResponse is the checkout payload. The exact bytes are stored on
// the idempotency record so a replay returns the original answer.
type CheckoutResponse struct {
	OrderID       string       `json:"order_id"`
	OrderNumber   string       `json:"order_number"`
	Status        string       `json:"status"`
	Currency      string       `json:"currency"`
	Totals        Totals       `json:"totals"`
	Customer      CustomerInfo `json:"customer"`
	HoldToken     string       `json:"hold_token"`
	HoldExpiresAt string       `json:"hold_expires_at"`
}

// Service interface defines the contract for checkout business logic
type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, bool, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]Order, int64, error)
}

type service struct {
	repo       Repository
	holds      HoldService
	categories CategoryLocker
	publisher  FinalizationPublisher
	cfg        config.CheckoutConfig
	log        *logger.Logger
	sleepFn    func(time.Duration)
}

// NewService creates a new checkout service instance
func NewService(repo Repository, holds HoldService, categories CategoryLocker, publisher FinalizationPublisher, cfg config.CheckoutConfig, log *logger.Logger) Service {
	return &service{
		repo:       repo,
		holds:      holds,
		categories: categories,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		sleepFn:    time.Sleep,
	}
}

type transactionOutcome struct {
	payload *CheckoutResponse
	reused  bool
}

// Checkout converts a held reservation into a pending order. The claim on
// the hold happens before the transaction, so only one request per hold
// ever reaches the relational work. Returns the payload and whether it
// was replayed from a previous completed attempt.
func (s *service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, bool, error) {
	claim, err := s.holds.ClaimHold(ctx, req.HoldToken, req.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim hold: %w", err)
	}
	if !claim.Success {
		return nil, false, &HoldClaimError{Code: claim.Error, Result: claim}
	}

	outcome, err := s.runCheckoutTransaction(ctx, req, claim)
	if err != nil {
		return nil, false, err
	}
	if outcome.reused {
		return outcome.payload, true, nil
	}

	if err := s.commitAndPublish(ctx, req, outcome.payload); err != nil {
		return nil, false, err
	}

	s.log.LogOrderCreated(ctx, outcome.payload.OrderID, outcome.payload.OrderNumber, req.HoldToken)
	return outcome.payload, false, nil
}

// runCheckoutTransaction wraps the relational work in a retry loop for
// serialization and deadlock failures. Everything inside is idempotent,
// keyed by the Idempotency-Key row lock, so replaying an aborted attempt
// is safe.
func (s *service) runCheckoutTransaction(ctx context.Context, req CheckoutRequest, claim *inventory.ClaimResult) (*transactionOutcome, error) {
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var outcome *transactionOutcome
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome, err = s.checkoutTransaction(ctx, req, claim)
		if err == nil {
			return outcome, nil
		}
		if !isRetryableTxError(err) || attempt == maxAttempts {
			return nil, err
		}

		backoff := time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
		s.log.WarnWithContext(ctx, "Retrying checkout transaction", map[string]interface{}{
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
			"hold_token": req.HoldToken,
		})
		s.sleepFn(backoff)
	}
	return nil, err
}

func (s *service) checkoutTransaction(ctx context.Context, req CheckoutRequest, claim *inventory.ClaimResult) (*transactionOutcome, error) {
	outcome := &transactionOutcome{}

	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		record, err := s.repo.LockIdempotency(tx, req.IdempotencyKey)
		if err != nil {
			return err
		}

		now := time.Now()
		expiresAt := now.Add(24 * time.Hour)
		fingerprint := requestFingerprint(req)

		if record != nil {
			switch record.Status {
			case IdempotencyCompleted:
				if len(record.Response) > 0 {
					var payload CheckoutResponse
					if err := json.Unmarshal(record.Response, &payload); err != nil {
						return fmt.Errorf("stored checkout response is unreadable: %w", err)
					}
					outcome.payload = &payload
					outcome.reused = true
					return nil
				}
				return ErrIdempotencyConflict
			case IdempotencyInProgress:
				return ErrIdempotencyConflict
			default:
				if err := s.repo.RestartIdempotency(tx, req.IdempotencyKey, req.HoldToken, fingerprint, expiresAt); err != nil {
					return err
				}
			}
		} else {
			if err := s.repo.CreateIdempotency(tx, &IdempotencyRecord{
				Key:                req.IdempotencyKey,
				Status:             IdempotencyInProgress,
				HoldToken:          req.HoldToken,
				RequestFingerprint: fingerprint,
				ExpiresAt:          expiresAt,
			}); err != nil {
				return err
			}
		}

		categoryIDs := make([]uuid.UUID, 0, len(req.Items))
		for _, item := range req.Items {
			categoryIDs = append(categoryIDs, item.CategoryID)
		}

		categories, err := s.categories.LockCategoriesForPricing(tx, categoryIDs)
		if err != nil {
			return err
		}
		if len(categories) != len(req.Items) {
			return ErrCategoryMismatch
		}

		priced := make(map[uuid.UUID]events.TicketCategory, len(categories))
		currency := ""
		for _, cat := range categories {
			if cat.EventID != req.EventID {
				return ErrCategoryMismatch
			}
			if currency == "" {
				currency = cat.Currency
			} else if cat.Currency != currency {
				return ErrCurrencyMismatch
			}
			priced[cat.ID] = cat
		}

		var subtotal float64
		for _, item := range req.Items {
			cat, ok := priced[item.CategoryID]
			if !ok {
				return ErrCategoryMismatch
			}
			subtotal += cat.Price * float64(item.Quantity)
		}

		serviceFee := round2(subtotal * s.cfg.ServiceFeeRate)
		tax := round2((subtotal + serviceFee) * s.cfg.TaxRate)
		total := round2(subtotal + serviceFee + tax)

		var holdExpiry *time.Time
		if claim.ExpiresAt != "" {
			if parsed, parseErr := time.Parse(time.RFC3339, claim.ExpiresAt); parseErr == nil {
				holdExpiry = &parsed
			}
		}

		order := &Order{
			ID:                uuid.New(),
			OrderNumber:       generateOrderNumber(),
			EventID:           req.EventID,
			UserID:            req.UserID,
			HoldToken:         req.HoldToken,
			Status:            OrderStatusPendingPayment,
			PaymentStatus:     PaymentStatusPending,
			ExpiresAt:         holdExpiry,
			PaymentMethod:     req.PaymentMethod,
			PaymentRef:        req.PaymentReference,
			Subtotal:          subtotal,
			ServiceFee:        serviceFee,
			Tax:               tax,
			Total:             total,
			Currency:          currency,
			AttendeeFirstName: req.Customer.FirstName,
			AttendeeLastName:  req.Customer.LastName,
			AttendeeEmail:     req.Customer.Email,
			AttendeePhone:     req.Customer.Phone,
		}

		if err := s.repo.UpsertOrder(tx, order); err != nil {
			return err
		}

		// A replayed upsert keeps the first attempt's id and number
		canonical, err := s.repo.GetOrderInTx(tx, req.HoldToken)
		if err != nil {
			return err
		}

		for _, item := range req.Items {
			cat := priced[item.CategoryID]
			if err := s.repo.UpsertOrderItem(tx, &OrderItem{
				ID:               uuid.New(),
				OrderID:          canonical.ID,
				TicketCategoryID: item.CategoryID,
				Quantity:         item.Quantity,
				UnitPrice:        cat.Price,
				LineTotal:        round2(cat.Price * float64(item.Quantity)),
			}); err != nil {
				return err
			}
		}

		outcome.payload = &CheckoutResponse{
			OrderID:     canonical.ID.String(),
			OrderNumber: canonical.OrderNumber,
			Status:      OrderStatusPendingPayment,
			Currency:    currency,
			Totals: Totals{
				Subtotal:   subtotal,
				ServiceFee: serviceFee,
				Tax:        tax,
				Total:      total,
			},
			Customer:      req.Customer,
			HoldToken:     req.HoldToken,
			HoldExpiresAt: claim.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// commitAndPublish runs the post-transaction side effects: mark the hold
// committed, publish the finalization message, then store the response
// on the idempotency record. Any failure flips the record to failed and
// compensates by releasing the claimed hold back to available.
func (s *service) commitAndPublish(ctx context.Context, req CheckoutRequest, payload *CheckoutResponse) error {
	holdCommitted := false

	err := func() error {
		if err := s.holds.MarkCommitted(ctx, req.HoldToken, payload.OrderID); err != nil {
			return fmt.Errorf("failed to mark hold committed: %w", err)
		}
		holdCommitted = true

		items := make([]FinalizationItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, FinalizationItem{
				CategoryID: item.CategoryID.String(),
				Quantity:   item.Quantity,
			})
		}

		msg := FinalizationMessage{
			OrderID:          payload.OrderID,
			OrderNumber:      payload.OrderNumber,
			HoldToken:        req.HoldToken,
			EventID:          req.EventID.String(),
			Items:            items,
			PaymentMethod:    req.PaymentMethod,
			PaymentReference: req.PaymentReference,
			CorrelationID:    req.HoldToken,
		}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish finalization message: %w", err)
		}

		orderID, err := uuid.Parse(payload.OrderID)
		if err != nil {
			return err
		}
		if err := s.repo.MarkOrderProcessing(ctx, orderID); err != nil {
			return fmt.Errorf("failed to mark order processing: %w", err)
		}
		payload.Status = OrderStatusProcessing

		response, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return s.repo.CompleteIdempotency(ctx, req.IdempotencyKey, response)
	}()
	if err == nil {
		return nil
	}

	if failErr := s.repo.FailIdempotency(ctx, req.IdempotencyKey); failErr != nil {
		s.log.ErrorWithContext(ctx, "Failed to mark idempotency record failed", failErr, map[string]interface{}{
			"idempotency_key": req.IdempotencyKey,
		})
	}

	if holdCommitted {
		if _, releaseErr := s.holds.ReleaseStuckCheckout(ctx, req.HoldToken, "checkout_failed"); releaseErr != nil {
			s.log.ErrorWithContext(ctx, "Failed to roll back hold after checkout failure", releaseErr, map[string]interface{}{
				"hold_token": req.HoldToken,
			})
		}
	}

	return err
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.repo.GetOrderByID(ctx, orderID)
}

func (s *service) GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]Order, int64, error) {
	return s.repo.GetOrdersByUser(ctx, userID, limit, offset)
}

// isRetryableTxError reports whether the transaction failed on a
// serialization or deadlock SQLSTATE worth retrying.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// requestFingerprint hashes the parts of the request that determine the
// order, so a stored idempotency record can be matched against a retry.
func requestFingerprint(req CheckoutRequest) string {
	payload, _ := json.Marshal(struct {
		HoldToken string        `json:"holdToken"`
		EventID   string        `json:"eventId"`
		Items     []ItemRequest `json:"items"`
		Customer  CustomerInfo  `json:"customer"`
	}{
		HoldToken: req.HoldToken,
		EventID:   req.EventID.String(),
		Items:     req.Items,
		Customer:  req.Customer,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func generateOrderNumber() string {
	year := time.Now().Year()
	token := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("EVX-%d-%s", year, token)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
