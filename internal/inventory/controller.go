package inventory

import (
	"context"
	"net/http"
	"time"

	"tixly/internal/events"
	"tixly/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// QueuePlacement is the admission queue's answer when an acquire overflows
type QueuePlacement struct {
	QueueID    string
	Position   int
	ETASeconds int
}

// AdmissionQueue absorbs acquire attempts that failed on stock. Implemented
// by the admission package.
type AdmissionQueue interface {
	Enqueue(ctx context.Context, eventID string, selections []HoldEntry, requesterID, traceID string) (*QueuePlacement, error)
}

// CategoryProvider supplies the catalog rows behind an inventory snapshot
type CategoryProvider interface {
	GetCategoriesByEvent(eventID uuid.UUID) ([]events.TicketCategory, error)
}

type Controller interface {
	AcquireHold(c *gin.Context)
	GetHold(c *gin.Context)
	ReleaseHold(c *gin.Context)
	ExtendHold(c *gin.Context)
	GetEventInventory(c *gin.Context)
}

type controller struct {
	service    Service
	queue      AdmissionQueue
	categories CategoryProvider
	validator  *validator.Validate
}

func NewController(service Service, queue AdmissionQueue, categories CategoryProvider) Controller {
	return &controller{
		service:    service,
		queue:      queue,
		categories: categories,
		validator:  validator.New(),
	}
}

func correlationID(c *gin.Context) string {
	return c.GetHeader("X-Correlation-ID")
}

func requesterID(c *gin.Context, fallback string) string {
	if userID, exists := c.Get("user_id"); exists {
		if s, ok := userID.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// AcquireHold attempts to pin inventory. On stock overflow the buyer is
// placed into the admission queue instead of being turned away.
func (ctrl *controller) AcquireHold(c *gin.Context) {
	var req AcquireHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid hold request payload", nil, err.Error())
		return
	}

	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	corrID := correlationID(c)
	requester := requesterID(c, req.RequesterID)

	entries := make([]HoldEntry, len(req.Selections))
	for i, sel := range req.Selections {
		entries[i] = HoldEntry{
			EventID:    req.EventID,
			CategoryID: sel.CategoryID,
			Quantity:   sel.Quantity,
		}
	}

	result, err := ctrl.service.AcquireHold(c.Request.Context(), HoldRequest{
		EventID:     req.EventID,
		RequesterID: requester,
		TraceID:     corrID,
		Entries:     entries,
	})
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, err.Error(), nil, nil)
		return
	}

	if result.Success {
		expiresIn := int(result.ExpiresAtEpoch - time.Now().Unix())
		if expiresIn < 1 {
			expiresIn = 1
		}
		response.RespondJSON(c, "success", http.StatusCreated, "Hold acquired", HoldAttemptResponse{
			Status:           "acquired",
			HoldID:           result.HoldToken,
			HoldToken:        result.HoldToken,
			ExpiresAt:        result.ExpiresAt,
			ExpiresInSeconds: expiresIn,
			CorrelationID:    corrID,
		}, nil)
		return
	}

	if result.Error == ErrCodeInsufficientStock {
		placement, err := ctrl.queue.Enqueue(c.Request.Context(), req.EventID, entries, requester, corrID)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusInternalServerError, "Failed to join admission queue", nil, err.Error())
			return
		}
		response.RespondJSON(c, "success", http.StatusAccepted, "Event is busy, you are in the queue", HoldAttemptResponse{
			Status:            "queued",
			QueueID:           placement.QueueID,
			Position:          placement.Position,
			ETASeconds:        placement.ETASeconds,
			RetryAfterSeconds: 5,
			CorrelationID:     corrID,
		}, nil)
		return
	}

	detail := ""
	if result.CategoryID != "" {
		detail = "category:" + result.CategoryID
	}
	response.RespondJSON(c, "error", http.StatusConflict, "Hold attempt rejected", HoldAttemptResponse{
		Status:        "rejected",
		Reason:        result.Error,
		Detail:        detail,
		Retryable:     result.Error == ErrCodeHoldAlreadyExists,
		CorrelationID: corrID,
	}, nil)
}

func (ctrl *controller) GetHold(c *gin.Context) {
	token := c.Param("token")
	if _, err := uuid.Parse(token); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid hold token", nil, nil)
		return
	}

	hold, err := ctrl.service.GetHold(c.Request.Context(), token)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}
	if hold == nil {
		response.RespondJSON(c, "error", http.StatusNotFound, "Hold not found", nil, nil)
		return
	}

	resp := HoldStatusResponse{
		HoldToken:      hold.Token,
		Status:         hold.Status,
		Entries:        hold.Entries,
		OrderReference: hold.OrderReference,
	}
	if !hold.ExpiresAt.IsZero() {
		resp.ExpiresAt = hold.ExpiresAt.Format(time.RFC3339)
	}

	response.RespondJSON(c, "success", http.StatusOK, "Hold retrieved", resp, nil)
}

func (ctrl *controller) ReleaseHold(c *gin.Context) {
	token := c.Param("token")
	if _, err := uuid.Parse(token); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid hold token", nil, nil)
		return
	}

	var req ReleaseHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "user_cancelled"
	}

	released, err := ctrl.service.ReleaseHold(c.Request.Context(), token, reason)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}
	if !released {
		response.RespondJSON(c, "error", http.StatusConflict, "Hold is not releasable", nil, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Hold released", gin.H{"hold_token": token}, nil)
}

func (ctrl *controller) ExtendHold(c *gin.Context) {
	token := c.Param("token")
	if _, err := uuid.Parse(token); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid hold token", nil, nil)
		return
	}

	var req ExtendHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	result, err := ctrl.service.ExtendHold(c.Request.Context(), token, time.Duration(req.ExtendSeconds)*time.Second)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}
	if !result.Success {
		statusCode := http.StatusConflict
		if result.Error == ErrCodeHoldNotFound {
			statusCode = http.StatusNotFound
		}
		if result.Error == ErrCodeHoldExpired {
			statusCode = http.StatusGone
		}
		response.RespondJSON(c, "error", statusCode, "Hold could not be extended", gin.H{"reason": result.Error}, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Hold extended", HoldExtendResponse{
		HoldToken: token,
		ExpiresAt: result.ExpiresAt,
	}, nil)
}

// GetEventInventory returns the live counter view for every category of an
// event, bucketed into storefront stock statuses.
func (ctrl *controller) GetEventInventory(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid event ID", nil, nil)
		return
	}

	categories, err := ctrl.categories.GetCategoriesByEvent(eventID)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusInternalServerError, err.Error(), nil, nil)
		return
	}

	resp := EventInventoryResponse{EventID: eventID.String()}
	for _, category := range categories {
		item := CategoryInventoryResponse{
			CategoryID: category.ID.String(),
			Name:       category.Name,
			Price:      category.Price,
			Currency:   category.Currency,
		}

		snapshot, err := ctrl.service.Snapshot(c.Request.Context(), eventID.String(), category.ID.String())
		if err != nil {
			response.RespondJSON(c, "error", http.StatusInternalServerError, err.Error(), nil, nil)
			return
		}

		if snapshot != nil {
			item.Total = snapshot.Total
			item.Available = snapshot.Available
			item.Pending = snapshot.Pending
			item.Sold = snapshot.Sold
		} else {
			// Counter never seeded, fall back to the durable catalog view
			item.Total = category.QuantityTotal
			item.Available = category.QuantityTotal - category.QuantitySold
			item.Sold = category.QuantitySold
		}
		item.StockStatus = DeriveStockStatus(item.Available, item.Total)

		resp.Categories = append(resp.Categories, item)
	}

	response.RespondJSON(c, "success", http.StatusOK, "Inventory retrieved", resp, nil)
}
