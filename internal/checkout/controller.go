package checkout

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tixly/internal/inventory"
	"tixly/internal/shared/utils/response"
)

// Controller handles checkout HTTP requests
type Controller interface {
	Checkout(c *gin.Context)
	GetOrder(c *gin.Context)
	GetUserOrders(c *gin.Context)
}

type controller struct {
	service Service
}

// NewController creates a new checkout controller
func NewController(service Service) Controller {
	return &controller{service: service}
}

// PaymentRequest names the payment instrument for the order
type PaymentRequest struct {
	Method    string `json:"method" binding:"required,max=50"`
	Reference string `json:"reference" binding:"omitempty,max=100"`
}

// CheckoutHTTPRequest is the wire shape of a checkout call
type CheckoutHTTPRequest struct {
	HoldToken string         `json:"hold_token" binding:"required,uuid"`
	EventID   string         `json:"event_id" binding:"required,uuid"`
	Customer  CustomerInfo   `json:"customer" binding:"required"`
	Items     []ItemRequest  `json:"items" binding:"required,min=1,dive"`
	Payment   PaymentRequest `json:"payment" binding:"required"`
}

// Checkout converts a hold into an order. Requires an Idempotency-Key
// header, retried requests with the same key replay the first answer.
func (ctrl *controller) Checkout(c *gin.Context) {
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		response.Error(c, http.StatusBadRequest, "Missing Idempotency-Key header", nil)
		return
	}

	var req CheckoutHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid event ID", err.Error())
		return
	}

	userID := ""
	if id, exists := c.Get("user_id"); exists {
		if s, ok := id.(string); ok {
			userID = s
		}
	}

	payload, reused, err := ctrl.service.Checkout(c.Request.Context(), CheckoutRequest{
		HoldToken:        req.HoldToken,
		EventID:          eventID,
		IdempotencyKey:   idempotencyKey,
		UserID:           userID,
		Customer:         req.Customer,
		Items:            req.Items,
		PaymentMethod:    req.Payment.Method,
		PaymentReference: req.Payment.Reference,
	})
	if err != nil {
		ctrl.respondCheckoutError(c, err)
		return
	}

	if reused {
		response.Success(c, http.StatusOK, "Checkout already completed", payload)
		return
	}
	response.Success(c, http.StatusAccepted, "Checkout accepted", payload)
}

func (ctrl *controller) respondCheckoutError(c *gin.Context, err error) {
	var claimErr *HoldClaimError
	if errors.As(err, &claimErr) {
		switch claimErr.Code {
		case inventory.ErrCodeHoldExpired:
			response.Error(c, http.StatusGone, "Hold expired before checkout", claimErr.Result)
		case inventory.ErrCodeHoldNotFound:
			response.Error(c, http.StatusNotFound, "Hold not found", claimErr.Result)
		default:
			response.Error(c, http.StatusConflict, "Hold cannot enter checkout", claimErr.Result)
		}
		return
	}

	switch {
	case errors.Is(err, ErrIdempotencyConflict):
		response.Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, ErrCategoryMismatch), errors.Is(err, ErrCurrencyMismatch):
		response.Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		response.Error(c, http.StatusInternalServerError, "Checkout failed", err.Error())
	}
}

// GetOrder returns one order with its items
func (ctrl *controller) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid order ID", err.Error())
		return
	}

	order, err := ctrl.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, http.StatusNotFound, "Order not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "Failed to get order", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Order retrieved", order)
}

// GetUserOrders lists the authenticated user's orders
func (ctrl *controller) GetUserOrders(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	limit := 10
	offset := 0
	if v, err := parsePositiveQuery(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := parsePositiveQuery(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}

	orders, total, err := ctrl.service.GetUserOrders(c.Request.Context(), userID.(string), limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to get orders", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Orders retrieved", gin.H{
		"orders": orders,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func parsePositiveQuery(raw string) (int, error) {
	if raw == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(raw)
}
