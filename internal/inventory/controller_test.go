package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tixly/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubHoldService struct {
	acquireResult *AcquireResult
	acquireErr    error
	hold          *Hold
	releasable    bool
	extendResult  *ExtendResult
	snapshot      *CounterSnapshot
}

func (s *stubHoldService) AcquireHold(ctx context.Context, req HoldRequest) (*AcquireResult, error) {
	return s.acquireResult, s.acquireErr
}

func (s *stubHoldService) ClaimHold(ctx context.Context, token, orderReference string) (*ClaimResult, error) {
	return &ClaimResult{Success: true}, nil
}

func (s *stubHoldService) MarkCommitted(ctx context.Context, token, orderReference string) error {
	return nil
}

func (s *stubHoldService) ReleaseHold(ctx context.Context, token, reason string) (bool, error) {
	return s.releasable, nil
}

func (s *stubHoldService) ReleaseExpiredHold(ctx context.Context, token string) (bool, error) {
	return s.releasable, nil
}

func (s *stubHoldService) ReleaseStuckCheckout(ctx context.Context, token, reason string) (bool, error) {
	return s.releasable, nil
}

func (s *stubHoldService) FinalizeHold(ctx context.Context, token, orderID, paymentReference string) (bool, error) {
	return true, nil
}

func (s *stubHoldService) ExtendHold(ctx context.Context, token string, extendBy time.Duration) (*ExtendResult, error) {
	return s.extendResult, nil
}

func (s *stubHoldService) GetHold(ctx context.Context, token string) (*Hold, error) {
	return s.hold, nil
}

func (s *stubHoldService) SeedCounter(ctx context.Context, eventID, categoryID string, total, sold int) error {
	return nil
}

func (s *stubHoldService) Snapshot(ctx context.Context, eventID, categoryID string) (*CounterSnapshot, error) {
	return s.snapshot, nil
}

type stubQueue struct {
	placement  *QueuePlacement
	enqueueErr error
	eventID    string
	selections []HoldEntry
}

func (s *stubQueue) Enqueue(ctx context.Context, eventID string, selections []HoldEntry, requesterID, traceID string) (*QueuePlacement, error) {
	s.eventID = eventID
	s.selections = selections
	return s.placement, s.enqueueErr
}

type stubCategories struct {
	categories []events.TicketCategory
}

func (s *stubCategories) GetCategoriesByEvent(eventID uuid.UUID) ([]events.TicketCategory, error) {
	return s.categories, nil
}

type apiEnvelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func newHoldRouter(service Service, queue AdmissionQueue, categories CategoryProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api/v1")
	SetupHoldRoutes(api, NewController(service, queue, categories))
	return engine
}

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func acquireBody(eventID string) map[string]interface{} {
	return map[string]interface{}{
		"event_id": eventID,
		"selections": []map[string]interface{}{
			{"category_id": uuid.NewString(), "quantity": 2},
		},
	}
}

func TestAcquireHoldReturnsCreated(t *testing.T) {
	token := uuid.NewString()
	service := &stubHoldService{acquireResult: &AcquireResult{
		Success:        true,
		HoldToken:      token,
		ExpiresAt:      time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339),
		ExpiresAtEpoch: time.Now().Add(10 * time.Minute).Unix(),
	}}
	router := newHoldRouter(service, &stubQueue{}, &stubCategories{})

	rec := performJSON(router, http.MethodPost, "/api/v1/holds", acquireBody(uuid.NewString()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data["status"] != "acquired" {
		t.Errorf("expected acquired status, got %v", resp.Data["status"])
	}
	if resp.Data["hold_token"] != token {
		t.Errorf("expected hold token %s, got %v", token, resp.Data["hold_token"])
	}
	if resp.Data["expires_in_seconds"].(float64) < 1 {
		t.Errorf("expected positive expires_in_seconds, got %v", resp.Data["expires_in_seconds"])
	}
}

func TestAcquireHoldOverflowsToQueue(t *testing.T) {
	service := &stubHoldService{acquireResult: &AcquireResult{
		Success: false,
		Error:   ErrCodeInsufficientStock,
	}}
	queue := &stubQueue{placement: &QueuePlacement{QueueID: uuid.NewString(), Position: 4, ETASeconds: 180}}
	router := newHoldRouter(service, queue, &stubCategories{})

	eventID := uuid.NewString()
	rec := performJSON(router, http.MethodPost, "/api/v1/holds", acquireBody(eventID))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data["status"] != "queued" {
		t.Errorf("expected queued status, got %v", resp.Data["status"])
	}
	if resp.Data["queue_id"] != queue.placement.QueueID {
		t.Errorf("expected queue id %s, got %v", queue.placement.QueueID, resp.Data["queue_id"])
	}
	if resp.Data["position"].(float64) != 4 {
		t.Errorf("expected position 4, got %v", resp.Data["position"])
	}
	if queue.eventID != eventID {
		t.Errorf("expected enqueue for event %s, got %s", eventID, queue.eventID)
	}
	if len(queue.selections) != 1 || queue.selections[0].Quantity != 2 {
		t.Errorf("expected original selections forwarded, got %+v", queue.selections)
	}
}

func TestAcquireHoldRejectionIsConflict(t *testing.T) {
	service := &stubHoldService{acquireResult: &AcquireResult{
		Success: false,
		Error:   ErrCodeHoldAlreadyExists,
	}}
	router := newHoldRouter(service, &stubQueue{}, &stubCategories{})

	rec := performJSON(router, http.MethodPost, "/api/v1/holds", acquireBody(uuid.NewString()))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data["reason"] != ErrCodeHoldAlreadyExists {
		t.Errorf("expected rejection reason, got %v", resp.Data["reason"])
	}
	if resp.Data["retryable"] != true {
		t.Errorf("expected retryable rejection, got %v", resp.Data["retryable"])
	}
}

func TestAcquireHoldRequestValidation(t *testing.T) {
	service := &stubHoldService{acquireResult: &AcquireResult{Success: true}}
	router := newHoldRouter(service, &stubQueue{}, &stubCategories{})

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing event id", map[string]interface{}{
			"selections": []map[string]interface{}{{"category_id": uuid.NewString(), "quantity": 1}},
		}},
		{"no selections", map[string]interface{}{
			"event_id":   uuid.NewString(),
			"selections": []map[string]interface{}{},
		}},
		{"zero quantity", map[string]interface{}{
			"event_id":   uuid.NewString(),
			"selections": []map[string]interface{}{{"category_id": uuid.NewString(), "quantity": 0}},
		}},
		{"malformed event id", acquireBody("not-a-uuid")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := performJSON(router, http.MethodPost, "/api/v1/holds", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetHoldStatuses(t *testing.T) {
	token := uuid.NewString()

	t.Run("invalid token", func(t *testing.T) {
		router := newHoldRouter(&stubHoldService{}, &stubQueue{}, &stubCategories{})
		rec := performJSON(router, http.MethodGet, "/api/v1/holds/not-a-uuid", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing hold", func(t *testing.T) {
		router := newHoldRouter(&stubHoldService{}, &stubQueue{}, &stubCategories{})
		rec := performJSON(router, http.MethodGet, "/api/v1/holds/"+token, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("live hold", func(t *testing.T) {
		service := &stubHoldService{hold: &Hold{
			Token:     token,
			Status:    HoldStatusHeld,
			Entries:   []HoldEntry{{EventID: uuid.NewString(), CategoryID: uuid.NewString(), Quantity: 2}},
			ExpiresAt: time.Now().Add(5 * time.Minute),
		}}
		router := newHoldRouter(service, &stubQueue{}, &stubCategories{})
		rec := performJSON(router, http.MethodGet, "/api/v1/holds/"+token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp apiEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Data["status"] != string(HoldStatusHeld) {
			t.Errorf("expected held status, got %v", resp.Data["status"])
		}
	})
}

func TestReleaseHoldNotReleasable(t *testing.T) {
	router := newHoldRouter(&stubHoldService{releasable: false}, &stubQueue{}, &stubCategories{})

	rec := performJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/holds/%s/release", uuid.NewString()), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExtendHoldStatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		result   *ExtendResult
		expected int
	}{
		{"extended", &ExtendResult{Success: true, ExpiresAt: time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339)}, http.StatusOK},
		{"expired", &ExtendResult{Success: false, Error: ErrCodeHoldExpired}, http.StatusGone},
		{"missing", &ExtendResult{Success: false, Error: ErrCodeHoldNotFound}, http.StatusNotFound},
		{"wrong state", &ExtendResult{Success: false, Error: ErrCodeHoldNotExtendable}, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newHoldRouter(&stubHoldService{extendResult: tc.result}, &stubQueue{}, &stubCategories{})
			rec := performJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/holds/%s/extend", uuid.NewString()), map[string]interface{}{"extend_seconds": 120})
			if rec.Code != tc.expected {
				t.Fatalf("expected %d, got %d: %s", tc.expected, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetEventInventorySnapshotAndFallback(t *testing.T) {
	eventID := uuid.New()
	category := events.TicketCategory{
		ID:            uuid.New(),
		EventID:       eventID,
		Name:          "General",
		Price:         50,
		Currency:      "USD",
		QuantityTotal: 100,
		QuantitySold:  40,
	}

	t.Run("live counters", func(t *testing.T) {
		service := &stubHoldService{snapshot: &CounterSnapshot{Total: 100, Available: 3, Pending: 7, Sold: 90}}
		router := newHoldRouter(service, &stubQueue{}, &stubCategories{categories: []events.TicketCategory{category}})
		rec := performJSON(router, http.MethodGet, "/api/v1/inventory/"+eventID.String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp apiEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		categories := resp.Data["categories"].([]interface{})
		first := categories[0].(map[string]interface{})
		if first["available"].(float64) != 3 {
			t.Errorf("expected live available 3, got %v", first["available"])
		}
		if first["stock_status"] != string(StockStatusAlmostSoldOut) {
			t.Errorf("expected almost sold out, got %v", first["stock_status"])
		}
	})

	t.Run("catalog fallback when counter missing", func(t *testing.T) {
		router := newHoldRouter(&stubHoldService{}, &stubQueue{}, &stubCategories{categories: []events.TicketCategory{category}})
		rec := performJSON(router, http.MethodGet, "/api/v1/inventory/"+eventID.String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp apiEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		categories := resp.Data["categories"].([]interface{})
		first := categories[0].(map[string]interface{})
		if first["available"].(float64) != 60 {
			t.Errorf("expected fallback available 60, got %v", first["available"])
		}
		if first["sold"].(float64) != 40 {
			t.Errorf("expected fallback sold 40, got %v", first["sold"])
		}
	})
}
