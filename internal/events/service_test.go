package events

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupEventsDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:events_%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&Event{}, &TicketCategory{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newEventsService(t *testing.T) Service {
	t.Helper()
	return NewService(NewRepository(setupEventsDB(t)))
}

func TestCreateEventTrimsAndStartsDraft(t *testing.T) {
	svc := newEventsService(t)

	resp, err := svc.CreateEvent(CreateEventRequest{
		Name:        "  Summer Jam  ",
		Description: " Outdoor festival ",
		Venue:       " Riverside Park ",
		StartsAt:    time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	if resp.Name != "Summer Jam" {
		t.Errorf("expected trimmed name, got %q", resp.Name)
	}
	if resp.Venue != "Riverside Park" {
		t.Errorf("expected trimmed venue, got %q", resp.Venue)
	}
	if resp.Status != EventStatusDraft {
		t.Errorf("expected draft status, got %q", resp.Status)
	}
	if _, err := uuid.Parse(resp.ID); err != nil {
		t.Errorf("expected generated uuid, got %q", resp.ID)
	}
}

func TestGetEventByIDNotFound(t *testing.T) {
	svc := newEventsService(t)

	_, err := svc.GetEventByID(uuid.New())
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestPublishEventRequiresCategories(t *testing.T) {
	svc := newEventsService(t)

	created, err := svc.CreateEvent(CreateEventRequest{
		Name:     "Empty Event",
		Venue:    "Hall A",
		StartsAt: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	eventID := uuid.MustParse(created.ID)

	if _, err := svc.PublishEvent(eventID); err == nil {
		t.Fatal("expected publish to fail without categories")
	}

	if _, err := svc.AddCategory(eventID, CreateCategoryRequest{
		Name:          "General",
		Price:         25,
		QuantityTotal: 100,
	}); err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}

	published, err := svc.PublishEvent(eventID)
	if err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}
	if published.Status != EventStatusOnSale {
		t.Errorf("expected on_sale status, got %q", published.Status)
	}
}

func TestAddCategoryDefaultsCurrency(t *testing.T) {
	svc := newEventsService(t)

	created, err := svc.CreateEvent(CreateEventRequest{
		Name:     "Currency Event",
		Venue:    "Hall B",
		StartsAt: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	eventID := uuid.MustParse(created.ID)

	category, err := svc.AddCategory(eventID, CreateCategoryRequest{
		Name:          "VIP",
		Price:         120,
		QuantityTotal: 40,
	})
	if err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	if category.Currency != "USD" {
		t.Errorf("expected default USD currency, got %q", category.Currency)
	}

	lower, err := svc.AddCategory(eventID, CreateCategoryRequest{
		Name:          "Balcony",
		Price:         60,
		Currency:      "eur",
		QuantityTotal: 80,
	})
	if err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	if lower.Currency != "EUR" {
		t.Errorf("expected uppercased currency, got %q", lower.Currency)
	}
}

func TestAddCategoryUnknownEvent(t *testing.T) {
	svc := newEventsService(t)

	_, err := svc.AddCategory(uuid.New(), CreateCategoryRequest{
		Name:          "Ghost",
		Price:         10,
		QuantityTotal: 5,
	})
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestGetAllEventsSearchAndPagination(t *testing.T) {
	svc := newEventsService(t)

	names := []string{"Jazz Night", "Jazz Brunch", "Rock Evening"}
	for i, name := range names {
		if _, err := svc.CreateEvent(CreateEventRequest{
			Name:     name,
			Venue:    "Main Stage",
			StartsAt: time.Now().Add(time.Duration(i+1) * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	page, err := svc.GetAllEvents(EventListQuery{Search: "jazz"})
	if err != nil {
		t.Fatalf("GetAllEvents failed: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("expected 2 jazz events, got %d", page.TotalCount)
	}

	paged, err := svc.GetAllEvents(EventListQuery{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("GetAllEvents failed: %v", err)
	}
	if len(paged.Events) != 2 {
		t.Errorf("expected 2 events on page, got %d", len(paged.Events))
	}
	if paged.TotalCount != 3 {
		t.Errorf("expected total count 3, got %d", paged.TotalCount)
	}
	if paged.TotalPages != 2 {
		t.Errorf("expected 2 total pages, got %d", paged.TotalPages)
	}
	// Soonest event first
	if paged.Events[0].Name != "Jazz Night" {
		t.Errorf("expected events ordered by start time, got %q first", paged.Events[0].Name)
	}
}

func TestGetCategoryNotFound(t *testing.T) {
	svc := newEventsService(t)

	_, err := svc.GetCategory(uuid.New())
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}
