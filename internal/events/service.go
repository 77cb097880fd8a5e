package events

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEventNotFound = errors.New("event not found")
var ErrCategoryNotFound = errors.New("ticket category not found")

type Service interface {
	CreateEvent(req CreateEventRequest) (*EventResponse, error)
	GetEventByID(id uuid.UUID) (*EventResponse, error)
	GetAllEvents(query EventListQuery) (*PaginatedEvents, error)
	PublishEvent(id uuid.UUID) (*EventResponse, error)
	AddCategory(eventID uuid.UUID, req CreateCategoryRequest) (*TicketCategoryResponse, error)
	GetCategories(eventID uuid.UUID) ([]TicketCategoryResponse, error)
	GetCategory(id uuid.UUID) (*TicketCategory, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateEvent(req CreateEventRequest) (*EventResponse, error) {
	event := &Event{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Venue:       strings.TrimSpace(req.Venue),
		StartsAt:    req.StartsAt,
		Status:      EventStatusDraft,
	}

	if err := s.repo.Create(event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	resp := event.ToResponse()
	return &resp, nil
}

func (s *service) GetEventByID(id uuid.UUID) (*EventResponse, error) {
	event, err := s.repo.GetWithCategories(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	resp := event.ToResponse()
	return &resp, nil
}

func (s *service) GetAllEvents(query EventListQuery) (*PaginatedEvents, error) {
	events, totalCount, err := s.repo.GetAll(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	responses := make([]EventResponse, len(events))
	for i := range events {
		responses[i] = events[i].ToResponse()
	}

	return &PaginatedEvents{
		Events:     responses,
		TotalCount: totalCount,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: int(math.Ceil(float64(totalCount) / float64(query.Limit))),
	}, nil
}

func (s *service) PublishEvent(id uuid.UUID) (*EventResponse, error) {
	event, err := s.repo.GetWithCategories(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if len(event.Categories) == 0 {
		return nil, errors.New("cannot publish an event with no ticket categories")
	}

	if err := s.repo.UpdateStatus(id, EventStatusOnSale); err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	event.Status = EventStatusOnSale
	resp := event.ToResponse()
	return &resp, nil
}

func (s *service) AddCategory(eventID uuid.UUID, req CreateCategoryRequest) (*TicketCategoryResponse, error) {
	if _, err := s.repo.GetByID(eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	category := &TicketCategory{
		EventID:       eventID,
		Name:          strings.TrimSpace(req.Name),
		Price:         req.Price,
		Currency:      currency,
		QuantityTotal: req.QuantityTotal,
	}

	if err := s.repo.CreateCategory(category); err != nil {
		return nil, fmt.Errorf("failed to create ticket category: %w", err)
	}

	resp := category.ToResponse()
	return &resp, nil
}

func (s *service) GetCategories(eventID uuid.UUID) ([]TicketCategoryResponse, error) {
	categories, err := s.repo.GetCategoriesByEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket categories: %w", err)
	}

	responses := make([]TicketCategoryResponse, len(categories))
	for i := range categories {
		responses[i] = categories[i].ToResponse()
	}
	return responses, nil
}

func (s *service) GetCategory(id uuid.UUID) (*TicketCategory, error) {
	category, err := s.repo.GetCategory(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get ticket category: %w", err)
	}
	return category, nil
}
