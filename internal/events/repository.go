package events

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Create(event *Event) error
	GetByID(id uuid.UUID) (*Event, error)
	GetWithCategories(id uuid.UUID) (*Event, error)
	GetAll(query EventListQuery) ([]Event, int64, error)
	UpdateStatus(id uuid.UUID, status EventStatus) error
	CreateCategory(category *TicketCategory) error
	GetCategory(id uuid.UUID) (*TicketCategory, error)
	GetCategoriesByEvent(eventID uuid.UUID) ([]TicketCategory, error)
	LockCategoriesForPricing(tx *gorm.DB, ids []uuid.UUID) ([]TicketCategory, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(event *Event) error {
	return r.db.Create(event).Error
}

func (r *repository) GetByID(id uuid.UUID) (*Event, error) {
	var event Event
	err := r.db.Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) GetWithCategories(id uuid.UUID) (*Event, error) {
	var event Event
	err := r.db.Preload("Categories").Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) GetAll(query EventListQuery) ([]Event, int64, error) {
	var events []Event
	var totalCount int64

	db := r.db.Model(&Event{})

	if query.Search != "" {
		searchTerm := "%" + strings.ToLower(query.Search) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(venue) LIKE ?",
			searchTerm, searchTerm, searchTerm)
	}

	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	if err := db.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 10
	}

	offset := (query.Page - 1) * query.Limit

	err := db.Order("starts_at ASC").
		Offset(offset).
		Limit(query.Limit).
		Find(&events).Error

	return events, totalCount, err
}

func (r *repository) UpdateStatus(id uuid.UUID, status EventStatus) error {
	return r.db.Model(&Event{}).Where("id = ?", id).Update("status", status).Error
}

func (r *repository) CreateCategory(category *TicketCategory) error {
	return r.db.Create(category).Error
}

func (r *repository) GetCategory(id uuid.UUID) (*TicketCategory, error) {
	var category TicketCategory
	err := r.db.Where("id = ?", id).First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) GetCategoriesByEvent(eventID uuid.UUID) ([]TicketCategory, error) {
	var categories []TicketCategory
	err := r.db.Where("event_id = ?", eventID).Order("price ASC").Find(&categories).Error
	return categories, err
}

// LockCategoriesForPricing loads the requested categories inside the caller's
// transaction with row locks held until commit, so a checkout prices against
// values no concurrent finalization can move underneath it. Rows come back in
// a deterministic order to keep lock acquisition deadlock-free.
func (r *repository) LockCategoriesForPricing(tx *gorm.DB, ids []uuid.UUID) ([]TicketCategory, error) {
	var categories []TicketCategory
	q := tx.Where("id IN ?", ids).Order("id ASC")
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}
