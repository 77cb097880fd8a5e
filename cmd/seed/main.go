package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"tixly/internal/events"
	"tixly/internal/inventory"
	"tixly/internal/shared/config"
	"tixly/internal/shared/database"

	"github.com/google/uuid"
)

type Seeder struct {
	db    *database.DB
	store *inventory.AtomicHoldStore
}

func main() {
	fmt.Println("Starting Tixly database seeder...")

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db.GetPostgreSQL()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seeder := &Seeder{
		db:    db,
		store: inventory.NewAtomicHoldStore(db.GetRedisClient()),
	}

	// Clean database
	fmt.Println("\nCleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("Database cleaned")

	// Seed data
	fmt.Println("\nSeeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("Database seeded")

	fmt.Println("\nSeeding completed. Database is ready for testing.")
}

// CleanDatabase truncates all tables in the correct order (respecting foreign key constraints)
func (s *Seeder) CleanDatabase() error {
	// Delete in reverse dependency order
	tables := []string{
		"tickets",
		"order_items",
		"orders",
		"api_idempotency",
		"ticket_categories",
		"events",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds events with categories and initializes the Redis counters
func (s *Seeder) SeedAll() error {
	ctx := context.Background()

	// Clear Redis first so counters start from the relational truth
	if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
		log.Printf("Warning: failed to clear Redis: %v", err)
	}

	eventIDs, err := s.SeedEvents()
	if err != nil {
		return fmt.Errorf("failed to seed events: %w", err)
	}

	if err := s.SeedCounters(ctx, eventIDs); err != nil {
		return fmt.Errorf("failed to seed inventory counters: %w", err)
	}

	return nil
}

// SeedEvents creates sample events with ticket categories
func (s *Seeder) SeedEvents() ([]uuid.UUID, error) {
	fmt.Println("  Seeding events...")

	var eventIDs []uuid.UUID

	eventsData := []struct {
		name        string
		description string
		venue       string
		daysFromNow int
		categories  []struct {
			name     string
			price    float64
			quantity int
		}
	}{
		{
			name:        "Tech Conference 2026",
			description: "Annual technology conference featuring the latest innovations and industry leaders.",
			venue:       "Tech Hub Convention Center",
			daysFromNow: 30,
			categories: []struct {
				name     string
				price    float64
				quantity int
			}{
				{"VIP", 300.0, 50},
				{"General", 150.0, 500},
			},
		},
		{
			name:        "Classical Music Evening",
			description: "An elegant evening of classical music performed by renowned musicians.",
			venue:       "Grand Opera House",
			daysFromNow: 45,
			categories: []struct {
				name     string
				price    float64
				quantity int
			}{
				{"Premium", 144.0, 120},
				{"Standard", 80.0, 400},
			},
		},
		{
			name:        "Startup Pitch Night",
			description: "Watch promising startups pitch their ideas to investors and industry experts.",
			venue:       "Innovation Center",
			daysFromNow: 15,
			categories: []struct {
				name     string
				price    float64
				quantity int
			}{
				{"Front Row", 75.0, 40},
				{"General", 50.0, 200},
			},
		},
		{
			name:        "Food & Wine Festival",
			description: "A delightful festival celebrating local cuisine and fine wines.",
			venue:       "Central Park Pavilion",
			daysFromNow: 60,
			categories: []struct {
				name     string
				price    float64
				quantity int
			}{
				{"Tasting Pass", 120.0, 300},
				{"Entry", 60.0, 1000},
			},
		},
	}

	for _, eventData := range eventsData {
		event := events.Event{
			ID:          uuid.New(),
			Name:        eventData.name,
			Description: eventData.description,
			Venue:       eventData.venue,
			StartsAt:    time.Now().AddDate(0, 0, eventData.daysFromNow),
			Status:      events.EventStatusOnSale,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		if err := s.db.PostgreSQL.Create(&event).Error; err != nil {
			return nil, fmt.Errorf("failed to create event %s: %w", event.Name, err)
		}

		eventIDs = append(eventIDs, event.ID)
		fmt.Printf("    Created event: %s\n", event.Name)

		for _, categoryData := range eventData.categories {
			category := events.TicketCategory{
				ID:            uuid.New(),
				EventID:       event.ID,
				Name:          categoryData.name,
				Price:         categoryData.price,
				Currency:      "USD",
				QuantityTotal: categoryData.quantity,
				QuantitySold:  0,
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			}

			if err := s.db.PostgreSQL.Create(&category).Error; err != nil {
				return nil, fmt.Errorf("failed to create category %s: %w", category.Name, err)
			}

			fmt.Printf("      Created category: %s (%d seats at %.2f)\n",
				category.Name, category.QuantityTotal, category.Price)
		}
	}

	return eventIDs, nil
}

// SeedCounters initializes the Redis inventory counters from the relational rows
func (s *Seeder) SeedCounters(ctx context.Context, eventIDs []uuid.UUID) error {
	fmt.Println("  Seeding inventory counters...")

	for _, eventID := range eventIDs {
		var categories []events.TicketCategory
		if err := s.db.PostgreSQL.Where("event_id = ?", eventID).Find(&categories).Error; err != nil {
			return fmt.Errorf("failed to fetch categories: %w", err)
		}

		for _, category := range categories {
			if err := s.store.InitCounter(ctx, eventID.String(), category.ID.String(), category.QuantityTotal, category.QuantitySold); err != nil {
				return fmt.Errorf("failed to init counter for category %s: %w", category.Name, err)
			}
			fmt.Printf("    Counter ready: %s / %s (%d available)\n",
				eventID, category.Name, category.QuantityTotal-category.QuantitySold)
		}
	}

	return nil
}
