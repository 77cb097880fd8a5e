package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"tixly/internal/inventory"
	"tixly/internal/shared/config"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Smoke test for the Redis hold ledger. Runs the full lifecycle against a
// live Redis: acquire, extend, claim, commit, finalize, then a second hold
// that gets released, and verifies the counter balances after each step.
// Uses a throwaway event so it is safe to run against a dev instance.

type StepResult struct {
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

type SmokeSuite struct {
	store      *inventory.AtomicHoldStore
	eventID    string
	categoryID string
	Results    []StepResult
}

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded .env file")
	}

	cfg := config.Load()

	fmt.Println("Starting hold ledger smoke test...")
	fmt.Println("==================================")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	fmt.Println("Redis connection: OK")

	store := inventory.NewAtomicHoldStore(client)
	if err := store.PreloadScripts(ctx); err != nil {
		log.Fatalf("Script preload failed: %v", err)
	}
	fmt.Println("Lua scripts: loaded")

	suite := &SmokeSuite{
		store:      store,
		eventID:    "smoke-" + uuid.NewString(),
		categoryID: uuid.NewString(),
	}

	ok := suite.run(ctx)
	suite.report()

	if !ok {
		os.Exit(1)
	}
	fmt.Println("\nHold ledger smoke test complete.")
}

func (s *SmokeSuite) run(ctx context.Context) bool {
	const total = 100

	if !s.step("seed counter", func() error {
		return s.store.InitCounter(ctx, s.eventID, s.categoryID, total, 0)
	}) {
		return false
	}

	// Full happy path: acquire -> extend -> claim -> commit -> finalize
	token := uuid.NewString()
	entries := []inventory.HoldEntry{{EventID: s.eventID, CategoryID: s.categoryID, Quantity: 3}}

	if !s.step("acquire hold", func() error {
		result, err := s.store.AcquireHold(ctx, token, entries, 5*time.Minute, map[string]string{"requesterId": "smoke"}, uuid.NewString())
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("acquire rejected: %s", result.Error)
		}
		return nil
	}) {
		return false
	}
	s.expectCounts(ctx, "after acquire", total-3, 3, 0)

	if !s.step("extend hold", func() error {
		result, err := s.store.ExtendHold(ctx, token, 10*time.Minute)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("extend rejected: %s", result.Error)
		}
		return nil
	}) {
		return false
	}

	orderID := uuid.NewString()
	if !s.step("claim hold", func() error {
		result, err := s.store.ClaimHold(ctx, token, orderID, 10*time.Minute)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("claim rejected: %s", result.Error)
		}
		return nil
	}) {
		return false
	}

	if !s.step("mark committed", func() error {
		return s.store.MarkCommitted(ctx, token, orderID)
	}) {
		return false
	}

	if !s.step("finalize hold", func() error {
		finalized, err := s.store.FinalizeHold(ctx, token, orderID, "smoke-payment", time.Minute)
		if err != nil {
			return err
		}
		if !finalized {
			return fmt.Errorf("finalize returned false")
		}
		return nil
	}) {
		return false
	}
	s.expectCounts(ctx, "after finalize", total-3, 0, 3)

	// Finalize replay must be a no-op success
	if !s.step("finalize replay", func() error {
		finalized, err := s.store.FinalizeHold(ctx, token, orderID, "smoke-payment", time.Minute)
		if err != nil {
			return err
		}
		if finalized {
			return fmt.Errorf("replay settled twice")
		}
		return nil
	}) {
		return false
	}
	s.expectCounts(ctx, "after replay", total-3, 0, 3)

	// Second hold gets released back to available
	token2 := uuid.NewString()
	if !s.step("acquire second hold", func() error {
		result, err := s.store.AcquireHold(ctx, token2, entries, 5*time.Minute, nil, uuid.NewString())
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("acquire rejected: %s", result.Error)
		}
		return nil
	}) {
		return false
	}

	if !s.step("release second hold", func() error {
		released, err := s.store.ReleaseHold(ctx, token2, "user_cancelled", inventory.HoldStatusCancelled, []inventory.HoldStatus{inventory.HoldStatusHeld}, time.Minute)
		if err != nil {
			return err
		}
		if !released {
			return fmt.Errorf("release returned false")
		}
		return nil
	}) {
		return false
	}
	s.expectCounts(ctx, "after release", total-3, 0, 3)

	return true
}

func (s *SmokeSuite) step(name string, fn func() error) bool {
	start := time.Now()
	err := fn()
	result := StepResult{
		Step:     name,
		Duration: time.Since(start),
		Success:  err == nil,
	}
	if err != nil {
		result.Error = err.Error()
		fmt.Printf("  FAIL %-22s %v (%v)\n", name, err, result.Duration)
	} else {
		fmt.Printf("  ok   %-22s %v\n", name, result.Duration)
	}
	s.Results = append(s.Results, result)
	return err == nil
}

func (s *SmokeSuite) expectCounts(ctx context.Context, label string, available, pending, sold int) {
	snapshot, err := s.store.GetCounterSnapshot(ctx, s.eventID, s.categoryID)
	if err != nil {
		fmt.Printf("  WARN %s: snapshot failed: %v\n", label, err)
		return
	}
	if snapshot.Available != available || snapshot.Pending != pending || snapshot.Sold != sold {
		fmt.Printf("  WARN %s: counters off, want %d/%d/%d got %d/%d/%d\n",
			label, available, pending, sold, snapshot.Available, snapshot.Pending, snapshot.Sold)
		s.Results = append(s.Results, StepResult{
			Step:    "verify " + label,
			Success: false,
			Error:   "counter mismatch",
		})
		return
	}
	fmt.Printf("       counters %s: %d available, %d pending, %d sold\n", label, snapshot.Available, snapshot.Pending, snapshot.Sold)
}

func (s *SmokeSuite) report() {
	fmt.Println("\nSUMMARY")
	fmt.Println("=======")

	passed := 0
	for _, result := range s.Results {
		if result.Success {
			passed++
		}
	}
	fmt.Printf("Steps: %d, passed: %d, failed: %d\n", len(s.Results), passed, len(s.Results)-passed)

	if data, err := json.MarshalIndent(s.Results, "", "  "); err == nil {
		if writeErr := os.WriteFile("holdsmoke_results.json", data, 0644); writeErr == nil {
			fmt.Println("Detailed results saved to holdsmoke_results.json")
		}
	}
}
