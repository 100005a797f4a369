package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestReservationServiceConcurrentCreateOnPostgres(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationReservationService(pool)

	date := integrationDate(t)
	t.Cleanup(func() { cleanupReservations(t, ctx, pool, date) })

	const attempts = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   []string
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := CreateReservationInput{
				SlotRequest: SlotRequest{
					Resource:        models.ResourceFutbol,
					Date:            date,
					StartTime:       "14:00",
					DurationMinutes: 90,
				},
				CustomerName:  fmt.Sprintf("Concurrent %d", i),
				CustomerPhone: "+54 11 4000 0000",
				Amount:        42000,
			}
			reservation, err := service.Create(ctx, input)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created = append(created, reservation.ID)
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("Create: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(created) != 1 || conflicts != attempts-1 {
		t.Fatalf("expected exactly one reservation and %d conflicts, got %v and %d", attempts-1, created, conflicts)
	}

	available, err := service.CheckAvailability(ctx, SlotRequest{
		Resource:        models.ResourceFutbol,
		Date:            date,
		StartTime:       "15:00",
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if available {
		t.Fatalf("expected overlapping slot to be unavailable")
	}
}

func TestReservationServiceTransitionAndRefundOnPostgres(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationReservationService(pool)

	date := integrationDate(t)
	t.Cleanup(func() { cleanupReservations(t, ctx, pool, date) })

	email := "cliente@example.com"
	reservation, err := service.Create(ctx, CreateReservationInput{
		SlotRequest: SlotRequest{
			Resource:        models.ResourceTenis,
			Date:            date,
			StartTime:       "10:00",
			DurationMinutes: 60,
		},
		CustomerName:  "Integration Tenis",
		CustomerPhone: "+54 11 4000 0001",
		CustomerEmail: &email,
		Amount:        18000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := service.Transition(ctx, reservation.ID, models.PaymentStatusCompleted); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := service.Transition(ctx, reservation.ID, models.PaymentStatusFailed); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}

	refunded, err := service.AttachRefund(ctx, reservation.ID, 9000, "lluvia", "admin")
	if err != nil {
		t.Fatalf("AttachRefund: %v", err)
	}
	if refunded.PaymentStatus != models.PaymentStatusCompleted || refunded.Refund == nil || refunded.Refund.Amount != 9000 {
		t.Fatalf("unexpected refunded reservation: %+v", refunded)
	}
	if _, err := service.AttachRefund(ctx, reservation.ID, 100, "again", "admin"); !errors.Is(err, ErrRefundExists) {
		t.Fatalf("expected ErrRefundExists, got %v", err)
	}

	detail, err := service.Get(ctx, reservation.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if detail.CustomerEmail == nil || *detail.CustomerEmail != email {
		t.Fatalf("expected customer email to round-trip, got %v", detail.CustomerEmail)
	}
	if detail.Date != date || detail.StartTime != "10:00" {
		t.Fatalf("expected %s 10:00, got %s %s", date, detail.Date, detail.StartTime)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationReservationService(pool *pgxpool.Pool) *ReservationService {
	return NewReservationService(
		pool,
		NewSlotResolver(SystemClock, time.UTC, nil),
		repository.NewReservationRepository(pool),
		repository.NewTimeBlockRepository(pool),
		repository.NewTransactionRepository(pool),
		SystemClock,
		zerolog.Nop(),
	)
}

// integrationDate picks a far future day unique to this run so parallel
// packages do not collide on the same slots.
func integrationDate(t *testing.T) string {
	t.Helper()
	offset := time.Now().UnixNano() % 3000
	return time.Date(2035, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(offset)).Format("2006-01-02")
}

func cleanupReservations(t *testing.T, ctx context.Context, pool *pgxpool.Pool, date string) {
	t.Helper()

	if _, err := pool.Exec(ctx, "DELETE FROM transactions WHERE reservation_id IN (SELECT id FROM reservations WHERE date = $1::date)", date); err != nil {
		t.Fatalf("cleanup transactions: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM reservations WHERE date = $1::date", date); err != nil {
		t.Fatalf("cleanup reservations: %v", err)
	}
}
