package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type reservationStore interface {
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	List(ctx context.Context, filter repository.ReservationListFilter) ([]models.Reservation, error)
	ListActiveBetween(ctx context.Context, resource models.Resource, fromDate, toDate string) ([]models.Reservation, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)
	UpdateStatusIfCurrent(ctx context.Context, id, currentStatus, nextStatus string, note *string) (*models.Reservation, error)
	AttachRefundIfCompleted(ctx context.Context, id string, input repository.AttachRefundInput) (*models.Reservation, error)
}

type blockReader interface {
	ListBetween(ctx context.Context, resource models.Resource, fromDate, toDate string) ([]models.TimeBlock, error)
}

type blockWriter interface {
	blockReader
	Create(ctx context.Context, input repository.CreateTimeBlockInput) (*models.TimeBlock, error)
}

type transactionReader interface {
	GetByReservationID(ctx context.Context, reservationID string) (*models.Transaction, error)
	ListByReservationIDs(ctx context.Context, reservationIDs []string) (map[string]models.Transaction, error)
}

type activeReservationReader interface {
	ListActiveBetween(ctx context.Context, resource models.Resource, fromDate, toDate string) ([]models.Reservation, error)
}

type bookingWriter interface {
	activeReservationReader
	Create(ctx context.Context, input repository.CreateReservationInput) (*models.Reservation, error)
}

// bookingLocker runs fn inside one datastore transaction that holds the
// booking lock for resource until it commits. Bookings and time blocks for the
// resource are both written under it.
type bookingLocker interface {
	WithBookingLock(
		ctx context.Context,
		resource models.Resource,
		fn func(reservations bookingWriter, blocks blockWriter) error,
	) error
}

type pgBookingLocker struct {
	db *pgxpool.Pool
}

func (l pgBookingLocker) WithBookingLock(
	ctx context.Context,
	resource models.Resource,
	fn func(reservations bookingWriter, blocks blockWriter) error,
) error {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "reservation:"+string(resource)); err != nil {
		return err
	}
	if err := fn(repository.NewReservationRepository(tx), repository.NewTimeBlockRepository(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type ReservationService struct {
	resolver        *SlotResolver
	locker          bookingLocker
	reservationRepo reservationStore
	timeBlockRepo   blockReader
	transactionRepo transactionReader
	clock           Clock
	logger          zerolog.Logger
}

func NewReservationService(
	db *pgxpool.Pool,
	resolver *SlotResolver,
	reservationRepo *repository.ReservationRepository,
	timeBlockRepo *repository.TimeBlockRepository,
	transactionRepo *repository.TransactionRepository,
	clock Clock,
	logger zerolog.Logger,
) *ReservationService {
	if clock == nil {
		clock = SystemClock
	}
	return &ReservationService{
		resolver:        resolver,
		locker:          pgBookingLocker{db: db},
		reservationRepo: reservationRepo,
		timeBlockRepo:   timeBlockRepo,
		transactionRepo: transactionRepo,
		clock:           clock,
		logger:          logger,
	}
}

type CreateReservationInput struct {
	SlotRequest
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
	Amount        float64
}

func (s *ReservationService) CheckAvailability(ctx context.Context, req SlotRequest) (bool, error) {
	slot, err := s.resolver.Validate(req)
	if err != nil {
		return false, err
	}
	reservations, blocks, err := s.occupancy(ctx, s.reservationRepo, s.timeBlockRepo, req.Resource, req.Date)
	if err != nil {
		return false, err
	}
	return s.resolver.IsAvailable(slot, reservations, blocks), nil
}

// DaySlots reports every grid start on date for the given duration. Starts
// that are already in the past are reported as unavailable.
func (s *ReservationService) DaySlots(
	ctx context.Context,
	resource models.Resource,
	date string,
	durationMinutes int,
) ([]SlotAvailability, error) {
	if !resource.Valid() {
		return nil, invalidRequest("unknown resource %q", resource)
	}
	if durationMinutes <= 0 || durationMinutes > maxDurationMinutes {
		return nil, invalidRequest("duration must be between 1 and %d minutes", maxDurationMinutes)
	}

	reservations, blocks, err := s.occupancy(ctx, s.reservationRepo, s.timeBlockRepo, resource, date)
	if err != nil {
		return nil, err
	}

	grid := s.resolver.Grid()
	slots := make([]SlotAvailability, 0, len(grid))
	for _, start := range grid {
		slot, err := s.resolver.Validate(SlotRequest{
			Resource:        resource,
			Date:            date,
			StartTime:       start,
			DurationMinutes: durationMinutes,
		})
		available := err == nil && s.resolver.IsAvailable(slot, reservations, blocks)
		if err != nil && !errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		slots = append(slots, SlotAvailability{StartTime: start, Available: available})
	}
	return slots, nil
}

// Create books a pending reservation. The availability check and the insert
// run under the resource's booking lock so two concurrent requests for
// overlapping slots cannot both succeed.
func (s *ReservationService) Create(
	ctx context.Context,
	input CreateReservationInput,
) (*models.Reservation, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	if input.CustomerName == "" || input.CustomerPhone == "" {
		return nil, invalidRequest("customer name and phone are required")
	}
	if input.Amount <= 0 {
		return nil, invalidRequest("amount must be positive")
	}
	input.StartTime = strings.TrimSpace(input.StartTime)
	input.Date = strings.TrimSpace(input.Date)

	slot, err := s.resolver.Validate(input.SlotRequest)
	if err != nil {
		return nil, err
	}

	var created *models.Reservation
	err = s.locker.WithBookingLock(ctx, input.Resource, func(reservations bookingWriter, blocks blockWriter) error {
		current, currentBlocks, err := s.occupancy(ctx, reservations, blocks, input.Resource, input.Date)
		if err != nil {
			return err
		}
		if !s.resolver.IsAvailable(slot, current, currentBlocks) {
			return ErrSlotConflict
		}

		created, err = reservations.Create(ctx, repository.CreateReservationInput{
			Resource:        input.Resource,
			Date:            input.Date,
			StartTime:       input.StartTime,
			DurationMinutes: input.DurationMinutes,
			CustomerName:    input.CustomerName,
			CustomerPhone:   input.CustomerPhone,
			CustomerEmail:   input.CustomerEmail,
			Amount:          input.Amount,
		})
		return err
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	s.logger.Info().
		Str("reservation_id", created.ID).
		Str("resource", string(created.Resource)).
		Str("date", created.Date).
		Str("start_time", created.StartTime).
		Msg("reservation created")
	return created, nil
}

// CreateWalkIn books a reservation taken at the front desk. Unless the payment
// is still to be collected, the booking is confirmed straight away through the
// administrative transition so the actor shows up in its notes.
func (s *ReservationService) CreateWalkIn(
	ctx context.Context,
	input CreateReservationInput,
	actor string,
	paymentStatus string,
) (*models.Reservation, error) {
	paymentStatus = strings.ToLower(strings.TrimSpace(paymentStatus))
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusCompleted
	}
	if paymentStatus != models.PaymentStatusPending && paymentStatus != models.PaymentStatusCompleted {
		return nil, invalidRequest("walk-in payment status must be pending or completed")
	}

	created, err := s.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	if paymentStatus == models.PaymentStatusPending {
		return created, nil
	}
	return s.Override(ctx, created.ID, models.PaymentStatusCompleted, actor, "walk-in booking")
}

// Find returns the bare reservation.
func (s *ReservationService) Find(ctx context.Context, id string) (*models.Reservation, error) {
	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return reservation, nil
}

func (s *ReservationService) Get(ctx context.Context, id string) (*models.ReservationDetail, error) {
	reservation, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.ReservationDetail{Reservation: *reservation}
	transaction, err := s.transactionRepo.GetByReservationID(ctx, id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		detail.Transaction = transaction
	}
	return detail, nil
}

func (s *ReservationService) List(
	ctx context.Context,
	filter repository.ReservationListFilter,
) ([]models.ReservationDetail, error) {
	if status := strings.TrimSpace(filter.Status); status != "" && !validPaymentStatus(status) {
		return nil, ErrInvalidStatus
	}

	reservations, err := s.reservationRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(reservations))
	for _, reservation := range reservations {
		ids = append(ids, reservation.ID)
	}
	transactionsByReservation, err := s.transactionRepo.ListByReservationIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]models.ReservationDetail, 0, len(reservations))
	for _, reservation := range reservations {
		detail := models.ReservationDetail{Reservation: reservation}
		if transaction, ok := transactionsByReservation[reservation.ID]; ok {
			transactionCopy := transaction
			detail.Transaction = &transactionCopy
		}
		details = append(details, detail)
	}
	return details, nil
}

// Transition moves a pending reservation to completed or failed. Only the
// first transition for a reservation applies; later ones get
// ErrAlreadyFinalized.
func (s *ReservationService) Transition(
	ctx context.Context,
	id string,
	status string,
) (*models.Reservation, error) {
	return s.transition(ctx, id, status, nil)
}

// Override is the administrative transition. It follows the same rules as
// Transition and records who made the change in the internal notes.
func (s *ReservationService) Override(
	ctx context.Context,
	id string,
	status string,
	actor string,
	reason string,
) (*models.Reservation, error) {
	note := fmt.Sprintf("[%s] status set to %s by %s", s.clock.Now().UTC().Format(time.RFC3339), status, actor)
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	return s.transition(ctx, id, status, &note)
}

func (s *ReservationService) transition(
	ctx context.Context,
	id string,
	status string,
	note *string,
) (*models.Reservation, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != models.PaymentStatusCompleted && status != models.PaymentStatusFailed {
		return nil, ErrInvalidStatus
	}

	updated, err := s.reservationRepo.UpdateStatusIfCurrent(ctx, id, models.PaymentStatusPending, status, note)
	if err == nil {
		s.logger.Info().
			Str("reservation_id", id).
			Str("payment_status", status).
			Msg("reservation transitioned")
		return updated, nil
	}
	if repository.IsUniqueViolation(err) {
		return nil, ErrSlotConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if _, err := s.Find(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyFinalized
}

// AttachRefund records a refund against a completed reservation. The payment
// status is left untouched.
func (s *ReservationService) AttachRefund(
	ctx context.Context,
	id string,
	amount float64,
	reason string,
	actor string,
) (*models.Reservation, error) {
	reason = strings.TrimSpace(reason)
	if amount <= 0 {
		return nil, invalidRequest("refund amount must be positive")
	}
	if reason == "" {
		return nil, invalidRequest("refund reason is required")
	}

	note := fmt.Sprintf(
		"[%s] refund of %.2f by %s: %s",
		s.clock.Now().UTC().Format(time.RFC3339), amount, actor, reason,
	)
	updated, err := s.reservationRepo.AttachRefundIfCompleted(ctx, id, repository.AttachRefundInput{
		Amount: amount,
		Reason: reason,
		Note:   note,
	})
	if err == nil {
		s.logger.Info().
			Str("reservation_id", id).
			Float64("refund_amount", amount).
			Msg("refund recorded")
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	reservation, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case reservation.PaymentStatus != models.PaymentStatusCompleted:
		return nil, ErrRefundNotAllowed
	case reservation.Refund != nil:
		return nil, ErrRefundExists
	default:
		return nil, invalidRequest("refund amount exceeds the paid amount %.2f", reservation.Amount)
	}
}

// ExpireStale fails pending reservations created more than olderThan ago,
// releasing their slots. It returns how many were expired.
func (s *ReservationService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, invalidRequest("expiry threshold must be positive")
	}

	cutoff := s.clock.Now().Add(-olderThan)
	stale, err := s.reservationRepo.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	note := fmt.Sprintf("[%s] expired unpaid after %s", s.clock.Now().UTC().Format(time.RFC3339), olderThan)
	expired := 0
	for _, reservation := range stale {
		_, err := s.reservationRepo.UpdateStatusIfCurrent(
			ctx,
			reservation.ID,
			models.PaymentStatusPending,
			models.PaymentStatusFailed,
			&note,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		s.logger.Info().
			Str("reservation_id", reservation.ID).
			Time("created_at", reservation.CreatedAt).
			Msg("stale reservation expired")
	}
	return expired, nil
}

func (s *ReservationService) occupancy(
	ctx context.Context,
	reservations activeReservationReader,
	blocks blockReader,
	resource models.Resource,
	date string,
) ([]models.Reservation, []models.TimeBlock, error) {
	fromDate, toDate, err := s.resolver.LookupWindow(date)
	if err != nil {
		return nil, nil, err
	}
	active, err := reservations.ListActiveBetween(ctx, resource, fromDate, toDate)
	if err != nil {
		return nil, nil, err
	}
	blocked, err := blocks.ListBetween(ctx, resource, fromDate, toDate)
	if err != nil {
		return nil, nil, err
	}
	return active, blocked, nil
}

func validPaymentStatus(status string) bool {
	switch status {
	case models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentStatusFailed:
		return true
	default:
		return false
	}
}
