package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `
	id, resource, to_char(date, 'YYYY-MM-DD'), start_time, duration_min,
	customer_name, customer_phone, customer_email, amount, payment_status,
	internal_notes, refund_amount, refund_status, refund_reason, refunded_at,
	created_at, updated_at
`

type CreateReservationInput struct {
	Resource        models.Resource
	Date            string
	StartTime       string
	DurationMinutes int
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   *string
	Amount          float64
}

type ReservationListFilter struct {
	Date     string
	Status   string
	Resource models.Resource
}

type AttachRefundInput struct {
	Amount float64
	Reason string
	Note   string
}

type ReservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(
	ctx context.Context,
	input CreateReservationInput,
) (*models.Reservation, error) {
	query := `
		INSERT INTO reservations (
			id, resource, date, start_time, duration_min,
			customer_name, customer_phone, customer_email, amount, payment_status
		)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, 'pending')
		RETURNING ` + reservationColumns

	return scanReservation(r.db.QueryRow(
		ctx,
		query,
		uuid.NewString(),
		string(input.Resource),
		input.Date,
		input.StartTime,
		input.DurationMinutes,
		input.CustomerName,
		input.CustomerPhone,
		input.CustomerEmail,
		input.Amount,
	))
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return scanReservation(r.db.QueryRow(ctx, query, id))
}

// ListActiveBetween returns non-failed reservations for a resource whose date
// falls in [fromDate, toDate].
func (r *ReservationRepository) ListActiveBetween(
	ctx context.Context,
	resource models.Resource,
	fromDate string,
	toDate string,
) ([]models.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE resource = $1
		  AND date BETWEEN $2::date AND $3::date
		  AND payment_status <> 'failed'
		ORDER BY date ASC, start_time ASC
	`
	rows, err := r.db.Query(ctx, query, string(resource), fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *ReservationRepository) List(
	ctx context.Context,
	filter ReservationListFilter,
) ([]models.Reservation, error) {
	args := []any{}
	whereParts := []string{"TRUE"}

	if date := strings.TrimSpace(filter.Date); date != "" {
		args = append(args, date)
		whereParts = append(whereParts, fmt.Sprintf("date = $%d::date", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.Resource != "" {
		args = append(args, string(filter.Resource))
		whereParts = append(whereParts, fmt.Sprintf("resource = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM reservations
		WHERE %s
		ORDER BY created_at DESC, id ASC
	`, reservationColumns, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *ReservationRepository) ListPendingCreatedBefore(
	ctx context.Context,
	cutoff time.Time,
) ([]models.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE payment_status = 'pending'
		  AND created_at < $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// UpdateStatusIfCurrent is the compare-and-set on payment_status. It returns
// pgx.ErrNoRows when the row is missing or no longer holds currentStatus.
// A non-nil note is appended to internal_notes in the same statement.
func (r *ReservationRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	id string,
	currentStatus string,
	nextStatus string,
	note *string,
) (*models.Reservation, error) {
	query := `
		UPDATE reservations
		SET payment_status = $3,
		    internal_notes = CASE
		        WHEN $4::text IS NULL THEN internal_notes
		        ELSE concat_ws(E'\n', internal_notes, $4::text)
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND payment_status = $2
		RETURNING ` + reservationColumns

	return scanReservation(r.db.QueryRow(ctx, query, id, currentStatus, nextStatus, note))
}

// AttachRefundIfCompleted stores the refund annotation only on a completed
// reservation without an earlier refund, and never above the paid amount.
func (r *ReservationRepository) AttachRefundIfCompleted(
	ctx context.Context,
	id string,
	input AttachRefundInput,
) (*models.Reservation, error) {
	query := `
		UPDATE reservations
		SET refund_amount = $2,
		    refund_status = 'processed',
		    refund_reason = $3,
		    refunded_at = NOW(),
		    internal_notes = concat_ws(E'\n', internal_notes, $4::text),
		    updated_at = NOW()
		WHERE id = $1
		  AND payment_status = 'completed'
		  AND refund_status IS NULL
		  AND $2 <= amount
		RETURNING ` + reservationColumns

	return scanReservation(r.db.QueryRow(ctx, query, id, input.Amount, input.Reason, input.Note))
}

func collectReservations(rows pgx.Rows) ([]models.Reservation, error) {
	defer rows.Close()

	reservations := make([]models.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var (
		reservation  models.Reservation
		resource     string
		refundAmount *float64
		refundStatus *string
		refundReason *string
		refundedAt   *time.Time
	)
	err := row.Scan(
		&reservation.ID,
		&resource,
		&reservation.Date,
		&reservation.StartTime,
		&reservation.DurationMinutes,
		&reservation.CustomerName,
		&reservation.CustomerPhone,
		&reservation.CustomerEmail,
		&reservation.Amount,
		&reservation.PaymentStatus,
		&reservation.InternalNotes,
		&refundAmount,
		&refundStatus,
		&refundReason,
		&refundedAt,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	reservation.Resource = models.Resource(resource)
	if refundStatus != nil {
		refund := &models.Refund{Status: *refundStatus}
		if refundAmount != nil {
			refund.Amount = *refundAmount
		}
		if refundReason != nil {
			refund.Reason = *refundReason
		}
		if refundedAt != nil {
			refund.RefundedAt = *refundedAt
		}
		reservation.Refund = refund
	}
	return &reservation, nil
}
