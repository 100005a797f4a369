package repository

import (
	"context"
	"errors"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `
	id, reservation_id, gateway, intent_id, redirect_url, gateway_payment_id,
	amount, currency, status, payment_method, created_at, updated_at
`

type UpsertIntentInput struct {
	ReservationID string
	Gateway       string
	IntentID      string
	RedirectURL   string
	Amount        float64
	Currency      string
}

type PaymentUpdateInput struct {
	ReservationID string
	Gateway       string
	PaymentID     string
	Status        string
	PaymentMethod *string
	Amount        float64
	Currency      string
}

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) GetByReservationID(ctx context.Context, reservationID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reservation_id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, reservationID))
}

func (r *TransactionRepository) ListByReservationIDs(
	ctx context.Context,
	reservationIDs []string,
) (map[string]models.Transaction, error) {
	transactions := make(map[string]models.Transaction, len(reservationIDs))
	if len(reservationIDs) == 0 {
		return transactions, nil
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reservation_id = ANY($1)`
	rows, err := r.db.Query(ctx, query, reservationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions[transaction.ReservationID] = *transaction
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

// UpsertIntent records the gateway intent for a reservation. An intent that
// is already stored is never replaced: the call then returns pgx.ErrNoRows and
// the caller should read the existing row.
func (r *TransactionRepository) UpsertIntent(ctx context.Context, input UpsertIntentInput) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (reservation_id, gateway, intent_id, redirect_url, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (reservation_id) DO UPDATE
		SET gateway = EXCLUDED.gateway,
		    intent_id = EXCLUDED.intent_id,
		    redirect_url = EXCLUDED.redirect_url,
		    updated_at = NOW()
		WHERE transactions.intent_id = ''
		RETURNING ` + transactionColumns

	return scanTransaction(r.db.QueryRow(
		ctx,
		query,
		input.ReservationID,
		input.Gateway,
		input.IntentID,
		input.RedirectURL,
		input.Amount,
		input.Currency,
	))
}

// ApplyPaymentUpdate writes the gateway's view of the payment. It is safe to
// replay: a final gateway status is never overwritten by a non-final one, and
// a refund is never undone by a stale approval. Once the row holds an approved
// or refunded payment, updates for any other payment id leave it untouched and
// the stored row is returned, so callers compare GatewayPaymentID to see
// whether their payment was recorded.
func (r *TransactionRepository) ApplyPaymentUpdate(ctx context.Context, input PaymentUpdateInput) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (
			reservation_id, gateway, gateway_payment_id, amount, currency, status, payment_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reservation_id) DO UPDATE
		SET gateway_payment_id = EXCLUDED.gateway_payment_id,
		    status = CASE
		        WHEN transactions.gateway_payment_id IS DISTINCT FROM EXCLUDED.gateway_payment_id
		        THEN EXCLUDED.status
		        WHEN transactions.status IN ('approved', 'rejected', 'cancelled', 'refunded', 'charged_back')
		         AND EXCLUDED.status NOT IN ('approved', 'rejected', 'cancelled', 'refunded', 'charged_back')
		        THEN transactions.status
		        WHEN transactions.status IN ('refunded', 'charged_back')
		         AND EXCLUDED.status = 'approved'
		        THEN transactions.status
		        ELSE EXCLUDED.status
		    END,
		    payment_method = CASE
		        WHEN transactions.gateway_payment_id IS DISTINCT FROM EXCLUDED.gateway_payment_id
		        THEN EXCLUDED.payment_method
		        ELSE COALESCE(EXCLUDED.payment_method, transactions.payment_method)
		    END,
		    updated_at = NOW()
		WHERE transactions.status NOT IN ('approved', 'refunded', 'charged_back')
		   OR transactions.gateway_payment_id IS NOT DISTINCT FROM EXCLUDED.gateway_payment_id
		RETURNING ` + transactionColumns

	transaction, err := scanTransaction(r.db.QueryRow(
		ctx,
		query,
		input.ReservationID,
		input.Gateway,
		input.PaymentID,
		input.Amount,
		input.Currency,
		input.Status,
		input.PaymentMethod,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByReservationID(ctx, input.ReservationID)
	}
	return transaction, err
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := row.Scan(
		&transaction.ID,
		&transaction.ReservationID,
		&transaction.Gateway,
		&transaction.IntentID,
		&transaction.RedirectURL,
		&transaction.GatewayPaymentID,
		&transaction.Amount,
		&transaction.Currency,
		&transaction.Status,
		&transaction.PaymentMethod,
		&transaction.CreatedAt,
		&transaction.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &transaction, nil
}
