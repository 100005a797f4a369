package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dumxhh/play-book-app/internal/services"

type reservationFinder interface {
	Find(ctx context.Context, id string) (*models.Reservation, error)
}

type intentStore interface {
	GetByReservationID(ctx context.Context, reservationID string) (*models.Transaction, error)
	UpsertIntent(ctx context.Context, input repository.UpsertIntentInput) (*models.Transaction, error)
}

type IntentResult struct {
	ReservationID string `json:"reservation_id"`
	TransactionID int64  `json:"transaction_id"`
	IntentID      string `json:"preference_id"`
	RedirectURL   string `json:"init_point"`
}

// IntentService asks the payment gateway for a checkout and records it. At
// most one intent is kept per reservation.
type IntentService struct {
	reservations    reservationFinder
	transactionRepo intentStore
	gateway         gateway.Gateway
	currency        string
	timeout         time.Duration
	logger          zerolog.Logger
}

func NewIntentService(
	reservations reservationFinder,
	transactionRepo *repository.TransactionRepository,
	paymentGateway gateway.Gateway,
	currency string,
	timeout time.Duration,
	logger zerolog.Logger,
) *IntentService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IntentService{
		reservations:    reservations,
		transactionRepo: transactionRepo,
		gateway:         paymentGateway,
		currency:        strings.ToUpper(strings.TrimSpace(currency)),
		timeout:         timeout,
		logger:          logger,
	}
}

func (s *IntentService) IssueIntent(
	ctx context.Context,
	reservationID string,
	returnURLs gateway.ReturnURLs,
) (*IntentResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "IntentService.IssueIntent", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.String("payment.gateway", s.gateway.Name()),
	)

	reservation, err := s.reservations.Find(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.PaymentStatus != models.PaymentStatusPending {
		return nil, ErrAlreadyFinalized
	}

	existing, err := s.transactionRepo.GetByReservationID(ctx, reservationID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil && existing.IntentID != "" {
		return intentResult(existing), nil
	}

	request := gateway.IntentRequest{
		Title:          "Reserva de " + string(reservation.Resource),
		Description:    fmt.Sprintf("%s a las %s - %d minutos", reservation.Date, reservation.StartTime, reservation.DurationMinutes),
		Amount:         reservation.Amount,
		Currency:       s.currency,
		CorrelationKey: reservation.ID,
		Payer: gateway.Payer{
			Name:  reservation.CustomerName,
			Phone: reservation.CustomerPhone,
		},
		ReturnURLs: returnURLs,
	}
	if reservation.CustomerEmail != nil {
		request.Payer.Email = *reservation.CustomerEmail
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intent, err := s.gateway.CreateIntent(gatewayCtx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create intent")
		s.logger.Warn().
			Err(err).
			Str("reservation_id", reservationID).
			Str("gateway", s.gateway.Name()).
			Msg("payment intent creation failed")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	transaction, err := s.transactionRepo.UpsertIntent(ctx, repository.UpsertIntentInput{
		ReservationID: reservation.ID,
		Gateway:       s.gateway.Name(),
		IntentID:      intent.ID,
		RedirectURL:   intent.RedirectURL,
		Amount:        reservation.Amount,
		Currency:      s.currency,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent request stored its intent first; that one wins.
		transaction, err = s.transactionRepo.GetByReservationID(ctx, reservationID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("reservation_id", reservationID).
		Str("intent_id", transaction.IntentID).
		Str("gateway", transaction.Gateway).
		Msg("payment intent issued")
	return intentResult(transaction), nil
}

func intentResult(transaction *models.Transaction) *IntentResult {
	return &IntentResult{
		ReservationID: transaction.ReservationID,
		TransactionID: transaction.ID,
		IntentID:      transaction.IntentID,
		RedirectURL:   transaction.RedirectURL,
	}
}
