package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeRecorded     Outcome = "recorded"
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeUnchanged    Outcome = "unchanged"
)

type paymentLookup interface {
	Name() string
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
}

type reservationLifecycle interface {
	Find(ctx context.Context, id string) (*models.Reservation, error)
	Transition(ctx context.Context, id string, status string) (*models.Reservation, error)
}

type paymentRecorder interface {
	ApplyPaymentUpdate(ctx context.Context, input repository.PaymentUpdateInput) (*models.Transaction, error)
}

// Notification is the part of a gateway callback the reconciler needs. The
// callback itself is never trusted for the payment status.
type Notification struct {
	Topic     string
	PaymentID string
}

// ParseNotification reads a MercadoPago webhook, an Omise event or the
// query-string IPN form. query holds the request's query parameters.
func ParseNotification(body []byte, query map[string]string) (Notification, error) {
	var notification Notification

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		var payload struct {
			Type   string          `json:"type"`
			Topic  string          `json:"topic"`
			Action string          `json:"action"`
			Key    string          `json:"key"`
			ID     json.RawMessage `json:"id"`
			Data   struct {
				ID json.RawMessage `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
		}

		switch {
		case payload.Type != "":
			notification.Topic = payload.Type
		case payload.Topic != "":
			notification.Topic = payload.Topic
		case payload.Key != "":
			notification.Topic = payload.Key
		case strings.HasPrefix(payload.Action, "payment."):
			notification.Topic = "payment"
		}

		id, err := rawID(payload.Data.ID)
		if err != nil {
			return Notification{}, err
		}
		if id == "" {
			// Legacy IPN bodies carry the payment id at the top level.
			if id, err = rawID(payload.ID); err != nil {
				return Notification{}, err
			}
		}
		notification.PaymentID = id
	}

	if notification.Topic == "" {
		notification.Topic = firstNonEmpty(query["type"], query["topic"])
	}
	if notification.PaymentID == "" {
		notification.PaymentID = firstNonEmpty(query["data.id"], query["id"])
	}
	notification.Topic = strings.ToLower(strings.TrimSpace(notification.Topic))
	notification.PaymentID = strings.TrimSpace(notification.PaymentID)

	if notification.Topic == "" && notification.PaymentID == "" {
		return Notification{}, fmt.Errorf("%w: empty notification", ErrMalformedNotification)
	}
	return notification, nil
}

// IsPayment reports whether the notification is about a payment or a charge.
func (n Notification) IsPayment() bool {
	return n.Topic == "payment" || strings.HasPrefix(n.Topic, "payment.") || strings.HasPrefix(n.Topic, "charge.")
}

func rawID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String(), nil
	}
	return "", fmt.Errorf("%w: payment id is neither string nor number", ErrMalformedNotification)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// MapGatewayStatus maps a gateway payment status to the reservation status it
// settles on. Non-final statuses map to pending, which never transitions.
func MapGatewayStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case gateway.StatusApproved:
		return models.PaymentStatusCompleted
	case gateway.StatusRejected, gateway.StatusCancelled:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}

// Reconciler turns gateway callbacks into reservation transitions. Callbacks
// can arrive late, duplicated or reordered, so the payment state is always
// fetched from the gateway and the transition is the store's compare-and-set.
type Reconciler struct {
	gateway       paymentLookup
	reservations  reservationLifecycle
	transactions  paymentRecorder
	notifier      Notifier
	currency      string
	lookupTimeout time.Duration
	notifyTimeout time.Duration
	logger        zerolog.Logger
}

func NewReconciler(
	paymentGateway gateway.Gateway,
	reservations reservationLifecycle,
	transactionRepo *repository.TransactionRepository,
	notifier Notifier,
	currency string,
	lookupTimeout time.Duration,
	logger zerolog.Logger,
) *Reconciler {
	if lookupTimeout <= 0 {
		lookupTimeout = 10 * time.Second
	}
	return &Reconciler{
		gateway:       paymentGateway,
		reservations:  reservations,
		transactions:  transactionRepo,
		notifier:      notifier,
		currency:      strings.ToUpper(strings.TrimSpace(currency)),
		lookupTimeout: lookupTimeout,
		notifyTimeout: DefaultNotifyTimeout,
		logger:        logger,
	}
}

// HandleNotification processes one callback. A nil error means the callback
// may be acknowledged; an error means the gateway should redeliver it.
func (r *Reconciler) HandleNotification(
	ctx context.Context,
	body []byte,
	query map[string]string,
) (Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Reconciler.HandleNotification", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	notification, err := ParseNotification(body, query)
	if err != nil {
		r.logger.Warn().Err(err).Msg("payment notification ignored")
		return OutcomeIgnored, nil
	}
	span.SetAttributes(
		attribute.String("notification.topic", notification.Topic),
		attribute.String("payment.id", notification.PaymentID),
	)
	if !notification.IsPayment() {
		r.logger.Debug().Str("topic", notification.Topic).Msg("non-payment notification acknowledged")
		return OutcomeIgnored, nil
	}
	if notification.PaymentID == "" {
		r.logger.Warn().Str("topic", notification.Topic).Msg("payment notification without id ignored")
		return OutcomeIgnored, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	payment, err := r.gateway.GetPayment(lookupCtx, notification.PaymentID)
	cancel()
	if errors.Is(err, gateway.ErrPaymentNotFound) {
		r.logger.Warn().Str("payment_id", notification.PaymentID).Msg("notification for unknown payment ignored")
		return OutcomeIgnored, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment lookup")
		r.logger.Error().Err(err).Str("payment_id", notification.PaymentID).Msg("payment lookup failed")
		return "", fmt.Errorf("%w: %v", ErrReconciliationLookupFailed, err)
	}

	if payment.CorrelationKey == "" {
		r.logger.Warn().Str("payment_id", payment.ID).Msg("payment without reservation reference ignored")
		return OutcomeIgnored, nil
	}
	span.SetAttributes(attribute.String("reservation.id", payment.CorrelationKey))

	reservation, err := r.reservations.Find(ctx, payment.CorrelationKey)
	if errors.Is(err, ErrReservationNotFound) {
		r.logger.Warn().
			Str("payment_id", payment.ID).
			Str("reservation_id", payment.CorrelationKey).
			Msg("payment references unknown reservation")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	var method *string
	if payment.PaymentMethod != "" {
		method = &payment.PaymentMethod
	}
	recorded, err := r.transactions.ApplyPaymentUpdate(ctx, repository.PaymentUpdateInput{
		ReservationID: reservation.ID,
		Gateway:       r.gateway.Name(),
		PaymentID:     payment.ID,
		Status:        payment.Status,
		PaymentMethod: method,
		Amount:        reservation.Amount,
		Currency:      r.currency,
	})
	if err != nil {
		return "", err
	}
	if recorded.GatewayPaymentID != nil && *recorded.GatewayPaymentID != payment.ID {
		r.logSuperseded(reservation.ID, payment, recorded)
		return OutcomeUnchanged, nil
	}

	target := MapGatewayStatus(payment.Status)
	if target == models.PaymentStatusPending {
		r.logger.Info().
			Str("reservation_id", reservation.ID).
			Str("payment_id", payment.ID).
			Str("gateway_status", payment.Status).
			Msg("payment update recorded")
		return OutcomeRecorded, nil
	}

	_, err = r.reservations.Transition(ctx, reservation.ID, target)
	switch {
	case errors.Is(err, ErrAlreadyFinalized):
		r.logFinalized(ctx, reservation.ID, payment, target)
		return OutcomeUnchanged, nil
	case errors.Is(err, ErrSlotConflict):
		r.logger.Error().
			Str("reservation_id", reservation.ID).
			Str("payment_id", payment.ID).
			Msg("approved payment for a slot already confirmed elsewhere")
		return OutcomeUnchanged, nil
	case err != nil:
		return "", err
	}

	if target == models.PaymentStatusCompleted {
		r.notifyConfirmed(ctx, reservation.ID)
	}
	return OutcomeTransitioned, nil
}

// logSuperseded reports a payment that lost to another payment already settled
// for the same reservation. A second approval means the customer paid twice.
func (r *Reconciler) logSuperseded(reservationID string, payment *gateway.Payment, recorded *models.Transaction) {
	event := r.logger.Info()
	message := "payment superseded by a settled payment"
	if MapGatewayStatus(payment.Status) == models.PaymentStatusCompleted {
		event = r.logger.Error()
		message = "second approved payment for reservation needs a manual refund"
	}
	event.
		Str("reservation_id", reservationID).
		Str("payment_id", payment.ID).
		Str("gateway_status", payment.Status).
		Str("recorded_payment_id", *recorded.GatewayPaymentID).
		Str("recorded_status", recorded.Status).
		Msg(message)
}

func (r *Reconciler) logFinalized(ctx context.Context, reservationID string, payment *gateway.Payment, target string) {
	current, err := r.reservations.Find(ctx, reservationID)
	if err == nil && current.PaymentStatus != target {
		r.logger.Error().
			Str("reservation_id", reservationID).
			Str("payment_id", payment.ID).
			Str("payment_status", current.PaymentStatus).
			Str("gateway_status", payment.Status).
			Msg("gateway status disagrees with finalized reservation")
		return
	}
	r.logger.Debug().
		Str("reservation_id", reservationID).
		Str("payment_id", payment.ID).
		Msg("duplicate payment notification")
}

func (r *Reconciler) notifyConfirmed(ctx context.Context, reservationID string) {
	NotifyConfirmed(ctx, r.notifier, reservationID, r.notifyTimeout, r.logger)
}
