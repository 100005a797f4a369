package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Notifier is told once a reservation's payment has been confirmed.
// Implementations must not block for long and cannot fail the caller.
type Notifier interface {
	OnReservationConfirmed(ctx context.Context, reservationID string)
}

type NotifierFunc func(ctx context.Context, reservationID string)

func (f NotifierFunc) OnReservationConfirmed(ctx context.Context, reservationID string) {
	f(ctx, reservationID)
}

const DefaultNotifyTimeout = 5 * time.Second

// NotifyConfirmed runs notifier outside the caller's cancellation and bounded
// by timeout, so a slow or panicking notifier never holds up the request that
// confirmed the reservation.
func NotifyConfirmed(
	ctx context.Context,
	notifier Notifier,
	reservationID string,
	timeout time.Duration,
	logger zerolog.Logger,
) {
	if notifier == nil {
		return
	}
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error().
				Str("reservation_id", reservationID).
				Interface("panic", recovered).
				Msg("confirmation notifier panicked")
		}
	}()

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	notifier.OnReservationConfirmed(notifyCtx, reservationID)
}

// Notifiers fans a confirmation out to every registered notifier. A panic in
// one of them is logged and does not stop the others.
type Notifiers struct {
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewNotifiers(logger zerolog.Logger, notifiers ...Notifier) *Notifiers {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &Notifiers{logger: logger, notifiers: active}
}

func (n *Notifiers) OnReservationConfirmed(ctx context.Context, reservationID string) {
	for _, notifier := range n.notifiers {
		n.notify(ctx, notifier, reservationID)
	}
}

func (n *Notifiers) notify(ctx context.Context, notifier Notifier, reservationID string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			n.logger.Error().
				Str("reservation_id", reservationID).
				Interface("panic", recovered).
				Msg("confirmation notifier panicked")
		}
	}()
	notifier.OnReservationConfirmed(ctx, reservationID)
}
