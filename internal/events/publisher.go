package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const RoutingKeyReservationConfirmed = "reservation.confirmed"

type ReservationConfirmed struct {
	ReservationID string    `json:"reservation_id"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher puts reservation events on a topic exchange for downstream
// consumers such as the confirmation mailer.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewPublisher(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger, now: time.Now}, nil
}

func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
}

// OnReservationConfirmed publishes the confirmation event. Failures are only
// logged; the payment has already been recorded.
func (p *Publisher) OnReservationConfirmed(ctx context.Context, reservationID string) {
	event := ReservationConfirmed{ReservationID: reservationID, ConfirmedAt: p.now().UTC()}
	if err := p.PublishJSON(ctx, RoutingKeyReservationConfirmed, event); err != nil {
		p.logger.Error().
			Err(err).
			Str("reservation_id", reservationID).
			Msg("publish reservation confirmed")
		return
	}
	p.logger.Debug().Str("reservation_id", reservationID).Msg("reservation confirmed published")
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
