package models

import (
	"fmt"
	"strings"
	"time"
)

type Resource string

const (
	ResourceFutbol Resource = "futbol"
	ResourcePaddle Resource = "paddle"
	ResourceTenis  Resource = "tenis"
	ResourceGolf   Resource = "golf"
)

var resources = map[Resource]struct{}{
	ResourceFutbol: {},
	ResourcePaddle: {},
	ResourceTenis:  {},
	ResourceGolf:   {},
}

// ParseResource accepts the sport names used by the booking form.
func ParseResource(value string) (Resource, error) {
	resource := Resource(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := resources[resource]; !ok {
		return "", fmt.Errorf("unknown resource %q", value)
	}
	return resource, nil
}

func (r Resource) Valid() bool {
	_, ok := resources[r]
	return ok
}

// DefaultDurationMinutes is the booking length offered for a sport when the
// customer does not pick one.
func (r Resource) DefaultDurationMinutes() int {
	switch r {
	case ResourceFutbol:
		return 90
	case ResourceGolf:
		return 180
	default:
		return 60
	}
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"

	RefundStatusProcessed = "processed"
)

type Reservation struct {
	ID              string    `json:"id"`
	Resource        Resource  `json:"resource"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
	CustomerEmail   *string   `json:"customer_email,omitempty"`
	Amount          float64   `json:"amount"`
	PaymentStatus   string    `json:"payment_status"`
	InternalNotes   *string   `json:"internal_notes,omitempty"`
	Refund          *Refund   `json:"refund,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Refund struct {
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	RefundedAt time.Time `json:"refunded_at"`
}

func (r *Reservation) Finalized() bool {
	return r.PaymentStatus == PaymentStatusCompleted || r.PaymentStatus == PaymentStatusFailed
}

type TimeBlock struct {
	ID        int64     `json:"id"`
	Resource  Resource  `json:"resource"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Reason    string    `json:"reason"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Transaction struct {
	ID               int64     `json:"id"`
	ReservationID    string    `json:"reservation_id"`
	Gateway          string    `json:"gateway"`
	IntentID         string    `json:"intent_id"`
	RedirectURL      string    `json:"redirect_url"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	PaymentMethod    *string   `json:"payment_method,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type ReservationDetail struct {
	Reservation
	Transaction *Transaction `json:"transaction,omitempty"`
}
