package gateway

import (
	"context"
	"errors"
)

// Gateway status vocabulary. Adapters translate their provider's values to
// these before returning a Payment.
const (
	StatusPending    = "pending"
	StatusInProcess  = "in_process"
	StatusAuthorized = "authorized"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
)

var ErrPaymentNotFound = errors.New("payment not found")

type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

type Payer struct {
	Name  string
	Phone string
	Email string
}

type ReturnURLs struct {
	Success string
	Failure string
	Pending string
}

type IntentRequest struct {
	Title          string
	Description    string
	Amount         float64
	Currency       string
	CorrelationKey string
	Payer          Payer
	ReturnURLs     ReturnURLs
}

type Intent struct {
	ID          string
	RedirectURL string
}

type Payment struct {
	ID             string
	Status         string
	CorrelationKey string
	PaymentMethod  string
}
