package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const correlationMetadataKey = "reservation_id"

// Omise creates an offsite source and a charge against it; the charge's
// authorize URI is the redirect handle and the charge id is the payment id.
type Omise struct {
	client     *omise.Client
	sourceType string
}

func NewOmise(publicKey, secretKey, sourceType string) (*Omise, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	client.SetDebug(false)
	return &Omise{client: client, sourceType: sourceType}, nil
}

func (o *Omise) Name() string {
	return "omise"
}

func (o *Omise) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	amount := toMinorUnits(req.Amount)
	currency := strings.ToLower(req.Currency)

	source := &omise.Source{}
	err := o.do(ctx, func() error {
		return o.client.Do(source, &operations.CreateSource{
			Type:     o.sourceType,
			Amount:   amount,
			Currency: currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	charge := &omise.Charge{}
	err = o.do(ctx, func() error {
		return o.client.Do(charge, &operations.CreateCharge{
			Amount:      amount,
			Currency:    currency,
			Source:      source.ID,
			Description: req.Title + " - " + req.Description,
			ReturnURI:   req.ReturnURLs.Success,
			Metadata:    map[string]interface{}{correlationMetadataKey: req.CorrelationKey},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}
	if charge.AuthorizeURI == "" {
		return nil, fmt.Errorf("charge %s has no authorize uri", charge.ID)
	}

	return &Intent{ID: charge.ID, RedirectURL: charge.AuthorizeURI}, nil
}

func (o *Omise) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	charge := &omise.Charge{}
	err := o.do(ctx, func() error {
		return o.client.Do(charge, &operations.RetrieveCharge{ChargeID: paymentID})
	})
	if err != nil {
		var omiseErr *omise.Error
		if errors.As(err, &omiseErr) && omiseErr.Code == "not_found" {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("retrieve charge: %w", err)
	}

	correlationKey, _ := charge.Metadata[correlationMetadataKey].(string)
	method := "card"
	if charge.Source != nil && charge.Source.Type != "" {
		method = charge.Source.Type
	}

	return &Payment{
		ID:             charge.ID,
		Status:         omiseChargeStatus(string(charge.Status)),
		CorrelationKey: correlationKey,
		PaymentMethod:  method,
	}, nil
}

// do runs a blocking SDK call but gives up when ctx is done.
func (o *Omise) do(ctx context.Context, call func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- call()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func omiseChargeStatus(status string) string {
	switch status {
	case "successful":
		return StatusApproved
	case "failed":
		return StatusRejected
	case "expired", "reversed":
		return StatusCancelled
	default:
		return StatusPending
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
