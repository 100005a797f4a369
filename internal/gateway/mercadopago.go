package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultMercadoPagoURL = "https://api.mercadopago.com"

type MercadoPago struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

func NewMercadoPago(baseURL, accessToken string, timeout time.Duration) *MercadoPago {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultMercadoPagoURL
	}
	return &MercadoPago{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (m *MercadoPago) Name() string {
	return "mercadopago"
}

type preferenceItem struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type preferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone *struct {
		Number string `json:"number"`
	} `json:"phone,omitempty"`
}

type preferenceRequest struct {
	Items             []preferenceItem  `json:"items"`
	Payer             preferencePayer   `json:"payer"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	ExternalReference string            `json:"external_reference"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

func (m *MercadoPago) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	payload := preferenceRequest{
		Items: []preferenceItem{{
			Title:       req.Title,
			Description: req.Description,
			Quantity:    1,
			CurrencyID:  req.Currency,
			UnitPrice:   req.Amount,
		}},
		Payer: preferencePayer{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
		},
		ExternalReference: req.CorrelationKey,
	}
	if req.Payer.Phone != "" {
		payload.Payer.Phone = &struct {
			Number string `json:"number"`
		}{Number: req.Payer.Phone}
	}
	if req.ReturnURLs.Success != "" {
		payload.BackURLs = map[string]string{
			"success": req.ReturnURLs.Success,
			"failure": req.ReturnURLs.Failure,
			"pending": req.ReturnURLs.Pending,
		}
		payload.AutoReturn = "approved"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build preference request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.CorrelationKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("create preference: status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	var preference preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&preference); err != nil {
		return nil, fmt.Errorf("decode preference response: %w", err)
	}
	redirectURL := preference.InitPoint
	if redirectURL == "" {
		redirectURL = preference.SandboxInitPoint
	}
	if preference.ID == "" || redirectURL == "" {
		return nil, fmt.Errorf("preference response missing id or init_point")
	}

	return &Intent{ID: preference.ID, RedirectURL: redirectURL}, nil
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	PaymentMethodID   string      `json:"payment_method_id"`
}

func (m *MercadoPago) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	paymentURL := fmt.Sprintf("%s/v1/payments/%s", m.baseURL, url.PathEscape(paymentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, paymentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("get payment: status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	var payment paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	id := payment.ID.String()
	if id == "" {
		id = paymentID
	}
	return &Payment{
		ID:             id,
		Status:         strings.ToLower(strings.TrimSpace(payment.Status)),
		CorrelationKey: strings.TrimSpace(payment.ExternalReference),
		PaymentMethod:  payment.PaymentMethodID,
	}, nil
}
