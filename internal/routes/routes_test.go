package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dumxhh/play-book-app/internal/config"
	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/middleware"
	reservationws "github.com/dumxhh/play-book-app/internal/websocket"
	"github.com/dumxhh/play-book-app/pkg/utils"
	"github.com/rs/zerolog"
)

type unusedGateway struct{}

func (unusedGateway) Name() string { return "test" }

func (unusedGateway) CreateIntent(context.Context, gateway.IntentRequest) (*gateway.Intent, error) {
	return nil, gateway.ErrPaymentNotFound
}

func (unusedGateway) GetPayment(context.Context, string) (*gateway.Payment, error) {
	return nil, gateway.ErrPaymentNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "route-secret",
		AdminUsername:  "admin",
		Timezone:       "America/Argentina/Buenos_Aires",
		Currency:       "ARS",
		CORSOrigins:    "*",
		GatewayTimeout: time.Second,
		ServiceName:    "play-book-app-test",
	}
}

func TestRoutesWithoutDatabase(t *testing.T) {
	cfg := testConfig()
	app := NewApp(cfg)
	RegisterRoutes(app, cfg, Dependencies{
		Gateway: unusedGateway{},
		Hub:     reservationws.NewHub(zerolog.Nop()),
		Logger:  zerolog.Nop(),
	})

	adminToken, err := utils.GenerateToken("admin", middleware.RoleAdmin, cfg.JWTSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	customerToken, err := utils.GenerateToken("someone", "customer", cfg.JWTSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
		status int
	}{
		{name: "health", method: http.MethodGet, target: "/health", status: http.StatusOK},
		{name: "availability rejects unknown sport", method: http.MethodGet, target: "/api/v1/availability?resource=hockey&date=2030-01-01&time=10:00", status: http.StatusBadRequest},
		{name: "reservation body is validated", method: http.MethodPost, target: "/api/v1/reservations", body: `{"resource":"golf"}`, status: http.StatusBadRequest},
		{name: "reservation id must be a uuid", method: http.MethodGet, target: "/api/v1/reservations/42", status: http.StatusBadRequest},
		{name: "empty webhook is acknowledged", method: http.MethodPost, target: "/webhooks/payment", status: http.StatusOK},
		{name: "admin requires token", method: http.MethodGet, target: "/api/v1/admin/reservations", status: http.StatusUnauthorized},
		{name: "admin requires admin role", method: http.MethodGet, target: "/api/v1/admin/me", token: customerToken, status: http.StatusForbidden},
		{name: "admin me", method: http.MethodGet, target: "/api/v1/admin/me", token: adminToken, status: http.StatusOK},
		{name: "admin status is validated", method: http.MethodPut, target: "/api/v1/admin/reservations/0f8fad5b-d9cb-469f-a165-70867728950e/status", body: `{"status":"pending"}`, token: adminToken, status: http.StatusBadRequest},
		{name: "admin websocket needs upgrade", method: http.MethodGet, target: "/api/v1/admin/ws", token: adminToken, status: http.StatusUpgradeRequired},
		{name: "login is not configured", method: http.MethodPost, target: "/api/admin/login", body: `{"username":"admin","password":"x"}`, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == "" {
				req = httptest.NewRequest(tt.method, tt.target, nil)
			} else {
				req = httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				var payload map[string]any
				_ = json.NewDecoder(resp.Body).Decode(&payload)
				t.Fatalf("expected %d, got %d (%v)", tt.status, resp.StatusCode, payload)
			}
		})
	}
}
