package handlers

import (
	"net/http"
	"testing"

	"github.com/dumxhh/play-book-app/internal/middleware"
	"github.com/dumxhh/play-book-app/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

func newAuthTestApp(t *testing.T, passwordHash string) *fiber.App {
	t.Helper()
	handler := NewAuthHandler("admin", passwordHash, "test-secret", zerolog.Nop())
	app := fiber.New()
	app.Post("/api/admin/login", handler.Login)
	return app
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("club-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	app := newAuthTestApp(t, hash)

	resp, payload := doRequest(t, app, http.MethodPost, "/api/admin/login", `{"username":"admin","password":"club-password"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	token, _ := payload["token"].(string)
	claims, err := utils.ValidateToken(token, "test-secret")
	if err != nil {
		t.Fatalf("expected a valid token: %v", err)
	}
	if claims.UserID != "admin" || claims.Role != middleware.RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejections(t *testing.T) {
	hash, err := utils.HashPassword("club-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	tests := []struct {
		name   string
		hash   string
		body   string
		status int
	}{
		{name: "wrong password", hash: hash, body: `{"username":"admin","password":"nope"}`, status: http.StatusUnauthorized},
		{name: "wrong username", hash: hash, body: `{"username":"root","password":"club-password"}`, status: http.StatusUnauthorized},
		{name: "missing password", hash: hash, body: `{"username":"admin"}`, status: http.StatusBadRequest},
		{name: "not configured", hash: "", body: `{"username":"admin","password":"club-password"}`, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := doRequest(t, newAuthTestApp(t, tt.hash), http.MethodPost, "/api/admin/login", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
