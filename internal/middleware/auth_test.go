package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dumxhh/play-book-app/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "middleware-secret"

func newAdminApp() *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminRequired(testSecret), func(c *fiber.Ctx) error {
		username, _ := c.Locals("username").(string)
		return c.SendString(username)
	})
	return app
}

func TestAdminRequired(t *testing.T) {
	adminToken, err := utils.GenerateToken("encargado", RoleAdmin, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	customerToken, err := utils.GenerateToken("cliente", "customer", testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	foreignToken, err := utils.GenerateToken("encargado", RoleAdmin, "other-secret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expiredToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, utils.Claims{
		UserID: "encargado",
		Role:   RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token " + adminToken, status: http.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + foreignToken, status: http.StatusUnauthorized},
		{name: "expired admin token", header: "Bearer " + expiredToken, status: http.StatusUnauthorized},
		{name: "non admin role", header: "Bearer " + customerToken, status: http.StatusForbidden},
		{name: "admin", header: "Bearer " + adminToken, status: http.StatusOK},
	}

	app := newAdminApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestAdminRequiredAcceptsQueryTokenOnUpgrade(t *testing.T) {
	adminToken, err := utils.GenerateToken("encargado", RoleAdmin, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := newAdminApp()

	req := httptest.NewRequest(http.MethodGet, "/admin?access_token="+adminToken, nil)
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for upgrade with query token, got %d", resp.StatusCode)
	}

	plain := httptest.NewRequest(http.MethodGet, "/admin?access_token="+adminToken, nil)
	resp, err = app.Test(plain)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected query token to be ignored without upgrade, got %d", resp.StatusCode)
	}
}
