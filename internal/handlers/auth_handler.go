package handlers

import (
	"crypto/subtle"
	"strings"

	"github.com/dumxhh/play-book-app/internal/middleware"
	"github.com/dumxhh/play-book-app/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// AuthHandler issues admin tokens. There is a single staff account configured
// through the environment; its password is stored as a bcrypt hash.
type AuthHandler struct {
	username     string
	passwordHash string
	jwtSecret    string
	logger       zerolog.Logger
}

func NewAuthHandler(username, passwordHash, jwtSecret string, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		logger:       logger,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if msg := validateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	if h.passwordHash == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Admin login is not configured"})
	}
	usernameMatches := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passwordMatches := utils.CheckPassword(req.Password, h.passwordHash)
	if !usernameMatches || !passwordMatches {
		h.logger.Warn().Str("username", req.Username).Str("ip", c.IP()).Msg("admin login rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid username or password"})
	}

	token, err := utils.GenerateToken(h.username, middleware.RoleAdmin, h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"username": h.username,
			"role":     middleware.RoleAdmin,
		},
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	username, ok := c.Locals("username").(string)
	if !ok || username == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"username": username,
			"role":     middleware.RoleAdmin,
		},
	})
}
