package middleware

import (
	"strings"

	"github.com/dumxhh/play-book-app/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const RoleAdmin = "admin"

// AdminRequired accepts a bearer token issued by the admin login. Browsers
// cannot set headers on a websocket upgrade, so the token may also arrive as
// the access_token query parameter on those requests.
func AdminRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := ""
		authHeader := c.Get("Authorization")
		switch {
		case authHeader != "":
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization header format",
				})
			}
			tokenString = parts[1]
		case strings.EqualFold(c.Get("Upgrade"), "websocket"):
			tokenString = c.Query("access_token")
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}
		if claims.Role != RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		c.Locals("username", claims.UserID)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}
