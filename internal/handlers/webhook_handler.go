package handlers

import (
	"context"
	"errors"

	"github.com/dumxhh/play-book-app/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type WebhookHandler struct {
	reconciler notificationReconciler
	logger     zerolog.Logger
}

type notificationReconciler interface {
	HandleNotification(ctx context.Context, body []byte, query map[string]string) (services.Outcome, error)
}

func NewWebhookHandler(reconciler *services.Reconciler, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

// HandlePayment answers 200 for every outcome the gateway should not retry.
// Only a failed gateway lookup or a datastore error asks for redelivery.
func (h *WebhookHandler) HandlePayment(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)

	outcome, err := h.reconciler.HandleNotification(c.Context(), body, c.Queries())
	if err != nil {
		if errors.Is(err, services.ErrReconciliationLookupFailed) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Payment lookup failed, retry later"})
		}
		h.logger.Error().Err(err).Msg("payment notification failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process notification"})
	}

	return c.JSON(fiber.Map{"status": outcome})
}
