package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ReservationHandler struct {
	reservations  reservationApplicationService
	intents       intentIssuer
	publicBaseURL string
	logger        zerolog.Logger
}

type reservationApplicationService interface {
	CheckAvailability(ctx context.Context, req services.SlotRequest) (bool, error)
	DaySlots(ctx context.Context, resource models.Resource, date string, durationMinutes int) ([]services.SlotAvailability, error)
	Create(ctx context.Context, input services.CreateReservationInput) (*models.Reservation, error)
	Get(ctx context.Context, id string) (*models.ReservationDetail, error)
}

type intentIssuer interface {
	IssueIntent(ctx context.Context, reservationID string, returnURLs gateway.ReturnURLs) (*services.IntentResult, error)
}

func NewReservationHandler(
	reservations *services.ReservationService,
	intents *services.IntentService,
	publicBaseURL string,
	logger zerolog.Logger,
) *ReservationHandler {
	return &ReservationHandler{
		reservations:  reservations,
		intents:       intents,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

type createReservationRequest struct {
	Resource        string  `json:"resource" validate:"required,resource"`
	Date            string  `json:"date" validate:"required,date"`
	StartTime       string  `json:"start_time" validate:"required,hhmm"`
	DurationMinutes int     `json:"duration_minutes" validate:"gt=0,lte=1440"`
	CustomerName    string  `json:"customer_name" validate:"required,max=120"`
	CustomerPhone   string  `json:"customer_phone" validate:"required,max=40"`
	CustomerEmail   *string `json:"customer_email" validate:"omitempty,email"`
	Amount          float64 `json:"amount" validate:"gt=0"`
}

func (h *ReservationHandler) CheckAvailability(c *fiber.Ctx) error {
	resource, err := models.ParseResource(c.Query("resource"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resource must be one of futbol, paddle, tenis, golf"})
	}
	duration, err := parseDuration(c, resource)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration must be a positive number of minutes"})
	}

	req := services.SlotRequest{
		Resource:        resource,
		Date:            strings.TrimSpace(c.Query("date")),
		StartTime:       strings.TrimSpace(c.Query("time")),
		DurationMinutes: duration,
	}
	available, err := h.reservations.CheckAvailability(c.Context(), req)
	if err != nil {
		return h.mapReservationError(c, err)
	}

	return c.JSON(fiber.Map{
		"resource":         req.Resource,
		"date":             req.Date,
		"start_time":       req.StartTime,
		"duration_minutes": req.DurationMinutes,
		"available":        available,
	})
}

func (h *ReservationHandler) DaySlots(c *fiber.Ctx) error {
	resource, err := models.ParseResource(c.Query("resource"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resource must be one of futbol, paddle, tenis, golf"})
	}
	duration, err := parseDuration(c, resource)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration must be a positive number of minutes"})
	}
	date := strings.TrimSpace(c.Query("date"))

	slots, err := h.reservations.DaySlots(c.Context(), resource, date, duration)
	if err != nil {
		return h.mapReservationError(c, err)
	}

	return c.JSON(fiber.Map{
		"resource":         resource,
		"date":             date,
		"duration_minutes": duration,
		"slots":            slots,
	})
}

// CreateReservation books the slot and asks the gateway for a checkout in the
// same request. When the gateway is down the reservation is kept pending and
// its id is returned so the client can retry the payment step.
func (h *ReservationHandler) CreateReservation(c *fiber.Ctx) error {
	var req createReservationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.DurationMinutes == 0 {
		resource, _ := models.ParseResource(req.Resource)
		req.DurationMinutes = resource.DefaultDurationMinutes()
	}
	if req.CustomerEmail != nil && strings.TrimSpace(*req.CustomerEmail) == "" {
		req.CustomerEmail = nil
	}
	if msg := validateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	resource, _ := models.ParseResource(req.Resource)
	reservation, err := h.reservations.Create(c.Context(), services.CreateReservationInput{
		SlotRequest: services.SlotRequest{
			Resource:        resource,
			Date:            req.Date,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
		},
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Amount:        req.Amount,
	})
	if err != nil {
		return h.mapReservationError(c, err)
	}

	intent, err := h.intents.IssueIntent(c.Context(), reservation.ID, h.returnURLs(c))
	if err != nil {
		if errors.Is(err, services.ErrGatewayUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":          "Payment gateway unavailable, retry the payment",
				"reservation_id": reservation.ID,
			})
		}
		return h.mapReservationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"reservation":   publicReservation(reservation),
		"init_point":    intent.RedirectURL,
		"preference_id": intent.IntentID,
	})
}

func (h *ReservationHandler) RetryPayment(c *fiber.Ctx) error {
	reservationID, ok := parseReservationID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reservation id"})
	}

	intent, err := h.intents.IssueIntent(c.Context(), reservationID, h.returnURLs(c))
	if err != nil {
		return h.mapReservationError(c, err)
	}

	return c.JSON(fiber.Map{
		"reservation_id": reservationID,
		"init_point":     intent.RedirectURL,
		"preference_id":  intent.IntentID,
	})
}

func (h *ReservationHandler) GetReservation(c *fiber.Ctx) error {
	reservationID, ok := parseReservationID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reservation id"})
	}

	detail, err := h.reservations.Get(c.Context(), reservationID)
	if err != nil {
		return h.mapReservationError(c, err)
	}

	return c.JSON(fiber.Map{"reservation": publicReservation(&detail.Reservation)})
}

func (h *ReservationHandler) returnURLs(c *fiber.Ctx) gateway.ReturnURLs {
	base := h.publicBaseURL
	if base == "" {
		base = strings.TrimRight(c.Get(fiber.HeaderOrigin), "/")
	}
	if base == "" {
		return gateway.ReturnURLs{}
	}
	return gateway.ReturnURLs{
		Success: base + "/payment/success",
		Failure: base + "/payment/failure",
		Pending: base + "/payment/pending",
	}
}

func (h *ReservationHandler) mapReservationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrSlotConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "The requested slot is no longer available"})
	case errors.Is(err, services.ErrAlreadyFinalized):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Reservation is already finalized"})
	case errors.Is(err, services.ErrReservationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reservation not found"})
	case errors.Is(err, services.ErrGatewayUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment gateway unavailable, retry the payment"})
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("reservation request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process reservation request"})
	}
}

// publicReservation hides the staff notes from customer facing responses.
func publicReservation(reservation *models.Reservation) models.Reservation {
	view := *reservation
	view.InternalNotes = nil
	return view
}

func parseReservationID(c *fiber.Ctx) (string, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func parseDuration(c *fiber.Ctx, resource models.Resource) (int, error) {
	raw := strings.TrimSpace(c.Query("duration"))
	if raw == "" {
		return resource.DefaultDurationMinutes(), nil
	}
	duration, err := strconv.Atoi(raw)
	if err != nil || duration <= 0 {
		return 0, errors.New("invalid duration")
	}
	return duration, nil
}
