package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/dumxhh/play-book-app/internal/services"
	reservationws "github.com/dumxhh/play-book-app/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type AdminHandler struct {
	reservations  adminReservationService
	timeBlocks    timeBlockService
	notifier      services.Notifier
	notifyTimeout time.Duration
	hub           *reservationws.Hub
	logger        zerolog.Logger
}

type adminReservationService interface {
	CreateWalkIn(ctx context.Context, input services.CreateReservationInput, actor, paymentStatus string) (*models.Reservation, error)
	List(ctx context.Context, filter repository.ReservationListFilter) ([]models.ReservationDetail, error)
	Get(ctx context.Context, id string) (*models.ReservationDetail, error)
	Override(ctx context.Context, id, status, actor, reason string) (*models.Reservation, error)
	AttachRefund(ctx context.Context, id string, amount float64, reason, actor string) (*models.Reservation, error)
}

type timeBlockService interface {
	Create(ctx context.Context, actor string, input services.CreateTimeBlockInput) (*models.TimeBlock, error)
	List(ctx context.Context, fromDate string) ([]models.TimeBlock, error)
	Delete(ctx context.Context, id int64) error
}

func NewAdminHandler(
	reservations *services.ReservationService,
	timeBlocks *services.TimeBlockService,
	notifier services.Notifier,
	hub *reservationws.Hub,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		reservations:  reservations,
		timeBlocks:    timeBlocks,
		notifier:      notifier,
		notifyTimeout: services.DefaultNotifyTimeout,
		hub:           hub,
		logger:        logger,
	}
}

type createWalkInRequest struct {
	Resource        string  `json:"resource" validate:"required,resource"`
	Date            string  `json:"date" validate:"required,date"`
	StartTime       string  `json:"start_time" validate:"required,hhmm"`
	DurationMinutes int     `json:"duration_minutes" validate:"gt=0,lte=1440"`
	CustomerName    string  `json:"customer_name" validate:"required,max=120"`
	CustomerPhone   string  `json:"customer_phone" validate:"required,max=40"`
	CustomerEmail   *string `json:"customer_email" validate:"omitempty,email"`
	Amount          float64 `json:"amount" validate:"gt=0"`
	PaymentStatus   string  `json:"payment_status" validate:"omitempty,oneof=pending completed"`
}

type updateReservationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed failed"`
	Reason string `json:"reason" validate:"max=500"`
}

type refundRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

type createTimeBlockRequest struct {
	Resource  string `json:"resource" validate:"required,resource"`
	Date      string `json:"date" validate:"required,date"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
	Reason    string `json:"reason" validate:"required,max=200"`
}

// CreateReservation books a walk-in or phone reservation. No checkout is
// issued; the booking is confirmed at once unless payment_status is pending.
func (h *AdminHandler) CreateReservation(c *fiber.Ctx) error {
	var req createWalkInRequest
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
	req.PaymentStatus = strings.ToLower(strings.TrimSpace(req.PaymentStatus))
	if msg := validateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	resource, _ := models.ParseResource(req.Resource)
	reservation, err := h.reservations.CreateWalkIn(c.Context(), services.CreateReservationInput{
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
	}, adminUsername(c), req.PaymentStatus)
	if err != nil {
		return h.mapAdminError(c, err)
	}

	if reservation.PaymentStatus == models.PaymentStatusCompleted {
		services.NotifyConfirmed(c.UserContext(), h.notifier, reservation.ID, h.notifyTimeout, h.logger)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"reservation": reservation})
}

func (h *AdminHandler) ListReservations(c *fiber.Ctx) error {
	filter := repository.ReservationListFilter{
		Date:   strings.TrimSpace(c.Query("date")),
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
	}
	if raw := strings.TrimSpace(c.Query("resource")); raw != "" {
		resource, err := models.ParseResource(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resource must be one of futbol, paddle, tenis, golf"})
		}
		filter.Resource = resource
	}

	reservations, err := h.reservations.List(c.Context(), filter)
	if err != nil {
		return h.mapAdminError(c, err)
	}

	return c.JSON(fiber.Map{"reservations": reservations})
}

func (h *AdminHandler) GetReservation(c *fiber.Ctx) error {
	reservationID, ok := parseReservationID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reservation id"})
	}

	detail, err := h.reservations.Get(c.Context(), reservationID)
	if err != nil {
		return h.mapAdminError(c, err)
	}

	return c.JSON(fiber.Map{"reservation": detail})
}

func (h *AdminHandler) UpdateStatus(c *fiber.Ctx) error {
	reservationID, ok := parseReservationID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reservation id"})
	}

	var req updateReservationStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if msg := validateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	reservation, err := h.reservations.Override(c.Context(), reservationID, req.Status, adminUsername(c), req.Reason)
	if err != nil {
		return h.mapAdminError(c, err)
	}

	if reservation.PaymentStatus == models.PaymentStatusCompleted {
		services.NotifyConfirmed(c.UserContext(), h.notifier, reservation.ID, h.notifyTimeout, h.logger)
	}
	return c.JSON(fiber.Map{"reservation": reservation})
}

func (h *AdminHandler) Refund(c *fiber.Ctx) error {
	reservationID, ok := parseReservationID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reservation id"})
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if msg := validateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	reservation, err := h.reservations.AttachRefund(c.Context(), reservationID, req.Amount, req.Reason, adminUsername(c))
	if err != nil {
		return h.mapAdminError(c, err)
	}

	return c.JSON(fiber.Map{"reservation": reservation})
}

func (h *AdminHandler) ListTimeBlocks(c *fiber.Ctx) error {
	blocks, err := h.timeBlocks.List(c.Context(), c.Query("from"))
	if err != nil {
		return h.mapAdminError(c, err)
	}
	return c.JSON(fiber.Map{"time_blocks": blocks})
}

func (h *AdminHandler) CreateTimeBlock(c *fiber.Ctx) error {
	var req createTimeBlockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if msg := validateRequest(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	resource, _ := models.ParseResource(req.Resource)
	block, err := h.timeBlocks.Create(c.Context(), adminUsername(c), services.CreateTimeBlockInput{
		Resource:  resource,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	})
	if err != nil {
		return h.mapAdminError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"time_block": block})
}

func (h *AdminHandler) DeleteTimeBlock(c *fiber.Ctx) error {
	blockID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || blockID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid time block id"})
	}

	if err := h.timeBlocks.Delete(c.Context(), blockID); err != nil {
		return h.mapAdminError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *AdminHandler) HandleWebSocket(conn *websocket.Conn) {
	username, _ := conn.Locals("username").(string)
	client := reservationws.NewClient(h.hub, conn, username)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}

func (h *AdminHandler) mapAdminError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrReservationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reservation not found"})
	case errors.Is(err, services.ErrTimeBlockNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Time block not found"})
	case errors.Is(err, services.ErrAlreadyFinalized):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Reservation is already finalized"})
	case errors.Is(err, services.ErrSlotConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Another reservation already holds this slot"})
	case errors.Is(err, services.ErrRefundExists):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "A refund is already recorded for this reservation"})
	case errors.Is(err, services.ErrRefundNotAllowed):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Only completed reservations can be refunded"})
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("admin request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process admin request"})
	}
}

func adminUsername(c *fiber.Ctx) string {
	if username, ok := c.Locals("username").(string); ok && username != "" {
		return username
	}
	return "admin"
}
