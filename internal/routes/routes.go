package routes

import (
	"strings"

	"github.com/dumxhh/play-book-app/internal/config"
	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/handlers"
	"github.com/dumxhh/play-book-app/internal/middleware"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/dumxhh/play-book-app/internal/services"
	reservationws "github.com/dumxhh/play-book-app/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Dependencies are the process level resources the HTTP layer is built on.
type Dependencies struct {
	DB       *pgxpool.Pool
	Gateway  gateway.Gateway
	Hub      *reservationws.Hub
	Notifier services.Notifier
	Logger   zerolog.Logger
}

func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{AppName: cfg.ServiceName})

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	return app
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) {
	reservationRepo := repository.NewReservationRepository(deps.DB)
	timeBlockRepo := repository.NewTimeBlockRepository(deps.DB)
	transactionRepo := repository.NewTransactionRepository(deps.DB)

	resolver := services.NewSlotResolver(services.SystemClock, cfg.Location(), nil)
	reservationService := services.NewReservationService(
		deps.DB,
		resolver,
		reservationRepo,
		timeBlockRepo,
		transactionRepo,
		services.SystemClock,
		deps.Logger,
	)
	timeBlockService := services.NewTimeBlockService(deps.DB, resolver, timeBlockRepo, deps.Logger)
	intentService := services.NewIntentService(
		reservationService,
		transactionRepo,
		deps.Gateway,
		cfg.Currency,
		cfg.GatewayTimeout,
		deps.Logger,
	)
	reconciler := services.NewReconciler(
		deps.Gateway,
		reservationService,
		transactionRepo,
		deps.Notifier,
		cfg.Currency,
		cfg.GatewayTimeout,
		deps.Logger,
	)

	reservationHandler := handlers.NewReservationHandler(reservationService, intentService, cfg.PublicBaseURL, deps.Logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, deps.Logger)
	adminHandler := handlers.NewAdminHandler(reservationService, timeBlockService, deps.Notifier, deps.Hub, deps.Logger)
	authHandler := handlers.NewAuthHandler(cfg.AdminUsername, strings.TrimSpace(cfg.AdminPasswordHash), cfg.JWTSecret, deps.Logger)

	app.Post("/webhooks/payment", webhookHandler.HandlePayment)

	api := app.Group("/api")
	api.Post("/admin/login", authHandler.Login)

	v1 := api.Group("/v1")
	v1.Get("/availability", reservationHandler.CheckAvailability)
	v1.Get("/availability/slots", reservationHandler.DaySlots)

	reservations := v1.Group("/reservations")
	reservations.Post("", reservationHandler.CreateReservation)
	reservations.Get("/:id", reservationHandler.GetReservation)
	reservations.Post("/:id/payment", reservationHandler.RetryPayment)

	admin := v1.Group("/admin", middleware.AdminRequired(cfg.JWTSecret))
	admin.Get("/me", authHandler.Me)
	admin.Post("/reservations", adminHandler.CreateReservation)
	admin.Get("/reservations", adminHandler.ListReservations)
	admin.Get("/reservations/:id", adminHandler.GetReservation)
	admin.Put("/reservations/:id/status", adminHandler.UpdateStatus)
	admin.Post("/reservations/:id/refund", adminHandler.Refund)
	admin.Get("/time-blocks", adminHandler.ListTimeBlocks)
	admin.Post("/time-blocks", adminHandler.CreateTimeBlock)
	admin.Delete("/time-blocks/:id", adminHandler.DeleteTimeBlock)

	admin.Use("/ws", adminHandler.WebSocketUpgrade)
	admin.Get("/ws", websocket.New(adminHandler.HandleWebSocket))
}
