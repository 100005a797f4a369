package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dumxhh/play-book-app/internal/config"
	"github.com/dumxhh/play-book-app/internal/database"
	"github.com/dumxhh/play-book-app/internal/events"
	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/logging"
	"github.com/dumxhh/play-book-app/internal/obs"
	"github.com/dumxhh/play-book-app/internal/routes"
	"github.com/dumxhh/play-book-app/internal/services"
	reservationws "github.com/dumxhh/play-book-app/internal/websocket"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}

	// 2. Connect to Database
	db, err := database.Connect(ctx, cfg.DBUrl, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	paymentGateway, err := newGateway(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure payment gateway")
	}

	// 3. Confirmation fan-out
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := reservationws.NewHub(logger)
	go hub.Run(hubCtx)

	notifiers := []services.Notifier{hub}
	var publisher *events.Publisher
	if cfg.RabbitURL != "" {
		publisher, err = events.NewPublisher(cfg.RabbitURL, cfg.ReservationExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		notifiers = append(notifiers, publisher)
	}

	// 4. Setup Fiber
	app := routes.NewApp(cfg)
	routes.RegisterRoutes(app, cfg, routes.Dependencies{
		DB:       db,
		Gateway:  paymentGateway,
		Hub:      hub,
		Notifier: services.NewNotifiers(logger, notifiers...),
		Logger:   logger,
	})

	// 5. Start Server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("gateway", paymentGateway.Name()).
			Str("timezone", cfg.Timezone).
			Msg("server starting")
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}

	stopHub()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("rabbitmq close")
		}
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown")
	}
}

func newGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.PaymentGateway {
	case "omise":
		omise, err := gateway.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType)
		if err != nil {
			return nil, err
		}
		return omise, nil
	case "mercadopago":
		return gateway.NewMercadoPago(cfg.MercadoPagoAPIURL, cfg.MercadoPagoAccessToken, cfg.GatewayTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.PaymentGateway)
	}
}
