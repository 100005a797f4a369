package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dumxhh/play-book-app/internal/config"
	"github.com/dumxhh/play-book-app/internal/database"
	"github.com/dumxhh/play-book-app/internal/logging"
	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/dumxhh/play-book-app/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// openReservations builds the reservation service against the configured
// database. The caller closes the returned pool.
func openReservations(ctx context.Context) (*services.ReservationService, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.AppEnv)

	db, err := database.Connect(ctx, cfg.DBUrl, logger)
	if err != nil {
		return nil, nil, err
	}

	resolver := services.NewSlotResolver(services.SystemClock, cfg.Location(), nil)
	svc := services.NewReservationService(
		db,
		resolver,
		repository.NewReservationRepository(db),
		repository.NewTimeBlockRepository(db),
		repository.NewTransactionRepository(db),
		services.SystemClock,
		logger,
	)
	return svc, db, nil
}

func sweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail pending reservations that were never paid",
		Long: `Marks every pending reservation created before now minus --older-than
as failed so its slot becomes bookable again. A payment approved later for
one of these reservations is recorded on its transaction but does not revive it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, db, err := openReservations(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			expired, err := svc.ExpireStale(ctx, olderThan)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending reservation(s) older than %s\n", expired, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Age after which an unpaid reservation is failed")
	return cmd
}

func availabilityCmd() *cobra.Command {
	var (
		resource string
		date     string
		duration int
	)

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print the bookable start times of a resource for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := models.ParseResource(resource)
			if err != nil {
				return err
			}
			if strings.TrimSpace(date) == "" {
				date = time.Now().Format("2006-01-02")
			}
			if duration == 0 {
				duration = parsed.DefaultDurationMinutes()
			}

			ctx := cmd.Context()
			svc, db, err := openReservations(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			slots, err := svc.DaySlots(ctx, parsed, date, duration)
			if err != nil {
				return err
			}
			printSlots(cmd.OutOrStdout(), parsed, date, duration, slots)
			return nil
		},
	}

	cmd.Flags().StringVarP(&resource, "resource", "r", "", "Sport: futbol, paddle, tenis or golf")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day in YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&duration, "duration", 0, "Booking length in minutes (default depends on the sport)")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func printSlots(out io.Writer, resource models.Resource, date string, duration int, slots []services.SlotAvailability) {
	fmt.Fprintf(out, "%s on %s (%d min)\n", resource, date, duration)
	fmt.Fprintln(out, strings.Repeat("=", 28))
	free := 0
	for _, slot := range slots {
		state := "taken"
		if slot.Available {
			state = "free"
			free++
		}
		fmt.Fprintf(out, "  %-6s %s\n", slot.StartTime, state)
	}
	fmt.Fprintf(out, "%d of %d start times free\n", free, len(slots))
}
