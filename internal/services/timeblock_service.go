package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type timeBlockStore interface {
	List(ctx context.Context, fromDate string) ([]models.TimeBlock, error)
	Delete(ctx context.Context, id int64) error
}

// TimeBlockService manages the blackout windows administrators put on a
// resource. Blocks are read by the availability checks like reservations.
type TimeBlockService struct {
	resolver      *SlotResolver
	locker        bookingLocker
	timeBlockRepo timeBlockStore
	logger        zerolog.Logger
}

func NewTimeBlockService(
	db *pgxpool.Pool,
	resolver *SlotResolver,
	timeBlockRepo *repository.TimeBlockRepository,
	logger zerolog.Logger,
) *TimeBlockService {
	return &TimeBlockService{
		resolver:      resolver,
		locker:        pgBookingLocker{db: db},
		timeBlockRepo: timeBlockRepo,
		logger:        logger,
	}
}

type CreateTimeBlockInput struct {
	Resource  models.Resource
	Date      string
	StartTime string
	EndTime   string
	Reason    string
}

func (s *TimeBlockService) Create(
	ctx context.Context,
	actor string,
	input CreateTimeBlockInput,
) (*models.TimeBlock, error) {
	block := models.TimeBlock{
		Resource:  input.Resource,
		Date:      strings.TrimSpace(input.Date),
		StartTime: strings.TrimSpace(input.StartTime),
		EndTime:   strings.TrimSpace(input.EndTime),
		Reason:    strings.TrimSpace(input.Reason),
	}
	if !block.Resource.Valid() {
		return nil, invalidRequest("unknown resource %q", input.Resource)
	}
	if block.Reason == "" {
		return nil, invalidRequest("reason is required")
	}
	interval, err := s.resolver.BlockInterval(block)
	if err != nil {
		return nil, err
	}
	fromDate, toDate, err := s.resolver.LookupWindow(block.Date)
	if err != nil {
		return nil, err
	}

	// Written under the booking lock so a block cannot slip in between a
	// booking's availability check and its insert.
	var created *models.TimeBlock
	err = s.locker.WithBookingLock(ctx, block.Resource, func(reservations bookingWriter, blocks blockWriter) error {
		active, err := reservations.ListActiveBetween(ctx, block.Resource, fromDate, toDate)
		if err != nil {
			return err
		}
		if !s.resolver.IsAvailable(interval, active, nil) {
			s.logger.Warn().
				Str("resource", string(block.Resource)).
				Str("date", block.Date).
				Str("start_time", block.StartTime).
				Str("end_time", block.EndTime).
				Msg("time block overlaps active reservations")
		}

		created, err = blocks.Create(ctx, repository.CreateTimeBlockInput{
			Resource:  block.Resource,
			Date:      block.Date,
			StartTime: block.StartTime,
			EndTime:   block.EndTime,
			Reason:    block.Reason,
			CreatedBy: actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("time_block_id", created.ID).
		Str("resource", string(created.Resource)).
		Str("date", created.Date).
		Str("created_by", actor).
		Msg("time block created")
	return created, nil
}

func (s *TimeBlockService) List(ctx context.Context, fromDate string) ([]models.TimeBlock, error) {
	if fromDate = strings.TrimSpace(fromDate); fromDate != "" {
		if _, _, err := s.resolver.LookupWindow(fromDate); err != nil {
			return nil, err
		}
	}
	return s.timeBlockRepo.List(ctx, fromDate)
}

func (s *TimeBlockService) Delete(ctx context.Context, id int64) error {
	if err := s.timeBlockRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTimeBlockNotFound
		}
		return err
	}
	s.logger.Info().Int64("time_block_id", id).Msg("time block deleted")
	return nil
}
