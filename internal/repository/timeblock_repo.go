package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/jackc/pgx/v5"
)

const timeBlockColumns = `id, resource, to_char(date, 'YYYY-MM-DD'), start_time, end_time, reason, created_by, created_at`

type CreateTimeBlockInput struct {
	Resource  models.Resource
	Date      string
	StartTime string
	EndTime   string
	Reason    string
	CreatedBy string
}

type TimeBlockRepository struct {
	db DBTX
}

func NewTimeBlockRepository(db DBTX) *TimeBlockRepository {
	return &TimeBlockRepository{db: db}
}

func (r *TimeBlockRepository) Create(ctx context.Context, input CreateTimeBlockInput) (*models.TimeBlock, error) {
	query := `
		INSERT INTO time_blocks (resource, date, start_time, end_time, reason, created_by)
		VALUES ($1, $2::date, $3, $4, $5, $6)
		RETURNING ` + timeBlockColumns

	return scanTimeBlock(r.db.QueryRow(
		ctx,
		query,
		string(input.Resource),
		input.Date,
		input.StartTime,
		input.EndTime,
		input.Reason,
		input.CreatedBy,
	))
}

func (r *TimeBlockRepository) ListBetween(
	ctx context.Context,
	resource models.Resource,
	fromDate string,
	toDate string,
) ([]models.TimeBlock, error) {
	query := `
		SELECT ` + timeBlockColumns + `
		FROM time_blocks
		WHERE resource = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date ASC, start_time ASC
	`
	rows, err := r.db.Query(ctx, query, string(resource), fromDate, toDate)
	if err != nil {
		return nil, err
	}
	return collectTimeBlocks(rows)
}

func (r *TimeBlockRepository) List(ctx context.Context, fromDate string) ([]models.TimeBlock, error) {
	args := []any{}
	where := "TRUE"
	if strings.TrimSpace(fromDate) != "" {
		args = append(args, fromDate)
		where = "date >= $1::date"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM time_blocks
		WHERE %s
		ORDER BY date ASC, start_time ASC
	`, timeBlockColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTimeBlocks(rows)
}

func (r *TimeBlockRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM time_blocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectTimeBlocks(rows pgx.Rows) ([]models.TimeBlock, error) {
	defer rows.Close()

	blocks := make([]models.TimeBlock, 0)
	for rows.Next() {
		block, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *block)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func scanTimeBlock(row pgx.Row) (*models.TimeBlock, error) {
	var (
		block    models.TimeBlock
		resource string
	)
	if err := row.Scan(
		&block.ID,
		&resource,
		&block.Date,
		&block.StartTime,
		&block.EndTime,
		&block.Reason,
		&block.CreatedBy,
		&block.CreatedAt,
	); err != nil {
		return nil, err
	}
	block.Resource = models.Resource(resource)
	return &block, nil
}
