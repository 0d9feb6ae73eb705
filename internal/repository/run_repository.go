package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"settlement-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *models.AssessmentRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO assessment_run (
			id, status, assessed, submitted, rejected, errored,
			abort_cause, started_at, finished_at
		) VALUES (
			:id, :status, :assessed, :submitted, :rejected, :errored,
			:abort_cause, :started_at, :finished_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to create assessment run: %w", err)
	}

	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *models.AssessmentRun) error {
	query := `
		UPDATE assessment_run SET
			status = :status,
			assessed = :assessed,
			submitted = :submitted,
			rejected = :rejected,
			errored = :errored,
			abort_cause = :abort_cause,
			finished_at = :finished_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to update assessment run: %w", err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AssessmentRun, error) {
	var run models.AssessmentRun
	query := `
		SELECT id, status, assessed, submitted, rejected, errored,
			abort_cause, started_at, finished_at
		FROM assessment_run
		WHERE id = $1`

	err := r.db.GetContext(ctx, &run, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment run by id: %w", err)
	}

	return &run, nil
}

// GetLatest returns the most recently started run, or nil if none exist yet.
func (r *RunRepository) GetLatest(ctx context.Context) (*models.AssessmentRun, error) {
	var run models.AssessmentRun
	query := `
		SELECT id, status, assessed, submitted, rejected, errored,
			abort_cause, started_at, finished_at
		FROM assessment_run
		ORDER BY started_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &run, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest assessment run: %w", err)
	}

	return &run, nil
}
