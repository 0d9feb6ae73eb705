package repository

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, report *models.DamageReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO damage_report (
			id, run_id, policy_id, ledger_policy_id,
			weather_damage, vegetation_damage, combined_index, payout_amount,
			assessed_at, outcome, tx_hash, reject_reason, created_at
		) VALUES (
			:id, :run_id, :policy_id, :ledger_policy_id,
			:weather_damage, :vegetation_damage, :combined_index, :payout_amount,
			:assessed_at, :outcome, :tx_hash, :reject_reason, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, report)
	if err != nil {
		return fmt.Errorf("failed to create damage report: %w", err)
	}

	return nil
}

func (r *ReportRepository) GetByRunID(ctx context.Context, runID uuid.UUID) ([]models.DamageReport, error) {
	var reports []models.DamageReport
	query := `
		SELECT id, run_id, policy_id, ledger_policy_id,
			weather_damage, vegetation_damage, combined_index, payout_amount,
			assessed_at, outcome, tx_hash, reject_reason, created_at
		FROM damage_report
		WHERE run_id = $1
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &reports, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports by run id: %w", err)
	}

	return reports, nil
}

func (r *ReportRepository) GetByPolicyID(ctx context.Context, policyID string, limit int) ([]models.DamageReport, error) {
	var reports []models.DamageReport
	query := `
		SELECT id, run_id, policy_id, ledger_policy_id,
			weather_damage, vegetation_damage, combined_index, payout_amount,
			assessed_at, outcome, tx_hash, reject_reason, created_at
		FROM damage_report
		WHERE policy_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &reports, query, policyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports by policy id: %w", err)
	}

	return reports, nil
}
