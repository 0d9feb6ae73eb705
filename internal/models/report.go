package models

import (
	"time"

	"github.com/google/uuid"
)

// DamageReport is one assessment of one policy. Constructed fresh each run
// and submitted at most once per run. Invariants:
//
//	CombinedIndex = floor((60*WeatherDamage + 40*VegetationDamage) / 100), capped at 100
//	PayoutAmount  = floor(SumInsured * CombinedIndex / 100)
type DamageReport struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	RunID            uuid.UUID     `db:"run_id" json:"run_id"`
	PolicyID         string        `db:"policy_id" json:"policy_id"`
	LedgerPolicyID   uint64        `db:"ledger_policy_id" json:"ledger_policy_id"`
	WeatherDamage    int           `db:"weather_damage" json:"weather_damage"`
	VegetationDamage int           `db:"vegetation_damage" json:"vegetation_damage"`
	CombinedIndex    int           `db:"combined_index" json:"combined_index"`
	PayoutAmount     string        `db:"payout_amount" json:"payout_amount"`
	AssessedAt       time.Time     `db:"assessed_at" json:"assessed_at"`
	Outcome          PolicyOutcome `db:"outcome" json:"outcome"`
	TxHash           *string       `db:"tx_hash" json:"tx_hash,omitempty"`
	RejectReason     *string       `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// AssessmentRun is the operator-visible summary of one pipeline cycle.
type AssessmentRun struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Status     RunStatus  `db:"status" json:"status"`
	Assessed   int        `db:"assessed" json:"assessed"`
	Submitted  int        `db:"submitted" json:"submitted"`
	Rejected   int        `db:"rejected" json:"rejected"`
	Errored    int        `db:"errored" json:"errored"`
	AbortCause *string    `db:"abort_cause" json:"abort_cause,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
