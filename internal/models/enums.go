package models

// TxStatus represents the lifecycle state of a pending ledger transaction
type TxStatus string

const (
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusReverted  TxStatus = "reverted"
	// TxStatusTimedOut marks a transaction whose confirmation wait expired.
	// Its on-ledger fate is unknown; it must be polled, never resubmitted.
	TxStatusTimedOut TxStatus = "timed_out"
)

// PoolVariant represents the kind of capital pool
type PoolVariant string

const (
	PoolVariantPublic  PoolVariant = "public"
	PoolVariantPrivate PoolVariant = "private"
	PoolVariantMutual  PoolVariant = "mutual"
)

// IsValidPoolVariant checks if a pool variant is valid
func IsValidPoolVariant(variant PoolVariant) bool {
	switch variant {
	case PoolVariantPublic, PoolVariantPrivate, PoolVariantMutual:
		return true
	default:
		return false
	}
}

// RunStatus represents the lifecycle state of one assessment run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// PolicyOutcome represents the result of assessing a single policy in a run
type PolicyOutcome string

const (
	OutcomeBelowThreshold PolicyOutcome = "below_threshold"
	OutcomeSubmitted      PolicyOutcome = "submitted"
	// OutcomeRejected means the settlement contract refused the report
	// (stale, already paid, below its own threshold re-check, claim limit).
	// This is an expected no-op, not a pipeline failure.
	OutcomeRejected PolicyOutcome = "rejected"
	OutcomeErrored  PolicyOutcome = "errored"
)
