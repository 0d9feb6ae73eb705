package chain

import (
	"errors"
	"fmt"
	"time"
)

// SimulationRevertError means the pre-flight dry-run failed. The transaction
// was never broadcast and no nonce was consumed. Not retried.
type SimulationRevertError struct {
	Reason string
}

func (e *SimulationRevertError) Error() string {
	return fmt.Sprintf("simulation reverted: %s", e.Reason)
}

// SubmissionError means the broadcast itself failed. A caller-initiated retry
// will acquire a fresh nonce because the sequencer re-syncs after this error.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("transaction submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfirmationTimeoutError means the confirmation wait expired. The
// transaction's fate is ambiguous: it may still be mined. The caller must
// poll for its fate rather than resubmit.
type ConfirmationTimeoutError struct {
	TxHash string
	Waited time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %s; fate unknown, poll before acting", e.TxHash, e.Waited)
}

// ContractRevertError means the ledger mined the transaction and rejected it.
// For settlement reports this covers stale report, already paid, threshold
// re-check and claim-limit rejections.
type ContractRevertError struct {
	TxHash string
	Reason string
}

func (e *ContractRevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted on ledger", e.TxHash)
	}
	return fmt.Sprintf("transaction %s reverted on ledger: %s", e.TxHash, e.Reason)
}

// IsContractRevert reports whether err is a ledger-side revert.
func IsContractRevert(err error) bool {
	var revert *ContractRevertError
	return errors.As(err, &revert)
}

// IsConfirmationTimeout reports whether err is an ambiguous confirmation timeout.
func IsConfirmationTimeout(err error) bool {
	var timeout *ConfirmationTimeoutError
	return errors.As(err, &timeout)
}

// IsSimulationRevert reports whether err is a pre-flight failure.
func IsSimulationRevert(err error) bool {
	var sim *SimulationRevertError
	return errors.As(err, &sim)
}
