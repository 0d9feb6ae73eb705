package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"settlement-service/internal/models"
)

// Call is one contract invocation: target, calldata and limits.
type Call struct {
	To       string
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// PendingTransaction tracks one dispatched call until it reaches a terminal
// state. A timeout leaves it in the ambiguous timed_out state; it is never
// retried automatically.
type PendingTransaction struct {
	TxHash string
	To     string
	Data   []byte
	Nonce  uint64
	Status models.TxStatus
}

// Dispatcher submits transactions for one backend and waits for their
// confirmation. The two implementations (delegated custody wallet, direct
// platform wallet) share this contract and are selected by the caller's
// signing identity, not by call-site branching.
type Dispatcher interface {
	// Simulate dry-runs the call. A failure surfaces immediately as
	// SimulationRevertError; no nonce is consumed.
	Simulate(ctx context.Context, from string, call Call) error

	// Submit broadcasts the call using a nonce from the held session.
	Submit(ctx context.Context, sess *Session, call Call) (*PendingTransaction, error)

	// WaitForConfirmation blocks until the transaction has the requested
	// number of confirmations, it reverts, or the timeout expires.
	WaitForConfirmation(ctx context.Context, tx *PendingTransaction, confirmations int, timeout time.Duration) (*Receipt, error)

	// CallView executes a read-only call (allowance checks and the like).
	CallView(ctx context.Context, from string, call Call) ([]byte, error)
}

// Dispatchers routes a signing identity to its backend.
type Dispatchers struct {
	custody  Dispatcher
	platform Dispatcher
}

func NewDispatchers(custody, platform Dispatcher) *Dispatchers {
	return &Dispatchers{custody: custody, platform: platform}
}

func (d *Dispatchers) For(identity SigningIdentity) (Dispatcher, error) {
	switch identity.Kind {
	case IdentityCustody:
		if d.custody == nil {
			return nil, fmt.Errorf("custody wallet backend is not configured")
		}
		return d.custody, nil
	case IdentityPlatform:
		if d.platform == nil {
			return nil, fmt.Errorf("platform wallet backend is not configured")
		}
		return d.platform, nil
	default:
		return nil, fmt.Errorf("unknown identity kind: %s", identity.Kind)
	}
}

// Engine ties the sequencer and the dispatch backends together and applies
// the confirmation policy from configuration.
type Engine struct {
	seq           *Sequencer
	dispatchers   *Dispatchers
	confirmations int
	timeout       time.Duration
}

func NewEngine(seq *Sequencer, dispatchers *Dispatchers, confirmations int, timeout time.Duration) *Engine {
	return &Engine{
		seq:           seq,
		dispatchers:   dispatchers,
		confirmations: confirmations,
		timeout:       timeout,
	}
}

// TxContext is handed to a serialized operation. Every Dispatch through it
// uses the same held identity slot, so dependent sub-transactions get
// strictly increasing nonces.
type TxContext struct {
	engine *Engine
	sess   *Session
	disp   Dispatcher
}

// Execute runs a single call end to end: pre-flight simulation BEFORE the
// identity lock is acquired (invalid calls fail fast without consuming a
// nonce or blocking other work), then serialized submit and confirmation wait.
func (e *Engine) Execute(ctx context.Context, identity SigningIdentity, call Call) (*Receipt, error) {
	disp, err := e.dispatchers.For(identity)
	if err != nil {
		return nil, err
	}

	if err := disp.Simulate(ctx, identity.Address, call); err != nil {
		return nil, err
	}

	var receipt *Receipt
	err = e.seq.Serialize(ctx, identity, func(sess *Session) error {
		txCtx := &TxContext{engine: e, sess: sess, disp: disp}
		receipt, err = txCtx.submitAndWait(ctx, call)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ExecuteSerialized runs a multi-step operation under one identity lock.
// Each step dispatches through the provided TxContext.
func (e *Engine) ExecuteSerialized(ctx context.Context, identity SigningIdentity, op func(txCtx *TxContext) error) error {
	disp, err := e.dispatchers.For(identity)
	if err != nil {
		return err
	}
	return e.seq.Serialize(ctx, identity, func(sess *Session) error {
		return op(&TxContext{engine: e, sess: sess, disp: disp})
	})
}

// Identity returns the identity holding this serialized section.
func (t *TxContext) Identity() SigningIdentity { return t.sess.Identity() }

// CallView executes a read-only call with the held identity as caller.
func (t *TxContext) CallView(ctx context.Context, call Call) ([]byte, error) {
	return t.disp.CallView(ctx, t.sess.Identity().Address, call)
}

// Dispatch simulates, submits and waits for one call within the serialized
// section. Simulation failures fail fast without consuming a nonce.
func (t *TxContext) Dispatch(ctx context.Context, call Call) (*Receipt, error) {
	if err := t.disp.Simulate(ctx, t.sess.Identity().Address, call); err != nil {
		return nil, err
	}
	return t.submitAndWait(ctx, call)
}

func (t *TxContext) submitAndWait(ctx context.Context, call Call) (*Receipt, error) {
	tx, err := t.disp.Submit(ctx, t.sess, call)
	if err != nil {
		// Force a nonce re-sync so a caller-initiated retry gets a
		// fresh nonce.
		t.sess.ResetNonce()
		return nil, &SubmissionError{Err: err}
	}

	slog.Info("Transaction submitted",
		"tx_hash", tx.TxHash,
		"to", tx.To,
		"nonce", tx.Nonce,
		"identity", t.sess.Identity().Address)

	receipt, err := t.disp.WaitForConfirmation(ctx, tx, t.engine.confirmations, t.engine.timeout)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// PollTransaction checks the current fate of a previously timed-out
// transaction. This is the explicit follow-up the timeout error demands;
// there is no automatic reconciliation.
func (e *Engine) PollTransaction(ctx context.Context, identity SigningIdentity, tx *PendingTransaction) (models.TxStatus, error) {
	disp, err := e.dispatchers.For(identity)
	if err != nil {
		return "", err
	}
	receipt, err := disp.WaitForConfirmation(ctx, tx, e.confirmations, time.Second)
	if err != nil {
		if IsConfirmationTimeout(err) {
			return models.TxStatusTimedOut, nil
		}
		if IsContractRevert(err) {
			return models.TxStatusReverted, nil
		}
		return "", err
	}
	if receipt.Succeeded() {
		return models.TxStatusConfirmed, nil
	}
	return models.TxStatusReverted, nil
}

// receiptPollInterval is how often the confirmation loop checks for a receipt.
var receiptPollInterval = 2 * time.Second

// waitForReceipt is the shared confirmation loop used by both backends. The
// transaction is already broadcast when this runs, so a failing poll leaves
// its fate exactly as ambiguous as a timeout: errors are retried until the
// deadline converts them into a ConfirmationTimeoutError carrying the hash.
func waitForReceipt(ctx context.Context, rpc *RPCClient, tx *PendingTransaction, confirmations int, timeout time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := rpc.TransactionReceipt(ctx, tx.TxHash)
		switch {
		case err != nil:
			slog.Warn("Receipt poll failed, retrying", "tx_hash", tx.TxHash, "error", err)
		case receipt != nil:
			if !receipt.Succeeded() {
				tx.Status = models.TxStatusReverted
				return nil, &ContractRevertError{TxHash: tx.TxHash, Reason: fetchRevertReason(ctx, rpc, tx)}
			}
			head, err := rpc.BlockNumber(ctx)
			if err != nil {
				slog.Warn("Head block read failed, retrying", "tx_hash", tx.TxHash, "error", err)
			} else if head+1 >= receipt.BlockNumber+uint64(confirmations) {
				tx.Status = models.TxStatusConfirmed
				return receipt, nil
			}
		}

		if time.Now().After(deadline) {
			tx.Status = models.TxStatusTimedOut
			return nil, &ConfirmationTimeoutError{TxHash: tx.TxHash, Waited: timeout}
		}

		select {
		case <-ctx.Done():
			tx.Status = models.TxStatusTimedOut
			return nil, &ConfirmationTimeoutError{TxHash: tx.TxHash, Waited: timeout}
		case <-ticker.C:
		}
	}
}

// fetchRevertReason replays the reverted call to recover its reason string.
// A transaction recovered by hash alone has no call to replay.
func fetchRevertReason(ctx context.Context, rpc *RPCClient, tx *PendingTransaction) string {
	if tx.To == "" || len(tx.Data) == 0 {
		return ""
	}
	_, err := rpc.Call(ctx, "", tx.To, tx.Data)
	if err != nil {
		var node *nodeError
		if errors.As(err, &node) {
			return node.RevertReason()
		}
	}
	return ""
}
