package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/models"
)

// PlatformWallet dispatches through an account managed by the platform's own
// signer node. Used for administrative operations and as the fallback when an
// organization has no custody wallet.
type PlatformWallet struct {
	rpc      *RPCClient
	chainID  int64
	gasLimit uint64
}

func NewPlatformWallet(rpc *RPCClient, chainID int64, gasLimit uint64) *PlatformWallet {
	return &PlatformWallet{rpc: rpc, chainID: chainID, gasLimit: gasLimit}
}

func (w *PlatformWallet) Simulate(ctx context.Context, from string, call Call) error {
	_, err := w.rpc.EstimateGas(ctx, from, call.To, call.Data, call.Value)
	if err != nil {
		var node *nodeError
		if errors.As(err, &node) {
			return &SimulationRevertError{Reason: node.RevertReason()}
		}
		return fmt.Errorf("simulation failed: %w", err)
	}
	return nil
}

func (w *PlatformWallet) Submit(ctx context.Context, sess *Session, call Call) (*PendingTransaction, error) {
	nonce, err := sess.NextNonce(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := call.GasLimit
	if gasLimit == 0 {
		gasLimit = w.gasLimit
	}

	tx := map[string]any{
		"from":    sess.Identity().Address,
		"to":      call.To,
		"data":    encodeHex(call.Data),
		"nonce":   fmt.Sprintf("0x%x", nonce),
		"gas":     fmt.Sprintf("0x%x", gasLimit),
		"chainId": fmt.Sprintf("0x%x", w.chainID),
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		tx["value"] = "0x" + call.Value.Text(16)
	}

	hash, err := w.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &PendingTransaction{
		TxHash: hash,
		To:     call.To,
		Data:   call.Data,
		Nonce:  nonce,
		Status: models.TxStatusSubmitted,
	}, nil
}

func (w *PlatformWallet) WaitForConfirmation(ctx context.Context, tx *PendingTransaction, confirmations int, timeout time.Duration) (*Receipt, error) {
	return waitForReceipt(ctx, w.rpc, tx, confirmations, timeout)
}

func (w *PlatformWallet) CallView(ctx context.Context, from string, call Call) ([]byte, error) {
	return w.rpc.Call(ctx, from, call.To, call.Data)
}
