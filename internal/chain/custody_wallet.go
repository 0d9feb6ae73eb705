package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"settlement-service/internal/models"
)

// CustodyWallet dispatches through a delegated-custody wallet API. Gas is
// sponsored by the custody provider; nonce ordering is still ours, so custody
// submissions go through the same sequencer as everything else.
type CustodyWallet struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chainID    int64
	rpc        *RPCClient
}

func NewCustodyWallet(baseURL, apiKey string, chainID int64, rpc *RPCClient) *CustodyWallet {
	return &CustodyWallet{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		chainID:    chainID,
		rpc:        rpc,
	}
}

type custodyTxRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Data      string `json:"data"`
	Value     string `json:"value,omitempty"`
	Nonce     uint64 `json:"nonce"`
	ChainID   int64  `json:"chain_id"`
	Sponsored bool   `json:"sponsored"`
}

type custodyTxResponse struct {
	TxHash string `json:"tx_hash"`
}

type custodySimulateResponse struct {
	OK           bool   `json:"ok"`
	RevertReason string `json:"revert_reason,omitempty"`
}

func (w *CustodyWallet) post(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal custody request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create custody request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", w.apiKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling custody API %s: %v", path, err)
		return 0, fmt.Errorf("failed to call custody API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read custody response: %w", err)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse custody response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (w *CustodyWallet) Simulate(ctx context.Context, from string, call Call) error {
	payload := custodyTxRequest{
		From:    from,
		To:      call.To,
		Data:    encodeHex(call.Data),
		ChainID: w.chainID,
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		payload.Value = call.Value.String()
	}

	var result custodySimulateResponse
	status, err := w.post(ctx, "/v1/transactions/simulate", payload, &result)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	if status == http.StatusUnprocessableEntity || !result.OK {
		return &SimulationRevertError{Reason: result.RevertReason}
	}
	if status != http.StatusOK {
		return fmt.Errorf("custody simulate returned status %d", status)
	}
	return nil
}

func (w *CustodyWallet) Submit(ctx context.Context, sess *Session, call Call) (*PendingTransaction, error) {
	nonce, err := sess.NextNonce(ctx)
	if err != nil {
		return nil, err
	}

	payload := custodyTxRequest{
		From:      sess.Identity().Address,
		To:        call.To,
		Data:      encodeHex(call.Data),
		Nonce:     nonce,
		ChainID:   w.chainID,
		Sponsored: true,
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		payload.Value = call.Value.String()
	}

	var result custodyTxResponse
	status, err := w.post(ctx, "/v1/transactions", payload, &result)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("custody submit returned status %d", status)
	}
	if result.TxHash == "" {
		return nil, fmt.Errorf("custody submit returned no transaction hash")
	}

	return &PendingTransaction{
		TxHash: result.TxHash,
		To:     call.To,
		Data:   call.Data,
		Nonce:  nonce,
		Status: models.TxStatusSubmitted,
	}, nil
}

// WaitForConfirmation reads confirmation state from the ledger directly; the
// custody provider only broadcasts.
func (w *CustodyWallet) WaitForConfirmation(ctx context.Context, tx *PendingTransaction, confirmations int, timeout time.Duration) (*Receipt, error) {
	return waitForReceipt(ctx, w.rpc, tx, confirmations, timeout)
}

func (w *CustodyWallet) CallView(ctx context.Context, from string, call Call) ([]byte, error) {
	return w.rpc.Call(ctx, from, call.To, call.Data)
}
