package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// RPCClient is a minimal JSON-RPC client for the target ledger node.
type RPCClient struct {
	httpClient *http.Client
	url        string
	nextID     atomic.Int64
}

func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling ledger RPC %s: %v", method, err)
		return fmt.Errorf("failed to call ledger RPC: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read RPC response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("Ledger RPC returned non-200 status: %d, body: %s", resp.StatusCode, string(body))
		return fmt.Errorf("ledger RPC error: status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return &nodeError{code: rpcResp.Error.Code, message: rpcResp.Error.Message, data: rpcResp.Error.Data}
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to parse RPC result: %w", err)
		}
	}
	return nil
}

// nodeError is a JSON-RPC level error from the node. The data field may carry
// an ABI-encoded revert reason.
type nodeError struct {
	code    int
	message string
	data    string
}

func (e *nodeError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.code, e.message)
}

// RevertReason extracts a human-readable revert reason when the node attached
// one, falling back to the node's message.
func (e *nodeError) RevertReason() string {
	if reason := decodeRevertReason(e.data); reason != "" {
		return reason
	}
	return e.message
}

// BlockNumber returns the current head height.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return hexToUint64(result)
}

// TransactionCount returns the next nonce for an address.
func (c *RPCClient) TransactionCount(ctx context.Context, address string) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_getTransactionCount", []any{address, "pending"}, &result); err != nil {
		return 0, fmt.Errorf("failed to read transaction count for %s: %w", address, err)
	}
	return hexToUint64(result)
}

// Call executes a read-only contract call.
func (c *RPCClient) Call(ctx context.Context, from, to string, data []byte) ([]byte, error) {
	msg := map[string]any{"to": to, "data": encodeHex(data)}
	if from != "" {
		msg["from"] = from
	}
	var result string
	if err := c.call(ctx, "eth_call", []any{msg, "latest"}, &result); err != nil {
		return nil, err
	}
	return decodeHex(result)
}

// EstimateGas dry-runs the transaction and returns its gas cost. A revert
// during estimation surfaces as a nodeError carrying the reason.
func (c *RPCClient) EstimateGas(ctx context.Context, from, to string, data []byte, value *big.Int) (uint64, error) {
	msg := map[string]any{"from": from, "to": to, "data": encodeHex(data)}
	if value != nil && value.Sign() > 0 {
		msg["value"] = "0x" + value.Text(16)
	}
	var result string
	if err := c.call(ctx, "eth_estimateGas", []any{msg}, &result); err != nil {
		return 0, err
	}
	return hexToUint64(result)
}

// SendTransaction submits a transaction through a node-managed account.
func (c *RPCClient) SendTransaction(ctx context.Context, tx map[string]any) (string, error) {
	var hash string
	if err := c.call(ctx, "eth_sendTransaction", []any{tx}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

type rawReceipt struct {
	TransactionHash string   `json:"transactionHash"`
	Status          string   `json:"status"`
	BlockNumber     string   `json:"blockNumber"`
	GasUsed         string   `json:"gasUsed"`
	Logs            []rawLog `json:"logs"`
}

type rawLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// TransactionReceipt returns the receipt, or nil while the transaction is
// still pending.
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var raw *rawReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	status, err := hexToUint64(raw.Status)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt status %q: %w", raw.Status, err)
	}
	blockNumber, err := hexToUint64(raw.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt block number %q: %w", raw.BlockNumber, err)
	}
	gasUsed, _ := hexToUint64(raw.GasUsed)

	receipt := &Receipt{
		TxHash:      raw.TransactionHash,
		Status:      status,
		BlockNumber: blockNumber,
		GasUsed:     gasUsed,
	}
	for _, l := range raw.Logs {
		data, err := decodeHex(l.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid log data in receipt %s: %w", txHash, err)
		}
		receipt.Logs = append(receipt.Logs, Log{Address: l.Address, Topics: l.Topics, Data: data})
	}
	return receipt, nil
}

// decodeRevertReason unpacks the standard Error(string) revert payload.
func decodeRevertReason(dataHex string) string {
	data, err := decodeHex(dataHex)
	if err != nil || len(data) < 68 {
		return ""
	}
	// 0x08c379a0 is the Error(string) selector
	if encodeHex(data[:4]) != "0x08c379a0" {
		return ""
	}
	length := new(big.Int).SetBytes(data[36:68]).Uint64()
	if uint64(len(data)) < 68+length {
		return ""
	}
	return string(data[68 : 68+length])
}

func hexToUint64(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
