package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// AttestationClient asks the consensus-network coordinator for a signature
// over a report payload hash. The settlement contract verifies this
// signature, which is what makes a report provably the output of the
// consensus process rather than a single participant.
type AttestationClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewAttestationClient(baseURL, apiKey string) *AttestationClient {
	return &AttestationClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type attestRequest struct {
	PayloadHash string `json:"payload_hash"`
}

type attestResponse struct {
	Signature string `json:"signature"`
}

// Attest returns the 65-byte network signature for a payload hash.
func (c *AttestationClient) Attest(ctx context.Context, payloadHash [32]byte) ([]byte, error) {
	body, err := json.Marshal(attestRequest{PayloadHash: "0x" + hex.EncodeToString(payloadHash[:])})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attestation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/attest", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create attestation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling attestation coordinator: %v", err)
		return nil, fmt.Errorf("failed to call attestation coordinator: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attestation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Attestation coordinator returned non-200 status: %d, body: %s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("attestation coordinator error: status %d", resp.StatusCode)
	}

	var result attestResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse attestation response: %w", err)
	}

	signature, err := hex.DecodeString(trimHexPrefix(result.Signature))
	if err != nil {
		return nil, fmt.Errorf("attestation signature is not hex: %w", err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("attestation signature must be 65 bytes, got %d", len(signature))
	}
	return signature, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
