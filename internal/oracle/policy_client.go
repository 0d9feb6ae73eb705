package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// PolicyServiceClient is the authenticated write path back to the policy
// data service: once a settlement confirms on-ledger, the service is told so
// it can start the downstream payout handling.
type PolicyServiceClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewPolicyServiceClient(baseURL, apiKey string) *PolicyServiceClient {
	return &PolicyServiceClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// PayoutNotification tells the policy data service that a settlement
// confirmed for a policy.
type PayoutNotification struct {
	PolicyID      string `json:"policy_id"`
	CombinedIndex int    `json:"combined_index"`
	PayoutAmount  string `json:"payout_amount"`
	TxHash        string `json:"tx_hash"`
	AssessedAt    int64  `json:"assessed_at"`
}

func (c *PolicyServiceClient) NotifyPayout(ctx context.Context, notification *PayoutNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal payout notification: %w", err)
	}

	url := c.baseURL + "/policy/internal/api/v2/payouts/settled"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create payout notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Error notifying policy service: %v", err)
		return fmt.Errorf("failed to notify policy service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read policy service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("Policy service returned non-success status: %d, body: %s", resp.StatusCode, string(respBody))
		return fmt.Errorf("policy service error: status %d", resp.StatusCode)
	}
	return nil
}
