package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// Client signs and broadcasts swap transactions through the execution
// relay. Submission is not idempotent on the relay side by itself, so
// every request carries the caller's cycle key as an Idempotency-Key
// header; the relay honors at-most-once semantics per key, which makes
// a retry after a timed-out-but-actually-broadcast attempt safe.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// NewClient creates a transaction submitter client. timeout bounds
// every submission call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Submit broadcasts one swap and returns the transaction hash. A
// returned hash means the transaction was accepted for broadcast;
// on-chain confirmation is not awaited here.
func (c *Client) Submit(ctx context.Context, swap types.SwapRequest) (string, error) {
	payload, err := json.Marshal(swap)
	if err != nil {
		return "", fmt.Errorf("failed to encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/swap", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", swap.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("swap relay returned %d: %s", resp.StatusCode, string(body))
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode swap response: %w", err)
	}
	if result.TxHash == "" {
		return "", fmt.Errorf("swap relay returned no transaction hash")
	}

	return result.TxHash, nil
}
