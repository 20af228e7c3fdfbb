package quotes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// Client fetches swap quotes from the aggregator API. Quote requests
// are read-only and safe to retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type quoteResponse struct {
	Route          string          `json:"route"`
	Price          decimal.Decimal `json:"price"`
	ExpectedOutput decimal.Decimal `json:"expected_output"`
}

// NewClient creates a quote client. timeout bounds every quote call.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// GetQuote returns a price and route for swapping amount of
// sourceToken into targetToken.
func (c *Client) GetQuote(ctx context.Context, sourceToken, targetToken string, amount decimal.Decimal) (*types.Quote, error) {
	endpoint := fmt.Sprintf("%s/v1/quote?%s", c.baseURL, url.Values{
		"source": {sourceToken},
		"target": {targetToken},
		"amount": {amount.String()},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("quote API returned %d: %s", resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	if quote.Route == "" {
		return nil, fmt.Errorf("quote API returned no route for %s/%s", sourceToken, targetToken)
	}

	return &types.Quote{
		Route:          quote.Route,
		Price:          quote.Price,
		ExpectedOutput: quote.ExpectedOutput,
	}, nil
}
