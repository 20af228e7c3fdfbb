package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "USDC", r.URL.Query().Get("source"))
		assert.Equal(t, "ETH", r.URL.Query().Get("target"))
		assert.Equal(t, "100", r.URL.Query().Get("amount"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"route":"usdc-weth-eth","price":"0.00031","expected_output":"0.031"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", time.Second)
	quote, err := c.GetQuote(context.Background(), "USDC", "ETH", decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.Equal(t, "usdc-weth-eth", quote.Route)
	assert.Equal(t, "0.00031", quote.Price.String())
	assert.Equal(t, "0.031", quote.ExpectedOutput.String())
}

func TestGetQuoteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no liquidity", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.GetQuote(context.Background(), "USDC", "ETH", decimal.NewFromInt(100))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGetQuoteMissingRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":"1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.GetQuote(context.Background(), "USDC", "ETH", decimal.NewFromInt(100))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route")
}

func TestGetQuoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetQuote(ctx, "USDC", "ETH", decimal.NewFromInt(100))
	assert.Error(t, err)
}
