package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 10
	maxOrders     = 60
	numWorkers    = 4
	serverAddress = "http://localhost:8080"
	cancelRatio   = 0.2
)

var (
	pairs = [][2]string{
		{"USDC", "ETH"},
		{"USDC", "WBTC"},
		{"DAI", "ETH"},
		{"ETH", "TOWER"},
		{"USDT", "WETH"},
	}
	frequencies = []string{"hourly", "daily", "weekly", "bi-weekly", "monthly"}
	sides       = []string{"buy", "sell"}
)

// init configures the logger for the simulation
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes min, max, mean, median, p95 and p99 durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the recurring-order API for one wallet
type simulationClient struct {
	baseURL   string
	authToken string
	wallet    string
	client    *http.Client
	stats     map[string]*routeStats
}

func newSimulationClient(wallet string, stats map[string]*routeStats) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		wallet:  wallet,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats:   stats,
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"wallet_address": sc.wallet,
		"signature":      fmt.Sprintf("0xsig-%s", uuid.New().String()),
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// createOrder submits a random recurring order and returns its ID
func (sc *simulationClient) createOrder() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	pair := pairs[rand.Intn(len(pairs))]
	payload := map[string]interface{}{
		"side":         sides[rand.Intn(len(sides))],
		"source_token": pair[0],
		"target_token": pair[1],
		"amount":       fmt.Sprintf("%.2f", 10+rand.Float64()*990),
		"frequency":    frequencies[rand.Intn(len(frequencies))],
		"signature":    fmt.Sprintf("0xsig-%s", uuid.New().String()),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/v1/orders", sc.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sc.authToken)
	req.Header.Set("Idempotency-Key", uuid.New().String())

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		sc.stats["create"].addFailure()
		return "", fmt.Errorf("create order failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.OrderID, nil
}

// cancelOrder cancels an order by ID
func (sc *simulationClient) cancelOrder(orderID string) error {
	start := time.Now()
	defer func() {
		sc.stats["cancel"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["cancel"].addFailure()
		return fmt.Errorf("cancel order failed with status: %d", resp.StatusCode)
	}
	return nil
}

// listOrders fetches the wallet's orders
func (sc *simulationClient) listOrders() error {
	start := time.Now()
	defer func() {
		sc.stats["list"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/orders", sc.baseURL), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sc.stats["list"].addFailure()
		return fmt.Errorf("list orders failed with status: %d", resp.StatusCode)
	}
	return nil
}

func randomWallet() string {
	const hex = "0123456789abcdef"
	b := make([]byte, 40)
	for i := range b {
		b[i] = hex[rand.Intn(len(hex))]
	}
	return "0x" + string(b)
}

// main runs a load simulation against the recurring-order API:
// several wallets create orders in parallel, cancel a share of them,
// and list the remainder, then endpoint latencies are reported.
func main() {
	stats := map[string]*routeStats{
		"auth":   {name: "Authentication"},
		"create": {name: "Create Order"},
		"cancel": {name: "Cancel Order"},
		"list":   {name: "List Orders"},
	}

	orderCount := minOrders + rand.Intn(maxOrders-minOrders+1)
	log.Info().
		Int("orders", orderCount).
		Int("workers", numWorkers).
		Msg("starting simulation")

	var wg sync.WaitGroup
	ordersPerWorker := orderCount / numWorkers

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			client, err := newSimulationClient(randomWallet(), stats)
			if err != nil {
				log.Error().Err(err).Int("worker", worker).Msg("worker failed to authenticate")
				return
			}

			var created []string
			for i := 0; i < ordersPerWorker; i++ {
				orderID, err := client.createOrder()
				if err != nil {
					log.Warn().Err(err).Int("worker", worker).Msg("order creation failed")
					continue
				}
				created = append(created, orderID)
			}

			for _, orderID := range created {
				if rand.Float64() < cancelRatio {
					if err := client.cancelOrder(orderID); err != nil {
						log.Warn().Err(err).Str("order_id", orderID).Msg("cancellation failed")
					}
				}
			}

			if err := client.listOrders(); err != nil {
				log.Warn().Err(err).Int("worker", worker).Msg("listing failed")
			}
		}(w)
	}

	wg.Wait()

	for _, rs := range stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		log.Info().
			Str("endpoint", rs.name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Dur("p95", p95).
			Dur("p99", p99).
			Msg("endpoint statistics")
	}
}
