// Command simulator is a load-generating client against the trading
// API, adapted from the teacher's cmd/simulation/main.go: it starts its
// own in-process server (gin can't be shared across binaries, so the
// wiring is duplicated the way the teacher duplicated startServer()),
// fires a worker pool of concurrent order submissions, and prints
// per-route latency percentiles. A BREAKER_TRIP_RATIO env var drives a
// fraction of orders through a forced-failure executor to exercise the
// circuit breaker under load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/tradecore/internal/auth"
	"github.com/ksred/tradecore/internal/breaker"
	"github.com/ksred/tradecore/internal/coordinator"
	"github.com/ksred/tradecore/internal/coreerr"
	"github.com/ksred/tradecore/internal/events"
	"github.com/ksred/tradecore/internal/eventlog"
	"github.com/ksred/tradecore/internal/exchange"
	"github.com/ksred/tradecore/internal/execution"
	"github.com/ksred/tradecore/internal/idempotency"
	"github.com/ksred/tradecore/internal/position"
	"github.com/ksred/tradecore/internal/risk"
	"github.com/ksred/tradecore/pkg/middleware"
	"github.com/ksred/tradecore/pkg/response"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8099"
)

var (
	symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides   = []events.Side{events.Buy, events.Sell}
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks per-endpoint latency for the summary report.
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return
	}
	sort.Slice(rs.durations, func(i, j int) bool { return rs.durations[i] < rs.durations[j] })
	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]
	p95 = rs.durations[int(math.Ceil(float64(len(rs.durations))*0.95))-1]
	p99 = rs.durations[int(math.Ceil(float64(len(rs.durations))*0.99))-1]
	return
}

type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":   {name: "Authentication"},
			"create": {name: "Create Order"},
			"get":    {name: "Get Order"},
		},
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
	defer func() { sc.stats["auth"].addDuration(time.Since(start)) }()

	body, _ := json.Marshal(map[string]string{"user_id": "trader1", "password": "trader1-pass"})
	resp, err := sc.client.Post(sc.baseURL+"/api/v1/auth/token", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.Token == "" {
		return "", fmt.Errorf("authentication failed")
	}
	return result.Data.Token, nil
}

type orderRequest struct {
	Symbol     string      `json:"symbol"`
	Side       events.Side `json:"side"`
	Quantity   float64     `json:"quantity"`
	LimitPrice float64     `json:"limit_price"`
	Strategy   string      `json:"strategy"`
}

func (sc *simulationClient) createOrder(order orderRequest) (string, error) {
	start := time.Now()
	defer func() { sc.stats["create"].addDuration(time.Since(start)) }()

	body, _ := json.Marshal(order)
	req, err := http.NewRequest("POST", sc.baseURL+"/api/v1/orders", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		sc.stats["create"].failures++
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		sc.stats["create"].failures++
		return "", fmt.Errorf("create order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data events.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Data.OrderID, nil
}

func (sc *simulationClient) getOrder(orderID string) (*events.Order, error) {
	start := time.Now()
	defer func() { sc.stats["get"].addDuration(time.Since(start)) }()

	req, err := http.NewRequest("GET", sc.baseURL+"/api/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Data events.Order `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))
	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name, stats.totalCalls, stats.failures,
			min.Round(time.Millisecond), max.Round(time.Millisecond), mean.Round(time.Millisecond),
			median.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

func main() {
	breakerTripRatio, _ := strconv.ParseFloat(os.Getenv("BREAKER_TRIP_RATIO"), 64)

	go func() {
		if err := startServer(breakerTripRatio); err != nil {
			log.Fatal().Err(err).Msg("failed to start embedded server")
		}
	}()
	time.Sleep(time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Float64("breaker_trip_ratio", breakerTripRatio).Msg("starting simulation")

	ordersChan := make(chan string, targetOrders)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, targetOrders/numWorkers, simClient, ordersChan)
		}(i)
	}
	wg.Wait()
	close(ordersChan)

	var orderIDs []string
	for id := range ordersChan {
		orderIDs = append(orderIDs, id)
	}
	log.Info().Int("orders_created", len(orderIDs)).Msg("all orders submitted")

	time.Sleep(2 * time.Second) // let async execution settle before polling

	executed, failed := 0, 0
	for _, orderID := range orderIDs {
		order, err := simClient.getOrder(orderID)
		if err != nil {
			continue
		}
		switch order.Status {
		case events.StatusExecuted:
			executed++
		case events.StatusFailed, events.StatusRejected:
			failed++
		}
	}

	log.Info().
		Int("total_orders", len(orderIDs)).
		Int("executed", executed).
		Int("failed_or_rejected", failed).
		Msg("simulation complete")

	simClient.printPerformanceStats()
}

func runWorker(workerID, numOrders int, sc *simulationClient, ordersChan chan<- string) {
	for i := 0; i < numOrders; i++ {
		order := orderRequest{
			Symbol:     symbols[rand.Intn(len(symbols))],
			Side:       sides[rand.Intn(len(sides))],
			Quantity:   float64(rand.Intn(100) + 1),
			LimitPrice: float64(rand.Intn(1000) + 100),
			Strategy:   fmt.Sprintf("WORKER_%d", workerID),
		}

		orderID, err := sc.createOrder(order)
		if err != nil {
			log.Error().Err(err).Int("worker_id", workerID).Msg("order submission failed")
			continue
		}
		ordersChan <- orderID
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// startServer builds the full stack in-process, the way the teacher's
// cmd/simulation duplicated startServer() rather than importing the
// server binary (two package main trees can't import each other).
// When breakerTripRatio > 0, a fraction of executor calls are forced to
// fail, to drive the circuit breaker into OPEN under load.
func startServer(breakerTripRatio float64) error {
	gin.SetMode(gin.ReleaseMode)

	log := eventlog.NewMemoryStore(0)
	positions := position.NewStore()
	riskEngine := risk.NewEngine(events.RiskConfig{
		MaxPositionSize:  1_000_000,
		MaxDailyVolume:   10_000_000,
		MaxNetExposure:   5_000_000,
		MaxGrossExposure: 20_000_000,
	}, positions, log)

	idem := idempotency.NewIndex()
	coord := coordinator.New(idem, riskEngine, log)

	b := breaker.New(5, 10*time.Second)
	executor := &flakySimulated{inner: exchange.NewSimulated(), tripRatio: breakerTripRatio}
	pipeline := execution.New(executor, b, positions, log, coord, execution.Config{})
	coord.SetPipeline(pipeline)

	authSvc := auth.New("simulator-secret", time.Hour)
	_ = authSvc.Register("trader1", "trader1-pass", auth.RoleTrader)

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", func(c *gin.Context) {
		var req struct {
			UserID   string `json:"user_id"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		token, err := authSvc.Authenticate(req.UserID, req.Password)
		if err != nil {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		response.Success(c, gin.H{"token": token})
	})

	orders := v1.Group("/orders")
	orders.Use(middleware.JWTAuth(authSvc))
	orders.POST("", func(c *gin.Context) {
		var req orderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		claims := middleware.Claims(c)
		order, err := coord.Submit(coordinator.Submission{
			Symbol:     req.Symbol,
			Side:       req.Side,
			Quantity:   req.Quantity,
			LimitPrice: req.LimitPrice,
			UserID:     claims.UserID,
			Strategy:   req.Strategy,
		})
		response.Handle(c, order, err)
	})
	orders.GET("/:order_id", func(c *gin.Context) {
		order, ok := coord.Get(c.Param("order_id"))
		if !ok {
			response.NotFound(c, "order not found")
			return
		}
		response.Success(c, order)
	})

	return router.Run(":8099")
}

// flakySimulated forces a configurable fraction of attempts to fail
// transiently regardless of venue outcome, to exercise the circuit
// breaker under load.
type flakySimulated struct {
	inner     *exchange.Simulated
	tripRatio float64
}

func (f *flakySimulated) Execute(ctx context.Context, order *events.Order) (events.Fill, error) {
	if f.tripRatio > 0 && rand.Float64() < f.tripRatio {
		return events.Fill{}, &coreerr.TransientExecutionError{Reason: "simulated outage"}
	}
	return f.inner.Execute(ctx, order)
}
