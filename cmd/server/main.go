// Command server wires every core component into an HTTP surface and
// runs it with graceful shutdown. Structure (init() logging setup,
// signal-driven shutdown with a 5s drain window) is carried over from
// the teacher's cmd/server/main.go; the services, routes, and
// composition are new.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/tradecore/internal/auth"
	"github.com/ksred/tradecore/internal/breaker"
	"github.com/ksred/tradecore/internal/coordinator"
	"github.com/ksred/tradecore/internal/events"
	"github.com/ksred/tradecore/internal/eventlog"
	"github.com/ksred/tradecore/internal/exchange"
	"github.com/ksred/tradecore/internal/execution"
	"github.com/ksred/tradecore/internal/idempotency"
	"github.com/ksred/tradecore/internal/ordermat"
	"github.com/ksred/tradecore/internal/position"
	"github.com/ksred/tradecore/internal/risk"
	"github.com/ksred/tradecore/pkg/middleware"
	"github.com/ksred/tradecore/pkg/response"
)

func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	log, err := buildEventLog()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize event log")
	}

	positions := position.NewStore()
	riskConfig := loadRiskConfig()
	riskEngine := risk.NewEngine(riskConfig, positions, log)

	idem := idempotency.NewIndex()
	coord := coordinator.New(idem, riskEngine, log)

	var orderMat *ordermat.Store
	if dbPath := os.Getenv("EVENT_LOG_DB_PATH"); dbPath != "" {
		store, err := ordermat.Open(dbPath)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to open order materialization store")
		}
		orderMat = store
		coord.SetProjector(store)
	}

	b := breaker.New(envInt("BREAKER_FAILURE_THRESHOLD", 5), envDuration("BREAKER_OPEN_DURATION", 60*time.Second))
	executor := exchange.NewSimulated()
	pipeline := execution.New(executor, b, positions, log, coord, execution.Config{
		MaxAttempts:    envInt("EXECUTION_MAX_ATTEMPTS", 3),
		AttemptTimeout: envDuration("EXECUTION_ATTEMPT_TIMEOUT", 5*time.Second),
		BackoffBase:    envDuration("EXECUTION_BACKOFF_BASE", time.Second),
	})
	coord.SetPipeline(pipeline)

	authSecret := os.Getenv("JWT_SECRET")
	if authSecret == "" {
		authSecret = "tradecore-dev-secret"
	}
	authSvc := auth.New(authSecret, envDuration("TOKEN_TTL", time.Hour))
	seedPrincipals(authSvc)

	router := gin.Default()
	limiter := middleware.NewLimiter(rate.Limit(envInt("RATE_LIMIT_RPS", 10)), envInt("RATE_LIMIT_BURST", 20))
	router.Use(limiter.RateLimit())

	setupRoutes(router, authSvc, coord, riskEngine, log, orderMat)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("server forced to shutdown")
	}
	zlog.Info().Msg("server exiting")
}

func buildEventLog() (eventlog.Store, error) {
	if path := os.Getenv("EVENT_LOG_DB_PATH"); path != "" {
		return eventlog.NewGormStore(path)
	}
	return eventlog.NewMemoryStore(envInt("EVENT_LOG_CAPACITY", 0)), nil
}

func loadRiskConfig() events.RiskConfig {
	return events.RiskConfig{
		MaxPositionSize:  envFloat("RISK_MAX_POSITION_SIZE", 1_000_000),
		MaxDailyVolume:   envFloat("RISK_MAX_DAILY_VOLUME", 10_000_000),
		MaxNetExposure:   envFloat("RISK_MAX_NET_EXPOSURE", 5_000_000),
		MaxGrossExposure: envFloat("RISK_MAX_GROSS_EXPOSURE", 20_000_000),
	}
}

// seedPrincipals registers the fixed set of desk accounts this system
// ships with; there is no self-service signup.
func seedPrincipals(svc *auth.Service) {
	_ = svc.Register("trader1", "trader1-pass", auth.RoleTrader)
	_ = svc.Register("risk1", "risk1-pass", auth.RoleRiskManager)
	_ = svc.Register("compliance1", "compliance1-pass", auth.RoleCompliance)
	_ = svc.Register("admin", "admin-pass", auth.RoleAdmin)
}

func setupRoutes(router *gin.Engine, authSvc *auth.Service, coord *coordinator.Coordinator, riskEngine *risk.Engine, log eventlog.Store, orderMat *ordermat.Store) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.POST("/token", tokenHandler(authSvc))

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(authSvc))
		orders.POST("", createOrderHandler(coord))
		orders.GET("", listOrdersHandler(orderMat))
		orders.GET("/:order_id", getOrderHandler(coord, orderMat))

		riskGroup := v1.Group("/risk")
		riskGroup.Use(middleware.JWTAuth(authSvc))
		riskGroup.GET("/metrics", riskMetricsHandler(riskEngine))
		riskGroup.PUT("/limits", middleware.RequireRole(auth.RoleRiskManager), updateLimitsHandler(riskEngine))
		riskGroup.POST("/kill-switch", middleware.RequireRole(auth.RoleRiskManager), killSwitchHandler(riskEngine))

		audit := v1.Group("/audit")
		audit.Use(middleware.JWTAuth(authSvc), middleware.RequireRole(auth.RoleCompliance))
		audit.GET("/correlation/:correlation_id", auditByCorrelationHandler(log))
		audit.GET("/order/:order_id", auditByOrderHandler(log))
	}
}

type tokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func tokenHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		token, err := svc.Authenticate(req.UserID, req.Password)
		if err != nil {
			response.Unauthorized(c, "invalid credentials")
			return
		}
		response.Success(c, gin.H{"token": token})
	}
}

type createOrderRequest struct {
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol" binding:"required"`
	Side          events.Side `json:"side" binding:"required,oneof=BUY SELL"`
	Quantity      float64     `json:"quantity" binding:"required,gt=0"`
	LimitPrice    float64     `json:"limit_price" binding:"required,gt=0"`
	Strategy      string      `json:"strategy"`
}

func createOrderHandler(coord *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		claims := middleware.Claims(c)
		order, err := coord.Submit(coordinator.Submission{
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			LimitPrice:    req.LimitPrice,
			UserID:        claims.UserID,
			Strategy:      req.Strategy,
		})
		response.Handle(c, order, err)
	}
}

// listOrdersHandler serves the order materialization store's query
// surface: ?client_order_id= looks up one order by the caller's supplied
// idempotency key, otherwise the caller's own order history is returned.
// Only available when EVENT_LOG_DB_PATH enables the materialization
// store; the coordinator's in-memory map is never queried this way.
func listOrdersHandler(orderMat *ordermat.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if orderMat == nil {
			c.JSON(http.StatusNotImplemented, response.Response{Error: &response.Error{
				Code:    response.CodeInternal,
				Message: "order history requires EVENT_LOG_DB_PATH to be configured",
			}})
			return
		}

		if clientOrderID := c.Query("client_order_id"); clientOrderID != "" {
			order, err := orderMat.GetOrderByClientOrderID(clientOrderID)
			if err != nil {
				response.NotFound(c, "order not found")
				return
			}
			response.Success(c, order)
			return
		}

		claims := middleware.Claims(c)
		orders, err := orderMat.ListByUser(claims.UserID)
		response.Handle(c, orders, err)
	}
}

// getOrderHandler answers from the coordinator's in-memory map, the
// authoritative source. If the order is unknown there — most likely
// because the process restarted since the order was created — it falls
// back to the materialization store when one is configured, so audit
// lookups survive a restart even though the coordinator's live state
// does not (spec's core is explicitly memory-only; this fallback is
// adapter-level best effort, never consulted for in-process decisions).
func getOrderHandler(coord *coordinator.Coordinator, orderMat *ordermat.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if order, ok := coord.Get(c.Param("order_id")); ok {
			response.Success(c, order)
			return
		}
		if orderMat != nil {
			if order, err := orderMat.GetOrder(c.Param("order_id")); err == nil {
				response.Success(c, order)
				return
			}
		}
		response.NotFound(c, "order not found")
	}
}

func riskMetricsHandler(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, engine.Metrics())
	}
}

func updateLimitsHandler(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg events.RiskConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		claims := middleware.Claims(c)
		if err := engine.UpdateLimits(cfg, claims.UserID); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, engine.Config())
	}
}

type killSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

func killSwitchHandler(engine *risk.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req killSwitchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		claims := middleware.Claims(c)
		if err := engine.SetKillSwitch(req.Enabled, claims.UserID); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"enabled": req.Enabled})
	}
}

func auditByCorrelationHandler(log eventlog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := log.ByCorrelation(c.Param("correlation_id"))
		response.Handle(c, events, err)
	}
}

func auditByOrderHandler(log eventlog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := log.ByOrder(c.Param("order_id"))
		response.Handle(c, events, err)
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
