package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-bridge/internal/audit"
	"voice-bridge/internal/auth"
	"voice-bridge/internal/bridge"
	"voice-bridge/internal/callgroup"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/config"
	"voice-bridge/internal/httpapi"
	"voice-bridge/internal/rbac"
	"voice-bridge/internal/reporting"
	"voice-bridge/internal/telephony/loopback"
	"voice-bridge/pkg/logger"
	"voice-bridge/pkg/utils"
)

const healthTimeout = 2 * time.Second

// callStore is what both the journal writer and reporting read from.
type callStore interface {
	calls.Repository
	reporting.Repository
}

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var tokenManager *auth.Manager
	if cfg.Voice.APIKeySecret != "" {
		tokenManager, err = auth.NewManager(cfg.Voice)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	}
	tokens := auth.NewMintingTokenSource(tokenManager, cfg.Voice.Identity)
	if cfg.Voice.AccessToken != "" {
		tokens = auth.NewStaticTokenSource(cfg.Voice.AccessToken)
	}

	// Call journal: Postgres when configured, memory otherwise.
	var (
		callRepo  callStore        = calls.NewMemoryRepo()
		auditRepo audit.Repository = audit.NewMemoryRepo()
		db        *sql.DB
	)
	if cfg.HasPostgres() {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		callRepo = calls.NewPostgresRepo(db)
		auditRepo = audit.NewPostgresRepo(db)
	}
	journal := calls.NewJournal(callRepo, audit.NewService(auditRepo), log, 0)

	var limiter bridge.CallGroupLimiter
	if cfg.HasRedis() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limiter, err = callgroup.NewRedisLimiter(rdb, cfg.Voice.Identity, cfg.Bridge.MaxCallGroups, callgroup.DefaultTTL)
		if err != nil {
			log.Error("call group limiter init failed", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	voice := loopback.NewVoice(loopback.VoiceConfig{
		RingDelay:   cfg.Loopback.RingDelay,
		AnswerDelay: cfg.Loopback.AnswerDelay,
	}, log)
	native := loopback.NewNative(loopback.NativeConfig{ActionTimeout: cfg.Loopback.ActionTimeout}, log)

	b, err := bridge.New(bridge.Options{
		Voice:            voice,
		Provider:         native,
		Controller:       native,
		Audio:            &loopback.Audio{},
		Router:           &loopback.Router{},
		Credentials:      tokens,
		Limiter:          limiter,
		Observer:         journal,
		Metrics:          bridge.NewMetrics(reg),
		Logger:           log,
		SpeakerOnConnect: cfg.Bridge.SpeakerOnConnect,
	})
	if err != nil {
		log.Error("bridge init failed", "err", err)
		os.Exit(1)
	}
	native.SetDelegate(b)

	// Journal writer runs until shutdown, then drains.
	journalCtx, stopJournal := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		journal.Run(journalCtx)
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz", "/metrics"))

	h := httpapi.Handlers{
		Calls:    b,
		History:  journal,
		Reports:  reporting.NewService(callRepo),
		CallerID: cfg.Voice.CallerID,
	}
	if tokenManager != nil {
		h.Tokens = tokenManager
	}
	var health func(context.Context) error
	if db != nil {
		health = func(ctx context.Context) error { return utils.HealthCheck(ctx, db, healthTimeout) }
	}
	registerRoutes(r, h, apiAuth(tokenManager, cfg.IsProduction(), cfg.APIIdentities(), log), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), health, tokenManager != nil && !cfg.IsProduction())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("bridge listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", cfg.Bridge.ProviderName, "identity", cfg.Voice.Identity)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := b.EndCall(shutdownCtx); err != nil && !errors.Is(err, bridge.ErrNoActiveCall) {
		log.Warn("active call not ended on shutdown", "err", err)
	}

	stopJournal()
	wg.Wait()
	if n := journal.Dropped(); n > 0 {
		log.Warn("journal dropped events", "count", n)
	}
}

// apiAuth protects /v1 with voice access tokens scoped to the bridge's own
// identities. Without key material to verify against, the API is open
// outside production and closed in it.
func apiAuth(m *auth.Manager, production bool, identities []string, log *slog.Logger) gin.HandlersChain {
	if m != nil {
		return gin.HandlersChain{auth.RequireAccessToken(m), rbac.RequireIdentity(identities...)}
	}
	if production {
		log.Warn("no API key configured, /v1 is disabled")
		return gin.HandlersChain{func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "api auth not configured"})
		}}
	}
	log.Warn("no API key configured, /v1 is unauthenticated")
	return nil
}
