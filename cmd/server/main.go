package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/httpserver"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/mastodon"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/memory"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/metrics"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/postgres"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/redis"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/websocket"
	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/collect"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/hub"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/config"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/crypto"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/logging"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/retry"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type components struct {
	server    *httpserver.Server
	websocket *websocket.Handler
	hub       *hub.Hub
	relay     *redis.Relay
	pool      *pgxpool.Pool
	redis     *goredis.Client
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy() retry.Policy {
	p := retry.Startup
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		slog.Warn("Backing service not ready, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	return p
}

// setupSettings picks PostgreSQL when DATABASE_URL is set and an in-memory
// store otherwise. The returned pool is nil in the latter case.
func setupSettings(ctx context.Context, cfg *config.Config, dbMetrics *metrics.DatabaseMetrics) (domain.SettingsStore, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, settings are kept in memory")
		return memory.NewSettingsStore(), nil
	}

	var pool *pgxpool.Pool
	err := retry.Do(ctx, startupPolicy(), func(ctx context.Context) error {
		var err error
		pool, err = postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(dbMetrics))
		return err
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	var cryptoSvc crypto.Service
	if cfg.TokenEncryptionKey != "" {
		aead, err := crypto.NewAESGCM(cfg.TokenEncryptionKey)
		if err != nil {
			slog.Error("Failed to create crypto service", "error", err)
			os.Exit(1)
		}
		cryptoSvc = aead
	}

	return postgres.NewSettingsRepo(pool, cryptoSvc), pool
}

func setupRedis(ctx context.Context, cfg *config.Config, redisMetrics *metrics.RedisMetrics) *goredis.Client {
	var rdb *goredis.Client
	err := retry.Do(ctx, startupPolicy(), func(ctx context.Context) error {
		var err error
		rdb, err = redis.NewClient(ctx, cfg.RedisURL, redisMetrics)
		return err
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return rdb
}

func healthChecks(client *mastodon.Client, pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{{
		Name: "mastodon",
		Check: func(context.Context) error {
			if client.BreakerState() == gobreaker.StateOpen {
				return domain.ErrRemoteUnavailable
			}
			return nil
		},
	}}
	if pool != nil {
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}
	if rdb != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return checks
}

func runGracefulShutdown(c components) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Viewers get a going-away frame before the listener stops.
		if err := c.websocket.Close(ctx); err != nil {
			slog.Error("WebSocket shutdown error", "error", err)
		}
		if err := c.server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if c.relay != nil {
			if err := c.relay.Close(); err != nil {
				slog.Error("Relay shutdown error", "error", err)
			}
		}
		c.hub.Stop()
		if c.redis != nil {
			_ = c.redis.Close()
		}
		if c.pool != nil {
			c.pool.Close()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	reg := metrics.NewRegistry()
	remoteMetrics := metrics.NewRemoteMetrics(reg)
	paginationMetrics := metrics.NewPaginationMetrics(reg)
	graphMetrics := metrics.NewGraphMetrics(reg)
	hubMetrics := metrics.NewHubMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)
	dbMetrics := metrics.NewDatabaseMetrics(reg)
	redisMetrics := metrics.NewRedisMetrics(reg)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	client := mastodon.NewClient(mastodon.Config{
		InstanceURL:   cfg.MastodonInstanceURL,
		AccessToken:   cfg.MastodonAccessToken,
		UserAgent:     fmt.Sprintf("%s/%s", cfg.AppName, version.Version),
		RatePerSecond: cfg.RemoteRatePerSecond,
		Burst:         cfg.RemoteBurst,
		Timeout:       cfg.RemoteTimeout,
	}, clock, remoteMetrics)

	settings, pool := setupSettings(startupCtx, cfg, dbMetrics)

	h := hub.NewHub(hub.Config{DeliveryTimeout: cfg.DeliveryTimeout}, clock, hubMetrics)

	var (
		rdb       *goredis.Client
		relay     *redis.Relay
		publisher websocket.Publisher // stays nil without Redis to avoid a typed-nil interface
	)
	if cfg.RedisURL != "" {
		rdb = setupRedis(startupCtx, cfg, redisMetrics)
		relay = redis.NewRelay(rdb, redis.DefaultChannel, h, wsMetrics)
		if err := relay.Listen(context.Background()); err != nil {
			slog.Error("Failed to start relay", "error", err)
			os.Exit(1)
		}
		publisher = relay
		slog.Info("Cross-instance relay enabled", "instance_id", relay.InstanceID())
	}

	wsHandler := websocket.NewHandler(h, publisher,
		websocket.NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		websocket.Config{MaxConnections: cfg.MaxWebSocketConnections},
		wsMetrics,
	)

	paginator := collect.NewPaginator(cfg.PaginationMaxPages, paginationMetrics)
	appSvc := app.NewService(client, client, paginator, settings, cfg.PageSize, clock, graphMetrics)

	srv := httpserver.NewServer(cfg, appSvc, wsHandler, metrics.Handler(reg), httpMetrics.Middleware(),
		healthChecks(client, pool, rdb))

	done := runGracefulShutdown(components{
		server:    srv,
		websocket: wsHandler,
		hub:       h,
		relay:     relay,
		pool:      pool,
		redis:     rdb,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
