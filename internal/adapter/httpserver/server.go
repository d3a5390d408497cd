package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/config"
	"github.com/labstack/echo/v4"
)

type appService interface {
	BuildGraph(ctx context.Context, req app.GraphRequest) (*domain.Graph, error)
	Account(ctx context.Context, id string) (domain.Account, error)
	Followers(ctx context.Context, id string) ([]domain.Account, error)
	Following(ctx context.Context, id string) ([]domain.Account, error)
	Search(ctx context.Context, query string) ([]domain.Account, error)
	Setting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
	Settings(ctx context.Context) ([]domain.Setting, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app appService

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      echo.MiddlewareFunc

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the routes. metricsHandler and httpMetrics may be nil.
func NewServer(cfg *config.Config, app appService, websocketHandler, metricsHandler http.Handler, httpMetrics echo.MiddlewareFunc, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              app,
		websocketHandler: websocketHandler,
		metricsHandler:   metricsHandler,
		httpMetrics:      httpMetrics,
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
