package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/config"
	"github.com/labstack/echo/v4"
)

// --- Mock implementations ---

type mockAppService struct {
	buildGraphFn func(ctx context.Context, req app.GraphRequest) (*domain.Graph, error)
	accountFn    func(ctx context.Context, id string) (domain.Account, error)
	followersFn  func(ctx context.Context, id string) ([]domain.Account, error)
	followingFn  func(ctx context.Context, id string) ([]domain.Account, error)
	searchFn     func(ctx context.Context, query string) ([]domain.Account, error)
	settingFn    func(ctx context.Context, key string) (string, error)
	putSettingFn func(ctx context.Context, key, value string) error
	settingsFn   func(ctx context.Context) ([]domain.Setting, error)
}

func (m *mockAppService) BuildGraph(ctx context.Context, req app.GraphRequest) (*domain.Graph, error) {
	if m.buildGraphFn != nil {
		return m.buildGraphFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Account(ctx context.Context, id string) (domain.Account, error) {
	if m.accountFn != nil {
		return m.accountFn(ctx, id)
	}
	return domain.Account{}, errors.New("not implemented")
}

func (m *mockAppService) Followers(ctx context.Context, id string) ([]domain.Account, error) {
	if m.followersFn != nil {
		return m.followersFn(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Following(ctx context.Context, id string) ([]domain.Account, error) {
	if m.followingFn != nil {
		return m.followingFn(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Search(ctx context.Context, query string) ([]domain.Account, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Setting(ctx context.Context, key string) (string, error) {
	if m.settingFn != nil {
		return m.settingFn(ctx, key)
	}
	return "", domain.ErrSettingNotFound
}

func (m *mockAppService) PutSetting(ctx context.Context, key, value string) error {
	if m.putSettingFn != nil {
		return m.putSettingFn(ctx, key, value)
	}
	return nil
}

func (m *mockAppService) Settings(ctx context.Context) ([]domain.Setting, error) {
	if m.settingsFn != nil {
		return m.settingsFn(ctx)
	}
	return nil, nil
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:           "test",
		Port:             "0",
		APIRatePerSecond: 1000,
		APIBurst:         1000,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	e := echo.New()
	e.Validator = newRequestValidator()

	srv := &Server{
		echo:   e,
		config: testConfig(),
		app:    app,
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withConfig(cfg *config.Config) func(*Server) {
	return func(s *Server) {
		s.config = cfg
	}
}

func withWebsocketHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.websocketHandler = h
	}
}

func withMetricsHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// do sends a request through the full router and middleware chain.
func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
