package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/version"
	"github.com/labstack/echo/v4"
)

const (
	readinessProbeTimeout = 5 * time.Second
	badgeProbeTimeout     = 2 * time.Second
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// badge is the shields.io endpoint schema.
type badge struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health", s.handleBadge)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleBadge always answers 200 so the badge renders; the status is in the
// message.
func (s *Server) handleBadge(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), badgeProbeTimeout)
	defer cancel()

	b := badge{SchemaVersion: 1, Label: "app status", Message: "up", Color: "brightgreen"}
	if name, _ := s.firstFailingCheck(ctx); name != "" {
		b.Message = "down"
		b.Color = "red"
	}

	if err := c.JSON(http.StatusOK, b); err != nil {
		return fmt.Errorf("failed to write badge response: %w", err)
	}
	return nil
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	name, err := s.firstFailingCheck(ctx)
	if name != "" {
		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": name,
			"error":        err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) firstFailingCheck(ctx context.Context) (string, error) {
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			return hc.Name, err
		}
	}
	return "", nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
