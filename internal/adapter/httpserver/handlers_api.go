package httpserver

import (
	"fmt"
	"net/http"

	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/labstack/echo/v4"
)

type accountQuery struct {
	UserID string `query:"user_id" validate:"omitempty,max=64,alphanum"`
}

type graphQuery struct {
	UserID    string `query:"user_id" validate:"omitempty,max=64,alphanum"`
	Instances bool   `query:"instances"`
}

type searchQuery struct {
	Query string `query:"query" validate:"required,max=256"`
}

type settingPath struct {
	Key string `param:"key" validate:"required,max=64,settingkey"`
}

type settingRequest struct {
	Key   string `param:"key" json:"-" validate:"required,max=64,settingkey"`
	Value string `json:"value" validate:"max=4096"`
}

func (s *Server) registerAPIRoutes(rateLimiter echo.MiddlewareFunc) {
	api := s.echo.Group("/api", rateLimiter)

	api.GET("/graph", s.handleGraph)
	api.GET("/followers", s.handleFollowers)
	api.GET("/following", s.handleFollowing)
	api.GET("/user", s.handleUser)
	api.GET("/search", s.handleSearch)

	api.GET("/settings", s.handleListSettings)
	api.GET("/settings/:key", s.handleGetSetting)
	api.PUT("/settings/:key", s.handlePutSetting)
}

func (s *Server) handleGraph(c echo.Context) error {
	var q graphQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	graph, err := s.app.BuildGraph(c.Request().Context(), app.GraphRequest{AccountID: q.UserID, InstanceLinks: q.Instances})
	if err != nil {
		return err
	}
	return writeJSON(c, graph)
}

func (s *Server) handleFollowers(c echo.Context) error {
	var q accountQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	accounts, err := s.app.Followers(c.Request().Context(), q.UserID)
	if err != nil {
		return err
	}
	return writeJSON(c, accounts)
}

func (s *Server) handleFollowing(c echo.Context) error {
	var q accountQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	accounts, err := s.app.Following(c.Request().Context(), q.UserID)
	if err != nil {
		return err
	}
	return writeJSON(c, accounts)
}

func (s *Server) handleUser(c echo.Context) error {
	var q accountQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	account, err := s.app.Account(c.Request().Context(), q.UserID)
	if err != nil {
		return err
	}
	return writeJSON(c, account)
}

func (s *Server) handleSearch(c echo.Context) error {
	var q searchQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	accounts, err := s.app.Search(c.Request().Context(), q.Query)
	if err != nil {
		return err
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return writeJSON(c, accounts)
}

func (s *Server) handleListSettings(c echo.Context) error {
	settings, err := s.app.Settings(c.Request().Context())
	if err != nil {
		return err
	}
	if settings == nil {
		settings = []domain.Setting{}
	}
	return writeJSON(c, settings)
}

func (s *Server) handleGetSetting(c echo.Context) error {
	var p settingPath
	if err := bindAndValidate(c, &p); err != nil {
		return err
	}

	value, err := s.app.Setting(c.Request().Context(), p.Key)
	if err != nil {
		return err
	}
	return writeJSON(c, domain.Setting{Key: p.Key, Value: value})
}

func (s *Server) handlePutSetting(c echo.Context) error {
	var req settingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := s.app.PutSetting(c.Request().Context(), req.Key, req.Value); err != nil {
		return err
	}
	return writeJSON(c, domain.Setting{Key: req.Key, Value: req.Value})
}

func writeJSON(c echo.Context, body any) error {
	if err := c.JSON(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
