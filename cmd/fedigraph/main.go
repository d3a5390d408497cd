// Command fedigraph exports follower graphs from the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/mastodon"
	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/memory"
	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/collect"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/config"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/logging"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/version"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := newRootCmd(loadBuilder).Execute(); err != nil {
		os.Exit(1)
	}
}

// loadBuilder wires the graph service from the environment. Logs go to
// stderr so stdout stays clean JSON.
func loadBuilder() (graphBuilder, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	clock := clockwork.NewRealClock()
	client := mastodon.NewClient(mastodon.Config{
		InstanceURL:   cfg.MastodonInstanceURL,
		AccessToken:   cfg.MastodonAccessToken,
		UserAgent:     fmt.Sprintf("%s-cli/%s", cfg.AppName, version.Version),
		RatePerSecond: cfg.RemoteRatePerSecond,
		Burst:         cfg.RemoteBurst,
		Timeout:       cfg.RemoteTimeout,
	}, clock, nil)

	paginator := collect.NewPaginator(cfg.PaginationMaxPages, nil)
	return app.NewService(client, client, paginator, memory.NewSettingsStore(), cfg.PageSize, clock, nil), nil
}

type graphBuilder interface {
	BuildGraph(ctx context.Context, req app.GraphRequest) (*domain.Graph, error)
}
