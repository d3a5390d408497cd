package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/collect"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/Scobiform/fedi-follow-force-graph/internal/graph"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// SearchLimit caps account search results.
	SearchLimit = 40

	BuildTimeout = 10 * time.Minute
)

type Recorder interface {
	GraphBuilt(nodes int, duration time.Duration, err error)
	BuildShared()
}

type noopRecorder struct{}

func (noopRecorder) GraphBuilt(int, time.Duration, error) {}
func (noopRecorder) BuildShared()                         {}

// Service orchestrates the use cases behind the HTTP surface and the CLI.
type Service struct {
	directory domain.AccountDirectory
	source    domain.RelationshipSource
	paginator *collect.Paginator
	settings  domain.SettingsStore
	pageSize  int
	clock     clockwork.Clock
	recorder  Recorder
	builds    singleflight.Group
}

func NewService(directory domain.AccountDirectory, source domain.RelationshipSource, paginator *collect.Paginator, settings domain.SettingsStore, pageSize int, clock clockwork.Clock, recorder Recorder) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		directory: directory,
		source:    source,
		paginator: paginator,
		settings:  settings,
		pageSize:  pageSize,
		clock:     clock,
		recorder:  recorder,
	}
}

type GraphRequest struct {
	// AccountID selects the center; empty means the authenticated account.
	AccountID     string
	InstanceLinks bool
}

// BuildGraph collects both relationship lists concurrently and assembles
// the graph. Concurrent requests for the same graph share one build, which
// runs detached from any single caller and is bounded by BuildTimeout. A
// caller whose context ends stops waiting without failing the others.
func (s *Service) BuildGraph(ctx context.Context, req GraphRequest) (*domain.Graph, error) {
	key := req.AccountID + "|" + strconv.FormatBool(req.InstanceLinks)
	builds := s.builds.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), BuildTimeout)
		defer cancel()
		return s.buildGraph(buildCtx, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-builds:
		if res.Shared {
			s.recorder.BuildShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Graph), nil
	}
}

func (s *Service) buildGraph(ctx context.Context, req GraphRequest) (*domain.Graph, error) {
	start := s.clock.Now()

	center, err := s.Account(ctx, req.AccountID)
	if err != nil {
		s.recorder.GraphBuilt(0, 0, err)
		return nil, err
	}

	var followers, followings []domain.Account
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		followers, err = s.paginator.FetchAll(gctx, domain.RelationshipFollowers, center.ID, s.source.FetchFollowers, s.pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		followings, err = s.paginator.FetchAll(gctx, domain.RelationshipFollowing, center.ID, s.source.FetchFollowing, s.pageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		s.recorder.GraphBuilt(0, 0, err)
		return nil, err
	}

	result, err := graph.AssembleWithOptions(center, followers, followings, graph.Options{InstanceLinks: req.InstanceLinks})
	if err != nil {
		s.recorder.GraphBuilt(0, 0, err)
		return nil, fmt.Errorf("failed to assemble graph for %s: %w", center.ID, err)
	}

	elapsed := s.clock.Since(start)
	s.recorder.GraphBuilt(len(result.Nodes), elapsed, nil)
	slog.InfoContext(ctx, "Graph built",
		"account_id", center.ID,
		"followers", len(followers),
		"following", len(followings),
		"nodes", len(result.Nodes),
		"links", len(result.Links),
		"duration", elapsed,
	)
	return result, nil
}

// Account resolves id, or the authenticated account when id is empty.
func (s *Service) Account(ctx context.Context, id string) (domain.Account, error) {
	if id == "" {
		return s.directory.CurrentAccount(ctx)
	}
	return s.directory.GetAccount(ctx, id)
}

func (s *Service) Followers(ctx context.Context, id string) ([]domain.Account, error) {
	return s.relationship(ctx, domain.RelationshipFollowers, id, s.source.FetchFollowers)
}

func (s *Service) Following(ctx context.Context, id string) ([]domain.Account, error) {
	return s.relationship(ctx, domain.RelationshipFollowing, id, s.source.FetchFollowing)
}

func (s *Service) relationship(ctx context.Context, rel domain.Relationship, id string, fetch collect.PageFetcher) ([]domain.Account, error) {
	if id == "" {
		center, err := s.directory.CurrentAccount(ctx)
		if err != nil {
			return nil, err
		}
		id = center.ID
	}

	accounts, err := s.paginator.FetchAll(ctx, rel, id, fetch, s.pageSize)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}

func (s *Service) Search(ctx context.Context, query string) ([]domain.Account, error) {
	return s.directory.SearchAccounts(ctx, query, SearchLimit)
}

func (s *Service) Setting(ctx context.Context, key string) (string, error) {
	return s.settings.Get(ctx, key)
}

func (s *Service) PutSetting(ctx context.Context, key, value string) error {
	return s.settings.Put(ctx, key, value)
}

func (s *Service) Settings(ctx context.Context) ([]domain.Setting, error) {
	return s.settings.List(ctx)
}
