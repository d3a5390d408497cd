// Package mastodon reads accounts and relationship pages from a Mastodon
// instance. Every request passes a client-side rate limiter and a circuit
// breaker so a struggling instance is not hammered by large pagination runs.
package mastodon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/jonboulle/clockwork"
	gomastodon "github.com/mattn/go-mastodon"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	breakerName             = "mastodon"
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
	defaultTimeout          = 30 * time.Second
)

// ErrUnavailable is returned while the circuit breaker rejects requests.
var ErrUnavailable = domain.ErrRemoteUnavailable

type Recorder interface {
	RequestCompleted(endpoint string, err error, duration time.Duration)
	RequestRejected(endpoint string)
	BreakerStateChanged(name string, state int)
	RateLimited(wait time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RequestCompleted(string, error, time.Duration) {}
func (noopRecorder) RequestRejected(string)                        {}
func (noopRecorder) BreakerStateChanged(string, int)               {}
func (noopRecorder) RateLimited(time.Duration)                     {}

type Config struct {
	InstanceURL   string
	AccessToken   string
	UserAgent     string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

type Client struct {
	api      *gomastodon.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	clock    clockwork.Clock
	recorder Recorder
}

var (
	_ domain.AccountDirectory   = (*Client)(nil)
	_ domain.RelationshipSource = (*Client)(nil)
)

func NewClient(cfg Config, clock clockwork.Clock, recorder Recorder) *Client {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := max(cfg.Burst, 1)

	api := gomastodon.NewClient(&gomastodon.Config{
		Server:      strings.TrimRight(cfg.InstanceURL, "/"),
		AccessToken: cfg.AccessToken,
	})
	api.Timeout = cfg.Timeout
	api.UserAgent = cfg.UserAgent

	c := &Client{
		api:      api,
		limiter:  rate.NewLimiter(limit, burst),
		clock:    clock,
		recorder: recorder,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// The instance answered; the caller asked for something absent.
			return err == nil || isNotFound(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			c.recorder.BreakerStateChanged(name, int(to))
		},
	})
	return c
}

func (c *Client) CurrentAccount(ctx context.Context) (domain.Account, error) {
	result, err := c.call(ctx, "verify_credentials", func() (any, error) {
		return c.api.GetAccountCurrentUser(ctx)
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to verify credentials: %w", err)
	}
	return toDomain(result.(*gomastodon.Account)), nil
}

func (c *Client) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	result, err := c.call(ctx, "account", func() (any, error) {
		return c.api.GetAccount(ctx, gomastodon.ID(id))
	})
	if err != nil {
		if isNotFound(err) {
			return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		return domain.Account{}, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return toDomain(result.(*gomastodon.Account)), nil
}

func (c *Client) SearchAccounts(ctx context.Context, query string, limit int) ([]domain.Account, error) {
	result, err := c.call(ctx, "search", func() (any, error) {
		return c.api.AccountsSearch(ctx, query, int64(limit))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search accounts: %w", err)
	}
	return toDomainList(result.([]*gomastodon.Account)), nil
}

func (c *Client) FetchFollowers(ctx context.Context, accountID string, cursor domain.PageCursor, pageSize int) (domain.Page, error) {
	return c.fetchPage(ctx, "followers", accountID, cursor, pageSize, c.api.GetAccountFollowers)
}

func (c *Client) FetchFollowing(ctx context.Context, accountID string, cursor domain.PageCursor, pageSize int) (domain.Page, error) {
	return c.fetchPage(ctx, "following", accountID, cursor, pageSize, c.api.GetAccountFollowing)
}

type listFunc func(ctx context.Context, id gomastodon.ID, pg *gomastodon.Pagination) ([]*gomastodon.Account, error)

// fetchPage requests one page. The instance advertises the next page through
// the Link header, which go-mastodon copies into pg; a missing or repeated
// max_id marks the last page.
func (c *Client) fetchPage(ctx context.Context, endpoint, accountID string, cursor domain.PageCursor, pageSize int, list listFunc) (domain.Page, error) {
	pg := &gomastodon.Pagination{
		MaxID: gomastodon.ID(cursor.Token),
		Limit: int64(pageSize),
	}

	result, err := c.call(ctx, endpoint, func() (any, error) {
		return list(ctx, gomastodon.ID(accountID), pg)
	})
	if err != nil {
		return domain.Page{}, err
	}

	accounts := toDomainList(result.([]*gomastodon.Account))
	next := string(pg.MaxID)
	if next == "" || next == cursor.Token {
		return domain.Page{Accounts: accounts, Terminal: true}, nil
	}
	return domain.Page{
		Accounts: accounts,
		Next:     domain.PageCursor{Token: next, Count: len(accounts)},
	}, nil
}

func (c *Client) call(ctx context.Context, endpoint string, fn func() (any, error)) (any, error) {
	waitStart := c.clock.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	c.recorder.RateLimited(c.clock.Since(waitStart))

	start := c.clock.Now()
	result, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.recorder.RequestRejected(endpoint)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.recorder.RequestCompleted(endpoint, err, c.clock.Since(start))
	return result, err
}

// BreakerState exposes the breaker for readiness checks.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// go-mastodon flattens HTTP failures into the error text: either the status
// line or the "error" field Mastodon puts in the body ("Record not found").
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404 Not Found") || strings.Contains(msg, "Record not found")
}

func toDomain(a *gomastodon.Account) domain.Account {
	return domain.Account{
		ID:             string(a.ID),
		Username:       a.Username,
		Acct:           a.Acct,
		DisplayName:    a.DisplayName,
		AvatarURL:      a.Avatar,
		URL:            a.URL,
		FollowersCount: a.FollowersCount,
		FollowingCount: a.FollowingCount,
	}
}

func toDomainList(accounts []*gomastodon.Account) []domain.Account {
	result := make([]domain.Account, 0, len(accounts))
	for _, a := range accounts {
		if a == nil {
			continue
		}
		result = append(result, toDomain(a))
	}
	return result
}
