package collect

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
)

// DefaultMaxPages bounds a single run when no limit is configured.
const DefaultMaxPages = 10_000

// PageFetcher requests one page of relationships starting at cursor.
type PageFetcher func(ctx context.Context, accountID string, cursor domain.PageCursor, pageSize int) (domain.Page, error)

// Recorder receives pagination telemetry. Implementations must be safe for
// concurrent use because followers and followings are collected in parallel.
type Recorder interface {
	PageFetched(rel domain.Relationship, items int)
	RunFinished(rel domain.Relationship, accounts int, err error)
}

type noopRecorder struct{}

func (noopRecorder) PageFetched(domain.Relationship, int)        {}
func (noopRecorder) RunFinished(domain.Relationship, int, error) {}

// Paginator holds no per-run state; one instance serves any number of
// concurrent runs.
type Paginator struct {
	maxPages int
	recorder Recorder
}

// NewPaginator creates a paginator. maxPages <= 0 selects DefaultMaxPages,
// a nil recorder discards telemetry.
func NewPaginator(maxPages int, recorder Recorder) *Paginator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Paginator{maxPages: maxPages, recorder: recorder}
}

// FetchAll collects every account of the listing in the order the remote side
// returned them. It is all-or-nothing: on any failure no accounts are returned.
func (p *Paginator) FetchAll(ctx context.Context, rel domain.Relationship, accountID string, fetch PageFetcher, pageSize int) ([]domain.Account, error) {
	var accounts []domain.Account
	for account, err := range p.All(ctx, rel, accountID, fetch, pageSize) {
		if err != nil {
			p.recorder.RunFinished(rel, 0, err)
			return nil, err
		}
		accounts = append(accounts, account)
	}

	p.recorder.RunFinished(rel, len(accounts), nil)
	return accounts, nil
}

// All yields the listing lazily. The sequence is finite and single-pass; a
// failure is yielded once as the final element.
func (p *Paginator) All(ctx context.Context, rel domain.Relationship, accountID string, fetch PageFetcher, pageSize int) iter.Seq2[domain.Account, error] {
	return func(yield func(domain.Account, error) bool) {
		if pageSize < 1 {
			yield(domain.Account{}, fmt.Errorf("page size must be positive, got %d", pageSize))
			return
		}

		var cursor domain.PageCursor
		for pages := 0; ; pages++ {
			if pages >= p.maxPages {
				yield(domain.Account{}, fmt.Errorf("%w: %s of %s exceeded %d pages", domain.ErrPaginationOverrun, rel, accountID, p.maxPages))
				return
			}
			if err := ctx.Err(); err != nil {
				yield(domain.Account{}, fmt.Errorf("pagination of %s cancelled: %w", rel, err))
				return
			}

			page, err := fetch(ctx, accountID, cursor, pageSize)
			if err != nil {
				yield(domain.Account{}, asNetworkError(err, rel, accountID, cursor))
				return
			}
			p.recorder.PageFetched(rel, len(page.Accounts))

			for _, account := range page.Accounts {
				if !yield(account, nil) {
					return
				}
			}

			// A full page without a next cursor would restart the run at page one.
			if len(page.Accounts) < pageSize || page.Terminal || page.Next.IsZero() {
				return
			}

			cursor = page.Next
			if cursor.Count == 0 {
				cursor.Count = len(page.Accounts)
			}
		}
	}
}

func asNetworkError(err error, rel domain.Relationship, accountID string, cursor domain.PageCursor) error {
	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	return &domain.NetworkError{Relationship: rel, AccountID: accountID, Cursor: cursor, Err: err}
}
