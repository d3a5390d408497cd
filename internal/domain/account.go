package domain

import "context"

// Account is a remote social-graph identity as returned by the instance API.
// Accounts are never constructed locally except in tests.
type Account struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Acct           string `json:"acct"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar,omitempty"`
	URL            string `json:"url"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
}

// Relationship names which side of the social graph a pagination run collects.
type Relationship string

const (
	RelationshipFollowers Relationship = "followers"
	RelationshipFollowing Relationship = "following"
)

// PageCursor is the opaque position of a pagination run. The zero value is the
// absent cursor that starts a run. Count is the number of items in the page
// that produced the cursor.
type PageCursor struct {
	Token string
	Count int
}

// IsZero reports whether c is the absent cursor.
func (c PageCursor) IsZero() bool {
	return c.Token == ""
}

// Page is one page of a relationship listing. Terminal is set when the remote
// side signals there is nothing after this page.
type Page struct {
	Accounts []Account
	Next     PageCursor
	Terminal bool
}

// AccountDirectory resolves single accounts on the remote instance.
type AccountDirectory interface {
	CurrentAccount(ctx context.Context) (Account, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	SearchAccounts(ctx context.Context, query string, limit int) ([]Account, error)
}

// RelationshipSource fetches single pages of an account's relationships.
type RelationshipSource interface {
	FetchFollowers(ctx context.Context, accountID string, cursor PageCursor, pageSize int) (Page, error)
	FetchFollowing(ctx context.Context, accountID string, cursor PageCursor, pageSize int) (Page, error)
}
