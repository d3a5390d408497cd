package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPaginationOverrun = errors.New("pagination overrun")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrAccountNotFound   = errors.New("account not found")
	ErrSettingNotFound   = errors.New("setting not found")
	ErrRemoteUnavailable = errors.New("remote instance unavailable")
)

// NetworkError reports a failed page fetch. Pagination runs surface it
// unchanged; nothing in the core retries.
type NetworkError struct {
	Relationship Relationship
	AccountID    string
	Cursor       PageCursor
	Err          error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s of %s (cursor %q): %v", e.Relationship, e.AccountID, e.Cursor.Token, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
