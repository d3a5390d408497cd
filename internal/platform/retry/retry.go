// Package retry repeats startup operations such as dialing PostgreSQL or
// Redis while their containers come up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Policy struct {
	Attempts   int
	Backoff    time.Duration // wait after the first failure, doubled each time
	MaxBackoff time.Duration // zero means uncapped
	Clock      clockwork.Clock
	OnRetry    func(attempt int, err error, wait time.Duration)
}

// Startup is the policy used while connecting to backing services.
var Startup = Policy{
	Attempts:   5,
	Backoff:    500 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// used up or ctx ends.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	wait := p.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if attempt == p.Attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-clock.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, errors.Join(ctx.Err(), err))
		}

		wait *= 2
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}
