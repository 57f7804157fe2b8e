package shared

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds [Retry].
type RetryPolicy struct {
	MaxAttempts     int           // total attempts including the first, minimum 1
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // cap on a single delay
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, InitialInterval: 50 * time.Millisecond, MaxInterval: 2 * time.Second}

// IsPermanent reports whether err is a semantic failure that retrying cannot fix.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrIncompleteRelation,
		ErrInvalidFilter,
		ErrInvalidSort,
		ErrInvalidTarget,
		ErrInvalidInput,
		ErrInvalidArgument,
		ErrMissingArgument,
		ErrSongNotInPlaylist,
		ErrNoSongsToRecommend,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Retry runs op with exponential backoff until it succeeds, fails permanently, exhausts the policy or ctx is done.
//
// onRetry, when non-nil, is called before each delayed attempt.
func Retry(ctx context.Context, p RetryPolicy, op func() error, onRetry func(err error, wait time.Duration)) error {
	if p.MaxAttempts <= 0 {
		p = DefaultRetryPolicy
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	wrapped := func() error {
		err := op()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.RetryNotify(wrapped, b, onRetry)
}
