// Package retry wraps state-transition calls with exponential backoff.
// Only transport failures are retried; contract violations surface
// immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"nestcare/backend/internal/apperr"
)

const maxTries = 4

// Transition runs op, retrying with exponential backoff while it fails with
// a TransportError. Validation, state, and claim conflicts are returned on
// the first occurrence.
func Transition[T any](ctx context.Context, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil {
			var te *apperr.TransportError
			if errors.As(err, &te) {
				return v, err
			}
			return v, backoff.Permanent(err)
		}
		return v, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxTries))
}
