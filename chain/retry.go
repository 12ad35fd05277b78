package chain

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"state-connector/models"
)

// DefaultBackoff is the fixed delay between connectivity retries.
const DefaultBackoff = time.Second

// Retry runs fn until it succeeds, returns a non-connectivity error, or ctx
// is done. Connectivity failures are never surfaced.
func Retry(ctx context.Context, backoff time.Duration, log *zap.Logger, op string, fn func() error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, models.ErrConnectivity)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("Retrying after connectivity failure",
				zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil && ctx.Err() != nil && errors.Is(err, models.ErrConnectivity) {
		return ctx.Err()
	}
	return err
}

// Value is Retry for calls that return a result.
func Value[T any](ctx context.Context, backoff time.Duration, log *zap.Logger, op string, fn func() (T, error)) (T, error) {
	var out T
	err := Retry(ctx, backoff, log, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
