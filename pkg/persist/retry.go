package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrier runs adapter writes off the hot path. A write that keeps failing
// after the retry budget is demoted to the dead-letter log; it never blocks
// or fails live signaling.
type Retrier struct {
	logger     *slog.Logger
	maxRetries uint64
	wg         sync.WaitGroup

	// onDeadLetter is called after the retry budget is exhausted. Tests hook
	// it; the default just logs.
	onDeadLetter func(op string, err error)
}

func NewRetrier(logger *slog.Logger, maxRetries uint64) *Retrier {
	r := &Retrier{
		logger:     logger.With(slog.String("component", "persist_retrier")),
		maxRetries: maxRetries,
	}
	r.onDeadLetter = func(op string, err error) {
		r.logger.Error("Dead-lettered persistence write",
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
	return r
}

// SetDeadLetterHook replaces the dead-letter callback. Must be called before
// the first Go.
func (r *Retrier) SetDeadLetterHook(fn func(op string, err error)) {
	r.onDeadLetter = fn
}

// Go executes fn in the background with bounded exponential backoff.
func (r *Retrier) Go(ctx context.Context, op string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 50 * time.Millisecond
		policy.MaxElapsedTime = 0 // bounded by retry count, not wall time

		err := backoff.Retry(func() error {
			if err := fn(ctx); err != nil {
				r.logger.Warn("Persistence write failed, will retry",
					slog.String("op", op),
					slog.Any("error", err),
				)
				return err
			}
			return nil
		}, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))

		if err != nil {
			r.onDeadLetter(op, err)
		}
	}()
}

// Wait blocks until all in-flight writes have settled. Used during shutdown
// and by tests.
func (r *Retrier) Wait() {
	r.wg.Wait()
}
