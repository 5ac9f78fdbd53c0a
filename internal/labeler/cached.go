package labeler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds retries of a recognizer call.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
}

// DefaultRetryPolicy retries three times starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialDelay: 500 * time.Millisecond}
}

// RetryWithBackoff runs fn up to attempts times, doubling the delay between
// tries. It stops early when ctx is done.
func RetryWithBackoff[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero  T
		val   T
		err   error
		delay = p.InitialDelay
	)
	attempts := max(1, p.Attempts)
	for i := range attempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return zero, err
}

// Cached wraps a Recognizer with retries and a result cache keyed by
// (image hash, recognizer version).
type Cached struct {
	Inner Recognizer
	Cache Cache
	Retry RetryPolicy
	Log   logrus.FieldLogger
}

// NewCached wraps inner. A nil cache means an in-process MemoryCache.
func NewCached(inner Recognizer, cache Cache, log logrus.FieldLogger) *Cached {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cached{Inner: inner, Cache: cache, Retry: DefaultRetryPolicy(), Log: log}
}

func (c *Cached) Version() string { return c.Inner.Version() }

// Recognize serves from the cache, otherwise calls the inner recognizer with
// retries and stores the result. Cache errors are logged, not returned.
func (c *Cached) Recognize(ctx context.Context, req Request) (*Result, error) {
	key := Key(req.Image, c.Inner.Version())
	if r, ok, err := c.Cache.Get(ctx, key); err != nil {
		c.Log.WithError(err).Warn("label cache read failed")
	} else if ok {
		return r, nil
	}

	r, err := RetryWithBackoff(ctx, c.Retry, func(ctx context.Context) (*Result, error) {
		return c.Inner.Recognize(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Put(ctx, key, r); err != nil {
		c.Log.WithError(err).Warn("label cache write failed")
	}
	return r, nil
}
