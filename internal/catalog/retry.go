package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// RetryPolicy controls re-invocation of failed calls. Only execution
// failures retry; invalid arguments and unknown names fail immediately.
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}
}

// ExecuteWithRetry runs Execute up to policy.Attempts times with doubling
// backoff between attempts. Each attempt records its own reliability event.
func (c *Catalog) ExecuteWithRetry(ctx context.Context, name string, args json.RawMessage, policy RetryPolicy) (any, error) {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		result, err := c.Execute(ctx, name, args)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			return nil, err
		}
		if attempt == policy.Attempts {
			break
		}

		c.log.Debug("retrying tool call", "tool", name, "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return nil, lastErr
}

// ExecuteWithTimeout bounds a call with a context deadline. The deadline is
// cooperative: an invocable that ignores its context can still overrun it.
func (c *Catalog) ExecuteWithTimeout(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Execute(ctx, name, args)
}
