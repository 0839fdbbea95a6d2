package enrich

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
)

func (c *Client) fetchWithRetry(ctx context.Context, batch []string) ([]models.KeywordMetrics, int, error) {
	attempts := c.retryAttempts()
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, attempt - 1, abortError(ctx)
		}
		got, err := c.provider.FetchMetrics(ctx, batch)
		if err == nil {
			return got, attempt, nil
		}
		pe := classify(ctx, err)

		delay, retry := c.retryDelay(ctx, pe, attempt, attempts)
		if !retry {
			return nil, attempt, pe
		}
		c.log.Warn("enrichment batch retry",
			slog.Int("attempt", attempt),
			slog.Int("size", len(batch)),
			slog.String("kind", string(pe.Kind)),
			slog.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			// The batch already failed for a retryable reason; keep that
			// reason unless the run was cut short by an auth failure.
			if isAuth(context.Cause(ctx)) {
				return nil, attempt, context.Cause(ctx)
			}
			return nil, attempt, pe
		}
	}
}

// classify turns any provider error into a ProviderError. Once the run
// context is done its cause takes precedence over the request error.
func classify(ctx context.Context, err error) *apperr.ProviderError {
	if ctx.Err() != nil {
		return abortError(ctx)
	}
	var pe *apperr.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.ProviderError{Kind: apperr.KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &apperr.ProviderError{Kind: apperr.KindCanceled, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &apperr.ProviderError{Kind: apperr.KindTimeout, Err: err}
	}
	return &apperr.ProviderError{Kind: apperr.KindResponse, Err: err}
}

// abortError reports why the run context ended: the auth failure that
// cancelled it, the run timeout, or caller cancellation.
func abortError(ctx context.Context) *apperr.ProviderError {
	cause := context.Cause(ctx)
	var pe *apperr.ProviderError
	if errors.As(cause, &pe) {
		return pe
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return &apperr.ProviderError{Kind: apperr.KindTimeout, Err: cause}
	}
	return &apperr.ProviderError{Kind: apperr.KindCanceled, Err: cause}
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, pe *apperr.ProviderError, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil || !pe.Retryable() {
		return 0, false
	}
	if pe.RetryAfter > 0 {
		return c.capDelay(pe.RetryAfter), true
	}
	return c.backoffDelay(attempt), true
}

// backoffDelay doubles from the base delay: attempt 1 waits base, attempt 2
// waits 2*base and so on, capped at the max delay.
func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
