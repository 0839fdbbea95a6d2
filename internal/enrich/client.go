package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
)

// MaxBatchSize is the provider's hard limit on keywords per request.
const MaxBatchSize = 1000

const (
	defaultWorkers        = 2
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 5 * time.Second
)

// ErrBusy is returned when Enrich is called while a run is in progress.
var ErrBusy = errors.New("enrich: run already in progress")

// Provider fetches metrics for at most MaxBatchSize keywords. Keywords the
// provider has no data for are simply absent from the result.
type Provider interface {
	FetchMetrics(ctx context.Context, keywords []string) ([]models.KeywordMetrics, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, keywords []string) ([]models.KeywordMetrics, error)

// FetchMetrics calls f.
func (f ProviderFunc) FetchMetrics(ctx context.Context, keywords []string) ([]models.KeywordMetrics, error) {
	return f(ctx, keywords)
}

// BatchEvent describes one finished batch.
type BatchEvent struct {
	Index    int   `json:"index"`
	Total    int   `json:"total"`
	Size     int   `json:"size"`
	Fetched  int   `json:"fetched"`
	Attempts int   `json:"attempts"`
	Err      error `json:"-"`
}

// Client runs enrichment passes against a Provider.
type Client struct {
	provider Provider
	log      *slog.Logger

	batchSize int
	workers   int
	timeout   time.Duration

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)

	progress func(BatchEvent)
	state    atomic.Int32
}

// Option customizes the client.
type Option func(*Client)

// WithBatchSize sets the number of keywords per request (at most MaxBatchSize).
func WithBatchSize(n int) Option {
	return func(c *Client) { c.batchSize = n }
}

// WithWorkers bounds the number of concurrent requests.
func WithWorkers(n int) Option {
	return func(c *Client) { c.workers = n }
}

// WithTimeout bounds a whole Enrich call. Batches still outstanding when it
// expires are reported as failed.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryMaxAttempts sets the attempts per batch, the first included.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retryMaxAttempts = attempts }
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

// WithLogger sets the logger used for batch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithProgress registers a callback invoked after every batch. It may be
// called from several goroutines at once.
func WithProgress(fn func(BatchEvent)) Option {
	return func(c *Client) { c.progress = fn }
}

// New constructs a client. A batch size above MaxBatchSize is a
// configuration error; the client never truncates a batch.
func New(p Provider, opts ...Option) (*Client, error) {
	if p == nil {
		return nil, &apperr.ConfigurationError{Field: "enrichment.provider", Reason: "no provider configured"}
	}
	c := &Client{
		provider:         p,
		log:              slog.Default(),
		batchSize:        MaxBatchSize,
		workers:          defaultWorkers,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	switch {
	case c.batchSize < 1 || c.batchSize > MaxBatchSize:
		return nil, &apperr.ConfigurationError{
			Field:  "enrichment.batch_size",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxBatchSize, c.batchSize),
		}
	case c.workers < 1:
		return nil, &apperr.ConfigurationError{Field: "enrichment.workers", Reason: "must be at least 1"}
	}
	return c, nil
}

// State returns the current run state.
func (c *Client) State() State { return State(c.state.Load()) }

// Plan normalizes and deduplicates keywords in first-seen order and splits
// the uncached ones into batches. It returns the batches and the number of
// unique keywords already cached.
func (c *Client) Plan(keywords []string, cache *Cache) (batches [][]string, unique, cached int) {
	seen := make(map[string]struct{}, len(keywords))
	var pending []string
	for _, kw := range keywords {
		n := NormalizeKeyword(kw)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if cache != nil {
			if _, ok := cache.Get(n); ok {
				cached++
				continue
			}
		}
		pending = append(pending, n)
	}
	return Batch(pending, c.batchSize), len(seen), cached
}

// Batch splits keywords into consecutive groups of at most size entries.
func Batch(keywords []string, size int) [][]string {
	if size < 1 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	var out [][]string
	for len(keywords) > 0 {
		n := min(size, len(keywords))
		out = append(out, keywords[:n:n])
		keywords = keywords[n:]
	}
	return out
}

type batchResult struct {
	fetched   []string
	unmetered []string
	attempts  int
	err       error
}

// Enrich fetches metrics for the keywords missing from cache and stores the
// results in it. Provider failures never surface as an error; they are
// listed in the report. The error is non-nil only when the client is busy.
func (c *Client) Enrich(ctx context.Context, keywords []string, cache *Cache) (*Report, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateBatching)) {
		return nil, ErrBusy
	}
	defer c.state.Store(int32(StateIdle))
	if cache == nil {
		cache = NewCache()
	}

	start := time.Now()
	batches, unique, cached := c.Plan(keywords, cache)
	report := &Report{
		RequestedCount: unique,
		CachedCount:    cached,
		Batches:        len(batches),
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if c.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, c.timeout)
		defer cancelTimeout()
	}

	c.state.Store(int32(StateInFlight))
	results := make([]batchResult, len(batches))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, batch := range batches {
		g.Go(func() error {
			res := c.runBatch(runCtx, batch, cache)
			if isAuth(res.err) {
				cancel(res.err)
			}
			results[i] = res
			c.notify(BatchEvent{
				Index:    i + 1,
				Total:    len(batches),
				Size:     len(batch),
				Fetched:  len(res.fetched),
				Attempts: res.attempts,
				Err:      res.err,
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.err != nil {
			report.FailedBatches = append(report.FailedBatches, newFailedBatch(i+1, batches[i], res.err))
			continue
		}
		report.SucceededKeywords = append(report.SucceededKeywords, res.fetched...)
		report.Unmetered = append(report.Unmetered, res.unmetered...)
	}
	report.FetchedCount = len(report.SucceededKeywords)
	report.Duration = time.Since(start)

	switch {
	case len(report.FailedBatches) == 0:
		report.State = StateSucceeded
	case len(report.FailedBatches) == len(batches):
		report.State = StateFailed
	default:
		report.State = StatePartiallyFailed
	}
	c.state.Store(int32(report.State))

	c.log.Info("enrichment finished",
		slog.String("state", report.State.String()),
		slog.Int("requested", report.RequestedCount),
		slog.Int("cached", report.CachedCount),
		slog.Int("fetched", report.FetchedCount),
		slog.Int("unmetered", len(report.Unmetered)),
		slog.Int("failed_batches", len(report.FailedBatches)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (c *Client) runBatch(ctx context.Context, batch []string, cache *Cache) batchResult {
	got, attempts, err := c.fetchWithRetry(ctx, batch)
	if err != nil {
		return batchResult{attempts: attempts, err: err}
	}

	want := make(map[string]struct{}, len(batch))
	for _, kw := range batch {
		want[kw] = struct{}{}
	}
	returned := make(map[string]struct{}, len(got))
	now := time.Now().UTC()
	for _, m := range got {
		m.Keyword = NormalizeKeyword(m.Keyword)
		if _, ok := want[m.Keyword]; !ok {
			continue
		}
		if m.FetchedAt.IsZero() {
			m.FetchedAt = now
		}
		cache.Put(m)
		returned[m.Keyword] = struct{}{}
	}

	res := batchResult{attempts: attempts}
	for _, kw := range batch {
		if _, ok := returned[kw]; ok {
			res.fetched = append(res.fetched, kw)
		} else {
			res.unmetered = append(res.unmetered, kw)
		}
	}
	return res
}

func (c *Client) notify(ev BatchEvent) {
	if ev.Err != nil {
		c.log.Warn("enrichment batch failed",
			slog.Int("batch", ev.Index),
			slog.Int("size", ev.Size),
			slog.Int("attempts", ev.Attempts),
			slog.String("error", ev.Err.Error()),
		)
	} else {
		c.log.Debug("enrichment batch done",
			slog.Int("batch", ev.Index),
			slog.Int("size", ev.Size),
			slog.Int("fetched", ev.Fetched),
		)
	}
	if c.progress != nil {
		c.progress(ev)
	}
}

func isAuth(err error) bool {
	var pe *apperr.ProviderError
	return errors.As(err, &pe) && pe.Kind == apperr.KindAuth
}
