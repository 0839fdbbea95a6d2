// Package pipeline runs one striking-distance analysis: ingest, join,
// filter and match, optional enrichment, aggregation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/enrich"
	"github.com/starford/strikezone/internal/join"
	"github.com/starford/strikezone/internal/match"
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/schema"
	"github.com/starford/strikezone/internal/table"
)

// Config selects thresholds and optional stages for a run.
type Config struct {
	Match          match.Config `json:"match"`
	Enrich         bool         `json:"enrich"`
	OverrideVolume bool         `json:"override_volume"`
}

// Ingest holds the per-file ingestion counts.
type Ingest struct {
	Ranking schema.IngestStats `json:"ranking"`
	Crawl   schema.IngestStats `json:"crawl"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      string                  `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	Config     Config                  `json:"config"`
	Ingest     Ingest                  `json:"ingest"`
	Join       join.Stats              `json:"join"`
	Filter     match.Stats             `json:"filter"`
	Totals     aggregate.Totals        `json:"totals"`
	Pages      []models.PageSummary    `json:"pages"`
	Rows       []models.OpportunityRow `json:"-"`
	Enrichment *enrich.Report          `json:"enrichment,omitempty"`
	DurationMS int64                   `json:"duration_ms"`
}

// Summary returns the persisted outline of the result.
func (r *Result) Summary() models.RunSummary {
	s := models.RunSummary{
		ID:            r.RunID,
		StartedAt:     r.StartedAt,
		RankingSource: r.Ingest.Ranking.Source,
		CrawlSource:   r.Ingest.Crawl.Source,
		Pages:         r.Totals.Pages,
		Keywords:      r.Totals.Keywords,
		Volume:        r.Totals.Volume,
		DurationMS:    r.DurationMS,
	}
	if r.Enrichment != nil {
		s.EnrichmentState = r.Enrichment.State.String()
	}
	return s
}

// Observer receives run progress. Implementations must not block.
type Observer interface {
	RunStarted(runID, ranking, crawl string)
	BatchDone(runID string, ev enrich.BatchEvent)
	RunFinished(runID string, res *Result)
	RunFailed(runID string, err error)
}

// RunRecorder persists run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, r models.RunSummary) error
}

// Runner executes analyses. It is safe for concurrent use; every run gets
// its own enrichment client and cache.
type Runner struct {
	log       *slog.Logger
	provider  enrich.Provider
	enrichOpt []enrich.Option
	store     enrich.Store
	cacheTTL  time.Duration
	observer  Observer
	runs      RunRecorder
	now       func() time.Time
}

// Option customizes the runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithEnrichment enables the enrichment stage for runs that ask for it.
func WithEnrichment(p enrich.Provider, opts ...enrich.Option) Option {
	return func(r *Runner) {
		r.provider = p
		r.enrichOpt = opts
	}
}

// WithStore seeds every run's cache with entries younger than ttl and saves
// what the run fetched. A zero ttl loads everything.
func WithStore(s enrich.Store, ttl time.Duration) Option {
	return func(r *Runner) {
		r.store = s
		r.cacheTTL = ttl
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithRunRecorder persists a summary of every successful run.
func WithRunRecorder(rec RunRecorder) Option {
	return func(r *Runner) { r.runs = rec }
}

// New constructs a runner. The enrichment options are checked up front so
// an oversized batch fails at startup rather than on the first run.
func New(opts ...Option) (*Runner, error) {
	r := &Runner{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.provider != nil {
		if _, err := enrich.New(r.provider, r.enrichOpt...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// EnrichmentAvailable reports whether a provider is configured.
func (r *Runner) EnrichmentAvailable() bool { return r.provider != nil }

// RunFiles reads both exports from disk and runs the analysis.
func (r *Runner) RunFiles(ctx context.Context, rankingPath, crawlPath string, cfg Config) (*Result, error) {
	ranking, err := table.ReadFile(rankingPath)
	if err != nil {
		return nil, err
	}
	crawl, err := table.ReadFile(crawlPath)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, ranking, crawl, cfg)
}

// Run analyses a ranking export against a crawl export. Schema, duplicate
// URL and configuration errors abort the run; enrichment problems only
// show up in the result's enrichment report.
func (r *Runner) Run(ctx context.Context, ranking, crawl *table.Table, cfg Config) (*Result, error) {
	if err := cfg.Match.Validate(); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), StartedAt: r.now().UTC(), Config: cfg}
	log := r.log.With(slog.String("run_id", res.RunID))
	if r.observer != nil {
		r.observer.RunStarted(res.RunID, ranking.Name, crawl.Name)
	}

	if err := r.run(ctx, log, ranking, crawl, res); err != nil {
		log.Error("analysis failed", slog.String("error", err.Error()))
		if r.observer != nil {
			r.observer.RunFailed(res.RunID, err)
		}
		return nil, err
	}

	res.DurationMS = r.now().Sub(res.StartedAt).Milliseconds()
	log.Info("analysis completed",
		slog.Int("pages", res.Totals.Pages),
		slog.Int("keywords", res.Totals.Keywords),
		slog.Int("volume", res.Totals.Volume),
		slog.Int64("duration_ms", res.DurationMS),
	)
	if r.runs != nil {
		if err := r.runs.RecordRun(ctx, res.Summary()); err != nil {
			log.Warn("record run failed", slog.String("error", err.Error()))
		}
	}
	if r.observer != nil {
		r.observer.RunFinished(res.RunID, res)
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, ranking, crawl *table.Table, res *Result) error {
	rankings, rstats, err := schema.ParseRankings(ranking)
	if err != nil {
		return fmt.Errorf("ingest ranking: %w", err)
	}
	pages, cstats, err := schema.ParseCrawl(crawl)
	if err != nil {
		return fmt.Errorf("ingest crawl: %w", err)
	}
	res.Ingest = Ingest{Ranking: rstats, Crawl: cstats}
	logSkips(log, rstats)
	logSkips(log, cstats)

	joined, jstats, err := join.Join(rankings, pages, crawl.Name)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	res.Join = jstats
	log.Info("exports joined",
		slog.Int("ranking_rows", rstats.Rows-rstats.Skipped),
		slog.Int("crawl_pages", jstats.CrawlURLs),
		slog.Int("matched_urls", jstats.MatchedURLs),
		slog.Int("joined", jstats.Joined),
	)

	rows, fstats, err := match.Run(joined, res.Config.Match)
	if err != nil {
		return err
	}
	res.Filter = fstats
	log.Debug("opportunities matched",
		slog.Int("rows", len(rows)),
		slog.Int("non_indexable", fstats.NonIndexable),
		slog.Int("outside_window", fstats.OutsideWindow),
		slog.Int("below_volume", fstats.BelowVolume),
		slog.Int("paginated", fstats.Paginated),
		slog.Int("optimized", fstats.Optimized),
	)

	if res.Config.Enrich {
		rows, res.Enrichment = r.enrich(ctx, log, res.RunID, rows, res.Config.OverrideVolume)
	}

	res.Pages = aggregate.Aggregate(rows)
	if res.Pages == nil {
		res.Pages = []models.PageSummary{}
	}
	res.Rows = aggregate.Flatten(res.Pages)
	res.Totals = aggregate.Summarize(res.Pages)
	return nil
}

// enrich attaches provider metrics to rows. Every failure degrades to the
// unenriched rows.
func (r *Runner) enrich(ctx context.Context, log *slog.Logger, runID string, rows []models.OpportunityRow, overrideVolume bool) ([]models.OpportunityRow, *enrich.Report) {
	if r.provider == nil {
		log.Warn("enrichment requested but no provider is configured")
		return rows, nil
	}

	cache := enrich.NewCache()
	if r.store != nil {
		var since time.Time
		if r.cacheTTL > 0 {
			since = r.now().Add(-r.cacheTTL)
		}
		fresh, err := r.store.LoadFresh(ctx, since)
		if err != nil {
			log.Warn("load cached metrics failed", slog.String("error", err.Error()))
		} else {
			cache.Seed(fresh)
		}
	}

	opts := append([]enrich.Option{
		enrich.WithLogger(log),
		enrich.WithProgress(func(ev enrich.BatchEvent) {
			if r.observer != nil {
				r.observer.BatchDone(runID, ev)
			}
		}),
	}, r.enrichOpt...)
	client, err := enrich.New(r.provider, opts...)
	if err != nil {
		log.Warn("enrichment disabled", slog.String("error", err.Error()))
		return rows, nil
	}

	report, err := client.Enrich(ctx, enrich.Missing(rows), cache)
	if err != nil {
		log.Warn("enrichment skipped", slog.String("error", err.Error()))
		return rows, nil
	}

	if r.store != nil {
		if err := r.store.Save(context.WithoutCancel(ctx), cache.Fetched()); err != nil {
			log.Warn("save cached metrics failed", slog.String("error", err.Error()))
		}
	}
	return enrich.Apply(rows, cache, overrideVolume), report
}

func logSkips(log *slog.Logger, s schema.IngestStats) {
	for _, reason := range s.Reasons() {
		log.Debug("rows skipped",
			slog.String("source", s.Source),
			slog.String("reason", reason),
			slog.Int("count", s.SkipReasons[reason]),
		)
	}
}
