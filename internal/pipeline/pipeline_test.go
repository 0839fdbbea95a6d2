package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/enrich"
	"github.com/starford/strikezone/internal/match"
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/table"
	"github.com/starford/strikezone/internal/testutil"
)

type recorder struct {
	mu       sync.Mutex
	started  []string
	batches  []enrich.BatchEvent
	finished []*Result
	failed   []error
}

func (r *recorder) RunStarted(id, ranking, crawl string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recorder) BatchDone(_ string, ev enrich.BatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, ev)
}

func (r *recorder) RunFinished(_ string, res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
}

func (r *recorder) RunFailed(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func mustTable(t *testing.T, name, content string) *table.Table {
	t.Helper()
	tbl, err := table.Read(strings.NewReader(content), name)
	if err != nil {
		t.Fatalf("table.Read(%s): %v", name, err)
	}
	return tbl
}

func defaultConfig() Config {
	return Config{Match: match.DefaultConfig()}
}

func TestRun_Defaults(t *testing.T) {
	obs := &recorder{}
	r, err := New(WithObserver(obs))
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Run(context.Background(),
		mustTable(t, "ranking.csv", testutil.RankingCSV),
		mustTable(t, "crawl.csv", testutil.CrawlCSV),
		defaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RunID == "" || len(obs.started) != 1 || len(obs.finished) != 1 {
		t.Errorf("run id %q, started %d, finished %d", res.RunID, len(obs.started), len(obs.finished))
	}
	if res.Join.Joined != 6 || res.Filter.NonIndexable != 1 || res.Join.RankingDuplicates != 1 {
		t.Errorf("join stats = %+v, filter stats = %+v", res.Join, res.Filter)
	}
	if len(res.Pages) != 1 {
		t.Fatalf("pages = %+v, want 1", res.Pages)
	}
	page := res.Pages[0]
	if page.URL != "https://example.com/a" || page.KeywordCount != 2 || page.StrikingDistanceVolume != 420 {
		t.Errorf("page = %+v", page)
	}
	if page.AvgDifficulty == nil || *page.AvgDifficulty != 30 {
		t.Errorf("avg difficulty = %v, want 30", page.AvgDifficulty)
	}
	if page.Rows[0].Keyword != "running shoes" || !page.Rows[0].InCopy {
		t.Errorf("first row = %+v", page.Rows[0])
	}
	best := page.Rows[1]
	if best.Keyword != "best shoes" || best.InTitle || best.InHeading || best.InCopy {
		t.Errorf("best shoes row = %+v", best)
	}
	if len(res.Rows) != 2 || res.Totals.Volume != 420 {
		t.Errorf("rows = %d totals = %+v", len(res.Rows), res.Totals)
	}
	if res.Enrichment != nil {
		t.Error("enrichment ran without being requested")
	}
}

func TestRun_KeepOptimizedAndNonIndexable(t *testing.T) {
	r, _ := New()
	cfg := defaultConfig()
	cfg.Match.DropOptimized = false
	cfg.Match.IncludeNonIndexable = true
	res, err := r.Run(context.Background(),
		mustTable(t, "ranking.csv", testutil.RankingCSV),
		mustTable(t, "crawl.csv", testutil.CrawlCSV),
		cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var urls []string
	for _, p := range res.Pages {
		urls = append(urls, p.URL)
	}
	want := "https://example.com/a,https://example.com/b,https://example.com/c"
	if strings.Join(urls, ",") != want {
		t.Errorf("pages = %v, want %s", urls, want)
	}
}

func TestRun_DuplicateCrawlURL(t *testing.T) {
	obs := &recorder{}
	r, _ := New(WithObserver(obs))
	_, err := r.Run(context.Background(),
		mustTable(t, "ranking.csv", testutil.RankingCSV),
		mustTable(t, "dupes.csv", testutil.DuplicateCrawlCSV),
		defaultConfig())
	var de *apperr.DuplicateURLError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DuplicateURLError", err)
	}
	if de.Source != "dupes.csv" || de.URL != "example.com/a" {
		t.Errorf("error = %+v", de)
	}
	if len(obs.failed) != 1 || len(obs.finished) != 0 {
		t.Errorf("observer failed=%d finished=%d", len(obs.failed), len(obs.finished))
	}
}

func TestRun_SchemaError(t *testing.T) {
	r, _ := New()
	_, err := r.Run(context.Background(),
		mustTable(t, "ranking.csv", "Keyword,URL,Position\nk,/a,5\n"),
		mustTable(t, "crawl.csv", testutil.CrawlCSV),
		defaultConfig())
	if !errors.Is(err, apperr.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
	if !strings.Contains(err.Error(), "ranking.csv") || !strings.Contains(err.Error(), "volume") {
		t.Errorf("error should name the file and column: %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	obs := &recorder{}
	r, _ := New(WithObserver(obs))
	cfg := defaultConfig()
	cfg.Match.MinPosition, cfg.Match.MaxPosition = 20, 4
	_, err := r.Run(context.Background(), &table.Table{Name: "r"}, &table.Table{Name: "c"}, cfg)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if len(obs.started) != 0 {
		t.Error("run should not start with an invalid configuration")
	}
}

func TestRun_EnrichmentWithStore(t *testing.T) {
	db := testutil.TestDB(t)
	obs := &recorder{}
	var sent []string
	provider := enrich.ProviderFunc(func(ctx context.Context, batch []string) ([]models.KeywordMetrics, error) {
		sent = append(sent, batch...)
		out := make([]models.KeywordMetrics, len(batch))
		for i, kw := range batch {
			d, c := 55.0, 1.5
			out[i] = models.KeywordMetrics{Keyword: kw, Difficulty: &d, CPC: &c, CompetitionLevel: "LOW"}
		}
		return out, nil
	})
	r, err := New(
		WithEnrichment(provider, enrich.WithWorkers(1)),
		WithStore(db, 24*time.Hour),
		WithObserver(obs),
		WithRunRecorder(db),
	)
	if err != nil {
		t.Fatal(err)
	}
	cfg := defaultConfig()
	cfg.Enrich = true

	res, err := r.Run(context.Background(),
		mustTable(t, "ranking.csv", testutil.RankingCSV),
		mustTable(t, "crawl.csv", testutil.CrawlCSV),
		cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Enrichment == nil || res.Enrichment.FetchedCount != 2 || res.Enrichment.State != enrich.StateSucceeded {
		t.Fatalf("enrichment = %+v", res.Enrichment)
	}
	rows := res.Pages[0].Rows
	if *rows[0].Difficulty != 55 || *rows[1].Difficulty != 30 {
		t.Errorf("difficulties = %v, %v; export values must win", *rows[0].Difficulty, *rows[1].Difficulty)
	}
	if rows[1].CPC == nil || *rows[1].CPC != 1.5 {
		t.Errorf("cpc = %v, want 1.5", rows[1].CPC)
	}
	if len(obs.batches) != 1 {
		t.Errorf("batch events = %d, want 1", len(obs.batches))
	}

	saved, err := db.LoadFresh(context.Background(), time.Now().Add(-time.Hour))
	if err != nil || len(saved) != 2 {
		t.Errorf("saved = %d, err = %v", len(saved), err)
	}

	// The second run is served from the store.
	sent = nil
	res, err = r.Run(context.Background(),
		mustTable(t, "ranking.csv", testutil.RankingCSV),
		mustTable(t, "crawl.csv", testutil.CrawlCSV),
		cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 0 || res.Enrichment.CachedCount != 2 {
		t.Errorf("second run sent %v, cached %d", sent, res.Enrichment.CachedCount)
	}

	runs, total, err := db.ListRuns(context.Background(), 10, 0)
	if err != nil || total != 2 || runs[0].EnrichmentState != "succeeded" {
		t.Errorf("runs = %+v total = %d err = %v", runs, total, err)
	}
}

func TestRun_EnrichmentFailureDegrades(t *testing.T) {
	provider := enrich.ProviderFunc(func(ctx context.Context, batch []string) ([]models.KeywordMetrics, error) {
		return nil, &apperr.ProviderError{Kind: apperr.KindAuth, StatusCode: 401}
	})
	r, _ := New(WithEnrichment(provider))
	cfg := defaultConfig()
	cfg.Enrich = true
	res, err := r.Run(context.Background(),
		mustTable(t, "ranking.csv", testutil.RankingCSV),
		mustTable(t, "crawl.csv", testutil.CrawlCSV),
		cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Enrichment.State != enrich.StateFailed || len(res.Enrichment.FailedBatches) != 1 {
		t.Errorf("enrichment = %+v", res.Enrichment)
	}
	if res.Totals.Volume != 420 || res.Pages[0].Rows[0].Difficulty != nil {
		t.Errorf("unenriched result changed: %+v", res.Totals)
	}
}

func TestNew_RejectsOversizeBatch(t *testing.T) {
	provider := enrich.ProviderFunc(func(ctx context.Context, batch []string) ([]models.KeywordMetrics, error) { return nil, nil })
	_, err := New(WithEnrichment(provider, enrich.WithBatchSize(5000)))
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestRunFiles(t *testing.T) {
	ranking, crawl := testutil.Exports(t)
	r, _ := New()
	res, err := r.RunFiles(context.Background(), ranking, crawl, defaultConfig())
	if err != nil {
		t.Fatalf("RunFiles: %v", err)
	}
	if res.Ingest.Ranking.Source != "ranking.csv" || res.Ingest.Crawl.Source != "crawl.csv" {
		t.Errorf("sources = %q, %q", res.Ingest.Ranking.Source, res.Ingest.Crawl.Source)
	}
}
