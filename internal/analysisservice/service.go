// Package analysisservice coordinates analysis runs and run history for the
// API, MCP and CLI surfaces.
package analysisservice

import (
	"context"

	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/pipeline"
	"github.com/starford/strikezone/internal/table"
)

// RunStore reads persisted run summaries.
type RunStore interface {
	ListRuns(ctx context.Context, limit, offset int) ([]models.RunSummary, int, error)
	GetRun(ctx context.Context, id string) (*models.RunSummary, error)
}

// Service runs analyses with configured defaults.
type Service struct {
	runner   *pipeline.Runner
	runs     RunStore
	defaults pipeline.Config
}

// NewService creates a new analysis service. runs may be nil when no cache
// database is configured.
func NewService(runner *pipeline.Runner, runs RunStore, defaults pipeline.Config) *Service {
	return &Service{runner: runner, runs: runs, defaults: defaults}
}

// Defaults returns the configured run settings that requests start from.
func (s *Service) Defaults() pipeline.Config { return s.defaults }

// EnrichmentAvailable reports whether runs may ask for enrichment.
func (s *Service) EnrichmentAvailable() bool { return s.runner.EnrichmentAvailable() }

// Analyze runs one analysis over decoded exports.
func (s *Service) Analyze(ctx context.Context, ranking, crawl *table.Table, cfg pipeline.Config) (*pipeline.Result, error) {
	if err := s.check(cfg); err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, ranking, crawl, cfg)
}

// AnalyzeFiles runs one analysis over exports on disk.
func (s *Service) AnalyzeFiles(ctx context.Context, rankingPath, crawlPath string, cfg pipeline.Config) (*pipeline.Result, error) {
	if err := s.check(cfg); err != nil {
		return nil, err
	}
	return s.runner.RunFiles(ctx, rankingPath, crawlPath, cfg)
}

func (s *Service) check(cfg pipeline.Config) error {
	if cfg.Enrich && !s.runner.EnrichmentAvailable() {
		return &apperr.ConfigurationError{Field: "enrich", Reason: "no enrichment provider is configured"}
	}
	return nil
}

// ListRuns returns past runs newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]models.RunSummary, int, error) {
	if s.runs == nil {
		return []models.RunSummary{}, 0, nil
	}
	items, total, err := s.runs.ListRuns(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []models.RunSummary{}
	}
	return items, total, nil
}

// GetRun returns one past run.
func (s *Service) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	if s.runs == nil {
		return nil, apperr.ErrNotFound
	}
	return s.runs.GetRun(ctx, id)
}
