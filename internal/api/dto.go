package api

import (
	"github.com/starford/strikezone/internal/models"
	"github.com/starford/strikezone/internal/pipeline"
	"github.com/starford/strikezone/internal/schema"
)

// AnalysisResponse is the JSON body of a finished analysis.
type AnalysisResponse = pipeline.Result

// RunSummary is the persisted outline of one run.
type RunSummary = models.RunSummary

// AnalysisListResponse wraps paginated run listings.
type AnalysisListResponse struct {
	Analyses []RunSummary `json:"analyses" validate:"required"`
	Total    int          `json:"total" example:"42" validate:"required"`
}

// AliasesResponse lists accepted headers per field, in priority order.
type AliasesResponse struct {
	Aliases         map[schema.Field][]string `json:"aliases" validate:"required"`
	RankingRequired []schema.Field            `json:"ranking_required" validate:"required"`
	CrawlRequired   []schema.Field            `json:"crawl_required" validate:"required"`
}
