package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/analysisservice"
	"github.com/starford/strikezone/internal/apperr"
	"github.com/starford/strikezone/internal/pipeline"
	"github.com/starford/strikezone/internal/report"
	"github.com/starford/strikezone/internal/schema"
	"github.com/starford/strikezone/internal/table"
)

const (
	maxUploadBytes = 512 << 20
	maxMemoryBytes = 32 << 20
)

// Handler holds API route handlers.
type Handler struct {
	svc *analysisservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *analysisservice.Service) *Handler {
	return &Handler{svc: svc}
}

// CreateAnalysis handles POST /api/analyses.
//
//	@Summary		Run a striking-distance analysis over two uploaded exports
//	@Tags			analyses
//	@Accept			multipart/form-data
//	@Produce		json,text/csv,application/x-ndjson
//	@Param			ranking					formData	file	true	"Ranking export (Ahrefs, SEMrush, Search Console)"
//	@Param			crawl					formData	file	true	"Crawl export (Screaming Frog)"
//	@Param			min_position			formData	int		false	"Lowest position kept"
//	@Param			max_position			formData	int		false	"Highest position kept"
//	@Param			min_volume				formData	int		false	"Minimum search volume"
//	@Param			exclude_paginated		formData	bool	false	"Drop paginated URLs"
//	@Param			drop_optimized			formData	bool	false	"Drop keywords present in title, H1 and copy"
//	@Param			include_non_indexable	formData	bool	false	"Keep non-indexable pages"
//	@Param			enrich					formData	bool	false	"Fetch missing keyword metrics"
//	@Param			override_volume			formData	bool	false	"Replace export volume with provider volume"
//	@Param			format					query		string	false	"Output format"	Enums(json, rows.csv, pages.csv, ndjson)
//	@Param			view					query		string	false	"Row selection"	Enums(all, gaps, unoptimized)
//	@Param			top						query		int		false	"Keyword groups in pages.csv"
//	@Success		200						{object}	AnalysisResponse
//	@Failure		400						{object}	errResponse
//	@Failure		422						{object}	errResponse
//	@Security		BearerAuth
//	@Router			/analyses [post]
func (h *Handler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	format, opts, err := outputOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	ranking, err := formTable(r, "ranking")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	crawl, err := formTable(r, "crawl")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	cfg, err := runConfig(r, h.svc.Defaults())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := h.svc.Analyze(r.Context(), ranking, crawl, cfg)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}

	if format == report.FormatJSON {
		writeJSON(w, http.StatusOK, report.Narrow(res, aggregate.Select(res.Pages, opts.View, opts.Volume)))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if name := downloadName(res.RunID, format); name != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if err := report.Render(w, format, res, opts); err != nil {
		slog.Error("render analysis failed", slog.String("run_id", res.RunID), slog.String("error", err.Error()))
	}
}

// ListAnalyses handles GET /api/analyses.
//
//	@Summary		List past analysis runs
//	@Tags			analyses
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	AnalysisListResponse
//	@Security		BearerAuth
//	@Router			/analyses [get]
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListRuns(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list analyses failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, AnalysisListResponse{Analyses: items, Total: total})
}

// GetAnalysis handles GET /api/analyses/{id}.
//
//	@Summary		Get the summary of a past analysis run
//	@Tags			analyses
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	RunSummary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/analyses/{id} [get]
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.svc.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get analysis failed", slog.String("run_id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Aliases handles GET /api/aliases.
//
//	@Summary		List the accepted column headers per field
//	@Tags			schema
//	@Produce		json
//	@Success		200	{object}	AliasesResponse
//	@Security		BearerAuth
//	@Router			/aliases [get]
func (h *Handler) Aliases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, AliasesResponse{
		Aliases:         schema.Aliases,
		RankingRequired: schema.RankingRequired,
		CrawlRequired:   schema.CrawlRequired,
	})
}

func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrSchema), errors.Is(err, apperr.ErrDuplicateURL):
		writeJSON(w, http.StatusUnprocessableEntity, analysisErrorBody(err))
	case errors.Is(err, apperr.ErrConfiguration):
		writeJSON(w, http.StatusBadRequest, analysisErrorBody(err))
	default:
		slog.Error("analysis failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func formTable(r *http.Request, field string) (*table.Table, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing '%s' file in multipart form", field)
	}
	defer file.Close()
	t, err := table.Read(file, header.Filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

// runConfig applies form overrides to the configured defaults.
func runConfig(r *http.Request, cfg pipeline.Config) (pipeline.Config, error) {
	ints := []struct {
		name string
		dst  *int
	}{
		{"min_position", &cfg.Match.MinPosition},
		{"max_position", &cfg.Match.MaxPosition},
		{"min_volume", &cfg.Match.MinVolume},
	}
	for _, f := range ints {
		v := r.FormValue(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s must be an integer", f.name)
		}
		*f.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"exclude_paginated", &cfg.Match.ExcludePaginated},
		{"drop_optimized", &cfg.Match.DropOptimized},
		{"include_non_indexable", &cfg.Match.IncludeNonIndexable},
		{"enrich", &cfg.Enrich},
		{"override_volume", &cfg.OverrideVolume},
	}
	for _, f := range bools {
		v := r.FormValue(f.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s must be a boolean", f.name)
		}
		*f.dst = b
	}
	return cfg, nil
}

func outputOptions(r *http.Request) (report.Format, report.Options, error) {
	q := r.URL.Query()
	format := report.FormatJSON
	if v := q.Get("format"); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil || f == report.FormatTable {
			return "", report.Options{}, fmt.Errorf("unsupported format %q", v)
		}
		format = f
	}
	view, err := aggregate.ParseView(q.Get("view"))
	if err != nil {
		return "", report.Options{}, fmt.Errorf("unsupported view %q", q.Get("view"))
	}
	opts := report.Options{View: view}
	for name, dst := range map[string]*int{
		"top":             &opts.Top,
		"min_page_volume": &opts.Volume.Min,
		"max_page_volume": &opts.Volume.Max,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return "", report.Options{}, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return format, opts, nil
}

func downloadName(runID string, f report.Format) string {
	switch f {
	case report.FormatRowsCSV:
		return "strikezone-" + runID + "-rows.csv"
	case report.FormatPagesCSV:
		return "strikezone-" + runID + "-pages.csv"
	case report.FormatNDJSON:
		return "strikezone-" + runID + ".ndjson"
	default:
		return ""
	}
}
