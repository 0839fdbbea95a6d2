package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/strikezone/internal/report"
	"github.com/starford/strikezone/internal/watch"
)

// AnalyzeRequest describes a one-shot command-line analysis.
type AnalyzeRequest struct {
	RankingPath string
	CrawlPath   string
	Format      report.Format
	Report      report.Options
	// OutputPath receives the report; empty means stdout.
	OutputPath string
	// Watch re-runs the analysis whenever either export changes.
	Watch bool
}

// Analyze runs the pipeline over two exports and renders the report. The
// run settings come from the configuration passed with WithConfig.
func Analyze(ctx context.Context, req AnalyzeRequest, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if app.logOutput == app.stdout && req.OutputPath == "" {
		app.logOutput = os.Stderr
	}
	logger := app.logger()

	st, err := app.build(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer st.close()

	once := func(ctx context.Context) error {
		res, err := st.svc.AnalyzeFiles(ctx, req.RankingPath, req.CrawlPath, app.config.RunConfig())
		if err != nil {
			return err
		}
		return app.writeReport(req, func(w io.Writer) error {
			return report.Render(w, req.Format, res, req.Report)
		})
	}

	if err := once(ctx); err != nil {
		return err
	}
	if !req.Watch {
		return nil
	}

	logger.Info("Watching exports for changes",
		slog.String("ranking", req.RankingPath),
		slog.String("crawl", req.CrawlPath))
	return watch.Watch(ctx, []string{req.RankingPath, req.CrawlPath}, watch.DefaultDebounce, logger, func(ctx context.Context) {
		if err := once(ctx); err != nil {
			logger.Error("re-run failed", slog.String("error", err.Error()))
		}
	})
}

func (a *application) writeReport(req AnalyzeRequest, render func(io.Writer) error) error {
	if req.OutputPath == "" {
		return render(a.stdout)
	}
	f, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
