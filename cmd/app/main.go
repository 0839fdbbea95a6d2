package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/starford/strikezone/internal"
	"github.com/starford/strikezone/internal/aggregate"
	"github.com/starford/strikezone/internal/report"
	pkgconfig "github.com/starford/strikezone/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// applyFlags overrides configured thresholds with explicitly set flags.
func applyFlags(cmd *cli.Command, cfg *internal.Config) error {
	th := &cfg.Analysis.Thresholds
	if cmd.IsSet("min-position") {
		th.MinPosition = int(cmd.Int("min-position"))
	}
	if cmd.IsSet("max-position") {
		th.MaxPosition = int(cmd.Int("max-position"))
	}
	if cmd.IsSet("min-volume") {
		th.MinVolume = int(cmd.Int("min-volume"))
	}
	if cmd.IsSet("keep-paginated") {
		th.ExcludePaginated = !cmd.Bool("keep-paginated")
	}
	if cmd.IsSet("keep-optimized") {
		th.DropOptimized = !cmd.Bool("keep-optimized")
	}
	if cmd.IsSet("include-non-indexable") {
		th.IncludeNonIndexable = cmd.Bool("include-non-indexable")
	}
	if cmd.IsSet("enrich") {
		cfg.Enrichment.Enabled = cmd.Bool("enrich")
	}
	if cmd.IsSet("override-volume") {
		cfg.Enrichment.OverrideVolume = cmd.Bool("override-volume")
	}
	if cmd.IsSet("top") {
		cfg.Analysis.TopKeywords = int(cmd.Int("top"))
	}
	return cfg.Validate()
}

func analyze(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected <ranking-export> <crawl-export>, got %d arguments", cmd.Args().Len())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	formatName := cmd.String("format")
	if formatName == "" {
		formatName = string(report.FormatRowsCSV)
		if cmd.String("output") == "" && stdoutIsTerminal() {
			formatName = string(report.FormatTable)
		}
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}
	view, err := aggregate.ParseView(cmd.String("view"))
	if err != nil {
		return err
	}

	req := internal.AnalyzeRequest{
		RankingPath: cmd.Args().Get(0),
		CrawlPath:   cmd.Args().Get(1),
		Format:      format,
		Report: report.Options{
			View: view,
			Volume: aggregate.VolumeRange{
				Min: int(cmd.Int("min-page-volume")),
				Max: int(cmd.Int("max-page-volume")),
			},
			Top: cfg.Analysis.TopKeywords,
		},
		OutputPath: cmd.String("output"),
		Watch:      cmd.Bool("watch"),
	}
	return internal.Analyze(ctx, req, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:   "strikezone",
		Usage:  "Find keywords ranking in striking distance that a page's title, H1 or copy never mentions",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:      "analyze",
				Usage:     "Analyze a ranking export against a crawl export",
				ArgsUsage: "<ranking-export> <crawl-export>",
				Action:    analyze,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "min-position", Usage: "Lowest position counted as striking distance"},
					&cli.IntFlag{Name: "max-position", Usage: "Highest position counted as striking distance"},
					&cli.IntFlag{Name: "min-volume", Usage: "Drop keywords below this search volume"},
					&cli.BoolFlag{Name: "keep-paginated", Usage: "Keep paginated URLs"},
					&cli.BoolFlag{Name: "keep-optimized", Usage: "Keep keywords already in the title, H1 and copy"},
					&cli.BoolFlag{Name: "include-non-indexable", Usage: "Keep pages the crawl marks non-indexable"},
					&cli.BoolFlag{Name: "enrich", Usage: "Fetch keyword metrics from the configured provider"},
					&cli.BoolFlag{Name: "override-volume", Usage: "Let provider volumes replace export volumes"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "table, rows-csv, pages-csv, ndjson or json (default: table on a terminal, rows-csv otherwise)"},
					&cli.StringFlag{Name: "view", Value: string(aggregate.ViewAll), Usage: "all, gaps or unoptimized"},
					&cli.IntFlag{Name: "top", Usage: "Keyword groups per page in pages-csv and table output"},
					&cli.IntFlag{Name: "min-page-volume", Usage: "Hide pages below this striking-distance volume"},
					&cli.IntFlag{Name: "max-page-volume", Usage: "Hide pages above this striking-distance volume (0 = no limit)"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the report to a file instead of stdout"},
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Re-run whenever either export changes"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the analysis tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Run(ctx, os.Args)
	stop()
	if err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
