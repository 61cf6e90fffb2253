// hunews collects Hungarian news from sources across the political
// spectrum and archives a daily bilingual synthesis.
//
// Usage:
//
//	hunews run                 # collect, synthesize and archive today's digest
//	hunews sources check       # fetch every source once and report its status
//	hunews index rebuild       # rebuild index.json from the archive directory
//	hunews archive list        # list archived dates with story counts
//	hunews archive search <q>  # search archived dates and stories
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deusflow/hunews/internal/aggregator"
	"github.com/deusflow/hunews/internal/app"
	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/config"
	"github.com/deusflow/hunews/internal/gemini"
	"github.com/deusflow/hunews/internal/logger"
	"github.com/deusflow/hunews/internal/metrics"
	"github.com/deusflow/hunews/internal/ratelimit"
	"github.com/deusflow/hunews/internal/rss"
	"github.com/deusflow/hunews/internal/scraper"
	"github.com/deusflow/hunews/internal/sources"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "hunews",
		Short:         "Neutral bilingual digest of Hungarian news",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		stop()
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hunews %s\n", version)
		},
	}
}

// loadConfig loads the environment and sets up logging for every command.
func loadConfig(dataDir string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	logger.Init(cfg.Debug, cfg.LogFormat)
	return cfg, nil
}

func runCmd() *cobra.Command {
	var (
		date        string
		only        []string
		dataDir     string
		monitorAddr string
		preview     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect sources, synthesize and archive the daily digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(dataDir)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForRun(); err != nil {
				return err
			}
			if date == "" {
				date = app.Today(cfg.Location())
			}
			budget := ratelimit.NewBudget("gemini", cfg.MaxGeminiRequests, logger.Logger)
			if monitorAddr != "" {
				go startMonitoringServer(monitorAddr, budget)
			}

			doc, err := runPipeline(cmd.Context(), cfg, date, only, budget)
			if cfg.MetricsTextfile != "" {
				if werr := metrics.Global.WriteTextfile(cfg.MetricsTextfile); werr != nil {
					logger.Warn("failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", werr)
				}
			}
			if err != nil {
				return err
			}

			fmt.Print(app.FormatDigest(doc, preview))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "archive date (YYYY-MM-DD), defaults to today in TIMEZONE")
	cmd.Flags().StringSliceVar(&only, "sources", nil, "restrict the run to these source names")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "archive directory (overrides DATA_DIR)")
	cmd.Flags().StringVar(&monitorAddr, "monitor-addr", os.Getenv("MONITORING_ADDR"), "serve /health and /metrics on this address during the run")
	cmd.Flags().IntVar(&preview, "preview", 5, "stories shown in the console preview")
	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config, date string, only []string, budget *ratelimit.Budget) (*archive.Document, error) {
	log, runID := logger.WithRun(date)
	log.Info("starting hunews", "version", version, "run_id", runID)

	reg, err := sources.Load(cfg.SourcesConfigPath)
	if err != nil {
		return nil, err
	}
	descs, err := selectSources(reg, only)
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	engine := gemini.NewEngine(client, gemini.Options{
		AttemptTimeout: cfg.SynthesisTimeout,
		Retries:        cfg.SynthesisRetries,
		RetryDelay:     cfg.RetryDelay,
		Budget:         budget,
		Logger:         log,
	})

	p := &app.Pipeline{
		Sources:     descs,
		Collector:   newCollector(cfg, reg.Settings(), log),
		Synthesizer: engine,
		Writer:      archive.NewWriter(cfg.DataDir, log),
		Metrics:     metrics.Global,
		RunTimeout:  cfg.RunTimeout,
		Location:    cfg.Location(),
		Log:         log,

		RawArticlesPath:    cfg.RawArticlesPath,
		SynthesisErrorPath: cfg.SynthesisErrorPath,
	}
	return p.Run(ctx, date)
}

// newCollector routes feed sources to the RSS fetcher and custom sources to
// the page scraper, both sharing one HTTP client.
func newCollector(cfg *config.Config, settings sources.Settings, log *slog.Logger) *aggregator.Aggregator {
	client := &http.Client{Timeout: cfg.SourceTimeout}

	feeds := rss.NewFetcher(rss.Options{
		Client:          client,
		UserAgent:       cfg.UserAgent,
		MaxArticles:     settings.MaxArticlesPerSource,
		MaxAge:          time.Duration(settings.MaxArticleAgeHours) * time.Hour,
		SummaryMaxRunes: cfg.SummaryMaxRunes,
	})

	opts := scraper.Options{
		Client:          client,
		UserAgent:       cfg.UserAgent,
		MaxArticles:     settings.MaxArticlesPerSource,
		SummaryMaxRunes: cfg.SummaryMaxRunes,
		Logger:          log,
	}
	if cfg.EnrichSummaries {
		opts.Enricher = scraper.NewEnricher(client, cfg.UserAgent, 4, log)
	}

	return aggregator.New(aggregator.Router{
		Feed:   feeds,
		Custom: scraper.NewPageSource(opts),
	}, cfg.SourceTimeout, log)
}

func selectSources(reg *sources.Registry, only []string) ([]sources.Descriptor, error) {
	if len(only) == 0 {
		return reg.All(), nil
	}
	out := make([]sources.Descriptor, 0, len(only))
	for _, name := range only {
		d, ok := reg.Lookup(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, d)
	}
	return out, nil
}

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect the configured sources",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Fetch every source once and report status without calling the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			reg, err := sources.Load(cfg.SourcesConfigPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RunTimeout)
			defer cancel()

			reports, err := app.CheckSources(ctx, newCollector(cfg, reg.Settings(), logger.Logger), reg.All())
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range reports {
				if r.OK {
					fmt.Printf("✅ %-16s %-12s %-7s %2d articles  %s\n", r.Name, r.Category, r.Type, r.Articles, r.Sample)
					continue
				}
				failed++
				fmt.Printf("❌ %-16s %-12s %-7s %s: %v\n", r.Name, r.Category, r.Type, r.Kind, r.Err)
			}
			fmt.Printf("\n%d/%d sources OK\n", len(reports)-failed, len(reports))
			if failed == len(reports) {
				return aggregator.ErrNoSourcesAvailable
			}
			return nil
		},
	})
	return cmd
}

func indexCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the archive index",
	}
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild index.json by scanning the archive directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(dataDir)
			if err != nil {
				return err
			}
			ix, err := archive.NewWriter(cfg.DataDir, logger.Logger).RebuildIndex()
			if err != nil {
				return err
			}
			fmt.Printf("index rebuilt: %d dates\n", ix.TotalFiles)
			return nil
		},
	}
	rebuild.Flags().StringVar(&dataDir, "data-dir", "", "archive directory (overrides DATA_DIR)")
	cmd.AddCommand(rebuild)
	return cmd
}

func startMonitoringServer(addr string, budget *ratelimit.Budget) {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(metrics.Global, budget))
	mux.Handle("/metrics", metrics.Global.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("starting monitoring server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("monitoring server error", "error", err)
	}
}
