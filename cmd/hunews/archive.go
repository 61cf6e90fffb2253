package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/hunews/internal/config"
	"github.com/deusflow/hunews/internal/discovery"
	"github.com/deusflow/hunews/internal/logger"
	"github.com/spf13/cobra"
)

func archiveCmd() *cobra.Command {
	var (
		dataDir string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse the published archive",
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "local archive directory (overrides DATA_DIR)")
	cmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "read a published archive over HTTP (overrides ARCHIVE_BASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived dates with their story counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, _, err := newReader(dataDir, baseURL)
			if err != nil {
				return err
			}
			defer reader.Close()

			listing, err := reader.Discover(cmd.Context())
			if err != nil {
				return err
			}
			if listing.Strategy == discovery.Empty {
				fmt.Println("No archived digests yet.")
				return nil
			}
			reader.Backfill(cmd.Context(), listing, nil)

			fmt.Printf("%d dates (%s)\n\n", len(listing.Dates), listing.Strategy)
			for _, date := range listing.Dates {
				e, _ := listing.Entry(date)
				fmt.Printf("%s  %-22s %s\n", e.Date, discovery.DisplayHU(e.Date), countLabel(e))
			}
			return nil
		},
	})

	var interactive bool
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search archived dates and story text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, cfg, err := newReader(dataDir, baseURL)
			if err != nil {
				return err
			}
			defer reader.Close()

			listing, err := reader.Discover(cmd.Context())
			if err != nil {
				return err
			}

			if interactive {
				return searchInteractive(cmd.Context(), os.Stdin, os.Stdout, reader, listing, cfg.SearchDebounce)
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			dates, err := reader.Search(cmd.Context(), listing, query)
			if err != nil {
				return err
			}
			printMatches(os.Stdout, query, dates)
			return nil
		},
	}
	search.Flags().BoolVarP(&interactive, "interactive", "i", false, "read queries from stdin, one per line")
	cmd.AddCommand(search)

	return cmd
}

func newReader(dataDir, baseURL string) (*discovery.Reader, *config.Config, error) {
	cfg, err := loadConfig(dataDir)
	if err != nil {
		return nil, nil, err
	}
	if baseURL == "" {
		baseURL = cfg.ArchiveBaseURL
	}

	store, err := newStore(cfg, baseURL)
	if err != nil {
		return nil, nil, err
	}
	reader := discovery.NewReader(store, discovery.Options{
		LookbackDays:  cfg.ProbeLookbackDays,
		BatchSize:     cfg.ProbeBatchSize,
		MaxCandidates: cfg.SearchMaxCandidates,
		Location:      cfg.Location(),
		Logger:        logger.Logger,
	})
	return reader, cfg, nil
}

func newStore(cfg *config.Config, baseURL string) (discovery.Store, error) {
	if baseURL == "" {
		return discovery.NewDirStore(cfg.DataDir), nil
	}
	return discovery.NewHTTPStore(baseURL, &http.Client{Timeout: cfg.SourceTimeout}, cfg.UserAgent)
}

// searchInteractive debounces queries read line by line the way a search
// box would and prints only the result of the latest query. The query still
// waiting when input ends is run before returning.
func searchInteractive(ctx context.Context, in io.Reader, w io.Writer, reader *discovery.Reader, listing *discovery.Listing, delay time.Duration) error {
	var out sync.Mutex
	deb := discovery.NewDebouncer(delay,
		func(ctx context.Context, q string) ([]string, error) {
			return reader.Search(ctx, listing, q)
		},
		func(q string, dates []string, err error) {
			out.Lock()
			defer out.Unlock()
			if err != nil {
				fmt.Fprintf(w, "search %q failed: %v\n", q, err)
				return
			}
			printMatches(w, q, dates)
		},
	)
	defer deb.Stop()

	fmt.Fprintln(w, "Type a query and press enter. Ctrl-D quits.")
	lines := bufio.NewScanner(in)
	for lines.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		deb.Input(strings.TrimSpace(lines.Text()))
	}
	if err := lines.Err(); err != nil {
		return err
	}
	deb.Flush()
	return nil
}

func printMatches(w io.Writer, query string, dates []string) {
	if len(dates) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return
	}
	fmt.Fprintf(w, "%d results for %q\n", len(dates), query)
	for _, d := range dates {
		fmt.Fprintf(w, "  %s  %s / %s\n", d, discovery.DisplayHU(d), discovery.DisplayEN(d))
	}
}

func countLabel(e discovery.Entry) string {
	switch e.State {
	case discovery.Loaded:
		return fmt.Sprintf("%d stories", e.Stories)
	case discovery.Failed:
		return fmt.Sprintf("count unavailable (%v)", e.Err)
	default:
		return string(e.State)
	}
}
