// Package aggregator drives every configured source concurrently and
// collects the normalized articles of one run.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/rss"
	"github.com/deusflow/hunews/internal/scraper"
	"github.com/deusflow/hunews/internal/sources"
)

var (
	// ErrNoSourcesAvailable means not a single source returned data.
	ErrNoSourcesAvailable = errors.New("no sources available")
	ErrNoArticles         = errors.New("source returned no articles")
	ErrSourceTimeout      = errors.New("source timed out")
)

// Fetcher produces normalized articles for one source.
type Fetcher interface {
	Fetch(ctx context.Context, d sources.Descriptor) ([]news.Article, error)
}

type FetcherFunc func(ctx context.Context, d sources.Descriptor) ([]news.Article, error)

func (f FetcherFunc) Fetch(ctx context.Context, d sources.Descriptor) ([]news.Article, error) {
	return f(ctx, d)
}

// Router dispatches on the descriptor's fetch strategy.
type Router struct {
	Feed   Fetcher
	Custom Fetcher
}

func (r Router) Fetch(ctx context.Context, d sources.Descriptor) ([]news.Article, error) {
	switch d.Type {
	case sources.TypeFeed:
		if r.Feed != nil {
			return r.Feed.Fetch(ctx, d)
		}
	case sources.TypeCustom:
		if r.Custom != nil {
			return r.Custom.Fetch(ctx, d)
		}
	}
	return nil, fmt.Errorf("no fetcher for source type %q", d.Type)
}

// SourceFailure records why one source was excluded from the run.
type SourceFailure struct {
	Source   string
	Category news.Category
	Kind     string
	Err      error
}

type Result struct {
	Articles  []news.Article
	Failures  []SourceFailure
	Succeeded []string
}

type Aggregator struct {
	fetcher Fetcher
	timeout time.Duration
	log     *slog.Logger
}

func New(fetcher Fetcher, perSourceTimeout time.Duration, log *slog.Logger) *Aggregator {
	if perSourceTimeout <= 0 {
		perSourceTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{fetcher: fetcher, timeout: perSourceTimeout, log: log}
}

type outcome struct {
	articles []news.Article
	err      error
}

// Collect fetches all descriptors concurrently and waits for every fetch to
// finish or time out. Failed sources are recorded and skipped; articles come
// back in descriptor order. If ctx ends first its error is returned.
func (a *Aggregator) Collect(ctx context.Context, descs []sources.Descriptor) (*Result, error) {
	if len(descs) == 0 {
		return &Result{}, ErrNoSourcesAvailable
	}

	outcomes := make([]outcome, len(descs))
	var wg sync.WaitGroup

	for i, d := range descs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = a.fetchOne(ctx, d)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect sources: %w", err)
	}

	res := &Result{}
	for i, d := range descs {
		o := outcomes[i]
		if o.err != nil {
			f := SourceFailure{Source: d.Name, Category: d.Category, Kind: kindOf(o.err), Err: o.err}
			res.Failures = append(res.Failures, f)
			a.log.Warn("source failed", "source", d.Name, "category", d.Category, "kind", f.Kind, "error", o.err)
			continue
		}

		res.Articles = append(res.Articles, o.articles...)
		res.Succeeded = append(res.Succeeded, d.Name)
		a.log.Info("source collected", "source", d.Name, "category", d.Category, "articles", len(o.articles))
	}

	if len(res.Succeeded) == 0 {
		return res, ErrNoSourcesAvailable
	}
	return res, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, d sources.Descriptor) outcome {
	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	articles, err := a.fetcher.Fetch(fctx, d)
	if err == nil {
		articles = attribute(articles, d)
		if len(articles) == 0 {
			err = ErrNoArticles
		}
	}
	if err != nil && errors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %w", ErrSourceTimeout, a.timeout, err)
	}
	if err != nil {
		return outcome{err: err}
	}
	return outcome{articles: articles}
}

// attribute tags articles with their source and category and drops the
// ones that still do not form a valid record.
func attribute(in []news.Article, d sources.Descriptor) []news.Article {
	out := in[:0:0]
	for _, a := range in {
		a.Source = d.Name
		a.Category = d.Category
		if a.Valid() {
			out = append(out, a)
		}
	}
	return out
}

func kindOf(err error) string {
	var fe *rss.FetchError
	var ee *scraper.ExtractionError
	switch {
	case errors.Is(err, ErrSourceTimeout):
		return "timeout"
	case errors.As(err, &fe):
		return string(fe.Kind)
	case errors.As(err, &ee):
		return "extraction"
	case errors.Is(err, ErrNoArticles):
		return "empty"
	default:
		return "unknown"
	}
}
