package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/sources"
	"github.com/mmcdole/gofeed"
)

// ErrorKind classifies why a source produced no articles.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindParse   ErrorKind = "parse"
	KindEmpty   ErrorKind = "empty"
)

// FetchError is a recoverable per-source failure.
type FetchError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var ErrEmptyFeed = errors.New("feed has no usable entries")

// Options configures a Fetcher. Zero values fall back to the defaults of the source file.
type Options struct {
	Client          *http.Client
	UserAgent       string
	MaxArticles     int
	MaxAge          time.Duration
	SummaryMaxRunes int
}

// Fetcher downloads and normalizes syndication feeds (RSS, Atom, JSON Feed).
type Fetcher struct {
	client          *http.Client
	userAgent       string
	maxArticles     int
	maxAge          time.Duration
	summaryMaxRunes int
	now             func() time.Time
}

func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		client:          opts.Client,
		userAgent:       opts.UserAgent,
		maxArticles:     opts.MaxArticles,
		maxAge:          opts.MaxAge,
		summaryMaxRunes: opts.SummaryMaxRunes,
		now:             time.Now,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}
	if f.maxArticles <= 0 {
		f.maxArticles = 10
	}
	if f.maxAge <= 0 {
		f.maxAge = 24 * time.Hour
	}
	if f.summaryMaxRunes <= 0 {
		f.summaryMaxRunes = 500
	}
	return f
}

// Fetch retrieves the feed of d and returns its normalized articles.
// The caller bounds the call through ctx.
func (f *Fetcher) Fetch(ctx context.Context, d sources.Descriptor) ([]news.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.FeedURL, nil)
	if err != nil {
		return nil, &FetchError{Source: d.Name, Kind: KindNetwork, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: d.Name, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Source: d.Name, Kind: KindNetwork, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	// gofeed parsers keep state, one per call
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &FetchError{Source: d.Name, Kind: KindNetwork, Err: ctx.Err()}
		}
		return nil, &FetchError{Source: d.Name, Kind: KindParse, Err: err}
	}

	articles := f.convert(feed, d)
	if len(articles) == 0 {
		return nil, &FetchError{Source: d.Name, Kind: KindEmpty, Err: ErrEmptyFeed}
	}
	return articles, nil
}

func (f *Fetcher) convert(feed *gofeed.Feed, d sources.Descriptor) []news.Article {
	items := feed.Items
	if len(items) > f.maxArticles {
		items = items[:f.maxArticles]
	}

	cutoff := f.now().Add(-f.maxAge)
	articles := make([]news.Article, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		title := news.CleanText(StripHTML(item.Title))
		link := strings.TrimSpace(item.Link)
		if link == "" && strings.HasPrefix(item.GUID, "http") {
			link = strings.TrimSpace(item.GUID)
		}
		if title == "" || link == "" {
			continue
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil && published.Before(cutoff) {
			continue
		}

		summary := item.Description
		if strings.TrimSpace(summary) == "" {
			summary = item.Content
		}
		summary = news.Truncate(news.CleanText(StripHTML(summary)), f.summaryMaxRunes)

		articles = append(articles, news.Article{
			Title:     title,
			Link:      link,
			Published: published,
			Summary:   summary,
			Source:    d.Name,
			Category:  d.Category,
		})
	}

	return news.DedupeByURL(articles)
}

// StripHTML returns the text content of an HTML fragment.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
