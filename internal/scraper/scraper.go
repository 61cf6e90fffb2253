// Package scraper extracts article listings from outlets that publish no feed.
// Every site owns its selectors behind the Extractor interface; PageSource
// downloads the front page and runs the configured extractor over it.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/rss"
	"github.com/deusflow/hunews/internal/sources"
)

// Extractor turns a parsed listing page into articles. Implementations only
// fill Title, Link, Summary and Published; attribution is done by PageSource.
type Extractor interface {
	Name() string
	Extract(doc *goquery.Document, base *url.URL, limit int) ([]news.Article, error)
}

var ErrNoArticles = errors.New("no articles matched the page markup")

// ExtractionError is a recoverable per-source failure of a custom extractor,
// usually because the site's markup changed.
type ExtractionError struct {
	Source    string
	Extractor string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Source, e.Extractor, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

var extractors = map[string]Extractor{}

func register(e Extractor) { extractors[e.Name()] = e }

func init() {
	register(origoExtractor{})
	register(extractor888{})
	register(genericExtractor{})
}

// Lookup returns the extractor registered under id.
func Lookup(id string) (Extractor, bool) {
	e, ok := extractors[id]
	return e, ok
}

type Options struct {
	Client          *http.Client
	UserAgent       string
	MaxArticles     int
	SummaryMaxRunes int
	Enricher        *Enricher // optional
	Logger          *slog.Logger
}

// PageSource fetches a descriptor's front page and runs its extractor.
type PageSource struct {
	client          *http.Client
	userAgent       string
	maxArticles     int
	summaryMaxRunes int
	enricher        *Enricher
	log             *slog.Logger
}

func NewPageSource(opts Options) *PageSource {
	p := &PageSource{
		client:          opts.Client,
		userAgent:       opts.UserAgent,
		maxArticles:     opts.MaxArticles,
		summaryMaxRunes: opts.SummaryMaxRunes,
		enricher:        opts.Enricher,
		log:             opts.Logger,
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 30 * time.Second}
	}
	if p.maxArticles <= 0 {
		p.maxArticles = 10
	}
	if p.summaryMaxRunes <= 0 {
		p.summaryMaxRunes = 500
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

func (p *PageSource) Fetch(ctx context.Context, d sources.Descriptor) ([]news.Article, error) {
	ex, ok := Lookup(d.Extractor)
	if !ok {
		return nil, &ExtractionError{Source: d.Name, Extractor: d.Extractor, Err: fmt.Errorf("unknown extractor")}
	}

	doc, base, err := p.load(ctx, d)
	if err != nil {
		return nil, err
	}

	articles, err := ex.Extract(doc, base, p.maxArticles)
	if err == nil && len(articles) == 0 {
		err = ErrNoArticles
	}
	if err != nil {
		return nil, &ExtractionError{Source: d.Name, Extractor: ex.Name(), Err: err}
	}

	for i := range articles {
		articles[i].Source = d.Name
		articles[i].Category = d.Category
		articles[i].Summary = news.Truncate(articles[i].Summary, p.summaryMaxRunes)
	}

	if p.enricher != nil {
		p.enricher.Enrich(ctx, articles, p.summaryMaxRunes)
	}

	p.log.Debug("extracted articles", "source", d.Name, "extractor", ex.Name(), "count", len(articles))
	return articles, nil
}

func (p *PageSource) load(ctx context.Context, d sources.Descriptor) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, nil, &rss.FetchError{Source: d.Name, Kind: rss.KindNetwork, Err: err}
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, &rss.FetchError{Source: d.Name, Kind: rss.KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &rss.FetchError{Source: d.Name, Kind: rss.KindNetwork, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, &rss.FetchError{Source: d.Name, Kind: rss.KindParse, Err: err}
	}

	// Links are resolved against the final URL after redirects
	base := resp.Request.URL
	return doc, base, nil
}

// element describes how to read one listing entry.
type element struct {
	titleSel    string
	summarySel  string
	minTitleLen int
}

// read extracts one article from a listing element; ok is false when the
// element has no usable title or link.
func (e element) read(s *goquery.Selection, base *url.URL) (news.Article, bool) {
	title := news.CleanText(s.Find(e.titleSel).First().Text())
	if title == "" && goquery.NodeName(s) == "a" {
		title = news.CleanText(s.Text())
	}
	if title == "" || len([]rune(title)) < e.minTitleLen {
		return news.Article{}, false
	}

	var href string
	if goquery.NodeName(s) == "a" {
		href, _ = s.Attr("href")
	} else {
		href, _ = s.Find("a[href]").First().Attr("href")
	}
	link := news.ResolveURL(base, href)
	if link == "" {
		return news.Article{}, false
	}

	var summary string
	if e.summarySel != "" {
		summary = news.CleanText(s.Find(e.summarySel).First().Text())
	}

	return news.Article{
		Title:     title,
		Link:      link,
		Summary:   summary,
		Published: publishedAt(s),
	}, true
}

// publishedAt reads a machine-readable timestamp if the markup carries one.
func publishedAt(s *goquery.Selection) *time.Time {
	raw, ok := s.Find("time[datetime]").First().Attr("datetime")
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return &t
		}
	}
	return nil
}

// collect walks the selectors in order and stops at the first one that yields
// articles. Results are deduplicated by link and capped at limit.
func collect(doc *goquery.Document, base *url.URL, limit int, selectors []string, e element) []news.Article {
	for _, selector := range selectors {
		var articles []news.Article
		seen := map[string]struct{}{}

		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			a, ok := e.read(s, base)
			if !ok {
				return true
			}
			key := news.CanonicalURL(a.Link)
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			articles = append(articles, a)
			return len(articles) < limit
		})

		if len(articles) > 0 {
			return articles
		}
	}
	return nil
}
