package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/hunews/internal/news"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"
)

// Enricher fills empty summaries from the article page itself.
// Failures are logged and leave the summary empty.
type Enricher struct {
	client      *http.Client
	userAgent   string
	concurrency int
	log         *slog.Logger
}

func NewEnricher(client *http.Client, userAgent string, concurrency int, log *slog.Logger) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{client: client, userAgent: userAgent, concurrency: concurrency, log: log}
}

// Enrich updates articles in place. Each goroutine owns one slot.
func (e *Enricher) Enrich(ctx context.Context, articles []news.Article, maxRunes int) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range articles {
		if articles[i].Summary != "" {
			continue
		}
		g.Go(func() error {
			text, err := e.excerpt(ctx, articles[i].Link)
			if err != nil {
				e.log.Debug("summary enrichment failed", "link", articles[i].Link, "error", err)
				return nil
			}
			articles[i].Summary = news.Truncate(news.CleanText(text), maxRunes)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Enricher) excerpt(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.Excerpt)
	if text == "" {
		text = strings.TrimSpace(article.TextContent)
	}
	if text == "" {
		return "", fmt.Errorf("no readable content")
	}
	return text, nil
}
