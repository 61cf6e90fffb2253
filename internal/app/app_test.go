package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/hunews/internal/aggregator"
	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/gemini"
	"github.com/deusflow/hunews/internal/logger"
	"github.com/deusflow/hunews/internal/metrics"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/rss"
	"github.com/deusflow/hunews/internal/sources"
	"google.golang.org/api/googleapi"
)

const date = "2025-10-16"

func nineSources() []sources.Descriptor {
	names := map[news.Category][]string{
		news.RightWing:   {"Magyar Nemzet", "Origo", "888"},
		news.LeftWing:    {"Népszava", "24.hu", "HVG"},
		news.Independent: {"Telex", "444", "Index"},
	}
	var out []sources.Descriptor
	for _, c := range news.Categories {
		for _, n := range names[c] {
			out = append(out, sources.Descriptor{Name: n, Type: sources.TypeFeed, Category: c})
		}
	}
	return out
}

// failingFetcher fails the named sources and returns two articles for the rest.
func failingFetcher(failing ...string) aggregator.Fetcher {
	set := map[string]bool{}
	for _, n := range failing {
		set[n] = true
	}
	return aggregator.FetcherFunc(func(ctx context.Context, d sources.Descriptor) ([]news.Article, error) {
		if set[d.Name] {
			return nil, &rss.FetchError{Source: d.Name, Kind: rss.KindNetwork, Err: errors.New("unreachable")}
		}
		return []news.Article{
			{Title: d.Name + " vezető hír", Link: "https://example.hu/" + d.Name},
		}, nil
	})
}

type fakeGenerator struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int, prompt string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.fn(ctx, int(f.calls.Add(1)), prompt)
}

func (f *fakeGenerator) Model() string { return "gemini-2.5-flash" }

const modelAnswer = `{
  "stories": [{
    "title_hu": "Energiaárak", "title_en": "Energy prices",
    "summary_hu": "Új árak.", "summary_en": "New prices.",
    "sources_analyzed": ["Telex", "HVG", "Magyar Nemzet"],
    "perspective_comparison_hu": "Eltérő hangsúlyok.", "perspective_comparison_en": "Different emphasis.",
    "key_facts": ["Az árak nőnek"]
  }],
  "methodology_note_hu": "Módszertan.", "methodology_note_en": "Methodology."
}`

func answer(ctx context.Context, call int, prompt string) (string, error) { return modelAnswer, nil }

type fixture struct {
	pipeline *Pipeline
	gen      *fakeGenerator
	writer   *archive.Writer
	dir      string
}

func newFixture(t *testing.T, fetcher aggregator.Fetcher, gen func(ctx context.Context, call int, prompt string) (string, error)) *fixture {
	t.Helper()
	dir := t.TempDir()
	g := &fakeGenerator{fn: gen}
	w := archive.NewWriter(dir, logger.Discard())
	p := &Pipeline{
		Sources:   nineSources(),
		Collector: aggregator.New(fetcher, time.Second, logger.Discard()),
		Synthesizer: gemini.NewEngine(g, gemini.Options{
			AttemptTimeout: 50 * time.Millisecond,
			Retries:        1,
			RetryDelay:     time.Millisecond,
			Logger:         logger.Discard(),
		}),
		Writer:     w,
		Metrics:    metrics.New(),
		RunTimeout: 5 * time.Second,
		Log:        logger.Discard(),
	}
	return &fixture{pipeline: p, gen: g, writer: w, dir: dir}
}

func (f *fixture) assertArchiveEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no archive files, found %d", len(entries))
	}
}

func TestRun_TwoSourcesFail(t *testing.T) {
	f := newFixture(t, failingFetcher("Origo", "444"), func(ctx context.Context, call int, prompt string) (string, error) {
		if strings.Contains(prompt, "Source: Origo") || strings.Contains(prompt, "Source: 444") {
			t.Error("failed source reached the prompt")
		}
		return modelAnswer, nil
	})

	doc, err := f.pipeline.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Metadata.SourcesScraped != 7 {
		t.Errorf("expected sources_scraped 7, got %d", doc.Metadata.SourcesScraped)
	}
	if doc.Metadata.AIModel != "gemini-2.5-flash" || doc.Metadata.GenerationTime == "" {
		t.Errorf("metadata incomplete: %+v", doc.Metadata)
	}

	succeeded := map[string]bool{}
	for _, d := range nineSources() {
		if d.Name != "Origo" && d.Name != "444" {
			succeeded[d.Name] = true
		}
	}
	if len(doc.Stories) == 0 {
		t.Fatal("expected at least one story")
	}
	for _, s := range doc.Stories {
		for _, name := range s.SourcesAnalyzed {
			if !succeeded[name] {
				t.Errorf("story cites non-succeeding source %q", name)
			}
		}
	}

	stored, err := f.writer.Read(date)
	if err != nil || stored.Metadata.SourcesScraped != 7 {
		t.Errorf("document not persisted: %v", err)
	}
}

func TestRun_SynthesisTimesOutOnceThenSucceeds(t *testing.T) {
	f := newFixture(t, failingFetcher(), func(ctx context.Context, call int, prompt string) (string, error) {
		if call == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return modelAnswer, nil
	})

	if _, err := f.pipeline.Run(context.Background(), date); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.gen.calls.Load() != 2 {
		t.Errorf("expected 2 model calls, got %d", f.gen.calls.Load())
	}

	ix, err := f.writer.ReadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if len(ix.AvailableDates) != 1 || ix.AvailableDates[0] != date {
		t.Errorf("expected the date exactly once, got %v", ix.AvailableDates)
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 2 {
		t.Errorf("expected one document and the index, found %d files", len(entries))
	}
}

func TestRun_SynthesisFailsTwice(t *testing.T) {
	f := newFixture(t, failingFetcher(), func(ctx context.Context, call int, prompt string) (string, error) {
		return "", &googleapi.Error{Code: http.StatusServiceUnavailable}
	})

	_, err := f.pipeline.Run(context.Background(), date)
	var se *gemini.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
	if f.gen.calls.Load() != 2 {
		t.Errorf("expected exactly one retry, got %d calls", f.gen.calls.Load())
	}
	f.assertArchiveEmpty(t)
}

func TestRun_NoSourcesAvailable(t *testing.T) {
	var all []string
	for _, d := range nineSources() {
		all = append(all, d.Name)
	}
	f := newFixture(t, failingFetcher(all...), answer)

	_, err := f.pipeline.Run(context.Background(), date)
	if !errors.Is(err, aggregator.ErrNoSourcesAvailable) {
		t.Fatalf("expected ErrNoSourcesAvailable, got %v", err)
	}
	if f.gen.calls.Load() != 0 {
		t.Error("synthesis must not run without sources")
	}
	f.assertArchiveEmpty(t)
}

func TestRun_DeadlineExceeded(t *testing.T) {
	f := newFixture(t, failingFetcher(), func(ctx context.Context, call int, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	f.pipeline.RunTimeout = 30 * time.Millisecond
	f.pipeline.Synthesizer = gemini.NewEngine(f.gen, gemini.Options{AttemptTimeout: time.Minute, Retries: 1, Logger: logger.Discard()})

	_, err := f.pipeline.Run(context.Background(), date)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
	f.assertArchiveEmpty(t)
	if f.pipeline.Metrics.GetStats()["is_healthy"] != false {
		t.Error("failed run should mark metrics unhealthy")
	}
}

func TestRun_InvalidDate(t *testing.T) {
	f := newFixture(t, failingFetcher(), answer)
	if _, err := f.pipeline.Run(context.Background(), "16/10/2025"); err == nil {
		t.Fatal("expected error for invalid date")
	}
	f.assertArchiveEmpty(t)
}

func TestRun_SavesRawArticles(t *testing.T) {
	f := newFixture(t, failingFetcher("Origo", "444"), answer)
	f.pipeline.RawArticlesPath = filepath.Join(t.TempDir(), "debug", "raw_articles.json")

	if _, err := f.pipeline.Run(context.Background(), date); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(f.pipeline.RawArticlesPath)
	if err != nil {
		t.Fatal(err)
	}
	var snap RawSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TotalArticles != 7 || len(snap.Articles) != 7 || len(snap.Succeeded) != 7 {
		t.Errorf("unexpected snapshot totals: %d articles, %d sources", snap.TotalArticles, len(snap.Succeeded))
	}
	if len(snap.ByCategory[news.RightWing]) != 2 || len(snap.ByCategory[news.Independent]) != 2 {
		t.Errorf("unexpected grouping: %v", snap.ByCategory)
	}
	if snap.Failed["Origo"] != "network" || snap.Failed["444"] != "network" {
		t.Errorf("failures not recorded: %v", snap.Failed)
	}
}

func TestRun_SavesRejectedModelAnswer(t *testing.T) {
	const bad = `{"stories": [{"title_hu": "csak magyarul"}]}`
	f := newFixture(t, failingFetcher(), func(ctx context.Context, call int, prompt string) (string, error) {
		return bad, nil
	})
	f.pipeline.SynthesisErrorPath = filepath.Join(t.TempDir(), "gemini_error_response.txt")

	_, err := f.pipeline.Run(context.Background(), date)
	var se *gemini.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}

	data, err := os.ReadFile(f.pipeline.SynthesisErrorPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != bad {
		t.Errorf("saved answer differs: %q", data)
	}
	f.assertArchiveEmpty(t)
}

func TestRun_DebugFilesNeverShadowArchive(t *testing.T) {
	f := newFixture(t, failingFetcher(), func(ctx context.Context, call int, prompt string) (string, error) {
		return "{", nil
	})
	f.pipeline.RawArticlesPath = filepath.Join(f.dir, date+".json")
	f.pipeline.SynthesisErrorPath = filepath.Join(f.dir, archive.IndexFile)

	if _, err := f.pipeline.Run(context.Background(), date); err == nil {
		t.Fatal("expected synthesis error")
	}
	f.assertArchiveEmpty(t)
}

func TestCheckSources(t *testing.T) {
	c := aggregator.New(failingFetcher("888"), time.Second, logger.Discard())
	reports, err := CheckSources(context.Background(), c, nineSources())
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 9 {
		t.Fatalf("expected 9 reports, got %d", len(reports))
	}
	for _, r := range reports {
		if r.Name == "888" {
			if r.OK || r.Kind != "network" {
				t.Errorf("unexpected report for failing source %+v", r)
			}
			continue
		}
		if !r.OK || r.Articles != 1 || r.Sample == "" {
			t.Errorf("unexpected report %+v", r)
		}
	}
}

func TestFormatDigest(t *testing.T) {
	doc := &archive.Document{
		Date: date,
		Stories: []archive.Story{
			{TitleHU: "Első", TitleEN: "First", SourcesAnalyzed: []string{"Telex"}},
			{TitleHU: "Második", TitleEN: "Second", SourcesAnalyzed: []string{"HVG"}},
		},
		Metadata: archive.Metadata{SourcesScraped: 7, AIModel: "gemini-2.5-flash"},
	}
	out := FormatDigest(doc, 1)
	if !strings.Contains(out, "1. Első") || strings.Contains(out, "Második") {
		t.Errorf("unexpected preview:\n%s", out)
	}
	if !strings.Contains(out, "and 1 more") || !strings.Contains(out, "7 sources") {
		t.Errorf("preview footer missing:\n%s", out)
	}
}
