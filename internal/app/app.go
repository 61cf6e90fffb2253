// Package app wires one pipeline run: collect sources, synthesize the
// digest, write the dated archive document and the index.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/hunews/internal/aggregator"
	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/gemini"
	"github.com/deusflow/hunews/internal/metrics"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/sources"
)

// ErrDeadlineExceeded means the run deadline passed before the document
// could be written. Nothing is written in that case.
var ErrDeadlineExceeded = errors.New("run deadline exceeded")

type Collector interface {
	Collect(ctx context.Context, descs []sources.Descriptor) (*aggregator.Result, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, articles []news.Article) (*gemini.Synthesis, error)
}

type Writer interface {
	Write(date string, stories []archive.Story, note archive.MethodologyNote, meta archive.Metadata) (*archive.Document, error)
}

type Pipeline struct {
	Sources     []sources.Descriptor
	Collector   Collector
	Synthesizer Synthesizer
	Writer      Writer
	Metrics     *metrics.Metrics
	RunTimeout  time.Duration
	Location    *time.Location
	Log         *slog.Logger

	// Optional debug artifacts, kept outside the archive's file names.
	RawArticlesPath    string
	SynthesisErrorPath string

	now func() time.Time
}

// Run executes the pipeline for date. Any fatal error aborts before the
// archive is touched; per-source failures are only logged.
func (p *Pipeline) Run(ctx context.Context, date string) (doc *archive.Document, err error) {
	p.defaults()
	start := p.now()
	defer func() {
		p.Metrics.RecordRun(p.now().Sub(start), err)
	}()

	if !archive.ValidDate(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}

	ctx, cancel := context.WithTimeout(ctx, p.RunTimeout)
	defer cancel()

	p.Log.Info("run started", "sources", len(p.Sources), "timeout", p.RunTimeout)

	res, err := p.Collector.Collect(ctx, p.Sources)
	if res != nil {
		p.Metrics.AddArticles(len(res.Articles))
		for _, f := range res.Failures {
			p.Metrics.SourceFailed(f.Source, f.Kind)
		}
	}
	if err != nil {
		return nil, p.fatal(ctx, "collect", err)
	}
	p.Log.Info("sources collected",
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failures),
		"articles", len(res.Articles),
	)

	articles := append([]news.Article(nil), res.Articles...)
	news.SortByPublished(articles)
	if p.RawArticlesPath != "" {
		p.saveRawArticles(newRawSnapshot(res, articles, p.now().In(p.Location)))
	}

	syn, err := p.Synthesizer.Synthesize(ctx, articles)
	p.recordSynthesis(syn, err)
	if err != nil {
		var se *gemini.SynthesisError
		if p.SynthesisErrorPath != "" && errors.As(err, &se) && se.Raw != "" {
			p.saveModelAnswer(se.Raw)
		}
		return nil, p.fatal(ctx, "synthesize", err)
	}

	if ctx.Err() != nil {
		return nil, p.fatal(ctx, "write", ctx.Err())
	}

	meta := archive.Metadata{
		SourcesScraped: len(res.Succeeded),
		GenerationTime: p.now().In(p.Location).Format(time.RFC3339),
		AIModel:        syn.Model,
	}
	note := archive.MethodologyNote{HU: syn.MethodologyNoteHU, EN: syn.MethodologyNoteEN}

	doc, err = p.Writer.Write(date, syn.Stories, note, meta)
	if err != nil {
		return nil, err
	}
	p.Metrics.AddStoriesWritten(len(doc.Stories))

	p.Log.Info("run finished", "stories", len(doc.Stories), "duration", p.now().Sub(start).Round(time.Millisecond))
	return doc, nil
}

func (p *Pipeline) recordSynthesis(syn *gemini.Synthesis, err error) {
	var se *gemini.SynthesisError
	switch {
	case err == nil:
		p.Metrics.AddSynthesisAttempts(syn.Attempts)
		p.Metrics.AddStoriesDropped(syn.Dropped)
		p.Metrics.SynthesisOutcome("success")
	case errors.As(err, &se):
		p.Metrics.AddSynthesisAttempts(se.Attempts)
		p.Metrics.SynthesisOutcome("error")
	default:
		p.Metrics.SynthesisOutcome("aborted")
	}
}

// fatal maps an expired run context to ErrDeadlineExceeded.
func (p *Pipeline) fatal(ctx context.Context, stage string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%s: %w: %w", stage, ErrDeadlineExceeded, err)
	} else {
		err = fmt.Errorf("%s: %w", stage, err)
	}
	p.Log.Error("run aborted", "stage", stage, "error", err)
	return err
}

func (p *Pipeline) defaults() {
	if p.now == nil {
		p.now = time.Now
	}
	if p.Metrics == nil {
		p.Metrics = metrics.Global
	}
	if p.Log == nil {
		p.Log = slog.Default()
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.RunTimeout <= 0 {
		p.RunTimeout = 10 * time.Minute
	}
}

// Today returns the current calendar date in loc.
func Today(loc *time.Location) string {
	return time.Now().In(loc).Format(archive.DateLayout)
}
