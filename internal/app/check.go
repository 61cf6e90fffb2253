package app

import (
	"context"
	"errors"

	"github.com/deusflow/hunews/internal/aggregator"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/sources"
)

// SourceReport is the health of one source as seen by CheckSources.
type SourceReport struct {
	Name     string
	Category news.Category
	Type     string
	OK       bool
	Articles int
	Sample   string
	Kind     string
	Err      error
}

// CheckSources fetches every source once without synthesis and reports
// per-source status, article count and a sample title.
func CheckSources(ctx context.Context, c Collector, descs []sources.Descriptor) ([]SourceReport, error) {
	res, err := c.Collect(ctx, descs)
	if err != nil && !errors.Is(err, aggregator.ErrNoSourcesAvailable) {
		return nil, err
	}

	counts := make(map[string]int)
	samples := make(map[string]string)
	for _, a := range res.Articles {
		counts[a.Source]++
		if _, ok := samples[a.Source]; !ok {
			samples[a.Source] = a.Title
		}
	}
	failures := make(map[string]aggregator.SourceFailure)
	for _, f := range res.Failures {
		failures[f.Source] = f
	}

	reports := make([]SourceReport, 0, len(descs))
	for _, d := range descs {
		r := SourceReport{Name: d.Name, Category: d.Category, Type: d.Type}
		if f, failed := failures[d.Name]; failed {
			r.Kind = f.Kind
			r.Err = f.Err
		} else {
			r.OK = true
			r.Articles = counts[d.Name]
			r.Sample = samples[d.Name]
		}
		reports = append(reports, r)
	}
	return reports, nil
}
