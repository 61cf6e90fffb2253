// Package discovery finds the dates that have an archive document and
// loads, counts and searches those documents for the front end.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/cache"
	"golang.org/x/sync/errgroup"
)

// Strategy names how a listing's dates were found.
type Strategy string

const (
	Indexed Strategy = "indexed"
	Probed  Strategy = "probed"
	Empty   Strategy = "empty"
)

// CountState tracks the story count shown next to a date.
type CountState string

const (
	Loading     CountState = "loading"
	Loaded      CountState = "loaded"
	Unavailable CountState = "unavailable" // document not yet published
	Failed      CountState = "failed"
)

type Entry struct {
	Date    string
	State   CountState
	Stories int
	Err     error
}

// Listing is the discovered date list. Entries are keyed by date so
// concurrent count updates never depend on list positions.
type Listing struct {
	Strategy Strategy
	Dates    []string // newest first

	mu      sync.RWMutex
	entries map[string]*Entry
}

func newListing(strategy Strategy, dates []string) *Listing {
	l := &Listing{Strategy: strategy, Dates: dates, entries: make(map[string]*Entry, len(dates))}
	for _, d := range dates {
		l.entries[d] = &Entry{Date: d, State: Loading}
	}
	return l
}

func (l *Listing) Entry(date string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[date]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a snapshot in date order.
func (l *Listing) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.Dates))
	for _, d := range l.Dates {
		out = append(out, *l.entries[d])
	}
	return out
}

func (l *Listing) update(date string, fn func(e *Entry)) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[date]
	if !ok {
		return Entry{}, false
	}
	fn(e)
	return *e, true
}

type Options struct {
	LookbackDays  int
	BatchSize     int
	MaxCandidates int
	CacheTTL      time.Duration
	Location      *time.Location
	Logger        *slog.Logger
}

type Reader struct {
	store         Store
	docs          *cache.Cache[*archive.Document]
	lookbackDays  int
	batchSize     int
	maxCandidates int
	loc           *time.Location
	now           func() time.Time
	log           *slog.Logger
}

func NewReader(store Store, opts Options) *Reader {
	r := &Reader{
		store:         store,
		lookbackDays:  opts.LookbackDays,
		batchSize:     opts.BatchSize,
		maxCandidates: opts.MaxCandidates,
		loc:           opts.Location,
		now:           time.Now,
		log:           opts.Logger,
	}
	if r.lookbackDays <= 0 {
		r.lookbackDays = 30
	}
	if r.batchSize <= 0 {
		r.batchSize = 5
	}
	if r.maxCandidates <= 0 {
		r.maxCandidates = 10
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	r.docs = cache.New[*archive.Document](ttl, ttl)
	return r
}

func (r *Reader) Close() { r.docs.Close() }

// Discover tries the index first, then probes the lookback window. An archive
// with neither is reported as Empty, not as an error.
func (r *Reader) Discover(ctx context.Context) (*Listing, error) {
	ix, err := r.index(ctx)
	switch {
	case err == nil && len(ix.AvailableDates) > 0:
		l := newListing(Indexed, ix.AvailableDates)
		for date, n := range ix.StoryCounts {
			l.update(date, func(e *Entry) {
				e.State = Loaded
				e.Stories = n
			})
		}
		r.log.Debug("archive discovered from index", "dates", len(l.Dates))
		return l, nil
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil && !errors.Is(err, ErrNotFound):
		r.log.Warn("archive index unusable, probing", "error", err)
	}

	dates, err := r.probe(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return newListing(Empty, []string{}), nil
	}
	r.log.Debug("archive discovered by probing", "dates", len(dates))
	return newListing(Probed, dates), nil
}

func (r *Reader) index(ctx context.Context) (*archive.Index, error) {
	data, err := r.store.Get(ctx, archive.IndexFile)
	if err != nil {
		return nil, err
	}
	var ix archive.Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	ix.Normalize()
	return &ix, nil
}

// probe checks the lookback window in fixed-size concurrent batches and
// returns the dates whose document exists, newest first.
func (r *Reader) probe(ctx context.Context) ([]string, error) {
	candidates := r.recentDates()
	found := make([]bool, len(candidates))

	for start := 0; start < len(candidates); start += r.batchSize {
		end := min(start+r.batchSize, len(candidates))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				ok, err := r.store.Exists(gctx, archive.FileName(candidates[i]))
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					r.log.Debug("probe failed", "date", candidates[i], "error", err)
					return nil
				}
				found[i] = ok
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var dates []string
	for i, ok := range found {
		if ok {
			dates = append(dates, candidates[i])
		}
	}
	return dates, nil
}

func (r *Reader) recentDates() []string {
	today := r.now().In(r.loc)
	out := make([]string, 0, r.lookbackDays)
	for i := 0; i < r.lookbackDays; i++ {
		out = append(out, today.AddDate(0, 0, -i).Format(archive.DateLayout))
	}
	return out
}

// Document loads the archive document for date through the cache.
// A missing document yields ErrNotFound.
func (r *Reader) Document(ctx context.Context, date string) (*archive.Document, error) {
	if doc, ok := r.docs.Get(date); ok {
		return doc, nil
	}

	data, err := r.store.Get(ctx, archive.FileName(date))
	if err != nil {
		return nil, err
	}
	var doc archive.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", date, err)
	}

	r.docs.Set(date, &doc)
	return &doc, nil
}

// Backfill loads the story count of every entry still Loading. Each date
// has its own task, which updates only that date's entry and then calls
// onUpdate. Backfill returns once every task is done.
func (r *Reader) Backfill(ctx context.Context, l *Listing, onUpdate func(Entry)) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.batchSize)

	for _, e := range l.Entries() {
		if e.State != Loading {
			continue
		}
		date := e.Date
		g.Go(func() error {
			doc, err := r.Document(ctx, date)
			updated, ok := l.update(date, func(e *Entry) {
				switch {
				case err == nil:
					e.State = Loaded
					e.Stories = len(doc.Stories)
				case errors.Is(err, ErrNotFound):
					e.State = Unavailable
				default:
					e.State = Failed
					e.Err = err
				}
			})
			if ok && onUpdate != nil {
				onUpdate(updated)
			}
			return nil
		})
	}
	_ = g.Wait()
}
