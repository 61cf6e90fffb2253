package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/hunews/internal/archive"
	"golang.org/x/sync/errgroup"
)

var huMonths = [...]string{
	"január", "február", "március", "április", "május", "június",
	"július", "augusztus", "szeptember", "október", "november", "december",
}

// DisplayHU renders a date the way the Hungarian front end shows it,
// e.g. "2025. október 16.".
func DisplayHU(date string) string {
	t, err := time.Parse(archive.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%d. %s %d.", t.Year(), huMonths[t.Month()-1], t.Day())
}

// DisplayEN renders a date as "October 16, 2025".
func DisplayEN(date string) string {
	t, err := time.Parse(archive.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("January 2, 2006")
}

func matchesDate(date, q string) bool {
	return strings.Contains(date, q) ||
		strings.Contains(strings.ToLower(DisplayHU(date)), q) ||
		strings.Contains(strings.ToLower(DisplayEN(date)), q)
}

func matchesDocument(doc *archive.Document, q string) bool {
	for _, s := range doc.Stories {
		for _, field := range []string{s.TitleHU, s.TitleEN, s.SummaryHU, s.SummaryEN} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
	}
	return false
}

// Search filters the listing in two stages. Dates whose display strings
// match are taken directly; then the newest remaining dates, up to the
// candidate limit, are loaded and matched on story titles and summaries in
// both languages. Results keep the listing order. An empty query matches
// every date.
func (r *Reader) Search(ctx context.Context, l *Listing, query string) ([]string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return append([]string(nil), l.Dates...), nil
	}

	matched := make(map[string]bool)
	var candidates []string
	for _, d := range l.Dates {
		if matchesDate(d, q) {
			matched[d] = true
		} else if len(candidates) < r.maxCandidates {
			candidates = append(candidates, d)
		}
	}

	hits := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.batchSize)
	for i, d := range candidates {
		g.Go(func() error {
			doc, err := r.Document(gctx, d)
			if err != nil {
				r.log.Debug("search candidate unavailable", "date", d, "error", err)
				return nil
			}
			hits[i] = matchesDocument(doc, q)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, d := range candidates {
		if hits[i] {
			matched[d] = true
		}
	}

	out := []string{}
	for _, d := range l.Dates {
		if matched[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Debouncer runs a search only after the input has been quiet for the
// configured delay. A newer input cancels the pending or running search, and
// only the latest query's result is delivered.
type Debouncer struct {
	delay   time.Duration
	run     func(ctx context.Context, query string) ([]string, error)
	deliver func(query string, dates []string, err error)

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	pending string
	cancel  context.CancelFunc
	active  sync.WaitGroup // scheduled or running searches
}

func NewDebouncer(delay time.Duration, run func(ctx context.Context, query string) ([]string, error), deliver func(query string, dates []string, err error)) *Debouncer {
	return &Debouncer{delay: delay, run: run, deliver: deliver}
}

func (d *Debouncer) Input(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	d.stopLocked()

	d.pending = query
	d.active.Add(1)
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq, query) })
}

// Flush runs a search still waiting for its delay right away and returns
// once the latest search has been delivered.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil && d.timer.Stop() {
		d.timer = nil
		seq, query := d.seq, d.pending
		d.mu.Unlock()
		d.fire(seq, query)
	} else {
		d.mu.Unlock()
	}
	d.active.Wait()
}

func (d *Debouncer) fire(seq uint64, query string) {
	defer d.active.Done()

	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	dates, err := d.run(ctx, query)
	cancel()

	d.mu.Lock()
	latest := seq == d.seq
	d.mu.Unlock()
	if latest {
		d.deliver(query, dates, err)
	}
}

// Stop drops any pending or running search.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.stopLocked()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		if d.timer.Stop() {
			d.active.Done()
		}
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
