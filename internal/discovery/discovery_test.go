package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/logger"
)

var note = archive.MethodologyNote{HU: "Módszertan.", EN: "Methodology."}

func story(hu, en string) archive.Story {
	return archive.Story{
		TitleHU:         hu,
		TitleEN:         en,
		SummaryHU:       hu + " összefoglaló",
		SummaryEN:       en + " summary",
		SourcesAnalyzed: []string{"Telex"},
		KeyFacts:        []string{},
	}
}

// writeArchive writes one document per date with the writer and returns the data dir.
func writeArchive(t *testing.T, docs map[string][]archive.Story) string {
	t.Helper()
	dir := t.TempDir()
	w := archive.NewWriter(dir, logger.Discard())
	for date, stories := range docs {
		if _, err := w.Write(date, stories, note, archive.Metadata{SourcesScraped: 7}); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestReader(store Store) *Reader {
	r := NewReader(store, Options{LookbackDays: 10, BatchSize: 3, MaxCandidates: 10, Logger: logger.Discard()})
	r.now = func() time.Time { return time.Date(2025, 10, 16, 20, 0, 0, 0, time.UTC) }
	return r
}

func TestDiscover_Indexed(t *testing.T) {
	dir := writeArchive(t, map[string][]archive.Story{
		"2025-10-14": {story("a", "a")},
		"2025-10-16": {story("b", "b"), story("c", "c")},
	})
	r := newTestReader(NewDirStore(dir))
	defer r.Close()

	l, err := r.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.Strategy != Indexed {
		t.Errorf("expected indexed discovery, got %s", l.Strategy)
	}
	if !reflect.DeepEqual(l.Dates, []string{"2025-10-16", "2025-10-14"}) {
		t.Errorf("unexpected dates %v", l.Dates)
	}
	e, _ := l.Entry("2025-10-16")
	if e.State != Loaded || e.Stories != 2 {
		t.Errorf("expected count from index, got %+v", e)
	}
}

func TestDiscover_ProbedOverHTTP(t *testing.T) {
	present := map[string]bool{
		"/2025-10-16.json": true,
		"/2025-10-12.json": true,
		"/2025-10-07.json": true,
	}
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		if r.Method != http.MethodHead || !present[r.URL.Path] {
			http.NotFound(w, r)
			return
		}
	}))
	defer srv.Close()

	store, err := NewHTTPStore(srv.URL, srv.Client(), "")
	if err != nil {
		t.Fatal(err)
	}
	r := newTestReader(store)
	defer r.Close()

	l, err := r.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.Strategy != Probed {
		t.Errorf("expected probing, got %s", l.Strategy)
	}
	want := []string{"2025-10-16", "2025-10-12", "2025-10-07"}
	if !reflect.DeepEqual(l.Dates, want) {
		t.Errorf("got %v, want %v", l.Dates, want)
	}
	if maxInFlight.Load() > 3 {
		t.Errorf("probe batches exceeded batch size: %d in flight", maxInFlight.Load())
	}
	for _, e := range l.Entries() {
		if e.State != Loading {
			t.Errorf("probed entry should start loading: %+v", e)
		}
	}
}

func TestDiscover_Empty(t *testing.T) {
	r := newTestReader(NewDirStore(t.TempDir()))
	defer r.Close()

	l, err := r.Discover(context.Background())
	if err != nil {
		t.Fatalf("empty archive is not an error: %v", err)
	}
	if l.Strategy != Empty || len(l.Dates) != 0 {
		t.Errorf("expected empty listing, got %+v", l)
	}
}

func TestDiscover_CorruptIndexFallsBackToProbing(t *testing.T) {
	dir := writeArchive(t, map[string][]archive.Story{"2025-10-15": {story("a", "a")}})
	if err := os.WriteFile(filepath.Join(dir, archive.IndexFile), []byte("<html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := newTestReader(NewDirStore(dir))
	defer r.Close()

	l, err := r.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if l.Strategy != Probed || !reflect.DeepEqual(l.Dates, []string{"2025-10-15"}) {
		t.Errorf("unexpected listing %s %v", l.Strategy, l.Dates)
	}
}

func TestBackfill(t *testing.T) {
	dir := writeArchive(t, map[string][]archive.Story{
		"2025-10-15": {story("a", "a")},
		"2025-10-16": {story("b", "b"), story("c", "c"), story("d", "d")},
	})
	// Index without counts, naming one date whose document is gone.
	ix := archive.Index{AvailableDates: []string{"2025-10-16", "2025-10-15", "2025-10-14"}}
	data, _ := json.Marshal(ix)
	if err := os.WriteFile(filepath.Join(dir, archive.IndexFile), data, 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestReader(NewDirStore(dir))
	defer r.Close()
	l, err := r.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	updates := map[string]Entry{}
	r.Backfill(context.Background(), l, func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		updates[e.Date] = e
	})

	if len(updates) != 3 {
		t.Fatalf("expected one update per date, got %d", len(updates))
	}
	if e, _ := l.Entry("2025-10-16"); e.State != Loaded || e.Stories != 3 {
		t.Errorf("unexpected entry %+v", e)
	}
	if e, _ := l.Entry("2025-10-14"); e.State != Unavailable {
		t.Errorf("missing document should be unavailable, got %+v", e)
	}
}

func TestSearch(t *testing.T) {
	dir := writeArchive(t, map[string][]archive.Story{
		"2025-10-14": {story("Tüntetés a Kossuth téren", "Protest at Kossuth square")},
		"2025-10-15": {story("Energiaárak", "Energy prices")},
		"2025-10-16": {story("Kormányinfó", "Government briefing")},
	})
	r := newTestReader(NewDirStore(dir))
	defer r.Close()
	l, err := r.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		query string
		want  []string
	}{
		{"2025. október 16.", []string{"2025-10-16"}},
		{"OKTÓBER 15", []string{"2025-10-15"}},
		{"October 14, 2025", []string{"2025-10-14"}},
		{"2025-10", []string{"2025-10-16", "2025-10-15", "2025-10-14"}},
		{"kossuth", []string{"2025-10-14"}},
		{"energy", []string{"2025-10-15"}},
		{"bitcoin", []string{}},
		{"  ", []string{"2025-10-16", "2025-10-15", "2025-10-14"}},
	}
	for _, tc := range cases {
		got, err := r.Search(context.Background(), l, tc.query)
		if err != nil {
			t.Fatalf("%q: %v", tc.query, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Search(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestSearch_CandidateLimit(t *testing.T) {
	dir := writeArchive(t, map[string][]archive.Story{
		"2025-10-14": {story("Régi hír", "Old news")},
		"2025-10-15": {story("x", "x")},
		"2025-10-16": {story("y", "y")},
	})
	r := newTestReader(NewDirStore(dir))
	r.maxCandidates = 2
	defer r.Close()
	l, _ := r.Discover(context.Background())

	got, err := r.Search(context.Background(), l, "régi")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("dates beyond the candidate limit must not be loaded, got %v", got)
	}
}

func TestDisplayStrings(t *testing.T) {
	if got := DisplayHU("2025-10-16"); got != "2025. október 16." {
		t.Errorf("DisplayHU = %q", got)
	}
	if got := DisplayEN("2025-03-01"); got != "March 1, 2025" {
		t.Errorf("DisplayEN = %q", got)
	}
}

func TestDebouncer_DeliversLatestOnly(t *testing.T) {
	var runs atomic.Int32
	delivered := make(chan string, 10)

	d := NewDebouncer(20*time.Millisecond,
		func(ctx context.Context, q string) ([]string, error) {
			runs.Add(1)
			return []string{q}, nil
		},
		func(q string, dates []string, err error) {
			delivered <- q
		},
	)
	defer d.Stop()

	for _, q := range []string{"o", "ok", "okt", "októ"} {
		d.Input(q)
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case q := <-delivered:
		if q != "októ" {
			t.Errorf("expected latest query, got %q", q)
		}
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}

	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 1 {
		t.Errorf("expected a single search run, got %d", runs.Load())
	}
	if len(delivered) != 0 {
		t.Error("stale result delivered")
	}
}

func TestDebouncer_FlushRunsPendingQuery(t *testing.T) {
	var got []string
	d := NewDebouncer(time.Hour,
		func(ctx context.Context, q string) ([]string, error) {
			return []string{"2025-10-16"}, nil
		},
		func(q string, dates []string, err error) {
			got = append(got, q)
		},
	)
	defer d.Stop()

	d.Input("ener")
	d.Input("energy")
	d.Flush()

	if len(got) != 1 || got[0] != "energy" {
		t.Fatalf("expected only the last query delivered on flush, got %v", got)
	}

	d.Flush()
	if len(got) != 1 {
		t.Errorf("flush without input delivered again: %v", got)
	}
}

func TestHTTPStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/archive/data/index.json":
			_, _ = w.Write([]byte(`{"available_dates":["2025-10-16"]}`))
		case "/archive/data/broken.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL+"/archive/data", srv.Client(), "hunews")
	if err != nil {
		t.Fatal(err)
	}

	data, err := s.Get(context.Background(), "index.json")
	if err != nil || !strings.Contains(string(data), "2025-10-16") {
		t.Errorf("unexpected index fetch %q %v", data, err)
	}
	if _, err := s.Get(context.Background(), "2025-10-15.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Exists(context.Background(), "broken.json"); err == nil {
		t.Error("expected error for server failure")
	}
	if _, err := NewHTTPStore("ftp://example.com", nil, ""); err == nil {
		t.Error("expected invalid base URL error")
	}
}

func TestHTTPStore_RejectsOversizedDocument(t *testing.T) {
	body := `{"date":"2025-10-16","stories":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL, srv.Client(), "hunews")
	if err != nil {
		t.Fatal(err)
	}

	s.maxBytes = int64(len(body))
	if data, err := s.Get(context.Background(), "2025-10-16.json"); err != nil || string(data) != body {
		t.Errorf("document at the limit should load, got %q %v", data, err)
	}

	s.maxBytes = int64(len(body)) - 1
	if _, err := s.Get(context.Background(), "2025-10-16.json"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}
