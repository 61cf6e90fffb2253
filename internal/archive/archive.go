// Package archive persists one JSON document per calendar date plus the
// index.json listing every date that has a document.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/hunews/internal/storage"
)

const (
	IndexFile  = "index.json"
	DateLayout = "2006-01-02"
)

var ErrNotFound = storage.ErrNotFound

// Story is one synthesized, bilingual digest entry.
type Story struct {
	TitleHU                 string   `json:"title_hu"`
	TitleEN                 string   `json:"title_en"`
	SummaryHU               string   `json:"summary_hu"`
	SummaryEN               string   `json:"summary_en"`
	SourcesAnalyzed         []string `json:"sources_analyzed"`
	PerspectiveComparisonHU string   `json:"perspective_comparison_hu"`
	PerspectiveComparisonEN string   `json:"perspective_comparison_en"`
	KeyFacts                []string `json:"key_facts"`
}

// Validate checks the record invariants: titles and summaries in both
// locales, locale pairs never one-sided, at least one source.
func (s Story) Validate() error {
	if strings.TrimSpace(s.TitleHU) == "" || strings.TrimSpace(s.TitleEN) == "" {
		return errors.New("empty title")
	}
	if strings.TrimSpace(s.SummaryHU) == "" || strings.TrimSpace(s.SummaryEN) == "" {
		return errors.New("empty summary")
	}
	if (strings.TrimSpace(s.PerspectiveComparisonHU) == "") != (strings.TrimSpace(s.PerspectiveComparisonEN) == "") {
		return errors.New("perspective comparison present in one locale only")
	}
	if len(s.SourcesAnalyzed) == 0 {
		return errors.New("no sources analyzed")
	}
	return nil
}

type Metadata struct {
	SourcesScraped int    `json:"sources_scraped"`
	GenerationTime string `json:"generation_time"`
	AIModel        string `json:"ai_model"`
}

// MethodologyNote is the bilingual explanation shown under a day's stories.
type MethodologyNote struct {
	HU string
	EN string
}

// Document is the daily archive record, stored as <date>.json.
type Document struct {
	Date              string   `json:"date"`
	Stories           []Story  `json:"stories"`
	MethodologyNoteHU string   `json:"methodology_note_hu"`
	MethodologyNoteEN string   `json:"methodology_note_en"`
	Metadata          Metadata `json:"metadata"`
}

// Index lists the dates that have a document, newest first.
type Index struct {
	AvailableDates []string       `json:"available_dates"`
	StoryCounts    map[string]int `json:"story_counts,omitempty"`
	LastUpdated    string         `json:"last_updated,omitempty"`
	TotalFiles     int            `json:"total_files"`
}

// Add records date once and keeps the list sorted descending.
func (ix *Index) Add(date string, stories int) {
	if !ix.Contains(date) {
		ix.AvailableDates = append(ix.AvailableDates, date)
	}
	if ix.StoryCounts == nil {
		ix.StoryCounts = make(map[string]int)
	}
	ix.StoryCounts[date] = stories
	ix.Normalize()
}

func (ix *Index) Contains(date string) bool {
	for _, d := range ix.AvailableDates {
		if d == date {
			return true
		}
	}
	return false
}

// Normalize drops duplicates and invalid entries and sorts descending.
func (ix *Index) Normalize() {
	seen := make(map[string]bool, len(ix.AvailableDates))
	out := ix.AvailableDates[:0]
	for _, d := range ix.AvailableDates {
		if !ValidDate(d) || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	if out == nil {
		out = []string{}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	ix.AvailableDates = out
	ix.TotalFiles = len(out)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}

func FileName(date string) string { return date + ".json" }

// DateFromFileName returns the date of a document file name.
func DateFromFileName(name string) (string, bool) {
	date, ok := strings.CutSuffix(name, ".json")
	if !ok || !ValidDate(date) {
		return "", false
	}
	return date, true
}

// Reserved reports whether name belongs to the archive's own files: a
// dated document or the index.
func Reserved(name string) bool {
	_, isDoc := DateFromFileName(name)
	return isDoc || name == IndexFile
}

// WriteError is fatal for the run. Stage is "validate", "document" or "index".
type WriteError struct {
	Stage string
	Date  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("archive write %s (%s): %v", e.Date, e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type Writer struct {
	dir *storage.Dir
	now func() time.Time
	log *slog.Logger
}

func NewWriter(dataDir string, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{dir: storage.NewDir(dataDir), now: time.Now, log: log}
}

// Write stores the document for date, replacing any earlier one, and only
// then adds date to the index. The index never names a missing document.
func (w *Writer) Write(date string, stories []Story, note MethodologyNote, meta Metadata) (*Document, error) {
	if !ValidDate(date) {
		return nil, &WriteError{Stage: "validate", Date: date, Err: errors.New("invalid date")}
	}
	if len(stories) == 0 {
		return nil, &WriteError{Stage: "validate", Date: date, Err: errors.New("no stories")}
	}
	for i, s := range stories {
		if err := s.Validate(); err != nil {
			return nil, &WriteError{Stage: "validate", Date: date, Err: fmt.Errorf("story %d: %w", i, err)}
		}
	}
	if (note.HU == "") != (note.EN == "") {
		return nil, &WriteError{Stage: "validate", Date: date, Err: errors.New("methodology note present in one locale only")}
	}

	doc := &Document{
		Date:              date,
		Stories:           stories,
		MethodologyNoteHU: note.HU,
		MethodologyNoteEN: note.EN,
		Metadata:          meta,
	}
	if err := w.dir.Write(FileName(date), doc); err != nil {
		return nil, &WriteError{Stage: "document", Date: date, Err: err}
	}
	w.log.Info("archive document written", "date", date, "stories", len(stories), "path", w.dir.Path())

	ix, err := w.ReadIndex()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			w.log.Warn("index unreadable, rebuilding", "error", err)
		}
		ix, err = w.scan()
		if err != nil {
			return nil, &WriteError{Stage: "index", Date: date, Err: err}
		}
	}
	ix.Add(date, len(stories))
	ix.LastUpdated = w.now().Format(time.RFC3339)

	if err := w.dir.Write(IndexFile, ix); err != nil {
		return nil, &WriteError{Stage: "index", Date: date, Err: err}
	}
	w.log.Info("archive index updated", "dates", ix.TotalFiles)
	return doc, nil
}

// Read loads the document for date. A missing document yields ErrNotFound.
func (w *Writer) Read(date string) (*Document, error) {
	if !ValidDate(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	var doc Document
	if err := w.dir.Read(FileName(date), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadIndex loads index.json. A missing index yields ErrNotFound.
func (w *Writer) ReadIndex() (*Index, error) {
	var ix Index
	if err := w.dir.Read(IndexFile, &ix); err != nil {
		return nil, err
	}
	ix.Normalize()
	return &ix, nil
}

// RebuildIndex recreates index.json from the documents on disk.
func (w *Writer) RebuildIndex() (*Index, error) {
	ix, err := w.scan()
	if err != nil {
		return nil, err
	}
	ix.LastUpdated = w.now().Format(time.RFC3339)
	if err := w.dir.Write(IndexFile, ix); err != nil {
		return nil, err
	}
	w.log.Info("archive index rebuilt", "dates", ix.TotalFiles)
	return ix, nil
}

// scan lists every readable dated document. Unreadable documents are left
// out so the index only names documents a reader can load.
func (w *Writer) scan() (*Index, error) {
	names, err := w.dir.List()
	if err != nil {
		return nil, err
	}

	ix := &Index{StoryCounts: make(map[string]int)}
	for _, name := range names {
		date, ok := DateFromFileName(name)
		if !ok {
			continue
		}
		var doc Document
		if err := w.dir.Read(name, &doc); err != nil {
			w.log.Warn("skipping unreadable document", "file", name, "error", err)
			continue
		}
		ix.AvailableDates = append(ix.AvailableDates, date)
		ix.StoryCounts[date] = len(doc.Stories)
	}
	ix.Normalize()
	return ix, nil
}
