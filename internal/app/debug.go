package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/deusflow/hunews/internal/aggregator"
	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/storage"
)

// RawSnapshot is the collected input of a run, kept for debugging the
// synthesis prompt.
type RawSnapshot struct {
	ScrapeDate    string                           `json:"scrape_date"`
	TotalArticles int                              `json:"total_articles"`
	Succeeded     []string                         `json:"sources_succeeded"`
	Failed        map[string]string                `json:"sources_failed,omitempty"`
	Articles      []news.Article                   `json:"articles"`
	ByCategory    map[news.Category][]news.Article `json:"by_category"`
}

func newRawSnapshot(res *aggregator.Result, articles []news.Article, at time.Time) RawSnapshot {
	snap := RawSnapshot{
		ScrapeDate:    at.Format(time.RFC3339),
		TotalArticles: len(articles),
		Succeeded:     res.Succeeded,
		Articles:      articles,
		ByCategory:    news.ByCategory(articles),
	}
	if len(res.Failures) > 0 {
		snap.Failed = make(map[string]string, len(res.Failures))
		for _, f := range res.Failures {
			snap.Failed[f.Source] = f.Kind
		}
	}
	return snap
}

// debugDir resolves a debug artifact path. Archive file names are refused
// so a debug file can never shadow a document or the index.
func debugDir(path string) (*storage.Dir, string, error) {
	name := filepath.Base(path)
	if archive.Reserved(name) {
		return nil, "", fmt.Errorf("debug file %q collides with an archive file name", path)
	}
	return storage.NewDir(filepath.Dir(path)), name, nil
}

func (p *Pipeline) saveRawArticles(snap RawSnapshot) {
	dir, name, err := debugDir(p.RawArticlesPath)
	if err == nil {
		err = dir.Write(name, snap)
	}
	if err != nil {
		p.Log.Warn("failed to save raw articles", "path", p.RawArticlesPath, "error", err)
		return
	}
	p.Log.Info("saved raw articles", "path", p.RawArticlesPath, "articles", snap.TotalArticles)
}

func (p *Pipeline) saveModelAnswer(raw string) {
	dir, name, err := debugDir(p.SynthesisErrorPath)
	if err == nil {
		err = dir.WriteRaw(name, []byte(raw))
	}
	if err != nil {
		p.Log.Warn("failed to save model answer", "path", p.SynthesisErrorPath, "error", err)
		return
	}
	p.Log.Error("saved rejected model answer", "path", p.SynthesisErrorPath, "bytes", len(raw))
}
