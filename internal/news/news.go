// Package news holds the normalized article record shared by every fetch
// adapter, and the helpers that keep articles in that normalized shape.
package news

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is the editorial leaning a source is filed under.
type Category string

const (
	RightWing   Category = "right_wing"
	LeftWing    Category = "left_wing"
	Independent Category = "independent"
)

// Categories lists every category in prompt and report order.
var Categories = []Category{RightWing, LeftWing, Independent}

func (c Category) Valid() bool {
	switch c {
	case RightWing, LeftWing, Independent:
		return true
	}
	return false
}

// Label is the section heading used when articles are shown to the model.
func (c Category) Label() string {
	switch c {
	case RightWing:
		return "RIGHT-WING/GOVERNMENT SOURCES"
	case LeftWing:
		return "LEFT-WING/OPPOSITION SOURCES"
	case Independent:
		return "INDEPENDENT SOURCES"
	}
	return strings.ToUpper(string(c))
}

// Article is one normalized item produced by a feed or a custom extractor.
type Article struct {
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Published *time.Time `json:"published,omitempty"` // nil when the source gives no usable date
	Summary   string     `json:"summary,omitempty"`
	Source    string     `json:"source"`
	Category  Category   `json:"category"`
}

// Valid reports whether the article satisfies the minimal record invariant.
func (a Article) Valid() bool {
	return strings.TrimSpace(a.Title) != "" && strings.TrimSpace(a.Source) != ""
}

var wsRe = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs into single spaces.
func CleanText(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most max runes, preferring the last sentence end
// in the second half of the budget.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, ". "); idx > len(cut)/2 {
		return cut[:idx+1]
	}
	return strings.TrimSpace(cut) + "..."
}

// CanonicalURL normalizes a link for deduplication: fragment dropped,
// host lowercased, trailing slash trimmed.
func CanonicalURL(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.TrimRight(link, "/")
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	out := u.String()
	return strings.TrimRight(out, "/")
}

// ResolveURL turns a possibly relative href into an absolute link.
// It returns "" for links that cannot point at an article (javascript:, mailto:, #).
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

// DedupeByURL keeps the first occurrence of every canonical link.
// Articles without a link are kept.
func DedupeByURL(in []Article) []Article {
	seen := make(map[string]struct{}, len(in))
	out := make([]Article, 0, len(in))
	for _, a := range in {
		if a.Link != "" {
			key := CanonicalURL(a.Link)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, a)
	}
	return out
}

// SortByPublished orders newest first; articles without a timestamp go last
// and keep their relative order.
func SortByPublished(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		a, b := articles[i].Published, articles[j].Published
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// ByCategory groups articles by perspective, keeping input order inside each group.
func ByCategory(articles []Article) map[Category][]Article {
	out := make(map[Category][]Article, len(Categories))
	for _, a := range articles {
		out[a.Category] = append(out[a.Category], a)
	}
	return out
}

// SourceNames returns the distinct source names in first-seen order.
func SourceNames(articles []Article) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, a := range articles {
		if _, ok := seen[a.Source]; ok {
			continue
		}
		seen[a.Source] = struct{}{}
		names = append(names, a.Source)
	}
	return names
}
