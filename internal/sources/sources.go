// Package sources loads the static registry of news outlets.
package sources

import (
	"fmt"
	"os"
	"strings"

	"github.com/deusflow/hunews/internal/news"
	"gopkg.in/yaml.v3"
)

// Fetch strategies.
const (
	TypeFeed   = "feed"
	TypeCustom = "custom"
)

// Descriptor identifies one outlet and how to fetch it.
type Descriptor struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	Type      string        `yaml:"type"`
	FeedURL   string        `yaml:"feed_url,omitempty"`
	Extractor string        `yaml:"extractor,omitempty"`
	Category  news.Category `yaml:"-"`
}

// Settings mirrors the scraping limits of the source file.
type Settings struct {
	MaxArticlesPerSource int `yaml:"max_articles_per_source"`
	MaxArticleAgeHours   int `yaml:"max_article_age_hours"`
}

// File is the YAML structure:
//
//	settings:
//	  max_articles_per_source: 10
//	sources:
//	  right_wing:
//	    - name: Magyar Nemzet
//	      url: https://magyarnemzet.hu
//	      type: feed
//	      feed_url: https://magyarnemzet.hu/feed/
type File struct {
	Settings Settings                `yaml:"settings"`
	Sources  map[string][]Descriptor `yaml:"sources"`
}

// Registry is the validated, immutable source list for one run.
type Registry struct {
	settings    Settings
	descriptors []Descriptor
	byName      map[string]Descriptor
}

// Load reads and validates the source file at path.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return New(cfg)
}

// New validates cfg and builds a Registry from it.
func New(cfg File) (*Registry, error) {
	if cfg.Settings.MaxArticlesPerSource <= 0 {
		cfg.Settings.MaxArticlesPerSource = 10
	}
	if cfg.Settings.MaxArticleAgeHours <= 0 {
		cfg.Settings.MaxArticleAgeHours = 24
	}

	for key := range cfg.Sources {
		if !news.Category(key).Valid() {
			return nil, fmt.Errorf("unknown source category %q", key)
		}
	}

	r := &Registry{settings: cfg.Settings, byName: map[string]Descriptor{}}
	for _, cat := range news.Categories {
		for i, d := range cfg.Sources[string(cat)] {
			d.Category = cat
			d.Name = strings.TrimSpace(d.Name)
			d.Type = strings.ToLower(strings.TrimSpace(d.Type))
			if d.Type == "rss" {
				d.Type = TypeFeed
			}
			if err := validate(d); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", cat, i, err)
			}
			if _, dup := r.byName[d.Name]; dup {
				return nil, fmt.Errorf("%s[%d]: duplicate source name %q", cat, i, d.Name)
			}
			r.byName[d.Name] = d
			r.descriptors = append(r.descriptors, d)
		}
	}
	if len(r.descriptors) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	return r, nil
}

func validate(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("%s: url is required", d.Name)
	}
	switch d.Type {
	case TypeFeed:
		if strings.TrimSpace(d.FeedURL) == "" {
			return fmt.Errorf("%s: feed_url is required for type feed", d.Name)
		}
	case TypeCustom:
		if strings.TrimSpace(d.Extractor) == "" {
			return fmt.Errorf("%s: extractor is required for type custom", d.Name)
		}
	default:
		return fmt.Errorf("%s: unknown type %q", d.Name, d.Type)
	}
	return nil
}

// All returns descriptors grouped by category (right, left, independent), file order inside.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

func (r *Registry) Settings() Settings { return r.settings }

func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}
