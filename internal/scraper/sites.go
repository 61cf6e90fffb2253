package scraper

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/hunews/internal/news"
)

// origoExtractor reads the origo.hu front page.
type origoExtractor struct{}

func (origoExtractor) Name() string { return "origo" }

func (origoExtractor) Extract(doc *goquery.Document, base *url.URL, limit int) ([]news.Article, error) {
	selectors := []string{
		"article",
		"div.article-item",
		"div.news-item",
	}
	return collect(doc, base, limit, selectors, element{
		titleSel:   "h1, h2, h3, a",
		summarySel: ".summary, .lead, .description",
	}), nil
}

// extractor888 reads the 888.hu front page. Its markup has no stable
// article container, so class fragments and link patterns are tried.
type extractor888 struct{}

func (extractor888) Name() string { return "888" }

func (extractor888) Extract(doc *goquery.Document, base *url.URL, limit int) ([]news.Article, error) {
	selectors := []string{
		"article, div[class*='article'], div[class*='post'], div[class*='news']",
		"a[href*='/hir/'], a[href*='/cikk/']",
	}
	return collect(doc, base, limit, selectors, element{
		titleSel:    "h1, h2, h3, h4, a, span",
		summarySel:  "[class*='summary'], [class*='excerpt']",
		minTitleLen: 10,
	}), nil
}

// genericExtractor is a best-effort reader for sites without a dedicated extractor.
type genericExtractor struct{}

func (genericExtractor) Name() string { return "generic" }

func (genericExtractor) Extract(doc *goquery.Document, base *url.URL, limit int) ([]news.Article, error) {
	selectors := []string{
		"article",
		".article",
		".post",
		"main h2 a",
		"h2 a",
		"h3 a",
	}
	return collect(doc, base, limit, selectors, element{
		titleSel:    "h1, h2, h3, .title, .headline, a",
		summarySel:  "p, .lead, .excerpt",
		minTitleLen: 10,
	}), nil
}
