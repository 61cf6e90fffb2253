package app

import (
	"fmt"
	"strings"

	"github.com/deusflow/hunews/internal/archive"
)

// FormatDigest renders a short console preview of a written document,
// at most max stories.
func FormatDigest(doc *archive.Document, max int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hírösszefoglaló / News digest %s\n", doc.Date)
	b.WriteString(strings.Repeat("━", 40) + "\n\n")

	for i, s := range doc.Stories {
		if i >= max {
			fmt.Fprintf(&b, "... and %d more\n\n", len(doc.Stories)-max)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.TitleHU)
		if s.TitleEN != s.TitleHU {
			fmt.Fprintf(&b, "   %s\n", s.TitleEN)
		}
		fmt.Fprintf(&b, "   Sources: %s\n", strings.Join(s.SourcesAnalyzed, ", "))
		if len(s.KeyFacts) > 0 {
			fmt.Fprintf(&b, "   Key facts: %d\n", len(s.KeyFacts))
		}
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("━", 40) + "\n")
	fmt.Fprintf(&b, "%d sources | %s | %s\n", doc.Metadata.SourcesScraped, doc.Metadata.AIModel, doc.Metadata.GenerationTime)
	return b.String()
}
