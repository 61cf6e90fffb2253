package gemini

import (
	"fmt"
	"strings"

	"github.com/deusflow/hunews/internal/news"
)

const instructions = `You are a professional journalist creating unbiased news synthesis for Hungarian readers.

You will receive news articles from different political perspectives:
- Right-wing/Government-aligned sources
- Left-wing/Opposition sources
- Independent sources

Your task:
1. Identify the top 2-3 most important news stories of the day
2. For each story, analyze how different sources cover it
3. Create a neutral, fact-based synthesis that presents the truth without political bias
4. Provide both Hungarian and English versions
5. Cite which sources reported what

IMPORTANT: You MUST return ONLY valid, complete JSON. Do not truncate. Complete all fields.

Guidelines:
- Be strictly neutral and objective
- Focus on verifiable facts
- When sources report different facts, state the disagreement and attribute each version; do not pick a side
- Avoid inflammatory language
- Present multiple perspectives fairly
- If only one side reports something, note this explicitly
- sources_analyzed may only contain names from this list: %s

Output format: JSON with this structure:
{
  "stories": [
    {
      "title_hu": "Hungarian title",
      "title_en": "English title",
      "summary_hu": "Detailed neutral summary in Hungarian (2-3 paragraphs)",
      "summary_en": "Detailed neutral summary in English (2-3 paragraphs)",
      "sources_analyzed": ["Source1", "Source2"],
      "perspective_comparison_hu": "How different sources covered this, in Hungarian (1 paragraph)",
      "perspective_comparison_en": "How different sources covered this, in English (1 paragraph)",
      "key_facts": ["Fact 1", "Fact 2", "Fact 3"]
    }
  ],
  "methodology_note_hu": "Brief note on synthesis methodology in Hungarian",
  "methodology_note_en": "Brief note on synthesis methodology in English"
}

Here are today's articles:
`

// BuildPrompt renders the synthesis prompt with articles grouped under
// their category headings. Categories without articles keep their heading.
func BuildPrompt(articles []news.Article) string {
	var b strings.Builder

	names := news.SourceNames(articles)
	fmt.Fprintf(&b, instructions, strings.Join(names, ", "))

	grouped := news.ByCategory(articles)
	for _, c := range news.Categories {
		fmt.Fprintf(&b, "\n=== %s ===\n", c.Label())
		for _, a := range grouped[c] {
			fmt.Fprintf(&b, "\nSource: %s\n", a.Source)
			fmt.Fprintf(&b, "Title: %s\n", a.Title)
			if a.Published != nil {
				fmt.Fprintf(&b, "Published: %s\n", a.Published.Format("2006-01-02 15:04"))
			}
			if a.Summary != "" {
				fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
			}
			fmt.Fprintf(&b, "Link: %s\n", a.Link)
		}
	}

	b.WriteString("\n\nNow create the neutral synthesis in JSON format:")
	return b.String()
}
