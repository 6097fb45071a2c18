package search

import (
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/toolrack/toolrack/internal/catalog"
)

// Relevance scores how well a tool matches a query, in [0, 1].
type Relevance interface {
	Score(query string, spec *catalog.ToolSpec) float64
}

// RelevanceFunc adapts a plain function to the Relevance interface.
type RelevanceFunc func(query string, spec *catalog.ToolSpec) float64

func (f RelevanceFunc) Score(query string, spec *catalog.ToolSpec) float64 {
	return f(query, spec)
}

// fold normalizes text for matching: NFKC so width and compatibility
// variants collapse, then Unicode case folding.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// searchText is the corpus a tool is matched against.
func searchText(spec *catalog.ToolSpec) string {
	parts := []string{spec.Name, spec.Description}
	parts = append(parts, spec.Metadata.Tags...)
	return strings.Join(parts, " ")
}

// Lexical matches by folded substring first, then falls back to the best
// Jaro-Winkler similarity between the query and any corpus token. An empty
// query matches everything at full relevance.
type Lexical struct{}

func (Lexical) Score(query string, spec *catalog.ToolSpec) float64 {
	q := fold(strings.TrimSpace(query))
	text := fold(searchText(spec))
	if strings.Contains(text, q) {
		return 1.0
	}

	best := 0.0
	for _, token := range strings.Fields(text) {
		if s := matchr.JaroWinkler(q, token, false); s > best {
			best = s
		}
	}
	return best
}
