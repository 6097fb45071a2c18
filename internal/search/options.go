package search

import "github.com/toolrack/toolrack/internal/catalog"

const (
	StrategyRuleBased = "rule-based"
	StrategyHybrid    = "hybrid"
)

const defaultTopK = 10

// Options narrows and ranks a tool search. Nil pointer constraints are
// unset; tools with unknown metadata pass every constraint they have no
// value for, so sparse catalogs are never filtered to nothing by accident.
type Options struct {
	// Query is matched against tool names, descriptions, and tags.
	Query string

	// Tags keeps only tools carrying every listed tag.
	Tags []string

	// Prefix keeps only tools whose name starts with it.
	Prefix string

	// TopK caps the result count. Zero means 10.
	TopK int

	// IgnoreFailures disables the reliability penalty, ranking purely by
	// relevance.
	IgnoreFailures bool

	// MaxCost excludes tools whose declared cost exceeds it.
	MaxCost *float64

	// LatencyBudgetMS excludes tools whose declared latency hint exceeds it.
	LatencyBudgetMS *int

	// AllowSideEffects set to false excludes tools declared side-effecting.
	AllowSideEffects *bool

	// Categories keeps only tools in one of the listed categories.
	Categories []string

	// UseMetadataRanking breaks score ties by cost then latency. It is
	// switched on automatically whenever a metadata constraint is set.
	UseMetadataRanking bool

	// Strategy picks the selection strategy. Empty means rule-based.
	Strategy string
}

func (o Options) hasMetadataConstraints() bool {
	return o.MaxCost != nil || o.LatencyBudgetMS != nil || o.AllowSideEffects != nil || len(o.Categories) > 0
}

func (o Options) topK() int {
	if o.TopK <= 0 {
		return defaultTopK
	}
	return o.TopK
}

// Result is one ranked tool with its score components.
type Result struct {
	Spec         *catalog.ToolSpec
	Score        float64
	Relevance    float64
	FailureScore float64
}
