package search

import (
	"cmp"
	"slices"
	"sort"
	"strings"

	"github.com/toolrack/toolrack/internal/catalog"
)

const defaultFailureWeight = 1.0

// Strategy turns a candidate snapshot into a ranked, truncated result list.
// failureScore returns the decayed failure score for a tool name; strategies
// subtract it from relevance so flaky tools sink without disappearing.
type Strategy interface {
	Name() string
	Select(candidates []*catalog.ToolSpec, opts Options, failureScore func(string) float64) []Result
}

// RuleBased filters on the options' constraints, scores each survivor as
// relevance minus weighted failure score, and orders by score descending
// with deterministic tie-breaks.
type RuleBased struct {
	// Relevance defaults to Lexical.
	Relevance Relevance

	// FailureWeight scales the reliability penalty. Zero means 1.0.
	FailureWeight float64
}

func (s *RuleBased) Name() string { return StrategyRuleBased }

func (s *RuleBased) Select(candidates []*catalog.ToolSpec, opts Options, failureScore func(string) float64) []Result {
	rel := s.Relevance
	if rel == nil {
		rel = Lexical{}
	}
	weight := s.FailureWeight
	if weight <= 0 {
		weight = defaultFailureWeight
	}

	results := make([]Result, 0, len(candidates))
	for _, spec := range candidates {
		if !matchesFilters(spec, opts) {
			continue
		}
		r := Result{Spec: spec, Relevance: rel.Score(opts.Query, spec)}
		if !opts.IgnoreFailures && failureScore != nil {
			r.FailureScore = failureScore(spec.Name)
		}
		r.Score = r.Relevance - weight*r.FailureScore
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if opts.UseMetadataRanking {
			if c := comparePtr(a.Spec.Metadata.Cost, b.Spec.Metadata.Cost); c != 0 {
				return c < 0
			}
			if c := comparePtr(a.Spec.Metadata.LatencyHintMS, b.Spec.Metadata.LatencyHintMS); c != 0 {
				return c < 0
			}
		}
		return a.Spec.Name < b.Spec.Name
	})

	if k := opts.topK(); len(results) > k {
		results = results[:k]
	}
	return results
}

// matchesFilters applies the defined-only constraint rules: a tool is
// excluded only when it declares a value that violates the constraint.
func matchesFilters(spec *catalog.ToolSpec, opts Options) bool {
	if opts.Prefix != "" && !strings.HasPrefix(spec.Name, opts.Prefix) {
		return false
	}
	for _, tag := range opts.Tags {
		if !spec.Metadata.HasTag(tag) {
			return false
		}
	}
	m := spec.Metadata
	if opts.MaxCost != nil && m.Cost != nil && *m.Cost > *opts.MaxCost {
		return false
	}
	if opts.LatencyBudgetMS != nil && m.LatencyHintMS != nil && *m.LatencyHintMS > *opts.LatencyBudgetMS {
		return false
	}
	if opts.AllowSideEffects != nil && !*opts.AllowSideEffects && m.SideEffect != nil && *m.SideEffect {
		return false
	}
	if len(opts.Categories) > 0 && m.Category != "" && !slices.Contains(opts.Categories, m.Category) {
		return false
	}
	return true
}

// comparePtr orders pointer-valued metadata with unknowns last.
func comparePtr[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*a, *b)
	}
}

// Hybrid scores with a primary ranking signal, falling back per tool to a
// lexical match when the primary has no opinion. Filtering, penalties, and
// ordering follow the rule-based strategy.
type Hybrid struct {
	Primary       Relevance
	Fallback      Relevance
	FailureWeight float64
}

func (s *Hybrid) Name() string { return StrategyHybrid }

func (s *Hybrid) Select(candidates []*catalog.ToolSpec, opts Options, failureScore func(string) float64) []Result {
	fallback := s.Fallback
	if fallback == nil {
		fallback = Lexical{}
	}
	primary := s.Primary

	blended := RelevanceFunc(func(query string, spec *catalog.ToolSpec) float64 {
		if primary != nil {
			if score := primary.Score(query, spec); score > 0 {
				return score
			}
		}
		return fallback.Score(query, spec)
	})

	rb := &RuleBased{Relevance: blended, FailureWeight: s.FailureWeight}
	return rb.Select(candidates, opts, failureScore)
}
