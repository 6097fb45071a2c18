package search

import (
	"context"

	"github.com/toolrack/toolrack/internal/catalog"
)

type searchArgs struct {
	Query            string   `json:"query,omitempty" description:"Free-text query matched against tool names, descriptions, and tags."`
	Tags             []string `json:"tags,omitempty" description:"Require every listed tag."`
	Prefix           string   `json:"prefix,omitempty" description:"Require tool names to start with this prefix."`
	TopK             int      `json:"top_k,omitempty" description:"Maximum number of results, default 10."`
	MaxCost          *float64 `json:"max_cost,omitempty" description:"Exclude tools declaring a higher cost."`
	LatencyBudgetMS  *int     `json:"latency_budget_ms,omitempty" description:"Exclude tools declaring a higher latency hint."`
	AllowSideEffects *bool    `json:"allow_side_effects,omitempty" description:"Set to false to exclude side-effecting tools."`
	Categories       []string `json:"categories,omitempty" description:"Keep only tools in these categories."`
	Strategy         string   `json:"strategy,omitempty" description:"Selection strategy: rule-based or hybrid."`
	IgnoreFailures   bool     `json:"ignore_failures,omitempty" description:"Rank by relevance only, without the reliability penalty."`
}

type toolSummary struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Cost          *float64 `json:"cost,omitempty"`
	LatencyHintMS *int     `json:"latency_hint_ms,omitempty"`
	SideEffect    *bool    `json:"side_effect,omitempty"`
	Category      string   `json:"category,omitempty"`
	Score         float64  `json:"score"`
}

type searchReply struct {
	Tools []toolSummary `json:"tools"`
	Count int           `json:"count"`
}

// RegisterSearchTool exposes the facade as the catalog.search tool, so
// clients discover tools over the same protocol they call them with.
func RegisterSearchTool(c *catalog.Catalog, f *Facade) error {
	_, err := catalog.RegisterFunc(c, "catalog.search",
		"Find registered tools ranked by query relevance and recent reliability.",
		catalog.Metadata{
			Cost:       catalog.Float(0),
			SideEffect: catalog.Bool(false),
			Category:   "system",
			Tags:       []string{"search", "discovery"},
		},
		func(ctx context.Context, in searchArgs) (searchReply, error) {
			results, err := f.Search(ctx, Options{
				Query:            in.Query,
				Tags:             in.Tags,
				Prefix:           in.Prefix,
				TopK:             in.TopK,
				MaxCost:          in.MaxCost,
				LatencyBudgetMS:  in.LatencyBudgetMS,
				AllowSideEffects: in.AllowSideEffects,
				Categories:       in.Categories,
				Strategy:         in.Strategy,
				IgnoreFailures:   in.IgnoreFailures,
			})
			if err != nil {
				return searchReply{}, err
			}

			reply := searchReply{Tools: make([]toolSummary, 0, len(results)), Count: len(results)}
			for _, r := range results {
				m := r.Spec.Metadata
				reply.Tools = append(reply.Tools, toolSummary{
					Name:          r.Spec.Name,
					Description:   r.Spec.Description,
					Tags:          m.Tags,
					Cost:          m.Cost,
					LatencyHintMS: m.LatencyHintMS,
					SideEffect:    m.SideEffect,
					Category:      m.Category,
					Score:         r.Score,
				})
			}
			return reply, nil
		})
	return err
}
