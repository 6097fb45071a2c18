// Package search ranks catalog tools against a query, demoting tools with
// recent failures so clients are steered toward what currently works.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/observe"
)

// Facade is the search entry point. Each call snapshots the catalog, so
// tools registered mid-search appear from the next call onward, and the
// failure scores for one search are all taken at the same instant.
type Facade struct {
	catalog *catalog.Catalog
	bm25    *BM25
	metrics *observe.Metrics
	log     *slog.Logger

	// mu guards the tunables below, which SetConfig may swap at runtime.
	mu              sync.RWMutex
	ruleBased       *RuleBased
	failureWeight   float64
	defaultStrategy string
	defaultTopK     int
}

// FacadeConfig tunes the facade-owned strategies. Zero values keep the
// built-in defaults.
type FacadeConfig struct {
	FailureWeight   float64
	NameBoost       float64
	TagsBoost       float64
	DefaultStrategy string
	DefaultTopK     int
}

func NewFacade(c *catalog.Catalog) *Facade {
	return NewFacadeWith(c, FacadeConfig{})
}

func NewFacadeWith(c *catalog.Catalog, cfg FacadeConfig) *Facade {
	bm25 := NewBM25()
	if cfg.NameBoost > 0 {
		bm25.NameBoost = cfg.NameBoost
	}
	if cfg.TagsBoost > 0 {
		bm25.TagsBoost = cfg.TagsBoost
	}
	return &Facade{
		catalog:         c,
		ruleBased:       &RuleBased{FailureWeight: cfg.FailureWeight},
		bm25:            bm25,
		failureWeight:   cfg.FailureWeight,
		defaultStrategy: cfg.DefaultStrategy,
		defaultTopK:     cfg.DefaultTopK,
		metrics:         observe.DefaultMetrics(),
		log:             logger.ForComponent("search"),
	}
}

// Search ranks the catalog's tools against opts. Metadata ranking switches
// on automatically when any metadata constraint is set.
func (f *Facade) Search(ctx context.Context, opts Options) ([]Result, error) {
	specs := f.catalog.List()
	if opts.hasMetadataConstraints() {
		opts.UseMetadataRanking = true
	}

	f.mu.RLock()
	ruleBased := f.ruleBased
	failureWeight := f.failureWeight
	defaultStrategy := f.defaultStrategy
	defaultTopK := f.defaultTopK
	f.mu.RUnlock()

	if opts.TopK <= 0 && defaultTopK > 0 {
		opts.TopK = defaultTopK
	}

	strat, err := f.strategyFor(opts, specs, ruleBased, failureWeight, defaultStrategy)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rel := f.catalog.Reliability()
	failure := func(name string) float64 { return rel.FailureScore(name, now) }

	f.metrics.RecordSearch(ctx, strat.Name())
	return strat.Select(specs, opts, failure), nil
}

// SetConfig applies new tuning to subsequent searches. Safe to call while
// searches are in flight.
func (f *Facade) SetConfig(cfg FacadeConfig) {
	f.bm25.SetBoosts(cfg.NameBoost, cfg.TagsBoost)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleBased = &RuleBased{FailureWeight: cfg.FailureWeight}
	f.failureWeight = cfg.FailureWeight
	f.defaultStrategy = cfg.DefaultStrategy
	f.defaultTopK = cfg.DefaultTopK
}

func (f *Facade) strategyFor(opts Options, specs []*catalog.ToolSpec, ruleBased *RuleBased, failureWeight float64, defaultStrategy string) (Strategy, error) {
	name := opts.Strategy
	if name == "" {
		name = defaultStrategy
	}
	switch name {
	case "", StrategyRuleBased:
		return ruleBased, nil
	case StrategyHybrid:
		primary, err := f.bm25.Relevance(opts.Query, specs)
		if err != nil {
			f.log.Warn("full-text ranking unavailable, using lexical matching", "error", err)
			return ruleBased, nil
		}
		return &Hybrid{Primary: primary, Fallback: Lexical{}, FailureWeight: failureWeight}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", opts.Strategy)
	}
}

func (f *Facade) Close() error {
	return f.bm25.Close()
}
