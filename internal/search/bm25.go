package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/toolrack/toolrack/internal/catalog"
)

type bmDoc struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// BM25 ranks tools with an in-memory full-text index. The index is cached
// under a fingerprint of the candidate set and rebuilt only when the set
// changes, so repeated searches against a stable catalog reuse it.
type BM25 struct {
	mu          sync.Mutex
	index       bleve.Index
	fingerprint string

	// NameBoost and TagsBoost weight matches in those fields over the
	// description. Zero means the defaults 3 and 2.
	NameBoost float64
	TagsBoost float64
}

func NewBM25() *BM25 {
	return &BM25{}
}

// Relevance runs the query once over the candidates and returns a Relevance
// that reads the normalized hit scores. Empty queries fall back to lexical
// matching, where everything scores full relevance.
func (b *BM25) Relevance(query string, specs []*catalog.ToolSpec) (Relevance, error) {
	if strings.TrimSpace(query) == "" {
		return Lexical{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureIndex(specs); err != nil {
		return nil, err
	}

	nameQ := bleve.NewMatchQuery(query)
	nameQ.SetField("name")
	nameQ.SetBoost(b.nameBoost())
	descQ := bleve.NewMatchQuery(query)
	descQ.SetField("description")
	tagsQ := bleve.NewMatchQuery(query)
	tagsQ.SetField("tags")
	tagsQ.SetBoost(b.tagsBoost())

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(nameQ, descQ, tagsQ))
	req.Size = len(specs)

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	scores := make(map[string]float64, len(res.Hits))
	if res.MaxScore > 0 {
		for _, hit := range res.Hits {
			scores[hit.ID] = hit.Score / res.MaxScore
		}
	}

	return RelevanceFunc(func(_ string, spec *catalog.ToolSpec) float64 {
		return scores[spec.Name]
	}), nil
}

// ensureIndex rebuilds the index when the candidate fingerprint changed.
// Caller holds b.mu.
func (b *BM25) ensureIndex(specs []*catalog.ToolSpec) error {
	fp := fingerprint(specs)
	if b.index != nil && fp == b.fingerprint {
		return nil
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("bm25 index: %w", err)
	}

	batch := idx.NewBatch()
	for _, spec := range specs {
		doc := bmDoc{Name: spec.Name, Description: spec.Description, Tags: spec.Metadata.Tags}
		if err := batch.Index(spec.Name, doc); err != nil {
			idx.Close()
			return fmt.Errorf("bm25 index %s: %w", spec.Name, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("bm25 batch: %w", err)
	}

	if b.index != nil {
		b.index.Close()
	}
	b.index = idx
	b.fingerprint = fp
	return nil
}

func (b *BM25) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	b.fingerprint = ""
	return err
}

// SetBoosts changes the field weights for subsequent queries. Use this
// instead of writing the fields once queries may be running.
func (b *BM25) SetBoosts(name, tags float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.NameBoost = name
	b.TagsBoost = tags
}

func (b *BM25) nameBoost() float64 {
	if b.NameBoost > 0 {
		return b.NameBoost
	}
	return 3
}

func (b *BM25) tagsBoost() float64 {
	if b.TagsBoost > 0 {
		return b.TagsBoost
	}
	return 2
}

// fingerprint hashes the fields that feed the index, with tags sorted so
// ordering differences alone do not force a rebuild.
func fingerprint(specs []*catalog.ToolSpec) string {
	h := sha256.New()
	for _, spec := range specs {
		h.Write([]byte(spec.Name))
		h.Write([]byte{0})
		h.Write([]byte(spec.Description))
		h.Write([]byte{0})
		sorted := slices.Clone(spec.Metadata.Tags)
		slices.Sort(sorted)
		h.Write([]byte(strings.Join(sorted, "\x01")))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
