// Package services implements the concept mapping pipeline: candidate
// retrieval, LLM arbitration, bulk embedding, and vocabulary import.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/llm"
	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/retry"
	"github.com/medmap-labs/medmap-engine/pkg/vector"
)

// VectorSearcher is the slice of the vector index used by retrieval.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, queryVector []float32, k int, filter *vector.Filter) ([]vector.ScoredPoint, error)
}

// RetrievalOptions narrows a candidate search.
type RetrievalOptions struct {
	// Domains restricts candidates to the given domain_id values.
	Domains []string

	// ATCCodes restricts candidates to concepts sharing at least one of
	// the given 7-character ATC codes.
	ATCCodes []string

	// Limit is the candidate pool size (k).
	Limit int
}

// CandidateRetriever finds ranked standard-concept candidates for a
// free-text term.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, term string, opts RetrievalOptions) ([]models.CandidateConcept, error)
}

type candidateRetriever struct {
	embedder   llm.LLMClient
	store      VectorSearcher
	collection string
	logger     *zap.Logger
}

// NewCandidateRetriever creates a retriever over one vector collection.
func NewCandidateRetriever(embedder llm.LLMClient, store VectorSearcher, collection string, logger *zap.Logger) CandidateRetriever {
	return &candidateRetriever{
		embedder:   embedder,
		store:      store,
		collection: collection,
		logger:     logger.Named("retrieval"),
	}
}

var _ CandidateRetriever = (*candidateRetriever)(nil)

// Retrieve embeds the term exactly once and runs one filtered similarity
// search against the collection. Filters apply server-side so the
// returned pool really holds the top k matching candidates.
func (r *candidateRetriever) Retrieve(ctx context.Context, term string, opts RetrievalOptions) ([]models.CandidateConcept, error) {
	if term == "" {
		return nil, fmt.Errorf("term is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 15
	}

	queryVector, err := retry.DoWithResultIfRetryable(ctx, retry.ExternalCallConfig(), func() ([]float32, error) {
		return r.embedder.CreateEmbedding(ctx, term)
	})
	if err != nil {
		return nil, fmt.Errorf("embed term: %w", err)
	}

	filter := vector.NewFilter()
	filter.Match("concept_kind", models.ConceptKindStandard)
	if len(opts.Domains) == 1 {
		filter.Match("domain_id", opts.Domains[0])
	} else if len(opts.Domains) > 1 {
		filter.MatchAny("domain_id", opts.Domains)
	}
	filter.MatchAny("atc7_codes", opts.ATCCodes)

	points, err := retry.DoWithResultIfRetryable(ctx, retry.ExternalCallConfig(), func() ([]vector.ScoredPoint, error) {
		return r.store.Search(ctx, r.collection, queryVector, opts.Limit, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}

	candidates := make([]models.CandidateConcept, 0, len(points))
	for _, p := range points {
		if vector.IsSourcePoint(p.ID) {
			continue
		}
		candidates = append(candidates, candidateFromPoint(p))
	}

	r.logger.Debug("Retrieved candidates",
		zap.String("term", term),
		zap.Int("count", len(candidates)),
		zap.Strings("domains", opts.Domains),
		zap.Int("atc_codes", len(opts.ATCCodes)))

	return candidates, nil
}

// candidateFromPoint rebuilds a candidate from the payload written at
// embedding time; no database round-trip is needed.
func candidateFromPoint(p vector.ScoredPoint) models.CandidateConcept {
	c := models.CandidateConcept{
		Score:     p.Score,
		ConceptID: vector.ConceptIDFromPoint(p.ID),
	}

	if text, ok := p.Payload["text"].(string); ok {
		c.ConceptName = text
	}

	meta, ok := p.Payload["metadata"].(map[string]any)
	if !ok {
		return c
	}

	if v, ok := meta["domain_id"].(string); ok {
		c.DomainID = v
	}
	if v, ok := meta["vocabulary_id"].(string); ok {
		c.VocabularyID = v
	}
	if v, ok := meta["concept_class_id"].(string); ok {
		c.ConceptClassID = v
	}
	if v, ok := meta["concept_code"].(string); ok {
		c.ConceptCode = v
	}
	if raw, ok := meta["atc7_codes"].([]any); ok {
		codes := make([]string, 0, len(raw))
		for _, item := range raw {
			if code, ok := item.(string); ok {
				codes = append(codes, code)
			}
		}
		c.ATCCodes = codes
	}

	return c
}
