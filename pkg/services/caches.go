package services

import (
	"context"

	"github.com/medmap-labs/medmap-engine/pkg/cache"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// Caches holds the read-through caches shared across services. Readers
// go through them; mutating services invalidate them. A nil *Caches
// disables caching entirely.
type Caches struct {
	// Vocabularies caches the list of known source vocabulary IDs.
	// Invalidated by source concept imports.
	Vocabularies *cache.Value[[]int64]

	// EmbeddingStatus caches standard embedding coverage, keyed by
	// collection plus optional domain filter. Invalidated by embedding
	// runs and resets.
	EmbeddingStatus *cache.Map[*models.EmbeddingStatus]
}

// NewCaches creates the shared cache set with default TTLs.
func NewCaches() *Caches {
	return &Caches{
		Vocabularies:    cache.NewValue[[]int64](0),
		EmbeddingStatus: cache.NewMap[*models.EmbeddingStatus](0),
	}
}

func (c *Caches) vocabularies(ctx context.Context, load func(ctx context.Context) ([]int64, error)) ([]int64, error) {
	if c == nil || c.Vocabularies == nil {
		return load(ctx)
	}
	return c.Vocabularies.Get(ctx, load)
}

func (c *Caches) invalidateVocabularies() {
	if c != nil && c.Vocabularies != nil {
		c.Vocabularies.Invalidate()
	}
}

func (c *Caches) embeddingStatus(ctx context.Context, key string, load func(ctx context.Context) (*models.EmbeddingStatus, error)) (*models.EmbeddingStatus, error) {
	if c == nil || c.EmbeddingStatus == nil {
		return load(ctx)
	}
	return c.EmbeddingStatus.Get(ctx, key, load)
}

// invalidateEmbeddingStatus drops every cached coverage entry: a run or
// reset against one collection also moves its domain-filtered figures.
func (c *Caches) invalidateEmbeddingStatus() {
	if c != nil && c.EmbeddingStatus != nil {
		c.EmbeddingStatus.Invalidate()
	}
}
