package services

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/llm"
	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/repositories"
	"github.com/medmap-labs/medmap-engine/pkg/retry"
	"github.com/medmap-labs/medmap-engine/pkg/vector"
)

// VectorIndex is the subset of the vector store the embedder writes
// through.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	SetIndexing(ctx context.Context, collection string, enabled bool) error
	UpsertBatch(ctx context.Context, collection string, points []vector.Point) error
	DeleteCollection(ctx context.Context, collection string) error
}

// EmbedderConfig tunes the embedding pipeline.
type EmbedderConfig struct {
	CollectionName string
	EmbeddingModel string
	Dimensions     int

	// BatchSize is the number of texts sent per provider call.
	BatchSize int

	// PageSize is the number of pending concepts fetched per database
	// round trip. Each page fans out across the worker pool.
	PageSize int
}

// Embedder populates the vector collection from concepts that have not
// been embedded yet. Runs are resumable: progress is tracked per concept
// in the embedding status table.
type Embedder interface {
	// EmbedStandardConcepts embeds all pending standard concepts and
	// returns the number embedded. A non-empty domainID restricts the run
	// to that domain. A run with nothing pending is a no-op.
	EmbedStandardConcepts(ctx context.Context, domainID string, onProgress func(processed, total int64)) (int64, error)

	// EmbedSourceConcepts embeds all pending source terms of one
	// vocabulary into the same collection, under offset point IDs.
	EmbedSourceConcepts(ctx context.Context, sourceVocabularyID int64, onProgress func(processed, total int64)) (int64, error)

	// Reset drops the collection and clears its status rows, forcing the
	// next run to re-embed everything.
	Reset(ctx context.Context) error
}

type embedder struct {
	provider llm.LLMClient
	index    VectorIndex
	repo     repositories.EmbeddingRepository
	atcRepo  repositories.ATCRepository
	pool     *llm.WorkerPool
	caches   *Caches
	cfg      EmbedderConfig
	logger   *zap.Logger
}

// NewEmbedder creates a new Embedder.
func NewEmbedder(
	provider llm.LLMClient,
	index VectorIndex,
	repo repositories.EmbeddingRepository,
	atcRepo repositories.ATCRepository,
	caches *Caches,
	cfg EmbedderConfig,
	logger *zap.Logger,
) Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = provider.GetEmbeddingModel()
	}

	return &embedder{
		provider: provider,
		index:    index,
		repo:     repo,
		atcRepo:  atcRepo,
		pool:     llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger),
		caches:   caches,
		cfg:      cfg,
		logger:   logger.Named("embedder"),
	}
}

var _ Embedder = (*embedder)(nil)

// chunkResult carries one embedded batch back from the worker pool.
type chunkResult struct {
	points  []vector.Point
	records []*models.EmbeddedConcept
}

func (s *embedder) EmbedStandardConcepts(ctx context.Context, domainID string, onProgress func(processed, total int64)) (int64, error) {
	status, err := s.repo.StandardStatus(ctx, s.cfg.CollectionName, domainID)
	if err != nil {
		return 0, fmt.Errorf("failed to check embedding status: %w", err)
	}
	if status.Pending == 0 {
		s.logger.Info("All standard concepts already embedded",
			zap.String("collection", s.cfg.CollectionName),
			zap.String("domain", domainID),
			zap.Int64("embedded", status.Embedded))
		return 0, nil
	}

	fetch := func(ctx context.Context) ([]chunkResult, error) {
		pending, err := s.repo.FetchPendingStandard(ctx, s.cfg.CollectionName, domainID, s.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pending concepts: %w", err)
		}
		return s.embedStandardPage(ctx, pending)
	}

	return s.run(ctx, status.Pending, fetch, onProgress)
}

func (s *embedder) EmbedSourceConcepts(ctx context.Context, sourceVocabularyID int64, onProgress func(processed, total int64)) (int64, error) {
	status, err := s.repo.SourceStatus(ctx, s.cfg.CollectionName, sourceVocabularyID)
	if err != nil {
		return 0, fmt.Errorf("failed to check embedding status: %w", err)
	}
	if status.Pending == 0 {
		s.logger.Info("All source concepts already embedded",
			zap.String("collection", s.cfg.CollectionName),
			zap.Int64("source_vocabulary_id", sourceVocabularyID))
		return 0, nil
	}

	fetch := func(ctx context.Context) ([]chunkResult, error) {
		pending, err := s.repo.FetchPendingSource(ctx, s.cfg.CollectionName, sourceVocabularyID, s.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pending source concepts: %w", err)
		}
		return s.embedSourcePage(ctx, pending, sourceVocabularyID)
	}

	return s.run(ctx, status.Pending, fetch, onProgress)
}

// run drives paged embedding with collection indexing disabled for the
// duration of the bulk write. Indexing is re-enabled even when the run
// fails part way.
func (s *embedder) run(ctx context.Context, total int64, fetch func(ctx context.Context) ([]chunkResult, error), onProgress func(processed, total int64)) (processed int64, err error) {
	if err := s.index.EnsureCollection(ctx, s.cfg.CollectionName, s.cfg.Dimensions); err != nil {
		return 0, fmt.Errorf("failed to ensure collection: %w", err)
	}

	if err := s.index.SetIndexing(ctx, s.cfg.CollectionName, false); err != nil {
		return 0, fmt.Errorf("failed to pause indexing: %w", err)
	}
	defer func() {
		if reErr := s.index.SetIndexing(context.WithoutCancel(ctx), s.cfg.CollectionName, true); reErr != nil {
			s.logger.Error("Failed to re-enable indexing",
				zap.String("collection", s.cfg.CollectionName),
				zap.Error(reErr))
			if err == nil {
				err = fmt.Errorf("failed to re-enable indexing: %w", reErr)
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		chunks, err := fetch(ctx)
		if err != nil {
			return processed, err
		}
		if len(chunks) == 0 {
			break
		}

		for _, chunk := range chunks {
			if err := s.index.UpsertBatch(ctx, s.cfg.CollectionName, chunk.points); err != nil {
				return processed, fmt.Errorf("failed to upsert vectors: %w", err)
			}
			if err := s.repo.UpsertBatch(ctx, chunk.records); err != nil {
				return processed, fmt.Errorf("failed to record embeddings: %w", err)
			}
			processed += int64(len(chunk.points))
			if onProgress != nil {
				onProgress(processed, total)
			}
		}
	}

	if processed > 0 {
		s.caches.invalidateEmbeddingStatus()
	}

	s.logger.Info("Embedding run finished",
		zap.String("collection", s.cfg.CollectionName),
		zap.Int64("embedded", processed))

	return processed, nil
}

// embedStandardPage embeds one page of standard concepts, fanning the
// provider calls across the worker pool.
func (s *embedder) embedStandardPage(ctx context.Context, pending []*models.StandardConcept) ([]chunkResult, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(pending))
	for i, c := range pending {
		ids[i] = c.ConceptID
	}
	atcCodes, err := s.atcRepo.GetCodes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load ATC codes: %w", err)
	}

	var items []llm.WorkItem[chunkResult]
	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(pending))
		batch := pending[start:end]

		items = append(items, llm.WorkItem[chunkResult]{
			ID: strconv.Itoa(start),
			Execute: func(ctx context.Context) (chunkResult, error) {
				return s.embedStandardChunk(ctx, batch, atcCodes)
			},
		})
	}

	return collectChunks(llm.Process(ctx, s.pool, items, nil))
}

func (s *embedder) embedStandardChunk(ctx context.Context, batch []*models.StandardConcept, atcCodes map[int64][]string) (chunkResult, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.ConceptName
	}

	vectors, err := retry.DoWithResultIfRetryable(ctx, retry.ExternalCallConfig(), func() ([][]float32, error) {
		return s.provider.CreateEmbeddings(ctx, texts)
	})
	if err != nil {
		return chunkResult{}, fmt.Errorf("failed to embed concepts: %w", err)
	}
	if len(vectors) != len(batch) {
		return chunkResult{}, fmt.Errorf("provider returned %d embeddings for %d texts", len(vectors), len(batch))
	}

	result := chunkResult{
		points:  make([]vector.Point, len(batch)),
		records: make([]*models.EmbeddedConcept, len(batch)),
	}
	for i, c := range batch {
		metadata := map[string]any{
			"concept_kind":     models.ConceptKindStandard,
			"domain_id":        c.DomainID,
			"vocabulary_id":    c.VocabularyID,
			"concept_class_id": c.ConceptClassID,
			"concept_code":     c.ConceptCode,
		}
		if codes := atcCodes[c.ConceptID]; len(codes) > 0 {
			metadata["atc7_codes"] = codes
		}

		result.points[i] = vector.Point{
			ID:      c.ConceptID,
			Vector:  vectors[i],
			Payload: vector.NewPayload(c.ConceptName, metadata),
		}
		result.records[i] = &models.EmbeddedConcept{
			ConceptID:      c.ConceptID,
			CollectionName: s.cfg.CollectionName,
			EmbeddingModel: s.cfg.EmbeddingModel,
			ConceptType:    models.ConceptKindStandard,
		}
	}

	return result, nil
}

func (s *embedder) embedSourcePage(ctx context.Context, pending []*models.SourceConcept, sourceVocabularyID int64) ([]chunkResult, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	var items []llm.WorkItem[chunkResult]
	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(pending))
		batch := pending[start:end]

		items = append(items, llm.WorkItem[chunkResult]{
			ID: strconv.Itoa(start),
			Execute: func(ctx context.Context) (chunkResult, error) {
				return s.embedSourceChunk(ctx, batch, sourceVocabularyID)
			},
		})
	}

	return collectChunks(llm.Process(ctx, s.pool, items, nil))
}

func (s *embedder) embedSourceChunk(ctx context.Context, batch []*models.SourceConcept, sourceVocabularyID int64) (chunkResult, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.SourceConceptName
	}

	vectors, err := retry.DoWithResultIfRetryable(ctx, retry.ExternalCallConfig(), func() ([][]float32, error) {
		return s.provider.CreateEmbeddings(ctx, texts)
	})
	if err != nil {
		return chunkResult{}, fmt.Errorf("failed to embed source concepts: %w", err)
	}
	if len(vectors) != len(batch) {
		return chunkResult{}, fmt.Errorf("provider returned %d embeddings for %d texts", len(vectors), len(batch))
	}

	result := chunkResult{
		points:  make([]vector.Point, len(batch)),
		records: make([]*models.EmbeddedConcept, len(batch)),
	}
	for i, c := range batch {
		vocabID := sourceVocabularyID
		result.points[i] = vector.Point{
			ID:     vector.SourcePointID(c.SourceID),
			Vector: vectors[i],
			Payload: vector.NewPayload(c.SourceConceptName, map[string]any{
				"concept_kind":         models.ConceptKindSource,
				"source_vocabulary_id": sourceVocabularyID,
			}),
		}
		result.records[i] = &models.EmbeddedConcept{
			ConceptID:          c.SourceID,
			CollectionName:     s.cfg.CollectionName,
			EmbeddingModel:     s.cfg.EmbeddingModel,
			ConceptType:        models.ConceptKindSource,
			SourceVocabularyID: &vocabID,
		}
	}

	return result, nil
}

func (s *embedder) Reset(ctx context.Context) error {
	if err := s.index.DeleteCollection(ctx, s.cfg.CollectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	removed, err := s.repo.Reset(ctx, s.cfg.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to reset embedding records: %w", err)
	}
	s.caches.invalidateEmbeddingStatus()

	s.logger.Info("Reset embedding collection",
		zap.String("collection", s.cfg.CollectionName),
		zap.Int64("records_removed", removed))

	return nil
}

// collectChunks unwraps worker pool results, failing on the first chunk
// error. Partial pages are not written when any chunk fails.
func collectChunks(results []llm.WorkResult[chunkResult]) ([]chunkResult, error) {
	chunks := make([]chunkResult, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("embedding batch %s failed: %w", res.ID, res.Err)
		}
		chunks = append(chunks, res.Result)
	}
	return chunks, nil
}
