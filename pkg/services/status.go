package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/repositories"
)

// VocabularyStatus summarizes one source vocabulary's mapping progress.
type VocabularyStatus struct {
	SourceVocabularyID int64   `json:"source_vocabulary_id"`
	TotalConcepts      int64   `json:"total_concepts"`
	MappedConcepts     int64   `json:"mapped_concepts"`
	MappedPercentage   float64 `json:"mapped_percentage"`
}

// EngineStatus is the full status report across reference tables,
// embeddings and the audit log.
type EngineStatus struct {
	TableCounts     map[string]int64             `json:"table_counts"`
	Vocabularies    []*VocabularyStatus          `json:"vocabularies"`
	EmbeddingStatus *models.EmbeddingStatus      `json:"embedding_status"`
	MappingStats    []*models.MappingMethodStats `json:"mapping_stats"`
	RecentMappings  []*models.RecentMapping      `json:"recent_mappings"`
}

// StatusService aggregates the read-only status views.
type StatusService interface {
	// Report builds the full status. A non-empty domainFilter restricts
	// the embedding coverage figures to that domain.
	Report(ctx context.Context, collectionName, domainFilter string, recentLimit int) (*EngineStatus, error)
}

type statusService struct {
	vocabRepo     repositories.VocabularyImportRepository
	sourceRepo    repositories.SourceConceptRepository
	embeddingRepo repositories.EmbeddingRepository
	auditRepo     repositories.AuditRepository
	caches        *Caches
	logger        *zap.Logger
}

// NewStatusService creates a new StatusService. Vocabulary lists and
// embedding coverage are served through caches when one is provided.
func NewStatusService(
	vocabRepo repositories.VocabularyImportRepository,
	sourceRepo repositories.SourceConceptRepository,
	embeddingRepo repositories.EmbeddingRepository,
	auditRepo repositories.AuditRepository,
	caches *Caches,
	logger *zap.Logger,
) StatusService {
	return &statusService{
		vocabRepo:     vocabRepo,
		sourceRepo:    sourceRepo,
		embeddingRepo: embeddingRepo,
		auditRepo:     auditRepo,
		caches:        caches,
		logger:        logger.Named("status"),
	}
}

var _ StatusService = (*statusService)(nil)

func (s *statusService) Report(ctx context.Context, collectionName, domainFilter string, recentLimit int) (*EngineStatus, error) {
	counts, err := s.vocabRepo.TableCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count reference tables: %w", err)
	}

	vocabularies, err := s.vocabularyStatuses(ctx)
	if err != nil {
		return nil, err
	}

	statusKey := collectionName
	if domainFilter != "" {
		statusKey += "|" + domainFilter
	}
	embeddingStatus, err := s.caches.embeddingStatus(ctx, statusKey, func(ctx context.Context) (*models.EmbeddingStatus, error) {
		return s.embeddingRepo.StandardStatus(ctx, collectionName, domainFilter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check embedding status: %w", err)
	}

	stats, err := s.auditRepo.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping statistics: %w", err)
	}

	recent, err := s.auditRepo.Recent(ctx, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent mappings: %w", err)
	}

	return &EngineStatus{
		TableCounts:     counts,
		Vocabularies:    vocabularies,
		EmbeddingStatus: embeddingStatus,
		MappingStats:    stats,
		RecentMappings:  recent,
	}, nil
}

func (s *statusService) vocabularyStatuses(ctx context.Context) ([]*VocabularyStatus, error) {
	ids, err := s.caches.vocabularies(ctx, s.sourceRepo.ListVocabularies)
	if err != nil {
		return nil, fmt.Errorf("failed to list source vocabularies: %w", err)
	}

	statuses := make([]*VocabularyStatus, 0, len(ids))
	for _, id := range ids {
		total, mapped, err := s.sourceRepo.Counts(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count vocabulary %d: %w", id, err)
		}

		status := &VocabularyStatus{
			SourceVocabularyID: id,
			TotalConcepts:      total,
			MappedConcepts:     mapped,
		}
		if total > 0 {
			status.MappedPercentage = float64(mapped) / float64(total) * 100
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}
