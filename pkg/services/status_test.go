package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/models"
)

func TestReport_AggregatesAllViews(t *testing.T) {
	vocabRepo := &mockVocabImportRepo{TableCountsFunc: func(ctx context.Context) (map[string]int64, error) {
		return map[string]int64{"concept": 1000, "concept_relationship": 5000}, nil
	}}
	sourceRepo := &mockSourceRepo{
		ListVocabulariesFunc: func(ctx context.Context) ([]int64, error) {
			return []int64{1, 2}, nil
		},
		CountsFunc: func(ctx context.Context, vocabID int64) (int64, int64, error) {
			if vocabID == 1 {
				return 200, 50, nil
			}
			return 0, 0, nil
		},
	}
	embeddingRepo := &mockEmbeddingRepo{StandardStatusFunc: func(ctx context.Context, collection, domainID string) (*models.EmbeddingStatus, error) {
		assert.Equal(t, "concepts_test", collection)
		assert.Empty(t, domainID)
		return &models.EmbeddingStatus{Total: 1000, Embedded: 600, Pending: 400, Percentage: 60}, nil
	}}
	auditRepo := &mockAuditRepo{
		StatisticsFunc: func(ctx context.Context) ([]*models.MappingMethodStats, error) {
			return []*models.MappingMethodStats{{MappingMethod: models.MethodAutoStandard, MappingCount: 40, AvgConfidence: 8.9}}, nil
		},
		RecentFunc: func(ctx context.Context, limit int) ([]*models.RecentMapping, error) {
			assert.Equal(t, 5, limit)
			return []*models.RecentMapping{{SourceConceptName: "dm2", MappedConceptName: "Type 2 diabetes mellitus"}}, nil
		},
	}

	svc := NewStatusService(vocabRepo, sourceRepo, embeddingRepo, auditRepo, nil, zap.NewNop())
	report, err := svc.Report(context.Background(), "concepts_test", "", 5)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), report.TableCounts["concept"])

	require.Len(t, report.Vocabularies, 2)
	assert.Equal(t, int64(1), report.Vocabularies[0].SourceVocabularyID)
	assert.Equal(t, int64(200), report.Vocabularies[0].TotalConcepts)
	assert.Equal(t, int64(50), report.Vocabularies[0].MappedConcepts)
	assert.InDelta(t, 25.0, report.Vocabularies[0].MappedPercentage, 0.001)
	// An empty vocabulary reports zero percent, not NaN.
	assert.Zero(t, report.Vocabularies[1].MappedPercentage)

	assert.Equal(t, int64(600), report.EmbeddingStatus.Embedded)
	require.Len(t, report.MappingStats, 1)
	require.Len(t, report.RecentMappings, 1)
}

func TestReport_DomainFilterScopesEmbeddingStatus(t *testing.T) {
	byDomain := map[string]*models.EmbeddingStatus{
		"":     {Total: 1000, Embedded: 600},
		"Drug": {Total: 300, Embedded: 120},
	}
	embeddingRepo := &mockEmbeddingRepo{StandardStatusFunc: func(ctx context.Context, collection, domainID string) (*models.EmbeddingStatus, error) {
		return byDomain[domainID], nil
	}}

	svc := NewStatusService(&mockVocabImportRepo{}, &mockSourceRepo{}, embeddingRepo, &mockAuditRepo{}, NewCaches(), zap.NewNop())

	report, err := svc.Report(context.Background(), "concepts_test", "Drug", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(300), report.EmbeddingStatus.Total)

	// The unfiltered report keeps its own cache entry.
	report, err = svc.Report(context.Background(), "concepts_test", "", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), report.EmbeddingStatus.Total)
}
