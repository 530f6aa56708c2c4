package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

func intPtr(v int) *int { return &v }

func TestMappingRepository_MapAndRemap(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedConcept(t, db, 100, "Metformin", "Drug", "RxNorm", "Ingredient", "6809", "S")
	seedConcept(t, db, 200, "Metformin 500mg", "Drug", "RxNorm", "Clinical Drug", "860974", "S")
	sourceID := seedSourceConcept(t, db, "METF500", "metformina 500", 1, 42)

	repo := NewMappingRepository(db)
	sourceRepo := NewSourceConceptRepository(db)
	auditRepo := NewAuditRepository(db)

	err := repo.Map(ctx, sourceID, []int64{100}, &models.MappingAuditRecord{
		ConfidenceScore: intPtr(9),
		MappingMethod:   models.MethodAutoDrug,
		TargetDomains:   []string{"Drug"},
	})
	require.NoError(t, err)

	sc, err := sourceRepo.GetByID(ctx, sourceID)
	require.NoError(t, err)
	assert.True(t, sc.Mapped)

	ids, err := repo.GetConceptIDs(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, ids)

	// Re-mapping replaces the live rows but retains audit history
	err = repo.Map(ctx, sourceID, []int64{200}, &models.MappingAuditRecord{
		MappingMethod: models.MethodManual,
		TargetDomains: []string{"Drug"},
	})
	require.NoError(t, err)

	ids, err = repo.GetConceptIDs(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, ids)

	history, err := auditRepo.History(ctx, sourceID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.MethodManual, history[0].MappingMethod)
	assert.Nil(t, history[0].ConfidenceScore)
	assert.Equal(t, models.MethodAutoDrug, history[1].MappingMethod)
	require.NotNil(t, history[1].ConfidenceScore)
	assert.Equal(t, 9, *history[1].ConfidenceScore)
}

func TestMappingRepository_MapMultipleConcepts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedConcept(t, db, 100, "Metformin", "Drug", "RxNorm", "Ingredient", "6809", "S")
	seedConcept(t, db, 200, "Glibenclamide", "Drug", "RxNorm", "Ingredient", "4815", "S")
	sourceID := seedSourceConcept(t, db, "COMBO", "metformin + glibenclamide", 1, 7)

	repo := NewMappingRepository(db)

	err := repo.Map(ctx, sourceID, []int64{100, 200}, &models.MappingAuditRecord{
		ConfidenceScore: intPtr(8),
		MappingMethod:   models.MethodAutoDrug,
		TargetDomains:   []string{"Drug"},
	})
	require.NoError(t, err)

	ids, err := repo.GetConceptIDs(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, ids)

	history, err := NewAuditRepository(db).History(ctx, sourceID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMappingRepository_MapValidation(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	repo := NewMappingRepository(db)

	err := repo.Map(ctx, 1, nil, &models.MappingAuditRecord{MappingMethod: models.MethodManual})
	require.Error(t, err)

	err = repo.Map(ctx, 1, []int64{100}, nil)
	require.Error(t, err)

	// Unknown source concept rolls back without partial writes
	seedConcept(t, db, 100, "Metformin", "Drug", "RxNorm", "Ingredient", "6809", "S")
	err = repo.Map(ctx, 99999, []int64{100}, &models.MappingAuditRecord{MappingMethod: models.MethodManual})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMappingRepository_Unmap(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedConcept(t, db, 100, "Metformin", "Drug", "RxNorm", "Ingredient", "6809", "S")
	sourceID := seedSourceConcept(t, db, "METF", "metformina", 1, 10)

	repo := NewMappingRepository(db)
	require.NoError(t, repo.Map(ctx, sourceID, []int64{100}, &models.MappingAuditRecord{
		MappingMethod: models.MethodManual,
		TargetDomains: []string{"Drug"},
	}))

	require.NoError(t, repo.Unmap(ctx, sourceID))

	ids, err := repo.GetConceptIDs(ctx, sourceID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	sc, err := NewSourceConceptRepository(db).GetByID(ctx, sourceID)
	require.NoError(t, err)
	assert.False(t, sc.Mapped)

	// Audit history survives the unmap
	history, err := NewAuditRepository(db).History(ctx, sourceID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	err = repo.Unmap(ctx, 99999)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMappingRepository_GetMapped(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedConcept(t, db, 100, "Metformin", "Drug", "RxNorm", "Ingredient", "6809", "S")
	seedConcept(t, db, 200, "Aspirin", "Drug", "RxNorm", "Ingredient", "1191", "S")
	lowFreq := seedSourceConcept(t, db, "ASP", "aspirina", 1, 3)
	highFreq := seedSourceConcept(t, db, "METF", "metformina", 1, 50)
	otherVocab := seedSourceConcept(t, db, "METF-2", "metformin hcl", 2, 99)

	repo := NewMappingRepository(db)
	audit := &models.MappingAuditRecord{MappingMethod: models.MethodManual, TargetDomains: []string{"Drug"}}
	require.NoError(t, repo.Map(ctx, lowFreq, []int64{200}, audit))
	require.NoError(t, repo.Map(ctx, highFreq, []int64{100}, audit))
	require.NoError(t, repo.Map(ctx, otherVocab, []int64{100}, audit))

	mapped, err := repo.GetMapped(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mapped, 2)

	// Highest frequency first
	assert.Equal(t, highFreq, mapped[0].SourceID)
	assert.Equal(t, "Metformin", mapped[0].ConceptName)
	assert.Equal(t, lowFreq, mapped[1].SourceID)
}

func TestAuditRepository_StatisticsAndRecent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	seedConcept(t, db, 100, "Metformin", "Drug", "RxNorm", "Ingredient", "6809", "S")
	a := seedSourceConcept(t, db, "A", "term a", 1, 10)
	b := seedSourceConcept(t, db, "B", "term b", 1, 5)

	repo := NewMappingRepository(db)
	require.NoError(t, repo.Map(ctx, a, []int64{100}, &models.MappingAuditRecord{
		ConfidenceScore: intPtr(8),
		MappingMethod:   models.MethodAutoStandard,
		TargetDomains:   []string{"Condition"},
	}))
	require.NoError(t, repo.Map(ctx, b, []int64{100}, &models.MappingAuditRecord{
		ConfidenceScore: intPtr(10),
		MappingMethod:   models.MethodAutoStandard,
		TargetDomains:   []string{"Condition"},
	}))

	auditRepo := NewAuditRepository(db)

	stats, err := auditRepo.Statistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, models.MethodAutoStandard, stats[0].MappingMethod)
	assert.Equal(t, int64(2), stats[0].MappingCount)
	assert.InDelta(t, 9.0, stats[0].AvgConfidence, 1e-9)
	assert.Equal(t, 8, stats[0].MinConfidence)
	assert.Equal(t, 10, stats[0].MaxConfidence)

	recent, err := auditRepo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Metformin", recent[0].MappedConceptName)
	assert.Equal(t, []string{"Condition"}, recent[0].TargetDomains)
}
