package services

import (
	"context"
	"io"

	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/vector"
)

// retrieveCall records one Retrieve invocation.
type retrieveCall struct {
	Term string
	Opts RetrievalOptions
}

type mockRetriever struct {
	RetrieveFunc func(ctx context.Context, term string, opts RetrievalOptions) ([]models.CandidateConcept, error)
	Calls        []retrieveCall
}

func (m *mockRetriever) Retrieve(ctx context.Context, term string, opts RetrievalOptions) ([]models.CandidateConcept, error) {
	m.Calls = append(m.Calls, retrieveCall{Term: term, Opts: opts})
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, term, opts)
	}
	return nil, nil
}

// selectCall records one Select invocation.
type selectCall struct {
	Term       string
	Candidates []models.CandidateConcept
	Drug       bool
}

type mockSelector struct {
	SelectFunc func(ctx context.Context, term string, candidates []models.CandidateConcept, drug bool) (*Selection, error)
	Calls      []selectCall
}

func (m *mockSelector) Select(ctx context.Context, term string, candidates []models.CandidateConcept, drug bool) (*Selection, error) {
	m.Calls = append(m.Calls, selectCall{Term: term, Candidates: candidates, Drug: drug})
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, term, candidates, drug)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &Selection{Candidate: candidates[0], Confidence: 10}, nil
}

type mockSourceRepo struct {
	ImportBatchFunc      func(ctx context.Context, concepts []*models.SourceConcept) (int64, error)
	GetByIDFunc          func(ctx context.Context, sourceID int64) (*models.SourceConcept, error)
	GetUnmappedFunc      func(ctx context.Context, sourceVocabularyID int64) ([]*models.SourceConcept, error)
	ListVocabulariesFunc func(ctx context.Context) ([]int64, error)
	CountsFunc           func(ctx context.Context, sourceVocabularyID int64) (int64, int64, error)

	ImportBatchCalls int
}

func (m *mockSourceRepo) ImportBatch(ctx context.Context, concepts []*models.SourceConcept) (int64, error) {
	m.ImportBatchCalls++
	if m.ImportBatchFunc != nil {
		return m.ImportBatchFunc(ctx, concepts)
	}
	return int64(len(concepts)), nil
}

func (m *mockSourceRepo) GetByID(ctx context.Context, sourceID int64) (*models.SourceConcept, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, sourceID)
	}
	return nil, nil
}

func (m *mockSourceRepo) GetUnmapped(ctx context.Context, sourceVocabularyID int64) ([]*models.SourceConcept, error) {
	if m.GetUnmappedFunc != nil {
		return m.GetUnmappedFunc(ctx, sourceVocabularyID)
	}
	return nil, nil
}

func (m *mockSourceRepo) ListVocabularies(ctx context.Context) ([]int64, error) {
	if m.ListVocabulariesFunc != nil {
		return m.ListVocabulariesFunc(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) Counts(ctx context.Context, sourceVocabularyID int64) (int64, int64, error) {
	if m.CountsFunc != nil {
		return m.CountsFunc(ctx, sourceVocabularyID)
	}
	return 0, 0, nil
}

// mapCall records one persisted mapping.
type mapCall struct {
	SourceID   int64
	ConceptIDs []int64
	Audit      *models.MappingAuditRecord
}

type mockMappingRepo struct {
	MapFunc func(ctx context.Context, sourceID int64, conceptIDs []int64, audit *models.MappingAuditRecord) error

	MapCalls []mapCall
}

func (m *mockMappingRepo) Map(ctx context.Context, sourceID int64, conceptIDs []int64, audit *models.MappingAuditRecord) error {
	m.MapCalls = append(m.MapCalls, mapCall{SourceID: sourceID, ConceptIDs: conceptIDs, Audit: audit})
	if m.MapFunc != nil {
		return m.MapFunc(ctx, sourceID, conceptIDs, audit)
	}
	return nil
}

func (m *mockMappingRepo) Unmap(ctx context.Context, sourceID int64) error { return nil }

func (m *mockMappingRepo) GetConceptIDs(ctx context.Context, sourceID int64) ([]int64, error) {
	return nil, nil
}

func (m *mockMappingRepo) GetMapped(ctx context.Context, sourceVocabularyID int64) ([]*models.MappedConcept, error) {
	return nil, nil
}

type mockATCRepo struct {
	ResolveDrugCodesFunc func(ctx context.Context) ([]*models.ConceptATCCodes, error)
	ReplaceAllFunc       func(ctx context.Context, codes []*models.ConceptATCCodes) error
	GetCodesFunc         func(ctx context.Context, conceptIDs []int64) (map[int64][]string, error)
	CountResolvedFunc    func(ctx context.Context) (int64, error)

	ReplaceAllCalls int
}

func (m *mockATCRepo) ResolveDrugCodes(ctx context.Context) ([]*models.ConceptATCCodes, error) {
	if m.ResolveDrugCodesFunc != nil {
		return m.ResolveDrugCodesFunc(ctx)
	}
	return nil, nil
}

func (m *mockATCRepo) ReplaceAll(ctx context.Context, codes []*models.ConceptATCCodes) error {
	m.ReplaceAllCalls++
	if m.ReplaceAllFunc != nil {
		return m.ReplaceAllFunc(ctx, codes)
	}
	return nil
}

func (m *mockATCRepo) GetCodes(ctx context.Context, conceptIDs []int64) (map[int64][]string, error) {
	if m.GetCodesFunc != nil {
		return m.GetCodesFunc(ctx, conceptIDs)
	}
	return map[int64][]string{}, nil
}

func (m *mockATCRepo) CountResolved(ctx context.Context) (int64, error) {
	if m.CountResolvedFunc != nil {
		return m.CountResolvedFunc(ctx)
	}
	return 0, nil
}

type mockEmbeddingRepo struct {
	UpsertBatchFunc          func(ctx context.Context, records []*models.EmbeddedConcept) error
	StandardStatusFunc       func(ctx context.Context, collectionName, domainID string) (*models.EmbeddingStatus, error)
	SourceStatusFunc         func(ctx context.Context, collectionName string, sourceVocabularyID int64) (*models.EmbeddingStatus, error)
	FetchPendingStandardFunc func(ctx context.Context, collectionName, domainID string, limit int) ([]*models.StandardConcept, error)
	FetchPendingSourceFunc   func(ctx context.Context, collectionName string, sourceVocabularyID int64, limit int) ([]*models.SourceConcept, error)
	ResetFunc                func(ctx context.Context, collectionName string) (int64, error)

	Upserted []*models.EmbeddedConcept
}

func (m *mockEmbeddingRepo) UpsertBatch(ctx context.Context, records []*models.EmbeddedConcept) error {
	m.Upserted = append(m.Upserted, records...)
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, records)
	}
	return nil
}

func (m *mockEmbeddingRepo) StandardStatus(ctx context.Context, collectionName, domainID string) (*models.EmbeddingStatus, error) {
	if m.StandardStatusFunc != nil {
		return m.StandardStatusFunc(ctx, collectionName, domainID)
	}
	return &models.EmbeddingStatus{}, nil
}

func (m *mockEmbeddingRepo) SourceStatus(ctx context.Context, collectionName string, sourceVocabularyID int64) (*models.EmbeddingStatus, error) {
	if m.SourceStatusFunc != nil {
		return m.SourceStatusFunc(ctx, collectionName, sourceVocabularyID)
	}
	return &models.EmbeddingStatus{}, nil
}

func (m *mockEmbeddingRepo) FetchPendingStandard(ctx context.Context, collectionName, domainID string, limit int) ([]*models.StandardConcept, error) {
	if m.FetchPendingStandardFunc != nil {
		return m.FetchPendingStandardFunc(ctx, collectionName, domainID, limit)
	}
	return nil, nil
}

func (m *mockEmbeddingRepo) FetchPendingSource(ctx context.Context, collectionName string, sourceVocabularyID int64, limit int) ([]*models.SourceConcept, error) {
	if m.FetchPendingSourceFunc != nil {
		return m.FetchPendingSourceFunc(ctx, collectionName, sourceVocabularyID, limit)
	}
	return nil, nil
}

func (m *mockEmbeddingRepo) Reset(ctx context.Context, collectionName string) (int64, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, collectionName)
	}
	return 0, nil
}

type mockVectorIndex struct {
	EnsureCollectionFunc func(ctx context.Context, name string, vectorSize int) error
	SetIndexingFunc      func(ctx context.Context, collection string, enabled bool) error
	UpsertBatchFunc      func(ctx context.Context, collection string, points []vector.Point) error
	DeleteCollectionFunc func(ctx context.Context, collection string) error

	IndexingStates []bool
	Upserted       []vector.Point
	Deleted        []string
}

func (m *mockVectorIndex) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if m.EnsureCollectionFunc != nil {
		return m.EnsureCollectionFunc(ctx, name, vectorSize)
	}
	return nil
}

func (m *mockVectorIndex) SetIndexing(ctx context.Context, collection string, enabled bool) error {
	m.IndexingStates = append(m.IndexingStates, enabled)
	if m.SetIndexingFunc != nil {
		return m.SetIndexingFunc(ctx, collection, enabled)
	}
	return nil
}

func (m *mockVectorIndex) UpsertBatch(ctx context.Context, collection string, points []vector.Point) error {
	m.Upserted = append(m.Upserted, points...)
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, collection, points)
	}
	return nil
}

func (m *mockVectorIndex) DeleteCollection(ctx context.Context, collection string) error {
	m.Deleted = append(m.Deleted, collection)
	if m.DeleteCollectionFunc != nil {
		return m.DeleteCollectionFunc(ctx, collection)
	}
	return nil
}

// searchCall records one vector search.
type searchCall struct {
	Collection string
	Vector     []float32
	K          int
	Filter     *vector.Filter
}

type mockVectorSearcher struct {
	SearchFunc func(ctx context.Context, collection string, queryVector []float32, k int, filter *vector.Filter) ([]vector.ScoredPoint, error)
	Calls      []searchCall
}

func (m *mockVectorSearcher) Search(ctx context.Context, collection string, queryVector []float32, k int, filter *vector.Filter) ([]vector.ScoredPoint, error) {
	m.Calls = append(m.Calls, searchCall{Collection: collection, Vector: queryVector, K: k, Filter: filter})
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, collection, queryVector, k, filter)
	}
	return nil, nil
}

type mockVocabImportRepo struct {
	ImportTableFunc func(ctx context.Context, tableName string, data io.Reader) (int64, error)
	TableCountsFunc func(ctx context.Context) (map[string]int64, error)

	Logged []*models.VocabularyImport
}

func (m *mockVocabImportRepo) ImportTable(ctx context.Context, tableName string, data io.Reader) (int64, error) {
	if m.ImportTableFunc != nil {
		return m.ImportTableFunc(ctx, tableName, data)
	}
	return 0, nil
}

func (m *mockVocabImportRepo) LogImport(ctx context.Context, record *models.VocabularyImport) error {
	m.Logged = append(m.Logged, record)
	return nil
}

func (m *mockVocabImportRepo) History(ctx context.Context, limit int) ([]*models.VocabularyImport, error) {
	return nil, nil
}

func (m *mockVocabImportRepo) TableCounts(ctx context.Context) (map[string]int64, error) {
	if m.TableCountsFunc != nil {
		return m.TableCountsFunc(ctx)
	}
	return map[string]int64{}, nil
}

type mockAuditRepo struct {
	StatisticsFunc func(ctx context.Context) ([]*models.MappingMethodStats, error)
	RecentFunc     func(ctx context.Context, limit int) ([]*models.RecentMapping, error)
}

func (m *mockAuditRepo) Statistics(ctx context.Context) ([]*models.MappingMethodStats, error) {
	if m.StatisticsFunc != nil {
		return m.StatisticsFunc(ctx)
	}
	return nil, nil
}

func (m *mockAuditRepo) Recent(ctx context.Context, limit int) ([]*models.RecentMapping, error) {
	if m.RecentFunc != nil {
		return m.RecentFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockAuditRepo) History(ctx context.Context, sourceID int64) ([]*models.MappingAuditRecord, error) {
	return nil, nil
}
