package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// embeddableConceptFilter selects the standard concepts worth embedding.
// Packaging-level concept classes ("Branded Drug Box", "Marketed
// Product" and friends) add noise to similarity search and are skipped.
const embeddableConceptFilter = `
	standard_concept = 'S'
	AND concept_class_id NOT ILIKE '%box%'
	AND concept_class_id NOT ILIKE '%marketed%'`

// EmbeddingRepository tracks which concepts have been embedded into
// which vector collection.
type EmbeddingRepository interface {
	UpsertBatch(ctx context.Context, records []*models.EmbeddedConcept) error

	// StandardStatus reports embedding coverage for the collection. An
	// empty domainID counts every embeddable concept; otherwise only the
	// given domain.
	StandardStatus(ctx context.Context, collectionName, domainID string) (*models.EmbeddingStatus, error)
	SourceStatus(ctx context.Context, collectionName string, sourceVocabularyID int64) (*models.EmbeddingStatus, error)

	// FetchPendingStandard returns embeddable standard concepts that have
	// no embedding record for the collection yet, optionally restricted
	// to one domain.
	FetchPendingStandard(ctx context.Context, collectionName, domainID string, limit int) ([]*models.StandardConcept, error)

	// FetchPendingSource returns unmapped source concepts of one
	// vocabulary that have no embedding record for the collection yet.
	FetchPendingSource(ctx context.Context, collectionName string, sourceVocabularyID int64, limit int) ([]*models.SourceConcept, error)

	// Reset deletes all embedding records for a collection and returns
	// the number of rows removed. Use after dropping the collection.
	Reset(ctx context.Context, collectionName string) (int64, error)
}

type embeddingRepository struct {
	db *database.DB
}

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(db *database.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

var _ EmbeddingRepository = (*embeddingRepository)(nil)

func (r *embeddingRepository) UpsertBatch(ctx context.Context, records []*models.EmbeddedConcept) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO embedded_concepts (concept_id, collection_name, embedding_model, concept_type, source_vocabulary_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (concept_id, collection_name, concept_type)
		DO UPDATE SET embedding_model = EXCLUDED.embedding_model, embedded_at = now()`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query, rec.ConceptID, rec.CollectionName, rec.EmbeddingModel, rec.ConceptType, rec.SourceVocabularyID)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert embedding record: %w", err)
		}
	}

	return nil
}

func (r *embeddingRepository) StandardStatus(ctx context.Context, collectionName, domainID string) (*models.EmbeddingStatus, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM concept
			 WHERE ` + embeddableConceptFilter + `
			   AND ($2 = '' OR domain_id = $2)),
			(SELECT COUNT(*) FROM embedded_concepts e
			 JOIN concept c ON c.concept_id = e.concept_id
			 WHERE e.collection_name = $1 AND e.concept_type = 'standard'
			   AND ($2 = '' OR c.domain_id = $2))`

	return r.scanStatus(r.db.QueryRow(ctx, query, collectionName, domainID))
}

// SourceStatus covers unmapped terms only: mapped terms no longer need
// a vector and drop out of both counts.
func (r *embeddingRepository) SourceStatus(ctx context.Context, collectionName string, sourceVocabularyID int64) (*models.EmbeddingStatus, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM source_concepts
			 WHERE source_vocabulary_id = $2 AND mapped = FALSE),
			(SELECT COUNT(*) FROM embedded_concepts
			 WHERE collection_name = $1 AND concept_type = 'source' AND source_vocabulary_id = $2
			   AND concept_id IN (
				SELECT source_id FROM source_concepts WHERE mapped = FALSE
			   ))`

	return r.scanStatus(r.db.QueryRow(ctx, query, collectionName, sourceVocabularyID))
}

func (r *embeddingRepository) scanStatus(row pgx.Row) (*models.EmbeddingStatus, error) {
	var status models.EmbeddingStatus
	if err := row.Scan(&status.Total, &status.Embedded); err != nil {
		return nil, fmt.Errorf("failed to scan embedding status: %w", err)
	}

	status.Pending = status.Total - status.Embedded
	if status.Pending < 0 {
		status.Pending = 0
	}
	if status.Total > 0 {
		status.Percentage = float64(status.Embedded) / float64(status.Total) * 100
	}

	return &status, nil
}

func (r *embeddingRepository) FetchPendingStandard(ctx context.Context, collectionName, domainID string, limit int) ([]*models.StandardConcept, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT c.concept_id, c.concept_name, c.domain_id, c.vocabulary_id,
		       c.concept_class_id, c.concept_code, TRUE
		FROM concept c
		WHERE ` + embeddableConceptFilter + `
		  AND ($2 = '' OR c.domain_id = $2)
		  AND NOT EXISTS (
			SELECT 1 FROM embedded_concepts e
			WHERE e.concept_id = c.concept_id
			  AND e.collection_name = $1
			  AND e.concept_type = 'standard'
		  )
		ORDER BY c.concept_id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, collectionName, domainID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending standard concepts: %w", err)
	}
	defer rows.Close()

	return collectStandardConcepts(rows)
}

func (r *embeddingRepository) FetchPendingSource(ctx context.Context, collectionName string, sourceVocabularyID int64, limit int) ([]*models.SourceConcept, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT sc.source_id, sc.source_value, sc.source_concept_name,
		       sc.source_vocabulary_id, sc.freq, sc.mapped
		FROM source_concepts sc
		WHERE sc.source_vocabulary_id = $2
		  AND sc.mapped = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM embedded_concepts e
			WHERE e.concept_id = sc.source_id
			  AND e.collection_name = $1
			  AND e.concept_type = 'source'
		  )
		ORDER BY sc.source_id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, collectionName, sourceVocabularyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending source concepts: %w", err)
	}
	defer rows.Close()

	var concepts []*models.SourceConcept
	for rows.Next() {
		c, err := scanSourceConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending source concepts: %w", err)
	}

	return concepts, nil
}

func (r *embeddingRepository) Reset(ctx context.Context, collectionName string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM embedded_concepts WHERE collection_name = $1`, collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to reset embedding records: %w", err)
	}
	return tag.RowsAffected(), nil
}
