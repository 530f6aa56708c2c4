// Package repositories provides data access for the mapping engine's
// PostgreSQL reference store. Repositories receive their connection pool
// explicitly; transactions span repositories only through the tx-scoped
// write methods.
package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// SourceConceptRepository provides data access for source terms awaiting
// standardization.
type SourceConceptRepository interface {
	ImportBatch(ctx context.Context, concepts []*models.SourceConcept) (int64, error)
	GetByID(ctx context.Context, sourceID int64) (*models.SourceConcept, error)
	GetUnmapped(ctx context.Context, sourceVocabularyID int64) ([]*models.SourceConcept, error)
	ListVocabularies(ctx context.Context) ([]int64, error)
	Counts(ctx context.Context, sourceVocabularyID int64) (total, mapped int64, err error)
}

type sourceConceptRepository struct {
	db *database.DB
}

// NewSourceConceptRepository creates a new SourceConceptRepository.
func NewSourceConceptRepository(db *database.DB) SourceConceptRepository {
	return &sourceConceptRepository{db: db}
}

var _ SourceConceptRepository = (*sourceConceptRepository)(nil)

// ImportBatch bulk-inserts source terms via COPY and returns the number
// of rows written.
func (r *sourceConceptRepository) ImportBatch(ctx context.Context, concepts []*models.SourceConcept) (int64, error) {
	if len(concepts) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(concepts))
	for i, c := range concepts {
		rows[i] = []any{c.SourceValue, c.SourceConceptName, c.SourceVocabularyID, c.Frequency}
	}

	count, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"source_concepts"},
		[]string{"source_value", "source_concept_name", "source_vocabulary_id", "freq"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to import source concepts: %w", err)
	}

	return count, nil
}

func (r *sourceConceptRepository) GetByID(ctx context.Context, sourceID int64) (*models.SourceConcept, error) {
	query := `
		SELECT source_id, source_value, source_concept_name, source_vocabulary_id, freq, mapped
		FROM source_concepts
		WHERE source_id = $1`

	c, err := scanSourceConcept(r.db.QueryRow(ctx, query, sourceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetUnmapped returns the unmapped terms of one source vocabulary,
// highest frequency first. Bulk mapping consumes this ordering as-is.
func (r *sourceConceptRepository) GetUnmapped(ctx context.Context, sourceVocabularyID int64) ([]*models.SourceConcept, error) {
	query := `
		SELECT source_id, source_value, source_concept_name, source_vocabulary_id, freq, mapped
		FROM source_concepts
		WHERE source_vocabulary_id = $1 AND mapped = FALSE
		ORDER BY freq DESC, source_id`

	rows, err := r.db.Query(ctx, query, sourceVocabularyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmapped source concepts: %w", err)
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
		return nil, fmt.Errorf("error iterating source concepts: %w", err)
	}

	return concepts, nil
}

func (r *sourceConceptRepository) ListVocabularies(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT source_vocabulary_id
		FROM source_concepts
		ORDER BY source_vocabulary_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query source vocabularies: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vocabulary ids: %w", err)
	}

	return ids, nil
}

func (r *sourceConceptRepository) Counts(ctx context.Context, sourceVocabularyID int64) (int64, int64, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE mapped)
		FROM source_concepts
		WHERE source_vocabulary_id = $1`

	var total, mapped int64
	if err := r.db.QueryRow(ctx, query, sourceVocabularyID).Scan(&total, &mapped); err != nil {
		return 0, 0, fmt.Errorf("failed to count source concepts: %w", err)
	}
	return total, mapped, nil
}

func scanSourceConcept(row pgx.Row) (*models.SourceConcept, error) {
	var c models.SourceConcept
	err := row.Scan(
		&c.SourceID,
		&c.SourceValue,
		&c.SourceConceptName,
		&c.SourceVocabularyID,
		&c.Frequency,
		&c.Mapped,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan source concept: %w", err)
	}
	return &c, nil
}
