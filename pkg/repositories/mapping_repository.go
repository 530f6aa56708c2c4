package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// MappingRepository provides data access for live source-to-standard
// mappings. Map is the unit of atomicity for a mapping decision: the
// live rows, the mapped flag, and the audit history move together or
// not at all.
type MappingRepository interface {
	// Map replaces the live mappings of a source concept with the given
	// standard concepts, marks it mapped, and appends one audit row per
	// concept. Re-mapping is idempotent for the live rows; audit history
	// is retained.
	Map(ctx context.Context, sourceID int64, conceptIDs []int64, audit *models.MappingAuditRecord) error

	// Unmap removes the live mappings of a source concept and clears its
	// mapped flag. Audit history is retained.
	Unmap(ctx context.Context, sourceID int64) error

	GetConceptIDs(ctx context.Context, sourceID int64) ([]int64, error)
	GetMapped(ctx context.Context, sourceVocabularyID int64) ([]*models.MappedConcept, error)
}

type mappingRepository struct {
	db *database.DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *database.DB) MappingRepository {
	return &mappingRepository{db: db}
}

var _ MappingRepository = (*mappingRepository)(nil)

func (r *mappingRepository) Map(ctx context.Context, sourceID int64, conceptIDs []int64, audit *models.MappingAuditRecord) error {
	if len(conceptIDs) == 0 {
		return fmt.Errorf("at least one concept id is required")
	}
	if audit == nil {
		return fmt.Errorf("audit record is required")
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE source_concepts SET mapped = TRUE WHERE source_id = $1`, sourceID)
		if err != nil {
			return fmt.Errorf("failed to mark source concept mapped: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM source_standard_map WHERE source_id = $1`, sourceID); err != nil {
			return fmt.Errorf("failed to clear previous mappings: %w", err)
		}

		for _, conceptID := range conceptIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO source_standard_map (source_id, concept_id) VALUES ($1, $2)`,
				sourceID, conceptID); err != nil {
				return fmt.Errorf("failed to insert mapping for concept %d: %w", conceptID, err)
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO auto_mapping_audit (source_id, concept_id, confidence_score, mapping_method, target_domains)
				VALUES ($1, $2, $3, $4, $5)`,
				sourceID, conceptID, audit.ConfidenceScore, audit.MappingMethod, audit.TargetDomains); err != nil {
				return fmt.Errorf("failed to insert audit row for concept %d: %w", conceptID, err)
			}
		}

		return nil
	})
}

func (r *mappingRepository) Unmap(ctx context.Context, sourceID int64) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE source_concepts SET mapped = FALSE WHERE source_id = $1`, sourceID)
		if err != nil {
			return fmt.Errorf("failed to clear mapped flag: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM source_standard_map WHERE source_id = $1`, sourceID); err != nil {
			return fmt.Errorf("failed to delete mappings: %w", err)
		}

		return nil
	})
}

func (r *mappingRepository) GetConceptIDs(ctx context.Context, sourceID int64) ([]int64, error) {
	query := `
		SELECT concept_id
		FROM source_standard_map
		WHERE source_id = $1
		ORDER BY concept_id`

	rows, err := r.db.Query(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan concept id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}

	return ids, nil
}

func (r *mappingRepository) GetMapped(ctx context.Context, sourceVocabularyID int64) ([]*models.MappedConcept, error) {
	query := `
		SELECT sc.source_id, sc.source_value, sc.source_concept_name,
		       c.concept_id, c.concept_name, c.domain_id, sc.freq
		FROM source_concepts sc
		JOIN source_standard_map m ON m.source_id = sc.source_id
		JOIN concept c ON c.concept_id = m.concept_id
		WHERE sc.source_vocabulary_id = $1
		ORDER BY sc.freq DESC, sc.source_id, c.concept_id`

	rows, err := r.db.Query(ctx, query, sourceVocabularyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapped concepts: %w", err)
	}
	defer rows.Close()

	var mapped []*models.MappedConcept
	for rows.Next() {
		var m models.MappedConcept
		err := rows.Scan(
			&m.SourceID,
			&m.SourceValue,
			&m.SourceConceptName,
			&m.ConceptID,
			&m.ConceptName,
			&m.DomainID,
			&m.Frequency,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapped concept: %w", err)
		}
		mapped = append(mapped, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mapped concepts: %w", err)
	}

	return mapped, nil
}
