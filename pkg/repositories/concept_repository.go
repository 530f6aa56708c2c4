package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// ConceptRepository provides read access to the standard vocabulary.
type ConceptRepository interface {
	GetByID(ctx context.Context, conceptID int64) (*models.StandardConcept, error)
	GetByIDs(ctx context.Context, conceptIDs []int64) ([]*models.StandardConcept, error)
	SearchByName(ctx context.Context, query string, limit int) ([]*models.StandardConcept, error)
}

type conceptRepository struct {
	db *database.DB
}

// NewConceptRepository creates a new ConceptRepository.
func NewConceptRepository(db *database.DB) ConceptRepository {
	return &conceptRepository{db: db}
}

var _ ConceptRepository = (*conceptRepository)(nil)

const conceptColumns = `concept_id, concept_name, domain_id, vocabulary_id,
	concept_class_id, concept_code, COALESCE(standard_concept = 'S', FALSE)`

func (r *conceptRepository) GetByID(ctx context.Context, conceptID int64) (*models.StandardConcept, error) {
	query := `SELECT ` + conceptColumns + ` FROM concept WHERE concept_id = $1`

	c, err := scanStandardConcept(r.db.QueryRow(ctx, query, conceptID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *conceptRepository) GetByIDs(ctx context.Context, conceptIDs []int64) ([]*models.StandardConcept, error) {
	if len(conceptIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + conceptColumns + ` FROM concept WHERE concept_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, conceptIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	return collectStandardConcepts(rows)
}

// SearchByName is a case-insensitive substring lookup used by manual
// mapping to find target concepts.
func (r *conceptRepository) SearchByName(ctx context.Context, nameQuery string, limit int) ([]*models.StandardConcept, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + conceptColumns + `
		FROM concept
		WHERE standard_concept = 'S' AND concept_name ILIKE '%' || $1 || '%'
		ORDER BY concept_name
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, nameQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search concepts: %w", err)
	}
	defer rows.Close()

	return collectStandardConcepts(rows)
}

func collectStandardConcepts(rows pgx.Rows) ([]*models.StandardConcept, error) {
	var concepts []*models.StandardConcept
	for rows.Next() {
		c, err := scanStandardConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concepts: %w", err)
	}

	return concepts, nil
}

func scanStandardConcept(row pgx.Row) (*models.StandardConcept, error) {
	var c models.StandardConcept
	err := row.Scan(
		&c.ConceptID,
		&c.ConceptName,
		&c.DomainID,
		&c.VocabularyID,
		&c.ConceptClassID,
		&c.ConceptCode,
		&c.Standard,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan concept: %w", err)
	}
	return &c, nil
}
