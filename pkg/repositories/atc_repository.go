package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// ATCRepository resolves and stores the 7-character ATC code sets of
// drug-domain standard concepts. The concept_atc7 table is a derived
// artifact: ReplaceAll rebuilds it wholesale from the vocabulary tables.
type ATCRepository interface {
	// ResolveDrugCodes walks the relationship graph and ancestor table to
	// compute ATC codes for every drug-domain standard concept. Expensive;
	// run once per vocabulary load.
	ResolveDrugCodes(ctx context.Context) ([]*models.ConceptATCCodes, error)

	// ReplaceAll atomically swaps the stored code sets for the given ones.
	ReplaceAll(ctx context.Context, codes []*models.ConceptATCCodes) error

	GetCodes(ctx context.Context, conceptIDs []int64) (map[int64][]string, error)
	CountResolved(ctx context.Context) (int64, error)
}

type atcRepository struct {
	db *database.DB
}

// NewATCRepository creates a new ATCRepository.
func NewATCRepository(db *database.DB) ATCRepository {
	return &atcRepository{db: db}
}

var _ ATCRepository = (*atcRepository)(nil)

// resolveDrugCodesQuery links each drug-domain standard concept to its
// ATC codes through two branches: a single relationship hop onto an ATC
// concept (reading that concept's own code), and the ancestor closure.
// Relationship chains are never followed further than one hop. Only
// full 7-character codes are kept.
const resolveDrugCodesQuery = `
	WITH atc_links AS (
		SELECT c1.concept_id AS drug_concept_id, c2.concept_code AS atc_code
		FROM concept c1
		JOIN concept_relationship cr ON cr.concept_id_1 = c1.concept_id
		JOIN concept c2 ON c2.concept_id = cr.concept_id_2
		WHERE c1.domain_id = 'Drug' AND c1.standard_concept = 'S'
		  AND c2.vocabulary_id = 'ATC'
		  AND cr.relationship_id IN ('Maps to', 'RxNorm has ing', 'Mapped from')
		  AND cr.invalid_reason IS NULL
		UNION
		SELECT c1.concept_id, atc.concept_code
		FROM concept c1
		JOIN concept_ancestor ca ON ca.descendant_concept_id = c1.concept_id
		JOIN concept atc ON atc.concept_id = ca.ancestor_concept_id
		WHERE c1.domain_id = 'Drug' AND c1.standard_concept = 'S'
		  AND atc.vocabulary_id = 'ATC'
		  AND atc.invalid_reason IS NULL
	)
	SELECT drug_concept_id, ARRAY_AGG(DISTINCT atc_code ORDER BY atc_code)
	FROM atc_links
	WHERE LENGTH(atc_code) = 7
	GROUP BY drug_concept_id`

func (r *atcRepository) ResolveDrugCodes(ctx context.Context) ([]*models.ConceptATCCodes, error) {
	rows, err := r.db.Query(ctx, resolveDrugCodesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve drug ATC codes: %w", err)
	}
	defer rows.Close()

	var resolved []*models.ConceptATCCodes
	for rows.Next() {
		var c models.ConceptATCCodes
		if err := rows.Scan(&c.ConceptID, &c.Codes); err != nil {
			return nil, fmt.Errorf("failed to scan ATC codes: %w", err)
		}
		resolved = append(resolved, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ATC codes: %w", err)
	}

	return resolved, nil
}

func (r *atcRepository) ReplaceAll(ctx context.Context, codes []*models.ConceptATCCodes) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM concept_atc7`); err != nil {
			return fmt.Errorf("failed to clear concept_atc7: %w", err)
		}

		if len(codes) == 0 {
			return nil
		}

		rows := make([][]any, len(codes))
		for i, c := range codes {
			rows[i] = []any{c.ConceptID, c.Codes}
		}

		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"concept_atc7"},
			[]string{"concept_id", "atc7_codes"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("failed to write concept_atc7: %w", err)
		}

		return nil
	})
}

func (r *atcRepository) GetCodes(ctx context.Context, conceptIDs []int64) (map[int64][]string, error) {
	if len(conceptIDs) == 0 {
		return map[int64][]string{}, nil
	}

	query := `
		SELECT concept_id, atc7_codes
		FROM concept_atc7
		WHERE concept_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, conceptIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query ATC codes: %w", err)
	}
	defer rows.Close()

	codes := make(map[int64][]string, len(conceptIDs))
	for rows.Next() {
		var conceptID int64
		var atcCodes []string
		if err := rows.Scan(&conceptID, &atcCodes); err != nil {
			return nil, fmt.Errorf("failed to scan ATC codes: %w", err)
		}
		codes[conceptID] = atcCodes
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ATC codes: %w", err)
	}

	return codes, nil
}

func (r *atcRepository) CountResolved(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM concept_atc7`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count resolved concepts: %w", err)
	}
	return count, nil
}
