package repositories

import (
	"context"
	"fmt"

	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// AuditRepository provides read access to the append-only mapping audit
// log. Writes happen inside MappingRepository.Map so the audit row lands
// in the same transaction as the mapping it explains.
type AuditRepository interface {
	Statistics(ctx context.Context) ([]*models.MappingMethodStats, error)
	Recent(ctx context.Context, limit int) ([]*models.RecentMapping, error)
	History(ctx context.Context, sourceID int64) ([]*models.MappingAuditRecord, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Statistics(ctx context.Context) ([]*models.MappingMethodStats, error) {
	query := `
		SELECT mapping_method,
		       COUNT(*),
		       COALESCE(AVG(confidence_score), 0),
		       COALESCE(MIN(confidence_score), 0),
		       COALESCE(MAX(confidence_score), 0)
		FROM auto_mapping_audit
		GROUP BY mapping_method
		ORDER BY mapping_method`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit statistics: %w", err)
	}
	defer rows.Close()

	var stats []*models.MappingMethodStats
	for rows.Next() {
		var s models.MappingMethodStats
		err := rows.Scan(
			&s.MappingMethod,
			&s.MappingCount,
			&s.AvgConfidence,
			&s.MinConfidence,
			&s.MaxConfidence,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit statistics: %w", err)
		}
		stats = append(stats, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit statistics: %w", err)
	}

	return stats, nil
}

func (r *auditRepository) Recent(ctx context.Context, limit int) ([]*models.RecentMapping, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT sc.source_concept_name, c.concept_name,
		       a.confidence_score, a.mapping_method, a.target_domains, a.created_at
		FROM auto_mapping_audit a
		JOIN source_concepts sc ON sc.source_id = a.source_id
		JOIN concept c ON c.concept_id = a.concept_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent mappings: %w", err)
	}
	defer rows.Close()

	var recent []*models.RecentMapping
	for rows.Next() {
		var m models.RecentMapping
		err := rows.Scan(
			&m.SourceConceptName,
			&m.MappedConceptName,
			&m.ConfidenceScore,
			&m.MappingMethod,
			&m.TargetDomains,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent mapping: %w", err)
		}
		recent = append(recent, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent mappings: %w", err)
	}

	return recent, nil
}

func (r *auditRepository) History(ctx context.Context, sourceID int64) ([]*models.MappingAuditRecord, error) {
	query := `
		SELECT source_id, concept_id, confidence_score, mapping_method, target_domains, created_at
		FROM auto_mapping_audit
		WHERE source_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var records []*models.MappingAuditRecord
	for rows.Next() {
		var rec models.MappingAuditRecord
		err := rows.Scan(
			&rec.SourceID,
			&rec.ConceptID,
			&rec.ConfidenceScore,
			&rec.MappingMethod,
			&rec.TargetDomains,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit history: %w", err)
	}

	return records, nil
}
