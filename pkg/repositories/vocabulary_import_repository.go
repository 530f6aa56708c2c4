package repositories

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// importableTables whitelists the vocabulary tables loadable via COPY,
// with their column order as shipped in the standard vocabulary export.
var importableTables = map[string][]string{
	"concept": {
		"concept_id", "concept_name", "domain_id", "vocabulary_id",
		"concept_class_id", "standard_concept", "concept_code",
		"valid_start_date", "valid_end_date", "invalid_reason",
	},
	"concept_relationship": {
		"concept_id_1", "concept_id_2", "relationship_id",
		"valid_start_date", "valid_end_date", "invalid_reason",
	},
	"concept_ancestor": {
		"ancestor_concept_id", "descendant_concept_id",
		"min_levels_of_separation", "max_levels_of_separation",
	},
}

// VocabularyImportRepository bulk-loads vocabulary export files and
// keeps the append-only import log.
type VocabularyImportRepository interface {
	// ImportTable streams a tab-separated vocabulary export into the
	// named table via COPY. Only the vocabulary tables are accepted;
	// anything else returns apperrors.ErrUnsupportedTable.
	ImportTable(ctx context.Context, tableName string, data io.Reader) (int64, error)

	LogImport(ctx context.Context, record *models.VocabularyImport) error
	History(ctx context.Context, limit int) ([]*models.VocabularyImport, error)
	TableCounts(ctx context.Context) (map[string]int64, error)
}

type vocabularyImportRepository struct {
	db *database.DB
}

// NewVocabularyImportRepository creates a new VocabularyImportRepository.
func NewVocabularyImportRepository(db *database.DB) VocabularyImportRepository {
	return &vocabularyImportRepository{db: db}
}

var _ VocabularyImportRepository = (*vocabularyImportRepository)(nil)

func (r *vocabularyImportRepository) ImportTable(ctx context.Context, tableName string, data io.Reader) (int64, error) {
	columns, ok := importableTables[tableName]
	if !ok {
		return 0, fmt.Errorf("table %q: %w", tableName, apperrors.ErrUnsupportedTable)
	}

	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	// Vocabulary exports are tab-separated with a header row and no
	// quoting; QUOTE is set to a character that cannot appear in the data.
	copySQL := fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT csv, HEADER true, DELIMITER E'\t', QUOTE E'\b')`,
		tableName, strings.Join(columns, ", "),
	)

	tag, err := conn.Conn().PgConn().CopyFrom(ctx, data, copySQL)
	if err != nil {
		return 0, fmt.Errorf("failed to copy into %s: %w", tableName, err)
	}

	return tag.RowsAffected(), nil
}

func (r *vocabularyImportRepository) LogImport(ctx context.Context, record *models.VocabularyImport) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO vocabulary_imports (id, table_name, file_path, records_imported, status, error_message)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING import_date`

	err := r.db.QueryRow(ctx, query,
		record.ID,
		record.TableName,
		record.FilePath,
		record.RecordsImported,
		record.Status,
		record.ErrorMessage,
	).Scan(&record.ImportDate)
	if err != nil {
		return fmt.Errorf("failed to log vocabulary import: %w", err)
	}

	return nil
}

func (r *vocabularyImportRepository) History(ctx context.Context, limit int) ([]*models.VocabularyImport, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, table_name, file_path, records_imported, status,
		       COALESCE(error_message, ''), import_date
		FROM vocabulary_imports
		ORDER BY import_date DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import history: %w", err)
	}
	defer rows.Close()

	var records []*models.VocabularyImport
	for rows.Next() {
		var rec models.VocabularyImport
		err := rows.Scan(
			&rec.ID,
			&rec.TableName,
			&rec.FilePath,
			&rec.RecordsImported,
			&rec.Status,
			&rec.ErrorMessage,
			&rec.ImportDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import history: %w", err)
	}

	return records, nil
}

func (r *vocabularyImportRepository) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(importableTables))
	for tableName := range importableTables {
		var count int64
		// tableName comes from the whitelist, never from input
		if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+tableName).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", tableName, err)
		}
		counts[tableName] = count
	}
	return counts, nil
}
