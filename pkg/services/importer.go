package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/apperrors"
	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/repositories"
)

// vocabularyTables is the load order for a vocabulary export directory.
var vocabularyTables = []string{"concept", "concept_relationship", "concept_ancestor"}

// sourceColumns are the required header columns of a source term CSV.
// freq is optional and defaults to 1 when the column is absent.
var sourceColumns = []string{"source_value", "source_concept_name"}

// ImportService loads vocabulary exports and source term files into the
// reference store.
type ImportService interface {
	// ImportVocabularyDirectory loads the standard vocabulary export
	// files found in dir (CONCEPT.csv and friends), one table at a time,
	// logging each outcome. A missing file marks its table skipped; a
	// failed table does not abort the remaining ones.
	ImportVocabularyDirectory(ctx context.Context, dir string) (map[string]*models.TableImportResult, error)

	// ImportSourceConcepts reads a comma-separated source term file and
	// bulk-inserts its rows under the given vocabulary ID. The header
	// must carry source_value and source_concept_name; freq is optional
	// (default 1) and extra columns are ignored.
	ImportSourceConcepts(ctx context.Context, data io.Reader, sourceVocabularyID int64) (int64, error)
}

type importService struct {
	vocabRepo  repositories.VocabularyImportRepository
	sourceRepo repositories.SourceConceptRepository
	batchSize  int
	caches     *Caches
	logger     *zap.Logger
}

// NewImportService creates a new ImportService.
func NewImportService(
	vocabRepo repositories.VocabularyImportRepository,
	sourceRepo repositories.SourceConceptRepository,
	batchSize int,
	caches *Caches,
	logger *zap.Logger,
) ImportService {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &importService{
		vocabRepo:  vocabRepo,
		sourceRepo: sourceRepo,
		batchSize:  batchSize,
		caches:     caches,
		logger:     logger.Named("importer"),
	}
}

var _ ImportService = (*importService)(nil)

func (s *importService) ImportVocabularyDirectory(ctx context.Context, dir string) (map[string]*models.TableImportResult, error) {
	results := make(map[string]*models.TableImportResult, len(vocabularyTables))

	for _, table := range vocabularyTables {
		path := filepath.Join(dir, strings.ToUpper(table)+".csv")
		result, err := s.importVocabularyFile(ctx, table, path)
		if err != nil {
			return results, err
		}
		results[table] = result
	}

	return results, nil
}

// importVocabularyFile streams one export file into its table and logs
// the outcome. Only context cancellation and log-write failures
// propagate as errors.
func (s *importService) importVocabularyFile(ctx context.Context, table, path string) (*models.TableImportResult, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		s.logger.Warn("Vocabulary file not found, skipping",
			zap.String("table", table),
			zap.String("path", path))
		return &models.TableImportResult{Status: models.ImportStatusSkipped}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	s.logger.Info("Importing vocabulary table",
		zap.String("table", table),
		zap.String("path", path))

	count, importErr := s.vocabRepo.ImportTable(ctx, table, file)

	record := &models.VocabularyImport{
		TableName:       table,
		FilePath:        path,
		RecordsImported: count,
		Status:          models.ImportStatusCompleted,
	}
	result := &models.TableImportResult{
		Status:          models.ImportStatusCompleted,
		RecordsImported: count,
	}
	if importErr != nil {
		record.Status = models.ImportStatusFailed
		record.ErrorMessage = importErr.Error()
		result.Status = models.ImportStatusFailed
		result.Error = importErr.Error()
		s.logger.Error("Vocabulary table import failed",
			zap.String("table", table),
			zap.Error(importErr))
	} else {
		s.logger.Info("Vocabulary table imported",
			zap.String("table", table),
			zap.Int64("records", count))
	}

	if err := s.vocabRepo.LogImport(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to log import: %w", err)
	}
	if importErr != nil && ctx.Err() != nil {
		return result, ctx.Err()
	}

	return result, nil
}

func (s *importService) ImportSourceConcepts(ctx context.Context, data io.Reader, sourceVocabularyID int64) (int64, error) {
	reader := csv.NewReader(data)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	index, err := sourceColumnIndex(header)
	if err != nil {
		return 0, err
	}

	var (
		total int64
		batch []*models.SourceConcept
		line  = 1
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		count, err := s.sourceRepo.ImportBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to import source concepts: %w", err)
		}
		total += count
		batch = batch[:0]
		return nil
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("failed to read row %d: %w", line+1, err)
		}
		line++

		concept, err := parseSourceRow(row, index, sourceVocabularyID)
		if err != nil {
			return total, fmt.Errorf("row %d: %w", line, err)
		}
		batch = append(batch, concept)

		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}

	if err := flush(); err != nil {
		return total, err
	}
	if total > 0 {
		s.caches.invalidateVocabularies()
	}

	s.logger.Info("Imported source concepts",
		zap.Int64("source_vocabulary_id", sourceVocabularyID),
		zap.Int64("records", total))

	return total, nil
}

// sourceColumnIndex maps the required column names to their positions in
// the header. Header matching is case-insensitive.
func sourceColumnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range sourceColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingColumns, strings.Join(missing, ", "))
	}

	return index, nil
}

func parseSourceRow(row []string, index map[string]int, sourceVocabularyID int64) (*models.SourceConcept, error) {
	field := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	freq := int64(1)
	if _, ok := index["freq"]; ok && field("freq") != "" {
		parsed, err := strconv.ParseInt(field("freq"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid freq %q", field("freq"))
		}
		freq = parsed
	}

	return &models.SourceConcept{
		SourceValue:        field("source_value"),
		SourceConceptName:  field("source_concept_name"),
		SourceVocabularyID: sourceVocabularyID,
		Frequency:          freq,
	}, nil
}
