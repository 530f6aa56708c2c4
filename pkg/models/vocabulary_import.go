package models

import (
	"time"

	"github.com/google/uuid"
)

// Vocabulary import outcome states.
const (
	ImportStatusCompleted = "completed"
	ImportStatusFailed    = "failed"
	ImportStatusSkipped   = "skipped"
)

// VocabularyImport is one row of the append-only bulk import log.
type VocabularyImport struct {
	ID              uuid.UUID `json:"id"`
	TableName       string    `json:"table_name"`
	FilePath        string    `json:"file_path"`
	RecordsImported int64     `json:"records_imported"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ImportDate      time.Time `json:"import_date"`
}

// TableImportResult is the per-table outcome of a bulk vocabulary import.
type TableImportResult struct {
	Status          string `json:"status"`
	RecordsImported int64  `json:"records_imported"`
	Error           string `json:"error,omitempty"`
}
