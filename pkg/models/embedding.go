package models

import "time"

// ConceptKind distinguishes standard and source concepts inside one
// embedding collection.
const (
	ConceptKindStandard = "standard"
	ConceptKindSource   = "source"
)

// EmbeddedConcept tracks that one concept has been embedded into one
// collection/model combination. Unique per (concept_id, collection_name,
// concept_type); upserted, never deleted except on explicit reset.
type EmbeddedConcept struct {
	ConceptID          int64     `json:"concept_id"`
	CollectionName     string    `json:"collection_name"`
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddedAt         time.Time `json:"embedded_at"`
	ConceptType        string    `json:"concept_type"`
	SourceVocabularyID *int64    `json:"source_vocabulary_id,omitempty"`
}

// EmbeddingStatus summarizes embedding coverage for one collection.
// Pending counts concepts matching the filter that have no status row.
type EmbeddingStatus struct {
	Total      int64   `json:"total"`
	Embedded   int64   `json:"embedded"`
	Pending    int64   `json:"pending"`
	Percentage float64 `json:"percentage"`
}
