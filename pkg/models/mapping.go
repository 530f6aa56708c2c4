package models

import "time"

// MappingMethod records how a mapping decision was made.
const (
	MethodManual       = "manual"
	MethodAutoStandard = "auto_standard"
	MethodAutoDrug     = "auto_drug"
)

// ConceptMapping links one source concept to one standard concept.
// A source concept may carry multiple live mappings, but the set is
// replaced atomically on every re-map.
type ConceptMapping struct {
	SourceID  int64 `json:"source_id"`
	ConceptID int64 `json:"concept_id"`

	// ConfidenceScore is set for auto mappings (1-10); nil for manual.
	ConfidenceScore *int `json:"confidence_score,omitempty"`
}

// MappingAuditRecord is an immutable log entry explaining why a mapping
// was made. Stored append-only in the auto_mapping_audit table.
type MappingAuditRecord struct {
	SourceID        int64     `json:"source_id"`
	ConceptID       int64     `json:"concept_id"`
	ConfidenceScore *int      `json:"confidence_score,omitempty"`
	MappingMethod   string    `json:"mapping_method"`
	TargetDomains   []string  `json:"target_domains"`
	CreatedAt       time.Time `json:"created_at"`
}

// MappedConcept is a joined view of a source concept and the standard
// concept it is currently mapped to.
type MappedConcept struct {
	SourceID          int64  `json:"source_id"`
	SourceValue       string `json:"source_value"`
	SourceConceptName string `json:"source_concept_name"`
	ConceptID         int64  `json:"concept_id"`
	ConceptName       string `json:"concept_name"`
	DomainID          string `json:"domain_id"`
	Frequency         int64  `json:"freq"`
}

// MappingMethodStats aggregates audit rows per mapping method.
type MappingMethodStats struct {
	MappingMethod string  `json:"mapping_method"`
	MappingCount  int64   `json:"mapping_count"`
	AvgConfidence float64 `json:"avg_confidence"`
	MinConfidence int     `json:"min_confidence"`
	MaxConfidence int     `json:"max_confidence"`
}

// RecentMapping is one row of the recent auto-mapping listing.
type RecentMapping struct {
	SourceConceptName string    `json:"source_concept_name"`
	MappedConceptName string    `json:"mapped_concept_name"`
	ConfidenceScore   *int      `json:"confidence_score,omitempty"`
	MappingMethod     string    `json:"mapping_method"`
	TargetDomains     []string  `json:"target_domains"`
	CreatedAt         time.Time `json:"created_at"`
}
