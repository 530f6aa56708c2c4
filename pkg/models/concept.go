package models

// StandardConcept is a canonical terminology entry from the reference
// vocabulary. Stored in the concept table; read-only at runtime.
type StandardConcept struct {
	ConceptID      int64  `json:"concept_id"`
	ConceptName    string `json:"concept_name"`
	DomainID       string `json:"domain_id"`
	VocabularyID   string `json:"vocabulary_id"`
	ConceptClassID string `json:"concept_class_id"`
	ConceptCode    string `json:"concept_code"`
	Standard       bool   `json:"standard"`
}

// SourceConcept is a free-text term from an external dataset awaiting
// standardization. Stored in the source_concepts table.
//
// ATCCode is an optional attached value for drug-domain terms; the
// mapping pipeline treats all source concepts uniformly except for it.
type SourceConcept struct {
	SourceID           int64  `json:"source_id"`
	SourceValue        string `json:"source_value"`
	SourceConceptName  string `json:"source_concept_name"`
	SourceVocabularyID int64  `json:"source_vocabulary_id"`
	Frequency          int64  `json:"freq"`
	Mapped             bool   `json:"mapped"`
	ATCCode            string `json:"atc_code,omitempty"`
}

// CandidateConcept is one ranked result from a vector similarity search.
type CandidateConcept struct {
	Score          float64  `json:"score"`
	ConceptID      int64    `json:"concept_id"`
	ConceptName    string   `json:"concept_name"`
	DomainID       string   `json:"domain_id"`
	VocabularyID   string   `json:"vocabulary_id"`
	ConceptClassID string   `json:"concept_class_id"`
	ConceptCode    string   `json:"concept_code"`
	ATCCodes       []string `json:"atc7_codes,omitempty"`
}

// ConceptATCCodes is the resolved set of 7-character ATC codes for one
// drug-domain standard concept. Stored in the concept_atc7 table; the
// table is fully rebuilt on each hierarchy resolution run.
type ConceptATCCodes struct {
	ConceptID int64    `json:"concept_id"`
	Codes     []string `json:"atc7_codes"`
}
