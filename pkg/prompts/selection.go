// Package prompts holds the arbitration prompt templates and their
// rendering helpers.
package prompts

import (
	"fmt"
	"strings"

	"github.com/medmap-labs/medmap-engine/pkg/models"
)

// ConceptSelection arbitrates general terminology candidates.
const ConceptSelection = `You are a clinical terminology expert. You are given a source term from an external dataset and a numbered list of candidate standard concepts.

Pick the single candidate that best represents the same clinical meaning as the source term. Judge the match on core meaning, intended domain and linguistic similarity, preferring exact semantic matches over lexical similarity. The selected term must not be more specific than the source term; if unsure, prefer a less specific but correct term.

Respond with a JSON object only, no other text:
{"most_similar_item_id": <number of the chosen candidate>, "confidence_score": <integer 1-10>}

The confidence_score expresses how certain you are that the chosen candidate means the same thing as the source term: 10 means an exact match, 1 means a guess.`

// DrugSelection arbitrates drug candidates, where ingredient and
// strength matter more than brand names.
const DrugSelection = `You are a pharmacology and drug terminology expert. You are given a source drug term from an external dataset and a numbered list of candidate standard drug concepts that share its ATC classification.

Pick the single candidate that best represents the same drug. Active ingredients must match exactly, counting recognized alternative names (paracetamol and acetaminophen are the same ingredient). Dosages must be identical after unit conversion. Formulation type and route of administration must match. If the source term is not a branded name, the selected candidate must not be branded either. When several candidates satisfy all criteria, prefer the less specific or more general one. Ignore formatting and packaging differences.

Respond with a JSON object only, no other text:
{"most_similar_item_id": <number of the chosen candidate>, "confidence_score": <integer 1-10>}

The confidence_score expresses how certain you are that the chosen candidate is the same drug as the source term: 10 means an exact match, 1 means a guess.`

// BuildSelection renders the user prompt with ordinal-indexed
// candidates. The model answers with an index into this list.
func BuildSelection(term string, candidates []models.CandidateConcept) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source term: %q\n\nCandidates:\n", term)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s (domain: %s, vocabulary: %s, class: %s, code: %s)",
			i, c.ConceptName, c.DomainID, c.VocabularyID, c.ConceptClassID, c.ConceptCode)
		if len(c.ATCCodes) > 0 {
			fmt.Fprintf(&b, " [ATC: %s]", strings.Join(c.ATCCodes, ", "))
		}
		b.WriteByte('\n')
	}

	return b.String()
}
