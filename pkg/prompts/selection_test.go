package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medmap-labs/medmap-engine/pkg/models"
)

func TestBuildSelection_IndexesCandidatesFromZero(t *testing.T) {
	prompt := BuildSelection("metformin 500mg", []models.CandidateConcept{
		{ConceptID: 100, ConceptName: "Metformin", DomainID: "Drug", VocabularyID: "RxNorm", ConceptClassID: "Ingredient", ConceptCode: "6809"},
		{ConceptID: 200, ConceptName: "Metformin 500 MG Oral Tablet", DomainID: "Drug", VocabularyID: "RxNorm", ConceptClassID: "Clinical Drug", ConceptCode: "861007"},
	})

	assert.Contains(t, prompt, `Source term: "metformin 500mg"`)
	assert.Contains(t, prompt, "0. Metformin (domain: Drug")
	assert.Contains(t, prompt, "1. Metformin 500 MG Oral Tablet")
}

func TestConceptSelection_PrefersLessSpecificTerms(t *testing.T) {
	assert.Contains(t, ConceptSelection, "must not be more specific than the source term")
	assert.Contains(t, ConceptSelection, "prefer a less specific but correct term")
}

func TestDrugSelection_RequiresExactPharmaceuticalMatch(t *testing.T) {
	assert.Contains(t, DrugSelection, "Active ingredients must match exactly")
	assert.Contains(t, DrugSelection, "Dosages must be identical")
	assert.Contains(t, DrugSelection, "Formulation type and route of administration must match")
	assert.Contains(t, DrugSelection, "must not be branded")
}

func TestBuildSelection_IncludesATCCodesWhenPresent(t *testing.T) {
	prompt := BuildSelection("metformin", []models.CandidateConcept{
		{ConceptName: "Metformin", DomainID: "Drug", ATCCodes: []string{"A10BA02"}},
		{ConceptName: "Hypertension", DomainID: "Condition"},
	})

	assert.Contains(t, prompt, "[ATC: A10BA02]")
	assert.NotContains(t, prompt, "Hypertension (domain: Condition, vocabulary: , class: , code: ) [ATC:")
}
