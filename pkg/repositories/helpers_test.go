package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/testhelpers"
)

// setupDB returns the shared test database with all mapping tables
// emptied. Tests in this package run against real PostgreSQL.
func setupDB(t *testing.T) *database.DB {
	t.Helper()

	db := testhelpers.GetEngineDB(t).DB
	truncateAll(t, db)
	return db
}

func truncateAll(t *testing.T, db *database.DB) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		TRUNCATE concept, concept_relationship, concept_ancestor,
		         source_concepts, source_standard_map, auto_mapping_audit,
		         concept_atc7, embedded_concepts, vocabulary_imports
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func seedConcept(t *testing.T, db *database.DB, conceptID int64, name, domainID, vocabularyID, classID, code, standard string) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO concept (concept_id, concept_name, domain_id, vocabulary_id, concept_class_id, standard_concept, concept_code)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		conceptID, name, domainID, vocabularyID, classID, standard, code)
	require.NoError(t, err)
}

func seedSourceConcept(t *testing.T, db *database.DB, value, name string, vocabularyID, freq int64) int64 {
	t.Helper()

	var sourceID int64
	err := db.QueryRow(context.Background(), `
		INSERT INTO source_concepts (source_value, source_concept_name, source_vocabulary_id, freq)
		VALUES ($1, $2, $3, $4)
		RETURNING source_id`,
		value, name, vocabularyID, freq).Scan(&sourceID)
	require.NoError(t, err)
	return sourceID
}

func seedRelationship(t *testing.T, db *database.DB, conceptID1, conceptID2 int64, relationshipID string) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO concept_relationship (concept_id_1, concept_id_2, relationship_id)
		VALUES ($1, $2, $3)`,
		conceptID1, conceptID2, relationshipID)
	require.NoError(t, err)
}

func seedAncestor(t *testing.T, db *database.DB, ancestorID, descendantID int64) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO concept_ancestor (ancestor_concept_id, descendant_concept_id)
		VALUES ($1, $2)`,
		ancestorID, descendantID)
	require.NoError(t, err)
}
