package vector

// sourceIDOffset shifts source-concept point IDs into a numeric range
// disjoint from standard-concept IDs, so both kinds can share one
// collection. The inverse mapping is recoverable from the ID alone.
const sourceIDOffset int64 = 1_000_000_000

// Point is one vector plus its payload, keyed by a numeric point ID.
type Point struct {
	ID      int64          `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScoredPoint is one similarity search result.
type ScoredPoint struct {
	ID      int64          `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// NewPayload wraps the embedded text and its metadata in the payload
// layout every point uses.
func NewPayload(text string, metadata map[string]any) map[string]any {
	return map[string]any{
		"text":     text,
		"metadata": metadata,
	}
}

// SourcePointID converts a source concept ID to its vector point ID.
func SourcePointID(sourceID int64) int64 {
	return sourceIDOffset + sourceID
}

// IsSourcePoint reports whether a point ID belongs to a source concept.
func IsSourcePoint(pointID int64) bool {
	return pointID >= sourceIDOffset
}

// ConceptIDFromPoint recovers the original concept or source ID from a
// point ID.
func ConceptIDFromPoint(pointID int64) int64 {
	if IsSourcePoint(pointID) {
		return pointID - sourceIDOffset
	}
	return pointID
}
