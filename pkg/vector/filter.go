package vector

// Filter builds server-side metadata conditions for a similarity search.
// All conditions are ANDed; each is either an exact match or an any-of
// set match against a payload field. Filtering must happen server-side
// so that the k semantics of a search hold.
type Filter struct {
	conditions []map[string]any
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Match adds an exact-match condition on a metadata field.
func (f *Filter) Match(field string, value any) *Filter {
	f.conditions = append(f.conditions, map[string]any{
		"key":   metadataKey(field),
		"match": map[string]any{"value": value},
	})
	return f
}

// MatchAny adds a set-membership condition: the payload field (scalar or
// array) must contain at least one of the given values. Used for ATC
// code set filtering.
func (f *Filter) MatchAny(field string, values []string) *Filter {
	if len(values) == 0 {
		return f
	}
	f.conditions = append(f.conditions, map[string]any{
		"key":   metadataKey(field),
		"match": map[string]any{"any": values},
	})
	return f
}

// Conditions returns a copy of the current condition list.
func (f *Filter) Conditions() []map[string]any {
	if f.IsEmpty() {
		return nil
	}
	out := make([]map[string]any, len(f.conditions))
	copy(out, f.conditions)
	return out
}

// IsEmpty reports whether the filter carries no conditions.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.conditions) == 0
}

// asMap renders the filter in the index's wire format, or nil when empty.
func (f *Filter) asMap() map[string]any {
	if f.IsEmpty() {
		return nil
	}
	must := make([]any, 0, len(f.conditions))
	for _, c := range f.conditions {
		must = append(must, c)
	}
	return map[string]any{"must": must}
}

// Payload fields are nested under "metadata" in every point.
func metadataKey(field string) string {
	return "metadata." + field
}
