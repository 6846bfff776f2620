package store

import "time"

// SortOrder is the direction of a sort field.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sort orders results by one document field.
type Sort struct {
	Field string
	Order SortOrder
}

// Query is the filtered, paginated search every store implementation
// understands. All term conditions are ANDed.
type Query struct {
	// Terms maps a field name to either a single value (equality) or a
	// slice of values (membership). Values compare against the JSON
	// encoding of the field.
	Terms map[string]any

	// IDs restricts the result to the given document ids when non-nil.
	IDs []string

	// EndDateBefore matches documents whose end_date field is set and
	// strictly older than the bound.
	EndDateBefore *time.Time

	Sorts []Sort

	// From/Size window the sorted result. Size <= 0 means no limit.
	From int
	Size int
}

// TermQuery is a convenience constructor for a single-field equality query.
func TermQuery(field string, value any) Query {
	return Query{Terms: map[string]any{field: value}}
}
