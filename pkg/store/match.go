package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Matches evaluates a Query's term conditions against a decoded document.
// Implementations that filter client-side (memory, redis) share it; SQL-backed
// implementations translate the query instead.
func Matches(doc map[string]any, query Query) bool {
	for field, want := range query.Terms {
		got, ok := doc[field]
		if !ok {
			return false
		}

		switch want := want.(type) {
		case []any:
			found := false

			for _, candidate := range want {
				if looseEqual(got, candidate) {
					found = true

					break
				}
			}

			if !found {
				return false
			}
		default:
			if !looseEqual(got, want) {
				return false
			}
		}
	}

	if query.EndDateBefore != nil {
		endDate, ok := docTime(doc, "end_date")
		if !ok || !endDate.Before(*query.EndDateBefore) {
			return false
		}
	}

	return true
}

// SortDocuments orders decoded documents in place by the query's sort fields,
// breaking remaining ties by document id so pagination is stable.
func SortDocuments(docs []map[string]any, sorts []Sort) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range sorts {
			cmp := compareField(docs[i], docs[j], s.Field)
			if cmp == 0 {
				continue
			}

			if s.Order == SortDesc {
				return cmp > 0
			}

			return cmp < 0
		}

		return fieldString(docs[i], "id") < fieldString(docs[j], "id")
	})
}

// compareField orders two documents by one field. RFC3339 values compare as
// instants (lexicographic comparison would put "10:00:00Z" after
// "10:00:00.5Z"); everything else falls back to the normalized string form.
func compareField(left, right map[string]any, field string) int {
	if l, ok := docTime(left, field); ok {
		if r, ok := docTime(right, field); ok {
			return l.Compare(r)
		}
	}

	return strings.Compare(fieldString(left, field), fieldString(right, field))
}

// Window applies the query's from/size paging to a sorted result.
func Window[T any](items []T, from, size int) []T {
	if from >= len(items) {
		return nil
	}

	items = items[from:]
	if size > 0 && size < len(items) {
		items = items[:size]
	}

	return items
}

// looseEqual compares a decoded JSON value with a query term. Decoded JSON
// numbers arrive as float64, while callers pass int64 or int32 keys, so
// numeric values compare numerically and everything else by string form.
func looseEqual(got, want any) bool {
	gotNum, gotOK := asFloat(got)
	wantNum, wantOK := asFloat(want)

	if gotOK && wantOK {
		return gotNum == wantNum
	}

	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	}

	return 0, false
}

func docTime(doc map[string]any, field string) (time.Time, bool) {
	raw, ok := doc[field].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}

	return parsed, true
}

func fieldString(doc map[string]any, field string) string {
	value, ok := doc[field]
	if !ok {
		return ""
	}

	if num, ok := asFloat(value); ok {
		// Zero-pad so numeric fields sort numerically as strings.
		return fmt.Sprintf("%020.6f", num)
	}

	return fmt.Sprintf("%v", value)
}
