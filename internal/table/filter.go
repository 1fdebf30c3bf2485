package table

import (
	"slices"
	"strings"
)

// Apply narrows records to those satisfying every active criterion. It never
// modifies records and always returns a fresh slice, so views can be handed
// out without exposing the loaded resource.
func Apply[T any](records []T, schema Schema[T], c Criteria) []T {
	if c.IsEmpty() {
		if records == nil {
			return []T{}
		}
		return slices.Clone(records)
	}

	needle := strings.ToLower(strings.TrimSpace(c.Search))
	out := make([]T, 0, len(records))
	for _, r := range records {
		if needle != "" && !matchesText(r, schema.SearchFields, needle) {
			continue
		}
		if c.HasDateRange() && !inRange(r, schema, c) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesText[T any](r T, fields []TextField[T], needle string) bool {
	for _, f := range fields {
		v, ok := f.Get(r)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// inRange is inclusive on both ends at day granularity. Records without a
// date never satisfy an active range.
func inRange[T any](r T, schema Schema[T], c Criteria) bool {
	if schema.DateField == nil {
		return false
	}
	d := schema.DateField(r)
	if d.IsEmpty() {
		return false
	}
	if !c.From.IsEmpty() && d.CompareDay(c.From) < 0 {
		return false
	}
	if !c.To.IsEmpty() && d.CompareDay(c.To) > 0 {
		return false
	}
	return true
}
