package table

import (
	"ledgerdash/internal/core"
)

// TextField exposes one searchable field of a record. ok is false when the
// field is absent, e.g. a nested object the backend did not join.
type TextField[T any] struct {
	Name string
	Get  func(T) (value string, ok bool)
}

// Column is one exported or rendered column.
type Column[T any] struct {
	Header string
	Get    func(T) (value any, ok bool)
}

// Schema describes how a record type is searched, ranged and rendered.
type Schema[T any] struct {
	SearchFields []TextField[T]
	// DateField is nil when the resource has no date to range over.
	DateField func(T) core.Date
	Columns   []Column[T]
}

// Text is a TextField over a plain string field.
func Text[T any](name string, get func(T) string) TextField[T] {
	return TextField[T]{Name: name, Get: func(r T) (string, bool) { return get(r), true }}
}

// Col is a Column over a value that is always present.
func Col[T any](header string, get func(T) any) Column[T] {
	return Column[T]{Header: header, Get: func(r T) (any, bool) { return get(r), true }}
}

// Headers returns the column headers in order.
func (s Schema[T]) Headers() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Header
	}
	return out
}
