package table

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ledgerdash/internal/core"
)

const (
	// EmptyMessage replaces the table body when a view has no records.
	EmptyMessage = "No records found"
	// Placeholder is rendered for fields the backend did not provide.
	Placeholder = "-"
)

var ErrSerialization = errors.New("serialization error")

// View is a filtered snapshot of a loaded resource.
type View[T any] struct {
	Records  []T
	Criteria Criteria
	Total    int
}

func (v View[T]) Count() int {
	return len(v.Records)
}

func (v View[T]) Empty() bool {
	return len(v.Records) == 0
}

// Grid is the rendered, type-erased form of a view: what a table body or a
// spreadsheet receives.
type Grid struct {
	Headers []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Empty   bool     `json:"empty"`
	Message string   `json:"message,omitempty"`
}

func (g Grid) Len() int {
	return len(g.Rows)
}

// StringRows renders every cell as text.
func (g Grid) StringRows() [][]string {
	out := make([][]string, len(g.Rows))
	for i, row := range g.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatCell(v)
		}
		out[i] = cells
	}
	return out
}

// Render converts a view into a grid using the schema's columns. A failing
// accessor only affects its own cell.
func Render[T any](schema Schema[T], v View[T]) Grid {
	g := Grid{
		Headers: schema.Headers(),
		Rows:    make([][]any, 0, len(v.Records)),
	}
	for _, r := range v.Records {
		row := make([]any, len(schema.Columns))
		for i, col := range schema.Columns {
			row[i] = cell(col, r)
		}
		g.Rows = append(g.Rows, row)
	}
	if len(g.Rows) == 0 {
		g.Empty = true
		g.Message = EmptyMessage
	}
	return g
}

func cell[T any](col Column[T], r T) (out any) {
	defer func() {
		if recover() != nil {
			out = Placeholder
		}
	}()
	v, ok := col.Get(r)
	if !ok || v == nil {
		return Placeholder
	}
	if d, isDate := v.(core.Date); isDate && d.IsEmpty() {
		return Placeholder
	}
	return v
}

// FormatCell renders one cell value as text.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return Placeholder
	case string:
		return x
	case core.Date:
		if x.IsEmpty() {
			return Placeholder
		}
		return x.String()
	case time.Time:
		return x.Format(core.DateLayout)
	case decimal.Decimal:
		return x.StringFixed(2)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Sheet is one spreadsheet export request.
type Sheet struct {
	Resource string
	Filename string
	Name     string
	Grid     Grid
}

// Writer serialises a grid to a spreadsheet destination and returns a
// reference to what it wrote (a path, a range, ...).
type Writer interface {
	WriteSheet(ctx context.Context, s Sheet) (ref string, err error)
}
