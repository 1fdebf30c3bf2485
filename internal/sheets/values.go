package sheets

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledgerdash/internal/core"
	"ledgerdash/internal/table"
)

const maxSheetName = 31

// Values converts a grid into spreadsheet cell values, header row first.
// Money becomes a number and dates become ISO text so that both backends
// can sort and sum them.
func Values(g table.Grid) [][]any {
	out := make([][]any, 0, len(g.Rows)+1)
	header := make([]any, len(g.Headers))
	for i, h := range g.Headers {
		header[i] = h
	}
	out = append(out, header)
	for _, row := range g.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = CellValue(v)
		}
		out = append(out, cells)
	}
	return out
}

// CellValue maps a rendered cell to a value spreadsheet libraries accept.
func CellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return table.Placeholder
	case decimal.Decimal:
		return x.InexactFloat64()
	case core.Date:
		if x.IsEmpty() {
			return table.Placeholder
		}
		return x.String()
	case time.Time:
		return x.Format(core.DateLayout)
	case string, bool, int, int64, float64:
		return x
	default:
		return table.FormatCell(x)
	}
}

// SheetName makes name usable as a worksheet title.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Sheet1"
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}
