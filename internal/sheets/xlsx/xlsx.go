package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"ledgerdash/internal/sheets"
	"ledgerdash/internal/table"
)

const defaultSheet = "Sheet1"

// Writer produces one .xlsx workbook per export, holding a single sheet.
type Writer struct {
	dir string
}

var (
	_ sheets.SheetWriter = (*Writer)(nil)
	_ sheets.Encoder     = (*Writer)(nil)
)

// New returns a writer saving workbooks under dir.
func New(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// WriteSheet saves the sheet as <dir>/<filename> and returns the path.
func (w *Writer) WriteSheet(ctx context.Context, s table.Sheet) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(strings.TrimSpace(s.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = s.Resource + ".xlsx"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		name += ".xlsx"
	}

	f, err := Build(s)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(w.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// Encode writes the workbook to out.
func (w *Writer) Encode(ctx context.Context, out io.Writer, s table.Sheet) error {
	return Encode(ctx, out, s)
}

// Encode writes a workbook for s to out without touching the filesystem.
func Encode(ctx context.Context, out io.Writer, s table.Sheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := Build(s)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build lays the grid out on a single named sheet: a bold header row
// followed by one row per record.
func Build(s table.Sheet) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := sheets.SheetName(s.Name)

	if sheetName != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheetName); err != nil {
			f.Close()
			return nil, fmt.Errorf("name sheet: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stream writer: %w", err)
	}
	if n := len(s.Grid.Headers); n > 0 {
		if err := sw.SetColWidth(1, n, 18); err != nil {
			f.Close()
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	values := sheets.Values(s.Grid)
	for i, row := range values {
		cells := make([]any, len(row))
		for j, v := range row {
			if i == 0 {
				cells[j] = excelize.Cell{StyleID: bold, Value: v}
			} else {
				cells[j] = v
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush sheet: %w", err)
	}
	return f, nil
}
