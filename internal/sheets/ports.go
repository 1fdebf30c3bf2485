package sheets

import (
	"context"
	"io"

	"ledgerdash/internal/table"
)

// Ports for outbound spreadsheet adapters.
type (
	SheetWriter interface {
		WriteSheet(ctx context.Context, s table.Sheet) (ref string, err error)
	}

	// Encoder writes a sheet straight to a stream, e.g. an HTTP download.
	Encoder interface {
		Encode(ctx context.Context, w io.Writer, s table.Sheet) error
	}
)
