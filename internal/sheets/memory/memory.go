package memory

import (
	"context"
	"fmt"
	"sync"

	ports "ledgerdash/internal/sheets"
	"ledgerdash/internal/table"
)

// Store keeps exported sheets in memory, for dry runs and tests.
type Store struct {
	mu     sync.Mutex
	sheets []table.Sheet
}

var _ ports.SheetWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteSheet stores the sheet and returns a synthetic reference.
func (s *Store) WriteSheet(ctx context.Context, sh table.Sheet) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets = append(s.sheets, sh)
	return fmt.Sprintf("mem:%d", len(s.sheets)), nil
}

// Sheets returns a copy of everything written so far.
func (s *Store) Sheets() []table.Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]table.Sheet(nil), s.sheets...)
}

// Last returns the most recent sheet written for a resource.
func (s *Store) Last(resource string) (table.Sheet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sheets) - 1; i >= 0; i-- {
		if s.sheets[i].Resource == resource {
			return s.sheets[i], true
		}
	}
	return table.Sheet{}, false
}
