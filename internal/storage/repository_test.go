package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"

	"ledgerdash/internal/core"
	"ledgerdash/internal/table"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndListFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acme, err := repo.SaveFilter(ctx, SavedFilter{
		Name:     "Acme May",
		Resource: "expenses",
		Search:   " acme ",
		DateFrom: core.NewDate(2024, 5, 10),
		DateTo:   core.NewDate(2024, 5, 20),
	})
	if err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}
	if acme.ID == "" || acme.CreatedAt.IsZero() || acme.Search != "acme" {
		t.Fatalf("unexpected saved filter %+v", acme)
	}

	if _, err := repo.SaveFilter(ctx, SavedFilter{Name: "Beta", Resource: "expenses", Search: "beta", IsDefault: true}); err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}
	if _, err := repo.SaveFilter(ctx, SavedFilter{Name: "Open", Resource: "orders", Search: "open"}); err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}

	list, err := repo.ListFilters(ctx, "expenses")
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	var names []string
	for _, f := range list {
		names = append(names, f.Name)
	}
	if diff := deep.Equal(names, []string{"Beta", "Acme May"}); diff != nil {
		t.Errorf("expected default first then by name: %v", diff)
	}

	got, err := repo.GetFilter(ctx, acme.ID)
	if err != nil {
		t.Fatalf("GetFilter: %v", err)
	}
	want := table.Criteria{Search: "acme", From: core.NewDate(2024, 5, 10), To: core.NewDate(2024, 5, 20)}
	if diff := deep.Equal(got.Criteria(), want); diff != nil {
		t.Error(diff)
	}
}

func TestSaveFilterRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filter  SavedFilter
		wantErr error
	}{
		{"missing name", SavedFilter{Resource: "orders"}, ErrInvalidFilter},
		{"missing resource", SavedFilter{Name: "x"}, ErrInvalidFilter},
		{"inverted range", SavedFilter{Name: "x", Resource: "orders", DateFrom: core.NewDate(2024, 5, 20), DateTo: core.NewDate(2024, 5, 10)}, ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.SaveFilter(ctx, tt.filter); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("duplicate name per resource", func(t *testing.T) {
		if _, err := repo.SaveFilter(ctx, SavedFilter{Name: "Same", Resource: "orders"}); err != nil {
			t.Fatalf("SaveFilter: %v", err)
		}
		if _, err := repo.SaveFilter(ctx, SavedFilter{Name: "Same", Resource: "orders"}); !errors.Is(err, ErrFilterExists) {
			t.Fatalf("expected ErrFilterExists, got %v", err)
		}
		if _, err := repo.SaveFilter(ctx, SavedFilter{Name: "Same", Resource: "products"}); err != nil {
			t.Fatalf("same name on another resource should be allowed: %v", err)
		}
	})
}

func TestDefaultFilterIsUnique(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.DefaultFilter(ctx, "orders"); err != nil || ok {
		t.Fatalf("expected no default, got ok=%v err=%v", ok, err)
	}
	first, err := repo.SaveFilter(ctx, SavedFilter{Name: "First", Resource: "orders", IsDefault: true})
	if err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}
	second, err := repo.SaveFilter(ctx, SavedFilter{Name: "Second", Resource: "orders", IsDefault: true})
	if err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}

	def, ok, err := repo.DefaultFilter(ctx, "orders")
	if err != nil || !ok || def.ID != second.ID {
		t.Fatalf("expected second to be default, got %+v ok=%v err=%v", def, ok, err)
	}
	prev, err := repo.GetFilter(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetFilter: %v", err)
	}
	if prev.IsDefault {
		t.Fatal("expected previous default to be cleared")
	}
}

func TestDeleteFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	f, err := repo.SaveFilter(ctx, SavedFilter{Name: "Tmp", Resource: "orders"})
	if err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}
	if err := repo.DeleteFilter(ctx, f.ID); err != nil {
		t.Fatalf("DeleteFilter: %v", err)
	}
	if err := repo.DeleteFilter(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetFilter(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExportLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	queued, err := repo.RecordExport(ctx, "job-1", "orders")
	if err != nil {
		t.Fatalf("RecordExport: %v", err)
	}
	if queued.Status != ExportQueued {
		t.Fatalf("expected queued, got %s", queued.Status)
	}
	again, err := repo.RecordExport(ctx, "job-1", "orders")
	if err != nil || again.ID != queued.ID {
		t.Fatalf("expected recording the same job twice to be idempotent, got %+v %v", again, err)
	}

	done, err := repo.FinishExport(ctx, "job-1", "orders", "exports/orders.xlsx", 3, nil)
	if err != nil {
		t.Fatalf("FinishExport: %v", err)
	}
	if done.Status != ExportDone || done.Rows != 3 || done.Destination != "exports/orders.xlsx" {
		t.Fatalf("unexpected record %+v", done)
	}

	failed, err := repo.FinishExport(ctx, "job-2", "products", "", 0, errors.New("backend unavailable"))
	if err != nil {
		t.Fatalf("FinishExport: %v", err)
	}
	if failed.Status != ExportFailed || failed.Error != "backend unavailable" {
		t.Fatalf("unexpected record %+v", failed)
	}

	all, err := repo.ListExports(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(all))
	}
	orders, err := repo.ListExports(ctx, "orders", 10)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(orders) != 1 || orders[0].JobID != "job-1" {
		t.Fatalf("unexpected orders exports %+v", orders)
	}

	if _, err := repo.GetExport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
