package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledgerdash/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Serialise writers; SQLite allows one at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveFilter stores a new saved filter. Saving a default clears the other
// defaults of the same resource.
func (r *SQLiteRepository) SaveFilter(ctx context.Context, f SavedFilter) (SavedFilter, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Resource = strings.TrimSpace(f.Resource)
	f.Search = strings.TrimSpace(f.Search)
	if f.Name == "" || f.Resource == "" {
		return SavedFilter{}, fmt.Errorf("%w: name and resource are required", ErrInvalidFilter)
	}
	if !f.DateFrom.IsEmpty() && !f.DateTo.IsEmpty() && f.DateFrom.CompareDay(f.DateTo) > 0 {
		return SavedFilter{}, fmt.Errorf("%w: start date is after end date", ErrInvalidFilter)
	}

	f.ID = uuid.NewString()
	f.CreatedAt = r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return SavedFilter{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if f.IsDefault {
		if err := q.ClearDefaultFilters(ctx, f.Resource, f.ID); err != nil {
			return SavedFilter{}, fmt.Errorf("clear default filters: %w", err)
		}
	}
	if err := q.InsertSavedFilter(ctx, toFilterRow(f)); err != nil {
		if isUniqueViolation(err) {
			return SavedFilter{}, fmt.Errorf("%w: %q", ErrFilterExists, f.Name)
		}
		return SavedFilter{}, fmt.Errorf("insert saved filter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SavedFilter{}, fmt.Errorf("commit saved filter: %w", err)
	}

	slog.InfoContext(ctx, "Saved filter created",
		"id", f.ID,
		"resource", f.Resource,
		"name", f.Name,
		"is_default", f.IsDefault)

	return f, nil
}

// ListFilters returns the saved filters of a resource, default first.
func (r *SQLiteRepository) ListFilters(ctx context.Context, resource string) ([]SavedFilter, error) {
	rows, err := r.queries.ListSavedFilters(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("list saved filters: %w", err)
	}
	out := make([]SavedFilter, 0, len(rows))
	for _, row := range rows {
		f, err := fromFilterRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *SQLiteRepository) GetFilter(ctx context.Context, id string) (SavedFilter, error) {
	row, err := r.queries.GetSavedFilter(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SavedFilter{}, fmt.Errorf("saved filter %s: %w", id, ErrNotFound)
		}
		return SavedFilter{}, fmt.Errorf("get saved filter: %w", err)
	}
	return fromFilterRow(row)
}

// DefaultFilter returns the default filter of a resource, if one is set.
func (r *SQLiteRepository) DefaultFilter(ctx context.Context, resource string) (SavedFilter, bool, error) {
	row, err := r.queries.GetDefaultFilter(ctx, resource)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SavedFilter{}, false, nil
		}
		return SavedFilter{}, false, fmt.Errorf("get default filter: %w", err)
	}
	f, err := fromFilterRow(row)
	return f, err == nil, err
}

func (r *SQLiteRepository) DeleteFilter(ctx context.Context, id string) error {
	n, err := r.queries.DeleteSavedFilter(ctx, id)
	if err != nil {
		return fmt.Errorf("delete saved filter: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("saved filter %s: %w", id, ErrNotFound)
	}
	slog.InfoContext(ctx, "Saved filter deleted", "id", id)
	return nil
}

// RecordExport adds a queued export to the log.
func (r *SQLiteRepository) RecordExport(ctx context.Context, jobID, resource string) (ExportRecord, error) {
	now := r.now()
	rec := ExportRecord{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Resource:  resource,
		Status:    ExportQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.queries.InsertExport(ctx, toExportRow(rec)); err != nil {
		if isUniqueViolation(err) {
			return r.GetExport(ctx, jobID)
		}
		return ExportRecord{}, fmt.Errorf("insert export: %w", err)
	}
	return rec, nil
}

// FinishExport records the outcome of a job. A job that was never queued
// through RecordExport is inserted.
func (r *SQLiteRepository) FinishExport(ctx context.Context, jobID, resource, destination string, rows int, jobErr error) (ExportRecord, error) {
	status, msg := ExportDone, ""
	if jobErr != nil {
		status, msg = ExportFailed, jobErr.Error()
	}
	now := r.now()
	n, err := r.queries.UpdateExportByJob(ctx, jobID, destination, int64(rows), string(status), msg, now.Format(timeLayout))
	if err != nil {
		return ExportRecord{}, fmt.Errorf("update export: %w", err)
	}
	if n == 0 {
		rec := ExportRecord{
			ID:          uuid.NewString(),
			JobID:       jobID,
			Resource:    resource,
			Destination: destination,
			Rows:        rows,
			Status:      status,
			Error:       msg,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := r.queries.InsertExport(ctx, toExportRow(rec)); err != nil {
			return ExportRecord{}, fmt.Errorf("insert export: %w", err)
		}
	}
	return r.GetExport(ctx, jobID)
}

func (r *SQLiteRepository) GetExport(ctx context.Context, jobID string) (ExportRecord, error) {
	row, err := r.queries.GetExportByJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExportRecord{}, fmt.Errorf("export job %s: %w", jobID, ErrNotFound)
		}
		return ExportRecord{}, fmt.Errorf("get export: %w", err)
	}
	return fromExportRow(row)
}

// ListExports returns the most recent exports, optionally for one resource.
func (r *SQLiteRepository) ListExports(ctx context.Context, resource string, limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListExports(ctx, resource, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	out := make([]ExportRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromExportRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullDate(d core.Date) sql.NullString {
	if d.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (core.Date, error) {
	if !s.Valid {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}

func toFilterRow(f SavedFilter) savedFilterRow {
	return savedFilterRow{
		ID:        f.ID,
		Name:      f.Name,
		Resource:  f.Resource,
		Search:    f.Search,
		DateFrom:  nullDate(f.DateFrom),
		DateTo:    nullDate(f.DateTo),
		IsDefault: f.IsDefault,
		CreatedAt: f.CreatedAt.Format(timeLayout),
	}
}

func fromFilterRow(row savedFilterRow) (SavedFilter, error) {
	from, err := parseNullDate(row.DateFrom)
	if err != nil {
		return SavedFilter{}, fmt.Errorf("saved filter %s date_from: %w", row.ID, err)
	}
	to, err := parseNullDate(row.DateTo)
	if err != nil {
		return SavedFilter{}, fmt.Errorf("saved filter %s date_to: %w", row.ID, err)
	}
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return SavedFilter{}, fmt.Errorf("saved filter %s created_at: %w", row.ID, err)
	}
	return SavedFilter{
		ID:        row.ID,
		Name:      row.Name,
		Resource:  row.Resource,
		Search:    row.Search,
		DateFrom:  from,
		DateTo:    to,
		IsDefault: row.IsDefault,
		CreatedAt: created,
	}, nil
}

func toExportRow(rec ExportRecord) exportRow {
	return exportRow{
		ID:          rec.ID,
		JobID:       rec.JobID,
		Resource:    rec.Resource,
		Destination: rec.Destination,
		RowCount:    int64(rec.Rows),
		Status:      string(rec.Status),
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt.Format(timeLayout),
		UpdatedAt:   rec.UpdatedAt.Format(timeLayout),
	}
}

func fromExportRow(row exportRow) (ExportRecord, error) {
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return ExportRecord{}, fmt.Errorf("export %s created_at: %w", row.JobID, err)
	}
	updated, err := time.Parse(timeLayout, row.UpdatedAt)
	if err != nil {
		return ExportRecord{}, fmt.Errorf("export %s updated_at: %w", row.JobID, err)
	}
	return ExportRecord{
		ID:          row.ID,
		JobID:       row.JobID,
		Resource:    row.Resource,
		Destination: row.Destination,
		Rows:        int(row.RowCount),
		Status:      ExportStatus(row.Status),
		Error:       row.Error,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}
