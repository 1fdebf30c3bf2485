package storage

import (
	"context"
	"database/sql"
	"time"
)

const timeLayout = time.RFC3339Nano

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type savedFilterRow struct {
	ID        string
	Name      string
	Resource  string
	Search    string
	DateFrom  sql.NullString
	DateTo    sql.NullString
	IsDefault bool
	CreatedAt string
}

const savedFilterColumns = `id, name, resource, search, date_from, date_to, is_default, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSavedFilter(s scanner) (savedFilterRow, error) {
	var r savedFilterRow
	err := s.Scan(&r.ID, &r.Name, &r.Resource, &r.Search, &r.DateFrom, &r.DateTo, &r.IsDefault, &r.CreatedAt)
	return r, err
}

const insertSavedFilter = `
INSERT INTO saved_filters (` + savedFilterColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertSavedFilter(ctx context.Context, r savedFilterRow) error {
	_, err := q.db.ExecContext(ctx, insertSavedFilter,
		r.ID, r.Name, r.Resource, r.Search, r.DateFrom, r.DateTo, r.IsDefault, r.CreatedAt)
	return err
}

const clearDefaultFilters = `UPDATE saved_filters SET is_default = 0 WHERE resource = ? AND id != ?`

func (q *Queries) ClearDefaultFilters(ctx context.Context, resource, keepID string) error {
	_, err := q.db.ExecContext(ctx, clearDefaultFilters, resource, keepID)
	return err
}

const getSavedFilter = `SELECT ` + savedFilterColumns + ` FROM saved_filters WHERE id = ?`

func (q *Queries) GetSavedFilter(ctx context.Context, id string) (savedFilterRow, error) {
	return scanSavedFilter(q.db.QueryRowContext(ctx, getSavedFilter, id))
}

const getDefaultFilter = `SELECT ` + savedFilterColumns + ` FROM saved_filters WHERE resource = ? AND is_default = 1 LIMIT 1`

func (q *Queries) GetDefaultFilter(ctx context.Context, resource string) (savedFilterRow, error) {
	return scanSavedFilter(q.db.QueryRowContext(ctx, getDefaultFilter, resource))
}

const listSavedFilters = `
SELECT ` + savedFilterColumns + `
FROM saved_filters
WHERE resource = ?
ORDER BY is_default DESC, name ASC`

func (q *Queries) ListSavedFilters(ctx context.Context, resource string) ([]savedFilterRow, error) {
	rows, err := q.db.QueryContext(ctx, listSavedFilters, resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []savedFilterRow
	for rows.Next() {
		r, err := scanSavedFilter(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteSavedFilter = `DELETE FROM saved_filters WHERE id = ?`

func (q *Queries) DeleteSavedFilter(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSavedFilter, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type exportRow struct {
	ID          string
	JobID       string
	Resource    string
	Destination string
	RowCount    int64
	Status      string
	Error       string
	CreatedAt   string
	UpdatedAt   string
}

const exportColumns = `id, job_id, resource, destination, row_count, status, error, created_at, updated_at`

func scanExport(s scanner) (exportRow, error) {
	var r exportRow
	err := s.Scan(&r.ID, &r.JobID, &r.Resource, &r.Destination, &r.RowCount, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const insertExport = `
INSERT INTO export_log (` + exportColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertExport(ctx context.Context, r exportRow) error {
	_, err := q.db.ExecContext(ctx, insertExport,
		r.ID, r.JobID, r.Resource, r.Destination, r.RowCount, r.Status, r.Error, r.CreatedAt, r.UpdatedAt)
	return err
}

const updateExportByJob = `
UPDATE export_log
SET destination = ?, row_count = ?, status = ?, error = ?, updated_at = ?
WHERE job_id = ?`

func (q *Queries) UpdateExportByJob(ctx context.Context, jobID, destination string, rowCount int64, status, errMsg, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExportByJob, destination, rowCount, status, errMsg, updatedAt, jobID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getExportByJob = `SELECT ` + exportColumns + ` FROM export_log WHERE job_id = ?`

func (q *Queries) GetExportByJob(ctx context.Context, jobID string) (exportRow, error) {
	return scanExport(q.db.QueryRowContext(ctx, getExportByJob, jobID))
}

const listExports = `
SELECT ` + exportColumns + `
FROM export_log
WHERE (? = '' OR resource = ?)
ORDER BY created_at DESC
LIMIT ?`

func (q *Queries) ListExports(ctx context.Context, resource string, limit int64) ([]exportRow, error) {
	rows, err := q.db.QueryContext(ctx, listExports, resource, resource, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []exportRow
	for rows.Next() {
		r, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
