package storage

import (
	"errors"
	"time"

	"ledgerdash/internal/core"
	"ledgerdash/internal/table"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrFilterExists  = errors.New("a filter with this name already exists for the resource")
	ErrInvalidFilter = errors.New("invalid saved filter")
)

// SavedFilter is a named set of criteria for one resource.
type SavedFilter struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Resource  string    `json:"resource"`
	Search    string    `json:"search"`
	DateFrom  core.Date `json:"date_from"`
	DateTo    core.Date `json:"date_to"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// Criteria converts the saved filter into table criteria.
func (f SavedFilter) Criteria() table.Criteria {
	return table.Criteria{Search: f.Search, From: f.DateFrom, To: f.DateTo}
}

// ExportStatus is the lifecycle of one export job.
type ExportStatus string

const (
	ExportQueued ExportStatus = "queued"
	ExportDone   ExportStatus = "done"
	ExportFailed ExportStatus = "failed"
)

// ExportRecord is one row of the export log.
type ExportRecord struct {
	ID          string       `json:"id"`
	JobID       string       `json:"job_id"`
	Resource    string       `json:"resource"`
	Destination string       `json:"destination"`
	Rows        int          `json:"rows"`
	Status      ExportStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
