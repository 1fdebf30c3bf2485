package http

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"ledgerdash/internal/api"
	"ledgerdash/internal/catalog"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/services"
	"ledgerdash/internal/sheets"
	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// tableResponse is the rendered view of one resource.
type tableResponse struct {
	Resource string         `json:"resource"`
	Title    string         `json:"title"`
	State    table.State    `json:"state"`
	Criteria table.Criteria `json:"criteria"`
	Columns  []string       `json:"columns"`
	Rows     [][]string     `json:"rows"`
	Count    int            `json:"count"`
	Total    int            `json:"total"`
	Empty    bool           `json:"empty"`
	Message  string         `json:"message,omitempty"`
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]any{"tables": s.deps.Registry.Infos()}).Write(w)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	c, err := s.criteria(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var (
		t    catalog.Table
		snap catalog.Snapshot
	)
	err = s.withTable(r.Context(), mux.Vars(r)["name"], func(tbl catalog.Table, _ bool) error {
		t, snap = tbl, tbl.Render(c)
		if snap.State == table.Closed {
			return table.ErrClosed
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTable(w, t, snap)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	c, err := s.criteria(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var (
		t    catalog.Table
		snap catalog.Snapshot
	)
	err = s.withTable(r.Context(), mux.Vars(r)["name"], func(tbl catalog.Table, fresh bool) error {
		if !fresh {
			ctx, cancel := context.WithTimeout(r.Context(), s.cfg.LoadTimeout)
			err := tbl.Retry(ctx)
			cancel()
			switch {
			case errors.Is(err, table.ErrNotRetryable), errors.Is(err, table.ErrClosed):
				return err
			case errors.Is(err, api.ErrAuth):
				s.dropTable(r.Context(), tbl)
				return err
			}
		}
		t, snap = tbl, tbl.Render(c)
		if snap.State == table.Closed {
			return table.ErrClosed
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTable(w, t, snap)
}

// writeTable answers with a rendered snapshot. An errored table answers with
// its failure message and no rows.
func (s *Server) writeTable(w http.ResponseWriter, t catalog.Table, snap catalog.Snapshot) {
	info := t.Info()
	resp := tableResponse{
		Resource: info.Name,
		Title:    info.Title,
		State:    snap.State,
		Criteria: snap.Criteria,
		Columns:  info.Columns,
		Rows:     snap.Grid.StringRows(),
		Count:    snap.Count,
		Total:    snap.Total,
		Empty:    snap.OK() && snap.Grid.Empty,
		Message:  snap.Message,
	}

	status := http.StatusOK
	switch snap.State {
	case table.Loaded:
	case table.Errored:
		status = http.StatusBadGateway
		if errors.Is(t.Err(), api.ErrAuth) {
			status = http.StatusUnauthorized
		}
	default:
		status = http.StatusServiceUnavailable
	}
	NewJSONResponse().Status(status).JSON(resp).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, err := s.criteria(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dw := &downloadWriter{w: w, enc: s.deps.Encoder}
	var (
		name string
		res  table.ExportResult
	)
	err = s.withTable(r.Context(), mux.Vars(r)["name"], func(t catalog.Table, _ bool) error {
		name = t.Name()
		if t.State() == table.Errored {
			return t.Err()
		}
		var err error
		res, err = t.Export(r.Context(), c, dw)
		return err
	})
	if err != nil {
		if dw.started {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Export download aborted",
				applog.FieldResource, name,
				applog.FieldError, err.Error())
			return
		}
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Export downloaded",
		applog.FieldResource, name,
		applog.FieldOperation, applog.OpExport,
		"rows", res.Rows)
}

// downloadWriter streams a sheet as an attachment of the response.
type downloadWriter struct {
	w       http.ResponseWriter
	enc     sheets.Encoder
	started bool
}

func (d *downloadWriter) WriteSheet(ctx context.Context, sh table.Sheet) (string, error) {
	d.w.Header().Set("Content-Type", xlsxContentType)
	d.w.Header().Set("Content-Disposition", contentDisposition(sh.Filename))
	d.started = true
	if err := d.enc.Encode(ctx, d.w, sh); err != nil {
		return "", err
	}
	return sh.Filename, nil
}

type exportJobRequest struct {
	Search      string `json:"search" validate:"max=200"`
	From        string `json:"from"`
	To          string `json:"to"`
	FilterID    string `json:"filter_id"`
	Destination string `json:"destination" validate:"omitempty,oneof=xlsx sheets"`
}

func (s *Server) handleEnqueueExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		s.writeError(w, r, services.ErrQueueUnavailable)
		return
	}
	var req exportJobRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	name := mux.Vars(r)["name"]
	c, err := table.ParseCriteria(sanitizeInput(req.Search), req.From, req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FilterID != "" && c.IsEmpty() {
		if c, err = s.savedCriteria(r.Context(), name, req.FilterID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	msg, err := s.deps.Exports.Enqueue(r.Context(), name, c, req.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusAccepted).
		Header("Location", "/api/exports/"+msg.JobID).
		JSON(map[string]any{
			"job_id":   msg.JobID,
			"resource": msg.Resource,
			"criteria": msg.Criteria(),
			"status":   "queued",
		}).
		Write(w)
}

// table returns the caller's cached table for a resource, loading it on the
// first request. fresh reports whether this call performed the load.
// Concurrent first requests share one load; an auth failure is not cached.
func (s *Server) table(ctx context.Context, name string) (catalog.Table, bool, error) {
	desc, err := s.deps.Registry.Lookup(name)
	if err != nil {
		return nil, false, err
	}
	name = desc.Info().Name
	key := s.tableKey(ctx, name)
	if t, ok := s.cached(key); ok {
		return t, false, nil
	}

	v, err, _ := s.loads.Do(key, func() (any, error) {
		if t, ok := s.cached(key); ok {
			return t, nil
		}
		t := desc.Open(catalog.Deps{
			Client:  s.deps.Client,
			Session: sessionFrom(ctx),
			Logger:  s.deps.Logger,
		})
		// The load outlives the request that triggered it so that callers
		// sharing it are not cut off.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LoadTimeout)
		defer cancel()
		if err := t.Load(loadCtx); err != nil && errors.Is(err, api.ErrAuth) {
			t.Close()
			return nil, err
		}
		s.tables.Set(key, t)
		return t, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(catalog.Table), true, nil
}

// withTable runs use on the caller's table. A table closed by eviction
// between lookup and use is dropped and reopened once.
func (s *Server) withTable(ctx context.Context, name string, use func(t catalog.Table, fresh bool) error) error {
	for attempt := 0; ; attempt++ {
		t, fresh, err := s.table(ctx, name)
		if err != nil {
			return err
		}
		err = use(t, fresh)
		if attempt > 0 || !errors.Is(err, table.ErrClosed) {
			return err
		}
		s.dropTable(ctx, t)
	}
}

// cached returns the table stored under key unless it has been closed.
func (s *Server) cached(key string) (catalog.Table, bool) {
	t, ok := s.tables.Get(key)
	if !ok {
		return nil, false
	}
	if t.State() == table.Closed {
		s.tables.DeleteIf(key, func(v catalog.Table) bool { return v == t })
		return nil, false
	}
	return t, true
}

// dropTable removes t from the cache if it is still the entry for its key.
func (s *Server) dropTable(ctx context.Context, t catalog.Table) {
	s.tables.DeleteIf(s.tableKey(ctx, t.Name()), func(v catalog.Table) bool { return v == t })
}

func (s *Server) tableKey(ctx context.Context, name string) string {
	return sessionFrom(ctx).Digest() + "|" + name
}

// criteria reads q, from and to from the query string. Without them, a
// filter parameter selects a saved filter by ID or "default".
func (s *Server) criteria(r *http.Request) (table.Criteria, error) {
	query := r.URL.Query()
	if hasCriteriaParams(query) {
		return ParseCriteriaParams(query)
	}
	id := strings.TrimSpace(query.Get("filter"))
	if id == "" {
		return table.Criteria{}, nil
	}
	return s.savedCriteria(r.Context(), mux.Vars(r)["name"], id)
}

func (s *Server) savedCriteria(ctx context.Context, resource, id string) (table.Criteria, error) {
	if s.deps.Store == nil {
		return table.Criteria{}, errNoStore
	}
	desc, err := s.deps.Registry.Lookup(resource)
	if err != nil {
		return table.Criteria{}, err
	}
	resource = desc.Info().Name

	if id == "default" {
		f, ok, err := s.deps.Store.DefaultFilter(ctx, resource)
		if err != nil || !ok {
			return table.Criteria{}, err
		}
		return f.Criteria(), nil
	}
	f, err := s.deps.Store.GetFilter(ctx, id)
	if err != nil {
		return table.Criteria{}, err
	}
	if f.Resource != resource {
		return table.Criteria{}, fmt.Errorf("filter %s for %s: %w", id, resource, storage.ErrNotFound)
	}
	return f.Criteria(), nil
}

func contentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
