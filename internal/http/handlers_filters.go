package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	applog "ledgerdash/internal/log"
	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

var errNoStore = errors.New("saved filters and export history are not configured")

type saveFilterRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Search    string `json:"search" validate:"max=200"`
	From      string `json:"from"`
	To        string `json:"to"`
	IsDefault bool   `json:"is_default"`
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	desc, err := s.deps.Registry.Lookup(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filters, err := s.deps.Store.ListFilters(r.Context(), desc.Info().Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if filters == nil {
		filters = []storage.SavedFilter{}
	}
	NewJSONResponse().JSON(map[string]any{"filters": filters}).Write(w)
}

func (s *Server) handleSaveFilter(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	desc, err := s.deps.Registry.Lookup(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req saveFilterRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := table.ParseCriteria(sanitizeInput(req.Search), req.From, req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, err := s.deps.Store.SaveFilter(r.Context(), storage.SavedFilter{
		Name:      sanitizeInput(req.Name),
		Resource:  desc.Info().Name,
		Search:    c.Search,
		DateFrom:  c.From,
		DateTo:    c.To,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Filter saved",
		applog.FieldResource, f.Resource,
		applog.FieldOperation, applog.OpCreate,
		"filter_id", f.ID)
	NewJSONResponse().Status(http.StatusCreated).JSON(f).Write(w)
}

func (s *Server) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.deps.Store.DeleteFilter(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Filter deleted",
		applog.FieldOperation, applog.OpDelete,
		"filter_id", id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	query := r.URL.Query()
	resource := query.Get("resource")
	if resource != "" {
		desc, err := s.deps.Registry.Lookup(resource)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resource = desc.Info().Name
	}
	limit := 50
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			BadRequestError("limit must be between 1 and 500").Write(w)
			return
		}
		limit = n
	}

	exports, err := s.deps.Store.ListExports(r.Context(), resource, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if exports == nil {
		exports = []storage.ExportRecord{}
	}
	NewJSONResponse().JSON(map[string]any{"exports": exports}).Write(w)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	rec, err := s.deps.Store.GetExport(r.Context(), mux.Vars(r)["job"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().JSON(rec).Write(w)
}
