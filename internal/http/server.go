package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/singleflight"

	"ledgerdash/internal/api"
	"ledgerdash/internal/cache"
	"ledgerdash/internal/catalog"
	"ledgerdash/internal/core"
	applog "ledgerdash/internal/log"
	"ledgerdash/internal/middleware/ratelimit"
	"ledgerdash/internal/middleware/security"
	"ledgerdash/internal/middleware/trace"
	"ledgerdash/internal/services"
	"ledgerdash/internal/sheets"
	"ledgerdash/internal/sheets/xlsx"
	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

// Store is the persistence the gateway needs for saved filters and the
// export log.
type Store interface {
	SaveFilter(ctx context.Context, f storage.SavedFilter) (storage.SavedFilter, error)
	ListFilters(ctx context.Context, resource string) ([]storage.SavedFilter, error)
	GetFilter(ctx context.Context, id string) (storage.SavedFilter, error)
	DefaultFilter(ctx context.Context, resource string) (storage.SavedFilter, bool, error)
	DeleteFilter(ctx context.Context, id string) error
	GetExport(ctx context.Context, jobID string) (storage.ExportRecord, error)
	ListExports(ctx context.Context, resource string, limit int) ([]storage.ExportRecord, error)
}

// Probe is a readiness check of one dependency.
type Probe func(ctx context.Context) error

// Config holds the gateway tunables.
type Config struct {
	Addr               string
	LoadTimeout        time.Duration
	TableCacheSize     int
	TableCacheTTL      time.Duration
	RateLimitPerMinute int
}

// Deps are the collaborators of the gateway. Store, Exports and Probes are
// optional; the routes that need a missing one answer 503.
type Deps struct {
	Registry *catalog.Registry
	Client   *api.Client
	Store    Store
	Exports  *services.ExportService
	Encoder  sheets.Encoder
	Probes   map[string]Probe
	Logger   *applog.Logger
}

type Server struct {
	http.Server
	cfg    Config
	deps   Deps
	logger *applog.Logger

	// Loaded tables per (session digest, resource)
	tables       *cache.LRUCache[catalog.Table]
	cacheManager *cache.Manager
	loads        singleflight.Group

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Discard()
	}
	if deps.Registry == nil {
		deps.Registry = catalog.Default()
	}
	if deps.Encoder == nil {
		deps.Encoder = encodeFunc(xlsx.Encode)
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if cfg.TableCacheSize <= 0 {
		cfg.TableCacheSize = 100
	}
	if cfg.TableCacheTTL <= 0 {
		cfg.TableCacheTTL = 5 * time.Minute
	}

	logger := deps.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		detector: security.NewDetector(),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, deps.Logger)

	s.tables = cache.NewLRUCache[catalog.Table](cfg.TableCacheSize, cfg.TableCacheTTL).
		OnEvict(func(key string, t catalog.Table) {
			t.Close()
			logger.Debug("Table evicted", applog.FieldResource, t.Name())
		})
	s.cacheManager = cache.NewManager(deps.Logger)
	s.cacheManager.Register(s.tables)
	s.cacheManager.StartCleanup(time.Minute)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.LoadTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Not found").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.Use(
		s.tracer.Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.detector.Middleware(s.deps.Logger),
		s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded. Please try again later.").Write(w)
		}),
	)

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()
	a.Use(s.requireSession)
	a.HandleFunc("/tables", s.handleListTables).Methods(http.MethodGet)
	a.HandleFunc("/tables/{name}", s.handleTable).Methods(http.MethodGet)
	a.HandleFunc("/tables/{name}/reload", s.handleReload).Methods(http.MethodPost)
	a.HandleFunc("/tables/{name}/export", s.handleExport).Methods(http.MethodGet)
	a.HandleFunc("/tables/{name}/export-jobs", s.handleEnqueueExport).Methods(http.MethodPost)
	a.HandleFunc("/tables/{name}/filters", s.handleListFilters).Methods(http.MethodGet)
	a.HandleFunc("/tables/{name}/filters", s.handleSaveFilter).Methods(http.MethodPost)
	a.HandleFunc("/filters/{id}", s.handleDeleteFilter).Methods(http.MethodDelete)
	a.HandleFunc("/exports", s.handleListExports).Methods(http.MethodGet)
	a.HandleFunc("/exports/{job}", s.handleGetExport).Methods(http.MethodGet)
	a.HandleFunc("/cart", s.handleCartAdd).Methods(http.MethodPost)

	return r
}

// Shutdown stops the listener, then releases cached tables and background
// cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		n := s.tables.Purge()
		s.logger.InfoContext(ctx, "Gateway stopped", "tables_closed", n)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Probes))
	ready := true
	for name, probe := range s.deps.Probes {
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	NewJSONResponse().Status(code).JSON(map[string]any{"status": status, "checks": checks}).Write(w)
}

type sessionKey struct{}

// requireSession rejects API calls without a bearer token and stores the
// caller's session in the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := api.SessionFromRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *api.Session {
	sess, _ := ctx.Value(sessionKey{}).(*api.Session)
	return sess
}

// writeError maps an error to a status code and a user-facing message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if fields, ok := validationFields(err); ok {
		ValidationError("Request validation failed", fields).Write(w)
		return
	}
	status, code, msg := classify(err)
	if status >= 500 {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, api.ErrorType(err),
			applog.FieldPath, r.URL.Path)
	}
	ErrorResponse(status, code, msg).Write(w)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, api.ErrAuth):
		return http.StatusUnauthorized, CodeUnauthorized, api.UserMessage(err)
	case errors.Is(err, api.ErrParse), errors.Is(err, api.ErrNetwork):
		return http.StatusBadGateway, CodeUpstream, api.UserMessage(err)
	case errors.Is(err, catalog.ErrUnknownResource), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, storage.ErrFilterExists), errors.Is(err, table.ErrNotRetryable), errors.Is(err, table.ErrNotLoaded):
		return http.StatusConflict, CodeConflict, err.Error()
	case errors.Is(err, storage.ErrInvalidFilter), errors.Is(err, core.ErrInvalidProduct), errors.Is(err, core.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, CodeValidation, err.Error()
	case errors.Is(err, errBadBody), errors.Is(err, core.ErrInvalidDate):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, services.ErrQueueUnavailable), errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable, CodeUnavailable, err.Error()
	case errors.Is(err, table.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeUnavailable, "The resource is busy. Please retry."
	default:
		return http.StatusInternalServerError, CodeInternal, "Internal server error"
	}
}

// encodeFunc adapts a function to sheets.Encoder.
type encodeFunc func(ctx context.Context, w io.Writer, s table.Sheet) error

func (f encodeFunc) Encode(ctx context.Context, w io.Writer, s table.Sheet) error {
	return f(ctx, w, s)
}
