package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-test/deep"

	"ledgerdash/internal/amqp"
	"ledgerdash/internal/api"
	"ledgerdash/internal/catalog"
	"ledgerdash/internal/core"
	"ledgerdash/internal/services"
	"ledgerdash/internal/sheets/memory"
	"ledgerdash/internal/storage"
	"ledgerdash/internal/table"
)

const ordersFixture = `[
	{"id":1,"order_number":"SO-1","customer":"Acme","status":"open","total":"10","order_date":"2024-05-10"},
	{"id":2,"order_number":"SO-2","customer":"Beta","status":"paid","total":"25.5","order_date":"2024-05-20"},
	{"id":3,"order_number":"SO-3","customer":"Acme Corp","status":"open","total":"7","order_date":"2024-06-01"}
]`

type backend struct {
	orders   atomic.Int32
	products atomic.Int32
	carts    atomic.Int32
}

type testEnv struct {
	srv     *Server
	backend *backend
	repo    *storage.SQLiteRepository
	pub     *fakePublisher
}

type options struct {
	rateLimit int
	noQueue   bool
}

func newTestEnv(t *testing.T, opts options) *testEnv {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		b.orders.Add(1)
		_, _ = w.Write([]byte(ordersFixture))
	})
	mux.HandleFunc("/api/expense/add/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","data":null}`))
	})
	mux.HandleFunc("/api/banks/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/all/products/", func(w http.ResponseWriter, r *http.Request) {
		b.products.Add(1)
		http.Error(w, "expired", http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/cart/add/", func(w http.ResponseWriter, r *http.Request) {
		b.carts.Add(1)
		var item core.CartItem
		_ = json.NewDecoder(r.Body).Decode(&item)
		if item.Product == 404 {
			// accepted but not created
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	client, err := api.NewClient(upstream.URL + "/api")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	pub := &fakePublisher{}
	var exports *services.ExportService
	if !opts.noQueue {
		exports = services.NewExportService(catalog.Default(), catalog.Deps{Client: client}, memory.New(), repo, pub, services.DefaultExportServiceConfig())
	}

	srv := NewServer(Config{RateLimitPerMinute: opts.rateLimit}, Deps{
		Client:  client,
		Store:   repo,
		Exports: exports,
		Probes: map[string]Probe{
			"sqlite": repo.Ping,
		},
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, backend: b, repo: repo, pub: pub}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*amqp.ExportJobMessage
}

func (p *fakePublisher) PublishExportJob(ctx context.Context, msg *amqp.ExportJobMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return nil
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, options{})

	if w := env.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz = %d: %s", w.Code, w.Body.String())
	}

	env.srv.deps.Probes["amqp"] = func(ctx context.Context) error { return errors.New("AMQP connection closed") }
	w := env.do(t, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing probe = %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "not_ready" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, options{})

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	w := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if body := decode[ErrorBody](t, w); body.Error.Code != CodeUnauthorized {
		t.Errorf("unexpected body %+v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("rejected requests should still carry a request ID")
	}
}

func TestListTables(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodGet, "/api/tables", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[struct {
		Tables []catalog.Info `json:"tables"`
	}](t, w)
	var names []string
	for _, info := range body.Tables {
		names = append(names, info.Name)
	}
	if diff := deep.Equal(names, catalog.Default().Names()); diff != nil {
		t.Error(diff)
	}
}

func TestGetTableFiltersAndCaches(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodGet, "/api/tables/orders?q=ACME", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode[tableResponse](t, w)
	if body.State.String() != "loaded" || body.Count != 2 || body.Total != 3 || body.Empty {
		t.Errorf("unexpected table %+v", body)
	}
	var numbers []string
	for _, row := range body.Rows {
		numbers = append(numbers, row[0])
	}
	if diff := deep.Equal(numbers, []string{"SO-1", "SO-3"}); diff != nil {
		t.Error(diff)
	}

	w = env.do(t, http.MethodGet, "/api/tables/orders?from=2024-06-01&to=2024-06-30", "")
	body = decode[tableResponse](t, w)
	if body.Count != 1 || body.Rows[0][0] != "SO-3" {
		t.Errorf("date range view %+v", body)
	}

	w = env.do(t, http.MethodGet, "/api/tables/orders?q=nobody", "")
	body = decode[tableResponse](t, w)
	if !body.Empty || body.Count != 0 || body.Message == "" {
		t.Errorf("expected an empty view with a message, got %+v", body)
	}

	if got := env.backend.orders.Load(); got != 1 {
		t.Errorf("filtering must not refetch, backend hit %d times", got)
	}
}

func TestNullDataEnvelopeIsEmptyView(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodGet, "/api/tables/expenses", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode[tableResponse](t, w)
	if body.State.String() != "loaded" || !body.Empty || body.Total != 0 || body.Message != table.EmptyMessage {
		t.Errorf("expected the empty state, got %+v", body)
	}
}

func TestEvictedTableIsReopened(t *testing.T) {
	env := newTestEnv(t, options{})
	sess, err := api.NewSession("secret-token")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx := context.WithValue(context.Background(), sessionKey{}, sess)

	if w := env.do(t, http.MethodGet, "/api/tables/orders", ""); w.Code != http.StatusOK {
		t.Fatalf("first load = %d", w.Code)
	}
	cached, ok := env.srv.tables.Get(env.srv.tableKey(ctx, "orders"))
	if !ok {
		t.Fatal("expected orders to be cached")
	}

	t.Run("closed entry left in the cache", func(t *testing.T) {
		cached.Close()
		w := env.do(t, http.MethodGet, "/api/tables/orders?q=acme", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if body := decode[tableResponse](t, w); body.State.String() != "loaded" || body.Count != 2 {
			t.Errorf("unexpected table %+v", body)
		}
		if got := env.backend.orders.Load(); got != 2 {
			t.Errorf("expected a reload, got %d fetches", got)
		}
	})

	t.Run("closed while in use", func(t *testing.T) {
		var seen []catalog.Table
		err := env.srv.withTable(ctx, "orders", func(tbl catalog.Table, _ bool) error {
			seen = append(seen, tbl)
			if len(seen) == 1 {
				// evicted between lookup and render
				tbl.Close()
			}
			if tbl.Render(table.Criteria{}).State == table.Closed {
				return table.ErrClosed
			}
			return nil
		})
		if err != nil {
			t.Fatalf("withTable: %v", err)
		}
		if len(seen) != 2 || seen[0] == seen[1] {
			t.Fatalf("expected a second, reopened table, got %d calls", len(seen))
		}
		w := env.do(t, http.MethodGet, "/api/tables/orders/export", "")
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType {
			t.Errorf("export after reopen = %d %q", w.Code, w.Header().Get("Content-Type"))
		}
	})
}

func TestConcurrentFirstLoadsShareOneFetch(t *testing.T) {
	env := newTestEnv(t, options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.do(t, http.MethodGet, "/api/tables/orders", "")
		}()
	}
	wg.Wait()

	if got := env.backend.orders.Load(); got != 1 {
		t.Errorf("expected one backend fetch, got %d", got)
	}
}

func TestGetTableErrors(t *testing.T) {
	env := newTestEnv(t, options{})

	t.Run("backend failure", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tables/accounts", "")
		if w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"rows":[]`) {
			t.Errorf("an errored table must carry no rows: %s", w.Body.String())
		}
		body := decode[tableResponse](t, w)
		if body.State.String() != "errored" || body.Message == "" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("auth failure is not cached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			w := env.do(t, http.MethodGet, "/api/tables/products", "")
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", w.Code)
			}
		}
		if got := env.backend.products.Load(); got != 2 {
			t.Errorf("expected each request to retry auth, got %d fetches", got)
		}
	})

	t.Run("unknown resource", func(t *testing.T) {
		if w := env.do(t, http.MethodGet, "/api/tables/invoices", ""); w.Code != http.StatusNotFound {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		if w := env.do(t, http.MethodGet, "/api/tables/orders?from=someday", ""); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, options{})

	if w := env.do(t, http.MethodPost, "/api/tables/orders/reload", ""); w.Code != http.StatusOK {
		t.Fatalf("first reload = %d", w.Code)
	}
	if got := env.backend.orders.Load(); got != 1 {
		t.Fatalf("a reload of an unopened table loads once, got %d", got)
	}

	w := env.do(t, http.MethodPost, "/api/tables/orders/reload?q=beta", "")
	if w.Code != http.StatusOK {
		t.Fatalf("second reload = %d", w.Code)
	}
	if got := env.backend.orders.Load(); got != 2 {
		t.Errorf("expected a refetch, got %d", got)
	}
	if body := decode[tableResponse](t, w); body.Count != 1 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestExportDownload(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodGet, "/api/tables/orders/export?q=acme", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != xlsxContentType {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "orders.xlsx") {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("expected a zip container")
	}

	w = env.do(t, http.MethodGet, "/api/tables/accounts/export", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("exporting an errored table = %d", w.Code)
	}
}

func TestSavedFilters(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodPost, "/api/tables/orders/filters", `{"name":"acme","search":"acme","is_default":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("save = %d: %s", w.Code, w.Body.String())
	}
	saved := decode[storage.SavedFilter](t, w)

	w = env.do(t, http.MethodPost, "/api/tables/orders/filters", `{"name":"acme"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate save = %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/tables/orders/filters", `{"search":"x"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("nameless save = %d", w.Code)
	}
	if body := decode[ErrorBody](t, w); body.Error.Fields["name"] != "is required" {
		t.Errorf("unexpected validation body %+v", body)
	}

	w = env.do(t, http.MethodGet, "/api/tables/orders?filter=default", "")
	if body := decode[tableResponse](t, w); body.Count != 2 || body.Criteria.Search != "acme" {
		t.Errorf("default filter view %+v", body)
	}
	w = env.do(t, http.MethodGet, "/api/tables/orders?filter="+saved.ID+"&q=beta", "")
	if body := decode[tableResponse](t, w); body.Count != 1 {
		t.Errorf("explicit criteria should win over the filter, got %+v", body)
	}
	w = env.do(t, http.MethodGet, "/api/tables/accounts?filter="+saved.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("filter of another resource = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/tables/orders/filters", "")
	list := decode[struct {
		Filters []storage.SavedFilter `json:"filters"`
	}](t, w)
	if len(list.Filters) != 1 || list.Filters[0].ID != saved.ID {
		t.Errorf("unexpected filters %+v", list.Filters)
	}

	if w := env.do(t, http.MethodDelete, "/api/filters/"+saved.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/api/filters/"+saved.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", w.Code)
	}
}

func TestExportJobs(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodPost, "/api/tables/orders/export-jobs", `{"search":"acme","destination":"sheets"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue = %d: %s", w.Code, w.Body.String())
	}
	body := decode[map[string]any](t, w)
	jobID, _ := body["job_id"].(string)
	if jobID == "" || w.Header().Get("Location") != "/api/exports/"+jobID {
		t.Fatalf("unexpected response %v", body)
	}
	if len(env.pub.published) != 1 || env.pub.published[0].Search != "acme" {
		t.Errorf("unexpected publish %+v", env.pub.published)
	}

	w = env.do(t, http.MethodGet, "/api/exports/"+jobID, "")
	if rec := decode[storage.ExportRecord](t, w); rec.Status != storage.ExportQueued {
		t.Errorf("unexpected export record %+v", rec)
	}
	w = env.do(t, http.MethodGet, "/api/exports?resource=orders", "")
	list := decode[struct {
		Exports []storage.ExportRecord `json:"exports"`
	}](t, w)
	if len(list.Exports) != 1 {
		t.Errorf("unexpected exports %+v", list.Exports)
	}

	if w := env.do(t, http.MethodPost, "/api/tables/orders/export-jobs", `{"destination":"ftp"}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad destination = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/exports/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing job = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/exports?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", w.Code)
	}

	noQueue := newTestEnv(t, options{noQueue: true})
	if w := noQueue.do(t, http.MethodPost, "/api/tables/orders/export-jobs", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without a queue = %d", w.Code)
	}
}

func TestCartAdd(t *testing.T) {
	env := newTestEnv(t, options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"created", `{"product":12,"quantity":2}`, http.StatusCreated},
		{"zero quantity", `{"product":12,"quantity":0}`, http.StatusUnprocessableEntity},
		{"missing product", `{"quantity":1}`, http.StatusUnprocessableEntity},
		{"not json", `product=12`, http.StatusBadRequest},
		{"backend answers 200", `{"product":404,"quantity":1}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/api/cart", tt.body); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
	if got := env.backend.carts.Load(); got != 2 {
		t.Errorf("invalid items must not reach the backend, got %d posts", got)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	env := newTestEnv(t, options{rateLimit: 2})

	for i := 0; i < 5; i++ {
		if w := env.do(t, http.MethodGet, "/api/tables", ""); w.Code != http.StatusOK {
			t.Fatalf("reads are not limited, got %d", w.Code)
		}
	}
	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodPost, "/api/cart", `{"product":1,"quantity":1}`); w.Code != http.StatusCreated {
			t.Fatalf("post %d = %d", i, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, "/api/cart", `{"product":1,"quantity":1}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRoutingErrorsAreJSON(t *testing.T) {
	env := newTestEnv(t, options{})

	w := env.do(t, http.MethodPut, "/api/cart", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode[ErrorBody](t, w); body.Error.Code != CodeMethod {
		t.Errorf("unexpected body %+v", body)
	}

	w = env.do(t, http.MethodGet, "/nowhere", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode[ErrorBody](t, w); body.Error.Code != CodeNotFound {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestShutdownClosesCachedTables(t *testing.T) {
	env := newTestEnv(t, options{})
	env.do(t, http.MethodGet, "/api/tables/orders", "")
	if env.srv.tables.Size() != 1 {
		t.Fatalf("expected one cached table, got %d", env.srv.tables.Size())
	}
	if err := env.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if env.srv.tables.Size() != 0 {
		t.Error("cache should be empty after shutdown")
	}
}
