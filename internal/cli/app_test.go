package cli_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"ledgerdash/internal/cli"
	"ledgerdash/internal/config"
	"ledgerdash/internal/core"
)

const ordersFixture = `[
	{"id":1,"order_number":"SO-1","customer":"Acme","status":"open","total":"10","order_date":"2024-05-10"},
	{"id":2,"order_number":"SO-2","customer":"Beta","status":"paid","total":"25.5","order_date":"2024-05-20"},
	{"id":3,"order_number":"SO-3","customer":"Acme Corp","status":"open","total":"7","order_date":"2024-06-01"}
]`

type testEnv struct {
	cfg   *config.Config
	carts atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			http.Error(w, "forbidden", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(ordersFixture))
	})
	mux.HandleFunc("/api/banks/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/cart/add/", func(w http.ResponseWriter, r *http.Request) {
		env.carts.Add(1)
		var item core.CartItem
		_ = json.NewDecoder(r.Body).Decode(&item)
		if item.Product == 404 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	env.cfg = &config.Config{
		APIBaseURL:    upstream.URL + "/api/",
		APITokenFile:  filepath.Join(dir, "token"),
		SQLiteDBPath:  filepath.Join(dir, "ledgerdash.db"),
		ExportBackend: "xlsx",
		ExportDir:     filepath.Join(dir, "exports"),
		LogLevel:      "error",
	}
	return env
}

// run executes one command line and returns stdout and the error.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := cli.New(e.cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestTables(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "tables")
	for _, name := range []string{"accounts", "expenses", "orders", "credit-sales", "sold-products", "products"} {
		if !strings.Contains(out, name) {
			t.Errorf("tables output misses %s:\n%s", name, out)
		}
	}
}

func TestShow(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all rows",
			args: []string{"show", "orders"},
			want: []string{"ORDER NUMBER", "SO-1", "SO-2", "SO-3", "3 of 3 Orders"},
		},
		{
			name:    "search is case-insensitive",
			args:    []string{"show", "orders", "-q", "ACME"},
			want:    []string{"SO-1", "SO-3", "2 of 3 Orders (filtered by"},
			notWant: []string{"SO-2"},
		},
		{
			name:    "inclusive date range",
			args:    []string{"show", "orders", "--from", "2024-05-20", "--to", "2024-05-20"},
			want:    []string{"SO-2", "1 of 3 Orders"},
			notWant: []string{"SO-1", "SO-3"},
		},
		{
			name: "no match",
			args: []string{"show", "orders", "-q", "nobody"},
			want: []string{"No records found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := env.mustRun(t, append([]string{"-t", "secret-token"}, tt.args...)...)
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output misses %q:\n%s", s, out)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("output contains %q:\n%s", s, out)
				}
			}
		})
	}
}

func TestShowErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown resource", []string{"-t", "secret-token", "show", "ledger"}, "unknown resource"},
		{"bad date", []string{"-t", "secret-token", "show", "orders", "--from", "20/13/2024"}, "date"},
		{"backend failure", []string{"-t", "secret-token", "show", "accounts"}, "load accounts"},
		{"rejected token", []string{"-t", "wrong", "show", "orders"}, "load orders"},
		{"no token", []string{"show", "orders"}, "token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, "", tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "-t", "secret-token", "status")
	if err == nil {
		t.Fatal("expected an error for the failing resources")
	}
	if !strings.Contains(out, "orders") || !strings.Contains(out, "loaded") {
		t.Errorf("status output:\n%s", out)
	}
	if !strings.Contains(out, "errored") {
		t.Errorf("status output lacks failed resources:\n%s", out)
	}
}

func TestBrowse(t *testing.T) {
	env := newTestEnv(t)
	stdin := strings.Join([]string{
		"beta",
		":from 2024-06-01",
		":clear",
		":bogus",
		":q",
	}, "\n")
	out, err := env.run(t, stdin, "-t", "secret-token", "browse", "orders")
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	for _, s := range []string{
		"3 of 3 Orders",
		"1 of 3 Orders",
		"No records found",
		`unknown command "bogus"`,
	} {
		if !strings.Contains(out, s) {
			t.Errorf("browse output misses %q:\n%s", s, out)
		}
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "-t", "secret-token", "export", "orders", "-q", "acme")
	if !strings.Contains(out, "exported 2 rows") {
		t.Fatalf("export output: %s", out)
	}
	path := filepath.Join(env.cfg.ExportDir, "orders.xlsx")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(b, []byte("PK")) {
		t.Error("export is not a zip based workbook")
	}

	jobs := env.mustRun(t, "jobs", "--resource", "Orders")
	if !strings.Contains(jobs, "done") || !strings.Contains(jobs, "orders") {
		t.Errorf("jobs output:\n%s", jobs)
	}

	if _, err := env.run(t, "", "-t", "secret-token", "export", "orders", "--async"); err == nil {
		t.Error("async export without a queue should fail")
	}
}

func TestExportRecordsCanonicalName(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "-t", "secret-token", "export", "ORDERS")
	if !strings.Contains(out, "exported 3 rows") {
		t.Fatalf("export output: %s", out)
	}

	jobs := env.mustRun(t, "jobs", "-r", "orders")
	if !strings.Contains(jobs, "done") {
		t.Errorf("export of ORDERS missing from the orders history:\n%s", jobs)
	}
	if strings.Contains(jobs, "ORDERS") {
		t.Errorf("history should use the canonical resource name:\n%s", jobs)
	}
}

func TestSavedFilters(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "filters", "save", "orders", "acme only", "-q", "acme", "--default")
	if !strings.Contains(out, "saved filter acme only") {
		t.Fatalf("save output: %s", out)
	}
	list := env.mustRun(t, "filters", "list", "orders")
	if !strings.Contains(list, "acme only") || !strings.Contains(list, "*") {
		t.Errorf("list output:\n%s", list)
	}

	for _, ref := range []string{"default", "ACME ONLY"} {
		out := env.mustRun(t, "-t", "secret-token", "show", "orders", "-f", ref)
		if !strings.Contains(out, "2 of 3 Orders") {
			t.Errorf("show -f %s:\n%s", ref, out)
		}
	}

	// explicit criteria win over the saved filter
	out = env.mustRun(t, "-t", "secret-token", "show", "orders", "-f", "default", "-q", "beta")
	if !strings.Contains(out, "1 of 3 Orders") {
		t.Errorf("explicit search ignored:\n%s", out)
	}

	if _, err := env.run(t, "", "-t", "secret-token", "show", "orders", "-f", "missing"); err == nil {
		t.Error("unknown saved filter should fail")
	}
	if _, err := env.run(t, "", "filters", "save", "orders", "acme only"); err == nil {
		t.Error("duplicate filter name should fail")
	}
}

func TestCartAdd(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "-t", "secret-token", "cart", "add", "7", "2")
	if !strings.Contains(out, "added 2 x product 7") {
		t.Errorf("cart output: %s", out)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"not created", []string{"404", "1"}},
		{"bad product", []string{"x", "1"}},
		{"zero quantity", []string{"7", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-t", "secret-token", "cart", "add"}, tt.args...)
			if _, err := env.run(t, "", args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if got := env.carts.Load(); got != 2 {
		t.Errorf("backend saw %d cart posts, want 2", got)
	}
}

func TestToken(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "", "token", "status"); err == nil {
		t.Error("status without a token should fail")
	}

	out, err := env.run(t, "Bearer secret-token\n", "token", "save")
	if err != nil {
		t.Fatalf("token save: %v", err)
	}
	if !strings.Contains(out, env.cfg.APITokenFile) {
		t.Errorf("save output: %s", out)
	}

	status := env.mustRun(t, "token", "status")
	if !strings.Contains(status, "expires: unknown") || !strings.Contains(status, "valid") {
		t.Errorf("status output:\n%s", status)
	}

	// the stored token is used without -t
	show := env.mustRun(t, "show", "orders")
	if !strings.Contains(show, "3 of 3 Orders") {
		t.Errorf("show with stored token:\n%s", show)
	}
}
