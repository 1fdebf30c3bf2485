package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "ledgerdash/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, applog.NewText(&buf, slog.LevelInfo, "test"))

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		applog.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK) // ignored
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables?q=x", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("expected generated request id, got %q", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header %q, want %q", got, seen)
	}
	logs := buf.String()
	for _, want := range []string{"HTTP request started", "HTTP request completed", "status_code=418", "inside handler", "request_id=" + seen} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestIncomingRequestID(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"abc-123", "abc-123"},
		{"  trace.id_9 ", "trace.id_9"},
		{"", ""},
		{"has space", ""},
		{"<script>", ""},
		{strings.Repeat("a", maxIncomingIDLen+1), ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, tt.header)
		if got := incomingRequestID(r); got != tt.want {
			t.Errorf("incomingRequestID(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
