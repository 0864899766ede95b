package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()

	m.ObserveRefresh(nil)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "coffeeclub_token_refreshes_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected coffeeclub_token_refreshes_total in registry")
	}
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewServerRegistry()
	m.ObserveRequest("GET", "/health", 200, 0)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"coffeeclub_api_requests_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	reg, m := NewRegistry()
	m.ObserveRequest("POST", "/account/verify", 200, 0)

	path := filepath.Join(t.TempDir(), "coffeeclub.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `coffeeclub_api_requests_total{method="POST",path="/account/verify",status="200"} 1`) {
		t.Errorf("unexpected textfile contents:\n%s", data)
	}
}
