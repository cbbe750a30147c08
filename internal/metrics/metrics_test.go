package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Exports.WithLabelValues("pdf", "ok").Inc()
	m.Exports.WithLabelValues("pdf", "ok").Inc()

	if got := testutil.ToFloat64(m.Exports.WithLabelValues("pdf", "ok")); got != 2 {
		t.Errorf("exports = %v, want 2", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `lectern_exports_total{format="pdf",status="ok"} 2`) {
		t.Errorf("metrics output missing export counter:\n%s", body)
	}
}
