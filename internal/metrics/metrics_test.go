package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if want != lp.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := NewCollector()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/grade/{gradeId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	for _, id := range []string{"A", "B", "Z"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/grade/"+id, nil))
	}

	got := counterValue(t, c, "sugartrack_http_requests_total", map[string]string{
		"method": "GET",
		"route":  "/grade/{gradeId}",
		"status": "403",
	})
	if got != 3 {
		t.Fatalf("expected 3 requests on the pattern label, got %v", got)
	}
}

func TestDomainCounters(t *testing.T) {
	c := NewCollector()
	c.RecordLedgerOp("consume", OutcomeCreated)
	c.RecordLedgerOp("consume", OutcomeUpdated)
	c.RecordLedgerOp("consume", OutcomeUpdated)
	c.RecordReset()
	c.RecordConsumption(12.5)
	c.RecordConsumption(-3)
	c.RecordAuthFailure("")
	c.RecordScan("")

	if v := counterValue(t, c, "sugartrack_ledger_operations_total", map[string]string{"operation": "consume", "outcome": "updated"}); v != 2 {
		t.Fatalf("updated ops = %v", v)
	}
	if v := counterValue(t, c, "sugartrack_ledger_resets_total", nil); v != 1 {
		t.Fatalf("resets = %v", v)
	}
	if v := counterValue(t, c, "sugartrack_ledger_sugar_grams_total", nil); v != 12.5 {
		t.Fatalf("grams = %v", v)
	}
	if v := counterValue(t, c, "sugartrack_auth_failures_total", map[string]string{"reason": "unknown"}); v != 1 {
		t.Fatalf("auth failures = %v", v)
	}
	if v := counterValue(t, c, "sugartrack_catalog_scans_total", map[string]string{"grade": "ungraded"}); v != 1 {
		t.Fatalf("scans = %v", v)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordLedgerOp("consume", OutcomeError)
	c.RecordReset()
	c.RecordAuthFailure("expired")
	c.RecordRateLimited("/consume")
	c.RecordScan("A")
	c.RecordConsumption(1)
}

func TestHandlerExposesText(t *testing.T) {
	c := NewCollector()
	c.RecordRateLimited("/consume")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `sugartrack_ratelimit_rejections_total{route="/consume"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
