package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `ledger_http_requests_total{code="418",method="GET",route="/test"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "ledger_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
	if !strings.Contains(body, "ledger_http_requests_in_flight 0") {
		t.Fatalf("expected in-flight gauge back at zero, got: %s", body)
	}
}

func TestMetricsMiddlewareUnmatchedRoute(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/nowhere", nil))

	body := scrape(t, metrics)
	if !strings.Contains(body, `ledger_http_requests_total{code="404",method="POST",route="unmatched"} 1`) {
		t.Fatalf("expected unmatched route sample, got: %s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatal("expected runtime collectors")
	}
}

func TestLedgerMetricsExposed(t *testing.T) {
	metrics := NewMetrics()
	ledger := metrics.Ledger()
	ledger.ObserveTransition("post", "APPROVED", "POSTED")
	ledger.ObserveTransition("post", "APPROVED", "POSTED")
	ledger.ObservePostingFailure("reverse")
	ledger.CacheHit("trial-balance")
	ledger.CacheMiss("trial-balance")

	body := scrape(t, metrics)
	for _, want := range []string{
		`ledger_transaction_transitions_total{from="APPROVED",op="post",to="POSTED"} 2`,
		`ledger_posting_failures_total{op="reverse"} 1`,
		`ledger_report_cache_lookups_total{report="trial-balance",result="hit"} 1`,
		`ledger_report_cache_lookups_total{report="trial-balance",result="miss"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.Ledger().ObserveTransition("submit", "DRAFT", "PENDING_APPROVAL")
	metrics.Ledger().CacheMiss("balance-sheet")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
