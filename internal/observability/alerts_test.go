package observability

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"gopkg.in/yaml.v3"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`ledger_[a-z_]+`)

func loadLedgerRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml"))
	if err != nil {
		t.Fatalf("read alert file: %v", err)
	}
	var file alertFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("parse alert file: %v", err)
	}
	for _, g := range file.Groups {
		if g.Name == "ledger" {
			return g.Rules
		}
	}
	t.Fatal("ledger alert group missing")
	return nil
}

// exportedFamilies touches every collector so vector families show up.
func exportedFamilies(t *testing.T) map[string]bool {
	t.Helper()
	metrics := NewMetrics()
	metrics.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	metrics.Ledger().ObserveTransition("post", "APPROVED", "POSTED")
	metrics.Ledger().ObservePostingFailure("post")
	metrics.Ledger().CacheHit("trial-balance")
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	run := jobs.Start("ledger:integrity")
	run.Institution()
	_ = run.Finish(nil)
	jobs.AddAnomalies("balance_drift", "school-1", 1)

	families, err := metrics.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestLedgerAlertRules(t *testing.T) {
	rules := loadLedgerRules(t)
	expected := map[string]string{
		"HighErrorRate":       "critical",
		"PostingFailures":     "critical",
		"BalanceDrift":        "warning",
		"IntegrityCheckStale": "warning",
	}
	if len(rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(rules))
	}

	for _, rule := range rules {
		severity, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != severity {
			t.Fatalf("rule %s severity %q, want %q", rule.Alert, rule.Labels["severity"], severity)
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" || rule.Annotations["runbook"] == "" {
			t.Fatalf("rule %s must carry summary, description and runbook", rule.Alert)
		}
		if rule.Expr == "" || rule.For == "" {
			t.Fatalf("rule %s must define expr and for", rule.Alert)
		}
	}
}

func TestAlertRulesReferenceExportedMetrics(t *testing.T) {
	exported := exportedFamilies(t)
	for _, rule := range loadLedgerRules(t) {
		names := metricName.FindAllString(rule.Expr, -1)
		if len(names) == 0 {
			t.Fatalf("rule %s does not query a ledger metric", rule.Alert)
		}
		for _, name := range names {
			if !exported[name] {
				t.Fatalf("rule %s queries %s, which the service does not export", rule.Alert, name)
			}
		}
	}
}
