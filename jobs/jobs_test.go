package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

type fakeInstitutions []string

func (f fakeInstitutions) InstitutionIDs(context.Context) ([]string, error) { return f, nil }

type fakeChecker struct {
	reports map[string]reports.IntegrityReport
	checked []string
}

func (f *fakeChecker) CheckIntegrity(_ context.Context, institutionID string) (reports.IntegrityReport, error) {
	f.checked = append(f.checked, institutionID)
	r, ok := f.reports[institutionID]
	if !ok {
		return reports.IntegrityReport{}, errors.New("boom")
	}
	return r, nil
}

type fakeAlerts map[string][]accounts.BudgetAlert

func (f fakeAlerts) BudgetAlerts(_ context.Context, institutionID string) ([]accounts.BudgetAlert, error) {
	return f[institutionID], nil
}

type recordedEvent struct {
	key     string
	payload any
}

type fakePublisher struct {
	events []recordedEvent
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	p.events = append(p.events, recordedEvent{key: routingKey, payload: payload})
	return nil
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

// counterValue sums the samples of a gathered counter whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func TestIntegrityJobChecksEveryInstitution(t *testing.T) {
	checker := &fakeChecker{reports: map[string]reports.IntegrityReport{
		"school-1": {OK: true},
		"school-2": {Drifts: []reports.Drift{{AccountID: "a1", Code: "1100", StoredDebit: decimal.NewFromInt(5), ExpectedDebit: decimal.Zero}}},
	}}
	reg := prometheus.NewRegistry()
	job := NewIntegrityJob(checker, fakeInstitutions{"school-1", "school-2"}, nil, jobmetrics.NewMetrics(reg))

	task, err := NewIntegrityTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"school-1", "school-2"}, checker.checked)

	require.Equal(t, 1.0, counterValue(t, reg, "ledger_integrity_anomalies_total", map[string]string{"check": "balance_drift", "institution": "school-2"}))
	require.Equal(t, 2.0, counterValue(t, reg, "ledger_job_institutions_scanned_total", map[string]string{"job": TaskLedgerIntegrity}))
	require.Equal(t, 1.0, counterValue(t, reg, "ledger_job_runs_total", map[string]string{"job": TaskLedgerIntegrity, "outcome": "ok"}))
}

func TestIntegrityJobScopedAndFailing(t *testing.T) {
	checker := &fakeChecker{reports: map[string]reports.IntegrityReport{}}
	job := NewIntegrityJob(checker, nil, nil, testMetrics())

	task, err := NewIntegrityTask("school-9")
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"school-9"}, checker.checked)

	bad := asynq.NewTask(TaskLedgerIntegrity, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestBudgetAlertJobPublishesEvents(t *testing.T) {
	alerts := fakeAlerts{"school-1": {
		{AccountID: "a1", Code: "5100", Status: accounts.BudgetStatusExceeded},
		{AccountID: "a2", Code: "5200", Status: accounts.BudgetStatusApproaching},
	}}
	pub := &fakePublisher{}
	job := NewBudgetAlertJob(alerts, fakeInstitutions{"school-1", "school-2"}, pub, nil, testMetrics())

	task, err := NewTask("budget_alerts", "")
	require.NoError(t, err)
	require.Equal(t, TaskLedgerBudgetAlerts, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, pub.events, 2)
	require.Equal(t, BudgetAlertRoutingKey, pub.events[0].key)
	event, ok := pub.events[0].payload.(BudgetAlertEvent)
	require.True(t, ok)
	require.Equal(t, "school-1", event.InstitutionID)
	require.Equal(t, "a1", event.Alert.AccountID)
}

func TestNewTaskRejectsUnknown(t *testing.T) {
	_, err := NewTask("reindex", "")
	require.Error(t, err)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","paused":false,"pending":0,"active":0,"scheduled":0,"retry":0,"failed":0,"latencyMs":0}`, rr.Body.String())
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestJobsHealthReadsQueue(t *testing.T) {
	serve := func(in QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", NewHandler(in, nil).MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1, Latency: 1500 * time.Millisecond}})
	require.Equal(t, http.StatusOK, rr.Code)
	var out queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, 4, out.Pending)
	require.Equal(t, 1, out.Retry)
	require.Equal(t, 1500.0, out.LatencyMS)

	rr = serve(fakeInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 2, opt.DB)

	opt, err = RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", opt.Addr)
}
