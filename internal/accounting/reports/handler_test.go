package reports_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

func get(t *testing.T, f *fixture, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/reports", reports.NewHandler(nil, f.reports).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestReportHandlers(t *testing.T) {
	f := newFixture(t)
	f.post(t, transactions.TypeIncome, march.AddDate(0, 0, 3), f.entries("1100", "4100", "120.50"))

	rr := get(t, f, "/reports/trial-balance?institution_id="+inst)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tb reports.TrialBalance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tb))
	require.True(t, tb.Balanced)
	requireAmount(t, "120.50", tb.TotalCredit)

	rr = get(t, f, "/reports/income-statement?institution_id="+inst+"&from=2026-03-01&to=2026-03-04")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pl reports.IncomeStatement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pl))
	requireAmount(t, "120.50", pl.NetIncome)

	rr = get(t, f, "/reports/income-statement?institution_id="+inst+"&from=2026-03-05")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pl))
	requireAmount(t, "0", pl.NetIncome)

	rr = get(t, f, "/reports/accounts/"+f.byCode["1100"].ID+"/statement")
	require.Equal(t, http.StatusOK, rr.Code)
	var st reports.AccountStatement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.Len(t, st.Lines, 1)

	rr = get(t, f, "/reports/integrity?institution_id="+inst)
	require.Equal(t, http.StatusOK, rr.Code)
	var integrity reports.IntegrityReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &integrity))
	require.True(t, integrity.OK)
}

func TestReportHandlerErrors(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		path string
		want int
	}{
		{"/reports/trial-balance", http.StatusBadRequest},
		{"/reports/statistics?institution_id=" + inst + "&from=soon", http.StatusBadRequest},
		{"/reports/statistics?institution_id=" + inst + "&from=2026-04-01&to=2026-03-01", http.StatusBadRequest},
		{"/reports/search?institution_id=" + inst, http.StatusBadRequest},
		{"/reports/accounts/missing/statement", http.StatusNotFound},
		{"/reports/pending?institution_id=" + inst, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rr := get(t, f, tc.path)
			require.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}
