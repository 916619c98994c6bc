package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts transaction lifecycle outcomes and report cache use.
// A nil *LedgerMetrics records nothing.
type LedgerMetrics struct {
	transitions     *prometheus.CounterVec
	postingFailures *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

func newLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transaction_transitions_total",
		Help: "Transaction status transitions by operation.",
	}, []string{"op", "from", "to"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_posting_failures_total",
		Help: "Post and reverse operations rolled back by a balance update failure.",
	}, []string{"op"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_report_cache_lookups_total",
		Help: "Report cache lookups by report and result.",
	}, []string{"report", "result"})
	registerer.MustRegister(transitions, failures, lookups)
	return &LedgerMetrics{transitions: transitions, postingFailures: failures, cacheLookups: lookups}
}

// ObserveTransition counts one committed status change.
func (m *LedgerMetrics) ObserveTransition(op, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, from, to).Inc()
}

// ObservePostingFailure counts one rolled back posting.
func (m *LedgerMetrics) ObservePostingFailure(op string) {
	if m == nil {
		return
	}
	m.postingFailures.WithLabelValues(op).Inc()
}

// CacheHit counts a report served from Redis.
func (m *LedgerMetrics) CacheHit(report string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(report, "hit").Inc()
}

// CacheMiss counts a report that had to be built.
func (m *LedgerMetrics) CacheMiss(report string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(report, "miss").Inc()
}
