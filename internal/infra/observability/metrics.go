package observability

import (
	"time"

	"github.com/boddenberg/mesada-api-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the Mesada API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	ledgerAppends     *prometheus.CounterVec
	rejectedDebits    prometheus.Counter
	disbursements     prometheus.Counter
	interestPostings  prometheus.Counter
	approvalDecisions *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mesada_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ledgerAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesada_ledger_appends_total",
				Help: "Total ledger transactions appended, by kind.",
			},
			[]string{"kind"},
		),
		rejectedDebits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesada_rejected_debits_total",
				Help: "Total debits rejected for insufficient balance.",
			},
		),
		disbursements: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesada_allowance_disbursements_total",
				Help: "Total allowance disbursements posted by the scheduler.",
			},
		),
		interestPostings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesada_interest_postings_total",
				Help: "Total interest transactions posted.",
			},
		),
		approvalDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesada_approval_decisions_total",
				Help: "Total approval decisions, by outcome.",
			},
			[]string{"outcome"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesada_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesada_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesada_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesada_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrLedgerAppend increments the append counter for a transaction kind.
func (m *Metrics) IncrLedgerAppend(kind domain.TransactionKind) {
	m.ledgerAppends.WithLabelValues(string(kind)).Inc()
}

// IncrRejectedDebit counts a debit refused for insufficient balance.
func (m *Metrics) IncrRejectedDebit() {
	m.rejectedDebits.Inc()
}

// IncrDisbursement counts a scheduler allowance payout.
func (m *Metrics) IncrDisbursement() {
	m.disbursements.Inc()
}

// IncrInterestPosting counts an interest application.
func (m *Metrics) IncrInterestPosting() {
	m.interestPostings.Inc()
}

// IncrApprovalDecision counts a decision with its outcome label.
func (m *Metrics) IncrApprovalDecision(outcome string) {
	m.approvalDecisions.WithLabelValues(outcome).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	var totalAppends float64
	for _, kind := range []domain.TransactionKind{
		domain.KindAllowance, domain.KindSpending, domain.KindInterest,
		domain.KindGoalDeposit, domain.KindGoalWithdrawal,
		domain.KindLoan, domain.KindLoanPayment, domain.KindBonus,
	} {
		totalAppends += getCounterValue(m.ledgerAppends, string(kind))
	}
	decisions := getCounterValue(m.approvalDecisions, "approved") +
		getCounterValue(m.approvalDecisions, "rejected")

	totalRequests := getCounterValue(m.requestsTotal, "success") +
		getCounterValue(m.requestsTotal, "error")
	errorRate := float64(0)
	if totalRequests > 0 {
		errorRate = getCounterValue(m.requestsTotal, "error") / totalRequests
	}

	return &domain.LedgerMetrics{
		TotalAppends:      int64(totalAppends),
		Disbursements:     int64(getSimpleCounterValue(m.disbursements)),
		InterestPostings:  int64(getSimpleCounterValue(m.interestPostings)),
		ApprovalDecisions: int64(decisions),
		RejectedDebits:    int64(getSimpleCounterValue(m.rejectedDebits)),
		ErrorRate:         errorRate,
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getSimpleCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
