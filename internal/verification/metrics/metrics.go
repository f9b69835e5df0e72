package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Authorization decisions by action (verify, revoke) and reason ("" when authorized)
	Decisions *prometheus.CounterVec

	KeyCollectionsCreated prometheus.Counter
	CredentialsIssued     prometheus.Counter
	CredentialsRevoked    prometheus.Counter
	IssueLatency          prometheus.Histogram

	// Bootstrap outcomes: skipped, created, failed
	Bootstrap *prometheus.CounterVec

	LockFailures *prometheus.CounterVec
}

// New creates and registers the verification metrics on reg. A nil registerer
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_authorization_decisions_total",
			Help: "Authorization decisions by action and rejection reason",
		}, []string{"action", "authorized", "reason"}),

		KeyCollectionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_key_collections_created_total",
			Help: "Key collection buckets created by this process",
		}),

		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_credentials_issued_total",
			Help: "Verifiable credentials issued",
		}),

		CredentialsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "attest_credentials_revoked_total",
			Help: "Verifiable credentials revoked",
		}),

		IssueLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_credential_issue_duration_seconds",
			Help:    "Duration of credential issuance including lock and key allocation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		Bootstrap: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_root_bootstrap_total",
			Help: "Root identity bootstrap outcomes",
		}, []string{"outcome"}),

		LockFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_lock_acquire_failures_total",
			Help: "Advisory lock acquisitions that gave up",
		}, []string{"lock"}),
	}
}

// IncrementDecision records an authorization decision.
func (m *Metrics) IncrementDecision(action string, authorized bool, reason string) {
	if m == nil {
		return
	}
	a := "false"
	if authorized {
		a = "true"
	}
	m.Decisions.WithLabelValues(action, a, reason).Inc()
}

func (m *Metrics) IncrementKeyCollectionsCreated() {
	if m != nil {
		m.KeyCollectionsCreated.Inc()
	}
}

func (m *Metrics) ObserveIssued(d time.Duration) {
	if m != nil {
		m.CredentialsIssued.Inc()
		m.IssueLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRevoked() {
	if m != nil {
		m.CredentialsRevoked.Inc()
	}
}

func (m *Metrics) IncrementBootstrap(outcome string) {
	if m != nil {
		m.Bootstrap.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementLockFailure(lock string) {
	if m != nil {
		m.LockFailures.WithLabelValues(lock).Inc()
	}
}
