package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the trust module: ledger mutations,
// oracle role sync outcomes and reconciliation drift.
type Metrics struct {
	AwardsCreated        prometheus.Counter
	AwardsRemoved        prometheus.Counter
	AdminGrantsSet       prometheus.Counter
	AdminGrantsDeleted   prometheus.Counter
	SharesRedeemed       *prometheus.CounterVec
	RoleSyncs            *prometheus.CounterVec
	Reconciliations      prometheus.Counter
	DriftDetected        prometheus.Counter
	RecalculateDuration  prometheus.Histogram
	TimelineDuration     prometheus.Histogram
	ReconcileRunDuration prometheus.Histogram
}

// New registers the trust metrics with the default Prometheus registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the trust metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AwardsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustline_awards_created_total",
			Help: "Total number of peer trust awards created",
		}),
		AwardsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustline_awards_removed_total",
			Help: "Total number of peer trust awards removed",
		}),
		AdminGrantsSet: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustline_admin_grants_set_total",
			Help: "Total number of admin grant upserts",
		}),
		AdminGrantsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustline_admin_grants_deleted_total",
			Help: "Total number of admin grants deleted",
		}),
		SharesRedeemed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_shares_redeemed_total",
			Help: "Share redemptions by outcome (awarded, gated)",
		}, []string{"outcome"}),
		RoleSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_role_syncs_total",
			Help: "Authorization role syncs by outcome (ok, failed, deferred)",
		}, []string{"outcome"}),
		Reconciliations: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustline_reconciliations_total",
			Help: "Total number of TrustViews checked by reconciliation runs",
		}),
		DriftDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustline_view_drift_total",
			Help: "TrustViews whose stored points differed from the award and grant ledgers",
		}),
		RecalculateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_recalculate_duration_seconds",
			Help:    "Duration of RecalculatePoints",
			Buckets: durationBuckets,
		}),
		TimelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_timeline_duration_seconds",
			Help:    "Duration of trust timeline construction",
			Buckets: durationBuckets,
		}),
		ReconcileRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_reconcile_run_duration_seconds",
			Help:    "Duration of a full reconciliation run",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *Metrics) IncrementAwardsCreated() {
	m.AwardsCreated.Inc()
}

func (m *Metrics) IncrementAwardsRemoved() {
	m.AwardsRemoved.Inc()
}

func (m *Metrics) IncrementAdminGrantsSet() {
	m.AdminGrantsSet.Inc()
}

func (m *Metrics) IncrementAdminGrantsDeleted() {
	m.AdminGrantsDeleted.Inc()
}

// IncrementShareRedeemed records a redemption; awarded is false when the
// parties lacked the award permission.
func (m *Metrics) IncrementShareRedeemed(awarded bool) {
	outcome := "gated"
	if awarded {
		outcome = "awarded"
	}
	m.SharesRedeemed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRoleSync(outcome string) {
	m.RoleSyncs.WithLabelValues(outcome).Inc()
}

// ObserveReconciled records one checked view, and a drift when its stored
// points differ from the ledgers.
func (m *Metrics) ObserveReconciled(drifted bool) {
	m.Reconciliations.Inc()
	if drifted {
		m.DriftDetected.Inc()
	}
}

// ObserveRecalculate records the duration of a recalculation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRecalculate(start time.Time) {
	m.RecalculateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveTimeline(start time.Time) {
	m.TimelineDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveReconcileRun(start time.Time) {
	m.ReconcileRunDuration.Observe(time.Since(start).Seconds())
}
