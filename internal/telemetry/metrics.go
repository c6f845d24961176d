package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizzard"

// Metrics holds the application counters. A nil *Metrics records nothing.
type Metrics struct {
	StorageOps    *prometheus.CounterVec
	DraftSaves    *prometheus.CounterVec
	AuthRefreshes *prometheus.CounterVec
	AuthLogouts   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		StorageOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage tier operations by tier, operation and result.",
		}, []string{"tier", "op", "result"}),

		DraftSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "saves_total",
			Help:      "Draft writes by trigger and result.",
		}, []string{"trigger", "result"}),

		AuthRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Token refresh calls by result.",
		}, []string{"result"}),

		AuthLogouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logouts, split by whether they were forced by inactivity.",
		}, []string{"forced"}),
	}
}

func (m *Metrics) StorageOp(tier, op string, err error) {
	if m == nil {
		return
	}
	m.StorageOps.WithLabelValues(tier, op, result(err)).Inc()
}

func (m *Metrics) DraftSave(trigger string, err error) {
	if m == nil {
		return
	}
	m.DraftSaves.WithLabelValues(trigger, result(err)).Inc()
}

func (m *Metrics) Refresh(res string) {
	if m == nil {
		return
	}
	m.AuthRefreshes.WithLabelValues(res).Inc()
}

func (m *Metrics) Logout(forced bool) {
	if m == nil {
		return
	}
	m.AuthLogouts.WithLabelValues(strconv.FormatBool(forced)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
