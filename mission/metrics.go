package mission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records round-loop health. A nil *Metrics records nothing.
type Metrics struct {
	rounds        *prometheus.CounterVec
	faults        *prometheus.CounterVec
	progress      prometheus.Counter
	completed     prometheus.Gauge
	roundDuration prometheus.Histogram
	runs          *prometheus.CounterVec
}

// NewMetrics registers the runner metrics on reg (the default registerer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobilepilot",
			Subsystem: "runner",
			Name:      "rounds_total",
			Help:      "Rounds executed, by stage at entry",
		}, []string{"stage"}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobilepilot",
			Subsystem: "runner",
			Name:      "faults_total",
			Help:      "Faults recorded in rounds, by kind",
		}, []string{"kind"}),
		progress: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mobilepilot",
			Subsystem: "runner",
			Name:      "progress_total",
			Help:      "Rounds that advanced the stage machine",
		}),
		completed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mobilepilot",
			Subsystem: "runner",
			Name:      "items_completed",
			Help:      "Items viewed so far in the current run",
		}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mobilepilot",
			Subsystem: "runner",
			Name:      "round_duration_seconds",
			Help:      "Wall time per round including the request interval",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobilepilot",
			Subsystem: "runner",
			Name:      "runs_total",
			Help:      "Finished runs, by termination reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) observeRound(rd Round, took time.Duration) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(string(rd.Stage)).Inc()
	if rd.Fault != nil {
		m.faults.WithLabelValues(string(rd.Fault.Kind)).Inc()
	}
	if rd.Progress {
		m.progress.Inc()
	}
	m.completed.Set(float64(rd.Completed))
	m.roundDuration.Observe(took.Seconds())
}

func (m *Metrics) observeRun(reason Reason) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(reason)).Inc()
}
