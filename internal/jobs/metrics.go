package jobmetrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeDefects = "defects"
	OutcomeFailure = "failure"
)

// Metrics exposes Prometheus collectors for background consolidation runs.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	moves    *prometheus.CounterVec
	defects  *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single run of a job for one holding.
type Tracker struct {
	metrics *Metrics
	job     string
	holding string
	start   time.Time
}

// Track starts a tracker for the job and holding.
func (m *Metrics) Track(job string, holdingID int64) *Tracker {
	return &Tracker{metrics: m, job: job, holding: holdingLabel(holdingID), start: time.Now()}
}

// End records the outcome and duration of the run and returns err untouched.
// Mapping defects are reported apart from other failures, and the per-holding
// defect gauge follows the latest run.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	outcome, defects := Classify(err)
	t.metrics.runs.WithLabelValues(t.job, outcome).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if outcome != OutcomeFailure {
		t.metrics.defects.WithLabelValues(t.holding).Set(float64(defects))
	}
	return err
}

// Classify maps a run error to its outcome label and the number of mapping defects it carries.
func Classify(err error) (string, int) {
	if err == nil {
		return OutcomeSuccess, 0
	}
	var mapping *consol.MappingError
	if errors.As(err, &mapping) {
		return OutcomeDefects, mapping.Report.DefectCount()
	}
	return OutcomeFailure, 0
}

// AddMoves counts the consolidation moves created for a holding.
func (m *Metrics) AddMoves(holdingID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.moves.WithLabelValues(holdingLabel(holdingID)).Add(float64(count))
}

func holdingLabel(id int64) string {
	if id <= 0 {
		return "0"
	}
	return strconv.FormatInt(id, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consol_jobs_total",
		Help: "Background job executions by job and outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consol_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"job"})
	moves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consol_moves_created_total",
		Help: "Consolidation moves created by background runs, per holding.",
	}, []string{"holding"})
	defects := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "consol_mapping_defects",
		Help: "Mapping defects found by the latest background run, per holding.",
	}, []string{"holding"})
	registerer.MustRegister(runs, duration, moves, defects)
	return &Metrics{runs: runs, duration: duration, moves: moves, defects: defects}
}
