package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
)

const namespace = "basic_cleaning"

// Recorder collects the gauges of one cleaning run and optionally pushes
// them to a Prometheus Pushgateway when the run ends.
type Recorder struct {
	job      string
	pushURL  string
	registry *prometheus.Registry

	rows        *prometheus.GaugeVec
	dropped     *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	runInfo     *prometheus.GaugeVec
}

// New creates a Recorder. An empty pushURL disables pushing.
func New(job, pushURL string) *Recorder {
	r := &Recorder{
		job:      job,
		pushURL:  pushURL,
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows",
			Help:      "Rows in the dataset at each stage of cleaning.",
		}, []string{"stage"}),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_dropped",
			Help:      "Rows dropped by each filter.",
		}, []string{"filter"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall time of the cleaning run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_info",
			Help:      "Always 1; labelled with the id of the run that pushed.",
		}, []string{"run_id"}),
	}
	r.registry.MustRegister(r.rows, r.dropped, r.duration, r.lastSuccess, r.runInfo)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveReport records row counts from a cleaning report.
func (r *Recorder) ObserveReport(report *models.CleaningReport) {
	r.rows.WithLabelValues("input").Set(float64(report.InputRows))
	r.rows.WithLabelValues("output").Set(float64(report.OutputRows))
	r.dropped.WithLabelValues("price").Set(float64(report.PriceDropped))
	r.dropped.WithLabelValues("geo").Set(float64(report.GeoDropped))
}

// ObserveRun records the run duration and, on success, its completion time.
func (r *Recorder) ObserveRun(elapsed time.Duration, finishedAt time.Time, succeeded bool) {
	r.duration.Set(elapsed.Seconds())
	if succeeded {
		r.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// Push replaces the job's group on the Pushgateway with the current gauges.
// Every run pushes to the same group; the run id travels in run_info.
func (r *Recorder) Push(ctx context.Context, runID string) error {
	if r.pushURL == "" {
		return nil
	}
	r.runInfo.Reset()
	r.runInfo.WithLabelValues(runID).Set(1)

	err := push.New(r.pushURL, r.job).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push: %w", err)
	}
	return nil
}
