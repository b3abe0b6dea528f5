package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create independent instances.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	fetchRecords  *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	records       prometheus.Gauge
	lastSuccessTS prometheus.Gauge
	running       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unicomb",
		Subsystem: "source",
		Name:      "requests_total",
		Help:      "Directory API requests by country and status",
	}, []string{"country", "status"})
	m.fetchRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unicomb",
		Subsystem: "source",
		Name:      "records_total",
		Help:      "Raw records accepted from the directory API by country",
	}, []string{"country"})
	m.droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unicomb",
		Subsystem: "normalizer",
		Name:      "dropped_total",
		Help:      "Records dropped during normalization by reason",
	}, []string{"reason"})
	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unicomb",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by trigger and outcome",
	}, []string{"trigger", "outcome"})
	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "unicomb",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of pipeline runs",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	m.records = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "unicomb",
		Subsystem: "staging",
		Name:      "records",
		Help:      "Records in the currently staged generation",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "unicomb",
		Subsystem: "pipeline",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run",
	})
	m.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "unicomb",
		Subsystem: "pipeline",
		Name:      "running",
		Help:      "Pipeline runs currently in flight",
	})

	m.registry.MustRegister(
		m.fetchTotal, m.fetchRecords, m.droppedTotal,
		m.runsTotal, m.runDuration, m.records, m.lastSuccessTS, m.running,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(country string, ok bool, records int) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.fetchTotal.WithLabelValues(country, status).Inc()
	if ok {
		m.fetchRecords.WithLabelValues(country).Add(float64(records))
	}
}

func (m *Metrics) ObserveDropped(incomplete, invalid int) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues("incomplete").Add(float64(incomplete))
	m.droppedTotal.WithLabelValues("invalid").Add(float64(invalid))
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) RunFinished(trigger, outcome string, duration time.Duration, records int) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.runsTotal.WithLabelValues(trigger, outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	if outcome == "success" {
		m.records.Set(float64(records))
		m.lastSuccessTS.SetToCurrentTime()
	}
}
