package gatherer

import "github.com/prometheus/client_golang/prometheus"

const (
	prometheusLabelHost   = "host"
	prometheusLabelStatus = "status"
	prometheusLabelReason = "reason"
)

// Metrics carries the crawl's prometheus collectors. They register on the
// given registerer so tests can use a private registry.
type Metrics struct {
	FetchDurations   *prometheus.SummaryVec
	FetchStatusCodes *prometheus.CounterVec
	FetchesTotal     prometheus.Counter
	SkipsTotal       *prometheus.CounterVec
	RecordsTotal     prometheus.Counter
	FrontierOpen     prometheus.Gauge
	FrontierDone     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchDurations: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "gatherer_fetch_durations_seconds",
				Help:       "fetch duration including streaming of the body",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{prometheusLabelHost},
		),
		FetchStatusCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_fetch_status_code_total",
				Help: "status codes seen during the crawl",
			},
			[]string{prometheusLabelStatus},
		),
		FetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatherer_fetch_counter_total",
			Help: "number of fetches since crawl start",
		}),
		SkipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatherer_frontier_skip_total",
				Help: "targets the frontier refused, by reason",
			},
			[]string{prometheusLabelReason},
		),
		RecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatherer_records_total",
			Help: "records emitted to the sink",
		}),
		FrontierOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatherer_frontier_gauge_open",
			Help: "targets waiting in the frontier",
		}),
		FrontierDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatherer_frontier_gauge_complete",
			Help: "targets fetched so far",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.FetchDurations,
		m.FetchStatusCodes,
		m.FetchesTotal,
		m.SkipsTotal,
		m.RecordsTotal,
		m.FrontierOpen,
		m.FrontierDone,
	)
	return m
}
