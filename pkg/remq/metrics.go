package remq

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pathReplay = "replay"
	pathBuffer = "buffer"
	pathLive   = "live"

	retryRace     = "race"
	retryOverflow = "overflow"
)

type metrics struct {
	delivered       *prometheus.CounterVec
	duplicates      prometheus.Counter
	filtered        prometheus.Counter
	retries         *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	registerFailure prometheus.Counter
	readSeconds     *prometheus.HistogramVec
	subscriptions   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, clientID string) *metrics {
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"client": clientID}, reg)
	}
	f := promauto.With(reg)
	return &metrics{
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "remq_client_messages_delivered_total",
			Help: "Messages emitted to observers, by delivery path",
		}, []string{"path"}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "remq_client_duplicates_dropped_total",
			Help: "Messages dropped at or below the pattern cursor",
		}),
		filtered: f.NewCounter(prometheus.CounterOpts{
			Name: "remq_client_messages_filtered_total",
			Help: "Messages rejected by a subscription filter",
		}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "remq_client_handover_retries_total",
			Help: "Abandoned live handovers, by reason",
		}, []string{"reason"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "remq_client_phase_transitions_total",
			Help: "Coordinator phase transitions, by target phase",
		}, []string{"phase"}),
		registerFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "remq_client_live_register_failures_total",
			Help: "Live channel registrations that failed during catch-up",
		}),
		readSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remq_client_read_range_duration_seconds",
			Help:    "Catch-up page read latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"result"}),
		subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "remq_client_subscriptions",
			Help: "Active pattern subscriptions",
		}),
	}
}

func (m *metrics) observeRead(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.readSeconds.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
