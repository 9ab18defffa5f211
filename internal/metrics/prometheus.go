package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the quad mixer service
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	PacketsDropped   prometheus.Counter
	QueueSize        prometheus.Gauge

	// Call lifecycle metrics
	ActiveCalls    prometheus.Gauge
	CallsStarted   prometheus.Counter
	CallsRestarted prometheus.Counter
	MissedStarts   prometheus.Counter
	CallsEnded     prometheus.Counter
	CallsTimedOut  prometheus.Counter
	OrphanEnds     prometheus.Counter
	CallDuration   prometheus.Histogram

	// Mixing metrics
	AudioEvents      prometheus.Counter
	KeepalivePackets prometheus.Counter
	SamplesMixed     prometheus.Counter
	FramesDropped    prometheus.Counter
	SamplesClipped   prometheus.Counter

	// Output pacing metrics
	BlocksEmitted  prometheus.Counter
	SilenceBlocks  prometheus.Counter
	PacerLagResets prometheus.Counter

	// Status file metrics
	StatusWrites      prometheus.Counter
	StatusWriteErrors prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// UDP packet metrics
		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		PacketsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_packets_dropped_total",
			Help: "Total number of packets dropped due to a full processing queue",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quadmix_packet_queue_size",
			Help: "Current number of packets in the processing queue",
		}),

		// Call lifecycle metrics
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quadmix_active_calls",
			Help: "Current number of active calls in the registry",
		}),
		CallsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_calls_started_total",
			Help: "Total number of calls opened by a call_start event",
		}),
		CallsRestarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_calls_restarted_total",
			Help: "Total number of call_start events received for already active talkgroups",
		}),
		MissedStarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_missed_starts_total",
			Help: "Total number of calls synthesized from audio arriving without a call_start",
		}),
		CallsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_calls_ended_total",
			Help: "Total number of calls closed by a call_end event",
		}),
		CallsTimedOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_calls_timed_out_total",
			Help: "Total number of calls closed by the inactivity sweep",
		}),
		OrphanEnds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_orphan_ends_total",
			Help: "Total number of call_end events for talkgroups with no active call",
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quadmix_call_duration_seconds",
			Help:    "Duration of closed calls in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Mixing metrics
		AudioEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_audio_events_total",
			Help: "Total number of audio events routed into the mix",
		}),
		KeepalivePackets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_keepalive_packets_total",
			Help: "Total number of tiny audio payloads treated as keep-alives",
		}),
		SamplesMixed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_samples_mixed_total",
			Help: "Total number of mono samples accumulated into the mix",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_frames_dropped_total",
			Help: "Total number of frames discarded because the mix ring was full",
		}),
		SamplesClipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_samples_clipped_total",
			Help: "Total number of output samples saturated to the s16 range",
		}),

		// Output pacing metrics
		BlocksEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_blocks_emitted_total",
			Help: "Total number of output blocks written to the sink",
		}),
		SilenceBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_silence_blocks_total",
			Help: "Total number of output blocks that were pure silence fill",
		}),
		PacerLagResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_pacer_lag_resets_total",
			Help: "Total number of times the pacer re-anchored its clock after falling behind",
		}),

		// Status file metrics
		StatusWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_status_writes_total",
			Help: "Total number of status file rewrites",
		}),
		StatusWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quadmix_status_write_errors_total",
			Help: "Total number of failed status file rewrites",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quadmix_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quadmix_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quadmix_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// RecordCallClosed increments the right close counter and records the
// call duration.
func (m *Metrics) RecordCallClosed(timedOut bool, durationSeconds float64) {
	if timedOut {
		m.CallsTimedOut.Inc()
	} else {
		m.CallsEnded.Inc()
	}
	m.CallDuration.Observe(durationSeconds)
}
