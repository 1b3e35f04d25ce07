package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the serving surface.
type Metrics struct {
	StreamRequests   *prometheus.CounterVec
	AgentTurns       *prometheus.CounterVec
	ToolExecutions   *prometheus.CounterVec
	StreamDuration   prometheus.Histogram
	ActiveStreams    prometheus.Gauge
	ToolCallFailures prometheus.Counter
}

// NewMetrics registers the instruments on a registry. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		StreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fable_stream_requests_total",
			Help: "Stream requests by outcome.",
		}, []string{"status"}),
		AgentTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fable_agent_turns_total",
			Help: "Agent loop invocations by kind (input or feedback).",
		}, []string{"kind"}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fable_tool_executions_total",
			Help: "Tool results observed on the output stream, by tool.",
		}, []string{"tool"}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fable_stream_duration_seconds",
			Help:    "Wall-clock duration of stream requests.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fable_active_streams",
			Help: "Streams currently in flight.",
		}),
		ToolCallFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fable_tool_call_failures_total",
			Help: "Turns abandoned after repeated malformed tool calls.",
		}),
	}
}
