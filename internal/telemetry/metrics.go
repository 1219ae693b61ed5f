package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsensor"

// UnknownRadio labels frames whose owning radio is not registered.
const UnknownRadio = "unknown"

var (
	// FramesCaptured counts frames read from a radio's capture socket
	FramesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Total number of frames read from the capture socket",
		},
		[]string{"radio"},
	)

	// BytesCaptured counts captured bytes per radio
	BytesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_captured_total",
			Help:      "Total number of bytes read from the capture socket",
		},
		[]string{"radio"},
	)

	// FramesDropped counts frames that never reached the sink. The radio
	// label is always a role, or UnknownRadio for unregistered owners.
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped",
		},
		[]string{"radio", "reason"},
	)

	// FramesDecoded counts decode results by outcome
	FramesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Total number of decoded frames by result",
		},
		[]string{"radio", "result"},
	)

	// CaptureErrors counts fatal capture socket errors
	CaptureErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Total number of capture socket failures",
		},
		[]string{"radio"},
	)

	// RadioChannel is the channel each radio is tuned to
	RadioChannel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "radio_channel",
			Help:      "Channel the radio is currently tuned to",
		},
		[]string{"radio"},
	)

	// WorkersLive is the size of the decode worker pool
	WorkersLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_live",
			Help:      "Number of live decode workers",
		},
	)

	// Backlog is the number of decode tasks not yet finished
	Backlog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decode_backlog",
			Help:      "Number of pending decode tasks",
		},
	)

	// ScalingDecisions counts worker pool grow/shrink actions
	ScalingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scaling_decisions_total",
			Help:      "Total number of worker pool resizes",
		},
		[]string{"decision"},
	)

	// SinkErrors counts failed sink calls
	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Total number of failed persistence calls",
		},
		[]string{"op"},
	)

	// Commands counts control commands by result
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of control commands",
		},
		[]string{"cmd", "result"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// It is idempotent.
func InitMetrics() {
	once.Do(func() {
		for _, c := range []prometheus.Collector{
			FramesCaptured, BytesCaptured, FramesDropped, FramesDecoded,
			CaptureErrors, RadioChannel, WorkersLive, Backlog,
			ScalingDecisions, SinkErrors, Commands,
		} {
			// already registered collectors are left alone
			_ = prometheus.DefaultRegisterer.Register(c)
		}
	})
}
