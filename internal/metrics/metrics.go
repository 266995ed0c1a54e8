// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceivedTotal counts frames returned by the capture handle
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsniff_frames_received_total",
			Help: "Total number of frames received from the capture handle",
		},
		[]string{"interface"},
	)

	// BytesReceivedTotal counts captured bytes
	BytesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsniff_bytes_received_total",
			Help: "Total number of bytes received from the capture handle",
		},
		[]string{"interface"},
	)

	// PacketsDecodedTotal counts decoded packets by protocol class
	PacketsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsniff_packets_decoded_total",
			Help: "Total number of frames decoded into packet summaries",
		},
		[]string{"protocol"},
	)

	// DecodeFailuresTotal counts malformed frames by reason
	DecodeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsniff_decode_failures_total",
			Help: "Total number of frames that failed IPv4 header decoding",
		},
		[]string{"reason"},
	)

	// ReceiveRetriesTotal counts transient receive errors that were retried
	ReceiveRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipsniff_receive_retries_total",
			Help: "Total number of transient receive errors retried",
		},
	)

	// CaptureActive is 1 while a capture handle is active
	CaptureActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipsniff_capture_active",
			Help: "Whether a capture handle is active (1) or not (0)",
		},
	)

	// PromiscuousEnabled is 1 while all-traffic delivery is on
	PromiscuousEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipsniff_promiscuous_enabled",
			Help: "Whether promiscuous mode is enabled (1) or not (0)",
		},
	)

	// SinkErrorsTotal counts records a sink failed to deliver
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsniff_sink_errors_total",
			Help: "Total number of records a sink failed to deliver",
		},
		[]string{"sink"},
	)
)
