// Package telemetry registers the Prometheus instruments for the delivery
// pipeline. Collectors live on the default registry and are exposed by the
// ops HTTP surface via promhttp.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_messages_enqueued_total",
		Help: "Outbound messages accepted into the delivery queue.",
	}, []string{"type"})

	FragmentsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_fragments_emitted_total",
		Help: "Fragment-displayed events emitted by sequence playback.",
	})

	SequencesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_sequences_started_total",
		Help: "Fragment sequences started.",
	})

	SequencesForceCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_sequences_force_completed_total",
		Help: "Sequences truncated via force-completion.",
	})

	GenerationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_generation_timeouts_total",
		Help: "Reply generations that hit the timeout and used fallback text.",
	})

	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_generation_failures_total",
		Help: "Reply generations converted into synthetic error messages.",
	})

	PendingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_pending_retries_total",
		Help: "Pending messages re-attempted after connectivity returned.",
	})

	PendingDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_pending_depth",
		Help: "Messages currently parked in the durable pending list.",
	})

	MetadataFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_metadata_flushes_total",
		Help: "Debounced conversation metadata updates flushed to the remote store.",
	})

	MetadataFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadence_metadata_flush_errors_total",
		Help: "Metadata flushes that failed and were swallowed.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_queue_depth",
		Help: "Entries currently buffered in the message queue.",
	})
)
