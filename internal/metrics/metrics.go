package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpstation_messages_total",
			Help: "BMP messages decoded, by message type.",
		},
		[]string{"topic", "msg_type"},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpstation_decode_errors_total",
			Help: "Decode failures by stage (openbmp, frame, bmp, bgp) and reason.",
		},
		[]string{"stage", "reason"},
	)

	UnrecognizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpstation_unrecognized_total",
			Help: "Unrecognized but retained wire elements (stat counter types, info TLV types).",
		},
		[]string{"kind"},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bmpstation_db_write_duration_seconds",
			Help:    "DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	DBRowsAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpstation_db_rows_affected_total",
			Help: "DB rows written.",
		},
		[]string{"table"},
	)

	DedupConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bmpstation_dedup_conflicts_total",
			Help: "Duplicate route events skipped (ON CONFLICT DO NOTHING hits).",
		},
		[]string{"topic"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bmpstation_batch_size",
			Help:    "Batch sizes flushed to DB.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 5000},
		},
	)

	LastMsgTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bmpstation_last_msg_timestamp_seconds",
			Help: "Unix timestamp of the last processed message per router.",
		},
		[]string{"router_ip"},
	)

	SessionsUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bmpstation_sessions_up",
			Help: "Monitored BGP sessions currently up (Peer Up seen without a later Peer Down).",
		},
		[]string{"router_ip"},
	)

	PartitionsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bmpstation_partitions_dropped_total",
			Help: "Route event partitions dropped by retention maintenance.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		MessagesTotal,
		DecodeErrorsTotal,
		UnrecognizedTotal,
		DBWriteDuration,
		DBRowsAffectedTotal,
		DedupConflictsTotal,
		BatchSize,
		LastMsgTimestamp,
		SessionsUp,
		PartitionsDroppedTotal,
	)
}
