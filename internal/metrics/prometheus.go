package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docuflow_scan_duration_seconds",
			Help:    "End-to-end duration of archive scan runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	ScanJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflow_scan_jobs_total",
			Help: "Scan runs by terminal status",
		},
		[]string{"status"},
	)

	FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflow_scan_files_total",
			Help: "Archive files seen by a scan run, by outcome",
		},
		[]string{"outcome"},
	)

	FileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docuflow_scan_file_duration_seconds",
			Help:    "Per-file ingestion duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	DocumentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docuflow_documents_created_total",
			Help: "Documents created during ingestion, by routing status",
		},
		[]string{"status"},
	)

	DocumentsSplit = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docuflow_documents_split_total",
			Help: "Multi-subject PDFs partitioned into per-subject documents",
		},
	)

	CodesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docuflow_codes_decoded_total",
			Help: "2D matrix codes successfully decoded",
		},
	)

	ReviewTasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docuflow_review_tasks_created_total",
			Help: "Review tasks raised for unroutable documents",
		},
	)
)

func Init() {
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ScanJobsTotal)
	prometheus.MustRegister(FilesTotal)
	prometheus.MustRegister(FileDuration)
	prometheus.MustRegister(DocumentsCreated)
	prometheus.MustRegister(DocumentsSplit)
	prometheus.MustRegister(CodesDecoded)
	prometheus.MustRegister(ReviewTasksCreated)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
