package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	patientsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patients_created_total",
			Help: "Total number of patients created",
		},
	)

	visitsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visits_recorded_total",
			Help: "Total number of visits recorded",
		},
	)

	alertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pattern_alerts_raised_total",
			Help: "Total number of pattern alerts raised",
		},
		[]string{"type", "severity"},
	)

	detectionRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pattern_detection_runs_total",
			Help: "Total number of pattern detection passes",
		},
	)

	detectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pattern_detection_duration_seconds",
			Help:    "Pattern detection pass duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	dataExports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_exports_total",
			Help: "Total number of data exports",
		},
		[]string{"format"},
	)

	dataImports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "data_imports_total",
			Help: "Total number of data imports",
		},
		[]string{"format", "status"},
	)

	backupsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backups_created_total",
			Help: "Total number of backups created",
		},
	)

	// Storage metrics
	storeReadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_read_failures_total",
			Help: "Total number of unreadable or malformed store reads",
		},
		[]string{"key"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordPatientCreated records a patient creation
func RecordPatientCreated() {
	patientsCreated.Inc()
}

// RecordVisitRecorded records a visit creation
func RecordVisitRecorded() {
	visitsRecorded.Inc()
}

// RecordAlertRaised records a raised pattern alert
func RecordAlertRaised(alertType, severity string) {
	alertsRaised.WithLabelValues(alertType, severity).Inc()
}

// RecordDetectionRun records a detection pass
func RecordDetectionRun(duration time.Duration) {
	detectionRuns.Inc()
	detectionDuration.Observe(duration.Seconds())
}

// RecordExport records a data export
func RecordExport(format string) {
	dataExports.WithLabelValues(format).Inc()
}

// RecordImport records a data import attempt
func RecordImport(format string, ok bool) {
	status := "failed"
	if ok {
		status = "ok"
	}
	dataImports.WithLabelValues(format, status).Inc()
}

// RecordBackupCreated records a backup snapshot
func RecordBackupCreated() {
	backupsCreated.Inc()
}

// RecordStoreReadFailure records a malformed or unreadable store read
func RecordStoreReadFailure(key string) {
	storeReadFailures.WithLabelValues(key).Inc()
}
