package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_denials_total",
			Help: "Authorization denials by action class.",
		},
		[]string{"action"},
	)

	remindersSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appointment_reminders_sent_total",
		Help: "Appointment reminders dispatched by the scheduler.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authzDenialsTotal,
		remindersSentTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDenial records a policy denial for the given action class.
func ObserveDenial(action string) {
	authzDenialsTotal.WithLabelValues(action).Inc()
}

// ObserveReminder records one dispatched appointment reminder.
func ObserveReminder() {
	remindersSentTotal.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// staticChildren lists collection sub-paths that are route names, not record
// identifiers.
var staticChildren = map[string]map[string]bool{
	"users":        {"doctors": true},
	"appointments": {"available-slots": true, "upcoming-controls": true, "recommended-control-dates": true},
}

// CanonicalPath collapses record identifiers in request paths so that metric
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	seg := strings.Split(strings.Trim(path, "/"), "/")
	if len(seg) < 3 || seg[0] != "api" {
		return path
	}
	coll := seg[1]
	if statics, ok := staticChildren[coll]; ok && len(seg) == 3 && statics[seg[2]] {
		return path
	}
	switch coll {
	case "users", "appointments", "notifications":
		if len(seg) == 3 {
			return "/api/" + coll + "/:id"
		}
		if len(seg) == 4 {
			return "/api/" + coll + "/:id/" + seg[3]
		}
	case "procedures":
		if len(seg) == 4 {
			return "/api/procedures/" + seg[2] + "/:id"
		}
	}
	return path
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE endpoints working through the instrumented chain.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
