package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// PatchMisses counts item patches that targeted an identity absent from
	// the design, usually a stale selection on the client.
	PatchMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardstudio_patch_misses_total",
		Help: "Item patches whose target identity was not found",
	})

	InvitationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardstudio_invitations_sent_total",
			Help: "Invitation emails handed to the mail provider, by outcome",
		},
		[]string{"outcome"},
	)

	InvitationViews = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardstudio_invitation_first_views_total",
		Help: "Invitations opened for the first time by their recipient",
	})

	PaymentIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardstudio_payment_intents_total",
			Help: "Payment intents requested from the payment provider, by plan and outcome",
		},
		[]string{"plan", "outcome"},
	)
)

// Register registers every collector of the service on reg. Call once from main.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		PatchMisses,
		InvitationsSent,
		InvitationViews,
		PaymentIntents,
	)
}

// Middleware records count and latency of every request. Paths are taken
// from the chi route pattern so ids do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Initialize with 200 OK in case WriteHeader isn't called explicitly
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(path, r.Method, http.StatusText(ww.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// BasicAuth protects the metrics endpoint.
func BasicAuth(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
