// Package metrics registers the Prometheus collectors used by the server
// and the sync engine.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec
	syncMutationsTotal  *prometheus.CounterVec
	syncPullOpsTotal    *prometheus.CounterVec
	authEventsTotal     *prometheus.CounterVec
)

// Register creates the collectors on reg (the default registerer when nil)
// and returns the /metrics handler. Repeated calls are no-ops.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var regErr error
	once.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed.",
		}, []string{"method", "path", "status"})
		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})
		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "In-flight HTTP requests.",
		}, []string{"method", "path"})
		syncMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_mutations_total",
			Help: "Pushed mutations by name and result.",
		}, []string{"name", "result"}) // result: applied|skipped|rejected|failed
		syncPullOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_pull_ops_total",
			Help: "Patch operations returned by pull.",
		}, []string{"op"})
		authEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Authentication events.",
		}, []string{"event"})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			syncMutationsTotal, syncPullOpsTotal, authEventsTotal,
		} {
			if err := registerCollector(reg, c); err != nil {
				regErr = err
				return
			}
		}
	})
	if regErr != nil {
		return nil, regErr
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Middleware records request counts, latency and in-flight gauges.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}
		method := strings.ToUpper(r.Method)
		path := NormalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, path).Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, path).Dec()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

func RecordMutation(name, result string) {
	if syncMutationsTotal != nil {
		syncMutationsTotal.WithLabelValues(name, result).Inc()
	}
}

func RecordPullOps(op string, n int) {
	if syncPullOpsTotal != nil && n > 0 {
		syncPullOpsTotal.WithLabelValues(op).Add(float64(n))
	}
}

func RecordAuth(event string) {
	if authEventsTotal != nil {
		authEventsTotal.WithLabelValues(event).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// NormalizePath collapses ids and tokens so label cardinality stays bounded.
func NormalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 || uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
