package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the friendchat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "friendchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendchat_store_operations_total",
			Help: "Total number of document store calls.",
		},
		[]string{"collection", "op", "result"},
	)
	storeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "friendchat_store_operation_duration_seconds",
			Help:    "Document store call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection", "op"},
	)
	threadResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendchat_thread_resolutions_total",
			Help: "Chat thread resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	cascadesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendchat_cascades_total",
			Help: "Friend removal cascades by final state.",
		},
		[]string{"state"},
	)
	cascadeStepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friendchat_cascade_step_failures_total",
			Help: "Failed friend removal cascade steps.",
		},
		[]string{"step"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "friendchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		storeOperationsTotal,
		storeOperationDuration,
		threadResolutionsTotal,
		cascadesTotal,
		cascadeStepFailuresTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func ObserveStoreOp(collection, op, result string, elapsed time.Duration) {
	storeOperationsTotal.WithLabelValues(collection, op, result).Inc()
	storeOperationDuration.WithLabelValues(collection, op).Observe(elapsed.Seconds())
}

func StoreOpCounter(collection, op, result string) prometheus.Counter {
	return storeOperationsTotal.WithLabelValues(collection, op, result)
}

func IncThreadResolution(outcome string) {
	threadResolutionsTotal.WithLabelValues(outcome).Inc()
}

func ThreadResolutionCounter(outcome string) prometheus.Counter {
	return threadResolutionsTotal.WithLabelValues(outcome)
}

func IncCascade(state string) {
	cascadesTotal.WithLabelValues(state).Inc()
}

func IncCascadeStepFailure(step string) {
	cascadeStepFailuresTotal.WithLabelValues(step).Inc()
}

func CascadeStepFailureCounter(step string) prometheus.Counter {
	return cascadeStepFailuresTotal.WithLabelValues(step)
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
