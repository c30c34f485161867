// Package metric provides the Prometheus registry of the IKG service.
//
// NewMetricsRegistry creates a private prometheus.Registry holding the Go and
// process collectors plus the core service metrics (see Metrics). Components
// that own additional metrics, such as worker pools, register them under a
// service name; a second registration of the same service and metric name is
// rejected with an invalid-class error.
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().MessagesTotal.WithLabelValues("people", "ack").Inc()
//	router.GET("/metrics", gin.WrapH(registry.Handler()))
//
// Pass a nil *MetricsRegistry to constructors to disable metrics.
package metric
