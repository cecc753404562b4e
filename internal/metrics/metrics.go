// Package metrics содержит Prometheus-коллекторы сервиса.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics хранит коллекторы, которые используют платёжный клиент, рассылка и сервис.
type Metrics struct {
	GatewayRequests    *prometheus.CounterVec
	GatewayLatency     *prometheus.HistogramVec
	Notifications      *prometheus.CounterVec
	OrderTransitions   *prometheus.CounterVec
	RefundReconcile    prometheus.Counter
	FeedbackProcessed  *prometheus.CounterVec
	RecommendCacheHits *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry создаёт и регистрирует единственный экземпляр коллекторов с указанным namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_gateway_requests_total",
				Help:      "Payment gateway calls by operation and outcome.",
			}, []string{"operation", "status"}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_gateway_request_duration_seconds",
				Help:      "Payment gateway call latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "status"}),
			Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Fire-and-forget notifications by event and outcome.",
			}, []string{"event", "status"}),
			OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Order status transitions.",
			}, []string{"to"}),
			RefundReconcile: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refund_reconciliation_required_total",
				Help:      "Refunds cancelled at the gateway whose local update matched no rows.",
			}),
			FeedbackProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_total",
				Help:      "Feedback submissions by action and outcome.",
			}, []string{"action", "status"}),
			RecommendCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommend_cache_total",
				Help:      "Recommendation cache lookups by result.",
			}, []string{"result"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.GatewayRequests,
			metricsInstance.GatewayLatency,
			metricsInstance.Notifications,
			metricsInstance.OrderTransitions,
			metricsInstance.RefundReconcile,
			metricsInstance.FeedbackProcessed,
			metricsInstance.RecommendCacheHits,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
