package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsCollector struct {
	ordersOpened    *prometheus.CounterVec
	ordersCompleted *prometheus.CounterVec
	ordersFailed    *prometheus.CounterVec
	claimMisses     *prometheus.CounterVec
	orderPrice      *prometheus.HistogramVec
	orderDuration   *prometheus.HistogramVec
	poolAvailable   *prometheus.GaugeVec
	sweeperReleased prometheus.Counter
	sweeperFailed   prometheus.Counter

	serviceMeanDuration *prometheus.GaugeVec
	serviceMeanPrice    *prometheus.GaugeVec
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		ordersOpened: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numpool_orders_opened_total",
				Help: "Total number of orders opened",
			},
			[]string{"service", "country"},
		),
		ordersCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numpool_orders_completed_total",
				Help: "Total number of orders completed with a verification code",
			},
			[]string{"service", "country"},
		),
		ordersFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numpool_orders_failed_total",
				Help: "Total number of failed orders",
			},
			[]string{"service", "country", "reason"},
		),
		claimMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numpool_claim_misses_total",
				Help: "Total number of claim attempts that found no available number",
			},
			[]string{"service", "country"},
		),
		orderPrice: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numpool_order_price",
				Help:    "Price distribution of opened orders",
				Buckets: prometheus.LinearBuckets(0, 0.05, 20),
			},
			[]string{"service"},
		),
		orderDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numpool_order_duration_seconds",
				Help:    "Duration of orders from open to terminal status",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"service", "status"},
		),
		poolAvailable: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "numpool_pool_available",
				Help: "Numbers currently available for claim per service/country pair",
			},
			[]string{"service", "country"},
		),
		serviceMeanDuration: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "numpool_service_mean_code_seconds",
				Help: "Mean seconds from order open to code arrival, recent completed orders",
			},
			[]string{"service"},
		),
		serviceMeanPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "numpool_service_mean_price",
				Help: "Mean price of recent completed orders per service",
			},
			[]string{"service"},
		),
		sweeperReleased: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "numpool_sweeper_released_total",
				Help: "Total number of expired leases released by the sweeper",
			},
		),
		sweeperFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "numpool_sweeper_failed_orders_total",
				Help: "Total number of orders failed by the sweeper",
			},
		),
	}
}

func (m *MetricsCollector) IncrementOrdersOpened(service, country string) {
	m.ordersOpened.WithLabelValues(service, country).Inc()
}

func (m *MetricsCollector) IncrementOrdersCompleted(service, country string) {
	m.ordersCompleted.WithLabelValues(service, country).Inc()
}

func (m *MetricsCollector) IncrementOrdersFailed(service, country, reason string) {
	m.ordersFailed.WithLabelValues(service, country, reason).Inc()
}

func (m *MetricsCollector) IncrementClaimMisses(service, country string) {
	m.claimMisses.WithLabelValues(service, country).Inc()
}

func (m *MetricsCollector) RecordOrderPrice(service string, price float64) {
	m.orderPrice.WithLabelValues(service).Observe(price)
}

func (m *MetricsCollector) RecordOrderDuration(service, status string, seconds float64) {
	m.orderDuration.WithLabelValues(service, status).Observe(seconds)
}

func (m *MetricsCollector) SetPoolAvailable(service, country string, count float64) {
	m.poolAvailable.WithLabelValues(service, country).Set(count)
}

func (m *MetricsCollector) SetServiceStats(service string, meanDuration, meanPrice float64) {
	m.serviceMeanDuration.WithLabelValues(service).Set(meanDuration)
	m.serviceMeanPrice.WithLabelValues(service).Set(meanPrice)
}

func (m *MetricsCollector) IncrementSweeperReleased(n int) {
	m.sweeperReleased.Add(float64(n))
}

func (m *MetricsCollector) IncrementSweeperFailedOrders(n int) {
	m.sweeperFailed.Add(float64(n))
}
