package prometheus

import (
	"time"

	"cheque-ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	namespace string

	// Store
	storeOps      *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	storeLatency  *prometheus.HistogramVec
	circuitOpens  *prometheus.CounterVec
	circuitStates *prometheus.GaugeVec

	// Cache chain
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec

	// Ledger
	ledgerOps          *prometheus.CounterVec
	balance            prometheus.Gauge
	validationFailures *prometheus.CounterVec
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	return &Collector{
		namespace: namespace,
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"operation"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of failed store operations",
			},
			[]string{"operation"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_duration_seconds",
				Help:      "Store operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3s
			},
			[]string{"operation"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitStates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits per layer",
			},
			[]string{"layer"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses per layer",
			},
			[]string{"layer"},
		),
		cacheLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_get_duration_seconds",
				Help:      "Cache get latency per layer",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"layer"},
		),
		ledgerOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Total number of ledger operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		balance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "account_balance",
				Help:      "Last observed account balance",
			},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of rejected payload fields",
			},
			[]string{"field"},
		),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.storeOps,
		c.storeErrors,
		c.storeLatency,
		c.circuitOpens,
		c.circuitStates,
		c.cacheHits,
		c.cacheMisses,
		c.cacheLatency,
		c.ledgerOps,
		c.balance,
		c.validationFailures,
	}
}

// Register registers all metrics with the given registerer.
func (c *Collector) Register(registerer prometheus.Registerer) error {
	for _, collector := range c.collectors() {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range c.collectors() {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range c.collectors() {
		collector.Collect(ch)
	}
}

// RecordStoreOp records a store operation.
func (c *Collector) RecordStoreOp(op string, success bool, duration time.Duration) {
	c.storeOps.WithLabelValues(op).Inc()
	if !success {
		c.storeErrors.WithLabelValues(op).Inc()
	}
	c.storeLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitStates.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordCacheGet records a cache layer lookup.
func (c *Collector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	if hit {
		c.cacheHits.WithLabelValues(layer).Inc()
	} else {
		c.cacheMisses.WithLabelValues(layer).Inc()
	}
	c.cacheLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordLedgerOp records the outcome of a ledger operation.
func (c *Collector) RecordLedgerOp(op string, outcome string) {
	c.ledgerOps.WithLabelValues(op, outcome).Inc()
}

// RecordBalance records the latest account balance.
func (c *Collector) RecordBalance(balance float64) {
	c.balance.Set(balance)
}

// RecordValidationFailure records a rejected payload field.
func (c *Collector) RecordValidationFailure(field string) {
	c.validationFailures.WithLabelValues(field).Inc()
}

var (
	_ metrics.Collector    = (*Collector)(nil)
	_ prometheus.Collector = (*Collector)(nil)
)
