package memory

import (
	"sync"
	"time"

	"cheque-ledger/pkg/metrics"
)

// Collector implements metrics.Collector in memory, for tests and local inspection.
type Collector struct {
	mu sync.RWMutex

	stores      map[string]*OpMetrics
	caches      map[string]*CacheMetrics
	circuits    map[string]metrics.CircuitState
	circuitOpen map[string]int64

	ledgerOps          map[string]map[string]int64
	balance            float64
	validationFailures map[string]int64
}

// OpMetrics holds counts for a single store operation.
type OpMetrics struct {
	Calls     int64
	Failures  int64
	Latencies []time.Duration
}

// CacheMetrics holds hit/miss counts for a single cache layer.
type CacheMetrics struct {
	Hits   int64
	Misses int64
}

// NewCollector creates a new in-memory metrics collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.Reset()
	return c
}

// RecordStoreOp records a store call.
func (c *Collector) RecordStoreOp(op string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	om, ok := c.stores[op]
	if !ok {
		om = &OpMetrics{}
		c.stores[op] = om
	}
	om.Calls++
	if !success {
		om.Failures++
	}
	om.Latencies = append(om.Latencies, duration)
}

// RecordCircuitState records the current circuit breaker state.
func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.circuits[name]
	c.circuits[name] = state

	// Count transitions to open
	if old != metrics.CircuitOpen && state == metrics.CircuitOpen {
		c.circuitOpen[name]++
	}
}

// RecordCacheGet records a cache layer lookup.
func (c *Collector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cm, ok := c.caches[layer]
	if !ok {
		cm = &CacheMetrics{}
		c.caches[layer] = cm
	}
	if hit {
		cm.Hits++
	} else {
		cm.Misses++
	}
}

// RecordLedgerOp records the outcome of a ledger operation.
func (c *Collector) RecordLedgerOp(op string, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byOutcome, ok := c.ledgerOps[op]
	if !ok {
		byOutcome = make(map[string]int64)
		c.ledgerOps[op] = byOutcome
	}
	byOutcome[outcome]++
}

// RecordBalance records the latest account balance.
func (c *Collector) RecordBalance(balance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balance = balance
}

// RecordValidationFailure records a rejected payload field.
func (c *Collector) RecordValidationFailure(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.validationFailures[field]++
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Stores             map[string]OpMetrics
	Caches             map[string]CacheMetrics
	Circuits           map[string]metrics.CircuitState
	CircuitOpens       map[string]int64
	LedgerOps          map[string]map[string]int64
	Balance            float64
	ValidationFailures map[string]int64
}

// Snapshot returns a copy of the current metrics state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Stores:             make(map[string]OpMetrics, len(c.stores)),
		Caches:             make(map[string]CacheMetrics, len(c.caches)),
		Circuits:           make(map[string]metrics.CircuitState, len(c.circuits)),
		CircuitOpens:       make(map[string]int64, len(c.circuitOpen)),
		LedgerOps:          make(map[string]map[string]int64, len(c.ledgerOps)),
		Balance:            c.balance,
		ValidationFailures: make(map[string]int64, len(c.validationFailures)),
	}

	for op, om := range c.stores {
		cp := *om
		cp.Latencies = append([]time.Duration(nil), om.Latencies...)
		s.Stores[op] = cp
	}
	for layer, cm := range c.caches {
		s.Caches[layer] = *cm
	}
	for name, state := range c.circuits {
		s.Circuits[name] = state
	}
	for name, n := range c.circuitOpen {
		s.CircuitOpens[name] = n
	}
	for op, byOutcome := range c.ledgerOps {
		cp := make(map[string]int64, len(byOutcome))
		for outcome, n := range byOutcome {
			cp[outcome] = n
		}
		s.LedgerOps[op] = cp
	}
	for field, n := range c.validationFailures {
		s.ValidationFailures[field] = n
	}

	return s
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stores = make(map[string]*OpMetrics)
	c.caches = make(map[string]*CacheMetrics)
	c.circuits = make(map[string]metrics.CircuitState)
	c.circuitOpen = make(map[string]int64)
	c.ledgerOps = make(map[string]map[string]int64)
	c.balance = 0
	c.validationFailures = make(map[string]int64)
}

var _ metrics.Collector = (*Collector)(nil)
