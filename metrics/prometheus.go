// prometheus.go exposes the subset of execution-core metrics that are worth
// scraping in production: gas accounting throughput and call/create engine
// activity. Unlike the in-process Counter/Gauge/Histogram types above (used
// for cheap, ad hoc bookkeeping such as core/state's access counters), these
// are backed by github.com/prometheus/client_golang so they can be served
// over a /metrics endpoint by an embedding node.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PromRegistry is the process-wide Prometheus registry for execution-core
// metrics. An embedding binary registers this with its own HTTP handler,
// e.g. promhttp.HandlerFor(metrics.PromRegistry, promhttp.HandlerOpts{}).
var PromRegistry = prometheus.NewRegistry()

var (
	// gasConsumedTotal sums gas charged per opcode across every Interpreter.Run
	// step, labeled by opcode mnemonic (ADD, SSTORE, CALL, ...).
	gasConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth2030",
		Subsystem: "gas",
		Name:      "consumed_total",
		Help:      "Total gas charged per opcode.",
	}, []string{"opcode"})

	// callsTotal counts message-call and contract-creation invocations,
	// labeled by kind (call, callcode, delegatecall, staticcall, create, create2).
	callsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eth2030",
		Subsystem: "calls",
		Name:      "total",
		Help:      "Number of call/create frames entered, labeled by kind.",
	}, []string{"kind"})

	// callsActive is the number of call/create frames currently executing.
	callsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "eth2030",
		Subsystem: "calls",
		Name:      "active",
		Help:      "Number of call/create frames currently on the stack.",
	})

	// callDepth samples evm.depth at the start of every call/create frame.
	callDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eth2030",
		Subsystem: "calls",
		Name:      "depth",
		Help:      "Call-stack depth observed when a call/create frame starts.",
		Buckets:   prometheus.LinearBuckets(0, 8, 16), // covers depth 0..120, beyond MaxCallDepth=1024 in the tail bucket
	})

	// callGasUsed records gas actually consumed by a completed call/create
	// frame (requested gas minus gas returned to the caller), labeled by kind.
	callGasUsed = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eth2030",
		Subsystem: "calls",
		Name:      "gas_used",
		Help:      "Gas consumed by a completed call/create frame.",
		Buckets:   prometheus.ExponentialBuckets(2100, 2, 16), // 2100 .. ~68.8M
	}, []string{"kind"})
)

func init() {
	PromRegistry.MustRegister(gasConsumedTotal, callsTotal, callsActive, callDepth, callGasUsed)
}

// RecordGasConsumed adds the gas charged for a single opcode step to the
// per-opcode counter. Called once per Interpreter.Run iteration.
func RecordGasConsumed(opcode string, amount uint64) {
	if amount == 0 {
		return
	}
	gasConsumedTotal.WithLabelValues(opcode).Add(float64(amount))
}

// RecordCallStart marks the start of a call/create frame: it increments the
// total and active-frame counters and samples the current call depth. kind
// is one of "call", "callcode", "delegatecall", "staticcall", "create", or
// "create2".
func RecordCallStart(kind string, depth int) {
	callsTotal.WithLabelValues(kind).Inc()
	callsActive.Inc()
	callDepth.Observe(float64(depth))
}

// RecordCallEnd marks the end of a call/create frame, decrementing the
// active-frame gauge and recording the gas it consumed.
func RecordCallEnd(kind string, gasUsed uint64) {
	callsActive.Dec()
	callGasUsed.WithLabelValues(kind).Observe(float64(gasUsed))
}
