package state

import "github.com/eth2030/eth2030/metrics"

// StateMetrics tracks execution-layer state operation counts in a dedicated
// metrics.Registry. It is a thin, domain-named façade over metrics.Counter/
// metrics.Gauge so state bookkeeping doesn't hand-roll its own atomic
// counters when the project already has a metrics package for this.
type StateMetrics struct {
	registry *metrics.Registry

	accountsRead      *metrics.Counter
	accountsWritten   *metrics.Counter
	storageReads      *metrics.Counter
	storageWrites     *metrics.Counter
	codeReads         *metrics.Counter
	codeWrites        *metrics.Counter
	bytesRead         *metrics.Counter
	bytesWritten      *metrics.Counter
	snapshotCount     *metrics.Counter
	revertCount       *metrics.Counter
	selfDestructCount *metrics.Counter
	gasUsed           *metrics.Counter
	blockNumber       *metrics.Gauge
}

// NewStateMetrics creates a new StateMetrics backed by its own registry.
func NewStateMetrics() *StateMetrics {
	r := metrics.NewRegistry()
	return &StateMetrics{
		registry:          r,
		accountsRead:      r.Counter("state.accounts_read"),
		accountsWritten:   r.Counter("state.accounts_written"),
		storageReads:      r.Counter("state.storage_reads"),
		storageWrites:     r.Counter("state.storage_writes"),
		codeReads:         r.Counter("state.code_reads"),
		codeWrites:        r.Counter("state.code_writes"),
		bytesRead:         r.Counter("state.bytes_read"),
		bytesWritten:      r.Counter("state.bytes_written"),
		snapshotCount:     r.Counter("state.snapshot_count"),
		revertCount:       r.Counter("state.revert_count"),
		selfDestructCount: r.Counter("state.self_destruct_count"),
		gasUsed:           r.Counter("state.total_gas_used"),
		blockNumber:       r.Gauge("state.block_number"),
	}
}

func (m *StateMetrics) RecordAccountRead()  { m.accountsRead.Inc() }
func (m *StateMetrics) RecordAccountWrite() { m.accountsWritten.Inc() }

func (m *StateMetrics) RecordStorageRead(bytes int) {
	m.storageReads.Inc()
	m.bytesRead.Add(int64(bytes))
}

func (m *StateMetrics) RecordStorageWrite(bytes int) {
	m.storageWrites.Inc()
	m.bytesWritten.Add(int64(bytes))
}

func (m *StateMetrics) RecordCodeRead(size int) {
	m.codeReads.Inc()
	m.bytesRead.Add(int64(size))
}

func (m *StateMetrics) RecordCodeWrite(size int) {
	m.codeWrites.Inc()
	m.bytesWritten.Add(int64(size))
}

func (m *StateMetrics) RecordSnapshot()     { m.snapshotCount.Inc() }
func (m *StateMetrics) RecordRevert()       { m.revertCount.Inc() }
func (m *StateMetrics) RecordSelfDestruct() { m.selfDestructCount.Inc() }
func (m *StateMetrics) RecordGas(gas uint64) {
	m.gasUsed.Add(int64(gas))
}

// Reset starts a fresh counting window for the given block number. Counters
// are monotonic by design (metrics.Counter rejects negative Add), so rather
// than fighting that, Reset allocates a new backing registry: every counter
// and gauge is recreated at zero, and old readings are only reachable by
// calling Summary before Reset.
func (m *StateMetrics) Reset(blockNumber uint64) {
	fresh := NewStateMetrics()
	*m = *fresh
	m.blockNumber.Set(int64(blockNumber))
}

// Summary returns all metrics as a map of string to int64, as recorded in
// the backing registry.
func (m *StateMetrics) Summary() map[string]int64 {
	return map[string]int64{
		"accounts_read":       m.accountsRead.Value(),
		"accounts_written":    m.accountsWritten.Value(),
		"storage_reads":       m.storageReads.Value(),
		"storage_writes":      m.storageWrites.Value(),
		"code_reads":          m.codeReads.Value(),
		"code_writes":         m.codeWrites.Value(),
		"bytes_read":          m.bytesRead.Value(),
		"bytes_written":       m.bytesWritten.Value(),
		"snapshot_count":      m.snapshotCount.Value(),
		"revert_count":        m.revertCount.Value(),
		"self_destruct_count": m.selfDestructCount.Value(),
		"total_gas_used":      m.gasUsed.Value(),
		"block_number":        m.blockNumber.Value(),
	}
}

// Merge adds the counters from another StateMetrics into this one. Useful
// for aggregating metrics from parallel execution. BlockNumber is not merged.
func (m *StateMetrics) Merge(other *StateMetrics) {
	m.accountsRead.Add(other.accountsRead.Value())
	m.accountsWritten.Add(other.accountsWritten.Value())
	m.storageReads.Add(other.storageReads.Value())
	m.storageWrites.Add(other.storageWrites.Value())
	m.codeReads.Add(other.codeReads.Value())
	m.codeWrites.Add(other.codeWrites.Value())
	m.bytesRead.Add(other.bytesRead.Value())
	m.bytesWritten.Add(other.bytesWritten.Value())
	m.snapshotCount.Add(other.snapshotCount.Value())
	m.revertCount.Add(other.revertCount.Value())
	m.selfDestructCount.Add(other.selfDestructCount.Value())
	m.gasUsed.Add(other.gasUsed.Value())
}
