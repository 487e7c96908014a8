package obs

import (
	"sync"
	"sync/atomic"
	"time"

	"main/internal/errors"
)

const maxBlockKind = int(errors.KindInvariant)

// Metrics collects lightweight counters and latency stats for the terminal
// session: message dispatch per channel, queue drops, block reasons by
// classification and the confirm/submit path latencies.
type Metrics struct {
	dispatchCounts sync.Map // channel -> *uint64

	queueDrops  uint64
	queueClosed uint64

	blockCounts [maxBlockKind + 1]uint64

	submitAccepted    uint64
	submitFailed      uint64
	resubscribeOK     uint64
	resubscribeFailed uint64

	confirmLatency LatencyStats
	submitLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	DispatchCounts    map[string]uint64
	QueueDrops        uint64
	QueueClosed       uint64
	BlockCounts       map[errors.Kind]uint64
	SubmitAccepted    uint64
	SubmitFailed      uint64
	ResubscribeOK     uint64
	ResubscribeFailed uint64
	ConfirmLatency    LatencySnapshot
	SubmitLatency     LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveDispatch counts one message delivered on a channel.
func (m *Metrics) ObserveDispatch(channel string) {
	if m == nil {
		return
	}
	v, ok := m.dispatchCounts.Load(channel)
	if !ok {
		v, _ = m.dispatchCounts.LoadOrStore(channel, new(uint64))
	}
	atomic.AddUint64(v.(*uint64), 1)
}

// IncBlock counts one blocked operation by its error classification.
func (m *Metrics) IncBlock(kind errors.Kind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.blockCounts) {
		atomic.AddUint64(&m.blockCounts[idx], 1)
	}
}

// IncQueueDrop records a dispatch queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// IncSubmit records a submission outcome.
func (m *Metrics) IncSubmit(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		atomic.AddUint64(&m.submitAccepted, 1)
	} else {
		atomic.AddUint64(&m.submitFailed, 1)
	}
}

// IncResubscribe records a per-channel re-subscription outcome after a
// reconnect.
func (m *Metrics) IncResubscribe(ok bool) {
	if m == nil {
		return
	}
	if ok {
		atomic.AddUint64(&m.resubscribeOK, 1)
	} else {
		atomic.AddUint64(&m.resubscribeFailed, 1)
	}
}

// ObserveConfirm measures one confirm pass, fresh fetches included.
func (m *Metrics) ObserveConfirm(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmLatency.Observe(d)
}

// ObserveSubmit measures the final submission call.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	dispatch := make(map[string]uint64)
	m.dispatchCounts.Range(func(key, value any) bool {
		if v := atomic.LoadUint64(value.(*uint64)); v > 0 {
			dispatch[key.(string)] = v
		}
		return true
	})
	blocks := make(map[errors.Kind]uint64)
	for i := range m.blockCounts {
		if v := atomic.LoadUint64(&m.blockCounts[i]); v > 0 {
			blocks[errors.Kind(i)] = v
		}
	}
	return Snapshot{
		DispatchCounts:    dispatch,
		QueueDrops:        atomic.LoadUint64(&m.queueDrops),
		QueueClosed:       atomic.LoadUint64(&m.queueClosed),
		BlockCounts:       blocks,
		SubmitAccepted:    atomic.LoadUint64(&m.submitAccepted),
		SubmitFailed:      atomic.LoadUint64(&m.submitFailed),
		ResubscribeOK:     atomic.LoadUint64(&m.resubscribeOK),
		ResubscribeFailed: atomic.LoadUint64(&m.resubscribeFailed),
		ConfirmLatency:    m.confirmLatency.Snapshot(),
		SubmitLatency:     m.submitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
