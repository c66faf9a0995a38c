package window

import (
	"math"
	"sync/atomic"
)

// MetricEvent enumerates the counters tracked per bucket.
type MetricEvent int

const (
	EventPass MetricEvent = iota
	EventBlock
	EventException
	EventSuccess
	EventRt
	EventOccupiedPass
)

// MetricBucket holds the atomic counters of one time window. All mutation is
// plain atomic adds; Reset is only called by the slot owner that won the
// roll-over (see LeapArray).
type MetricBucket struct {
	pass         atomic.Int64
	block        atomic.Int64
	exception    atomic.Int64
	success      atomic.Int64
	rt           atomic.Int64
	occupiedPass atomic.Int64
	minRt        atomic.Int64
}

func NewMetricBucket() *MetricBucket {
	b := &MetricBucket{}
	b.minRt.Store(math.MaxInt64)
	return b
}

func (b *MetricBucket) AddPass(n int64)         { b.pass.Add(n) }
func (b *MetricBucket) AddBlock(n int64)        { b.block.Add(n) }
func (b *MetricBucket) AddException(n int64)    { b.exception.Add(n) }
func (b *MetricBucket) AddSuccess(n int64)      { b.success.Add(n) }
func (b *MetricBucket) AddOccupiedPass(n int64) { b.occupiedPass.Add(n) }

// AddRt accumulates response time and keeps the window minimum.
func (b *MetricBucket) AddRt(rt int64) {
	b.rt.Add(rt)
	for {
		cur := b.minRt.Load()
		if rt >= cur || b.minRt.CompareAndSwap(cur, rt) {
			return
		}
	}
}

func (b *MetricBucket) Pass() int64         { return b.pass.Load() }
func (b *MetricBucket) Block() int64        { return b.block.Load() }
func (b *MetricBucket) Exception() int64    { return b.exception.Load() }
func (b *MetricBucket) Success() int64      { return b.success.Load() }
func (b *MetricBucket) Rt() int64           { return b.rt.Load() }
func (b *MetricBucket) OccupiedPass() int64 { return b.occupiedPass.Load() }

func (b *MetricBucket) MinRt() int64 {
	v := b.minRt.Load()
	if v == math.MaxInt64 {
		return 0
	}
	return v
}

// Get returns the raw counter for the given event.
func (b *MetricBucket) Get(e MetricEvent) int64 {
	switch e {
	case EventPass:
		return b.Pass()
	case EventBlock:
		return b.Block()
	case EventException:
		return b.Exception()
	case EventSuccess:
		return b.Success()
	case EventRt:
		return b.Rt()
	case EventOccupiedPass:
		return b.OccupiedPass()
	default:
		return 0
	}
}

// Reset zeroes every counter. Must only run while the slot is claimed by the
// resetting writer, concurrent adds issued after the claim are preserved.
func (b *MetricBucket) Reset() {
	b.pass.Store(0)
	b.block.Store(0)
	b.exception.Store(0)
	b.success.Store(0)
	b.rt.Store(0)
	b.occupiedPass.Store(0)
	b.minRt.Store(math.MaxInt64)
}
