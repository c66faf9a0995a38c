package window

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// WindowWrap binds one ring slot's aligned start time to its bucket of type B.
// The start is republished on every roll-over; the bucket is reset in place.
type WindowWrap[B any] struct {
	windowLengthMs int64
	windowStartMs  atomic.Int64
	value          *B
}

func (w *WindowWrap[B]) WindowStart() int64 { return w.windowStartMs.Load() }
func (w *WindowWrap[B]) Value() *B          { return w.value }

// SetWindowStart publishes a new start after a roll-over. Only bucket
// generators may call it, from inside ResetBucket.
func (w *WindowWrap[B]) SetWindowStart(startMs int64) { w.windowStartMs.Store(startMs) }

func (w *WindowWrap[B]) isTimeInWindow(timeMs int64) bool {
	start := w.windowStartMs.Load()
	return start <= timeMs && timeMs < start+w.windowLengthMs
}

// BucketGenerator creates and recycles buckets for a LeapArray. ResetBucket
// runs under the array's update lock, so it may read companion state (e.g.
// pre-borrowed future capacity) without racing other resets.
type BucketGenerator[B any] interface {
	NewEmptyBucket(startMs int64) *B
	ResetBucket(w *WindowWrap[B], startMs int64)
}

// LeapArray is a fixed ring of sampleCount buckets spanning intervalMs.
// Reads and writes on the hot path are lock-free; only the thread that wins
// the TryLock performs the in-place roll-over of a stale slot, losers yield
// and re-read until the fresh start is observable.
type LeapArray[B any] struct {
	sampleCount    int64
	intervalMs     int64
	windowLengthMs int64
	array          []atomic.Pointer[WindowWrap[B]]
	updateLock     sync.Mutex
	gen            BucketGenerator[B]
}

func NewLeapArray[B any](sampleCount int, intervalMs int64, gen BucketGenerator[B]) (*LeapArray[B], error) {
	if sampleCount <= 0 || intervalMs <= 0 || intervalMs%int64(sampleCount) != 0 {
		return nil, fmt.Errorf("invalid leap array layout: sampleCount=%d intervalMs=%d", sampleCount, intervalMs)
	}
	return &LeapArray[B]{
		sampleCount:    int64(sampleCount),
		intervalMs:     intervalMs,
		windowLengthMs: intervalMs / int64(sampleCount),
		array:          make([]atomic.Pointer[WindowWrap[B]], sampleCount),
		gen:            gen,
	}, nil
}

func (la *LeapArray[B]) SampleCount() int64    { return la.sampleCount }
func (la *LeapArray[B]) IntervalMs() int64     { return la.intervalMs }
func (la *LeapArray[B]) WindowLengthMs() int64 { return la.windowLengthMs }

func (la *LeapArray[B]) calculateTimeIdx(timeMs int64) int64 {
	return (timeMs / la.windowLengthMs) % la.sampleCount
}

func calculateWindowStart(timeMs, windowLengthMs int64) int64 {
	return timeMs - timeMs%windowLengthMs
}

// CurrentWindow resolves the slot covering timeMs, installing or rolling the
// bucket as needed.
func (la *LeapArray[B]) CurrentWindow(timeMs int64) *WindowWrap[B] {
	if timeMs < 0 {
		return nil
	}
	idx := la.calculateTimeIdx(timeMs)
	windowStart := calculateWindowStart(timeMs, la.windowLengthMs)

	for {
		old := la.array[idx].Load()
		if old == nil {
			w := &WindowWrap[B]{windowLengthMs: la.windowLengthMs, value: la.gen.NewEmptyBucket(windowStart)}
			w.windowStartMs.Store(windowStart)
			if la.array[idx].CompareAndSwap(nil, w) {
				return w
			}
			runtime.Gosched()
			continue
		}
		switch start := old.WindowStart(); {
		case windowStart == start:
			return old
		case windowStart > start:
			// Stale slot: claim the roll-over, zero counters in place and
			// publish the new start. Losers spin until it is observable.
			// The re-check under the lock guarantees exactly one zeroing per
			// roll, even for a claimant that raced in late.
			if la.updateLock.TryLock() {
				if windowStart > old.WindowStart() {
					la.gen.ResetBucket(old, windowStart)
				}
				la.updateLock.Unlock()
				return old
			}
			runtime.Gosched()
		default:
			// Clock went backwards; hand out a detached bucket so the
			// published ring is never mutated with an older start.
			w := &WindowWrap[B]{windowLengthMs: la.windowLengthMs, value: la.gen.NewEmptyBucket(windowStart)}
			w.windowStartMs.Store(windowStart)
			return w
		}
	}
}

// GetWindow returns the ring slot whose start equals the aligned start of
// timeMs, or nil when it has already been leapt over.
func (la *LeapArray[B]) GetWindow(timeMs int64) *WindowWrap[B] {
	if timeMs < 0 {
		return nil
	}
	w := la.array[la.calculateTimeIdx(timeMs)].Load()
	if w == nil || !w.isTimeInWindow(timeMs) {
		return nil
	}
	return w
}

func (la *LeapArray[B]) isWindowDeprecated(nowMs int64, w *WindowWrap[B]) bool {
	return nowMs-w.WindowStart() >= la.intervalMs
}

// Values returns all buckets whose start lies in (nowMs-intervalMs, nowMs].
func (la *LeapArray[B]) Values(nowMs int64) []*WindowWrap[B] {
	res := make([]*WindowWrap[B], 0, la.sampleCount)
	for i := range la.array {
		w := la.array[i].Load()
		if w == nil || la.isWindowDeprecated(nowMs, w) || w.WindowStart() > nowMs {
			continue
		}
		res = append(res, w)
	}
	return res
}
