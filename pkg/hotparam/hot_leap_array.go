package hotparam

import (
	"sort"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/window"
)

// paramBucketCapacity bounds how many distinct parameter values one time
// bucket tracks.
const paramBucketCapacity = 200

// ParamEvent distinguishes the per-value counters of one bucket.
type ParamEvent int

const (
	ParamEventPass ParamEvent = iota
	ParamEventBlock
	paramEventCount
)

// ParamMapBucket holds bounded per-value counters for one time window.
type ParamMapBucket struct {
	counters [paramEventCount]*lruCounters
}

func newParamMapBucket() *ParamMapBucket {
	b := &ParamMapBucket{}
	for i := range b.counters {
		b.counters[i] = newLruCounters(paramBucketCapacity)
	}
	return b
}

func (b *ParamMapBucket) Add(e ParamEvent, value string, n int64) {
	b.counters[e].GetOrCreate(value).Add(n)
}

func (b *ParamMapBucket) Get(e ParamEvent, value string) int64 {
	if c := b.counters[e].Get(value); c != nil {
		return c.Load()
	}
	return 0
}

func (b *ParamMapBucket) reset() {
	for i := range b.counters {
		b.counters[i].Reset()
	}
}

type paramBucketGen struct{}

func (paramBucketGen) NewEmptyBucket(int64) *ParamMapBucket { return newParamMapBucket() }

func (paramBucketGen) ResetBucket(w *window.WindowWrap[ParamMapBucket], startMs int64) {
	w.Value().reset()
	w.SetWindowStart(startMs)
}

// HotParameterLeapArray is a sliding window whose buckets hold per-value
// counters, giving pass/block rates per hot parameter value.
type HotParameterLeapArray struct {
	clk clock.Clock
	la  *window.LeapArray[ParamMapBucket]
}

func NewHotParameterLeapArray(clk clock.Clock, sampleCount int, intervalMs int64) (*HotParameterLeapArray, error) {
	la, err := window.NewLeapArray[ParamMapBucket](sampleCount, intervalMs, paramBucketGen{})
	if err != nil {
		return nil, err
	}
	return &HotParameterLeapArray{clk: clk, la: la}, nil
}

func (h *HotParameterLeapArray) Add(e ParamEvent, value string, n int64) {
	if w := h.la.CurrentWindow(h.clk.CurrentTimeMillis()); w != nil {
		w.Value().Add(e, value, n)
	}
}

// Sum totals a value's counter across valid buckets.
func (h *HotParameterLeapArray) Sum(e ParamEvent, value string) int64 {
	now := h.clk.CurrentTimeMillis()
	h.la.CurrentWindow(now)
	var total int64
	for _, w := range h.la.Values(now) {
		total += w.Value().Get(e, value)
	}
	return total
}

// Qps normalizes a value's pass total to events per second.
func (h *HotParameterLeapArray) Qps(e ParamEvent, value string) float64 {
	return float64(h.Sum(e, value)) / (float64(h.la.IntervalMs()) / 1000.0)
}

// TopValue is one entry of a top-k scan.
type TopValue struct {
	Value string
	Count int64
}

// TopValues merges per-bucket counters over valid buckets and returns the k
// highest by count.
func (h *HotParameterLeapArray) TopValues(e ParamEvent, k int) []TopValue {
	if k <= 0 {
		return nil
	}
	now := h.clk.CurrentTimeMillis()
	h.la.CurrentWindow(now)
	merged := make(map[string]int64)
	for _, w := range h.la.Values(now) {
		w.Value().counters[e].Range(func(key string, val int64) {
			merged[key] += val
		})
	}
	out := make([]TopValue, 0, len(merged))
	for v, c := range merged {
		out = append(out, TopValue{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
