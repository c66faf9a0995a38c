package hotparam

import (
	"sync"
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
)

// threadCacheCapacity bounds distinct values tracked per argument slot for
// concurrency counting.
const threadCacheCapacity = 4000

// ParameterMetric is the per-resource hot-parameter state: one rolling
// pass/block window per argument slot, plus admission-managed caches for
// live concurrency and throttling timestamps. Evicted values silently lose
// their statistics.
type ParameterMetric struct {
	clk         clock.Clock
	sampleCount int
	intervalMs  int64

	mu       sync.Mutex
	rollings map[int]*HotParameterLeapArray
	threads  map[int]*ristretto.Cache
	times    map[int]*ristretto.Cache
}

func NewParameterMetric(clk clock.Clock, sampleCount int, intervalMs int64) *ParameterMetric {
	return &ParameterMetric{
		clk:         clk,
		sampleCount: sampleCount,
		intervalMs:  intervalMs,
		rollings:    make(map[int]*HotParameterLeapArray),
		threads:     make(map[int]*ristretto.Cache),
		times:       make(map[int]*ristretto.Cache),
	}
}

// InitIndex prepares the counters of one argument slot; called at rule load.
func (m *ParameterMetric) InitIndex(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rollings[idx]; ok {
		return
	}
	rolling, err := NewHotParameterLeapArray(m.clk, m.sampleCount, m.intervalMs)
	if err != nil {
		log.Error().Err(err).Int("idx", idx).Msg("[hotparam] failed to init rolling window")
		return
	}
	m.rollings[idx] = rolling
	m.threads[idx] = newValueCache()
	m.times[idx] = newValueCache()
}

func newValueCache() *ristretto.Cache {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: threadCacheCapacity * 10,
		MaxCost:     threadCacheCapacity,
		BufferItems: 64,
	})
	if err != nil {
		log.Error().Err(err).Msg("[hotparam] failed to build value cache")
		return nil
	}
	return c
}

func (m *ParameterMetric) rolling(idx int) *HotParameterLeapArray {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollings[idx]
}

func (m *ParameterMetric) cache(caches map[int]*ristretto.Cache, idx int) *ristretto.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return caches[idx]
}

func (m *ParameterMetric) AddPass(idx int, value string, n int64) {
	if r := m.rolling(idx); r != nil {
		r.Add(ParamEventPass, value, n)
	}
}

func (m *ParameterMetric) AddBlock(idx int, value string, n int64) {
	if r := m.rolling(idx); r != nil {
		r.Add(ParamEventBlock, value, n)
	}
}

// PassParamQps is the per-second pass rate of one value at one slot.
func (m *ParameterMetric) PassParamQps(idx int, value string) float64 {
	r := m.rolling(idx)
	if r == nil {
		return 0
	}
	return r.Qps(ParamEventPass, value)
}

func counterFromCache(c *ristretto.Cache, value string) *atomic.Int64 {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(value); ok {
		if cnt, ok := v.(*atomic.Int64); ok {
			return cnt
		}
	}
	cnt := &atomic.Int64{}
	// Admission may reject the insert; the value's statistics are then lost,
	// which is the documented contract of the bounded cache.
	if !c.Set(value, cnt, 1) {
		return cnt
	}
	c.Wait()
	if v, ok := c.Get(value); ok {
		if existing, ok := v.(*atomic.Int64); ok {
			return existing
		}
	}
	return cnt
}

func (m *ParameterMetric) ThreadCount(idx int, value string) int64 {
	c := m.cache(m.threads, idx)
	if c == nil {
		return 0
	}
	if v, ok := c.Get(value); ok {
		if cnt, ok := v.(*atomic.Int64); ok {
			return cnt.Load()
		}
	}
	return 0
}

func (m *ParameterMetric) AddThreadCount(idx int, value string) {
	if cnt := counterFromCache(m.cache(m.threads, idx), value); cnt != nil {
		cnt.Add(1)
	}
}

func (m *ParameterMetric) DecreaseThreadCount(idx int, value string) {
	c := m.cache(m.threads, idx)
	if c == nil {
		return
	}
	if v, ok := c.Get(value); ok {
		if cnt, ok := v.(*atomic.Int64); ok {
			cnt.Add(-1)
		}
	}
}

// lastScheduledTime returns the pacing timestamp cell of one value, used by
// the throttling behavior.
func (m *ParameterMetric) lastScheduledTime(idx int, value string) *atomic.Int64 {
	return counterFromCache(m.cache(m.times, idx), value)
}

// TopValues returns the k most frequent passed values at one slot.
func (m *ParameterMetric) TopValues(idx, k int) []TopValue {
	r := m.rolling(idx)
	if r == nil {
		return nil
	}
	return r.TopValues(ParamEventPass, k)
}
