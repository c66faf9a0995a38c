package window

import (
	"sort"

	"github.com/Borislavv/traffic-governor/pkg/clock"
)

// ArrayMetric is the read/write aggregation layer over a bucket ring. One
// instance backs the fast (1s) metric of a statistic node, another the slow
// (60s) one; only the fast metric carries the future-borrow ledger.
type ArrayMetric struct {
	clk  clock.Clock
	data *LeapArray[MetricBucket]
	occ  *OccupiableBucketLeapArray
}

func NewArrayMetric(clk clock.Clock, sampleCount int, intervalMs int64, enableOccupy bool) (*ArrayMetric, error) {
	if enableOccupy {
		oa, err := NewOccupiableBucketLeapArray(sampleCount, intervalMs)
		if err != nil {
			return nil, err
		}
		return &ArrayMetric{clk: clk, data: oa.LeapArray, occ: oa}, nil
	}
	ba, err := NewBucketLeapArray(sampleCount, intervalMs)
	if err != nil {
		return nil, err
	}
	return &ArrayMetric{clk: clk, data: ba.LeapArray}, nil
}

func (m *ArrayMetric) now() int64 { return m.clk.CurrentTimeMillis() }

func (m *ArrayMetric) current() *MetricBucket {
	w := m.data.CurrentWindow(m.now())
	if w == nil {
		return NewMetricBucket()
	}
	return w.Value()
}

func (m *ArrayMetric) AddPass(n int64)         { m.current().AddPass(n) }
func (m *ArrayMetric) AddBlock(n int64)        { m.current().AddBlock(n) }
func (m *ArrayMetric) AddException(n int64)    { m.current().AddException(n) }
func (m *ArrayMetric) AddSuccess(n int64)      { m.current().AddSuccess(n) }
func (m *ArrayMetric) AddRt(rt int64)          { m.current().AddRt(rt) }
func (m *ArrayMetric) AddOccupiedPass(n int64) { m.current().AddOccupiedPass(n) }

func (m *ArrayMetric) sum(e MetricEvent) int64 {
	now := m.now()
	m.data.CurrentWindow(now) // roll forward so the scan sees fresh starts
	var total int64
	for _, w := range m.data.Values(now) {
		total += w.Value().Get(e)
	}
	return total
}

func (m *ArrayMetric) Pass() int64         { return m.sum(EventPass) }
func (m *ArrayMetric) Block() int64        { return m.sum(EventBlock) }
func (m *ArrayMetric) Exception() int64    { return m.sum(EventException) }
func (m *ArrayMetric) Success() int64      { return m.sum(EventSuccess) }
func (m *ArrayMetric) Rt() int64           { return m.sum(EventRt) }
func (m *ArrayMetric) OccupiedPass() int64 { return m.sum(EventOccupiedPass) }

// MaxSuccess returns the busiest valid bucket's success count.
func (m *ArrayMetric) MaxSuccess() int64 {
	now := m.now()
	m.data.CurrentWindow(now)
	var max int64
	for _, w := range m.data.Values(now) {
		if s := w.Value().Success(); s > max {
			max = s
		}
	}
	return max
}

// MinRt returns the smallest per-bucket minimum over valid buckets, 0 when
// nothing succeeded yet.
func (m *ArrayMetric) MinRt() int64 {
	now := m.now()
	m.data.CurrentWindow(now)
	var min int64
	for _, w := range m.data.Values(now) {
		v := w.Value().MinRt()
		if v == 0 {
			continue
		}
		if min == 0 || v < min {
			min = v
		}
	}
	return min
}

func (m *ArrayMetric) WindowIntervalInSec() float64 {
	return float64(m.data.IntervalMs()) / 1000.0
}

func (m *ArrayMetric) SampleCount() int64 { return m.data.SampleCount() }

// GetWindowPass returns the pass count of the bucket aligned at timeMs, 0
// when that window has been leapt over.
func (m *ArrayMetric) GetWindowPass(timeMs int64) int64 {
	w := m.data.GetWindow(timeMs)
	if w == nil {
		return 0
	}
	return w.Value().Pass()
}

// previousWindow returns the bucket right before the current one, nil when
// it is gone already.
func (m *ArrayMetric) previousWindow() *MetricBucket {
	w := m.data.GetWindow(m.now() - m.data.WindowLengthMs())
	if w == nil {
		return nil
	}
	return w.Value()
}

func (m *ArrayMetric) PreviousWindowPass() int64 {
	if b := m.previousWindow(); b != nil {
		return b.Pass()
	}
	return 0
}

func (m *ArrayMetric) PreviousWindowBlock() int64 {
	if b := m.previousWindow(); b != nil {
		return b.Block()
	}
	return 0
}

// Waiting reports permits already borrowed from future windows.
func (m *ArrayMetric) Waiting() int64 {
	if m.occ == nil {
		return 0
	}
	return m.occ.CurrentWaiting(m.now())
}

// AddWaiting books n permits against the future window containing futureTimeMs.
func (m *ArrayMetric) AddWaiting(futureTimeMs int64, n int64) {
	if m.occ != nil {
		m.occ.AddWaiting(futureTimeMs, n)
	}
}

// MetricItem is one bucket's snapshot, consumed by the metric log writer.
type MetricItem struct {
	Timestamp    int64
	Pass         int64
	Block        int64
	Success      int64
	Exception    int64
	Rt           int64
	OccupiedPass int64
}

// Details snapshots every valid bucket ordered by window start.
func (m *ArrayMetric) Details() []MetricItem {
	now := m.now()
	m.data.CurrentWindow(now)
	wraps := m.data.Values(now)
	items := make([]MetricItem, 0, len(wraps))
	for _, w := range wraps {
		b := w.Value()
		items = append(items, MetricItem{
			Timestamp:    w.WindowStart(),
			Pass:         b.Pass(),
			Block:        b.Block(),
			Success:      b.Success(),
			Exception:    b.Exception(),
			Rt:           b.Rt(),
			OccupiedPass: b.OccupiedPass(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp < items[j].Timestamp })
	return items
}
