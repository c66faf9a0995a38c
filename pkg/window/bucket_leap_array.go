package window

// metricBucketGen is the plain generator for MetricBucket rings.
type metricBucketGen struct{}

func (metricBucketGen) NewEmptyBucket(int64) *MetricBucket { return NewMetricBucket() }

func (metricBucketGen) ResetBucket(w *WindowWrap[MetricBucket], startMs int64) {
	w.Value().Reset()
	w.windowStartMs.Store(startMs)
}

// BucketLeapArray is the standard sliding window of MetricBuckets.
type BucketLeapArray struct {
	*LeapArray[MetricBucket]
}

func NewBucketLeapArray(sampleCount int, intervalMs int64) (*BucketLeapArray, error) {
	la, err := NewLeapArray[MetricBucket](sampleCount, intervalMs, metricBucketGen{})
	if err != nil {
		return nil, err
	}
	return &BucketLeapArray{LeapArray: la}, nil
}

// FutureBucketLeapArray stores capacity borrowed from windows that have not
// arrived yet. A bucket here is valid only while its start lies strictly in
// the future; once real time reaches it, the occupiable array absorbs it.
type FutureBucketLeapArray struct {
	*LeapArray[MetricBucket]
}

func NewFutureBucketLeapArray(sampleCount int, intervalMs int64) (*FutureBucketLeapArray, error) {
	la, err := NewLeapArray[MetricBucket](sampleCount, intervalMs, metricBucketGen{})
	if err != nil {
		return nil, err
	}
	return &FutureBucketLeapArray{LeapArray: la}, nil
}

// CurrentWaiting sums pass counters of buckets still ahead of nowMs.
func (fa *FutureBucketLeapArray) CurrentWaiting(nowMs int64) int64 {
	var total int64
	for i := range fa.array {
		w := fa.array[i].Load()
		if w == nil || fa.isWindowDeprecated(nowMs, w) || w.WindowStart() <= nowMs {
			continue
		}
		total += w.Value().Pass()
	}
	return total
}

// AddWaiting records n borrowed permits against the window containing
// futureTimeMs.
func (fa *FutureBucketLeapArray) AddWaiting(futureTimeMs int64, n int64) {
	if w := fa.CurrentWindow(futureTimeMs); w != nil {
		w.Value().AddPass(n)
	}
}

// occupiableBucketGen preloads a freshly rolled bucket with the pass count
// previously borrowed for its window.
type occupiableBucketGen struct {
	borrow *FutureBucketLeapArray
}

func (g occupiableBucketGen) NewEmptyBucket(startMs int64) *MetricBucket {
	b := NewMetricBucket()
	g.preload(b, startMs)
	return b
}

func (g occupiableBucketGen) ResetBucket(w *WindowWrap[MetricBucket], startMs int64) {
	w.Value().Reset()
	g.preload(w.Value(), startMs)
	w.windowStartMs.Store(startMs)
}

func (g occupiableBucketGen) preload(b *MetricBucket, startMs int64) {
	if borrowed := g.borrow.GetWindow(startMs); borrowed != nil {
		b.AddPass(borrowed.Value().Pass())
	}
}

// OccupiableBucketLeapArray is a BucketLeapArray paired with a future-borrow
// ledger, backing the prioritized "occupy next window" admission.
type OccupiableBucketLeapArray struct {
	*LeapArray[MetricBucket]
	borrow *FutureBucketLeapArray
}

func NewOccupiableBucketLeapArray(sampleCount int, intervalMs int64) (*OccupiableBucketLeapArray, error) {
	borrow, err := NewFutureBucketLeapArray(sampleCount, intervalMs)
	if err != nil {
		return nil, err
	}
	la, err := NewLeapArray[MetricBucket](sampleCount, intervalMs, occupiableBucketGen{borrow: borrow})
	if err != nil {
		return nil, err
	}
	return &OccupiableBucketLeapArray{LeapArray: la, borrow: borrow}, nil
}

func (oa *OccupiableBucketLeapArray) CurrentWaiting(nowMs int64) int64 {
	return oa.borrow.CurrentWaiting(nowMs)
}

func (oa *OccupiableBucketLeapArray) AddWaiting(futureTimeMs int64, n int64) {
	oa.borrow.AddWaiting(futureTimeMs, n)
}
