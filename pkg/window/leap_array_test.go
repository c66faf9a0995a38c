package window

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArray(t *testing.T) *BucketLeapArray {
	t.Helper()
	la, err := NewBucketLeapArray(2, 1000)
	require.NoError(t, err)
	return la
}

func TestLeapArray_InvalidLayout(t *testing.T) {
	_, err := NewBucketLeapArray(0, 1000)
	assert.Error(t, err)
	_, err = NewBucketLeapArray(3, 1000) // 1000 % 3 != 0
	assert.Error(t, err)
}

func TestLeapArray_CurrentWindowAlignment(t *testing.T) {
	la := newTestArray(t)

	w := la.CurrentWindow(1234)
	require.NotNil(t, w)
	assert.Equal(t, int64(1000), w.WindowStart())

	// Same window on a later tick inside the same bucket.
	w2 := la.CurrentWindow(1499)
	assert.Same(t, w, w2)

	w3 := la.CurrentWindow(1500)
	assert.Equal(t, int64(1500), w3.WindowStart())
	assert.NotSame(t, w, w3)
}

func TestLeapArray_LazyResetOnWrap(t *testing.T) {
	la := newTestArray(t)

	w := la.CurrentWindow(1000)
	w.Value().AddPass(7)

	// One full interval later the same slot is reused and must be zeroed.
	w2 := la.CurrentWindow(2000)
	assert.Same(t, w, w2)
	assert.Equal(t, int64(2000), w2.WindowStart())
	assert.Equal(t, int64(0), w2.Value().Pass())
}

func TestLeapArray_ClockBackwardsReturnsDetachedBucket(t *testing.T) {
	la := newTestArray(t)

	w := la.CurrentWindow(5500)
	w.Value().AddPass(3)

	old := la.CurrentWindow(4000)
	require.NotNil(t, old)
	assert.Equal(t, int64(4000), old.WindowStart())
	assert.Equal(t, int64(0), old.Value().Pass())

	// The published ring is untouched.
	assert.Equal(t, int64(5500), la.CurrentWindow(5500).WindowStart())
	assert.Equal(t, int64(3), la.CurrentWindow(5500).Value().Pass())
}

func TestLeapArray_ValuesOnlyCoverInterval(t *testing.T) {
	la := newTestArray(t)

	la.CurrentWindow(1000).Value().AddPass(1)
	la.CurrentWindow(1500).Value().AddPass(2)

	vals := la.Values(1600)
	assert.Len(t, vals, 2)

	// Move past the interval: the first bucket is now deprecated.
	vals = la.Values(2100)
	require.Len(t, vals, 1)
	assert.Equal(t, int64(1500), vals[0].WindowStart())
}

func TestLeapArray_GetWindowPassSemantics(t *testing.T) {
	la := newTestArray(t)
	la.CurrentWindow(1000).Value().AddPass(4)

	w := la.GetWindow(1200)
	require.NotNil(t, w)
	assert.Equal(t, int64(4), w.Value().Pass())

	// A leapt-over window yields nil.
	la.CurrentWindow(2000)
	assert.Nil(t, la.GetWindow(1000))
}

func TestLeapArray_ConcurrentResetKeepsCountersConsistent(t *testing.T) {
	la := newTestArray(t)
	la.CurrentWindow(1000).Value().AddPass(100)

	const workers = 16
	const addsPerWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < addsPerWorker; j++ {
				// All workers race to roll the stale bucket at t=2000 and
				// then write into it.
				la.CurrentWindow(2000).Value().AddPass(1)
			}
		}()
	}
	wg.Wait()

	w := la.CurrentWindow(2000)
	assert.Equal(t, int64(2000), w.WindowStart())
	// Exactly one reset happened: every post-claim add is preserved and the
	// stale 100 passes are gone.
	assert.Equal(t, int64(workers*addsPerWorker), w.Value().Pass())
}

func TestMetricBucket_MinRt(t *testing.T) {
	b := NewMetricBucket()
	assert.Equal(t, int64(0), b.MinRt())

	b.AddRt(42)
	b.AddRt(17)
	b.AddRt(99)
	assert.Equal(t, int64(17), b.MinRt())
	assert.Equal(t, int64(42+17+99), b.Rt())

	b.Reset()
	assert.Equal(t, int64(0), b.MinRt())
}
