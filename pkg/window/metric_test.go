package window

import (
	"testing"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetric(t *testing.T, clk clock.Clock, occupy bool) *ArrayMetric {
	t.Helper()
	m, err := NewArrayMetric(clk, 2, 1000, occupy)
	require.NoError(t, err)
	return m
}

func TestArrayMetric_SumsAndQpsWindow(t *testing.T) {
	clk := clock.NewMock(10_000)
	m := newTestMetric(t, clk, false)

	m.AddPass(3)
	m.AddBlock(1)
	clk.Advance(500 * time.Millisecond)
	m.AddPass(2)
	m.AddSuccess(2)
	m.AddRt(40)

	assert.Equal(t, int64(5), m.Pass())
	assert.Equal(t, int64(1), m.Block())
	assert.Equal(t, int64(2), m.Success())
	assert.Equal(t, int64(40), m.Rt())
	assert.Equal(t, 1.0, m.WindowIntervalInSec())
}

func TestArrayMetric_OldBucketsExpire(t *testing.T) {
	clk := clock.NewMock(10_000)
	m := newTestMetric(t, clk, false)

	m.AddPass(9)
	clk.Advance(2 * time.Second)
	assert.Equal(t, int64(0), m.Pass())
}

func TestArrayMetric_MaxSuccessAndMinRt(t *testing.T) {
	clk := clock.NewMock(10_000)
	m := newTestMetric(t, clk, false)

	m.AddSuccess(3)
	m.AddRt(70)
	clk.Advance(500 * time.Millisecond)
	m.AddSuccess(8)
	m.AddRt(20)

	assert.Equal(t, int64(8), m.MaxSuccess())
	assert.Equal(t, int64(20), m.MinRt())
}

func TestArrayMetric_PreviousWindowPass(t *testing.T) {
	clk := clock.NewMock(60_000)
	m, err := NewArrayMetric(clk, 60, 60_000, false)
	require.NoError(t, err)

	m.AddPass(6)
	clk.Advance(time.Second)
	assert.Equal(t, int64(6), m.PreviousWindowPass())

	clk.Advance(time.Second)
	assert.Equal(t, int64(0), m.PreviousWindowPass())
}

func TestArrayMetric_BorrowedCapacityLandsInFutureBucket(t *testing.T) {
	clk := clock.NewMock(10_200)
	m := newTestMetric(t, clk, true)

	// Borrow 2 permits from the window starting at 10_500.
	m.AddWaiting(10_500, 2)
	assert.Equal(t, int64(2), m.Waiting())

	// Before real time reaches the bucket the pass sum is untouched.
	assert.Equal(t, int64(0), m.Pass())

	// Once the clock enters the borrowed window, the occupiable array
	// preloads the reserved passes on the roll-over.
	clk.Set(10_600)
	assert.Equal(t, int64(2), m.Pass())
	assert.Equal(t, int64(2), m.GetWindowPass(10_500))
	// And nothing is waiting anymore: the window start is in the past.
	assert.Equal(t, int64(0), m.Waiting())
}

func TestArrayMetric_DetailsOrdered(t *testing.T) {
	clk := clock.NewMock(10_000)
	m := newTestMetric(t, clk, false)

	m.AddPass(1)
	clk.Advance(500 * time.Millisecond)
	m.AddPass(2)

	items := m.Details()
	require.Len(t, items, 2)
	assert.Less(t, items[0].Timestamp, items[1].Timestamp)
	assert.Equal(t, int64(1), items[0].Pass)
	assert.Equal(t, int64(2), items[1].Pass)
}
