package flow

import (
	"testing"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultController_QpsThreshold(t *testing.T) {
	clk := clock.NewMock(10_000)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newDefaultController(clk, 2, QPS)

	ok, _ := c.CanPass(n, 1, false)
	assert.True(t, ok)
	n.AddPassRequest(1)

	ok, _ = c.CanPass(n, 1, false)
	assert.True(t, ok)
	n.AddPassRequest(1)

	ok, _ = c.CanPass(n, 1, false)
	assert.False(t, ok)
}

func TestDefaultController_ThreadGrade(t *testing.T) {
	clk := clock.NewMock(10_000)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newDefaultController(clk, 2, Concurrency)

	n.IncreaseThreadNum()
	n.IncreaseThreadNum()
	ok, _ := c.CanPass(n, 1, false)
	assert.False(t, ok)

	n.DecreaseThreadNum()
	ok, _ = c.CanPass(n, 1, false)
	assert.True(t, ok)
}

func TestDefaultController_PrioritizedBorrowsAndSleeps(t *testing.T) {
	clk := clock.NewMock(9_750)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newDefaultController(clk, 10, QPS)

	// Saturate the oldest bucket so the nearest leap frees capacity.
	n.AddPassRequest(10)
	clk.Set(10_250)

	ok, waitMs := c.CanPass(n, 1, true)
	require.True(t, ok)
	assert.Equal(t, int64(250), waitMs)
	// The caller really slept for the wait.
	assert.Equal(t, int64(10_500), clk.CurrentTimeMillis())
	// The borrowed pass is booked into the minute totals on top of the 10
	// earlier passes.
	assert.Equal(t, int64(11), n.TotalPass())
}

func TestDefaultController_NonPrioritizedRejects(t *testing.T) {
	clk := clock.NewMock(10_250)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newDefaultController(clk, 10, QPS)

	n.AddPassRequest(10)
	ok, waitMs := c.CanPass(n, 1, false)
	assert.False(t, ok)
	assert.Zero(t, waitMs)
}

func TestRateLimiter_Degenerate(t *testing.T) {
	clk := clock.NewMock(10_000)

	c := newRateLimiterController(clk, 0, 400)
	ok, _ := c.CanPass(nil, 1, false)
	assert.False(t, ok, "non-positive rate rejects")

	ok, _ = c.CanPass(nil, 0, false)
	assert.True(t, ok, "non-positive acquire passes")
}

func TestRateLimiter_BurstQueuesThenRejects(t *testing.T) {
	// Freeze sleeping: all callers observe the burst instant, as a real
	// concurrent burst would.
	clk := clock.NewMock(100_000)
	clk.FreezeSleep = true
	c := newRateLimiterController(clk, 5, 400) // 200ms per permit

	admitted := 0
	for i := 0; i < 10; i++ {
		if ok, _ := c.CanPass(nil, 1, false); ok {
			admitted++
		}
	}
	// Head of the burst passes immediately, then one at ~200ms and one at
	// ~400ms fit the queue; everything else exceeds maxQueueingTimeMs.
	assert.Equal(t, 3, admitted)
}

func TestRateLimiter_SteadyPacingConvergesToRate(t *testing.T) {
	clk := clock.NewMock(100_000)
	c := newRateLimiterController(clk, 5, 10_000)

	start := clk.CurrentTimeMillis()
	admitted := 0
	for i := 0; i < 20; i++ {
		ok, _ := c.CanPass(nil, 1, false)
		require.True(t, ok)
		admitted++
	}
	elapsed := clk.CurrentTimeMillis() - start
	// 20 permits at 5/s: the queue walks ~200ms per permit.
	assert.GreaterOrEqual(t, elapsed, int64(19*200))
	assert.LessOrEqual(t, int64(admitted), elapsed/200+2)
}

func TestRateLimiter_HeadBurstAfterIdle(t *testing.T) {
	clk := clock.NewMock(100_000)
	c := newRateLimiterController(clk, 5, 400)

	ok, _ := c.CanPass(nil, 1, false)
	require.True(t, ok)

	// A long lull resets the pacing baseline: the next request is admitted
	// instantly instead of being spaced.
	clk.Advance(10 * time.Second)
	before := clk.CurrentTimeMillis()
	ok, _ = c.CanPass(nil, 1, false)
	require.True(t, ok)
	assert.Equal(t, before, clk.CurrentTimeMillis())
}

func TestWarmUp_ColdStartLimitsToFractionOfCount(t *testing.T) {
	clk := clock.NewMock(1_000_000)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newWarmUpController(clk, 90, 10, 3)

	// First sync fills the bucket to maxToken: fully cold, the allowed rate
	// is roughly count/coldFactor.
	ok, _ := c.CanPass(n, 1, false)
	assert.True(t, ok)
	allowed := c.currentAllowedQps()
	assert.InDelta(t, 30.0, allowed, 3.0)
}

func TestWarmUp_WarmSteadyStateAllowsFullCount(t *testing.T) {
	clk := clock.NewMock(1_000_000)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newWarmUpController(clk, 90, 10, 3)

	// Force the warmed-up state directly: a drained bucket means the
	// resource has sustained traffic for the whole warm-up period.
	c.CanPass(n, 1, false)
	c.storedTokens.Store(0)
	assert.InDelta(t, 90.0, c.currentAllowedQps(), 0.001)

	// Below the full count the request passes.
	ok, _ := c.CanPass(n, 50, false)
	assert.True(t, ok)
	// Above it, it does not.
	ok, _ = c.CanPass(n, 91, false)
	assert.False(t, ok)
}

func TestWarmUpRateLimiter_PacesAtWarmedRate(t *testing.T) {
	clk := clock.NewMock(1_000_000)
	n := node.NewStatisticNode(clk, 2, 1000)
	c := newWarmUpRateLimiterController(clk, 100, 10, 3, 5_000)

	c.syncToken(0)
	c.storedTokens.Store(0) // warmed up: pace at the full rate (10ms/permit)

	start := clk.CurrentTimeMillis()
	for i := 0; i < 10; i++ {
		ok, _ := c.CanPass(n, 1, false)
		require.True(t, ok)
	}
	assert.GreaterOrEqual(t, clk.CurrentTimeMillis()-start, int64(9*10))
}
