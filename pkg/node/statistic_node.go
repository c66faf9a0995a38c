package node

import (
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/Borislavv/traffic-governor/pkg/window"
	"github.com/rs/zerolog/log"
)

var occupyTimeoutMs atomic.Int64

func init() { occupyTimeoutMs.Store(config.DefaultOccupyTimeoutMs) }

// SetOccupyTimeoutMs bounds how far ahead prioritized requests may borrow.
func SetOccupyTimeoutMs(ms int64) {
	if ms > 0 {
		occupyTimeoutMs.Store(ms)
	}
}

func OccupyTimeoutMs() int64 { return occupyTimeoutMs.Load() }

// StatisticNode holds the two rolling metrics of one counter holder: a fast
// 1s window split into sampleCount buckets for admission decisions, and a
// 60s window with one bucket per second for totals and the metric log.
type StatisticNode struct {
	clk clock.Clock

	rollingCounterInSecond atomic.Pointer[window.ArrayMetric]
	rollingCounterInMinute atomic.Pointer[window.ArrayMetric]

	curThreadNum atomic.Int64

	sampleCount int
	intervalMs  int64
}

func NewStatisticNode(clk clock.Clock, sampleCount int, intervalMs int64) *StatisticNode {
	if clk == nil {
		clk = clock.Default()
	}
	second, err := window.NewArrayMetric(clk, sampleCount, intervalMs, true)
	if err != nil {
		log.Error().Err(err).Msg("[node] invalid second metric layout, falling back to defaults")
		sampleCount, intervalMs = config.DefaultSampleCount, config.DefaultIntervalMs
		second, _ = window.NewArrayMetric(clk, sampleCount, intervalMs, true)
	}
	minute, _ := window.NewArrayMetric(clk, config.DefaultMinuteSampleCount, config.DefaultMinuteIntervalMs, false)
	n := &StatisticNode{clk: clk, sampleCount: sampleCount, intervalMs: intervalMs}
	n.rollingCounterInSecond.Store(second)
	n.rollingCounterInMinute.Store(minute)
	return n
}

func (n *StatisticNode) second() *window.ArrayMetric { return n.rollingCounterInSecond.Load() }
func (n *StatisticNode) minute() *window.ArrayMetric { return n.rollingCounterInMinute.Load() }

func (n *StatisticNode) PassQps() float64 {
	return float64(n.second().Pass()) / n.second().WindowIntervalInSec()
}

func (n *StatisticNode) BlockQps() float64 {
	return float64(n.second().Block()) / n.second().WindowIntervalInSec()
}

func (n *StatisticNode) TotalQps() float64 { return n.PassQps() + n.BlockQps() }

func (n *StatisticNode) SuccessQps() float64 {
	return float64(n.second().Success()) / n.second().WindowIntervalInSec()
}

func (n *StatisticNode) ExceptionQps() float64 {
	return float64(n.second().Exception()) / n.second().WindowIntervalInSec()
}

func (n *StatisticNode) OccupiedPassQps() float64 {
	return float64(n.second().OccupiedPass()) / n.second().WindowIntervalInSec()
}

// MaxSuccessQps extrapolates the busiest bucket to a full second.
func (n *StatisticNode) MaxSuccessQps() float64 {
	return float64(n.second().MaxSuccess() * n.second().SampleCount())
}

func (n *StatisticNode) AvgRt() float64 {
	success := n.second().Success()
	if success == 0 {
		return 0
	}
	return float64(n.second().Rt()) / float64(success)
}

func (n *StatisticNode) MinRt() float64 { return float64(n.second().MinRt()) }

func (n *StatisticNode) CurThreadNum() int64 { return n.curThreadNum.Load() }

func (n *StatisticNode) PreviousPassQps() float64 {
	return float64(n.minute().PreviousWindowPass())
}

func (n *StatisticNode) PreviousBlockQps() float64 {
	return float64(n.minute().PreviousWindowBlock())
}

func (n *StatisticNode) TotalPass() int64    { return n.minute().Pass() }
func (n *StatisticNode) TotalBlock() int64   { return n.minute().Block() }
func (n *StatisticNode) TotalRequest() int64 { return n.TotalPass() + n.TotalBlock() }
func (n *StatisticNode) TotalSuccess() int64 { return n.minute().Success() }
func (n *StatisticNode) TotalException() int64 {
	return n.minute().Exception()
}

func (n *StatisticNode) AddPassRequest(count int64) {
	n.second().AddPass(count)
	n.minute().AddPass(count)
}

func (n *StatisticNode) AddRtAndSuccess(rtMs int64, count int64) {
	n.second().AddSuccess(count)
	n.second().AddRt(rtMs)
	n.minute().AddSuccess(count)
	n.minute().AddRt(rtMs)
}

func (n *StatisticNode) IncreaseBlockQps(count int64) {
	n.second().AddBlock(count)
	n.minute().AddBlock(count)
}

func (n *StatisticNode) IncreaseExceptionQps(count int64) {
	n.second().AddException(count)
	n.minute().AddException(count)
}

func (n *StatisticNode) IncreaseThreadNum() { n.curThreadNum.Add(1) }
func (n *StatisticNode) DecreaseThreadNum() { n.curThreadNum.Add(-1) }

// TryOccupyNext walks the upcoming windows looking for the first one whose
// occupancy, together with everything already borrowed, stays under the
// threshold. It returns the wait in ms until that window, or the occupy
// timeout when nothing frees up in time.
func (n *StatisticNode) TryOccupyNext(currentTimeMs int64, acquireCount int64, threshold float64) int64 {
	timeout := OccupyTimeoutMs()
	maxCount := threshold * float64(n.intervalMs) / 1000.0
	currentBorrow := n.second().Waiting()
	if float64(currentBorrow) >= maxCount {
		return timeout
	}

	windowLength := n.intervalMs / int64(n.sampleCount)
	earliestTime := currentTimeMs - currentTimeMs%windowLength + windowLength - n.intervalMs

	currentPass := n.second().Pass()
	for idx := int64(0); earliestTime < currentTimeMs; idx++ {
		waitInMs := idx*windowLength + windowLength - currentTimeMs%windowLength
		if waitInMs >= timeout {
			break
		}
		windowPass := n.second().GetWindowPass(earliestTime)
		if float64(currentPass+currentBorrow+acquireCount)-float64(windowPass) <= maxCount {
			return waitInMs
		}
		earliestTime += windowLength
		currentPass -= windowPass
	}
	return timeout
}

func (n *StatisticNode) Waiting() int64 { return n.second().Waiting() }

func (n *StatisticNode) AddWaitingRequest(futureTimeMs int64, acquireCount int64) {
	n.second().AddWaiting(futureTimeMs, acquireCount)
}

// AddOccupiedPass books borrowed permits into the minute totals; the second
// window picks them up when real time reaches the borrowed bucket.
func (n *StatisticNode) AddOccupiedPass(acquireCount int64) {
	n.minute().AddOccupiedPass(acquireCount)
	n.minute().AddPass(acquireCount)
}

// Reset swaps in fresh metrics; thread count is live state and survives.
func (n *StatisticNode) Reset() {
	second, _ := window.NewArrayMetric(n.clk, n.sampleCount, n.intervalMs, true)
	minute, _ := window.NewArrayMetric(n.clk, config.DefaultMinuteSampleCount, config.DefaultMinuteIntervalMs, false)
	n.rollingCounterInSecond.Store(second)
	n.rollingCounterInMinute.Store(minute)
}

// MinuteDetails exposes the 60s window's per-second buckets for the metric
// log writer.
func (n *StatisticNode) MinuteDetails() []window.MetricItem {
	return n.minute().Details()
}
