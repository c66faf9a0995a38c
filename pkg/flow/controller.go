package flow

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/Borislavv/traffic-governor/pkg/node"
)

// TrafficShapingController decides one rule's admission against a node.
// waitMs > 0 with ok=true reports a prioritized admission the caller already
// slept for.
type TrafficShapingController interface {
	CanPass(n core.StatNode, acquireCount int64, prioritized bool) (ok bool, waitMs int64)
}

// NewController builds the controller matching the rule's control behavior.
func NewController(rule *Rule, clk clock.Clock) TrafficShapingController {
	if clk == nil {
		clk = clock.Default()
	}
	switch rule.ControlBehavior {
	case RateLimit:
		return newRateLimiterController(clk, rule.Count, rule.MaxQueueingTimeMs)
	case WarmUp:
		return newWarmUpController(clk, rule.Count, rule.WarmUpPeriodSec, config.DefaultColdFactor)
	case WarmUpRateLimit:
		return newWarmUpRateLimiterController(clk, rule.Count, rule.WarmUpPeriodSec, config.DefaultColdFactor, rule.MaxQueueingTimeMs)
	default:
		return newDefaultController(clk, rule.Count, rule.Grade)
	}
}

// defaultController rejects at the threshold, with the one exception of
// prioritized QPS requests which may borrow a future window's capacity and
// sleep until it arrives.
type defaultController struct {
	clk   clock.Clock
	count float64
	grade MetricType
}

func newDefaultController(clk clock.Clock, count float64, grade MetricType) *defaultController {
	return &defaultController{clk: clk, count: count, grade: grade}
}

func (c *defaultController) avgUsedTokens(n core.StatNode) float64 {
	if n == nil {
		return 0
	}
	if c.grade == Concurrency {
		return float64(n.CurThreadNum())
	}
	return n.PassQps()
}

func (c *defaultController) CanPass(n core.StatNode, acquireCount int64, prioritized bool) (bool, int64) {
	curUsed := c.avgUsedTokens(n)
	if curUsed+float64(acquireCount) > c.count {
		if prioritized && c.grade == QPS && n != nil {
			currentTime := c.clk.CurrentTimeMillis()
			waitInMs := n.TryOccupyNext(currentTime, acquireCount, c.count)
			if waitInMs < node.OccupyTimeoutMs() {
				n.AddWaitingRequest(currentTime+waitInMs, acquireCount)
				n.AddOccupiedPass(acquireCount)
				c.clk.Sleep(time.Duration(waitInMs) * time.Millisecond)
				return true, waitInMs
			}
		}
		return false, 0
	}
	return true, 0
}

// rateLimiterController is the strict-pacing leaky bucket. Requests queue by
// advancing latestPassedTime; a request whose computed wait exceeds the
// queueing bound is rejected and its reservation rolled back. A burst right
// after a long idle period passes immediately, which is a known artifact of
// the expected-time comparison.
type rateLimiterController struct {
	clk               clock.Clock
	count             float64
	maxQueueingTimeMs int64
	latestPassedTime  atomic.Int64
}

func newRateLimiterController(clk clock.Clock, count float64, maxQueueingTimeMs int64) *rateLimiterController {
	c := &rateLimiterController{clk: clk, count: count, maxQueueingTimeMs: maxQueueingTimeMs}
	c.latestPassedTime.Store(-1)
	return c
}

func (c *rateLimiterController) CanPass(_ core.StatNode, acquireCount int64, _ bool) (bool, int64) {
	return c.canPassWithCount(acquireCount, c.count), 0
}

func (c *rateLimiterController) canPassWithCount(acquireCount int64, count float64) bool {
	if acquireCount <= 0 {
		return true
	}
	// A non-positive rate would overflow costTime below.
	if count <= 0 {
		return false
	}

	currentTime := c.clk.CurrentTimeMillis()
	costTime := int64(math.Round(float64(acquireCount) / count * 1000.0))

	expectedTime := costTime + c.latestPassedTime.Load()
	if expectedTime <= currentTime {
		// Contention may exist here, but it's okay.
		c.latestPassedTime.Store(currentTime)
		return true
	}

	waitTime := costTime + c.latestPassedTime.Load() - c.clk.CurrentTimeMillis()
	if waitTime > c.maxQueueingTimeMs {
		return false
	}

	oldTime := c.latestPassedTime.Add(costTime)
	waitTime = oldTime - c.clk.CurrentTimeMillis()
	if waitTime > c.maxQueueingTimeMs {
		c.latestPassedTime.Add(-costTime)
		return false
	}
	if waitTime > 0 {
		c.clk.Sleep(time.Duration(waitTime) * time.Millisecond)
	}
	return true
}

// warmUpController ramps the allowed rate from count/coldFactor up to count
// while the stored token bucket drains, mirroring the Guava SmoothWarmingUp
// model.
type warmUpController struct {
	clk             clock.Clock
	count           float64
	warmUpPeriodSec int64
	coldFactor      int64

	warningToken int64
	maxToken     int64
	slope        float64

	storedTokens   atomic.Int64
	lastFilledTime atomic.Int64
}

func newWarmUpController(clk clock.Clock, count float64, warmUpPeriodSec, coldFactor int64) *warmUpController {
	if coldFactor <= 1 {
		coldFactor = config.DefaultColdFactor
	}
	c := &warmUpController{
		clk:             clk,
		count:           count,
		warmUpPeriodSec: warmUpPeriodSec,
		coldFactor:      coldFactor,
	}
	c.warningToken = int64(float64(warmUpPeriodSec) * count / float64(coldFactor-1))
	c.maxToken = c.warningToken + int64(2*float64(warmUpPeriodSec)*count/(1.0+float64(coldFactor)))
	c.slope = (float64(coldFactor) - 1.0) / count / float64(c.maxToken-c.warningToken)
	return c
}

func (c *warmUpController) CanPass(n core.StatNode, acquireCount int64, _ bool) (bool, int64) {
	if n == nil {
		return true, 0
	}
	passQps := n.PassQps()
	previousQps := n.PreviousPassQps()
	c.syncToken(previousQps)

	restToken := c.storedTokens.Load()
	if restToken >= c.warningToken {
		aboveToken := restToken - c.warningToken
		warningQps := math.Nextafter(1.0/(float64(aboveToken)*c.slope+1.0/c.count), math.MaxFloat64)
		if passQps+float64(acquireCount) <= warningQps {
			return true, 0
		}
	} else if passQps+float64(acquireCount) <= c.count {
		return true, 0
	}
	return false, 0
}

// currentAllowedQps derives the instantaneous admitted rate for the pacing
// composition below.
func (c *warmUpController) currentAllowedQps() float64 {
	restToken := c.storedTokens.Load()
	if restToken >= c.warningToken {
		aboveToken := restToken - c.warningToken
		return math.Nextafter(1.0/(float64(aboveToken)*c.slope+1.0/c.count), math.MaxFloat64)
	}
	return c.count
}

func (c *warmUpController) syncToken(passQps float64) {
	currentTime := c.clk.CurrentTimeMillis()
	currentTime = currentTime - currentTime%1000

	oldLastFillTime := c.lastFilledTime.Load()
	if currentTime <= oldLastFillTime {
		return
	}

	oldValue := c.storedTokens.Load()
	newValue := c.coolDownTokens(currentTime, passQps)
	if c.storedTokens.CompareAndSwap(oldValue, newValue) {
		if c.storedTokens.Add(-int64(passQps)) < 0 {
			c.storedTokens.Store(0)
		}
		c.lastFilledTime.Store(currentTime)
	}
}

func (c *warmUpController) coolDownTokens(currentTime int64, passQps float64) int64 {
	oldValue := c.storedTokens.Load()
	newValue := oldValue

	switch {
	case oldValue < c.warningToken:
		newValue = oldValue + int64(float64(currentTime-c.lastFilledTime.Load())*c.count/1000.0)
	case oldValue > c.warningToken:
		if passQps < c.count/float64(c.coldFactor) {
			newValue = oldValue + int64(float64(currentTime-c.lastFilledTime.Load())*c.count/1000.0)
		}
	}
	if newValue > c.maxToken {
		newValue = c.maxToken
	}
	return newValue
}

// warmUpRateLimiterController paces requests at the warm-up controller's
// instantaneous allowed rate instead of the steady-state count.
type warmUpRateLimiterController struct {
	*warmUpController
	pacer *rateLimiterController
}

func newWarmUpRateLimiterController(clk clock.Clock, count float64, warmUpPeriodSec, coldFactor int64, maxQueueingTimeMs int64) *warmUpRateLimiterController {
	return &warmUpRateLimiterController{
		warmUpController: newWarmUpController(clk, count, warmUpPeriodSec, coldFactor),
		pacer:            newRateLimiterController(clk, count, maxQueueingTimeMs),
	}
}

func (c *warmUpRateLimiterController) CanPass(n core.StatNode, acquireCount int64, _ bool) (bool, int64) {
	if n != nil {
		c.syncToken(n.PreviousPassQps())
	}
	return c.pacer.canPassWithCount(acquireCount, c.currentAllowedQps()), 0
}
