package hotparam

import (
	"math"
	"reflect"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/cluster"
	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/rs/zerolog/log"
)

// Slot throttles per argument value. It is both a checker and a stat
// observer: the admission outcome feeds the per-value pass/block counters
// and the live per-value concurrency.
type Slot struct {
	manager *Manager
	clk     clock.Clock
	tokens  cluster.TokenService
}

func NewSlot(manager *Manager, clk clock.Clock, tokens cluster.TokenService) *Slot {
	if clk == nil {
		clk = clock.Default()
	}
	return &Slot{manager: manager, clk: clk, tokens: tokens}
}

func (s *Slot) Name() string { return "param-flow" }

func (s *Slot) Check(ctx *core.EntryContext) *core.Result {
	rules := s.manager.rulesFor(ctx.Resource.Name())
	if len(rules) == 0 || len(ctx.Args) == 0 {
		return nil
	}
	for _, r := range rules {
		if r.ParamIdx >= len(ctx.Args) {
			continue
		}
		value := ctx.Args[r.ParamIdx]
		if value == nil {
			continue
		}
		var res *core.Result
		if r.ClusterMode && r.Grade == QPS {
			res = s.checkCluster(r, ctx, value)
		} else {
			res = s.checkLocal(r, ctx, value)
		}
		if res != nil {
			return res
		}
	}
	return nil
}

func (s *Slot) checkLocal(r *Rule, ctx *core.EntryContext, value any) *core.Result {
	for _, v := range flatten(value) {
		if !s.passSingleValue(r, ctx, v) {
			return core.Block(core.NewParamBlockError(ctx.Resource.Name(), r, v))
		}
	}
	return nil
}

func (s *Slot) passSingleValue(r *Rule, ctx *core.EntryContext, value any) bool {
	key, ok := ParamKey(value)
	if !ok {
		// Unsupported value kinds are not counted and never limited.
		return true
	}
	metric := s.manager.Metric(r.Resource)
	if metric == nil {
		return true
	}
	count := float64(ctx.Count)

	switch r.Grade {
	case QPS:
		if r.ControlBehavior == Throttling {
			return s.passThrottle(r, metric, key, ctx.Count, value)
		}
		curCount := metric.PassParamQps(r.ParamIdx, key)
		if threshold, pinned := r.exclusionThreshold(value); pinned {
			return curCount+count <= threshold
		}
		if curCount+count > r.Count {
			// Literal float-tail carve-out: a reading that exceeds the
			// threshold by less than one whole unit still passes.
			if tail := curCount - r.Count; tail > 0 && tail < 1 {
				return true
			}
			return false
		}
		return true

	case Concurrency:
		threadCount := metric.ThreadCount(r.ParamIdx, key)
		threshold := r.Count
		if pinned, ok := r.exclusionThreshold(value); ok {
			threshold = pinned
		}
		return float64(threadCount+1) <= threshold

	default:
		return true
	}
}

// passThrottle paces one value's requests at its threshold rate, queueing up
// to the rule's bound exactly like the leaky-bucket flow controller.
func (s *Slot) passThrottle(r *Rule, metric *ParameterMetric, key string, acquireCount int64, value any) bool {
	tokenCount := r.Count
	if pinned, ok := r.exclusionThreshold(value); ok {
		tokenCount = pinned
	}
	if tokenCount <= 0 {
		return false
	}

	last := metric.lastScheduledTime(r.ParamIdx, key)
	if last == nil {
		return true
	}
	costTime := int64(math.Round(float64(acquireCount) / tokenCount * 1000.0))

	currentTime := s.clk.CurrentTimeMillis()
	expectedTime := last.Load() + costTime
	if expectedTime <= currentTime {
		last.Store(currentTime)
		return true
	}

	waitTime := expectedTime - currentTime
	if waitTime > r.MaxQueueingTimeMs {
		return false
	}
	oldTime := last.Add(costTime)
	waitTime = oldTime - s.clk.CurrentTimeMillis()
	if waitTime > r.MaxQueueingTimeMs {
		last.Add(-costTime)
		return false
	}
	if waitTime > 0 {
		s.clk.Sleep(time.Duration(waitTime) * time.Millisecond)
	}
	return true
}

func (s *Slot) checkCluster(r *Rule, ctx *core.EntryContext, value any) *core.Result {
	params := flatten(value)
	if s.tokens == nil {
		return s.fallback(r, ctx, value)
	}
	res := s.tokens.RequestParamToken(r.ClusterFlowID, ctx.Count, params)
	switch res.Status {
	case cluster.StatusOK:
		return nil
	case cluster.StatusBlocked:
		return core.Block(core.NewParamBlockError(ctx.Resource.Name(), r, value))
	default:
		log.Debug().
			Int64("flow_id", r.ClusterFlowID).
			Int32("status", int32(res.Status)).
			Msg("[param-flow] cluster token request degraded, falling back")
		return s.fallback(r, ctx, value)
	}
}

func (s *Slot) fallback(r *Rule, ctx *core.EntryContext, value any) *core.Result {
	if r.FallbackToLocalWhenFail {
		return s.checkLocal(r, ctx, value)
	}
	return nil
}

// flatten expands slice and array arguments so each contained value is
// checked and counted independently.
func flatten(value any) []any {
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		rv := reflect.ValueOf(value)
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return out
	default:
		return []any{value}
	}
}

// OnEntryPassed books the admitted call into every governed slot's pass and
// concurrency counters.
func (s *Slot) OnEntryPassed(ctx *core.EntryContext) {
	s.record(ctx, func(metric *ParameterMetric, idx int, key string) {
		metric.AddPass(idx, key, ctx.Count)
		metric.AddThreadCount(idx, key)
	})
}

// OnEntryBlocked books the rejection; concurrency is untouched since the
// call never ran.
func (s *Slot) OnEntryBlocked(ctx *core.EntryContext, _ *core.BlockError) {
	s.record(ctx, func(metric *ParameterMetric, idx int, key string) {
		metric.AddBlock(idx, key, ctx.Count)
	})
}

// OnCompleted releases the per-value concurrency taken on entry.
func (s *Slot) OnCompleted(ctx *core.EntryContext) {
	s.record(ctx, func(metric *ParameterMetric, idx int, key string) {
		metric.DecreaseThreadCount(idx, key)
	})
}

// record applies fn to every distinct governed (slot, value) pair of the
// attempt.
func (s *Slot) record(ctx *core.EntryContext, fn func(metric *ParameterMetric, idx int, key string)) {
	rules := s.manager.rulesFor(ctx.Resource.Name())
	if len(rules) == 0 || len(ctx.Args) == 0 {
		return
	}
	metric := s.manager.Metric(ctx.Resource.Name())
	if metric == nil {
		return
	}
	seen := make(map[int]struct{}, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.ParamIdx]; dup {
			continue
		}
		seen[r.ParamIdx] = struct{}{}
		if r.ParamIdx >= len(ctx.Args) || ctx.Args[r.ParamIdx] == nil {
			continue
		}
		for _, v := range flatten(ctx.Args[r.ParamIdx]) {
			if key, ok := ParamKey(v); ok {
				fn(metric, r.ParamIdx, key)
			}
		}
	}
}
