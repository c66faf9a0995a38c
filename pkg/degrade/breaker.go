package degrade

import (
	"sync/atomic"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/rs/zerolog/log"
)

// rtMaxExceedN is the count of consecutive over-threshold RT observations at
// which the breaker trips; the first rtMaxExceedN-1 are still admitted. It
// doubles as the minimum traffic for the exception-ratio grade.
const rtMaxExceedN = 5

// breaker is the runtime state of one degrade rule: the open/closed flag and
// the consecutive slow-call counter. Rules stay immutable; all mutation
// lives here.
type breaker struct {
	rule      *Rule
	cut       atomic.Bool
	passCount atomic.Int64
}

func newBreaker(rule *Rule) *breaker { return &breaker{rule: rule} }

// tryPass applies the rule against the resource's global statistics and
// trips the breaker when the criterion fires. During an open window every
// call is rejected.
func (b *breaker) tryPass(clusterNode *node.ClusterNode) bool {
	if b.cut.Load() {
		return false
	}
	if clusterNode == nil {
		return true
	}

	switch b.rule.Grade {
	case AvgRt:
		if clusterNode.AvgRt() < b.rule.Count {
			b.passCount.Store(0)
			return true
		}
		if b.passCount.Add(1) < rtMaxExceedN {
			return true
		}
	case ExceptionRatio:
		exception := clusterNode.ExceptionQps()
		success := clusterNode.SuccessQps()
		total := clusterNode.TotalQps()
		if total < rtMaxExceedN {
			return true
		}
		realSuccess := success - exception
		if realSuccess <= 0 && exception < rtMaxExceedN {
			return true
		}
		if exception/success < b.rule.Count {
			return true
		}
	case ExceptionCount:
		if float64(clusterNode.TotalException()) < b.rule.Count {
			return true
		}
	default:
		return true
	}

	b.trip()
	return false
}

func (b *breaker) trip() {
	if !b.cut.CompareAndSwap(false, true) {
		return
	}
	log.Warn().Str("rule", b.rule.String()).Msg("[degrade] breaker tripped")
	time.AfterFunc(time.Duration(b.rule.TimeWindowSec)*time.Second, func() {
		b.passCount.Store(0)
		b.cut.Store(false)
		log.Info().Str("resource", b.rule.Resource).Msg("[degrade] breaker window elapsed, closed again")
	})
}

var _ core.Rule = (*Rule)(nil)
