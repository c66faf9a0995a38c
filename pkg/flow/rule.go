package flow

import (
	"fmt"
)

// MetricType selects the counter a rule compares against.
type MetricType int32

const (
	// Concurrency limits the number of in-flight acquisitions.
	Concurrency MetricType = iota
	// QPS limits pass throughput per second.
	QPS
)

// RelationStrategy decides which node's statistics the rule is checked on.
type RelationStrategy int32

const (
	// Direct checks the resource itself.
	Direct RelationStrategy = iota
	// Relate checks the referenced resource's global statistics.
	Relate
	// Chain checks the resource only when entered through the referenced
	// context.
	Chain
)

// ControlBehavior selects what happens when the threshold is reached.
type ControlBehavior int32

const (
	Reject ControlBehavior = iota
	WarmUp
	RateLimit
	WarmUpRateLimit
)

const (
	// LimitOriginDefault matches every caller.
	LimitOriginDefault = "default"
	// LimitOriginOther matches callers not named by any other rule of the
	// same resource.
	LimitOriginOther = "other"
)

// Rule is one flow-shaping rule. Rules are immutable once loaded.
type Rule struct {
	Resource          string           `yaml:"resource"`
	LimitApp          string           `yaml:"limit_app"`
	Grade             MetricType       `yaml:"grade"`
	Count             float64          `yaml:"count"`
	Strategy          RelationStrategy `yaml:"strategy"`
	RefResource       string           `yaml:"ref_resource"`
	ControlBehavior   ControlBehavior  `yaml:"control_behavior"`
	WarmUpPeriodSec   int64            `yaml:"warm_up_period_sec"`
	MaxQueueingTimeMs int64            `yaml:"max_queueing_time_ms"`

	ClusterMode             bool  `yaml:"cluster_mode"`
	ClusterFlowID           int64 `yaml:"cluster_flow_id"`
	FallbackToLocalWhenFail bool  `yaml:"fallback_to_local_when_fail"`
}

func (r *Rule) ResourceName() string { return r.Resource }

func (r *Rule) String() string {
	return fmt.Sprintf("flow{resource=%s, limitApp=%s, grade=%d, count=%v, strategy=%d, behavior=%d}",
		r.Resource, r.LimitApp, r.Grade, r.Count, r.Strategy, r.ControlBehavior)
}

func (r *Rule) validate() error {
	if r.Resource == "" {
		return fmt.Errorf("empty resource")
	}
	if r.Count < 0 {
		return fmt.Errorf("negative count %v", r.Count)
	}
	if r.Grade != Concurrency && r.Grade != QPS {
		return fmt.Errorf("invalid grade %d", r.Grade)
	}
	if r.Strategy < Direct || r.Strategy > Chain {
		return fmt.Errorf("invalid strategy %d", r.Strategy)
	}
	if r.ControlBehavior < Reject || r.ControlBehavior > WarmUpRateLimit {
		return fmt.Errorf("invalid control behavior %d", r.ControlBehavior)
	}
	if r.Strategy != Direct && r.RefResource == "" {
		return fmt.Errorf("ref_resource required for strategy %d", r.Strategy)
	}
	if (r.ControlBehavior == WarmUp || r.ControlBehavior == WarmUpRateLimit) && r.WarmUpPeriodSec <= 0 {
		return fmt.Errorf("warm_up_period_sec must be positive")
	}
	return nil
}
