package hotparam

import (
	"fmt"
	"strconv"
)

// MetricType selects the per-value counter a rule compares against.
type MetricType int32

const (
	Concurrency MetricType = iota
	QPS
)

// ControlBehavior selects what happens at the per-value threshold.
type ControlBehavior int32

const (
	Reject ControlBehavior = iota
	Throttling
)

// Rule throttles a resource per value of one argument slot. ExclusionItems
// assigns specific values their own thresholds, keyed by the value's plain
// literal (fmt.Sprint), not by its ParamKey form.
type Rule struct {
	Resource          string             `yaml:"resource"`
	ParamIdx          int                `yaml:"param_idx"`
	Grade             MetricType         `yaml:"grade"`
	Count             float64            `yaml:"count"`
	ExclusionItems    map[string]float64 `yaml:"exclusion_items"`
	ControlBehavior   ControlBehavior    `yaml:"control_behavior"`
	MaxQueueingTimeMs int64              `yaml:"max_queueing_time_ms"`

	ClusterMode             bool  `yaml:"cluster_mode"`
	ClusterFlowID           int64 `yaml:"cluster_flow_id"`
	FallbackToLocalWhenFail bool  `yaml:"fallback_to_local_when_fail"`
}

func (r *Rule) ResourceName() string { return r.Resource }

func (r *Rule) String() string {
	return fmt.Sprintf("param-flow{resource=%s, paramIdx=%d, grade=%d, count=%v, behavior=%d}",
		r.Resource, r.ParamIdx, r.Grade, r.Count, r.ControlBehavior)
}

func (r *Rule) validate() error {
	if r.Resource == "" {
		return fmt.Errorf("empty resource")
	}
	if r.ParamIdx < 0 {
		return fmt.Errorf("param_idx must be >= 0")
	}
	if r.Count < 0 {
		return fmt.Errorf("negative count %v", r.Count)
	}
	if r.Grade != Concurrency && r.Grade != QPS {
		return fmt.Errorf("invalid grade %d", r.Grade)
	}
	if r.ControlBehavior != Reject && r.ControlBehavior != Throttling {
		return fmt.Errorf("invalid control behavior %d", r.ControlBehavior)
	}
	return nil
}

// ParamKey canonicalizes an argument value into the string form per-value
// counters are keyed by. Distinct primitive types map to distinct keys.
func ParamKey(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return "s:" + v, true
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int64:
		return "i:" + strconv.FormatInt(v, 10), true
	case uint:
		return "u:" + strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return "u:" + strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return "u:" + strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return "u:" + strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return "u:" + strconv.FormatUint(v, 10), true
	case bool:
		return "b:" + strconv.FormatBool(v), true
	case float32:
		return "f:" + strconv.FormatFloat(float64(v), 'g', -1, 64), true
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}

// exclusionThreshold looks the value up among the rule's pinned items. The
// yaml form carries plain literals, so the lookup key is fmt.Sprint(value);
// ParamKey's canonical form is not looked up.
func (r *Rule) exclusionThreshold(value any) (float64, bool) {
	if len(r.ExclusionItems) == 0 {
		return 0, false
	}
	if t, ok := r.ExclusionItems[fmt.Sprint(value)]; ok {
		return t, true
	}
	return 0, false
}
