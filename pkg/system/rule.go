package system

import "fmt"

// Rule holds process-wide protection thresholds. A zero/negative field is
// disabled. System rules only guard inbound traffic.
type Rule struct {
	HighestLoad float64 `yaml:"highest_load"`
	AvgRt       float64 `yaml:"avg_rt"`
	MaxThread   int64   `yaml:"max_thread"`
	Qps         float64 `yaml:"qps"`
	CpuUsage    float64 `yaml:"cpu_usage"`
}

func (r *Rule) ResourceName() string { return "__system__" }

func (r *Rule) String() string {
	return fmt.Sprintf("system{load=%v, avgRt=%v, maxThread=%d, qps=%v, cpu=%v}",
		r.HighestLoad, r.AvgRt, r.MaxThread, r.Qps, r.CpuUsage)
}

func (r *Rule) validate() error {
	if r.HighestLoad <= 0 && r.AvgRt <= 0 && r.MaxThread <= 0 && r.Qps <= 0 && r.CpuUsage <= 0 {
		return fmt.Errorf("system rule with no enabled threshold")
	}
	if r.CpuUsage > 1 {
		return fmt.Errorf("cpu_usage must be within (0, 1]")
	}
	return nil
}
