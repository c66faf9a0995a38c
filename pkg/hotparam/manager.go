package hotparam

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/rs/zerolog/log"
)

// Manager holds the active param-flow rules and the per-resource parameter
// metrics. Metrics survive rule reloads; a reload only wires new argument
// slots in.
type Manager struct {
	clk         clock.Clock
	sampleCount int
	intervalMs  int64

	rules    atomic.Pointer[map[string][]*Rule]
	byFlowID atomic.Pointer[map[int64]*Rule]

	metricMu sync.Mutex
	metrics  map[string]*ParameterMetric

	loadMu    sync.Mutex
	listeners []func(rules []*Rule)
}

func NewManager(clk clock.Clock, sampleCount int, intervalMs int64) *Manager {
	if clk == nil {
		clk = clock.Default()
	}
	m := &Manager{
		clk:         clk,
		sampleCount: sampleCount,
		intervalMs:  intervalMs,
		metrics:     make(map[string]*ParameterMetric),
	}
	empty := make(map[string][]*Rule)
	m.rules.Store(&empty)
	emptyIDs := make(map[int64]*Rule)
	m.byFlowID.Store(&emptyIDs)
	return m
}

func (m *Manager) LoadRules(rules []*Rule) error {
	byResource := make(map[string][]*Rule, len(rules))
	byFlowID := make(map[int64]*Rule)
	for i, r := range rules {
		if r == nil {
			return fmt.Errorf("load param flow rules: rule #%d is nil", i)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("load param flow rules: rule #%d (%s): %w", i, r.Resource, err)
		}
		if r.ClusterMode {
			if _, dup := byFlowID[r.ClusterFlowID]; dup {
				return fmt.Errorf("load param flow rules: duplicate cluster flow id %d", r.ClusterFlowID)
			}
			byFlowID[r.ClusterFlowID] = r
		}
		byResource[r.Resource] = append(byResource[r.Resource], r)
	}

	m.loadMu.Lock()
	m.rules.Store(&byResource)
	m.byFlowID.Store(&byFlowID)
	listeners := m.listeners
	m.loadMu.Unlock()

	for res, rs := range byResource {
		metric := m.GetOrCreateMetric(res)
		for _, r := range rs {
			metric.InitIndex(r.ParamIdx)
		}
	}

	log.Info().Int("rules", len(rules)).Msg("[param-flow] rule set loaded")
	for _, l := range listeners {
		l(rules)
	}
	return nil
}

func (m *Manager) GetRules() []*Rule {
	cur := *m.rules.Load()
	out := make([]*Rule, 0, len(cur))
	for _, rs := range cur {
		out = append(out, rs...)
	}
	return out
}

func (m *Manager) OnChange(l func(rules []*Rule)) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) rulesFor(resource string) []*Rule {
	return (*m.rules.Load())[resource]
}

// RuleByFlowID resolves the local rule behind a cluster flow id.
func (m *Manager) RuleByFlowID(id int64) *Rule {
	return (*m.byFlowID.Load())[id]
}

// GetOrCreateMetric yields the resource's parameter metric.
func (m *Manager) GetOrCreateMetric(resource string) *ParameterMetric {
	m.metricMu.Lock()
	defer m.metricMu.Unlock()
	if metric, ok := m.metrics[resource]; ok {
		return metric
	}
	metric := NewParameterMetric(m.clk, m.sampleCount, m.intervalMs)
	m.metrics[resource] = metric
	return metric
}

// Metric returns the resource's parameter metric without creating it.
func (m *Manager) Metric(resource string) *ParameterMetric {
	m.metricMu.Lock()
	defer m.metricMu.Unlock()
	return m.metrics[resource]
}
