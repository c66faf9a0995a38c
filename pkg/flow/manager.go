package flow

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/rs/zerolog/log"
)

// ruleEntry pairs a loaded rule with its traffic-shaping controller, built
// once at load time.
type ruleEntry struct {
	rule       *Rule
	controller TrafficShapingController
}

// RuleListener is notified after a successful atomic rule swap.
type RuleListener func(rules []*Rule)

// Manager holds the active flow rule set. Loads are single-writer and swap
// the whole set atomically; reads on the hot path are one atomic load.
type Manager struct {
	clk clock.Clock

	rules    atomic.Pointer[map[string][]*ruleEntry]
	byFlowID atomic.Pointer[map[int64]*Rule]

	loadMu    sync.Mutex
	listeners []RuleListener
}

func NewManager(clk clock.Clock) *Manager {
	m := &Manager{clk: clk}
	empty := make(map[string][]*ruleEntry)
	m.rules.Store(&empty)
	emptyIDs := make(map[int64]*Rule)
	m.byFlowID.Store(&emptyIDs)
	return m
}

// LoadRules validates and installs the whole rule set. Any invalid rule
// rejects the entire load and keeps the previous set active.
func (m *Manager) LoadRules(rules []*Rule) error {
	byResource := make(map[string][]*ruleEntry, len(rules))
	byFlowID := make(map[int64]*Rule)
	for i, r := range rules {
		if r == nil {
			return fmt.Errorf("load flow rules: rule #%d is nil", i)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("load flow rules: rule #%d (%s): %w", i, r.Resource, err)
		}
		if r.ClusterMode {
			if _, dup := byFlowID[r.ClusterFlowID]; dup {
				return fmt.Errorf("load flow rules: duplicate cluster flow id %d", r.ClusterFlowID)
			}
			byFlowID[r.ClusterFlowID] = r
		}
		byResource[r.Resource] = append(byResource[r.Resource], &ruleEntry{
			rule:       r,
			controller: NewController(r, m.clk),
		})
	}

	m.loadMu.Lock()
	m.rules.Store(&byResource)
	m.byFlowID.Store(&byFlowID)
	listeners := m.listeners
	m.loadMu.Unlock()

	log.Info().Int("rules", len(rules)).Msg("[flow] rule set loaded")
	for _, l := range listeners {
		l(rules)
	}
	return nil
}

// GetRules returns a copy of the active rules.
func (m *Manager) GetRules() []*Rule {
	cur := *m.rules.Load()
	out := make([]*Rule, 0, len(cur))
	for _, entries := range cur {
		for _, e := range entries {
			out = append(out, e.rule)
		}
	}
	return out
}

func (m *Manager) rulesFor(resource string) []*ruleEntry {
	return (*m.rules.Load())[resource]
}

// RuleByFlowID resolves the local rule behind a cluster flow id.
func (m *Manager) RuleByFlowID(id int64) *Rule {
	return (*m.byFlowID.Load())[id]
}

// OnChange registers a listener invoked after every successful load.
func (m *Manager) OnChange(l RuleListener) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// IsOtherOrigin reports whether origin is not named by any rule of the
// resource, i.e. whether it falls under the "other" bucket.
func (m *Manager) IsOtherOrigin(origin, resource string) bool {
	if origin == "" {
		return false
	}
	for _, e := range m.rulesFor(resource) {
		if e.rule.LimitApp == origin {
			return false
		}
	}
	return true
}
