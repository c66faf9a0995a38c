package authority

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Manager holds the active authority rules, swapped atomically as a whole.
type Manager struct {
	rules atomic.Pointer[map[string][]*Rule]

	loadMu    sync.Mutex
	listeners []func(rules []*Rule)
}

func NewManager() *Manager {
	m := &Manager{}
	empty := make(map[string][]*Rule)
	m.rules.Store(&empty)
	return m
}

func (m *Manager) LoadRules(rules []*Rule) error {
	byResource := make(map[string][]*Rule, len(rules))
	for i, r := range rules {
		if r == nil {
			return fmt.Errorf("load authority rules: rule #%d is nil", i)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("load authority rules: rule #%d (%s): %w", i, r.Resource, err)
		}
		byResource[r.Resource] = append(byResource[r.Resource], r)
	}

	m.loadMu.Lock()
	m.rules.Store(&byResource)
	listeners := m.listeners
	m.loadMu.Unlock()

	log.Info().Int("rules", len(rules)).Msg("[authority] rule set loaded")
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
