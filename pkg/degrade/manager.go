package degrade

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Manager holds the active degrade rules and their breakers. Loading swaps
// the whole set atomically; an invalid rule rejects the entire load.
type Manager struct {
	breakers atomic.Pointer[map[string][]*breaker]

	loadMu    sync.Mutex
	listeners []func(rules []*Rule)
}

func NewManager() *Manager {
	m := &Manager{}
	empty := make(map[string][]*breaker)
	m.breakers.Store(&empty)
	return m
}

func (m *Manager) LoadRules(rules []*Rule) error {
	byResource := make(map[string][]*breaker, len(rules))
	for i, r := range rules {
		if r == nil {
			return fmt.Errorf("load degrade rules: rule #%d is nil", i)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("load degrade rules: rule #%d (%s): %w", i, r.Resource, err)
		}
		byResource[r.Resource] = append(byResource[r.Resource], newBreaker(r))
	}

	m.loadMu.Lock()
	m.breakers.Store(&byResource)
	listeners := m.listeners
	m.loadMu.Unlock()

	log.Info().Int("rules", len(rules)).Msg("[degrade] rule set loaded")
	for _, l := range listeners {
		l(rules)
	}
	return nil
}

func (m *Manager) GetRules() []*Rule {
	cur := *m.breakers.Load()
	out := make([]*Rule, 0, len(cur))
	for _, bs := range cur {
		for _, b := range bs {
			out = append(out, b.rule)
		}
	}
	return out
}

func (m *Manager) OnChange(l func(rules []*Rule)) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) breakersFor(resource string) []*breaker {
	return (*m.breakers.Load())[resource]
}
