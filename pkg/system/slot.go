package system

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/rs/zerolog/log"
)

// Manager holds the single active system rule set.
type Manager struct {
	rules atomic.Pointer[[]*Rule]

	loadMu sync.Mutex
}

func NewManager() *Manager {
	m := &Manager{}
	empty := make([]*Rule, 0)
	m.rules.Store(&empty)
	return m
}

func (m *Manager) LoadRules(rules []*Rule) error {
	for i, r := range rules {
		if r == nil {
			return fmt.Errorf("load system rules: rule #%d is nil", i)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("load system rules: rule #%d: %w", i, err)
		}
	}
	cp := make([]*Rule, len(rules))
	copy(cp, rules)

	m.loadMu.Lock()
	m.rules.Store(&cp)
	m.loadMu.Unlock()

	log.Info().Int("rules", len(rules)).Msg("[system] rule set loaded")
	return nil
}

func (m *Manager) GetRules() []*Rule {
	cur := *m.rules.Load()
	out := make([]*Rule, len(cur))
	copy(out, cur)
	return out
}

// Slot applies adaptive process-wide protection to inbound resources using
// the global inbound aggregate.
type Slot struct {
	manager *Manager
	tree    *node.Tree
	sampler *Sampler
}

func NewSlot(manager *Manager, tree *node.Tree, sampler *Sampler) *Slot {
	return &Slot{manager: manager, tree: tree, sampler: sampler}
}

func (s *Slot) Name() string { return "system" }

func (s *Slot) Check(ctx *core.EntryContext) *core.Result {
	if ctx.Resource.EntryType() != core.Inbound {
		return nil
	}
	rules := *s.manager.rules.Load()
	if len(rules) == 0 {
		return nil
	}
	g := s.tree.GlobalInbound()
	for _, r := range rules {
		if !s.pass(r, g, ctx.Count) {
			return core.Block(core.NewBlockError(core.BlockTypeSystem, ctx.Resource.Name(), r))
		}
	}
	return nil
}

func (s *Slot) pass(r *Rule, g *node.ClusterNode, count int64) bool {
	if r.Qps > 0 && g.PassQps()+float64(count) > r.Qps {
		return false
	}
	if r.MaxThread > 0 && g.CurThreadNum() > r.MaxThread {
		return false
	}
	if r.AvgRt > 0 && g.AvgRt() > r.AvgRt {
		return false
	}
	if r.HighestLoad > 0 && s.sampler != nil && s.sampler.CurrentLoad() > r.HighestLoad {
		if !checkBbr(g) {
			return false
		}
	}
	if r.CpuUsage > 0 && s.sampler != nil && s.sampler.CurrentCpuUsage() > r.CpuUsage {
		return false
	}
	return true
}

// checkBbr keeps the system in its high-throughput operating point: under
// overload, concurrency may not exceed the estimated bandwidth-delay
// product maxSuccessQps * minRt.
func checkBbr(g *node.ClusterNode) bool {
	cur := g.CurThreadNum()
	if cur > 1 && float64(cur) > g.MaxSuccessQps()*g.MinRt()/1000.0 {
		return false
	}
	return true
}
