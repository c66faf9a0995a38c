package degrade

import (
	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/Borislavv/traffic-governor/pkg/node"
)

// Slot rejects calls on resources whose circuit breaker is open or trips it
// when a rule's criterion fires against the resource's global statistics.
type Slot struct {
	manager *Manager
	tree    *node.Tree
}

func NewSlot(manager *Manager, tree *node.Tree) *Slot {
	return &Slot{manager: manager, tree: tree}
}

func (s *Slot) Name() string { return "degrade" }

func (s *Slot) Check(ctx *core.EntryContext) *core.Result {
	breakers := s.manager.breakersFor(ctx.Resource.Name())
	if len(breakers) == 0 {
		return nil
	}
	cn := s.tree.GetClusterNode(ctx.Resource.Name())
	for _, b := range breakers {
		if !b.tryPass(cn) {
			return core.Block(core.NewBlockError(core.BlockTypeDegrade, ctx.Resource.Name(), b.rule))
		}
	}
	return nil
}
