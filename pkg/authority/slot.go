package authority

import (
	"github.com/Borislavv/traffic-governor/pkg/core"
)

// Slot admits or rejects by caller origin. An anonymous caller (empty
// origin) is never rejected.
type Slot struct {
	manager *Manager
}

func NewSlot(manager *Manager) *Slot { return &Slot{manager: manager} }

func (s *Slot) Name() string { return "authority" }

func (s *Slot) Check(ctx *core.EntryContext) *core.Result {
	origin := ctx.Origin()
	if origin == "" {
		return nil
	}
	for _, r := range s.manager.rulesFor(ctx.Resource.Name()) {
		in := r.contains(origin)
		if (r.Strategy == White && !in) || (r.Strategy == Black && in) {
			return core.Block(core.NewBlockError(core.BlockTypeAuthority, ctx.Resource.Name(), r))
		}
	}
	return nil
}
