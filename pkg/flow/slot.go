package flow

import (
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/cluster"
	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/rs/zerolog/log"
)

// Slot evaluates every flow rule of the resource, in load order, against the
// node the rule's limitApp/strategy combination selects.
type Slot struct {
	manager *Manager
	tree    *node.Tree
	clk     clock.Clock
	tokens  cluster.TokenService // nil when the process runs standalone
}

func NewSlot(manager *Manager, tree *node.Tree, clk clock.Clock, tokens cluster.TokenService) *Slot {
	if clk == nil {
		clk = clock.Default()
	}
	return &Slot{manager: manager, tree: tree, clk: clk, tokens: tokens}
}

func (s *Slot) Name() string { return "flow" }

func (s *Slot) Check(ctx *core.EntryContext) *core.Result {
	for _, e := range s.manager.rulesFor(ctx.Resource.Name()) {
		r := s.checkRule(e, ctx)
		if r != nil && r.Status() != core.ResultAdmit {
			return r
		}
	}
	return nil
}

func (s *Slot) checkRule(e *ruleEntry, ctx *core.EntryContext) *core.Result {
	if e.rule.ClusterMode {
		return s.checkCluster(e, ctx)
	}
	return s.checkLocal(e, ctx)
}

func (s *Slot) checkLocal(e *ruleEntry, ctx *core.EntryContext) *core.Result {
	selected := s.selectNode(e.rule, ctx)
	if selected == nil {
		return nil
	}
	ok, waitMs := e.controller.CanPass(selected, ctx.Count, ctx.Prioritized)
	if !ok {
		return core.Block(core.NewBlockError(core.BlockTypeFlow, ctx.Resource.Name(), e.rule))
	}
	if waitMs > 0 {
		return core.AdmitAfter(waitMs)
	}
	return nil
}

// checkCluster asks the remote token service; on any failure it falls back
// to the local check when the rule allows, otherwise admits.
func (s *Slot) checkCluster(e *ruleEntry, ctx *core.EntryContext) *core.Result {
	if s.tokens == nil {
		return s.fallback(e, ctx)
	}
	res := s.tokens.RequestToken(e.rule.ClusterFlowID, ctx.Count, ctx.Prioritized)
	switch res.Status {
	case cluster.StatusOK:
		return nil
	case cluster.StatusShouldWait:
		s.clk.Sleep(time.Duration(res.WaitMs) * time.Millisecond)
		return core.AdmitAfter(res.WaitMs)
	case cluster.StatusBlocked:
		return core.Block(core.NewBlockError(core.BlockTypeFlow, ctx.Resource.Name(), e.rule))
	default:
		log.Debug().
			Int64("flow_id", e.rule.ClusterFlowID).
			Int32("status", int32(res.Status)).
			Msg("[flow] cluster token request degraded, falling back")
		return s.fallback(e, ctx)
	}
}

func (s *Slot) fallback(e *ruleEntry, ctx *core.EntryContext) *core.Result {
	if e.rule.FallbackToLocalWhenFail {
		return s.checkLocal(e, ctx)
	}
	return nil
}

// selectNode implements the limitApp/strategy/origin resolution table. A nil
// return admits the rule.
func (s *Slot) selectNode(r *Rule, ctx *core.EntryContext) core.StatNode {
	origin := ctx.Origin()

	switch {
	case r.LimitApp == origin && origin != LimitOriginDefault && origin != LimitOriginOther:
		if r.Strategy == Direct {
			return ctx.Entry.OriginNode()
		}
		return s.selectReferenceNode(r, ctx)

	case r.LimitApp == LimitOriginDefault:
		if r.Strategy == Direct {
			if dn, ok := ctx.Entry.CurNode().(*node.DefaultNode); ok && dn.ClusterNode() != nil {
				return dn.ClusterNode()
			}
			return nil
		}
		return s.selectReferenceNode(r, ctx)

	case r.LimitApp == LimitOriginOther && s.manager.IsOtherOrigin(origin, r.Resource):
		if r.Strategy == Direct {
			return ctx.Entry.OriginNode()
		}
		return s.selectReferenceNode(r, ctx)
	}
	return nil
}

func (s *Slot) selectReferenceNode(r *Rule, ctx *core.EntryContext) core.StatNode {
	if r.RefResource == "" {
		return nil
	}
	switch r.Strategy {
	case Relate:
		if cn := s.tree.GetClusterNode(r.RefResource); cn != nil {
			return cn
		}
		return nil
	case Chain:
		if ctx.Context.Name() != r.RefResource {
			return nil
		}
		return ctx.Entry.CurNode()
	default:
		return nil
	}
}
