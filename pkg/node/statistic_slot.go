package node

import (
	"github.com/Borislavv/traffic-governor/pkg/core"
)

// StatisticSlot is the only stage that records outcomes. It observes what
// the checker stages decided and writes pass/block/rt/thread counters into
// the default node, the caller-origin node, the global cluster node and the
// global inbound aggregate. Checkers sit upstream, so a checker can never
// observe its own call's increments.
type StatisticSlot struct {
	tree           *Tree
	maxAllowedRtMs int64
}

func NewStatisticSlot(tree *Tree, maxAllowedRtMs int64) *StatisticSlot {
	return &StatisticSlot{tree: tree, maxAllowedRtMs: maxAllowedRtMs}
}

func (s *StatisticSlot) Name() string { return "statistic" }

func (s *StatisticSlot) OnEntryPassed(ctx *core.EntryContext) {
	n := ctx.Entry.CurNode()
	if n == nil {
		return
	}

	if ctx.Result().Status() == core.ResultAdmitAfter {
		// Borrowed admission: the pass was already booked against the future
		// window by the controller, and the caller slept instead of running
		// concurrently, so the thread counter stays untouched.
		return
	}

	count := ctx.Count
	n.IncreaseThreadNum()
	n.AddPassRequest(count)

	if origin := ctx.Entry.OriginNode(); origin != nil {
		origin.IncreaseThreadNum()
		origin.AddPassRequest(count)
	}
	if cn := s.clusterNode(ctx); cn != nil {
		cn.IncreaseThreadNum()
		cn.AddPassRequest(count)
	}
	if ctx.Resource.EntryType() == core.Inbound {
		g := s.tree.GlobalInbound()
		g.IncreaseThreadNum()
		g.AddPassRequest(count)
	}
}

func (s *StatisticSlot) OnEntryBlocked(ctx *core.EntryContext, blockErr *core.BlockError) {
	n := ctx.Entry.CurNode()
	if n == nil {
		return
	}
	count := ctx.Count
	n.IncreaseBlockQps(count)
	if origin := ctx.Entry.OriginNode(); origin != nil {
		origin.IncreaseBlockQps(count)
	}
	if cn := s.clusterNode(ctx); cn != nil {
		cn.IncreaseBlockQps(count)
	}
	if ctx.Resource.EntryType() == core.Inbound {
		s.tree.GlobalInbound().IncreaseBlockQps(count)
	}
}

func (s *StatisticSlot) OnCompleted(ctx *core.EntryContext) {
	n := ctx.Entry.CurNode()
	if n == nil {
		return
	}

	rt := ctx.RtMs()
	if rt > s.maxAllowedRtMs {
		rt = s.maxAllowedRtMs
	}
	count := ctx.Count
	borrowed := ctx.Result().Status() == core.ResultAdmitAfter

	record := func(sn core.StatNode) {
		sn.AddRtAndSuccess(rt, count)
		if !borrowed {
			sn.DecreaseThreadNum()
		}
		if ctx.Err() != nil {
			sn.IncreaseExceptionQps(count)
		}
	}

	record(n)
	if origin := ctx.Entry.OriginNode(); origin != nil {
		record(origin)
	}
	if cn := s.clusterNode(ctx); cn != nil {
		record(cn)
	}
	if ctx.Resource.EntryType() == core.Inbound {
		record(s.tree.GlobalInbound())
	}
}

func (s *StatisticSlot) clusterNode(ctx *core.EntryContext) *ClusterNode {
	if dn, ok := ctx.Entry.CurNode().(*DefaultNode); ok {
		return dn.ClusterNode()
	}
	return nil
}
