package core

import (
	"github.com/rs/zerolog/log"
)

// LogSlot reports denied admissions. Rejections are normal operation, so the
// noise stays at debug; plumbing never propagates to callers from here.
type LogSlot struct{}

func NewLogSlot() *LogSlot { return &LogSlot{} }

func (s *LogSlot) Name() string { return "log" }

func (s *LogSlot) OnEntryPassed(*EntryContext) {}

func (s *LogSlot) OnEntryBlocked(ctx *EntryContext, blockErr *BlockError) {
	ev := log.Debug().
		Str("resource", ctx.Resource.Name()).
		Str("context", ctx.Context.Name()).
		Str("type", blockErr.BlockType().String())
	if origin := ctx.Origin(); origin != "" {
		ev = ev.Str("origin", origin)
	}
	if rule := blockErr.Rule(); rule != nil {
		ev = ev.Str("rule", rule.String())
	}
	ev.Msg("[slot-chain] request blocked")
}

func (s *LogSlot) OnCompleted(*EntryContext) {}
