package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSlot struct {
	name    string
	passed  int
	blocked int
	done    int
}

func (s *recordingSlot) Name() string                             { return s.name }
func (s *recordingSlot) OnEntryPassed(*EntryContext)              { s.passed++ }
func (s *recordingSlot) OnEntryBlocked(*EntryContext, *BlockError) { s.blocked++ }
func (s *recordingSlot) OnCompleted(*EntryContext)                { s.done++ }

type staticCheck struct {
	name   string
	result *Result
	calls  int
}

func (s *staticCheck) Name() string { return s.name }
func (s *staticCheck) Check(*EntryContext) *Result {
	s.calls++
	return s.result
}

func newChainContext(chain *SlotChain) *EntryContext {
	res := NewResource("r", Outbound)
	ctx := NewContext("test", "", nil)
	_, ec := NewEntry(res, ctx, chain, 1, false, nil, 1000, func() int64 { return 1040 })
	return ec
}

func TestSlotChain_AdmitNotifiesStats(t *testing.T) {
	chain := NewSlotChain()
	rec := &recordingSlot{name: "rec"}
	chain.AddRuleCheckSlot(&staticCheck{name: "ok", result: nil})
	chain.AddStatSlot(rec)

	ec := newChainContext(chain)
	r := chain.Entry(ec)
	assert.Equal(t, ResultAdmit, r.Status())
	assert.Equal(t, 1, rec.passed)

	ec.Entry.Exit()
	assert.Equal(t, 1, rec.done)
	assert.Equal(t, int64(40), ec.RtMs())
}

func TestSlotChain_BlockStopsPipeline(t *testing.T) {
	chain := NewSlotChain()
	rec := &recordingSlot{name: "rec"}
	blocker := &staticCheck{name: "deny", result: Block(NewBlockError(BlockTypeFlow, "r", nil))}
	after := &staticCheck{name: "after"}
	chain.AddRuleCheckSlot(blocker)
	chain.AddRuleCheckSlot(after)
	chain.AddStatSlot(rec)

	ec := newChainContext(chain)
	r := chain.Entry(ec)
	require.True(t, r.IsBlocked())
	assert.Equal(t, 0, after.calls, "downstream checkers never see a blocked attempt")
	assert.Equal(t, 1, rec.blocked)

	// Exit on a blocked context does not fire completion observers.
	ec.Entry.Exit()
	assert.Equal(t, 0, rec.done)
}

func TestSlotChain_AdmitAfterSkipsRemainingCheckers(t *testing.T) {
	chain := NewSlotChain()
	rec := &recordingSlot{name: "rec"}
	chain.AddRuleCheckSlot(&staticCheck{name: "wait", result: AdmitAfter(120)})
	after := &staticCheck{name: "after"}
	chain.AddRuleCheckSlot(after)
	chain.AddStatSlot(rec)

	ec := newChainContext(chain)
	r := chain.Entry(ec)
	assert.Equal(t, ResultAdmitAfter, r.Status())
	assert.Equal(t, int64(120), r.WaitMs())
	assert.Equal(t, 0, after.calls)
	assert.Equal(t, 1, rec.passed)
}

func TestEntry_LifoUnwindOnMismatchedExit(t *testing.T) {
	chain := NewSlotChain()
	ctx := NewContext("test", "", nil)

	outer, _ := NewEntry(NewResource("outer", Outbound), ctx, chain, 1, false, nil, 0, func() int64 { return 0 })
	inner, _ := NewEntry(NewResource("inner", Outbound), ctx, chain, 1, false, nil, 0, func() int64 { return 0 })
	require.Same(t, inner, ctx.CurEntry())

	outer.Exit()
	assert.Nil(t, ctx.CurEntry())
	inner.Exit() // already unwound, must be a no-op
	assert.Nil(t, ctx.CurEntry())
}
