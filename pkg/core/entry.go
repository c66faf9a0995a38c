package core

import (
	"github.com/rs/zerolog/log"
)

// Entry is one live resource acquisition inside a Context. Entries nest:
// the parent chain mirrors the invocation tree the node selector builds.
type Entry struct {
	res      *Resource
	createMs int64
	ctx      *Context
	entryCtx *EntryContext
	chain    *SlotChain

	curNode    StatNode // per-(context,resource) node
	originNode StatNode // origin statistic node, nil for anonymous callers

	parent *Entry
	exited bool

	nowFn func() int64
}

// NewEntry builds an entry nested under the context's current one and makes
// it current. nowMs stamps creation; nowFn supplies exit time for RT
// measurement.
func NewEntry(res *Resource, ctx *Context, chain *SlotChain, count int64, prioritized bool, args []any, nowMs int64, nowFn func() int64) (*Entry, *EntryContext) {
	e := &Entry{
		res:      res,
		createMs: nowMs,
		ctx:      ctx,
		chain:    chain,
		parent:   ctx.CurEntry(),
		nowFn:    nowFn,
	}
	e.entryCtx = NewEntryContext(res, ctx, e, count, prioritized, args, nowMs)
	ctx.setCurEntry(e)
	return e, e.entryCtx
}

func (e *Entry) Resource() *Resource  { return e.res }
func (e *Entry) Context() *Context    { return e.ctx }
func (e *Entry) CreateMs() int64      { return e.createMs }
func (e *Entry) CurNode() StatNode    { return e.curNode }
func (e *Entry) OriginNode() StatNode { return e.originNode }
func (e *Entry) Parent() *Entry       { return e.parent }

func (e *Entry) SetCurNode(n StatNode)    { e.curNode = n }
func (e *Entry) SetOriginNode(n StatNode) { e.originNode = n }

// AdmittedAfterMs reports how long the caller waited for borrowed capacity,
// 0 for a plain admission.
func (e *Entry) AdmittedAfterMs() int64 {
	if e.entryCtx == nil {
		return 0
	}
	return e.entryCtx.Result().WaitMs()
}

// SetError marks the invocation as failed before Exit; the statistic stage
// turns it into exception counters.
func (e *Entry) SetError(err error) {
	if e.entryCtx != nil {
		e.entryCtx.err = err
	}
}

// Exit unwinds this entry. Exits must mirror entries in LIFO order; a
// mismatch is a caller bug which is logged and repaired by unwinding down
// to this entry.
func (e *Entry) Exit() {
	if e == nil || e.exited {
		return
	}
	cur := e.ctx.CurEntry()
	if cur != e {
		log.Error().
			Str("resource", e.res.Name()).
			Str("context", e.ctx.Name()).
			Msg("[entry] out-of-order exit, unwinding to the offending entry")
		for cur != nil && cur != e {
			next := cur.parent
			cur.exitSelf()
			cur = next
		}
	}
	e.exitSelf()
}

func (e *Entry) exitSelf() {
	if e.exited {
		return
	}
	e.exited = true
	if e.entryCtx != nil && e.nowFn != nil {
		e.entryCtx.MarkExited(e.nowFn())
	}
	if e.chain != nil {
		e.chain.Exit(e.entryCtx)
	}
	e.ctx.setCurEntry(e.parent)
}
