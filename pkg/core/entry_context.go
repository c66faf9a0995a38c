package core

// EntryContext carries one admission attempt through the slot chain and back
// out on exit.
type EntryContext struct {
	Resource    *Resource
	Count       int64
	Prioritized bool
	Args        []any

	Context *Context
	Entry   *Entry

	result  *Result
	startMs int64
	exitMs  int64
	err     error
}

func NewEntryContext(res *Resource, ctx *Context, e *Entry, count int64, prioritized bool, args []any, startMs int64) *EntryContext {
	return &EntryContext{
		Resource:    res,
		Count:       count,
		Prioritized: prioritized,
		Args:        args,
		Context:     ctx,
		Entry:       e,
		startMs:     startMs,
		result:      Admit(),
	}
}

func (c *EntryContext) Result() *Result      { return c.result }
func (c *EntryContext) SetResult(r *Result)  { c.result = r }
func (c *EntryContext) StartMs() int64       { return c.startMs }
func (c *EntryContext) Err() error           { return c.err }
func (c *EntryContext) Origin() string       { return c.Context.Origin() }
func (c *EntryContext) IsBlocked() bool      { return c.result != nil && c.result.IsBlocked() }
func (c *EntryContext) MarkExited(nowMs int64) {
	c.exitMs = nowMs
}

// RtMs is the measured response time, valid after MarkExited.
func (c *EntryContext) RtMs() int64 {
	if c.exitMs == 0 {
		return 0
	}
	return c.exitMs - c.startMs
}
