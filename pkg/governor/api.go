package governor

import (
	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/rs/zerolog/log"
)

// DefaultContextName scopes entries made without an explicit context.
const DefaultContextName = "default_context"

type entryOptions struct {
	entryType   core.EntryType
	count       int64
	prioritized bool
	args        []any
}

// EntryOption tunes one admission attempt.
type EntryOption func(*entryOptions)

// WithEntryType marks the resource inbound or outbound.
func WithEntryType(t core.EntryType) EntryOption {
	return func(o *entryOptions) { o.entryType = t }
}

// WithCount acquires n permits at once.
func WithCount(n int64) EntryOption {
	return func(o *entryOptions) { o.count = n }
}

// WithArgs passes the invocation arguments hot-parameter rules inspect.
func WithArgs(args ...any) EntryOption {
	return func(o *entryOptions) { o.args = args }
}

// WithPriority lets the attempt borrow future window capacity instead of
// being rejected at the threshold.
func WithPriority() EntryOption {
	return func(o *entryOptions) { o.prioritized = true }
}

// EnterContext opens (or re-enters) a named invocation context. The same
// name always maps onto the same entrance node, across goroutines.
func (g *Governor) EnterContext(name, origin string) *core.Context {
	if name == "" {
		name = DefaultContextName
	}
	return core.NewContext(name, origin, g.tree.GetOrCreateEntranceNode(name))
}

// ExitContext releases an invocation context. Entries still open at this
// point are a caller bug: they are logged and unwound best-effort so no
// thread counter stays stuck.
func (g *Governor) ExitContext(ctx *core.Context) {
	if ctx == nil {
		return
	}
	if e := ctx.CurEntry(); e != nil {
		log.Error().
			Str("context", ctx.Name()).
			Str("resource", e.Resource().Name()).
			Msg("[governor] context exited with live entries, unwinding")
		for ctx.CurEntry() != nil {
			ctx.CurEntry().Exit()
		}
	}
}

// Entry attempts to acquire the named resource inside ctx. On denial the
// returned *core.BlockError carries the rule that fired; on success the
// caller must Exit the returned entry.
func (g *Governor) Entry(ctx *core.Context, resource string, opts ...EntryOption) (*core.Entry, *core.BlockError) {
	o := &entryOptions{entryType: core.Outbound, count: 1}
	for _, apply := range opts {
		apply(o)
	}
	if ctx == nil {
		ctx = g.EnterContext(DefaultContextName, "")
	}

	res := core.NewResource(resource, o.entryType)
	now := g.clk.CurrentTimeMillis()
	e, ec := core.NewEntry(res, ctx, g.chain, o.count, o.prioritized, o.args, now, g.clk.CurrentTimeMillis)

	r := g.chain.Entry(ec)
	if r.IsBlocked() {
		e.Exit()
		return nil, r.BlockError()
	}
	return e, nil
}

// EntryWithPriority is Entry with the prioritized flag set.
func (g *Governor) EntryWithPriority(ctx *core.Context, resource string, opts ...EntryOption) (*core.Entry, *core.BlockError) {
	return g.Entry(ctx, resource, append(opts, WithPriority())...)
}
