package core

import (
	stdctx "context"
)

// Context is one invocation scope: it names the entry point into the
// application, remembers the caller origin and tracks the stack of live
// entries. A Context is owned by a single goroutine; sharing one across
// goroutines is a caller bug.
type Context struct {
	name         string
	origin       string
	entranceNode StatNode
	curEntry     *Entry
}

func NewContext(name, origin string, entranceNode StatNode) *Context {
	return &Context{name: name, origin: origin, entranceNode: entranceNode}
}

func (c *Context) Name() string           { return c.name }
func (c *Context) Origin() string         { return c.origin }
func (c *Context) EntranceNode() StatNode { return c.entranceNode }
func (c *Context) CurEntry() *Entry       { return c.curEntry }

func (c *Context) setCurEntry(e *Entry) { c.curEntry = e }

type contextKey struct{}

// WithContext binds a governance Context into a standard context.Context so
// frameworks can thread it through middleware without explicit plumbing.
func WithContext(ctx stdctx.Context, gc *Context) stdctx.Context {
	return stdctx.WithValue(ctx, contextKey{}, gc)
}

// FromContext extracts a previously bound governance Context, nil when absent.
func FromContext(ctx stdctx.Context) *Context {
	gc, _ := ctx.Value(contextKey{}).(*Context)
	return gc
}
