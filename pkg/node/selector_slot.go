package node

import (
	"github.com/Borislavv/traffic-governor/pkg/core"
)

// NodeSelectorSlot resolves the DefaultNode of the attempt and hangs it into
// the invocation tree: under the parent entry's node when nested, under the
// context's entrance node when outermost.
type NodeSelectorSlot struct {
	tree *Tree
}

func NewNodeSelectorSlot(tree *Tree) *NodeSelectorSlot { return &NodeSelectorSlot{tree: tree} }

func (s *NodeSelectorSlot) Name() string { return "node-selector" }

func (s *NodeSelectorSlot) Prepare(ctx *core.EntryContext) {
	dn := s.tree.GetOrCreateDefaultNode(ctx.Context.Name(), ctx.Resource.Name())
	ctx.Entry.SetCurNode(dn)

	if parent := ctx.Entry.Parent(); parent != nil {
		if pn, ok := parent.CurNode().(*DefaultNode); ok {
			pn.AddChild(dn)
			return
		}
	}
	if en, ok := ctx.Context.EntranceNode().(*EntranceNode); ok {
		en.AddChild(dn)
	}
}

// ClusterBuilderSlot ensures the resource's global ClusterNode exists, binds
// it to the DefaultNode and resolves the caller-origin node when the origin
// is a named application.
type ClusterBuilderSlot struct {
	tree *Tree
}

func NewClusterBuilderSlot(tree *Tree) *ClusterBuilderSlot { return &ClusterBuilderSlot{tree: tree} }

func (s *ClusterBuilderSlot) Name() string { return "cluster-builder" }

func (s *ClusterBuilderSlot) Prepare(ctx *core.EntryContext) {
	dn, ok := ctx.Entry.CurNode().(*DefaultNode)
	if !ok {
		return
	}
	cn := s.tree.GetOrCreateClusterNode(ctx.Resource.Name())
	dn.SetClusterNode(cn)

	if origin := ctx.Origin(); origin != "" && origin != "default" {
		ctx.Entry.SetOriginNode(cn.GetOrCreateOriginNode(origin))
	}
}
