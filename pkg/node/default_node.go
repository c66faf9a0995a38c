package node

import (
	"sync"
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/core"
)

// DefaultNode tracks one resource inside one context. Its children are the
// resources entered while this one was the active entry, forming the
// invocation tree under the context's entrance node.
type DefaultNode struct {
	*StatisticNode

	resourceName string
	clusterNode  *ClusterNode

	children atomic.Pointer[[]*DefaultNode]
	childMu  sync.Mutex
}

func NewDefaultNode(clk clock.Clock, resourceName string, clusterNode *ClusterNode, sampleCount int, intervalMs int64) *DefaultNode {
	d := &DefaultNode{
		StatisticNode: NewStatisticNode(clk, sampleCount, intervalMs),
		resourceName:  resourceName,
		clusterNode:   clusterNode,
	}
	empty := make([]*DefaultNode, 0)
	d.children.Store(&empty)
	return d
}

func (d *DefaultNode) ResourceName() string      { return d.resourceName }
func (d *DefaultNode) ClusterNode() *ClusterNode { return d.clusterNode }

func (d *DefaultNode) SetClusterNode(c *ClusterNode) { d.clusterNode = c }

// Children snapshots the child list.
func (d *DefaultNode) Children() []*DefaultNode { return *d.children.Load() }

// AddChild links a child node once; duplicates are ignored.
func (d *DefaultNode) AddChild(child *DefaultNode) {
	if child == nil {
		return
	}
	for _, c := range d.Children() {
		if c == child {
			return
		}
	}
	d.childMu.Lock()
	defer d.childMu.Unlock()
	cur := *d.children.Load()
	for _, c := range cur {
		if c == child {
			return
		}
	}
	next := make([]*DefaultNode, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, child)
	d.children.Store(&next)
}

var _ core.StatNode = (*DefaultNode)(nil)
