package node

import (
	"sync"
	"sync/atomic"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/core"
)

// ClusterNode is the process-global aggregate of one resource across every
// context, plus a lazily-built statistic node per distinct caller origin.
type ClusterNode struct {
	*StatisticNode

	resourceName string

	// originNodes is copy-on-write: reads are a single atomic load, misses
	// take the lock, re-check and republish the whole map.
	originNodes atomic.Pointer[map[string]*StatisticNode]
	originMu    sync.Mutex
}

func NewClusterNode(clk clock.Clock, resourceName string, sampleCount int, intervalMs int64) *ClusterNode {
	c := &ClusterNode{
		StatisticNode: NewStatisticNode(clk, sampleCount, intervalMs),
		resourceName:  resourceName,
	}
	empty := make(map[string]*StatisticNode)
	c.originNodes.Store(&empty)
	return c
}

func (c *ClusterNode) ResourceName() string { return c.resourceName }

// GetOrCreateOriginNode yields the statistic node tracking one caller app.
func (c *ClusterNode) GetOrCreateOriginNode(origin string) *StatisticNode {
	if origin == "" {
		return nil
	}
	if n, ok := (*c.originNodes.Load())[origin]; ok {
		return n
	}
	c.originMu.Lock()
	defer c.originMu.Unlock()
	cur := *c.originNodes.Load()
	if n, ok := cur[origin]; ok {
		return n
	}
	next := make(map[string]*StatisticNode, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	n := NewStatisticNode(c.clk, c.sampleCount, c.intervalMs)
	next[origin] = n
	c.originNodes.Store(&next)
	return n
}

// OriginNode returns the node for origin without creating it.
func (c *ClusterNode) OriginNode(origin string) *StatisticNode {
	return (*c.originNodes.Load())[origin]
}

// TraceException records a business error against this resource.
func (c *ClusterNode) TraceException(count int64) {
	c.IncreaseExceptionQps(count)
}

var _ core.StatNode = (*ClusterNode)(nil)
