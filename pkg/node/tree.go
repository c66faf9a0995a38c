package node

import (
	"sync"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"
)

const treeShards = 32

// Tree owns every node of the process: the sharded resource → ClusterNode
// registry, the per-context entrance nodes under one root, and the
// per-(context, resource) DefaultNode cache the selector fills. It is an
// explicit handle rather than package globals so tests build fresh trees.
type Tree struct {
	clk         clock.Clock
	sampleCount int
	intervalMs  int64

	root *EntranceNode

	clusterShards [treeShards]clusterShard
	defaultShards [treeShards]defaultShard

	entranceMu sync.Mutex
	entrances  map[string]*EntranceNode

	globalIn *ClusterNode
}

type clusterShard struct {
	mu sync.RWMutex
	m  map[string]*ClusterNode
}

type defaultShard struct {
	mu sync.RWMutex
	m  map[string]*DefaultNode
}

func NewTree(clk clock.Clock, cfg *config.Governor) *Tree {
	if clk == nil {
		clk = clock.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	t := &Tree{
		clk:         clk,
		sampleCount: cfg.Governor.Stat.SampleCount,
		intervalMs:  cfg.Governor.Stat.IntervalMs,
		entrances:   make(map[string]*EntranceNode),
	}
	for i := range t.clusterShards {
		t.clusterShards[i].m = make(map[string]*ClusterNode)
	}
	for i := range t.defaultShards {
		t.defaultShards[i].m = make(map[string]*DefaultNode)
	}
	t.root = NewEntranceNode(clk, "machine-root", t.sampleCount, t.intervalMs)
	t.globalIn = NewClusterNode(clk, "__global_inbound__", t.sampleCount, t.intervalMs)
	SetOccupyTimeoutMs(cfg.Governor.Flow.OccupyTimeoutMs)
	return t
}

// GlobalInbound aggregates every inbound resource; system protection reads it.
func (t *Tree) GlobalInbound() *ClusterNode { return t.globalIn }

func shardIdx(key string) uint64 { return xxh3.HashString(key) % treeShards }

// GetClusterNode returns the global aggregate for resource, nil when the
// resource has never been entered.
func (t *Tree) GetClusterNode(resource string) *ClusterNode {
	s := &t.clusterShards[shardIdx(resource)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[resource]
}

// GetOrCreateClusterNode resolves or installs the resource's ClusterNode.
func (t *Tree) GetOrCreateClusterNode(resource string) *ClusterNode {
	s := &t.clusterShards[shardIdx(resource)]
	s.mu.RLock()
	n := s.m[resource]
	s.mu.RUnlock()
	if n != nil {
		return n
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n = s.m[resource]; n != nil {
		return n
	}
	n = NewClusterNode(t.clk, resource, t.sampleCount, t.intervalMs)
	s.m[resource] = n
	return n
}

// ClusterNodes snapshots the registry for the metric log and the stats API.
func (t *Tree) ClusterNodes() []*ClusterNode {
	var out []*ClusterNode
	for i := range t.clusterShards {
		s := &t.clusterShards[i]
		s.mu.RLock()
		for _, n := range s.m {
			out = append(out, n)
		}
		s.mu.RUnlock()
	}
	return out
}

// ResetClusterNodes zeroes every cluster node's metrics, an administrative
// operation; live thread counters are preserved.
func (t *Tree) ResetClusterNodes() {
	for _, n := range t.ClusterNodes() {
		n.Reset()
	}
	log.Info().Msg("[node-tree] cluster node metrics were reset")
}

// Root is the process-wide entrance node all context entrances hang off.
func (t *Tree) Root() *EntranceNode { return t.root }

// GetOrCreateEntranceNode returns the entrance node for a context name,
// attaching a new one under root on first sight.
func (t *Tree) GetOrCreateEntranceNode(contextName string) *EntranceNode {
	t.entranceMu.Lock()
	defer t.entranceMu.Unlock()
	if n, ok := t.entrances[contextName]; ok {
		return n
	}
	n := NewEntranceNode(t.clk, contextName, t.sampleCount, t.intervalMs)
	t.entrances[contextName] = n
	t.root.AddChild(n.DefaultNode)
	return n
}

// GetOrCreateDefaultNode resolves the per-(context, resource) node.
func (t *Tree) GetOrCreateDefaultNode(contextName, resource string) *DefaultNode {
	key := contextName + "|" + resource
	s := &t.defaultShards[shardIdx(key)]
	s.mu.RLock()
	n := s.m[key]
	s.mu.RUnlock()
	if n != nil {
		return n
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n = s.m[key]; n != nil {
		return n
	}
	n = NewDefaultNode(t.clk, resource, nil, t.sampleCount, t.intervalMs)
	s.m[key] = n
	return n
}

func (t *Tree) Clock() clock.Clock { return t.clk }
func (t *Tree) SampleCount() int   { return t.sampleCount }
func (t *Tree) IntervalMs() int64  { return t.intervalMs }
