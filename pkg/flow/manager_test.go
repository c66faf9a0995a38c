package flow

import (
	"testing"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadAndGet(t *testing.T) {
	m := NewManager(clock.NewMock(10_000))

	require.NoError(t, m.LoadRules([]*Rule{
		{Resource: "a", LimitApp: "default", Grade: QPS, Count: 10},
		{Resource: "a", LimitApp: "app1", Grade: QPS, Count: 5},
		{Resource: "b", LimitApp: "default", Grade: Concurrency, Count: 3},
	}))
	assert.Len(t, m.GetRules(), 3)
	assert.Len(t, m.rulesFor("a"), 2)
	assert.Len(t, m.rulesFor("c"), 0)
}

func TestManager_InvalidRuleRejectsWholeSet(t *testing.T) {
	m := NewManager(clock.NewMock(10_000))
	require.NoError(t, m.LoadRules([]*Rule{
		{Resource: "a", LimitApp: "default", Grade: QPS, Count: 10},
	}))

	err := m.LoadRules([]*Rule{
		{Resource: "b", LimitApp: "default", Grade: QPS, Count: 1},
		{Resource: "", LimitApp: "default", Grade: QPS, Count: 1},
	})
	require.Error(t, err)

	// The previous set stays active.
	rules := m.GetRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "a", rules[0].Resource)
}

func TestManager_DuplicateClusterFlowIdsRejected(t *testing.T) {
	m := NewManager(clock.NewMock(10_000))
	err := m.LoadRules([]*Rule{
		{Resource: "a", LimitApp: "default", Grade: QPS, Count: 10, ClusterMode: true, ClusterFlowID: 7},
		{Resource: "b", LimitApp: "default", Grade: QPS, Count: 10, ClusterMode: true, ClusterFlowID: 7},
	})
	assert.Error(t, err)
}

func TestManager_OnChangeNotified(t *testing.T) {
	m := NewManager(clock.NewMock(10_000))
	var got int
	m.OnChange(func(rules []*Rule) { got = len(rules) })

	require.NoError(t, m.LoadRules([]*Rule{
		{Resource: "a", LimitApp: "default", Grade: QPS, Count: 10},
	}))
	assert.Equal(t, 1, got)
}

func TestManager_IsOtherOrigin(t *testing.T) {
	m := NewManager(clock.NewMock(10_000))
	require.NoError(t, m.LoadRules([]*Rule{
		{Resource: "a", LimitApp: "app1", Grade: QPS, Count: 10},
		{Resource: "a", LimitApp: "default", Grade: QPS, Count: 100},
	}))

	assert.False(t, m.IsOtherOrigin("app1", "a"))
	assert.True(t, m.IsOtherOrigin("app2", "a"))
	assert.False(t, m.IsOtherOrigin("", "a"))
}

func TestRule_ValidateStrategyNeedsRef(t *testing.T) {
	r := &Rule{Resource: "a", LimitApp: "default", Grade: QPS, Count: 1, Strategy: Relate}
	assert.Error(t, r.validate())
	r.RefResource = "b"
	assert.NoError(t, r.validate())
}
