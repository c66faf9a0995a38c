package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationClient(t *testing.T) *RedisTokenClient {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: redis not available (%v)", err)
	}

	resolve := func(flowID int64) (float64, int64, bool) {
		switch flowID {
		case 1:
			return 5, 5, true
		default:
			return 0, 0, false
		}
	}
	tc, err := NewRedisTokenClient(client, resolve)
	require.NoError(t, err)
	return tc
}

func TestRedisTokenClient_BudgetEnforced(t *testing.T) {
	tc := newIntegrationClient(t)

	admitted := 0
	for i := 0; i < 10; i++ {
		if tc.RequestToken(1, 1, false).Status == StatusOK {
			admitted++
		}
	}
	assert.LessOrEqual(t, admitted, 6)
	assert.Greater(t, admitted, 0)
}

func TestRedisTokenClient_UnknownFlowId(t *testing.T) {
	tc := newIntegrationClient(t)
	assert.Equal(t, StatusNoRuleExists, tc.RequestToken(99, 1, false).Status)
}

func TestRedisTokenClient_BadRequest(t *testing.T) {
	tc := newIntegrationClient(t)
	assert.Equal(t, StatusBadRequest, tc.RequestToken(1, 0, false).Status)
	assert.Equal(t, StatusBadRequest, tc.RequestParamToken(1, 1, nil).Status)
}
