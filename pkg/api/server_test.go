package api

import (
	"encoding/json"
	"testing"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/governor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestServer_StatsSnapshot(t *testing.T) {
	gov := governor.New(governor.WithClock(clock.NewMock(100_000)))
	ctx := gov.EnterContext("web", "")
	for i := 0; i < 3; i++ {
		e, err := gov.Entry(ctx, "R")
		require.Nil(t, err)
		e.Exit()
	}

	s := NewServer(gov, "0")
	var rctx fasthttp.RequestCtx
	s.handleStats(&rctx)

	var out []resourceStats
	require.NoError(t, json.Unmarshal(rctx.Response.Body(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "R", out[0].Resource)
	assert.Equal(t, int64(3), out[0].TotalPass)
}

func TestServer_ResetZeroesClusterMetrics(t *testing.T) {
	gov := governor.New(governor.WithClock(clock.NewMock(100_000)))
	ctx := gov.EnterContext("web", "")
	e, err := gov.Entry(ctx, "R")
	require.Nil(t, err)
	e.Exit()

	s := NewServer(gov, "0")
	var rctx fasthttp.RequestCtx
	s.handleReset(&rctx)
	assert.Equal(t, fasthttp.StatusNoContent, rctx.Response.StatusCode())
	assert.Equal(t, int64(0), gov.Tree().GetClusterNode("R").TotalPass())
}
