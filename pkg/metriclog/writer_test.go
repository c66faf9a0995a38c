package metriclog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_FlushWritesCompletedSeconds(t *testing.T) {
	clk := clock.NewMock(1_700_000_000_000)
	tree := node.NewTree(clk, nil)
	dir := t.TempDir()

	cn := tree.GetOrCreateClusterNode("R")
	cn.AddPassRequest(5)
	cn.IncreaseBlockQps(2)
	cn.AddRtAndSuccess(40, 4)

	// Move past the second so the bucket is complete.
	clk.Advance(2 * time.Second)

	w := NewWriter(tree, clk, config.MetricLog{
		Dir:             dir,
		MaxFileBytes:    1 << 20,
		FlushIntervalMs: 1000,
	})
	w.Flush()
	w.close()

	data, err := os.ReadFile(filepath.Join(dir, "governor-metrics.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	fields := strings.Split(lines[0], "|")
	require.Len(t, fields, 10)
	assert.Equal(t, "1700000000000", fields[0])
	assert.Equal(t, "R", fields[2])
	assert.Equal(t, "5", fields[3]) // pass
	assert.Equal(t, "2", fields[4]) // block
	assert.Equal(t, "4", fields[5]) // success
	assert.Equal(t, "40", fields[7]) // rt
}

func TestWriter_SkipsQuietSecondsAndDeduplicates(t *testing.T) {
	clk := clock.NewMock(1_700_000_000_000)
	tree := node.NewTree(clk, nil)
	dir := t.TempDir()

	cn := tree.GetOrCreateClusterNode("R")
	cn.AddPassRequest(1)
	clk.Advance(2 * time.Second)

	w := NewWriter(tree, clk, config.MetricLog{
		Dir:             dir,
		MaxFileBytes:    1 << 20,
		FlushIntervalMs: 1000,
	})
	w.Flush()
	// A second flush with no fresh traffic writes nothing new.
	w.Flush()
	w.close()

	data, err := os.ReadFile(filepath.Join(dir, "governor-metrics.log"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 1)
}
