package metrics

import (
	"sync"

	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/VictoriaMetrics/metrics"
)

// Meter exports admission outcomes as VictoriaMetrics series. It plugs into
// the slot chain as an extra outcome observer.
type Meter struct{}

func NewMeter() *Meter { return &Meter{} }

func (m *Meter) Name() string { return "metrics-meter" }

var bufPool = sync.Pool{New: func() any { b := make([]byte, 0, 128); return &b }}

func getBuf() *[]byte  { return bufPool.Get().(*[]byte) }
func putBuf(b *[]byte) { *b = (*b)[:0]; bufPool.Put(b) }

func counterName(buf *[]byte, name, resource string, extra ...string) string {
	*buf = append(*buf, name...)
	*buf = append(*buf, `{resource="`...)
	*buf = append(*buf, resource...)
	*buf = append(*buf, '"')
	for i := 0; i+1 < len(extra); i += 2 {
		*buf = append(*buf, ',')
		*buf = append(*buf, extra[i]...)
		*buf = append(*buf, `="`...)
		*buf = append(*buf, extra[i+1]...)
		*buf = append(*buf, '"')
	}
	*buf = append(*buf, '}')
	return string(*buf)
}

func (m *Meter) OnEntryPassed(ctx *core.EntryContext) {
	buf := getBuf()
	defer putBuf(buf)
	metrics.GetOrCreateCounter(counterName(buf, "traffic_governor_pass_total", ctx.Resource.Name())).
		Add(int(ctx.Count))
}

func (m *Meter) OnEntryBlocked(ctx *core.EntryContext, blockErr *core.BlockError) {
	buf := getBuf()
	defer putBuf(buf)
	metrics.GetOrCreateCounter(counterName(buf, "traffic_governor_block_total", ctx.Resource.Name(),
		"rule", blockErr.BlockType().String())).
		Add(int(ctx.Count))
}

func (m *Meter) OnCompleted(ctx *core.EntryContext) {
	buf := getBuf()
	defer putBuf(buf)
	metrics.GetOrCreateSummary(counterName(buf, "traffic_governor_rt_ms", ctx.Resource.Name())).
		Update(float64(ctx.RtMs()))
}
