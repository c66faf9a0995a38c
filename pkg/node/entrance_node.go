package node

import (
	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/core"
)

// EntranceNode is a DefaultNode in aggregator mode: its reads sum over the
// immediate children instead of its own counters, so an entry point reports
// the traffic of everything invoked beneath it.
type EntranceNode struct {
	*DefaultNode
}

func NewEntranceNode(clk clock.Clock, contextName string, sampleCount int, intervalMs int64) *EntranceNode {
	return &EntranceNode{
		DefaultNode: NewDefaultNode(clk, contextName, nil, sampleCount, intervalMs),
	}
}

// AvgRt is the pass-qps-weighted mean of the children's averages.
func (e *EntranceNode) AvgRt() float64 {
	var total, totalQps float64
	for _, c := range e.Children() {
		total += c.AvgRt() * c.PassQps()
		totalQps += c.PassQps()
	}
	if totalQps == 0 {
		totalQps = 1
	}
	return total / totalQps
}

func (e *EntranceNode) PassQps() float64 {
	var r float64
	for _, c := range e.Children() {
		r += c.PassQps()
	}
	return r
}

func (e *EntranceNode) BlockQps() float64 {
	var r float64
	for _, c := range e.Children() {
		r += c.BlockQps()
	}
	return r
}

func (e *EntranceNode) TotalQps() float64 {
	var r float64
	for _, c := range e.Children() {
		r += c.TotalQps()
	}
	return r
}

func (e *EntranceNode) SuccessQps() float64 {
	var r float64
	for _, c := range e.Children() {
		r += c.SuccessQps()
	}
	return r
}

func (e *EntranceNode) ExceptionQps() float64 {
	var r float64
	for _, c := range e.Children() {
		r += c.ExceptionQps()
	}
	return r
}

func (e *EntranceNode) CurThreadNum() int64 {
	var r int64
	for _, c := range e.Children() {
		r += c.CurThreadNum()
	}
	return r
}

func (e *EntranceNode) TotalPass() int64 {
	var r int64
	for _, c := range e.Children() {
		r += c.TotalPass()
	}
	return r
}

func (e *EntranceNode) TotalBlock() int64 {
	var r int64
	for _, c := range e.Children() {
		r += c.TotalBlock()
	}
	return r
}

func (e *EntranceNode) TotalRequest() int64 { return e.TotalPass() + e.TotalBlock() }

func (e *EntranceNode) TotalSuccess() int64 {
	var r int64
	for _, c := range e.Children() {
		r += c.TotalSuccess()
	}
	return r
}

func (e *EntranceNode) TotalException() int64 {
	var r int64
	for _, c := range e.Children() {
		r += c.TotalException()
	}
	return r
}

var _ core.StatNode = (*EntranceNode)(nil)
