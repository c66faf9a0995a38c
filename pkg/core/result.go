package core

// ResultStatus is the outcome of one checker stage.
type ResultStatus int32

const (
	// ResultAdmit lets the call through immediately.
	ResultAdmit ResultStatus = iota
	// ResultAdmitAfter lets the call through after the caller already waited
	// for borrowed future capacity. Statistics count it as pass but not as a
	// live thread.
	ResultAdmitAfter
	// ResultBlock denies the call with a typed block error.
	ResultBlock
)

// Result replaces exception-driven control flow with an explicit admission
// variant. A checker returns exactly one of the three states.
type Result struct {
	status ResultStatus
	waitMs int64
	err    *BlockError
}

var admitted = &Result{status: ResultAdmit}

func Admit() *Result { return admitted }

func AdmitAfter(waitMs int64) *Result {
	return &Result{status: ResultAdmitAfter, waitMs: waitMs}
}

func Block(err *BlockError) *Result {
	return &Result{status: ResultBlock, err: err}
}

func (r *Result) Status() ResultStatus { return r.status }
func (r *Result) WaitMs() int64        { return r.waitMs }
func (r *Result) BlockError() *BlockError {
	return r.err
}

func (r *Result) IsBlocked() bool { return r.status == ResultBlock }
