package mission

import (
	"errors"
	"fmt"

	"mobilepilot/planner"
)

// FaultKind labels a fault in the trace.
type FaultKind string

const (
	FaultTransport    FaultKind = "transport"
	FaultModel        FaultKind = "model"
	FaultAction       FaultKind = "action"
	FaultStageTimeout FaultKind = "stage_timeout"
	FaultCapture      FaultKind = "capture"
)

// Fault is implemented by every runner fault type.
type Fault interface {
	error
	Kind() FaultKind
	RoundIndex() int
	StageAt() planner.Stage
}

type faultBase struct {
	Round int
	Stage planner.Stage
	Err   error
}

func (f *faultBase) RoundIndex() int        { return f.Round }
func (f *faultBase) StageAt() planner.Stage { return f.Stage }
func (f *faultBase) Unwrap() error          { return f.Err }

func (f *faultBase) describe(what string) string {
	if f.Err == nil {
		return fmt.Sprintf("round %d (%s): %s", f.Round, f.Stage, what)
	}
	return fmt.Sprintf("round %d (%s): %s: %v", f.Round, f.Stage, what, f.Err)
}

// TransportFault is an unreachable or timed-out gateway call outside capture.
type TransportFault struct {
	faultBase
	Op string
}

func (f *TransportFault) Error() string   { return f.describe("transport failure on " + f.Op) }
func (f *TransportFault) Kind() FaultKind { return FaultTransport }

// ModelFault is an oracle error, an unparsable reply, or an ignored finish.
type ModelFault struct {
	faultBase
	Raw string
}

func (f *ModelFault) Error() string   { return f.describe("model fault") }
func (f *ModelFault) Kind() FaultKind { return FaultModel }

// ActionFault is a device refusing or failing the proposed action.
type ActionFault struct {
	faultBase
	Action string
}

func (f *ActionFault) Error() string   { return f.describe("action " + f.Action + " failed") }
func (f *ActionFault) Kind() FaultKind { return FaultAction }

// StageTimeoutFault is a stage exhausting its round budget.
type StageTimeoutFault struct {
	faultBase
	Rounds    int
	Threshold int
}

func (f *StageTimeoutFault) Error() string {
	return f.describe(fmt.Sprintf("no progress for %d rounds (limit %d)", f.Rounds, f.Threshold))
}
func (f *StageTimeoutFault) Kind() FaultKind { return FaultStageTimeout }

// Fatal reports whether the timeout aborts the run.
func (f *StageTimeoutFault) Fatal() bool { return f.Stage.IsGating() }

// CaptureFault is a screenshot that failed on every attempt.
type CaptureFault struct {
	faultBase
	Attempts int
}

func (f *CaptureFault) Error() string {
	return f.describe(fmt.Sprintf("screenshot unavailable after %d attempt(s)", f.Attempts))
}
func (f *CaptureFault) Kind() FaultKind { return FaultCapture }

// KindOf returns the fault kind of err, or "" when err carries no fault.
func KindOf(err error) FaultKind {
	var f Fault
	if errors.As(err, &f) {
		return f.Kind()
	}
	return ""
}
