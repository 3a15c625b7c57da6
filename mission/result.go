package mission

import (
	"fmt"
	"time"

	"mobilepilot/planner"
)

// Reason is why a run ended.
type Reason string

const (
	ReasonTargetReached      Reason = "target-reached"
	ReasonMaxRounds          Reason = "max-rounds"
	ReasonStageTimeout       Reason = "stage-timeout"
	ReasonCycleTimeout       Reason = "cycle-timeout"
	ReasonNoProgress         Reason = "no-progress"
	ReasonModelFinished      Reason = "model-finished"
	ReasonCaptureUnavailable Reason = "capture-unavailable"
	ReasonCancelled          Reason = "cancelled"
	ReasonInternal           Reason = "internal-error"
)

// Fatal reports whether the reason is an abort rather than a normal or early stop.
func (r Reason) Fatal() bool {
	switch r {
	case ReasonTargetReached, ReasonMaxRounds, ReasonCycleTimeout, ReasonNoProgress, ReasonModelFinished:
		return false
	}
	return true
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Reason    Reason
	Fatal     bool
	Rounds    int
	Completed int
	Target    int
	Stage     planner.Stage
	Err       error
	TraceDir  string
	Duration  time.Duration
}

// Partial reports a successful run that stopped before the target.
func (r *Result) Partial() bool {
	return !r.Fatal && r.Completed < r.Target
}

// Note is the one-line outcome shown to users.
func (r *Result) Note() string {
	switch {
	case r.Fatal:
		return fmt.Sprintf("aborted (%s) after %d round(s): completed %d of %d", r.Reason, r.Rounds, r.Completed, r.Target)
	case r.Partial():
		return fmt.Sprintf("stopped early (%s): completed %d of %d", r.Reason, r.Completed, r.Target)
	}
	return fmt.Sprintf("%s: completed %d of %d in %d round(s)", r.Reason, r.Completed, r.Target, r.Rounds)
}
