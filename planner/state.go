package planner

import "fmt"

// State is the progress bookkeeping for one run. The runner owns it and
// hands copies to the planner.
type State struct {
	Stage               Stage `json:"stage"`
	RoundsInStage       int   `json:"rounds_in_stage"`
	RoundsSinceProgress int   `json:"rounds_since_progress"`
	Completed           int   `json:"completed"`
	Target              int   `json:"target"`
}

// NewState starts a run at OpenApp.
func NewState(target int) State {
	return State{Stage: StageOpenApp, Target: target}
}

// TargetReached reports whether enough items have been viewed.
func (s State) TargetReached() bool {
	return s.Target > 0 && s.Completed >= s.Target
}

// Advance applies one round's verdict and returns the new state.
//
// On progress the stage counter resets and the stage moves to its successor;
// leaving ViewItem counts one completed item. Once the target is reached the
// next stage is Done. Without progress both counters grow.
//
// RoundsSinceProgress spans the open/view/return sub-cycle: inside it only
// opening an item resets it.
func (s State) Advance(progress bool) State {
	if s.Stage == StageDone {
		return s
	}
	if !progress {
		s.RoundsInStage++
		s.RoundsSinceProgress++
		return s
	}

	if s.Stage == StageViewItem {
		s.Completed++
	}
	if !s.Stage.InCycle() || s.Stage == StageOpenItem {
		s.RoundsSinceProgress = 0
	}
	s.Stage = s.Stage.Successor()
	if s.TargetReached() {
		s.Stage = StageDone
	}
	s.RoundsInStage = 0
	return s
}

// ProgressLine is the short status sentence put in front of every instruction.
func (s State) ProgressLine() string {
	if s.Completed == 0 {
		return ""
	}
	return fmt.Sprintf("Progress: You have already opened %d email(s). ", s.Completed)
}
