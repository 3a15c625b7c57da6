// Package planner decides the next micro-instruction for the mail run.
// Stage, State and Next are pure; the mission runner owns the state and
// calls in once per round.
package planner

import (
	"fmt"
	"strings"
)

// Stage is a position in the run's state machine.
type Stage string

const (
	StageOpenApp      Stage = "open_app"
	StageEnterList    Stage = "enter_list"
	StageSelectItems  Stage = "select_items"
	StageOpenItem     Stage = "open_item"
	StageViewItem     Stage = "view_item"
	StageReturnToList Stage = "return_to_list"
	StageDone         Stage = "done"
)

// transitions holds each stage's successor on progress. ReturnToList loops
// back to OpenItem; the move to Done is decided by State.Advance.
var transitions = map[Stage]Stage{
	StageOpenApp:      StageEnterList,
	StageEnterList:    StageSelectItems,
	StageSelectItems:  StageOpenItem,
	StageOpenItem:     StageViewItem,
	StageViewItem:     StageReturnToList,
	StageReturnToList: StageOpenItem,
}

// Stages lists every stage in machine order.
func Stages() []Stage {
	return []Stage{
		StageOpenApp,
		StageEnterList,
		StageSelectItems,
		StageOpenItem,
		StageViewItem,
		StageReturnToList,
		StageDone,
	}
}

func (s Stage) String() string {
	return string(s)
}

// Successor returns the stage reached when s makes progress. Done is terminal.
func (s Stage) Successor() Stage {
	if next, ok := transitions[s]; ok {
		return next
	}
	return StageDone
}

// IsGating reports whether a timeout in s aborts the run.
func (s Stage) IsGating() bool {
	return s == StageOpenApp || s == StageEnterList
}

// InCycle reports whether s belongs to the open/view/return sub-cycle.
func (s Stage) InCycle() bool {
	switch s {
	case StageOpenItem, StageViewItem, StageReturnToList:
		return true
	}
	return false
}

func (s Stage) Valid() bool {
	_, ok := transitions[s]
	return ok || s == StageDone
}

// ParseStage accepts the snake_case names used in traces and config.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown stage %q", s)
	}
	return st, nil
}

// Thresholds are the per-stage round limits before a stage times out.
type Thresholds struct {
	OpenApp   int
	EnterList int
	Cycle     int
}

func DefaultThresholds() Thresholds {
	return Thresholds{OpenApp: 10, EnterList: 6, Cycle: 8}
}

// For returns the limit for s; zero means the stage never times out.
func (t Thresholds) For(s Stage) int {
	switch {
	case s == StageOpenApp:
		return t.OpenApp
	case s == StageEnterList:
		return t.EnterList
	case s.InCycle():
		return t.Cycle
	}
	return 0
}
