package mission

import (
	"mobilepilot/agent"
	"mobilepilot/device"
	"mobilepilot/planner"
)

// Observation is what a progress predicate may look at after a round.
type Observation struct {
	Stage planner.Stage
	// Action is nil when the oracle produced nothing usable.
	Action *agent.Action
	// Executed is true when the action reached the device without error.
	Executed bool
	Forced   bool
	// Foreground is the app bundle id seen after the action (gating stages)
	// or at capture time (other stages).
	Foreground string
	BundleID   string
	// InItemView is the belief held before this round's action.
	InItemView bool
}

func (o Observation) did(kind agent.ActionKind) bool {
	return o.Executed && o.Action != nil && o.Action.Kind == kind
}

// Predicate decides whether a round advanced its stage.
type Predicate func(Observation) bool

// Predicates maps each stage to its progress test. Stages without an entry
// never progress.
type Predicates map[planner.Stage]Predicate

// DefaultPredicates are the mail-run heuristics.
func DefaultPredicates() Predicates {
	return Predicates{
		planner.StageOpenApp: func(o Observation) bool {
			return device.IsApp(o.Foreground, o.BundleID)
		},
		planner.StageEnterList: func(o Observation) bool {
			return o.Executed && device.IsApp(o.Foreground, o.BundleID)
		},
		planner.StageSelectItems: func(Observation) bool {
			return true
		},
		planner.StageOpenItem: func(o Observation) bool {
			return !o.Forced && o.did(agent.ActionTap)
		},
		planner.StageViewItem: func(o Observation) bool {
			return o.Executed
		},
		// The back control may be a nav-bar element, so any executed gesture
		// counts, not just back().
		planner.StageReturnToList: func(o Observation) bool {
			return o.Executed
		},
	}
}

// Progress evaluates the predicate for o.Stage.
func (p Predicates) Progress(o Observation) bool {
	if fn, ok := p[o.Stage]; ok && fn != nil {
		return fn(o)
	}
	return false
}

// nextItemView updates the runner's belief that an item is open.
func nextItemView(o Observation) bool {
	switch {
	case o.did(agent.ActionBack):
		return false
	case o.Stage == planner.StageReturnToList && o.Executed:
		return false
	case o.Stage == planner.StageOpenItem && !o.Forced && o.did(agent.ActionTap):
		return true
	}
	return o.InItemView
}
