package agent

import (
	"fmt"
	"strings"
)

// ActionKind names one of the functions the model may call.
type ActionKind string

const (
	ActionTap       ActionKind = "tap"
	ActionText      ActionKind = "text"
	ActionLongPress ActionKind = "long_press"
	ActionSwipe     ActionKind = "swipe"
	ActionBack      ActionKind = "back"
	ActionHome      ActionKind = "home"
	ActionWait      ActionKind = "wait"
	ActionFinish    ActionKind = "finish"
	ActionLaunch    ActionKind = "launch"
)

// Action is a parsed function call. Only the fields relevant to Kind are set.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Index     int        `json:"index,omitempty"`
	Text      string     `json:"text,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Distance  string     `json:"distance,omitempty"`
	Seconds   int        `json:"seconds,omitempty"`
	Message   string     `json:"message,omitempty"`
	App       string     `json:"app,omitempty"`
}

// String renders the action back into call syntax.
func (a Action) String() string {
	switch a.Kind {
	case ActionTap, ActionLongPress:
		return fmt.Sprintf("%s(%d)", a.Kind, a.Index)
	case ActionText:
		return fmt.Sprintf("text(%q)", a.Text)
	case ActionSwipe:
		return fmt.Sprintf("swipe(%d, %q, %q)", a.Index, a.Direction, a.Distance)
	case ActionWait:
		return fmt.Sprintf("wait(%d)", a.Seconds)
	case ActionFinish:
		return fmt.Sprintf("finish(%q)", a.Message)
	case ActionLaunch:
		return fmt.Sprintf("launch(%q)", a.App)
	default:
		return string(a.Kind) + "()"
	}
}

// IsGesture reports whether executing the action touches the device.
func (a Action) IsGesture() bool {
	switch a.Kind {
	case ActionWait, ActionFinish:
		return false
	}
	return true
}

var kindAliases = map[string]ActionKind{
	"tap":        ActionTap,
	"click":      ActionTap,
	"text":       ActionText,
	"type":       ActionText,
	"long_press": ActionLongPress,
	"longpress":  ActionLongPress,
	"swipe":      ActionSwipe,
	"back":       ActionBack,
	"home":       ActionHome,
	"wait":       ActionWait,
	"finish":     ActionFinish,
	"launch":     ActionLaunch,
}

func lookupKind(name string) (ActionKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}
