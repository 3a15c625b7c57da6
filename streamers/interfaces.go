package streamers

import "time"

// EventType names a run or analysis event on the wire and in the event store.
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventStageChanged      EventType = "stage_changed"
	EventRoundCompleted    EventType = "round_completed"
	EventRunFinished       EventType = "run_finished"
	EventAnalysisStarted   EventType = "analysis_started"
	EventItemAnalyzed      EventType = "item_analyzed"
	EventAnalysisCompleted EventType = "analysis_completed"
)

type RunStarted struct {
	RunID   string    `json:"run_id"`
	Task    string    `json:"task"`
	TaskDir string    `json:"task_dir"`
	Target  int       `json:"target"`
	Max     int       `json:"max_rounds"`
	At      time.Time `json:"at"`
}

type StageChanged struct {
	Round int    `json:"round"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// RoundCompleted is emitted after a round has been written to the trace.
type RoundCompleted struct {
	Round       int    `json:"round"`
	Stage       string `json:"stage"`
	Instruction string `json:"instruction"`
	Action      string `json:"action,omitempty"`
	OK          bool   `json:"ok"`
	Progress    bool   `json:"progress"`
	Completed   int    `json:"completed"`
	FaultKind   string `json:"fault_kind,omitempty"`
	Error       string `json:"error,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

type RunFinished struct {
	Reason    string `json:"reason"`
	Fatal     bool   `json:"fatal"`
	Rounds    int    `json:"rounds"`
	Completed int    `json:"completed"`
	Target    int    `json:"target"`
	Error     string `json:"error,omitempty"`
}

type AnalysisStarted struct {
	Dir   string `json:"dir"`
	Total int    `json:"total"`
}

// ItemAnalyzed reports one screenshot's fate: "record", "duplicate",
// "skipped" (not an email view) or "error".
type ItemAnalyzed struct {
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Path   string `json:"path"`
	Status string `json:"status"`
	Sender string `json:"sender,omitempty"`
	Error  string `json:"error,omitempty"`
}

type AnalysisCompleted struct {
	Records    int    `json:"records"`
	Skipped    int    `json:"skipped"`
	ReportPath string `json:"report_path"`
	DataPath   string `json:"data_path"`
}

// RunHandler receives orchestrator events. Calls happen on the round loop's
// goroutine, so implementations must not block on a remote peer.
type RunHandler interface {
	RunStarted(e RunStarted)
	StageChanged(e StageChanged)
	RoundCompleted(e RoundCompleted)
	RunFinished(e RunFinished)
}

// AnalysisHandler receives extraction pipeline events.
type AnalysisHandler interface {
	AnalysisStarted(e AnalysisStarted)
	ItemAnalyzed(e ItemAnalyzed)
	AnalysisCompleted(e AnalysisCompleted)
}

// Handler is the union implemented by the CLI and websocket sinks.
type Handler interface {
	RunHandler
	AnalysisHandler
}

// Discard ignores every event.
type Discard struct{}

func (Discard) RunStarted(RunStarted)               {}
func (Discard) StageChanged(StageChanged)           {}
func (Discard) RoundCompleted(RoundCompleted)       {}
func (Discard) RunFinished(RunFinished)             {}
func (Discard) AnalysisStarted(AnalysisStarted)     {}
func (Discard) ItemAnalyzed(ItemAnalyzed)           {}
func (Discard) AnalysisCompleted(AnalysisCompleted) {}

// Fanout forwards every event to each handler in order.
type Fanout []Handler

func (f Fanout) RunStarted(e RunStarted) {
	for _, h := range f {
		h.RunStarted(e)
	}
}

func (f Fanout) StageChanged(e StageChanged) {
	for _, h := range f {
		h.StageChanged(e)
	}
}

func (f Fanout) RoundCompleted(e RoundCompleted) {
	for _, h := range f {
		h.RoundCompleted(e)
	}
}

func (f Fanout) RunFinished(e RunFinished) {
	for _, h := range f {
		h.RunFinished(e)
	}
}

func (f Fanout) AnalysisStarted(e AnalysisStarted) {
	for _, h := range f {
		h.AnalysisStarted(e)
	}
}

func (f Fanout) ItemAnalyzed(e ItemAnalyzed) {
	for _, h := range f {
		h.ItemAnalyzed(e)
	}
}

func (f Fanout) AnalysisCompleted(e AnalysisCompleted) {
	for _, h := range f {
		h.AnalysisCompleted(e)
	}
}
