package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups of a single row that does not exist.
var ErrNotFound = errors.New("not found")

// Bundle holds all stores for tracking runs and their analyses.
type Bundle struct {
	Runs    RunStore
	Reports ReportStore
	Events  EventStore
	closer  func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one orchestrator run.
type Run struct {
	ID         string     `json:"id"`
	Task       string     `json:"task"`
	TaskDir    string     `json:"taskDir"`
	Target     int        `json:"target"`
	MaxRounds  int        `json:"maxRounds"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Rounds     int        `json:"rounds"`
	Completed  int        `json:"completed"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// RunOutcome is what FinishRun records.
type RunOutcome struct {
	Reason    string
	Fatal     bool
	Rounds    int
	Completed int
	Error     string
}

// RoundRow is the stored summary of one round.
type RoundRow struct {
	RunID       string    `json:"runId"`
	Index       int       `json:"index"`
	Stage       string    `json:"stage"`
	Instruction string    `json:"instruction"`
	Action      string    `json:"action,omitempty"`
	OK          bool      `json:"ok"`
	Progress    bool      `json:"progress"`
	Completed   int       `json:"completed"`
	FaultKind   string    `json:"faultKind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Screenshot  string    `json:"screenshot,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RunStore tracks runs and their rounds
type RunStore interface {
	// CreateRun stores a new running run; an empty ID is generated.
	CreateRun(r Run) (id string, err error)
	FinishRun(id string, out RunOutcome) error
	AppendRound(r RoundRow) error
	GetRun(id string) (*Run, error)
	// ListRuns returns runs newest first along with the total count.
	ListRuns(limit, offset int) ([]Run, int, error)
	GetRounds(runID string) ([]RoundRow, error)
}

// Report is one analysis pass over a task directory.
type Report struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId,omitempty"`
	TaskDir    string    `json:"taskDir"`
	ReportPath string    `json:"reportPath"`
	DataPath   string    `json:"dataPath"`
	Records    int       `json:"records"`
	Skipped    int       `json:"skipped"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Record is one stored email record of a report.
type Record struct {
	ReportID   string `json:"reportId"`
	Position   int    `json:"position"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Category   string `json:"category"`
	Importance int    `json:"importance"`
	Summary    string `json:"summary"`
	Screenshot string `json:"screenshot"`
}

// ReportStore keeps analysis reports and their records
type ReportStore interface {
	SaveReport(rep Report, records []Record) (id string, err error)
	ListReports(limit, offset int) ([]Report, int, error)
	GetRecords(reportID string) ([]Record, error)
}

// Event is a persisted streamer event.
type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	EventType string    `json:"eventType"`
	DataJSON  string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventStore keeps the event log of each run
type EventStore interface {
	StoreEvent(e Event) error
	// GetEventsByRun returns events oldest first.
	GetEventsByRun(runID string, limit, offset int) ([]Event, error)
}

func statusFor(out RunOutcome) string {
	if out.Fatal {
		return StatusFailed
	}
	return StatusCompleted
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
