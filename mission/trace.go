package mission

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mobilepilot/agent"
	"mobilepilot/planner"
)

const (
	ScreenshotsDir = "screenshots"
	TracesDir      = "traces"
	SourcesDir     = "xml"
	TraceFile      = "trace.jsonl"
)

const (
	recordRound    = "round"
	recordTerminal = "terminal"
)

// FaultRecord is the trace form of a fault.
type FaultRecord struct {
	Kind  FaultKind `json:"kind"`
	Error string    `json:"error"`
}

// Round is one logged loop iteration. It is never rewritten once appended.
type Round struct {
	Type           string        `json:"type"`
	Index          int           `json:"index"`
	Stage          planner.Stage `json:"stage"`
	Screenshot     string        `json:"screenshot,omitempty"`
	UITree         string        `json:"ui_tree,omitempty"`
	ActiveApp      string        `json:"active_app,omitempty"`
	InstructionKey string        `json:"instruction_key"`
	Instruction    string        `json:"instruction"`
	Forced         bool          `json:"forced,omitempty"`
	Response       string        `json:"response,omitempty"`
	Assessment     string        `json:"assessment,omitempty"`
	Action         *agent.Action `json:"action,omitempty"`
	OK             bool          `json:"ok"`
	Reason         string        `json:"reason,omitempty"`
	Fault          *FaultRecord  `json:"fault,omitempty"`
	Progress       bool          `json:"progress"`
	InItemView     bool          `json:"in_item_view"`
	Completed      int           `json:"completed"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Terminal is the last line of every trace.
type Terminal struct {
	Type      string        `json:"type"`
	Reason    Reason        `json:"reason"`
	Fatal     bool          `json:"fatal"`
	Rounds    int           `json:"rounds"`
	Completed int           `json:"completed"`
	Target    int           `json:"target"`
	Stage     planner.Stage `json:"stage"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Recorder owns a task directory: the trace log, screenshots and UI trees.
type Recorder struct {
	dir   string
	trace *os.File
}

// NewRecorder lays out dir and starts a fresh trace.
func NewRecorder(dir string) (*Recorder, error) {
	for _, sub := range []string{ScreenshotsDir, TracesDir, SourcesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create task directory: %w", err)
		}
	}
	f, err := os.OpenFile(filepath.Join(dir, TracesDir, TraceFile), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	return &Recorder{dir: dir, trace: f}, nil
}

func (r *Recorder) Dir() string {
	return r.dir
}

// ScreenshotName is the file name the extraction pipeline orders by.
func ScreenshotName(round int, at time.Time, tag string) string {
	return fmt.Sprintf("screenshot-%d-%d-%s.png", round, at.Unix(), tag)
}

// SaveScreenshot writes a capture and returns its path relative to the task directory.
func (r *Recorder) SaveScreenshot(round int, tag string, data []byte, at time.Time) (string, error) {
	rel := filepath.Join(ScreenshotsDir, ScreenshotName(round, at, tag))
	if err := os.WriteFile(filepath.Join(r.dir, rel), data, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return rel, nil
}

// SaveSource writes a UI tree dump and returns its relative path.
func (r *Recorder) SaveSource(round int, source string) (string, error) {
	rel := filepath.Join(SourcesDir, fmt.Sprintf("%d.xml", round))
	if err := os.WriteFile(filepath.Join(r.dir, rel), []byte(source), 0644); err != nil {
		return "", fmt.Errorf("write ui tree: %w", err)
	}
	return rel, nil
}

// AppendRound writes one round and syncs it to disk before returning.
func (r *Recorder) AppendRound(rd Round) error {
	rd.Type = recordRound
	return r.appendLine(rd)
}

// Terminate writes the terminal marker.
func (r *Recorder) Terminate(t Terminal) error {
	t.Type = recordTerminal
	return r.appendLine(t)
}

func (r *Recorder) appendLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode trace line: %w", err)
	}
	if _, err := r.trace.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	if err := r.trace.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.trace.Close()
}

// ReadTrace loads a trace file. The terminal marker is nil for a run that
// crashed before writing one.
func ReadTrace(path string) ([]Round, *Terminal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var rounds []Round
	var term *Terminal
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(sc.Bytes(), &head); err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		switch head.Type {
		case recordRound:
			var rd Round
			if err := json.Unmarshal(sc.Bytes(), &rd); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			rounds = append(rounds, rd)
		case recordTerminal:
			term = &Terminal{}
			if err := json.Unmarshal(sc.Bytes(), term); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
		default:
			return nil, nil, fmt.Errorf("%s:%d: unknown record type %q", path, line, head.Type)
		}
	}
	return rounds, term, sc.Err()
}
