package mission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DebugLogger captures runner events and model exchanges for debugging.
// A logger built from an empty directory is disabled and every method is a no-op.
type DebugLogger struct {
	dir        string
	eventsFile *os.File
	mu         sync.Mutex
	enabled    bool

	// Markdown transcript per entity (act oracle, extract oracle)
	messageFiles map[string]*os.File
}

// NewDebugLogger creates a debug logger that writes to dir.
func NewDebugLogger(dir string) (*DebugLogger, error) {
	if dir == "" {
		return &DebugLogger{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug directory: %w", err)
	}

	eventsFile, err := os.Create(filepath.Join(dir, "events.log"))
	if err != nil {
		return nil, fmt.Errorf("creating events file: %w", err)
	}

	return &DebugLogger{
		dir:          dir,
		eventsFile:   eventsFile,
		enabled:      true,
		messageFiles: make(map[string]*os.File),
	}, nil
}

// Close closes all open files
func (d *DebugLogger) Close() {
	if d == nil || !d.enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.eventsFile != nil {
		d.eventsFile.Close()
	}
	for _, f := range d.messageFiles {
		f.Close()
	}
}

func (d *DebugLogger) IsEnabled() bool {
	return d != nil && d.enabled
}

func (d *DebugLogger) GetDebugDir() string {
	if d == nil {
		return ""
	}
	return d.dir
}

// LogEvent appends one JSON line to events.log
func (d *DebugLogger) LogEvent(eventType string, data map[string]any) {
	if !d.IsEnabled() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"event":     eventType,
	}
	for k, v := range data {
		entry[k] = v
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return
	}
	d.eventsFile.Write(append(jsonBytes, '\n'))
}

// GetTurnLogFile returns a .jsonl path for per-turn model snapshots.
func (d *DebugLogger) GetTurnLogFile(entityName string) string {
	if !d.IsEnabled() {
		return ""
	}
	return filepath.Join(d.dir, fmt.Sprintf("turns_%s.jsonl", safeName(entityName)))
}

func (d *DebugLogger) messageFile(entityName string) string {
	return filepath.Join(d.dir, fmt.Sprintf("oracle_%s.md", safeName(entityName)))
}

// WriteExchange appends one round's instruction and raw reply to the
// entity's markdown transcript.
func (d *DebugLogger) WriteExchange(entityName string, round int, instruction, reply string) {
	if !d.IsEnabled() {
		return
	}

	f, created, err := d.getOrCreateFile(d.messageFile(entityName))
	if err != nil {
		return
	}

	var sb strings.Builder
	if created {
		fmt.Fprintf(&sb, "# oracle: %s\n\n*Started: %s*\n\n---\n\n", entityName, time.Now().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "## [%s] Round %d\n\n", time.Now().Format("15:04:05"), round)
	sb.WriteString("### Instruction\n\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n### Reply\n\n")
	// Tagged replies read better as a code block
	if strings.HasPrefix(strings.TrimSpace(reply), "<") || strings.HasPrefix(strings.TrimSpace(reply), "{") {
		sb.WriteString("```\n")
		sb.WriteString(reply)
		sb.WriteString("\n```\n\n")
	} else {
		sb.WriteString(reply)
		sb.WriteString("\n\n")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	f.WriteString(sb.String())
}

func (d *DebugLogger) getOrCreateFile(path string) (*os.File, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.messageFiles[path]; ok {
		return f, false, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, false, err
	}

	d.messageFiles[path] = f
	return f, true, nil
}

func safeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "[", "_")
	name = strings.ReplaceAll(name, "]", "")
	return strings.ReplaceAll(name, " ", "_")
}

// Event type constants
const (
	EventRunStarted      = "run_started"
	EventRunFinished     = "run_finished"
	EventRoundStarted    = "round_started"
	EventRoundCompleted  = "round_completed"
	EventCaptureRetry    = "capture_retry"
	EventOracleStart     = "oracle_start"
	EventOracleEnd       = "oracle_end"
	EventActionExecuted  = "action_executed"
	EventFault           = "fault"
	EventStageChanged    = "stage_changed"
	EventPrematureFinish = "premature_finish"
)
