package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mobilepilot/streamers"
)

// Handler implements streamers.Handler for terminal output
type Handler struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	spinner *spinner
}

// NewHandler writes to out, or stdout when out is nil. A spinner runs during
// analysis only when writing to stdout.
func NewHandler(out io.Writer, verbose bool) *Handler {
	h := &Handler{out: out, verbose: verbose}
	if out == nil {
		h.out = os.Stdout
		h.spinner = newSpinner(h.out, &h.mu)
	}
	return h
}

func (h *Handler) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, format, args...)
}

func (h *Handler) RunStarted(e streamers.RunStarted) {
	h.printf("\n%s%s=== Run: %s ===%s\n", ColorBold, ColorCyan, e.Task, ColorReset)
	h.printf("%sRun ID: %s%s\n", ColorGray, e.RunID, ColorReset)
	h.printf("%sTask dir: %s%s\n", ColorGray, e.TaskDir, ColorReset)
	h.printf("%sTarget: %d item(s) within %d round(s)%s\n\n", ColorGray, e.Target, e.Max, ColorReset)
}

func (h *Handler) StageChanged(e streamers.StageChanged) {
	h.printf("%s--- round %d: %s -> %s ---%s\n", ColorCyan, e.Round, e.From, e.To, ColorReset)
}

func (h *Handler) RoundCompleted(e streamers.RoundCompleted) {
	action := e.Action
	if action == "" {
		action = "no action"
	}
	mark, color := "✓", ColorGreen
	if !e.OK {
		mark, color = "✗", ColorRed
	}
	progress := ""
	if e.Progress {
		progress = " +progress"
	}
	h.printf("  [%d] %s %s%s%s %s(completed %d)%s%s\n",
		e.Round, e.Stage, color, mark, ColorReset, ColorGray, e.Completed, progress, ColorReset)
	if h.verbose {
		h.printf("%s      instruction: %s%s\n", ColorGray, truncate(e.Instruction, 120), ColorReset)
		h.printf("%s      action: %s%s\n", ColorGray, truncate(action, 120), ColorReset)
	}
	if e.Error != "" {
		kind := e.FaultKind
		if kind == "" {
			kind = "error"
		}
		h.printf("%s      %s: %s%s\n", ColorRed, kind, truncate(e.Error, 200), ColorReset)
	}
}

func (h *Handler) RunFinished(e streamers.RunFinished) {
	switch {
	case e.Fatal:
		h.printf("\n%s%s[Run aborted: %s after %d round(s), completed %d of %d]%s\n",
			ColorBold, ColorRed, e.Reason, e.Rounds, e.Completed, e.Target, ColorReset)
		if e.Error != "" {
			h.printf("%s%s%s\n", ColorRed, e.Error, ColorReset)
		}
	case e.Completed < e.Target:
		h.printf("\n%s%s[Run stopped early: %s, completed %d of %d]%s\n",
			ColorBold, ColorYellow, e.Reason, e.Completed, e.Target, ColorReset)
	default:
		h.printf("\n%s%s[Run finished: %s, completed %d of %d in %d round(s)]%s\n",
			ColorBold, ColorGreen, e.Reason, e.Completed, e.Target, e.Rounds, ColorReset)
	}
}

func (h *Handler) AnalysisStarted(e streamers.AnalysisStarted) {
	h.printf("\n%s%s=== Analysis: %s ===%s\n", ColorBold, ColorCyan, e.Dir, ColorReset)
	h.printf("%sScreenshots: %d%s\n", ColorGray, e.Total, ColorReset)
	h.startSpinner(fmt.Sprintf("Analyzing 1/%d...", e.Total))
}

func (h *Handler) ItemAnalyzed(e streamers.ItemAnalyzed) {
	h.stopSpinner()
	name := filepath.Base(e.Path)
	switch e.Status {
	case "record":
		h.printf("  [%d/%d] %s %s✓%s %s\n", e.Index, e.Total, name, ColorGreen, ColorReset, e.Sender)
	case "duplicate":
		h.printf("  [%d/%d] %s %sduplicate of %s%s\n", e.Index, e.Total, name, ColorGray, e.Sender, ColorReset)
	case "skipped":
		h.printf("  [%d/%d] %s %sskipped (not an email)%s\n", e.Index, e.Total, name, ColorGray, ColorReset)
	default:
		h.printf("  [%d/%d] %s %s✗ %s%s\n", e.Index, e.Total, name, ColorRed, e.Error, ColorReset)
	}
	if e.Index < e.Total {
		h.startSpinner(fmt.Sprintf("Analyzing %d/%d...", e.Index+1, e.Total))
	}
}

func (h *Handler) AnalysisCompleted(e streamers.AnalysisCompleted) {
	h.stopSpinner()
	h.printf("\n%s%s[Analysis complete: %d record(s), %d skipped]%s\n", ColorBold, ColorGreen, e.Records, e.Skipped, ColorReset)
	if e.ReportPath != "" {
		h.printf("%sReport: %s%s\n", ColorGray, e.ReportPath, ColorReset)
	}
	if e.DataPath != "" {
		h.printf("%sData: %s%s\n", ColorGray, e.DataPath, ColorReset)
	}
}

func (h *Handler) startSpinner(msg string) {
	if h.spinner != nil {
		h.spinner.Start(msg)
	}
}

func (h *Handler) stopSpinner() {
	if h.spinner != nil {
		h.spinner.Stop()
	}
}

// truncate shortens a string to max runes, adding ellipsis if needed
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
