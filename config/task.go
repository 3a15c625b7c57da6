package config

import (
	"errors"
	"fmt"
	"time"
)

// Task describes one orchestrator run. Zero values take the reference
// defaults in Defaults.
type Task struct {
	Name   string `hcl:"name,label"`
	Model  string `hcl:"model,optional"`
	Device string `hcl:"device,optional"`

	App      string `hcl:"app,optional"`
	BundleID string `hcl:"bundle_id,optional"`
	TaskDir  string `hcl:"task_dir,optional"`

	MaxRounds       int    `hcl:"max_rounds,optional"`
	TargetCount     int    `hcl:"target_count,optional"`
	RequestInterval string `hcl:"request_interval,optional"`

	OpenAppTimeout      int `hcl:"open_app_timeout,optional"`
	EnterListTimeout    int `hcl:"enter_list_timeout,optional"`
	CycleTimeout        int `hcl:"cycle_timeout,optional"`
	MaxNoProgressRounds int `hcl:"max_no_progress_rounds,optional"`

	CaptureAttempts int    `hcl:"capture_attempts,optional"`
	CaptureBackoff  string `hcl:"capture_backoff,optional"`
	HistoryWindow   int    `hcl:"history_window,optional"`

	IgnorePrematureFinish *bool `hcl:"ignore_premature_finish,optional"`
	LabelElements         bool  `hcl:"label_elements,optional"`
}

// DefaultTask is the reference mail run.
func DefaultTask() Task {
	t := Task{Name: "mail_pipeline"}
	t.Defaults()
	return t
}

// Defaults fills in default values for unset fields
func (t *Task) Defaults() {
	if t.App == "" && t.BundleID == "" {
		t.App = "Mail"
	}
	if t.TaskDir == "" {
		t.TaskDir = "ios_logs/" + t.Name
	}
	if t.MaxRounds == 0 {
		t.MaxRounds = 80
	}
	if t.TargetCount == 0 {
		t.TargetCount = 5
	}
	if t.RequestInterval == "" {
		t.RequestInterval = "2s"
	}
	if t.OpenAppTimeout == 0 {
		t.OpenAppTimeout = 10
	}
	if t.EnterListTimeout == 0 {
		t.EnterListTimeout = 6
	}
	if t.CycleTimeout == 0 {
		t.CycleTimeout = 8
	}
	if t.MaxNoProgressRounds == 0 {
		t.MaxNoProgressRounds = 15
	}
	if t.CaptureAttempts == 0 {
		t.CaptureAttempts = 3
	}
	if t.CaptureBackoff == "" {
		t.CaptureBackoff = "500ms"
	}
	if t.HistoryWindow == 0 {
		t.HistoryWindow = 4
	}
	if t.IgnorePrematureFinish == nil {
		v := true
		t.IgnorePrematureFinish = &v
	}
}

func (t *Task) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    int
	}{
		{"max_rounds", t.MaxRounds},
		{"target_count", t.TargetCount},
		{"open_app_timeout", t.OpenAppTimeout},
		{"enter_list_timeout", t.EnterListTimeout},
		{"cycle_timeout", t.CycleTimeout},
		{"max_no_progress_rounds", t.MaxNoProgressRounds},
		{"capture_attempts", t.CaptureAttempts},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.v))
		}
	}
	if t.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("history_window must not be negative"))
	}
	if _, err := parseDuration("request_interval", t.RequestInterval); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("capture_backoff", t.CaptureBackoff); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t *Task) Interval() time.Duration {
	d, _ := parseDuration("request_interval", t.RequestInterval)
	return d
}

func (t *Task) Backoff() time.Duration {
	d, _ := parseDuration("capture_backoff", t.CaptureBackoff)
	return d
}

func (t *Task) IgnoresPrematureFinish() bool {
	return t.IgnorePrematureFinish == nil || *t.IgnorePrematureFinish
}
