package mission

import (
	"errors"
	"fmt"
	"time"

	"mobilepilot/device"
	"mobilepilot/planner"
)

// Task is the immutable description of one run.
type Task struct {
	Name string
	Dir  string

	App      string
	BundleID string

	MaxRounds  int
	Target     int
	Interval   time.Duration
	Thresholds planner.Thresholds
	// NoProgress is the global limit of consecutive rounds without progress.
	NoProgress int

	CaptureAttempts int
	CaptureBackoff  time.Duration
	// CallTimeout bounds every gateway call; zero leaves calls unbounded.
	CallTimeout time.Duration

	HistoryWindow         int
	IgnorePrematureFinish bool
	LabelElements         bool
}

// DefaultTask returns the reference settings for the mail run.
func DefaultTask() Task {
	return Task{
		Name:                  "mail_pipeline",
		App:                   "Mail",
		BundleID:              device.MailBundleID,
		MaxRounds:             80,
		Target:                5,
		Interval:              2 * time.Second,
		Thresholds:            planner.DefaultThresholds(),
		NoProgress:            15,
		CaptureAttempts:       3,
		CaptureBackoff:        500 * time.Millisecond,
		CallTimeout:           30 * time.Second,
		HistoryWindow:         4,
		IgnorePrematureFinish: true,
	}
}

func (t Task) Validate() error {
	var errs []error
	if t.Dir == "" {
		errs = append(errs, errors.New("task directory is required"))
	}
	if t.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("max_rounds must be positive, got %d", t.MaxRounds))
	}
	if t.Target <= 0 {
		errs = append(errs, fmt.Errorf("target_count must be positive, got %d", t.Target))
	}
	if t.CaptureAttempts <= 0 {
		errs = append(errs, fmt.Errorf("capture_attempts must be positive, got %d", t.CaptureAttempts))
	}
	if t.Interval < 0 {
		errs = append(errs, fmt.Errorf("request_interval must not be negative"))
	}
	if t.BundleID == "" && t.App == "" {
		errs = append(errs, errors.New("app is required"))
	}
	return errors.Join(errs...)
}
