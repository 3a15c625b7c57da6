package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"

	"mobilepilot/agent"
	"mobilepilot/analysis"
	"mobilepilot/config"
	"mobilepilot/device"
	"mobilepilot/device/browser"
	"mobilepilot/device/wda"
	"mobilepilot/llm"
	"mobilepilot/mission"
	"mobilepilot/plugin"
	"mobilepilot/store"
	"mobilepilot/streamers"
)

// loadConfig reads .env files, then the HCL config at path. A directory
// without any .hcl file runs on the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	dirs := []string{"."}
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			dirs = append(dirs, path)
		} else {
			dirs = append(dirs, filepath.Dir(path))
		}
	}
	if err := config.LoadDotEnv(dirs...); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err == nil && info.IsDir() {
		files, _ := filepath.Glob(filepath.Join(path, "*.hcl"))
		if len(files) == 0 {
			cfg := config.Defaults()
			cfg.ApplyEnv(os.Getenv)
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}
	return config.LoadAndValidate(path)
}

func newLogger(debug bool) hclog.Logger {
	level := hclog.Info
	if debug {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "mobilepilot",
		Level:  level,
		Output: os.Stderr,
	})
}

// buildOracle creates the model oracle for m. In debug mode every model call
// is also written to a turn log named after entity.
func buildOracle(ctx context.Context, m *config.Model, dbg *mission.DebugLogger, entity string, logger hclog.Logger) (agent.Oracle, func(), error) {
	variant, err := agent.ParseVariant(m.AgentType)
	if err != nil {
		return nil, nil, err
	}
	provider, err := llm.NewProvider(ctx, llm.ProviderKind(m.Provider), m.APIKey, m.BaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("model '%s': %w", m.Name, err)
	}

	var closers []func()
	if c, ok := provider.(io.Closer); ok {
		closers = append(closers, func() { c.Close() })
	}
	if dbg.IsEnabled() {
		tl, err := llm.NewTurnLogger(dbg.GetTurnLogFile(entity))
		if err != nil {
			logger.Warn("turn log disabled", "error", err)
		} else {
			provider = &llm.LoggingProvider{Provider: provider, Logger: tl, Action: entity}
			closers = append(closers, tl.Close)
		}
	}

	oracle := agent.NewLLMOracle(provider, m.Model,
		agent.WithVariant(variant),
		agent.WithMaxTokens(m.MaxTokens),
		agent.WithTemperature(m.Temperature),
		agent.WithTimeout(m.TimeoutDuration()),
		agent.WithLogger(logger.Named("oracle")),
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return oracle, cleanup, nil
}

func browserSettings(d *config.Device) browser.Settings {
	return browser.Settings{
		BrowserType: d.Browser,
		Headless:    d.IsHeadless(),
		Endpoint:    d.Endpoint,
		Apps:        d.Apps,
		Viewport:    device.Size{Width: d.Width, Height: d.Height},
	}
}

// pluginSettings is the flat map a gateway plugin is configured with.
func pluginSettings(d *config.Device) map[string]string {
	settings := browserSettings(d).Map()
	if d.Browser == "" {
		delete(settings, browser.KeyBrowser)
	}
	if d.URL != "" {
		settings["url"] = d.URL
	}
	if d.Session != "" {
		settings["session"] = d.Session
	}
	settings["timeout"] = d.Timeout
	settings["retries"] = strconv.Itoa(d.Retries)
	return settings
}

// buildGateway connects the device the task drives.
func buildGateway(d *config.Device, logger hclog.Logger) (device.Gateway, error) {
	switch d.Type {
	case config.DeviceWDA, "":
		opts := []wda.Option{
			wda.WithLogger(logger.Named("wda")),
			wda.WithTimeout(d.TimeoutDuration()),
		}
		if d.Retries > 0 {
			opts = append(opts, wda.WithRetryMax(d.Retries))
		}
		if d.Session != "" {
			opts = append(opts, wda.WithSession(d.Session))
		}
		return wda.New(d.URL, opts...), nil
	case config.DeviceBrowser:
		return browser.New(browserSettings(d), logger.Named("browser")), nil
	case config.DevicePlugin:
		gw, err := plugin.LoadGateway(d.Plugin, pluginSettings(d), logger.Named("plugin"))
		if err != nil {
			return nil, err
		}
		return gw, nil
	}
	return nil, fmt.Errorf("device '%s': unknown type '%s'", d.Name, d.Type)
}

// missionTask turns a config task into the runner's task.
func missionTask(t *config.Task, d *config.Device) mission.Task {
	mt := mission.DefaultTask()
	mt.Name = t.Name
	mt.Dir = t.TaskDir
	mt.App = t.App
	mt.BundleID = t.BundleID
	mt.MaxRounds = t.MaxRounds
	mt.Target = t.TargetCount
	mt.Interval = t.Interval()
	mt.Thresholds.OpenApp = t.OpenAppTimeout
	mt.Thresholds.EnterList = t.EnterListTimeout
	mt.Thresholds.Cycle = t.CycleTimeout
	mt.NoProgress = t.MaxNoProgressRounds
	mt.CaptureAttempts = t.CaptureAttempts
	mt.CaptureBackoff = t.Backoff()
	mt.HistoryWindow = t.HistoryWindow
	mt.IgnorePrematureFinish = t.IgnoresPrematureFinish()
	mt.LabelElements = t.LabelElements
	if d != nil {
		mt.CallTimeout = d.TimeoutDuration()
	}
	return mt
}

// openStores opens the configured run history, falling back to memory.
func openStores(ctx context.Context, cfg *config.Config) (*store.Bundle, error) {
	if cfg.Storage == nil {
		return store.NewMemoryBundle(), nil
	}
	return store.NewBundle(ctx, cfg.Storage)
}

// newPipeline builds the extraction pipeline from the analysis block.
func newPipeline(oracle agent.Oracle, cfg *config.Config, callTimeout time.Duration, logger hclog.Logger, handler streamers.AnalysisHandler, extra ...analysis.Option) (*analysis.Pipeline, error) {
	a := cfg.Analysis
	if a == nil {
		a = &config.Analysis{}
		a.Defaults()
	}
	opts := []analysis.Option{
		analysis.WithLogger(logger.Named("analysis")),
		analysis.WithHandler(handler),
		analysis.WithMaxScreenshots(a.MaxScreenshots),
		analysis.WithCallTimeout(callTimeout),
	}
	if a.RequestsPerMinute > 0 {
		opts = append(opts, analysis.WithRequestsPerMinute(a.RequestsPerMinute))
	}
	if a.CacheSize > 0 {
		cache, err := analysis.NewCache(a.CacheSize)
		if err != nil {
			return nil, err
		}
		opts = append(opts, analysis.WithCache(cache))
	}
	opts = append(opts, extra...)
	return analysis.NewPipeline(oracle, opts...), nil
}

// persistReport saves a finished report and its records in the history store.
func persistReport(reports store.ReportStore, p *analysis.Pipeline, rep *analysis.Report, runID, taskDir string) (string, error) {
	screenshotDir := filepath.Join(taskDir, mission.ScreenshotsDir)
	reportPath, dataPath := p.Paths(screenshotDir)
	records := make([]store.Record, len(rep.Records))
	for i, r := range rep.Records {
		records[i] = store.Record{
			Position:   i,
			Sender:     r.Sender,
			Subject:    r.Subject,
			Category:   string(r.Category),
			Importance: r.Importance,
			Summary:    r.Summary,
			Screenshot: r.Screenshot,
		}
	}
	return reports.SaveReport(store.Report{
		RunID:      runID,
		TaskDir:    taskDir,
		ReportPath: reportPath,
		DataPath:   dataPath,
		Records:    len(records),
		Skipped:    rep.Skipped,
		CreatedAt:  rep.GeneratedAt,
	}, records)
}
