package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mobilepilot/config"
	"mobilepilot/device"
	"mobilepilot/mission"
	"mobilepilot/store"
	"mobilepilot/streamers"
	"mobilepilot/streamers/cli"
	"mobilepilot/wsbridge"
)

var (
	runMaxRounds       int
	runTargetCount     int
	runRequestInterval string
	runOpenAppTimeout  int
	runEnterList       int
	runCycleTimeout    int
	runNoProgress      int
	runTaskDir         string
	runDeviceURL       string
	runDebug           bool
	runAnalyzeAfter    bool
	runMaxScreenshots  int
	runMetricsAddr     string
)

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a task on the device",
	Long: `Run drives the device round by round until the task reaches its target,
stops early, or aborts. Without a task name the first configured task runs;
without any config the built-in mail task runs against WDA_URL.

Exit code is 0 when the run ends normally, including early stops, and 1 on abort.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		fatal, err := runTask(cmd, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if fatal {
			os.Exit(1)
		}
	},
}

// applyRunFlags overrides task settings with the flags the user set.
func applyRunFlags(cmd *cobra.Command, t *config.Task, d *config.Device) {
	flags := cmd.Flags()
	if flags.Changed("max-rounds") {
		t.MaxRounds = runMaxRounds
	}
	if flags.Changed("target-count") {
		t.TargetCount = runTargetCount
	}
	if flags.Changed("request-interval") {
		t.RequestInterval = runRequestInterval
	}
	if flags.Changed("open-app-timeout") {
		t.OpenAppTimeout = runOpenAppTimeout
	}
	if flags.Changed("enter-list-timeout") {
		t.EnterListTimeout = runEnterList
	}
	if flags.Changed("cycle-timeout") {
		t.CycleTimeout = runCycleTimeout
	}
	if flags.Changed("max-no-progress-rounds") {
		t.MaxNoProgressRounds = runNoProgress
	}
	if flags.Changed("task-dir") {
		t.TaskDir = runTaskDir
	}
	if flags.Changed("device-url") {
		d.URL = runDeviceURL
	}
}

func runTask(cmd *cobra.Command, name string) (bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return false, fmt.Errorf("loading config: %w", err)
	}
	task, err := cfg.GetTask(name)
	if err != nil {
		return false, err
	}
	dev, err := cfg.GetDevice(task.Device)
	if err != nil {
		return false, err
	}
	model, err := cfg.GetModel(task.Model)
	if err != nil {
		return false, err
	}
	applyRunFlags(cmd, task, dev)
	if err := task.Validate(); err != nil {
		return false, fmt.Errorf("task '%s': %w", task.Name, err)
	}

	logger := newLogger(runDebug)

	var dbg *mission.DebugLogger
	if runDebug {
		dir := filepath.Join("debug", fmt.Sprintf("%s_%s", task.Name, time.Now().Format("20060102_150405")))
		dbg, err = mission.NewDebugLogger(dir)
		if err != nil {
			return false, err
		}
		defer dbg.Close()
		fmt.Printf("Debug logging to %s\n", dir)
	}

	oracle, closeOracle, err := buildOracle(ctx, model, dbg, "act", logger)
	if err != nil {
		return false, err
	}
	defer closeOracle()

	gw, err := buildGateway(dev, logger)
	if err != nil {
		return false, fmt.Errorf("device '%s': %w", dev.Name, err)
	}
	defer device.Close(gw)

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("opening store: %w", err)
	}
	defer stores.Close()

	handlers := streamers.Fanout{cli.NewHandler(nil, runDebug)}
	if cfg.Events != nil {
		client, err := connectEvents(ctx, cfg, stores, logger)
		if err != nil {
			logger.Warn("event sink unavailable, continuing without it", "url", cfg.Events.URL, "error", err)
		} else {
			defer client.Close()
			handlers = append(handlers, wsbridge.NewStreamer(client))
		}
	}
	handler := streamers.NewStoringHandler(handlers, stores.Runs, stores.Events, logger.Named("store"))

	var metrics *mission.Metrics
	if runMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = mission.NewMetrics(reg)
		srv := serveMetrics(runMetricsAddr, reg, logger)
		defer srv.Close()
	}

	runner, err := mission.NewRunner(missionTask(task, dev), gw, oracle,
		mission.WithLogger(logger.Named("mission")),
		mission.WithDebugLogger(dbg),
		mission.WithMetrics(metrics),
	)
	if err != nil {
		return false, err
	}

	result, runErr := runner.Run(ctx, handler)
	if result == nil {
		return false, runErr
	}
	if runErr != nil {
		logger.Debug("run aborted", "reason", result.Reason, "error", runErr)
	}

	if (runAnalyzeAfter || cfg.Analysis.AfterRun) && ctx.Err() == nil {
		if err := analyzeAfterRun(ctx, cmd, cfg, model, task, dbg, handler, stores, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error analyzing screenshots: %v\n", err)
		}
	}
	return result.Fatal, nil
}

func analyzeAfterRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, runModel *config.Model, task *config.Task,
	dbg *mission.DebugLogger, handler *streamers.StoringHandler, stores *store.Bundle, logger hclog.Logger) error {
	model := runModel
	if cfg.Analysis.Model != "" {
		m, err := cfg.GetModel(cfg.Analysis.Model)
		if err != nil {
			return err
		}
		model = m
	}
	if cmd.Flags().Changed("max-screenshots") {
		cfg.Analysis.MaxScreenshots = runMaxScreenshots
	}

	oracle, closeOracle, err := buildOracle(ctx, model, dbg, "extract", logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	pipeline, err := newPipeline(oracle, cfg, model.TimeoutDuration(), logger, handler)
	if err != nil {
		return err
	}
	rep, err := pipeline.Analyze(ctx, filepath.Join(task.TaskDir, mission.ScreenshotsDir))
	if err != nil {
		return err
	}
	if _, err := persistReport(stores.Reports, pipeline, rep, handler.RunID(), task.TaskDir); err != nil {
		logger.Warn("failed to store report", "error", err)
	}
	return nil
}

func connectEvents(ctx context.Context, cfg *config.Config, stores *store.Bundle, logger hclog.Logger) (*wsbridge.Client, error) {
	client := wsbridge.NewClient(cfg.Events, wsbridge.ConfigToInstanceInfo(cfg),
		wsbridge.WithLogger(logger.Named("wsbridge")),
		wsbridge.WithStores(stores),
		wsbridge.WithVersion(Version),
	)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return nil, err
	}
	go func() {
		if err := client.Run(); err != nil {
			logger.Warn("event sink connection lost", "error", err)
		}
	}()
	return client, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger hclog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.IntVar(&runMaxRounds, "max-rounds", 80, "Maximum number of rounds")
	f.IntVar(&runTargetCount, "target-count", 5, "Number of emails to open")
	f.StringVar(&runRequestInterval, "request-interval", "2s", "Pause between rounds")
	f.IntVar(&runOpenAppTimeout, "open-app-timeout", 10, "Rounds allowed to open the app")
	f.IntVar(&runEnterList, "enter-list-timeout", 6, "Rounds allowed to reach the inbox")
	f.IntVar(&runCycleTimeout, "cycle-timeout", 8, "Rounds allowed per email")
	f.IntVar(&runNoProgress, "max-no-progress-rounds", 15, "Consecutive rounds without progress before stopping")
	f.StringVar(&runTaskDir, "task-dir", "", "Directory for screenshots, traces and reports")
	f.StringVar(&runDeviceURL, "device-url", "", "WebDriverAgent URL (overrides WDA_URL)")
	f.BoolVar(&runDebug, "debug", false, "Write debug logs and model transcripts")
	f.BoolVar(&runAnalyzeAfter, "analyze", false, "Analyze the screenshots when the run ends")
	f.IntVar(&runMaxScreenshots, "max-screenshots", 0, "Maximum screenshots to analyze (0 = all)")
	f.StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}
