package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mobilepilot/analysis"
	"mobilepilot/mission"
	"mobilepilot/streamers"
	"mobilepilot/streamers/cli"
)

var (
	analyzeModel          string
	analyzeMaxScreenshots int
	analyzeOutputDir      string
	analyzeWatch          bool
	analyzeDebounce       time.Duration
	analyzeJSON           bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [task-dir]",
	Short: "Extract email records from a task's screenshots",
	Long: `Analyze reads every screenshot under <task-dir>/screenshots, extracts the
email shown in each one, and writes mail_analysis_report.txt and
mail_analysis_data.json next to the screenshots directory.

Without a task directory the first configured task's directory is used.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAnalyze(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var taskDir string
	if len(args) > 0 {
		taskDir = args[0]
	} else {
		task, err := cfg.GetTask("")
		if err != nil {
			return err
		}
		taskDir = task.TaskDir
	}
	screenshotDir := filepath.Join(taskDir, mission.ScreenshotsDir)
	if _, err := os.Stat(screenshotDir); err != nil {
		return fmt.Errorf("no screenshots to analyze: %w", err)
	}

	modelName := analyzeModel
	if modelName == "" {
		modelName = cfg.Analysis.Model
	}
	model, err := cfg.GetModel(modelName)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-screenshots") {
		cfg.Analysis.MaxScreenshots = analyzeMaxScreenshots
	}

	logger := newLogger(false)
	oracle, closeOracle, err := buildOracle(ctx, model, nil, "extract", logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer stores.Close()

	handler := streamers.NewStoringHandler(cli.NewHandler(nil, false), stores.Runs, stores.Events, logger.Named("store"))
	var extra []analysis.Option
	if analyzeOutputDir != "" {
		extra = append(extra, analysis.WithOutputDir(analyzeOutputDir))
	}
	pipeline, err := newPipeline(oracle, cfg, model.TimeoutDuration(), logger, handler, extra...)
	if err != nil {
		return err
	}

	show := func(rep *analysis.Report) {
		if analyzeJSON {
			data, err := rep.JSON()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return
			}
			fmt.Println(string(data))
		} else {
			fmt.Print(cli.RenderMarkdown(rep.Markdown(), 100))
		}
		if _, err := persistReport(stores.Reports, pipeline, rep, "", taskDir); err != nil {
			logger.Warn("failed to store report", "error", err)
		}
	}

	if !analyzeWatch {
		rep, err := pipeline.Analyze(ctx, screenshotDir)
		if err != nil {
			return err
		}
		show(rep)
		return nil
	}

	fmt.Printf("Watching %s for new screenshots (Ctrl+C to stop)\n", screenshotDir)
	err = pipeline.Watch(ctx, screenshotDir, analyzeDebounce, func(rep *analysis.Report, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		show(rep)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeModel, "model", "m", "", "Model to extract with (default: the analysis model)")
	f.IntVar(&analyzeMaxScreenshots, "max-screenshots", 0, "Maximum screenshots to analyze (0 = all)")
	f.StringVarP(&analyzeOutputDir, "output", "o", "", "Directory for the report files (default: the task directory)")
	f.BoolVarP(&analyzeWatch, "watch", "w", false, "Re-analyze whenever new screenshots arrive")
	f.DurationVar(&analyzeDebounce, "debounce", 2*time.Second, "Quiet period before re-analyzing in watch mode")
	f.BoolVar(&analyzeJSON, "json", false, "Print the report as JSON instead of markdown")
}
