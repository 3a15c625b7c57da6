package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"mobilepilot/agent"
	"mobilepilot/device"
	"mobilepilot/planner"
	"mobilepilot/streamers"
)

var errPrematureFinish = errors.New("finish() called before the target was reached; ignored")

// Runner drives one task through the round loop: capture, plan, infer,
// execute, judge progress, sleep, log, check termination.
type Runner struct {
	task       Task
	gateway    device.Gateway
	oracle     agent.Oracle
	planner    planner.Planner
	predicates Predicates

	runID       string
	logger      hclog.Logger
	debugLogger *DebugLogger
	metrics     *Metrics

	sleep func(time.Duration)
	now   func() time.Time
}

// RunnerOption is a functional option for configuring the Runner
type RunnerOption func(*Runner)

// WithDebugLogger sets the debug logger for the runner
func WithDebugLogger(logger *DebugLogger) RunnerOption {
	return func(r *Runner) {
		r.debugLogger = logger
	}
}

func WithLogger(logger hclog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithPlanner(p planner.Planner) RunnerOption {
	return func(r *Runner) {
		r.planner = p
	}
}

// WithPredicates replaces the progress predicates. Stages missing from p
// keep the defaults.
func WithPredicates(p Predicates) RunnerOption {
	return func(r *Runner) {
		for stage, fn := range p {
			r.predicates[stage] = fn
		}
	}
}

// WithSleeper replaces time.Sleep for the request interval and wait() actions.
func WithSleeper(sleep func(time.Duration)) RunnerOption {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// NewRunner validates the task and wires the collaborators.
func NewRunner(task Task, gw device.Gateway, oracle agent.Oracle, opts ...RunnerOption) (*Runner, error) {
	if task.BundleID == "" {
		task.BundleID = device.BundleID(task.App)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("task %q: %w", task.Name, err)
	}
	if gw == nil || oracle == nil {
		return nil, errors.New("runner needs a gateway and an oracle")
	}

	r := &Runner{
		task:       task,
		gateway:    gw,
		oracle:     oracle,
		planner:    planner.NewMailPlanner(task.App),
		predicates: DefaultPredicates(),
		runID:      uuid.New().String(),
		logger:     hclog.NewNullLogger(),
		sleep:      time.Sleep,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.debugLogger == nil {
		r.debugLogger, _ = NewDebugLogger("")
	}
	return r, nil
}

func (r *Runner) RunID() string {
	return r.runID
}

// runState is everything the loop carries between rounds.
type runState struct {
	progress   planner.State
	recent     []planner.Outcome
	history    []string
	inItemView bool
	size       device.Size
	finished   bool
}

// Run executes rounds until a termination reason fires. The returned error is
// non-nil only for fatal reasons; early stops are successful results.
func (r *Runner) Run(ctx context.Context, handler streamers.RunHandler) (*Result, error) {
	if handler == nil {
		handler = streamers.Discard{}
	}

	rec, err := NewRecorder(r.task.Dir)
	if err != nil {
		return nil, err
	}
	defer rec.Close()

	started := r.now()
	handler.RunStarted(streamers.RunStarted{
		RunID:   r.runID,
		Task:    r.task.Name,
		TaskDir: r.task.Dir,
		Target:  r.task.Target,
		Max:     r.task.MaxRounds,
		At:      started,
	})
	r.debugLogger.LogEvent(EventRunStarted, map[string]any{
		"run_id":     r.runID,
		"task":       r.task.Name,
		"bundle_id":  r.task.BundleID,
		"max_rounds": r.task.MaxRounds,
		"target":     r.task.Target,
	})
	r.logger.Info("run started", "run_id", r.runID, "task", r.task.Name, "dir", r.task.Dir)

	st := &runState{progress: planner.NewState(r.task.Target), size: r.windowSize(ctx)}

	finish := func(rounds int, reason Reason, cause error) (*Result, error) {
		res := &Result{
			RunID:     r.runID,
			Reason:    reason,
			Fatal:     reason.Fatal(),
			Rounds:    rounds,
			Completed: st.progress.Completed,
			Target:    r.task.Target,
			Stage:     st.progress.Stage,
			Err:       cause,
			TraceDir:  rec.Dir(),
			Duration:  r.now().Sub(started),
		}
		term := Terminal{
			Reason:    reason,
			Fatal:     res.Fatal,
			Rounds:    rounds,
			Completed: res.Completed,
			Target:    res.Target,
			Stage:     res.Stage,
			Timestamp: r.now(),
		}
		if cause != nil {
			term.Error = cause.Error()
		}
		if err := rec.Terminate(term); err != nil {
			r.logger.Error("write terminal marker", "error", err)
			if cause == nil {
				cause = err
			}
		}

		handler.RunFinished(streamers.RunFinished{
			Reason:    string(reason),
			Fatal:     res.Fatal,
			Rounds:    rounds,
			Completed: res.Completed,
			Target:    res.Target,
			Error:     term.Error,
		})
		r.metrics.observeRun(reason)
		r.debugLogger.LogEvent(EventRunFinished, map[string]any{
			"reason":    reason,
			"fatal":     res.Fatal,
			"rounds":    rounds,
			"completed": res.Completed,
			"error":     term.Error,
		})
		r.logger.Info("run finished", "reason", reason, "fatal", res.Fatal, "rounds", rounds, "completed", res.Completed)

		if res.Fatal {
			return res, cause
		}
		return res, nil
	}

	for index := 0; ; index++ {
		// Cancellation is only honoured between rounds.
		if err := ctx.Err(); err != nil {
			return finish(index, ReasonCancelled, err)
		}

		roundStart := r.now()
		rd, err := r.playRound(context.WithoutCancel(ctx), rec, index, st, handler)
		if err != nil {
			var cf *CaptureFault
			if errors.As(err, &cf) {
				return finish(index, ReasonCaptureUnavailable, err)
			}
			return finish(index, ReasonInternal, err)
		}

		if err := rec.AppendRound(rd); err != nil {
			return finish(index, ReasonInternal, err)
		}
		r.metrics.observeRound(rd, r.now().Sub(roundStart))
		handler.RoundCompleted(roundEvent(rd))

		if reason, cause := r.terminate(index, st); reason != "" {
			return finish(index+1, reason, cause)
		}
	}
}

// terminate checks the stop conditions in priority order.
func (r *Runner) terminate(index int, st *runState) (Reason, error) {
	p := st.progress
	if p.TargetReached() {
		return ReasonTargetReached, nil
	}
	if index+1 >= r.task.MaxRounds {
		return ReasonMaxRounds, nil
	}
	if limit := r.task.Thresholds.For(p.Stage); limit > 0 && p.RoundsInStage >= limit {
		fault := &StageTimeoutFault{
			faultBase: faultBase{Round: index, Stage: p.Stage},
			Rounds:    p.RoundsInStage,
			Threshold: limit,
		}
		if fault.Fatal() {
			return ReasonStageTimeout, fault
		}
		return ReasonCycleTimeout, fault
	}
	if r.task.NoProgress > 0 && p.RoundsSinceProgress >= r.task.NoProgress {
		return ReasonNoProgress, nil
	}
	if st.finished {
		return ReasonModelFinished, nil
	}
	return "", nil
}

// playRound runs one round up to (not including) the trace append. Only a
// CaptureFault or a task-directory write failure is returned as an error;
// every other fault is folded into the Round.
func (r *Runner) playRound(ctx context.Context, rec *Recorder, index int, st *runState, handler streamers.RunHandler) (Round, error) {
	stage := st.progress.Stage
	r.debugLogger.LogEvent(EventRoundStarted, map[string]any{"round": index, "stage": stage})

	// 1. capture
	shot, err := r.capture(ctx, index, stage)
	if err != nil {
		r.recordFault(err)
		return Round{}, err
	}
	at := r.now()
	rd := Round{Index: index, Stage: stage, Timestamp: at}
	if rd.Screenshot, err = rec.SaveScreenshot(index, "before", shot, at); err != nil {
		return Round{}, err
	}

	var transportErr error
	var elements []device.Element
	if src, err := call(r, ctx, r.gateway.Source); err != nil {
		transportErr = &TransportFault{faultBase: faultBase{Round: index, Stage: stage, Err: err}, Op: "source"}
		r.logger.Debug("ui tree unavailable", "round", index, "error", err)
	} else if src != "" {
		if rd.UITree, err = rec.SaveSource(index, src); err != nil {
			return Round{}, err
		}
		if elements, err = device.ParseElements(src); err != nil {
			r.logger.Debug("ui tree unparsable", "round", index, "error", err)
		}
	}
	if app, err := call(r, ctx, r.gateway.ActiveApp); err != nil {
		if transportErr == nil {
			transportErr = &TransportFault{faultBase: faultBase{Round: index, Stage: stage, Err: err}, Op: "active_app"}
		}
	} else {
		rd.ActiveApp = app
	}

	image := shot
	if r.task.LabelElements && len(elements) > 0 {
		if labelled, err := device.LabelScreenshot(shot, elements, st.size, 0); err == nil {
			image = labelled
		} else {
			r.logger.Debug("label screenshot", "round", index, "error", err)
		}
	}

	// 2. plan
	instr := r.planner.Next(st.progress, st.recent)
	rd.InstructionKey = instr.Key
	rd.Instruction = instr.Step
	rd.Forced = instr.Forced

	// 3. infer
	action, fault := r.infer(ctx, &rd, index, stage, instr, image, elements, st)

	// 4. execute
	executed := false
	if action != nil && fault == nil {
		if action.Kind == agent.ActionFinish {
			if r.task.IgnorePrematureFinish && !instr.AllowFinish && !st.progress.TargetReached() {
				fault = &ModelFault{faultBase: faultBase{Round: index, Stage: stage, Err: errPrematureFinish}, Raw: rd.Response}
				r.debugLogger.LogEvent(EventPrematureFinish, map[string]any{"round": index})
			} else {
				st.finished = true
				executed = true
				rd.Reason = "finish requested"
			}
		} else {
			exec := &executor{gw: r.gateway, elements: elements, size: st.size, sleep: r.sleep}
			desc, err := r.execute(ctx, exec, action)
			if err != nil {
				fault = &ActionFault{faultBase: faultBase{Round: index, Stage: stage, Err: err}, Action: action.String()}
			} else {
				executed = true
				rd.Reason = desc
			}
			r.debugLogger.LogEvent(EventActionExecuted, map[string]any{
				"round":  index,
				"action": action.String(),
				"ok":     err == nil,
				"detail": desc,
			})
		}
	}
	rd.OK = executed

	// 5. progress
	obs := Observation{
		Stage:      stage,
		Action:     action,
		Executed:   executed,
		Forced:     instr.Forced,
		Foreground: rd.ActiveApp,
		BundleID:   r.task.BundleID,
		InItemView: st.inItemView,
	}
	if stage.IsGating() && executed && action.IsGesture() {
		if app, err := call(r, ctx, r.gateway.ActiveApp); err == nil {
			obs.Foreground = app
		}
	}
	rd.Progress = r.predicates.Progress(obs)
	st.inItemView = nextItemView(obs)
	rd.InItemView = st.inItemView

	before := st.progress
	st.progress = st.progress.Advance(rd.Progress)
	rd.Completed = st.progress.Completed
	if st.progress.Stage != before.Stage {
		handler.StageChanged(streamers.StageChanged{Round: index, From: string(before.Stage), To: string(st.progress.Stage)})
		r.debugLogger.LogEvent(EventStageChanged, map[string]any{"round": index, "from": before.Stage, "to": st.progress.Stage})
	}

	if fault == nil {
		fault = transportErr
	}
	if fault != nil {
		rd.Fault = &FaultRecord{Kind: KindOf(fault), Error: fault.Error()}
		if rd.Reason == "" {
			rd.Reason = fault.Error()
		}
		r.recordFault(fault)
	}

	st.recent = appendWindow(st.recent, planner.Outcome{
		Index:      index,
		Stage:      stage,
		Action:     actionString(action),
		OK:         rd.OK,
		Progress:   rd.Progress,
		InItemView: st.inItemView,
		Fault:      string(KindOf(fault)),
	}, r.task.HistoryWindow)

	// 6. settle
	if r.task.Interval > 0 {
		r.sleep(r.task.Interval)
	}

	r.logger.Info("round", "index", index, "stage", stage, "action", actionString(action),
		"ok", rd.OK, "progress", rd.Progress, "completed", rd.Completed)
	return rd, nil
}

func (r *Runner) infer(ctx context.Context, rd *Round, index int, stage planner.Stage, instr planner.Instruction,
	image []byte, elements []device.Element, st *runState) (*agent.Action, error) {

	r.debugLogger.LogEvent(EventOracleStart, map[string]any{"round": index, "instruction": instr.Key})
	resp, err := r.oracle.Query(ctx, agent.Request{
		Mode:        agent.ModeAct,
		Task:        r.planner.Goal(r.task.Target),
		Instruction: instr.Prompt,
		Images:      [][]byte{image},
		Elements:    elements,
		History:     st.history,
	})
	if err != nil {
		r.debugLogger.LogEvent(EventOracleEnd, map[string]any{"round": index, "error": err.Error()})
		return nil, &ModelFault{faultBase: faultBase{Round: index, Stage: stage, Err: err}}
	}

	rd.Response = resp.Raw
	rd.Assessment = resp.Assessment
	rd.Action = resp.Action
	r.debugLogger.WriteExchange("act", index, instr.Prompt, resp.Raw)
	r.debugLogger.LogEvent(EventOracleEnd, map[string]any{
		"round":         index,
		"call":          resp.Call,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	})

	if resp.Assessment != "" {
		st.history = appendWindow(st.history, resp.Assessment, r.task.HistoryWindow)
	}
	if resp.ParseErr != nil || resp.Action == nil {
		cause := resp.ParseErr
		if cause == nil {
			cause = agent.ErrNoAction
		}
		return nil, &ModelFault{faultBase: faultBase{Round: index, Stage: stage, Err: cause}, Raw: resp.Raw}
	}
	return resp.Action, nil
}

// capture takes a screenshot with exponential backoff.
func (r *Runner) capture(ctx context.Context, index int, stage planner.Stage) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	if r.task.CaptureBackoff > 0 {
		b.InitialInterval = r.task.CaptureBackoff
	}
	b.MaxInterval = 10 * b.InitialInterval

	shot, err := backoff.Retry(ctx, func() ([]byte, error) {
		data, err := call(r, ctx, r.gateway.Screenshot)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("empty screenshot")
		}
		return data, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.task.CaptureAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("screenshot failed, retrying", "round", index, "error", err, "next", next)
			r.debugLogger.LogEvent(EventCaptureRetry, map[string]any{"round": index, "error": err.Error()})
		}),
	)
	if err != nil {
		return nil, &CaptureFault{
			faultBase: faultBase{Round: index, Stage: stage, Err: err},
			Attempts:  r.task.CaptureAttempts,
		}
	}
	return shot, nil
}

func (r *Runner) execute(ctx context.Context, exec *executor, act *agent.Action) (string, error) {
	cctx, cancel := r.callContext(ctx)
	defer cancel()
	return exec.run(cctx, act)
}

func (r *Runner) windowSize(ctx context.Context) device.Size {
	size, err := call(r, context.WithoutCancel(ctx), r.gateway.WindowSize)
	if err != nil || size.Width <= 0 || size.Height <= 0 {
		r.logger.Debug("window size unavailable, using default", "error", err)
		return device.DefaultWindowSize
	}
	return size
}

func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.task.CallTimeout > 0 {
		return context.WithTimeout(ctx, r.task.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// call runs one bounded gateway read.
func call[T any](r *Runner, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := r.callContext(ctx)
	defer cancel()
	return fn(cctx)
}

func (r *Runner) recordFault(err error) {
	var f Fault
	if !errors.As(err, &f) {
		return
	}
	r.logger.Warn("fault", "kind", f.Kind(), "round", f.RoundIndex(), "stage", f.StageAt(), "error", err)
	r.debugLogger.LogEvent(EventFault, map[string]any{
		"kind":  f.Kind(),
		"round": f.RoundIndex(),
		"stage": f.StageAt(),
		"error": err.Error(),
	})
}

func roundEvent(rd Round) streamers.RoundCompleted {
	e := streamers.RoundCompleted{
		Round:       rd.Index,
		Stage:       string(rd.Stage),
		Instruction: rd.InstructionKey,
		Action:      actionString(rd.Action),
		OK:          rd.OK,
		Progress:    rd.Progress,
		Completed:   rd.Completed,
		Screenshot:  rd.Screenshot,
	}
	if rd.Fault != nil {
		e.FaultKind = string(rd.Fault.Kind)
		e.Error = rd.Fault.Error
	}
	return e
}

func actionString(a *agent.Action) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func appendWindow[T any](window []T, v T, n int) []T {
	window = append(window, v)
	if n > 0 && len(window) > n {
		window = append([]T(nil), window[len(window)-n:]...)
	}
	return window
}
