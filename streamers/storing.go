package streamers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"mobilepilot/store"
)

// StoringHandler is a Handler decorator that persists runs, rounds and every
// event, then delegates to an inner handler (e.g. CLI or WebSocket).
// Store failures are logged and never stop the run.
type StoringHandler struct {
	inner  Handler
	runs   store.RunStore
	events store.EventStore
	logger hclog.Logger
	now    func() time.Time

	mu    sync.Mutex
	runID string
	// scope keys analysis events that happen outside a run.
	scope string
}

// NewStoringHandler wraps inner with persistence. A nil inner discards.
func NewStoringHandler(inner Handler, runs store.RunStore, events store.EventStore, logger hclog.Logger) *StoringHandler {
	if inner == nil {
		inner = Discard{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StoringHandler{
		inner:  inner,
		runs:   runs,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// RunID is the id of the current run, empty before RunStarted.
func (h *StoringHandler) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID
}

func (h *StoringHandler) key() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runID != "" {
		return h.runID
	}
	return h.scope
}

// storeEvent persists an event, logging (not failing) on error.
func (h *StoringHandler) storeEvent(eventType EventType, data any) {
	if h.events == nil {
		return
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("marshal event data", "type", eventType, "error", err)
		return
	}
	event := store.Event{
		RunID:     h.key(),
		EventType: string(eventType),
		DataJSON:  string(dataJSON),
		CreatedAt: h.now(),
	}
	if err := h.events.StoreEvent(event); err != nil {
		h.logger.Warn("store event", "type", eventType, "error", err)
	}
}

func (h *StoringHandler) RunStarted(e RunStarted) {
	if h.runs != nil {
		id, err := h.runs.CreateRun(store.Run{
			ID:        e.RunID,
			Task:      e.Task,
			TaskDir:   e.TaskDir,
			Target:    e.Target,
			MaxRounds: e.Max,
			StartedAt: e.At,
		})
		if err != nil {
			h.logger.Warn("create run", "run_id", e.RunID, "error", err)
		} else {
			e.RunID = id
		}
	}
	h.mu.Lock()
	h.runID = e.RunID
	h.mu.Unlock()

	h.storeEvent(EventRunStarted, e)
	h.inner.RunStarted(e)
}

func (h *StoringHandler) StageChanged(e StageChanged) {
	h.storeEvent(EventStageChanged, e)
	h.inner.StageChanged(e)
}

func (h *StoringHandler) RoundCompleted(e RoundCompleted) {
	if runID := h.RunID(); h.runs != nil && runID != "" {
		err := h.runs.AppendRound(store.RoundRow{
			RunID:       runID,
			Index:       e.Round,
			Stage:       e.Stage,
			Instruction: e.Instruction,
			Action:      e.Action,
			OK:          e.OK,
			Progress:    e.Progress,
			Completed:   e.Completed,
			FaultKind:   e.FaultKind,
			Error:       e.Error,
			Screenshot:  e.Screenshot,
			CreatedAt:   h.now(),
		})
		if err != nil {
			h.logger.Warn("append round", "run_id", runID, "round", e.Round, "error", err)
		}
	}
	h.storeEvent(EventRoundCompleted, e)
	h.inner.RoundCompleted(e)
}

func (h *StoringHandler) RunFinished(e RunFinished) {
	if runID := h.RunID(); h.runs != nil && runID != "" {
		err := h.runs.FinishRun(runID, store.RunOutcome{
			Reason:    e.Reason,
			Fatal:     e.Fatal,
			Rounds:    e.Rounds,
			Completed: e.Completed,
			Error:     e.Error,
		})
		if err != nil {
			h.logger.Warn("finish run", "run_id", runID, "error", err)
		}
	}
	h.storeEvent(EventRunFinished, e)
	h.inner.RunFinished(e)
}

func (h *StoringHandler) AnalysisStarted(e AnalysisStarted) {
	h.mu.Lock()
	h.scope = "analysis:" + e.Dir
	h.mu.Unlock()

	h.storeEvent(EventAnalysisStarted, e)
	h.inner.AnalysisStarted(e)
}

func (h *StoringHandler) ItemAnalyzed(e ItemAnalyzed) {
	h.storeEvent(EventItemAnalyzed, e)
	h.inner.ItemAnalyzed(e)
}

func (h *StoringHandler) AnalysisCompleted(e AnalysisCompleted) {
	h.storeEvent(EventAnalysisCompleted, e)
	h.inner.AnalysisCompleted(e)
}
