package streamers_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/store"
	"mobilepilot/streamers"
)

// recorder keeps the names of the events it sees.
type recorder struct {
	streamers.Discard
	seen []string
}

func (r *recorder) RunStarted(streamers.RunStarted)         { r.seen = append(r.seen, "run_started") }
func (r *recorder) RoundCompleted(streamers.RoundCompleted) { r.seen = append(r.seen, "round") }
func (r *recorder) RunFinished(streamers.RunFinished)       { r.seen = append(r.seen, "run_finished") }
func (r *recorder) ItemAnalyzed(streamers.ItemAnalyzed)     { r.seen = append(r.seen, "item") }

var _ = Describe("StoringHandler", func() {
	var (
		bundle *store.Bundle
		inner  *recorder
		h      *streamers.StoringHandler
	)

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		inner = &recorder{}
		h = streamers.NewStoringHandler(inner, bundle.Runs, bundle.Events, nil)
	})

	playRun := func(fatal bool) {
		h.RunStarted(streamers.RunStarted{RunID: "run-1", Task: "mail", TaskDir: "ios_logs/mail", Target: 2, Max: 10, At: time.Now()})
		h.StageChanged(streamers.StageChanged{Round: 0, From: "open_app", To: "enter_list"})
		h.RoundCompleted(streamers.RoundCompleted{Round: 0, Stage: "open_app", Instruction: "open Mail", Action: "open_app", OK: true, Progress: true})
		h.RoundCompleted(streamers.RoundCompleted{Round: 1, Stage: "enter_list", Instruction: "tap inbox", OK: false, FaultKind: "transport", Error: "timeout"})
		h.RunFinished(streamers.RunFinished{Reason: "no-progress", Fatal: fatal, Rounds: 2, Completed: 1, Target: 2})
	}

	It("persists the run and its rounds", func() {
		playRun(false)

		run, err := bundle.Runs.GetRun("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Task).To(Equal("mail"))
		Expect(run.Status).To(Equal(store.StatusCompleted))
		Expect(run.Reason).To(Equal("no-progress"))
		Expect(run.Rounds).To(Equal(2))
		Expect(run.Completed).To(Equal(1))

		rounds, err := bundle.Runs.GetRounds("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rounds).To(HaveLen(2))
		Expect(rounds[1].FaultKind).To(Equal("transport"))
		Expect(rounds[1].OK).To(BeFalse())
	})

	It("marks fatal runs as failed", func() {
		playRun(true)
		run, err := bundle.Runs.GetRun("run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(store.StatusFailed))
	})

	It("stores every event in order", func() {
		playRun(false)
		events, err := bundle.Events.GetEventsByRun("run-1", 0, 0)
		Expect(err).NotTo(HaveOccurred())
		var types []string
		for _, e := range events {
			types = append(types, e.EventType)
		}
		Expect(types).To(Equal([]string{
			"run_started", "stage_changed", "round_completed", "round_completed", "run_finished",
		}))
		Expect(events[2].DataJSON).To(ContainSubstring(`"instruction":"open Mail"`))
	})

	It("delegates to the inner handler", func() {
		playRun(false)
		Expect(inner.seen).To(Equal([]string{"run_started", "round", "round", "run_finished"}))
	})

	It("keys standalone analysis events by directory", func() {
		h.AnalysisStarted(streamers.AnalysisStarted{Dir: "ios_logs/mail", Total: 1})
		h.ItemAnalyzed(streamers.ItemAnalyzed{Index: 1, Total: 1, Path: "a.png", Status: "record"})
		h.AnalysisCompleted(streamers.AnalysisCompleted{Records: 1})

		events, err := bundle.Events.GetEventsByRun("analysis:ios_logs/mail", 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(3))
		Expect(inner.seen).To(Equal([]string{"item"}))
	})

	It("tolerates missing stores", func() {
		h = streamers.NewStoringHandler(nil, nil, nil, nil)
		Expect(func() { playRun(false) }).NotTo(Panic())
	})
})

var _ = Describe("Fanout", func() {
	It("forwards to every handler", func() {
		a, b := &recorder{}, &recorder{}
		f := streamers.Fanout{a, b}
		f.RunStarted(streamers.RunStarted{})
		f.ItemAnalyzed(streamers.ItemAnalyzed{})
		Expect(a.seen).To(Equal([]string{"run_started", "item"}))
		Expect(b.seen).To(Equal(a.seen))
	})
})
