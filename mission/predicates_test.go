package mission_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/agent"
	"mobilepilot/device"
	"mobilepilot/mission"
	"mobilepilot/planner"
)

var _ = Describe("DefaultPredicates", func() {
	p := mission.DefaultPredicates()
	tap := &agent.Action{Kind: agent.ActionTap, Index: 1}
	back := &agent.Action{Kind: agent.ActionBack}
	wait := &agent.Action{Kind: agent.ActionWait}

	DescribeTable("progress",
		func(o mission.Observation, want bool) {
			o.BundleID = device.MailBundleID
			Expect(p.Progress(o)).To(Equal(want))
		},
		Entry("open app once Mail is in front",
			mission.Observation{Stage: planner.StageOpenApp, Foreground: "com.apple.mobilemail"}, true),
		Entry("open app on the home screen",
			mission.Observation{Stage: planner.StageOpenApp, Action: tap, Executed: true, Foreground: "com.apple.springboard"}, false),
		Entry("enter list needs an executed action",
			mission.Observation{Stage: planner.StageEnterList, Foreground: "com.apple.mobilemail"}, false),
		Entry("enter list inside Mail",
			mission.Observation{Stage: planner.StageEnterList, Action: wait, Executed: true, Foreground: "com.apple.mobilemail"}, true),
		Entry("select items always advances",
			mission.Observation{Stage: planner.StageSelectItems}, true),
		Entry("open item on a tap",
			mission.Observation{Stage: planner.StageOpenItem, Action: tap, Executed: true}, true),
		Entry("open item on a failed tap",
			mission.Observation{Stage: planner.StageOpenItem, Action: tap}, false),
		Entry("open item on a forced round",
			mission.Observation{Stage: planner.StageOpenItem, Action: tap, Executed: true, Forced: true}, false),
		Entry("view item on anything executed",
			mission.Observation{Stage: planner.StageViewItem, Action: wait, Executed: true}, true),
		Entry("return on back",
			mission.Observation{Stage: planner.StageReturnToList, Action: back, Executed: true, InItemView: true}, true),
		Entry("return on a tapped nav-bar back element",
			mission.Observation{Stage: planner.StageReturnToList, Action: tap, Executed: true, InItemView: true}, true),
		Entry("return on a failed gesture",
			mission.Observation{Stage: planner.StageReturnToList, Action: tap, InItemView: true}, false),
		Entry("return when already on the list",
			mission.Observation{Stage: planner.StageReturnToList, Action: wait, Executed: true}, true),
		Entry("done never progresses",
			mission.Observation{Stage: planner.StageDone, Executed: true}, false),
	)
})

var _ = Describe("Faults", func() {
	It("wraps the cause and exposes round and stage", func() {
		cause := errors.New("no such element")
		var err error = &mission.ActionFault{Action: "tap(3)"}
		Expect(mission.KindOf(err)).To(Equal(mission.FaultAction))
		Expect(mission.KindOf(cause)).To(BeEmpty())

		wrapped := fmt.Errorf("round failed: %w", &mission.CaptureFault{Attempts: 3})
		var f mission.Fault
		Expect(errors.As(wrapped, &f)).To(BeTrue())
		Expect(f.Kind()).To(Equal(mission.FaultCapture))
		Expect(f.StageAt()).To(BeEmpty())
	})

	It("classifies reasons", func() {
		for _, r := range []mission.Reason{mission.ReasonTargetReached, mission.ReasonMaxRounds, mission.ReasonCycleTimeout, mission.ReasonNoProgress, mission.ReasonModelFinished} {
			Expect(r.Fatal()).To(BeFalse(), string(r))
		}
		for _, r := range []mission.Reason{mission.ReasonStageTimeout, mission.ReasonCaptureUnavailable, mission.ReasonCancelled} {
			Expect(r.Fatal()).To(BeTrue(), string(r))
		}
	})
})

var _ = Describe("Recorder", func() {
	It("writes rounds and the terminal marker in order", func() {
		dir := GinkgoT().TempDir()
		rec, err := mission.NewRecorder(dir)
		Expect(err).NotTo(HaveOccurred())

		at := time.Unix(1700000000, 0)
		rel, err := rec.SaveScreenshot(0, "before", []byte("png"), at)
		Expect(err).NotTo(HaveOccurred())
		Expect(rel).To(Equal(filepath.Join("screenshots", "screenshot-0-1700000000-before.png")))

		Expect(rec.AppendRound(mission.Round{Index: 0, Stage: planner.StageOpenApp, Screenshot: rel})).To(Succeed())
		Expect(rec.Terminate(mission.Terminal{Reason: mission.ReasonMaxRounds, Rounds: 1})).To(Succeed())
		Expect(rec.Close()).To(Succeed())

		rounds, term, err := mission.ReadTrace(filepath.Join(dir, "traces", "trace.jsonl"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rounds).To(HaveLen(1))
		Expect(rounds[0].Type).To(Equal("round"))
		Expect(rounds[0].Screenshot).To(Equal(rel))
		Expect(term.Type).To(Equal("terminal"))
		Expect(term.Reason).To(Equal(mission.ReasonMaxRounds))
	})

	It("rejects unknown record types", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace.jsonl")
		Expect(os.WriteFile(path, []byte(`{"type":"round","index":0}`+"\n"+`{"type":"bogus"}`+"\n"), 0644)).To(Succeed())
		_, _, err := mission.ReadTrace(path)
		Expect(err).To(MatchError(ContainSubstring(":2: unknown record type")))
	})
})
