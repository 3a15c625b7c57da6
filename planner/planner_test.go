package planner_test

import (
	"mobilepilot/planner"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MailPlanner", func() {
	var p *planner.MailPlanner

	BeforeEach(func() {
		p = planner.NewMailPlanner("")
	})

	It("defaults to the Mail app", func() {
		Expect(p.App).To(Equal("Mail"))
		Expect(p.Goal(5)).To(ContainSubstring("Open Mail app"))
		Expect(p.Goal(5)).To(ContainSubstring("five most recent"))
	})

	DescribeTable("picks the step for each stage",
		func(stage planner.Stage, key string) {
			in := p.Next(planner.State{Stage: stage, Target: 5}, nil)
			Expect(in.Key).To(Equal(key))
			Expect(in.Stage).To(Equal(stage))
			Expect(in.Forced).To(BeFalse())
			Expect(in.Prompt).To(HaveSuffix("Single step goal: " + in.Step))
		},
		Entry(nil, planner.StageOpenApp, planner.KeyOpenApp),
		Entry(nil, planner.StageEnterList, planner.KeyEnterList),
		Entry(nil, planner.StageSelectItems, planner.KeySelectItems),
		Entry(nil, planner.StageOpenItem, planner.KeyOpenItem),
		Entry(nil, planner.StageViewItem, planner.KeyViewItem),
		Entry(nil, planner.StageReturnToList, planner.KeyReturnToList),
	)

	It("describes the Mail icon only for Mail", func() {
		in := p.Next(planner.NewState(5), nil)
		Expect(in.Step).To(ContainSubstring("white envelope"))

		other := planner.NewMailPlanner("Outlook").Next(planner.NewState(5), nil)
		Expect(other.Step).To(ContainSubstring("Outlook app icon"))
		Expect(other.Step).NotTo(ContainSubstring("envelope"))
	})

	It("adds the progress line once items are done", func() {
		in := p.Next(planner.State{Stage: planner.StageOpenItem, Completed: 2, Target: 5}, nil)
		Expect(in.Prompt).To(ContainSubstring("already opened 2 email(s)"))

		in = p.Next(planner.State{Stage: planner.StageOpenItem, Target: 5}, nil)
		Expect(in.Prompt).NotTo(ContainSubstring("Progress:"))
	})

	It("forces a return when an item is still showing", func() {
		recent := []planner.Outcome{{Index: 7, Stage: planner.StageReturnToList, OK: false, InItemView: true}}
		in := p.Next(planner.State{Stage: planner.StageOpenItem, Target: 5}, recent)
		Expect(in.Key).To(Equal(planner.KeyReturnToList))
		Expect(in.Forced).To(BeTrue())
		Expect(in.Stage).To(Equal(planner.StageOpenItem))
	})

	It("only looks at the latest outcome", func() {
		recent := []planner.Outcome{{InItemView: true}, {InItemView: false}}
		in := p.Next(planner.State{Stage: planner.StageOpenItem, Target: 5}, recent)
		Expect(in.Key).To(Equal(planner.KeyOpenItem))
	})

	It("allows finish only once the target is reached", func() {
		in := p.Next(planner.State{Stage: planner.StageViewItem, Target: 5, Completed: 4}, nil)
		Expect(in.AllowFinish).To(BeFalse())
		Expect(in.Prompt).To(ContainSubstring("Do NOT call finish()"))

		in = p.Next(planner.State{Stage: planner.StageDone, Target: 3, Completed: 3}, nil)
		Expect(in.Key).To(Equal(planner.KeyFinish))
		Expect(in.AllowFinish).To(BeTrue())
		Expect(in.Step).To(ContainSubstring("target: 3"))
		Expect(in.Prompt).NotTo(ContainSubstring("Do NOT call finish()"))
	})
})
