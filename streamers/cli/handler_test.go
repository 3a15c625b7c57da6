package cli

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/streamers"
)

var _ = Describe("Handler", func() {
	var (
		buf *bytes.Buffer
		h   *Handler
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		h = NewHandler(buf, false)
	})

	It("prints the run header", func() {
		h.RunStarted(streamers.RunStarted{RunID: "abc", Task: "mail_pipeline", TaskDir: "ios_logs/x", Target: 5, Max: 80})
		Expect(buf.String()).To(ContainSubstring("=== Run: mail_pipeline ==="))
		Expect(buf.String()).To(ContainSubstring("Target: 5 item(s) within 80 round(s)"))
	})

	It("shows faults on rounds", func() {
		h.RoundCompleted(streamers.RoundCompleted{Round: 3, Stage: "view_item", OK: false, FaultKind: "transport", Error: "connection refused"})
		Expect(buf.String()).To(ContainSubstring("[3] view_item"))
		Expect(buf.String()).To(ContainSubstring("transport: connection refused"))
	})

	It("shows instructions only when verbose", func() {
		e := streamers.RoundCompleted{Round: 0, Stage: "open_app", Instruction: "open the Mail app", Action: "open_app", OK: true}
		h.RoundCompleted(e)
		Expect(buf.String()).NotTo(ContainSubstring("instruction:"))

		buf.Reset()
		NewHandler(buf, true).RoundCompleted(e)
		Expect(buf.String()).To(ContainSubstring("instruction: open the Mail app"))
	})

	DescribeTable("run outcomes",
		func(e streamers.RunFinished, want string) {
			h.RunFinished(e)
			Expect(buf.String()).To(ContainSubstring(want))
		},
		Entry("target reached", streamers.RunFinished{Reason: "target-reached", Rounds: 30, Completed: 5, Target: 5}, "[Run finished: target-reached"),
		Entry("early stop", streamers.RunFinished{Reason: "no-progress", Completed: 2, Target: 5}, "[Run stopped early: no-progress, completed 2 of 5]"),
		Entry("abort", streamers.RunFinished{Reason: "capture-unavailable", Fatal: true, Target: 5, Error: "no screenshot"}, "[Run aborted: capture-unavailable"),
	)

	It("reports analysis progress", func() {
		h.AnalysisStarted(streamers.AnalysisStarted{Dir: "ios_logs/x", Total: 2})
		h.ItemAnalyzed(streamers.ItemAnalyzed{Index: 1, Total: 2, Path: "ios_logs/x/a.png", Status: "record", Sender: "Alice"})
		h.ItemAnalyzed(streamers.ItemAnalyzed{Index: 2, Total: 2, Path: "ios_logs/x/b.png", Status: "error", Error: "timeout"})
		h.AnalysisCompleted(streamers.AnalysisCompleted{Records: 1, ReportPath: "ios_logs/x/mail_analysis_report.txt"})

		out := buf.String()
		Expect(out).To(ContainSubstring("[1/2] a.png"))
		Expect(out).To(ContainSubstring("Alice"))
		Expect(out).To(ContainSubstring("[2/2] b.png"))
		Expect(out).To(ContainSubstring("timeout"))
		Expect(out).To(ContainSubstring("[Analysis complete: 1 record(s), 0 skipped]"))
		Expect(out).NotTo(ContainSubstring("Analyzing"))
	})

	It("truncates on rune boundaries", func() {
		Expect(truncate("héllo wörld", 8)).To(Equal("héllo..."))
		Expect(truncate("a\nb", 10)).To(Equal("a b"))
	})

	It("renders markdown", func() {
		Expect(RenderMarkdown("# Title\n\nbody", 80)).To(ContainSubstring("Title"))
	})
})
