package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/agent"
	"mobilepilot/analysis"
	"mobilepilot/streamers"
)

type recordingHandler struct {
	streamers.Discard
	items     []streamers.ItemAnalyzed
	completed *streamers.AnalysisCompleted
}

func (h *recordingHandler) ItemAnalyzed(e streamers.ItemAnalyzed) {
	h.items = append(h.items, e)
}

func (h *recordingHandler) AnalysisCompleted(e streamers.AnalysisCompleted) {
	h.completed = &e
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

var _ = Describe("Pipeline", func() {
	var (
		ctx    context.Context
		oracle *inbox
		dir    string
		shots  string
	)

	BeforeEach(func() {
		ctx = context.Background()
		oracle = newInbox()
		dir, shots = taskDir()
	})

	It("writes an empty report for an empty directory", func() {
		p := analysis.NewPipeline(oracle, analysis.WithClock(func() time.Time { return fixedNow }))
		rep, err := p.Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())

		Expect(rep.Records).To(BeEmpty())
		Expect(rep.ByCategory).To(BeEmpty())
		Expect(rep.MeanImportance).To(BeNil())
		Expect(rep.TopSender).To(BeNil())
		Expect(rep.Examined).To(Equal(0))
		Expect(oracle.Calls()).To(Equal(0))

		text := readFile(filepath.Join(dir, analysis.ReportFile))
		Expect(text).To(HavePrefix(strings.Repeat("=", 80) + "\nMAIL CONTENT ANALYSIS REPORT\n"))
		Expect(text).To(ContainSubstring("Generated: 2026-03-14 09:30:00\n"))
		Expect(text).To(ContainSubstring("Total Emails Analyzed: 0\n"))
		Expect(text).To(ContainSubstring("Average Importance Level: N/A\n"))
		Expect(text).To(HaveSuffix("\n\n" + strings.Repeat("=", 80)))

		var doc map[string]any
		Expect(json.Unmarshal([]byte(readFile(filepath.Join(dir, analysis.DataFile))), &doc)).To(Succeed())
		Expect(doc["records"]).To(BeEmpty())
	})

	It("treats a missing directory as empty", func() {
		p := analysis.NewPipeline(oracle)
		rep, err := p.Analyze(ctx, filepath.Join(dir, "nope"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Records).To(BeEmpty())
	})

	It("extracts five emails from view and list pairs", func() {
		types := []string{"Work/Business", "personal", "Newsletter/Marketing", "Work", "Spam/Junk"}
		for i := 0; i < 5; i++ {
			key := fmt.Sprintf("email:%d", i)
			oracle.emails[key] = agent.Extraction{
				Sender:     fmt.Sprintf("Sender %d <s%d@example.com>", i, i),
				Subject:    fmt.Sprintf("Subject number %d", i),
				Summary:    "A message about things.",
				Category:   types[i],
				Importance: i + 1,
				DateTime:   "Today 9:41",
			}
			// rounds 4.. mirror the sub-cycle: view then back at the list
			writeShot(shots, 4+3*i, 1700000000+int64(i), "before", key)
			writeShot(shots, 5+3*i, 1700000001+int64(i), "before", "list")
		}

		h := &recordingHandler{}
		p := analysis.NewPipeline(oracle, analysis.WithHandler(h), analysis.WithClock(func() time.Time { return fixedNow }))
		rep, err := p.Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())

		Expect(rep.Records).To(HaveLen(5))
		Expect(rep.Examined).To(Equal(10))
		Expect(rep.Skipped).To(Equal(5))
		for i, r := range rep.Records {
			Expect(r.Subject).To(Equal(fmt.Sprintf("Subject number %d", i)))
			Expect(analysis.Categories()).To(ContainElement(r.Category))
			Expect(r.Importance).To(BeNumerically(">=", 1))
			Expect(r.Importance).To(BeNumerically("<=", 5))
			Expect(r.Screenshot).To(HavePrefix("screenshots" + string(filepath.Separator)))
		}
		Expect(rep.Records[1].Category).To(Equal(analysis.CategoryPersonal))
		Expect(rep.Records[4].Category).To(Equal(analysis.CategoryOther))
		Expect(*rep.MeanImportance).To(Equal(3.0))
		Expect(rep.ByImportance).To(Equal(map[int]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1}))

		text := readFile(filepath.Join(dir, analysis.ReportFile))
		Expect(text).To(ContainSubstring("Total Emails Analyzed: 5\n"))
		Expect(text).To(ContainSubstring("Work/Business: 2 email(s)\n"))
		Expect(text).To(ContainSubstring("Level 5 (Critical/Urgent): 1 email(s)\n"))
		Expect(text).To(ContainSubstring("HIGHEST IMPORTANCE EMAILS (LEVEL 5)\n"))
		Expect(text).To(ContainSubstring("Average Importance Level: 3.00/5\n"))
		Expect(countLines(text, "Email #")).To(Equal(5))
		Expect(strings.Index(text, "Subject: Subject number 4")).To(BeNumerically("<", strings.Index(text, "Subject: Subject number 0")))

		Expect(h.items).To(HaveLen(10))
		Expect(h.items[0].Status).To(Equal("record"))
		Expect(h.items[1].Status).To(Equal("skipped"))
		Expect(h.completed).NotTo(BeNil())
		Expect(h.completed.Records).To(Equal(5))
	})

	It("collapses duplicates and keeps the longer summary", func() {
		oracle.emails["a"] = agent.Extraction{Sender: "Alice", Subject: "Quarterly  Numbers", Summary: "short", Importance: 4}
		oracle.emails["b"] = agent.Extraction{Sender: " alice ", Subject: "quarterly numbers", Summary: "a much longer summary of the email", Importance: 5}
		oracle.emails["c"] = agent.Extraction{Sender: "Bob", Subject: "Lunch plans", Summary: "lunch", Importance: 2}
		writeShot(shots, 1, 1, "before", "a")
		writeShot(shots, 2, 2, "before", "b")
		writeShot(shots, 3, 3, "before", "c")

		h := &recordingHandler{}
		rep, err := analysis.NewPipeline(oracle, analysis.WithHandler(h)).Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())

		Expect(rep.Records).To(HaveLen(2))
		Expect(rep.Duplicates).To(Equal(1))
		Expect(rep.Records[0].Summary).To(Equal("a much longer summary of the email"))
		Expect(rep.Records[0].Screenshots).To(HaveLen(2))
		Expect(rep.Records[1].Sender).To(Equal("Bob"))
		Expect(h.items[1].Status).To(Equal("duplicate"))
	})

	It("degrades a failed extraction and carries on", func() {
		oracle.fail["bad"] = errors.New("model unavailable")
		oracle.emails["good"] = agent.Extraction{Sender: "Carol", Subject: "Invoice due", Summary: "Pay it", Importance: 9, Category: "Bills"}
		writeShot(shots, 0, 1, "before", "bad")
		writeShot(shots, 1, 2, "before", "good")

		rep, err := analysis.NewPipeline(oracle).Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Records).To(HaveLen(2))

		failed := rep.Records[0]
		Expect(failed.Error).To(Equal("model unavailable"))
		Expect(failed.Sender).To(Equal(analysis.Unknown))
		Expect(failed.Importance).To(Equal(0))
		Expect(failed.Category).To(Equal(analysis.CategoryOther))

		good := rep.Records[1]
		Expect(good.Importance).To(Equal(0))
		Expect(good.Category).To(Equal(analysis.CategoryOther))
		Expect(rep.MeanImportance).To(BeNil())
		Expect(rep.UnknownImportance).To(Equal(2))
		Expect(rep.TopSender).To(Equal(&analysis.SenderCount{Sender: "Carol", Count: 1}))
	})

	It("caps the number of screenshots", func() {
		for i := 0; i < 4; i++ {
			writeShot(shots, i, int64(i), "before", "list")
		}
		rep, err := analysis.NewPipeline(oracle, analysis.WithMaxScreenshots(2)).Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Examined).To(Equal(2))
		Expect(oracle.Calls()).To(Equal(2))
	})

	It("does not query the model twice for the same image", func() {
		oracle.emails["same"] = agent.Extraction{Sender: "Dan", Subject: "Standup notes", Summary: "Notes"}
		writeShot(shots, 0, 1, "before", "same")

		cache, err := analysis.NewCache(0)
		Expect(err).NotTo(HaveOccurred())
		p := analysis.NewPipeline(oracle, analysis.WithCache(cache))

		_, err = p.Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())
		_, err = p.Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())
		Expect(oracle.Calls()).To(Equal(1))
		Expect(cache.Len()).To(Equal(1))
	})

	It("writes reports to an explicit output directory", func() {
		out := filepath.Join(GinkgoT().TempDir(), "out")
		p := analysis.NewPipeline(oracle, analysis.WithOutputDir(out))
		_, err := p.Analyze(ctx, shots)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Join(out, analysis.ReportFile)).To(BeARegularFile())
		Expect(filepath.Join(dir, analysis.ReportFile)).NotTo(BeAnExistingFile())
	})

	It("stops without writing when cancelled", func() {
		writeShot(shots, 0, 1, "before", "list")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := analysis.NewPipeline(oracle).Analyze(cctx, shots)
		Expect(err).To(MatchError(context.Canceled))
		Expect(filepath.Join(dir, analysis.ReportFile)).NotTo(BeAnExistingFile())
	})

	It("re-analyzes when screenshots arrive", func() {
		oracle.emails["first"] = agent.Extraction{Sender: "Eve", Subject: "First email", Summary: "One"}
		oracle.emails["second"] = agent.Extraction{Sender: "Fay", Subject: "Second email", Summary: "Two"}
		writeShot(shots, 0, 1, "before", "first")

		cache, err := analysis.NewCache(8)
		Expect(err).NotTo(HaveOccurred())
		p := analysis.NewPipeline(oracle, analysis.WithCache(cache))

		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		reports := make(chan int, 8)
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- p.Watch(wctx, shots, 50*time.Millisecond, func(rep *analysis.Report, err error) {
				if err == nil {
					reports <- len(rep.Records)
				}
			})
		}()

		Eventually(reports, 5*time.Second).Should(Receive(Equal(1)))
		writeShot(shots, 1, 2, "before", "second")
		Eventually(reports, 5*time.Second).Should(Receive(Equal(2)))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})
})
