package cmd

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/analysis"
	"mobilepilot/config"
	"mobilepilot/device/browser"
	"mobilepilot/device/wda"
	"mobilepilot/store"
)

var _ = Describe("loadConfig", func() {
	BeforeEach(func() {
		GinkgoT().Setenv("HOME", GinkgoT().TempDir())
		for _, k := range []string{config.EnvDeviceURL, config.EnvAPIBase, config.EnvModelName, config.EnvAPIKey, config.EnvAgentType} {
			GinkgoT().Setenv(k, "")
		}
	})

	It("falls back to the defaults for a directory without HCL files", func() {
		GinkgoT().Setenv(config.EnvDeviceURL, "http://192.168.1.20:8100")

		cfg, err := loadConfig(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		task, err := cfg.GetTask("")
		Expect(err).NotTo(HaveOccurred())
		Expect(task.Name).To(Equal("mail_pipeline"))
		Expect(task.TargetCount).To(Equal(5))

		dev, err := cfg.GetDevice("")
		Expect(err).NotTo(HaveOccurred())
		Expect(dev.URL).To(Equal("http://192.168.1.20:8100"))
	})

	It("loads the HCL files of a directory", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(`
model "local" {
  provider = "openai"
}

device "phone" {
  url = "http://10.0.0.2:8100"
}

task "triage" {
  model        = models.local
  device       = devices.phone
  target_count = 2
}
`), 0644)).To(Succeed())

		cfg, err := loadConfig(dir)
		Expect(err).NotTo(HaveOccurred())
		task, err := cfg.GetTask("")
		Expect(err).NotTo(HaveOccurred())
		Expect(task.Name).To(Equal("triage"))
		Expect(task.TargetCount).To(Equal(2))
	})

	It("reports a missing path", func() {
		_, err := loadConfig(filepath.Join(GinkgoT().TempDir(), "nope.hcl"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("missionTask", func() {
	It("carries every task setting into the runner task", func() {
		t := config.Task{
			Name:                "triage",
			App:                 "Mail",
			TaskDir:             "logs/triage",
			MaxRounds:           20,
			TargetCount:         3,
			RequestInterval:     "1s",
			OpenAppTimeout:      4,
			EnterListTimeout:    5,
			CycleTimeout:        6,
			MaxNoProgressRounds: 7,
			CaptureAttempts:     2,
			CaptureBackoff:      "100ms",
			HistoryWindow:       3,
			LabelElements:       true,
		}
		t.Defaults()
		d := config.Device{Name: "phone", Timeout: "12s"}
		d.Defaults()

		mt := missionTask(&t, &d)
		Expect(mt.Name).To(Equal("triage"))
		Expect(mt.Dir).To(Equal("logs/triage"))
		Expect(mt.MaxRounds).To(Equal(20))
		Expect(mt.Target).To(Equal(3))
		Expect(mt.Interval).To(Equal(time.Second))
		Expect(mt.Thresholds.OpenApp).To(Equal(4))
		Expect(mt.Thresholds.EnterList).To(Equal(5))
		Expect(mt.Thresholds.Cycle).To(Equal(6))
		Expect(mt.NoProgress).To(Equal(7))
		Expect(mt.CaptureAttempts).To(Equal(2))
		Expect(mt.CaptureBackoff).To(Equal(100 * time.Millisecond))
		Expect(mt.HistoryWindow).To(Equal(3))
		Expect(mt.IgnorePrematureFinish).To(BeTrue())
		Expect(mt.LabelElements).To(BeTrue())
		Expect(mt.CallTimeout).To(Equal(12 * time.Second))
		Expect(mt.Validate()).To(Succeed())
	})

	It("leaves the bundle id for the runner to resolve from the app", func() {
		t := config.DefaultTask()
		mt := missionTask(&t, nil)
		Expect(mt.App).To(Equal("Mail"))
		Expect(mt.BundleID).To(BeEmpty())
	})
})

var _ = Describe("buildGateway", func() {
	It("builds a WDA client by default", func() {
		d := config.Device{Name: "phone"}
		d.Defaults()
		gw, err := buildGateway(&d, newLogger(false))
		Expect(err).NotTo(HaveOccurred())
		Expect(gw).To(BeAssignableToTypeOf(&wda.Client{}))
	})

	It("builds a browser gateway", func() {
		d := config.Device{Name: "web", Type: config.DeviceBrowser}
		d.Defaults()
		gw, err := buildGateway(&d, newLogger(false))
		Expect(err).NotTo(HaveOccurred())
		Expect(gw).To(BeAssignableToTypeOf(&browser.Gateway{}))
	})

	It("rejects unknown types", func() {
		_, err := buildGateway(&config.Device{Name: "x", Type: "adb"}, newLogger(false))
		Expect(err).To(MatchError(ContainSubstring("unknown type")))
	})
})

var _ = Describe("pluginSettings", func() {
	It("flattens the device block for the plugin", func() {
		headless := false
		d := config.Device{
			Name:     "web",
			Type:     config.DevicePlugin,
			Plugin:   "gateway_browser",
			Browser:  "webkit",
			Headless: &headless,
			Apps:     map[string]string{"com.apple.mobilemail": "https://mail.example.com"},
			Width:    390,
			Height:   844,
			Timeout:  "20s",
			Retries:  2,
		}
		settings := pluginSettings(&d)
		Expect(settings).To(HaveKeyWithValue("timeout", "20s"))
		Expect(settings).To(HaveKeyWithValue("retries", "2"))

		s, err := browser.ParseSettings(settings)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.BrowserType).To(Equal("webkit"))
		Expect(s.Headless).To(BeFalse())
		Expect(s.Viewport.Width).To(Equal(390))
		Expect(s.Apps).To(HaveKeyWithValue("com.apple.mobilemail", "https://mail.example.com"))
	})
})

var _ = Describe("persistReport", func() {
	It("stores the report and its records in order", func() {
		stores := store.NewMemoryBundle()
		p := analysis.NewPipeline(nil)
		at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		rep := analysis.Aggregate([]analysis.EmailRecord{
			{Sender: "Alice", Subject: "Invoice", Category: analysis.CategoryWork, Importance: 4, Screenshot: "screenshots/a.png"},
			{Sender: "Bob", Subject: "Lunch", Category: analysis.CategoryPersonal, Importance: 2, Screenshot: "screenshots/b.png"},
		}, at)
		rep.Skipped = 1

		id, err := persistReport(stores.Reports, p, rep, "run-1", "logs/triage")
		Expect(err).NotTo(HaveOccurred())

		reports, total, err := stores.Reports.ListReports(10, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
		Expect(reports[0].ID).To(Equal(id))
		Expect(reports[0].RunID).To(Equal("run-1"))
		Expect(reports[0].Records).To(Equal(2))
		Expect(reports[0].Skipped).To(Equal(1))
		Expect(reports[0].ReportPath).To(Equal(filepath.Join("logs/triage", analysis.ReportFile)))

		records, err := stores.Reports.GetRecords(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].Position).To(Equal(0))
		Expect(records[1].Position).To(Equal(1))
		senders := []string{records[0].Sender, records[1].Sender}
		Expect(senders).To(ConsistOf("Alice", "Bob"))
	})
})

var _ = Describe("run flags", func() {
	AfterEach(func() {
		runAnalyzeAfter = false
		Expect(runCmd.Flags().Set("analyze", "false")).To(Succeed())
	})

	It("binds --analyze on the run command", func() {
		Expect(runCmd.Flags().Lookup("analyze")).NotTo(BeNil())
		Expect(runCmd.Flags().Set("analyze", "true")).To(Succeed())
		Expect(runAnalyzeAfter).To(BeTrue())
	})
})
