package store_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"mobilepilot/config"
	"mobilepilot/store"
)

var _ = Describe("Bundle", func() {
	runStoreTests := func(newBundle func() (*store.Bundle, func())) {
		var (
			bundle  *store.Bundle
			cleanup func()
		)

		BeforeEach(func() {
			bundle, cleanup = newBundle()
		})

		AfterEach(func() {
			cleanup()
		})

		It("returns an empty list when no runs exist", func() {
			runs, total, err := bundle.Runs.ListRuns(10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(BeEmpty())
			Expect(total).To(Equal(0))
		})

		It("tracks a run from start to finish", func() {
			id, err := bundle.Runs.CreateRun(store.Run{Task: "mail_pipeline", TaskDir: "/tmp/task", Target: 5, MaxRounds: 80})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			run, err := bundle.Runs.GetRun(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Status).To(Equal(store.StatusRunning))
			Expect(run.FinishedAt).To(BeNil())

			for i := 0; i < 3; i++ {
				Expect(bundle.Runs.AppendRound(store.RoundRow{
					RunID:     id,
					Index:     i,
					Stage:     "open_app",
					Action:    "wait(1)",
					OK:        true,
					Completed: i / 2,
				})).To(Succeed())
			}

			Expect(bundle.Runs.FinishRun(id, store.RunOutcome{Reason: "stage-timeout", Fatal: true, Rounds: 3, Completed: 1, Error: "limit 3"})).To(Succeed())

			run, err = bundle.Runs.GetRun(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Status).To(Equal(store.StatusFailed))
			Expect(run.Reason).To(Equal("stage-timeout"))
			Expect(run.Rounds).To(Equal(3))
			Expect(run.Completed).To(Equal(1))
			Expect(run.Error).NotTo(BeNil())
			Expect(*run.Error).To(Equal("limit 3"))
			Expect(run.FinishedAt).NotTo(BeNil())

			rounds, err := bundle.Runs.GetRounds(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(rounds).To(HaveLen(3))
			for i, r := range rounds {
				Expect(r.Index).To(Equal(i))
			}
		})

		It("keeps a caller-chosen run id", func() {
			id, err := bundle.Runs.CreateRun(store.Run{ID: "run-42", Task: "t", TaskDir: "d"})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("run-42"))
		})

		It("reports unknown runs as not found", func() {
			_, err := bundle.Runs.GetRun("missing")
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(bundle.Runs.FinishRun("missing", store.RunOutcome{})).To(MatchError(store.ErrNotFound))
		})

		It("lists runs newest first with limit and offset", func() {
			base := time.Now().Add(-time.Hour)
			for i, name := range []string{"r1", "r2", "r3", "r4"} {
				_, err := bundle.Runs.CreateRun(store.Run{ID: name, Task: name, TaskDir: "d", StartedAt: base.Add(time.Duration(i) * time.Minute)})
				Expect(err).NotTo(HaveOccurred())
			}

			runs, total, err := bundle.Runs.ListRuns(2, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(4))
			Expect(runs).To(HaveLen(2))
			Expect(runs[0].ID).To(Equal("r3"))
			Expect(runs[1].ID).To(Equal("r2"))
		})

		It("saves reports with their records", func() {
			id, err := bundle.Reports.SaveReport(store.Report{TaskDir: "/tmp/task", Records: 2, Skipped: 3}, []store.Record{
				{Sender: "Alice", Subject: "Quarterly numbers", Category: "Work/Business", Importance: 4},
				{Sender: "Bob", Subject: "Lunch", Category: "Personal/Social", Importance: 2},
			})
			Expect(err).NotTo(HaveOccurred())

			reports, total, err := bundle.Reports.ListReports(10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(reports[0].ID).To(Equal(id))
			Expect(reports[0].Skipped).To(Equal(3))

			records, err := bundle.Reports.GetRecords(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].Position).To(Equal(0))
			Expect(records[1].Sender).To(Equal("Bob"))
			Expect(records[1].ReportID).To(Equal(id))
		})

		It("stores and pages events by run", func() {
			for i, typ := range []string{"run_started", "round_completed", "run_finished"} {
				Expect(bundle.Events.StoreEvent(store.Event{
					RunID:     "run-1",
					EventType: typ,
					DataJSON:  `{"round":0}`,
					CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
				})).To(Succeed())
			}
			Expect(bundle.Events.StoreEvent(store.Event{RunID: "run-2", EventType: "run_started"})).To(Succeed())

			events, err := bundle.Events.GetEventsByRun("run-1", 2, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].EventType).To(Equal("round_completed"))
			Expect(events[1].EventType).To(Equal("run_finished"))

			events, err = bundle.Events.GetEventsByRun("nonexistent", 100, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})
	}

	Context("Memory backend", func() {
		runStoreTests(func() (*store.Bundle, func()) {
			return store.NewMemoryBundle(), func() {}
		})
	})

	Context("SQLite backend", func() {
		runStoreTests(func() (*store.Bundle, func()) {
			dir, err := os.MkdirTemp("", "store-test-*")
			Expect(err).NotTo(HaveOccurred())

			bundle, err := store.NewSQLiteBundle(filepath.Join(dir, "test.db"))
			Expect(err).NotTo(HaveOccurred())

			return bundle, func() {
				bundle.Close()
				os.RemoveAll(dir)
			}
		})
	})

	Context("Postgres backend", func() {
		runStoreTests(func() (*store.Bundle, func()) {
			dsn := os.Getenv("MOBILEPILOT_TEST_POSTGRES_DSN")
			if dsn == "" {
				Skip("MOBILEPILOT_TEST_POSTGRES_DSN not set")
			}
			bundle, err := store.NewPostgresBundle(context.Background(), dsn)
			Expect(err).NotTo(HaveOccurred())
			return bundle, func() { bundle.Close() }
		})
	})
})

var _ = Describe("NewBundle", func() {
	It("defaults to memory", func() {
		b, err := store.NewBundle(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Runs).To(BeAssignableToTypeOf(&store.MemoryRunStore{}))
	})

	It("creates the sqlite directory", func() {
		path := filepath.Join(GinkgoT().TempDir(), "nested", "store.db")
		b, err := store.NewBundle(context.Background(), &config.StorageConfig{Backend: "sqlite", Path: path})
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()
		Expect(path).To(BeAnExistingFile())
	})

	It("requires a dsn for postgres", func() {
		_, err := store.NewBundle(context.Background(), &config.StorageConfig{Backend: "postgres"})
		Expect(err).To(MatchError(ContainSubstring("dsn")))
	})

	It("rejects unknown backends", func() {
		_, err := store.NewBundle(context.Background(), &config.StorageConfig{Backend: "redis"})
		Expect(err).To(MatchError(ContainSubstring("unknown storage backend")))
	})
})
