package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Runs:    &MemoryRunStore{runs: make(map[string]*Run), rounds: make(map[string][]RoundRow)},
		Reports: &MemoryReportStore{records: make(map[string][]Record)},
		Events:  &MemoryEventStore{events: make(map[string][]Event)},
	}
}

// =============================================================================
// MemoryRunStore
// =============================================================================

type MemoryRunStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	order  []string
	rounds map[string][]RoundRow
}

func (s *MemoryRunStore) CreateRun(r Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = generateID()
	}
	r.Status = StatusRunning
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	s.runs[r.ID] = &r
	s.order = append(s.order, r.ID)
	return r.ID, nil
}

func (s *MemoryRunStore) FinishRun(id string, out RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	r.Status = statusFor(out)
	r.Reason = out.Reason
	r.Rounds = out.Rounds
	r.Completed = out.Completed
	r.FinishedAt = &now
	if out.Error != "" {
		msg := out.Error
		r.Error = &msg
	}
	return nil
}

func (s *MemoryRunStore) AppendRound(row RoundRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	s.rounds[row.RunID] = append(s.rounds[row.RunID], row)
	if r, ok := s.runs[row.RunID]; ok {
		r.Rounds = row.Index + 1
		r.Completed = row.Completed
	}
	return nil
}

func (s *MemoryRunStore) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *MemoryRunStore) ListRuns(limit, offset int) ([]Run, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		runs = append(runs, *s.runs[s.order[i]])
	}
	return page(runs, limit, offset), len(runs), nil
}

func (s *MemoryRunStore) GetRounds(runID string) ([]RoundRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := append([]RoundRow(nil), s.rounds[runID]...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return rows, nil
}

// =============================================================================
// MemoryReportStore
// =============================================================================

type MemoryReportStore struct {
	mu      sync.Mutex
	reports []Report
	records map[string][]Record
}

func (s *MemoryReportStore) SaveReport(rep Report, records []Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rep.ID == "" {
		rep.ID = generateID()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	rows := make([]Record, len(records))
	for i, r := range records {
		r.ReportID = rep.ID
		r.Position = i
		rows[i] = r
	}
	s.reports = append(s.reports, rep)
	s.records[rep.ID] = rows
	return rep.ID, nil
}

func (s *MemoryReportStore) ListReports(limit, offset int) ([]Report, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := make([]Report, 0, len(s.reports))
	for i := len(s.reports) - 1; i >= 0; i-- {
		reports = append(reports, s.reports[i])
	}
	return page(reports, limit, offset), len(reports), nil
}

func (s *MemoryReportStore) GetRecords(reportID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records[reportID]...), nil
}

// =============================================================================
// MemoryEventStore
// =============================================================================

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (s *MemoryEventStore) StoreEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = generateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.events[e.RunID] = append(s.events[e.RunID], e)
	return nil
}

func (s *MemoryEventStore) GetEventsByRun(runID string, limit, offset int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return page(append([]Event(nil), s.events[runID]...), limit, offset), nil
}

// =============================================================================
// Helpers
// =============================================================================

func generateID() string {
	return uuid.NewString()
}
