package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    task TEXT NOT NULL,
    task_dir TEXT NOT NULL,
    target INTEGER NOT NULL DEFAULT 0,
    max_rounds INTEGER NOT NULL DEFAULT 0,
    status TEXT DEFAULT 'running',
    reason TEXT,
    rounds INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS rounds (
    run_id TEXT NOT NULL REFERENCES runs(id),
    round_index INTEGER NOT NULL,
    stage TEXT NOT NULL,
    instruction TEXT,
    action TEXT,
    ok INTEGER NOT NULL DEFAULT 0,
    progress INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    fault_kind TEXT,
    error TEXT,
    screenshot TEXT,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, round_index)
);

CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    run_id TEXT,
    task_dir TEXT NOT NULL,
    report_path TEXT,
    data_path TEXT,
    records INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    report_id TEXT NOT NULL REFERENCES reports(id),
    position INTEGER NOT NULL,
    sender TEXT,
    subject TEXT,
    category TEXT,
    importance INTEGER NOT NULL DEFAULT 0,
    summary TEXT,
    screenshot TEXT,
    PRIMARY KEY (report_id, position)
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, created_at);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Runs:    &SQLiteRunStore{db: db},
		Reports: &SQLiteReportStore{db: db},
		Events:  &SQLiteEventStore{db: db},
		closer:  db.Close,
	}, nil
}

// =============================================================================
// SQLiteRunStore
// =============================================================================

type SQLiteRunStore struct {
	db *sql.DB
}

func (s *SQLiteRunStore) CreateRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = generateID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, task, task_dir, target, max_rounds, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Task, r.TaskDir, r.Target, r.MaxRounds, StatusRunning, r.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return r.ID, nil
}

func (s *SQLiteRunStore) FinishRun(id string, out RunOutcome) error {
	var errMsg *string
	if out.Error != "" {
		errMsg = &out.Error
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, reason = ?, rounds = ?, completed = ?, error = ?, finished_at = ? WHERE id = ?`,
		statusFor(out), out.Reason, out.Rounds, out.Completed, errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteRunStore) AppendRound(r RoundRow) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO rounds (run_id, round_index, stage, instruction, action, ok, progress, completed, fault_kind, error, screenshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Index, r.Stage, r.Instruction, r.Action, r.OK, r.Progress, r.Completed, r.FaultKind, r.Error, r.Screenshot, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append round: %w", err)
	}
	if _, err := tx.Exec(`UPDATE runs SET rounds = ?, completed = ? WHERE id = ?`, r.Index+1, r.Completed, r.RunID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return tx.Commit()
}

const runColumns = `id, task, task_dir, target, max_rounds, status, reason, rounds, completed, error, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var reason, errMsg sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.Task, &r.TaskDir, &r.Target, &r.MaxRounds, &r.Status, &reason, &r.Rounds, &r.Completed, &errMsg, &r.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if reason.Valid {
		r.Reason = reason.String
	}
	if errMsg.Valid {
		r.Error = &errMsg.String
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

func (s *SQLiteRunStore) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteRunStore) ListRuns(limit, offset int) ([]Run, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *r)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteRunStore) GetRounds(runID string) ([]RoundRow, error) {
	rows, err := s.db.Query(
		`SELECT run_id, round_index, stage, instruction, action, ok, progress, completed, fault_kind, error, screenshot, created_at
		 FROM rounds WHERE run_id = ? ORDER BY round_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		var instruction, action, faultKind, errMsg, screenshot sql.NullString
		if err := rows.Scan(&r.RunID, &r.Index, &r.Stage, &instruction, &action, &r.OK, &r.Progress, &r.Completed, &faultKind, &errMsg, &screenshot, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Instruction = instruction.String
		r.Action = action.String
		r.FaultKind = faultKind.String
		r.Error = errMsg.String
		r.Screenshot = screenshot.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SQLiteReportStore
// =============================================================================

type SQLiteReportStore struct {
	db *sql.DB
}

func (s *SQLiteReportStore) SaveReport(rep Report, records []Record) (string, error) {
	if rep.ID == "" {
		rep.ID = generateID()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO reports (id, run_id, task_dir, report_path, data_path, records, skipped, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.RunID, rep.TaskDir, rep.ReportPath, rep.DataPath, rep.Records, rep.Skipped, rep.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	for i, r := range records {
		_, err := tx.Exec(
			`INSERT INTO records (report_id, position, sender, subject, category, importance, summary, screenshot) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, i, r.Sender, r.Subject, r.Category, r.Importance, r.Summary, r.Screenshot,
		)
		if err != nil {
			return "", fmt.Errorf("save record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return rep.ID, nil
}

func (s *SQLiteReportStore) ListReports(limit, offset int) ([]Report, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, task_dir, report_path, data_path, records, skipped, created_at
		 FROM reports ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		var r Report
		var runID, reportPath, dataPath sql.NullString
		if err := rows.Scan(&r.ID, &runID, &r.TaskDir, &reportPath, &dataPath, &r.Records, &r.Skipped, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		r.RunID = runID.String
		r.ReportPath = reportPath.String
		r.DataPath = dataPath.String
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

func (s *SQLiteReportStore) GetRecords(reportID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT report_id, position, sender, subject, category, importance, summary, screenshot
		 FROM records WHERE report_id = ? ORDER BY position`,
		reportID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var sender, subject, category, summary, screenshot sql.NullString
		if err := rows.Scan(&r.ReportID, &r.Position, &sender, &subject, &category, &r.Importance, &summary, &screenshot); err != nil {
			return nil, err
		}
		r.Sender = sender.String
		r.Subject = subject.String
		r.Category = category.String
		r.Summary = summary.String
		r.Screenshot = screenshot.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SQLiteEventStore
// =============================================================================

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) StoreEvent(e Event) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO events (id, run_id, event_type, data_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.EventType, e.DataJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

func (s *SQLiteEventStore) GetEventsByRun(runID string, limit, offset int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, event_type, data_json, created_at FROM events WHERE run_id = ? ORDER BY created_at, rowid LIMIT ? OFFSET ?`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.DataJSON = data.String
		events = append(events, e)
	}
	return events, rows.Err()
}
