package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresTimeout = 10 * time.Second

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    task TEXT NOT NULL,
    task_dir TEXT NOT NULL,
    target INTEGER NOT NULL DEFAULT 0,
    max_rounds INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    reason TEXT,
    rounds INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    seq BIGSERIAL,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);`,
	`CREATE TABLE IF NOT EXISTS rounds (
    run_id TEXT NOT NULL REFERENCES runs(id),
    round_index INTEGER NOT NULL,
    stage TEXT NOT NULL,
    instruction TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT '',
    ok BOOLEAN NOT NULL DEFAULT FALSE,
    progress BOOLEAN NOT NULL DEFAULT FALSE,
    completed INTEGER NOT NULL DEFAULT 0,
    fault_kind TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    screenshot TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, round_index)
);`,
	`CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL DEFAULT '',
    task_dir TEXT NOT NULL,
    report_path TEXT NOT NULL DEFAULT '',
    data_path TEXT NOT NULL DEFAULT '',
    records INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS records (
    report_id TEXT NOT NULL REFERENCES reports(id),
    position INTEGER NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    importance INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT '',
    screenshot TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (report_id, position)
);`,
	`CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    data_json JSONB,
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_events_run ON events (run_id, seq);`,
}

// NewPostgresBundle creates a Bundle backed by a Postgres pool at dsn.
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return &Bundle{
		Runs:    &PostgresRunStore{pool: pool},
		Reports: &PostgresReportStore{pool: pool},
		Events:  &PostgresEventStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func pgContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), postgresTimeout)
}

// pgLimit maps "no limit" onto Postgres' LIMIT ALL, which a NULL parameter gives.
func pgLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

// =============================================================================
// PostgresRunStore
// =============================================================================

type PostgresRunStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresRunStore) CreateRun(r Run) (string, error) {
	ctx, cancel := pgContext()
	defer cancel()

	if r.ID == "" {
		r.ID = generateID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, task, task_dir, target, max_rounds, status, started_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Task, r.TaskDir, r.Target, r.MaxRounds, StatusRunning, r.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return r.ID, nil
}

func (s *PostgresRunStore) FinishRun(id string, out RunOutcome) error {
	ctx, cancel := pgContext()
	defer cancel()

	var errMsg *string
	if out.Error != "" {
		errMsg = &out.Error
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, reason = $2, rounds = $3, completed = $4, error = $5, finished_at = $6 WHERE id = $7`,
		statusFor(out), out.Reason, out.Rounds, out.Completed, errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresRunStore) AppendRound(r RoundRow) error {
	ctx, cancel := pgContext()
	defer cancel()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO rounds (run_id, round_index, stage, instruction, action, ok, progress, completed, fault_kind, error, screenshot, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			r.RunID, r.Index, r.Stage, r.Instruction, r.Action, r.OK, r.Progress, r.Completed, r.FaultKind, r.Error, r.Screenshot, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append round: %w", err)
		}
		_, err = tx.Exec(ctx, `UPDATE runs SET rounds = $1, completed = $2 WHERE id = $3`, r.Index+1, r.Completed, r.RunID)
		return err
	})
}

const pgRunColumns = `id, task, task_dir, target, max_rounds, status, reason, rounds, completed, error, started_at, finished_at`

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var reason *string
	if err := row.Scan(&r.ID, &r.Task, &r.TaskDir, &r.Target, &r.MaxRounds, &r.Status, &reason, &r.Rounds, &r.Completed, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if reason != nil {
		r.Reason = *reason
	}
	return &r, nil
}

func (s *PostgresRunStore) GetRun(id string) (*Run, error) {
	ctx, cancel := pgContext()
	defer cancel()

	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresRunStore) ListRuns(limit, offset int) ([]Run, int, error) {
	ctx, cancel := pgContext()
	defer cancel()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM runs ORDER BY started_at DESC, seq DESC LIMIT $1 OFFSET $2`,
		pgLimit(limit), offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *r)
	}
	return runs, total, rows.Err()
}

func (s *PostgresRunStore) GetRounds(runID string) ([]RoundRow, error) {
	ctx, cancel := pgContext()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT run_id, round_index, stage, instruction, action, ok, progress, completed, fault_kind, error, screenshot, created_at
		 FROM rounds WHERE run_id = $1 ORDER BY round_index`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		if err := rows.Scan(&r.RunID, &r.Index, &r.Stage, &r.Instruction, &r.Action, &r.OK, &r.Progress, &r.Completed, &r.FaultKind, &r.Error, &r.Screenshot, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PostgresReportStore
// =============================================================================

type PostgresReportStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresReportStore) SaveReport(rep Report, records []Record) (string, error) {
	ctx, cancel := pgContext()
	defer cancel()

	if rep.ID == "" {
		rep.ID = generateID()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO reports (id, run_id, task_dir, report_path, data_path, records, skipped, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rep.ID, rep.RunID, rep.TaskDir, rep.ReportPath, rep.DataPath, rep.Records, rep.Skipped, rep.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		batch := &pgx.Batch{}
		for i, r := range records {
			batch.Queue(
				`INSERT INTO records (report_id, position, sender, subject, category, importance, summary, screenshot) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				rep.ID, i, r.Sender, r.Subject, r.Category, r.Importance, r.Summary, r.Screenshot,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return "", err
	}
	return rep.ID, nil
}

func (s *PostgresReportStore) ListReports(limit, offset int) ([]Report, int, error) {
	ctx, cancel := pgContext()
	defer cancel()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, task_dir, report_path, data_path, records, skipped, created_at
		 FROM reports ORDER BY created_at DESC, seq DESC LIMIT $1 OFFSET $2`,
		pgLimit(limit), offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.RunID, &r.TaskDir, &r.ReportPath, &r.DataPath, &r.Records, &r.Skipped, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

func (s *PostgresReportStore) GetRecords(reportID string) ([]Record, error) {
	ctx, cancel := pgContext()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT report_id, position, sender, subject, category, importance, summary, screenshot
		 FROM records WHERE report_id = $1 ORDER BY position`,
		reportID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ReportID, &r.Position, &r.Sender, &r.Subject, &r.Category, &r.Importance, &r.Summary, &r.Screenshot)
		return r, err
	})
}

// =============================================================================
// PostgresEventStore
// =============================================================================

type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresEventStore) StoreEvent(e Event) error {
	ctx, cancel := pgContext()
	defer cancel()

	if e.ID == "" {
		e.ID = generateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var data any
	if e.DataJSON != "" {
		data = e.DataJSON
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, run_id, event_type, data_json, created_at) VALUES ($1, $2, $3, $4::jsonb, $5)`,
		e.ID, e.RunID, e.EventType, data, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetEventsByRun(runID string, limit, offset int) ([]Event, error) {
	ctx, cancel := pgContext()
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, event_type, COALESCE(data_json::text, ''), created_at FROM events WHERE run_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`,
		runID, pgLimit(limit), offset,
	)
	if err != nil {
		return nil, err
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.RunID, &e.EventType, &e.DataJSON, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
