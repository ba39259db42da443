package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/policyscore/internal/contract"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	schema_version  TEXT NOT NULL,
	measure_version TEXT,
	config_hash     TEXT,
	macro_value     REAL,
	status          TEXT NOT NULL,
	violations      INTEGER NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT
);

CREATE TABLE IF NOT EXISTS aggregate_scores (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	level           TEXT NOT NULL,
	group_id        TEXT NOT NULL,
	parent_id       TEXT,
	value           REAL NOT NULL,
	normalized      REAL NOT NULL,
	coherence       REAL,
	penalty_applied REAL NOT NULL,
	payload_json    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_scores_run_level ON aggregate_scores(run_id, level, group_id);

CREATE TABLE IF NOT EXISTS violations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	invariant_id  TEXT NOT NULL,
	severity      TEXT NOT NULL,
	group_id      TEXT,
	message       TEXT,
	observed      TEXT,
	expected      TEXT,
	remediation   TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT,
	kind        TEXT NOT NULL,
	detail      TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS baseline (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	run_id  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store-struct
// Store persists runs, their aggregates and violations in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store-struct

// #region save-run
// SaveRun writes a run with every aggregate and violation in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *hierarchy.Run, meta RunMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var macro any
	if run.Macro != nil {
		macro = run.Macro.Value
	}
	status := "ok"
	if meta.Failed {
		status = "failed"
	}
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, schema_version, measure_version, config_hash, macro_value, status, violations, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, meta.SchemaVersion, nullIfEmpty(meta.MeasureVersion), nullIfEmpty(meta.ConfigHash), macro,
		status, len(run.Violations), run.StartedAt.UTC().Format(time.RFC3339Nano), finished,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, level := range hierarchy.Levels() {
		for _, sc := range run.Levels[level] {
			payload, err := json.Marshal(sc)
			if err != nil {
				return fmt.Errorf("marshal score %s: %w", sc.GroupID, err)
			}
			var coherence any
			if sc.Coherence != nil {
				coherence = *sc.Coherence
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO aggregate_scores (id, run_id, level, group_id, parent_id, value, normalized, coherence, penalty_applied, payload_json)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sc.ID, run.ID, string(sc.Level), sc.GroupID, nullIfEmpty(sc.ParentID),
				sc.Value, sc.Normalized, coherence, sc.PenaltyApplied, string(payload),
			)
			if err != nil {
				return fmt.Errorf("insert score %s: %w", sc.GroupID, err)
			}
		}
	}

	for _, v := range run.Violations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO violations (run_id, invariant_id, severity, group_id, message, observed, expected, remediation)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(v.InvariantID), string(v.Severity), nullIfEmpty(v.GroupID),
			v.Message, v.Observed, v.Expected, v.Remediation,
		)
		if err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	clog.FromContext(ctx).With("run_id", run.ID, "status", status).Debug("run saved")
	return nil
}

// #endregion save-run

// #region get-run
const runColumns = `run_id, schema_version, measure_version, config_hash, macro_value, status, violations, started_at, finished_at`

// GetRun retrieves one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var measure, hash, finished sql.NullString
	var macro sql.NullFloat64
	var started string
	if err := sc.Scan(&rec.RunID, &rec.SchemaVersion, &measure, &hash, &macro, &rec.Status,
		&rec.Violations, &started, &finished); err != nil {
		return RunRecord{}, err
	}
	rec.MeasureVersion = measure.String
	rec.ConfigHash = hash.String
	if macro.Valid {
		v := macro.Float64
		rec.MacroValue = &v
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return rec, nil
}

// #endregion get-run

// #region scores
// Scores returns the aggregates of one level of a run, ordered by group id.
func (s *Store) Scores(ctx context.Context, runID string, level hierarchy.Level) ([]hierarchy.AggregateScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM aggregate_scores WHERE run_id = ? AND level = ? ORDER BY group_id`,
		runID, string(level))
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []hierarchy.AggregateScore
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		var sc hierarchy.AggregateScore
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			return nil, fmt.Errorf("unmarshal score: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// LoadRun rebuilds a hierarchy.Run from its stored rows.
func (s *Store) LoadRun(ctx context.Context, id string) (*hierarchy.Run, error) {
	rec, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	run := &hierarchy.Run{
		ID:         rec.RunID,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Levels:     make(map[hierarchy.Level][]hierarchy.AggregateScore),
	}
	for _, level := range hierarchy.Levels() {
		scores, err := s.Scores(ctx, id, level)
		if err != nil {
			return nil, err
		}
		if len(scores) > 0 {
			run.Levels[level] = scores
		}
	}
	if macro := run.Levels[hierarchy.LevelMacro]; len(macro) == 1 {
		run.Macro = &macro[0]
	}
	if run.Violations, err = s.Violations(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// Violations returns the violations recorded for a run.
func (s *Store) Violations(ctx context.Context, runID string) ([]contract.Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT invariant_id, severity, group_id, message, observed, expected, remediation
		 FROM violations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var out []contract.Violation
	for rows.Next() {
		var v contract.Violation
		var inv, sev string
		var group, msg, obs, exp, rem sql.NullString
		if err := rows.Scan(&inv, &sev, &group, &msg, &obs, &exp, &rem); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.InvariantID = contract.InvariantID(inv)
		v.Severity = contract.Severity(sev)
		v.GroupID, v.Message, v.Observed, v.Expected, v.Remediation =
			group.String, msg.String, obs.String, exp.String, rem.String
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion scores

// #region baseline
// SetBaseline marks a stored run as the reference for comparisons.
func (s *Store) SetBaseline(ctx context.Context, runID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO baseline (id, run_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id`, runID)
	if err != nil {
		return fmt.Errorf("set baseline: %w", err)
	}
	return s.LogEvent(ctx, Event{RunID: runID, Kind: "baseline"})
}

// Baseline returns the current reference run.
func (s *Store) Baseline(ctx context.Context) (RunRecord, error) {
	var id string
	if err := s.db.QueryRowContext(ctx, `SELECT run_id FROM baseline WHERE id = 1`).Scan(&id); err != nil {
		return RunRecord{}, fmt.Errorf("get baseline: %w", err)
	}
	return s.GetRun(ctx, id)
}

// #endregion baseline

// #region events
// LogEvent writes a provenance entry.
func (s *Store) LogEvent(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provenance_log (run_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		nullIfEmpty(e.RunID), e.Kind, nullIfEmpty(e.Detail), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Events returns the provenance entries of a run, oldest first.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, kind, detail, created_at FROM provenance_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var id, detail sql.NullString
		var created string
		if err := rows.Scan(&id, &e.Kind, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.RunID, e.Detail = id.String, detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion events
