package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// RunRecord is the audit entry kept for every finished run. It carries
// addresses only, never key material.
type RunRecord struct {
	Report
	Status      string `json:"status"`
	ReportPath  string `json:"report_path,omitempty"`
	Total       int    `json:"total"`
	FailedCount int    `json:"failed"`
}

const (
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial_failure"
)

func NewRunRecord(report Report, reportPath string) RunRecord {
	status := RunStatusSucceeded
	if !report.Success() {
		status = RunStatusPartial
	}
	return RunRecord{
		Report:      report,
		Status:      status,
		ReportPath:  reportPath,
		Total:       len(report.Outcomes),
		FailedCount: report.Failed(),
	}
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create run lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			total INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			report_path TEXT NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_runs_action_finished ON runs(action, finished_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init run schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(record RunRecord) error {
	if strings.TrimSpace(record.RunID) == "" {
		return fmt.Errorf("save run: missing run id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock run store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock run store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	started := unixOrNow(record.StartedAt)
	finished := unixOrNow(record.FinishedAt)

	_, err = s.db.Exec(`
		INSERT INTO runs (run_id, action, status, total, failed, started_at, finished_at, report_path, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status,
			total=excluded.total,
			failed=excluded.failed,
			finished_at=excluded.finished_at,
			report_path=excluded.report_path,
			payload=excluded.payload
	`, record.RunID, string(record.Action), record.Status, record.Total, record.FailedCount, started, finished, record.ReportPath, payload)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) Get(runID string) (RunRecord, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("run not found: %s", runID)
		}
		return RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	var record RunRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return RunRecord{}, fmt.Errorf("decode run payload: %w", err)
	}
	return record, nil
}

// List returns the most recent runs, newest first. An empty action lists
// every action.
func (s *Store) List(action string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(action) == "" {
		rows, err = s.db.Query("SELECT payload FROM runs ORDER BY finished_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM runs WHERE action = ? ORDER BY finished_at DESC LIMIT ?", action, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		var record RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode run row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return records, nil
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
