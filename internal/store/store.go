// Package store persists finished executions to sqlite for audit and
// aggregate statistics. The live queue is not kept here; the scheduler
// owns that state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mlindgren/vaultagent/internal/domain"
)

const maxStoredResponse = 10240

type Store struct {
	db *sql.DB
}

// Run is one audited execution record.
type Run struct {
	ID          string    `json:"id"`
	AgentPath   string    `json:"agent_path"`
	Status      string    `json:"status"`
	Depth       int       `json:"depth"`
	SpawnedBy   string    `json:"spawned_by,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Cost        float64   `json:"cost"`
	Response    string    `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunStats aggregates the audit table.
type RunStats struct {
	Processed     int     `json:"processed"`
	Failed        int     `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	TotalCost     float64 `json:"total_cost"`
}

func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		agent_path TEXT NOT NULL,
		status TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		spawned_by TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		response TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent_path);
	CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun saves a terminal queue item. Responses are truncated for
// storage.
func (s *Store) RecordRun(item *domain.QueueItem) error {
	if !item.Terminal() || item.CompletedAt == nil {
		return fmt.Errorf("item %s is not terminal", item.ID)
	}

	var durationMs int64
	var cost float64
	var response string
	if item.Result != nil {
		durationMs = item.Result.Duration.Milliseconds()
		cost = item.Result.Cost
		response = item.Result.Response
		if len(response) > maxStoredResponse {
			response = response[:maxStoredResponse] + "\n... (truncated)"
		}
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs
		(id, agent_path, status, depth, spawned_by, duration_ms, cost, response, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.AgentPath, string(item.Status), item.Depth, item.SpawnedBy,
		durationMs, cost, response, item.Error, item.CreatedAt, *item.CompletedAt)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, agent_path, status, depth, COALESCE(spawned_by, ''),
		       duration_ms, cost, COALESCE(response, ''), COALESCE(error, ''),
		       created_at, completed_at
		FROM runs ORDER BY completed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.AgentPath, &r.Status, &r.Depth, &r.SpawnedBy,
			&r.DurationMs, &r.Cost, &r.Response, &r.Error,
			&r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats aggregates all recorded runs.
func (s *Store) Stats() (RunStats, error) {
	var stats RunStats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(duration_ms), 0),
		       COALESCE(SUM(cost), 0)
		FROM runs
	`).Scan(&stats.Processed, &stats.Failed, &stats.AvgDurationMs, &stats.TotalCost)
	return stats, err
}
