// Package history archives returned plans in SQLite so they can be listed,
// inspected and replayed in the simulator later.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/vesselplan/internal/observability"
	"github.com/harun/vesselplan/pkg/planner"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no plan has the requested id
var ErrNotFound = errors.New("plan not found")

// Entry is an archived plan together with the request that produced it
type Entry struct {
	Request planner.Request `json:"request"`
	Result  planner.Result  `json:"result"`
}

// Summary is one row of the plan listing
type Summary struct {
	ID        string         `json:"id"`
	Status    planner.Status `json:"validation_status"`
	Attempts  int            `json:"attempts"`
	Waypoints int            `json:"waypoints"`
	CreatedAt time.Time      `json:"created_at"`
}

// Config holds history store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Store persists plans in SQLite
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the history database
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "history").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			waypoints INTEGER NOT NULL,
			safe_distance REAL NOT NULL,
			request TEXT NOT NULL,
			result TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_plans_created_at ON plans(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save archives a plan. Saving the same id twice replaces the earlier row.
func (s *Store) Save(ctx context.Context, req planner.Request, res planner.Result) error {
	if res.ID == "" {
		return errors.New("plan id is required")
	}

	start := time.Now()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plans (id, status, attempts, waypoints, safe_distance, request, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, string(res.Status), res.Attempts, len(res.Waypoints), res.SafeDistance,
		string(reqJSON), string(resJSON), createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}

	observability.RecordHistoryWrite(time.Since(start))
	if n, err := s.Count(ctx); err == nil {
		observability.SetHistoryEntries(n)
	}

	s.logger.Debug().Str("plan_id", res.ID).Str("status", string(res.Status)).Msg("Plan archived")
	return nil
}

// Get returns the archived plan with the given id
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	var reqJSON, resJSON string
	err := s.db.QueryRowContext(ctx, "SELECT request, result FROM plans WHERE id = ?", id).Scan(&reqJSON, &resJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(reqJSON), &entry.Request); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := json.Unmarshal([]byte(resJSON), &entry.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &entry, nil
}

// List returns the most recent plans first. A limit of zero or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	query := "SELECT id, status, attempts, waypoints, created_at FROM plans ORDER BY created_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var status string
		var createdAt int64
		if err := rows.Scan(&sum.ID, &status, &sum.Attempts, &sum.Waypoints, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		sum.Status = planner.Status(status)
		sum.CreatedAt = time.Unix(0, createdAt)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Count returns the number of archived plans
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plans").Scan(&n)
	return n, err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
