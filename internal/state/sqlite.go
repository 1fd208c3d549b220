package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS verify_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL DEFAULT '',
			floor_id INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			attempt_ts TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS verify_attempts_floor ON verify_attempts(floor_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}
	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) PutValue(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty settings key")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM app_settings WHERE key = ?`, strings.TrimSpace(key))
	return err
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for key, value := range values {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO app_settings(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, value); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) RecordVerifyAttempt(ctx context.Context, attempt VerifyAttempt) error {
	if attempt.FloorID <= 0 {
		return nil
	}
	ts := attempt.AttemptTS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verify_attempts(session_id, floor_id, correct, attempt_ts) VALUES(?,?,?,?)`,
		strings.TrimSpace(attempt.SessionID),
		attempt.FloorID,
		ifThen(attempt.Correct, 1, 0),
		ts.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) GetFloorStats(ctx context.Context) (map[int]FloorStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			floor_id,
			COUNT(*),
			COALESCE(SUM(correct), 0),
			MAX(attempt_ts),
			COALESCE(MIN(CASE WHEN correct = 1 THEN attempt_ts END), '')
		FROM verify_attempts
		GROUP BY floor_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]FloorStats{}
	for rows.Next() {
		var (
			st          FloorStats
			lastRaw     string
			firstPassed string
		)
		if err := rows.Scan(&st.FloorID, &st.Attempts, &st.Breaches, &lastRaw, &firstPassed); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeLayout, lastRaw); err == nil {
			st.LastAttemptTS = t
		}
		if t, err := time.Parse(timeLayout, firstPassed); err == nil {
			st.FirstBreachedTS = t
		}
		out[st.FloorID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context) (Summary, error) {
	var out Summary
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as attempts,
			COALESCE(SUM(correct),0) as breaches,
			COUNT(DISTINCT floor_id) as floors
		FROM verify_attempts
	`)
	if err := row.Scan(&out.Attempts, &out.Breaches, &out.Floors); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func ifThen(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}
