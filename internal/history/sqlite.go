package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists transcripts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single connection serializes index assignment across sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT    NOT NULL,
			idx        INTEGER NOT NULL,
			role       TEXT    NOT NULL,
			payload    TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (session_id, idx)
		);
		CREATE TABLE IF NOT EXISTS executions (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL,
			session_id TEXT NOT NULL,
			agent      TEXT NOT NULL,
			function   TEXT NOT NULL,
			params     TEXT NOT NULL DEFAULT '{}',
			cluster    TEXT NOT NULL DEFAULT '',
			result     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_session ON executions (session_id);
	`)
	return err
}

// turnPayload is the JSON column of a turn.
type turnPayload struct {
	Text   string        `json:"text,omitempty"`
	Call   *CallRecord   `json:"call,omitempty"`
	Result *ResultRecord `json:"result,omitempty"`
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn Turn) (Turn, error) {
	if err := turn.Validate(); err != nil {
		return Turn{}, err
	}
	payload, err := json.Marshal(turnPayload{Text: turn.Text, Call: turn.Call, Result: turn.Result})
	if err != nil {
		return Turn{}, fmt.Errorf("marshal turn payload: %w", err)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Turn{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(idx), 0) + 1 FROM turns WHERE session_id = ?", sessionID,
	).Scan(&next); err != nil {
		return Turn{}, fmt.Errorf("next turn index: %w", err)
	}
	turn.Index = next

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO turns (session_id, idx, role, payload, created_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, turn.Index, string(turn.Role), string(payload), turn.Timestamp.Format(time.RFC3339Nano),
	); err != nil {
		return Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Turn{}, fmt.Errorf("commit append: %w", err)
	}
	return turn, nil
}

func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, role, payload, created_at FROM turns WHERE session_id = ? ORDER BY idx", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	return scanTurns(rows)
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, role, payload, created_at FROM (
			SELECT idx, role, payload, created_at FROM turns
			WHERE session_id = ? ORDER BY idx DESC LIMIT ?
		) ORDER BY idx`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t         Turn
			role      string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&t.Index, &role, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var p turnPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("unmarshal turn %d: %w", t.Index, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse turn %d timestamp: %w", t.Index, err)
		}
		t.Role = Role(role)
		t.Text, t.Call, t.Result = p.Text, p.Call, p.Result
		t.Timestamp = ts
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) RecordExecution(ctx context.Context, exec Execution) error {
	params, err := json.Marshal(exec.Params)
	if err != nil {
		return fmt.Errorf("marshal execution params: %w", err)
	}
	result, err := json.Marshal(exec.Result)
	if err != nil {
		return fmt.Errorf("marshal execution result: %w", err)
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, session_id, agent, function, params, cluster, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.SessionID, exec.Agent, exec.Function, string(params), exec.Cluster, string(result),
		exec.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Executions(ctx context.Context, sessionID string) ([]Execution, error) {
	query := "SELECT id, session_id, agent, function, params, cluster, result, created_at FROM executions"
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e              Execution
			params, result string
			createdAt      string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Agent, &e.Function, &params, &e.Cluster, &result, &createdAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("unmarshal execution params: %w", err)
		}
		if err := json.Unmarshal([]byte(result), &e.Result); err != nil {
			return nil, fmt.Errorf("unmarshal execution result: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse execution timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM executions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete executions: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
