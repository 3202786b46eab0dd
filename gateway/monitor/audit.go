package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// RestartRecord is one persisted restart attempt.
type RestartRecord struct {
	ID          string
	SessionID   string
	WorkspaceID string
	Attempt     int
	Outcome     string
	Detail      string
	AttemptedAt time.Time
}

// RestartAudit persists restart attempts in a local sqlite file so operators
// can reconstruct flapping history across process restarts.
type RestartAudit struct {
	db *sql.DB
}

func NewRestartAudit(storageDir string) (*RestartAudit, error) {
	dbPath := fmt.Sprintf("%s/monitor.db", storageDir)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, err
	}

	createTable := `
		CREATE TABLE IF NOT EXISTS restart_attempts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT,
			attempted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_restart_session ON restart_attempts(session_id, attempted_at);
	`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, err
	}
	return &RestartAudit{db: db}, nil
}

func (a *RestartAudit) Record(ctx context.Context, rec RestartRecord) error {
	if a == nil || a.db == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttemptedAt.IsZero() {
		rec.AttemptedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO restart_attempts (id, session_id, workspace_id, attempt, outcome, detail, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.WorkspaceID, rec.Attempt, rec.Outcome, rec.Detail, rec.AttemptedAt,
	)
	return err
}

// History returns the most recent attempts for one session, newest first.
func (a *RestartAudit) History(ctx context.Context, sessionID string, limit int) ([]RestartRecord, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("restart audit storage not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, session_id, workspace_id, attempt, outcome, detail, attempted_at
		 FROM restart_attempts WHERE session_id = ? ORDER BY attempted_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RestartRecord
	for rows.Next() {
		var r RestartRecord
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.SessionID, &r.WorkspaceID, &r.Attempt, &r.Outcome, &detail, &r.AttemptedAt); err != nil {
			return nil, err
		}
		r.Detail = detail.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (a *RestartAudit) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
