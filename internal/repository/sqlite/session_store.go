package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"repoinsight/internal/entity"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/repository/contract"

	_ "modernc.org/sqlite"
)

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SessionStore persists tasks and user state in a local SQLite file.
type SessionStore struct {
	conn   *sql.DB
	logger logger.ILogger
	dbPath string
}

var _ contract.SessionStore = (*SessionStore)(nil)

// Open opens or creates the database at dbPath. ":memory:" is accepted for tests.
func Open(dbPath string, log logger.ILogger) (*SessionStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	// one writer; also keeps the per-connection pragmas below in effect
	// and gives ":memory:" a single shared database
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SessionStore{conn: conn, logger: log, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	log.Info("SQLiteStore", "Session database ready", map[string]interface{}{"path": dbPath})
	return s, nil
}

func (s *SessionStore) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS analysis_tasks (
			session_id TEXT PRIMARY KEY,
			repo_url TEXT NOT NULL,
			user_origin TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			embedding TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON analysis_tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_user ON analysis_tasks(user_origin, created_at DESC);

		CREATE TABLE IF NOT EXISTS user_states (
			user_id TEXT PRIMARY KEY,
			current_repo_url TEXT,
			analysis_session_id TEXT,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SessionStore) SaveTask(ctx context.Context, task *entity.AnalysisTask) error {
	now := time.Now().UTC()
	created := task.CreatedAt
	if created.IsZero() {
		created = now
	}

	var embedding sql.NullString
	if len(task.Embedding) > 0 {
		raw, err := json.Marshal(task.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embedding = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO analysis_tasks (session_id, repo_url, user_origin, status, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			repo_url = excluded.repo_url,
			user_origin = excluded.user_origin,
			status = excluded.status,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		task.SessionID, task.RepoURL, task.UserOrigin, string(task.Status), embedding,
		created.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.SessionID, err)
	}
	return nil
}

func (s *SessionStore) UpdateTaskStatus(ctx context.Context, sessionID string, status entity.TaskStatus) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE analysis_tasks SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(status), time.Now().UTC().Format(timeLayout), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return contract.ErrTaskNotFound
	}
	return nil
}

func (s *SessionStore) DeleteTask(ctx context.Context, sessionID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM analysis_tasks WHERE session_id = ?`, sessionID)
	return err
}

func (s *SessionStore) ListTasksByStatus(ctx context.Context, status entity.TaskStatus) ([]*entity.AnalysisTask, error) {
	return s.queryTasks(ctx, `WHERE status = ?`, string(status))
}

func (s *SessionStore) ListUserTasks(ctx context.Context, userOrigin string) ([]*entity.AnalysisTask, error) {
	return s.queryTasks(ctx, `WHERE user_origin = ?`, userOrigin)
}

func (s *SessionStore) queryTasks(ctx context.Context, where string, arg interface{}) ([]*entity.AnalysisTask, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT session_id, repo_url, user_origin, status, embedding, created_at, updated_at
		FROM analysis_tasks `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*entity.AnalysisTask{}
	for rows.Next() {
		var (
			t                  entity.AnalysisTask
			status             string
			embedding          sql.NullString
			createdAt, updated string
		)
		if err := rows.Scan(&t.SessionID, &t.RepoURL, &t.UserOrigin, &status, &embedding, &createdAt, &updated); err != nil {
			return nil, err
		}
		t.Status = entity.TaskStatus(status)
		if embedding.Valid {
			if err := json.Unmarshal([]byte(embedding.String), &t.Embedding); err != nil {
				s.logger.Warn("SQLiteStore", "Corrupt embedding column", map[string]interface{}{"session_id": t.SessionID, "error": err})
			}
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (s *SessionStore) GetUserState(ctx context.Context, userID string) (*entity.UserState, error) {
	var (
		st      entity.UserState
		repo    sql.NullString
		job     sql.NullString
		updated string
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id, current_repo_url, analysis_session_id, updated_at FROM user_states WHERE user_id = ?`,
		userID,
	).Scan(&st.UserID, &repo, &job, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.CurrentRepoURL = repo.String
	st.AnalysisSessionID = job.String
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &st, nil
}

func (s *SessionStore) SaveUserState(ctx context.Context, state *entity.UserState) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO user_states (user_id, current_repo_url, analysis_session_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_repo_url = excluded.current_repo_url,
			analysis_session_id = excluded.analysis_session_id,
			updated_at = excluded.updated_at`,
		state.UserID, state.CurrentRepoURL, state.AnalysisSessionID, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save user state %s: %w", state.UserID, err)
	}
	return nil
}

func (s *SessionStore) DeleteUserState(ctx context.Context, userID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM user_states WHERE user_id = ?`, userID)
	return err
}

func (s *SessionStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
