// Package session persists conversations in a SQLite database so they can be
// resumed across runs.
package session

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mkaddoura/drover/internal/agent"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session exists for the requested id.
var ErrNotFound = errors.New("session not found")

// Store handles persistence of sessions.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the session database at dbPath.
// dbPath is typically ~/.drover/sessions.db
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL mode allows a reader while a write is in flight.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	// SQLite doesn't support multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping session database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		repo_hash  TEXT NOT NULL,
		repo_path  TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		summary    TEXT NOT NULL DEFAULT '',
		history    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_repo
		ON sessions (repo_hash, updated_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RepoHash generates a consistent hash for a workspace path.
// This is used to scope sessions to a specific project.
func RepoHash(repoPath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(repoPath)))
	return hex.EncodeToString(hash[:])[:12] // Short hash is sufficient
}

// Save upserts a session. The UpdatedAt timestamp is refreshed.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess.RepoHash == "" {
		sess.RepoHash = RepoHash(sess.RepoPath)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()

	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("failed to marshal session history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, repo_hash, repo_path, title, summary, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			summary    = excluded.summary,
			history    = excluded.history,
			updated_at = excluded.updated_at
	`, sess.ID, sess.RepoHash, sess.RepoPath, sess.Title, sess.Summary,
		string(history), sess.CreatedAt.Unix(), sess.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load retrieves a specific session by id, scoped to the given workspace.
func (s *Store) Load(ctx context.Context, id, repoPath string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_hash, repo_path, title, summary, history, created_at, updated_at
		FROM sessions
		WHERE id = ? AND repo_hash = ?
	`, id, RepoHash(repoPath))

	var (
		sess               Session
		history            string
		createdAt, updated int64
	)
	err := row.Scan(&sess.ID, &sess.RepoHash, &sess.RepoPath, &sess.Title,
		&sess.Summary, &history, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updated, 0)
	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	if sess.History == nil {
		sess.History = []agent.Message{}
	}
	return &sess, nil
}

// List returns metadata for all sessions of a workspace, newest first.
func (s *Store) List(ctx context.Context, repoPath string) ([]SessionMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, created_at, updated_at
		FROM sessions
		WHERE repo_hash = ?
		ORDER BY updated_at DESC, id
	`, RepoHash(repoPath))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionMeta{}
	for rows.Next() {
		var (
			meta               SessionMeta
			createdAt, updated int64
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Summary, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		meta.CreatedAt = time.Unix(createdAt, 0)
		meta.UpdatedAt = time.Unix(updated, 0)
		sessions = append(sessions, meta)
	}
	return sessions, rows.Err()
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id, repoPath string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = ? AND repo_hash = ?
	`, id, RepoHash(repoPath))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
