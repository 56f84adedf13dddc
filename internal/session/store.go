package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Store persists sessions in a SQLite database under the data directory.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the session database at dataDir/sessions.db.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("session: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("session: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("session: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	repo_path  TEXT NOT NULL,
	repo_hash  TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	history    TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_repo_hash
	ON sessions(repo_hash, updated_at DESC);
`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or updates a session. UpdatedAt is bumped on every save.
func (s *Store) Save(sess *Session) error {
	if sess.ID == "" {
		return errors.New("session: missing id")
	}
	if sess.RepoHash == "" {
		sess.RepoHash = RepoHash(sess.RepoPath)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	sess.UpdatedAt = time.Now().UTC()

	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("session: marshal history: %w", err)
	}

	_, err = s.db.Exec(`
INSERT INTO sessions (id, repo_path, repo_hash, title, summary, history, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title      = excluded.title,
	summary    = excluded.summary,
	history    = excluded.history,
	updated_at = excluded.updated_at`,
		sess.ID, sess.RepoPath, sess.RepoHash, sess.Title, sess.Summary,
		string(history), sess.CreatedAt.Format(time.RFC3339Nano),
		sess.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("session: save %s: %w", sess.ID, err)
	}
	return nil
}

// ErrNotFound is returned when a session id does not exist for the repo.
var ErrNotFound = errors.New("session not found")

// Load retrieves a full session by id, scoped to the repository.
func (s *Store) Load(id, repoPath string) (*Session, error) {
	row := s.db.QueryRow(`
SELECT id, repo_path, repo_hash, title, summary, history, created_at, updated_at
FROM sessions WHERE id = ? AND repo_hash = ?`, id, RepoHash(repoPath))

	var sess Session
	var history, createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.RepoPath, &sess.RepoHash, &sess.Title,
		&sess.Summary, &history, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("session: decode history for %s: %w", id, err)
	}
	if sess.History == nil {
		sess.History = []engine.ChatMessage{}
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sess, nil
}

// List returns session metadata for a repository, newest first.
func (s *Store) List(repoPath string) ([]SessionMeta, error) {
	rows, err := s.db.Query(`
SELECT id, title, summary, updated_at
FROM sessions WHERE repo_hash = ?
ORDER BY updated_at DESC`, RepoHash(repoPath))
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var m SessionMeta
		var updatedAt string
		if err := rows.Scan(&m.ID, &m.Title, &m.Summary, &updatedAt); err != nil {
			return nil, fmt.Errorf("session: scan list row: %w", err)
		}
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete removes a session by id, scoped to the repository.
func (s *Store) Delete(id, repoPath string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ? AND repo_hash = ?`,
		id, RepoHash(repoPath))
	if err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
