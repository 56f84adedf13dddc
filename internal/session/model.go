package session

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// Session is a persisted conversation tied to one repository.
type Session struct {
	ID        string               `json:"id"`
	RepoPath  string               `json:"repo_path"`
	RepoHash  string               `json:"repo_hash"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	History   []engine.ChatMessage `json:"history"`
	Summary   string               `json:"summary,omitempty"`
}

// SessionMeta is the lightweight listing view, without history.
type SessionMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Summary   string    `json:"summary,omitempty"`
}

// RepoHash derives a stable short identifier for a repository path, so
// sessions from different checkouts never mix.
func RepoHash(repoPath string) string {
	clean := filepath.Clean(repoPath)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])[:12]
}
