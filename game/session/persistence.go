package session

import (
	"time"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
	"github.com/wricardo/mcp-training/storageyard/game/service"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData is the JSON form of a saved session. The grid is not
// stored: a restored session resumes the difficulty ramp and starts a fresh
// episode.
type PersistedSessionData struct {
	ID             string                  `json:"id"`
	ConfigName     string                  `json:"config_name"`
	CreatedAt      time.Time               `json:"created_at"`
	LastAccessedAt time.Time               `json:"last_accessed_at"`
	Curriculum     engine.Curriculum       `json:"curriculum"`
	Episodes       []service.EpisodeRecord `json:"episodes,omitempty"`
}
