package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyStep       = errors.New("step request selects no action")
	ErrAmbiguousStep   = errors.New("step request selects more than one action")
)

// MaxEpisodeHistory bounds the per-session in-memory episode log
const MaxEpisodeHistory = 1000

// GameService defines all environment operations exposed to transports
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string, seed *int64) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Environment Operations
	Step(ctx context.Context, sessionID string, req StepRequest) (*StepResponse, error)
	BulkStep(ctx context.Context, sessionID string, actions []int, opts BulkOptions) (*BulkStepResult, error)
	Reset(ctx context.Context, sessionID string, seed *int64) (*ResetResult, error)

	// Environment State
	Observe(ctx context.Context, sessionID string) (*engine.Observation, error)
	Spaces(ctx context.Context, sessionID string) (*SpacesInfo, error)
	GetEpisodeHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)
	GetEpisodeStats(ctx context.Context, sessionID string) (*EpisodeStats, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.EnvConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.EnvConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configID string, config *engine.EnvConfig) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id, configID string, config *engine.EnvConfig) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles environment preset loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.EnvConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.EnvConfig
	SaveConfig(name string, config *engine.EnvConfig) error
}

// EpisodeRecorder persists finished episodes beyond the session's lifetime
type EpisodeRecorder interface {
	RecordEpisode(ctx context.Context, rec EpisodeRecord) error
	Stats(ctx context.Context, sessionID string) (*EpisodeStats, error)
}

// Session represents an active environment session
type Session struct {
	ID             string
	ConfigID       string
	Env            *engine.Environment
	Config         *engine.EnvConfig
	Episodes       []EpisodeRecord
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// AddEpisode appends a finished episode, dropping the oldest past MaxEpisodeHistory
func (s *Session) AddEpisode(rec EpisodeRecord) {
	s.Episodes = append(s.Episodes, rec)
	if over := len(s.Episodes) - MaxEpisodeHistory; over > 0 {
		s.Episodes = append([]EpisodeRecord(nil), s.Episodes[over:]...)
	}
}
