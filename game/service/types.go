package service

import (
	"time"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
)

// SessionInfo provides information about an environment session
type SessionInfo struct {
	ID             string                `json:"id"`
	ConfigName     string                `json:"config_name"`
	CreatedAt      time.Time             `json:"created_at"`
	LastAccessedAt time.Time             `json:"last_accessed_at"`
	Observation    *engine.Observation   `json:"observation"`
	Config         *engine.EnvConfig     `json:"config"`
	Curriculum     engine.Curriculum     `json:"curriculum"`
	Episode        engine.EpisodeSummary `json:"episode"`
}

// StepRequest selects one action. Exactly one form should be set: a flat
// Action index, a transporter Direction ("up", "down", "left", "right" or
// "toggle"), a commander Cell, or a transfer Src/Dst pair.
type StepRequest struct {
	Action    *int             `json:"action,omitempty"`
	Direction string           `json:"direction,omitempty"`
	Cell      *engine.Position `json:"cell,omitempty"`
	Src       *engine.Position `json:"src,omitempty"`
	Dst       *engine.Position `json:"dst,omitempty"`
	Reset     bool             `json:"reset,omitempty"`
}

// StepResponse is the result of a single step
type StepResponse struct {
	engine.StepResult
	SessionID  string         `json:"session_id"`
	EpisodeEnd *EpisodeRecord `json:"episode_end,omitempty"`
	Events     []GameEvent    `json:"events,omitempty"`
}

// BulkOptions configures BulkStep
type BulkOptions struct {
	Reset     bool `json:"reset,omitempty"`
	AutoReset bool `json:"auto_reset,omitempty"`
}

// BulkStepResult contains the result of several steps
type BulkStepResult struct {
	StepsExecuted    int                `json:"steps_executed"`
	RequestedSteps   int                `json:"requested_steps"`
	TotalReward      float64            `json:"total_reward"`
	Observation      engine.Observation `json:"observation"`
	Steps            []StepSummary      `json:"steps,omitempty"`
	Episodes         []EpisodeRecord    `json:"episodes,omitempty"`
	Events           []GameEvent        `json:"events"`
	StoppedReason    string             `json:"stopped_reason,omitempty"`
	StopReasonCode   string             `json:"stop_reason_code,omitempty"` // terminated|truncated|limit
	StoppedOnStep    int                `json:"stopped_on_step,omitempty"`
	Limited          bool               `json:"limited,omitempty"`
	Limit            int                `json:"limit,omitempty"`
}

// StepSummary is a compact per-step trace entry
type StepSummary struct {
	Idx         int            `json:"idx"`
	Action      int            `json:"action"`
	Reward      float64        `json:"reward"`
	Outcome     engine.Outcome `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	Completions int            `json:"completions,omitempty"`
	Terminated  bool           `json:"terminated,omitempty"`
	Truncated   bool           `json:"truncated,omitempty"`
}

// ResetResult describes a fresh episode
type ResetResult struct {
	Observation engine.Observation `json:"observation"`
	Info        engine.ResetInfo   `json:"info"`
}

// SpacesInfo exposes the action and observation descriptors of a session
type SpacesInfo struct {
	Variant          engine.Variant          `json:"variant"`
	ActionSpace      engine.Space            `json:"action_space"`
	ObservationSpace map[string]engine.Space `json:"observation_space"`
}

// GameEvent represents something that happened during a call
type GameEvent struct {
	Type      string    `json:"type"` // "reset", "completion", "episode_end", "level_up"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EpisodeRecord summarizes a finished episode
type EpisodeRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	ConfigName  string    `json:"config_name"`
	Episode     int       `json:"episode"`
	Steps       int       `json:"steps"`
	Reward      float64   `json:"reward"`
	Completions int       `json:"completions"`
	Level       int       `json:"level"`
	Terminated  bool      `json:"terminated"`
	Truncated   bool      `json:"truncated"`
	FinishedAt  time.Time `json:"finished_at"`
}

// EpisodeStats aggregates a session's finished episodes
type EpisodeStats struct {
	SessionID   string  `json:"session_id"`
	Episodes    int     `json:"episodes"`
	Cleared     int     `json:"cleared"`
	ClearRate   float64 `json:"clear_rate"`
	MeanReward  float64 `json:"mean_reward"`
	MeanSteps   float64 `json:"mean_steps"`
	BestReward  float64 `json:"best_reward"`
	MaxLevel    int     `json:"max_level"`
	Completions int     `json:"completions"`
}

// HistoryOptions configures episode history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated episode history
type HistoryResponse struct {
	Episodes      []EpisodeRecord `json:"episodes"`
	TotalEpisodes int             `json:"total_episodes"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
	TotalPages    int             `json:"total_pages"`
	HasNext       bool            `json:"has_next"`
	HasPrevious   bool            `json:"has_previous"`
}

// ConfigInfo provides information about an environment preset
type ConfigInfo struct {
	Filename       string         `json:"filename"`
	ConfigID       string         `json:"config_id"` // The identifier to use for session creation
	Name           string         `json:"name"`      // Display name
	Description    string         `json:"description"`
	Variant        engine.Variant `json:"variant"`
	Rows           int            `json:"rows"`
	Cols           int            `json:"cols"`
	ActionCount    int            `json:"action_count"`
	PlaceableCells int            `json:"placeable_cells"`
	MaxStocks      int            `json:"max_stocks"`
}

// NewConfigInfo summarizes a preset loaded from filename
func NewConfigInfo(filename, configID string, cfg *engine.EnvConfig) *ConfigInfo {
	return &ConfigInfo{
		Filename:       filename,
		ConfigID:       configID,
		Name:           cfg.Name,
		Description:    cfg.Description,
		Variant:        cfg.Variant,
		Rows:           cfg.Rows,
		Cols:           cfg.Cols,
		ActionCount:    cfg.ActionCount(),
		PlaceableCells: cfg.PlaceableCells(),
		MaxStocks:      cfg.Curriculum.MaxStocks,
	}
}
