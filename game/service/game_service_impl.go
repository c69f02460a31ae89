package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	recorder EpisodeRecorder
	logger   *zap.Logger
	mu       sync.RWMutex
}

// Option configures the game service
type Option func(*gameServiceImpl)

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *gameServiceImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder persists finished episodes through rec
func WithRecorder(rec EpisodeRecorder) Option {
	return func(s *gameServiceImpl) {
		s.recorder = rec
	}
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, opts ...Option) GameService {
	s := &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession creates a new session, optionally seeding its first episode
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string, seed *int64) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config *engine.EnvConfig
	var err error
	configID := configName
	if configName != "" {
		config, err = s.configs.LoadConfig(configName)
		if err != nil {
			// Provide helpful error message with available options
			if strings.Contains(err.Error(), "configuration not found") {
				return nil, fmt.Errorf("config '%s' not found. Available configs: %v", configName, s.availableConfigIDs())
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		config = s.configs.GetDefault()
		configID = s.getConfigID(config.Name)
	}

	// Let session manager generate the ID
	sess, err := s.sessions.Create("", configID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if seed != nil {
		if _, _, err := sess.Env.ResetWithSeed(*seed); err != nil {
			return nil, fmt.Errorf("failed to seed session: %w", err)
		}
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("config", configID),
		zap.String("variant", string(config.Variant)))

	return sessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}
	return sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// Step applies one action in whichever form the request selects
func (s *gameServiceImpl) Step(ctx context.Context, sessionID string, req StepRequest) (*StepResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}

	var events []GameEvent
	if req.Reset {
		_, info, err := sess.Env.Reset()
		if err != nil {
			return nil, fmt.Errorf("reset failed: %w", err)
		}
		events = append(events, resetEvent(info))
	}

	res, err := s.dispatch(sess.Env, req)
	if err != nil {
		return nil, err
	}

	resp := &StepResponse{StepResult: res, SessionID: sessionID}
	resp.Events = append(events, stepEvents(res)...)
	if res.Terminated || res.Truncated {
		rec := s.endEpisode(ctx, sess)
		resp.EpisodeEnd = &rec
	}
	return resp, nil
}

// BulkStep applies a sequence of flat actions. It stops at the end of an
// episode unless opts.AutoReset starts a new one.
func (s *gameServiceImpl) BulkStep(ctx context.Context, sessionID string, actions []int, opts BulkOptions) (*BulkStepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}

	result := &BulkStepResult{
		RequestedSteps: len(actions),
		Events:         make([]GameEvent, 0),
	}

	if opts.Reset {
		_, info, err := sess.Env.Reset()
		if err != nil {
			return nil, fmt.Errorf("reset failed: %w", err)
		}
		result.Events = append(result.Events, resetEvent(info))
	}

	// Limit steps to prevent abuse
	if len(actions) > engine.MaxBulkSteps {
		result.Limited = true
		result.Limit = engine.MaxBulkSteps
		actions = actions[:engine.MaxBulkSteps]
	}

	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if sess.Env.Done() {
			if !opts.AutoReset {
				result.StoppedReason = "episode finished, reset required"
				result.StopReasonCode = "episode_over"
				result.StoppedOnStep = i + 1
				break
			}
			_, info, err := sess.Env.Reset()
			if err != nil {
				return nil, fmt.Errorf("auto reset failed: %w", err)
			}
			result.Events = append(result.Events, resetEvent(info))
		}

		res, err := sess.Env.Step(engine.Action(a))
		if err != nil {
			result.StoppedReason = fmt.Sprintf("step %d: %v", i+1, err)
			result.StopReasonCode = "invalid_action"
			result.StoppedOnStep = i + 1
			break
		}

		result.StepsExecuted++
		result.TotalReward += res.Reward
		result.Steps = append(result.Steps, StepSummary{
			Idx:         i + 1,
			Action:      a,
			Reward:      res.Reward,
			Outcome:     res.Info.Outcome,
			Reason:      res.Info.Reason,
			Completions: len(res.Info.Completions),
			Terminated:  res.Terminated,
			Truncated:   res.Truncated,
		})
		result.Events = append(result.Events, stepEvents(res)...)

		if res.Terminated || res.Truncated {
			result.Episodes = append(result.Episodes, s.endEpisode(ctx, sess))
			if !opts.AutoReset {
				result.StopReasonCode = "terminated"
				if res.Truncated {
					result.StopReasonCode = "truncated"
				}
				result.StoppedReason = "episode " + result.StopReasonCode
				result.StoppedOnStep = i + 1
				break
			}
		}
	}

	result.Observation = sess.Env.Observe()
	if result.StopReasonCode == "" && result.Limited {
		result.StopReasonCode = "limit"
		result.StoppedReason = fmt.Sprintf("bulk step limited to %d actions", engine.MaxBulkSteps)
	}
	return result, nil
}

// Reset starts a new episode, reseeding when seed is set
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string, seed *int64) (*ResetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}

	var obs engine.Observation
	var info engine.ResetInfo
	if seed != nil {
		obs, info, err = sess.Env.ResetWithSeed(*seed)
	} else {
		obs, info, err = sess.Env.Reset()
	}
	if err != nil {
		return nil, fmt.Errorf("reset failed: %w", err)
	}

	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("failed to persist session after reset", zap.String("session_id", sessionID), zap.Error(err))
	}
	return &ResetResult{Observation: obs, Info: info}, nil
}

// Observe returns the current observation
func (s *gameServiceImpl) Observe(ctx context.Context, sessionID string) (*engine.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}
	obs := sess.Env.Observe()
	return &obs, nil
}

// Spaces describes the session's action and observation spaces
func (s *gameServiceImpl) Spaces(ctx context.Context, sessionID string) (*SpacesInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}
	return &SpacesInfo{
		Variant:          sess.Config.Variant,
		ActionSpace:      sess.Env.ActionSpace(),
		ObservationSpace: sess.Env.ObservationSpace(),
	}, nil
}

// GetEpisodeHistory returns paginated finished episodes
func (s *gameServiceImpl) GetEpisodeHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}

	// Set defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	episodes := make([]EpisodeRecord, len(sess.Episodes))
	copy(episodes, sess.Episodes)
	if opts.Order == "desc" {
		for i, j := 0, len(episodes)-1; i < j; i, j = i+1, j-1 {
			episodes[i], episodes[j] = episodes[j], episodes[i]
		}
	}

	total := len(episodes)
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &HistoryResponse{
		Episodes:      episodes[start:end],
		TotalEpisodes: total,
		Page:          opts.Page,
		PageSize:      opts.Limit,
		TotalPages:    totalPages,
		HasNext:       opts.Page < totalPages,
		HasPrevious:   opts.Page > 1,
	}, nil
}

// GetEpisodeStats aggregates finished episodes, preferring the recorder
func (s *gameServiceImpl) GetEpisodeStats(ctx context.Context, sessionID string) (*EpisodeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		stats, err := s.recorder.Stats(ctx, sessionID)
		if err == nil {
			return stats, nil
		}
		s.logger.Warn("episode recorder stats failed, using in-memory history",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	return SummarizeEpisodes(sessionID, sess.Episodes), nil
}

// ListConfigs returns available presets
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a preset by ID
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.EnvConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig stores a preset
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.EnvConfig) error {
	return s.configs.SaveConfig(configName, config)
}

// SummarizeEpisodes aggregates a list of finished episodes
func SummarizeEpisodes(sessionID string, episodes []EpisodeRecord) *EpisodeStats {
	stats := &EpisodeStats{SessionID: sessionID, Episodes: len(episodes)}
	if len(episodes) == 0 {
		return stats
	}

	var rewardSum float64
	var stepSum int
	stats.BestReward = episodes[0].Reward
	for _, ep := range episodes {
		if ep.Terminated {
			stats.Cleared++
		}
		rewardSum += ep.Reward
		stepSum += ep.Steps
		stats.Completions += ep.Completions
		if ep.Reward > stats.BestReward {
			stats.BestReward = ep.Reward
		}
		if ep.Level > stats.MaxLevel {
			stats.MaxLevel = ep.Level
		}
	}

	n := float64(len(episodes))
	stats.ClearRate = float64(stats.Cleared) / n
	stats.MeanReward = rewardSum / n
	stats.MeanSteps = float64(stepSum) / n
	return stats
}

// dispatch resolves a StepRequest to one environment call
func (s *gameServiceImpl) dispatch(env *engine.Environment, req StepRequest) (engine.StepResult, error) {
	forms := 0
	if req.Action != nil {
		forms++
	}
	if req.Direction != "" {
		forms++
	}
	if req.Cell != nil {
		forms++
	}
	if req.Src != nil || req.Dst != nil {
		forms++
	}
	switch {
	case forms == 0:
		return engine.StepResult{}, ErrEmptyStep
	case forms > 1:
		return engine.StepResult{}, ErrAmbiguousStep
	}

	switch {
	case req.Action != nil:
		return env.Step(engine.Action(*req.Action))
	case req.Direction != "":
		name := strings.ToLower(strings.TrimSpace(req.Direction))
		if name == "toggle" {
			return env.ToggleLoad()
		}
		dir, ok := engine.ParseDirection(name)
		if !ok {
			return engine.StepResult{}, fmt.Errorf("%w: unknown direction %q", engine.ErrInvalidAction, req.Direction)
		}
		return env.Move(dir)
	case req.Cell != nil:
		return env.Select(*req.Cell)
	default:
		if req.Src == nil || req.Dst == nil {
			return engine.StepResult{}, fmt.Errorf("%w: transfer needs both src and dst", engine.ErrInvalidAction)
		}
		return env.Transfer(*req.Src, *req.Dst)
	}
}

// endEpisode records the finished episode in memory, the recorder and the
// session store
func (s *gameServiceImpl) endEpisode(ctx context.Context, sess *Session) EpisodeRecord {
	ep := sess.Env.Episode()
	rec := EpisodeRecord{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		ConfigName:  sess.ConfigID,
		Episode:     ep.Episode,
		Steps:       ep.Steps,
		Reward:      ep.Reward,
		Completions: ep.Completions,
		Level:       ep.Level,
		Terminated:  ep.Terminated,
		Truncated:   ep.Truncated,
		FinishedAt:  time.Now(),
	}
	sess.AddEpisode(rec)

	s.logger.Info("episode finished",
		zap.String("session_id", sess.ID),
		zap.Int("episode", rec.Episode),
		zap.Int("steps", rec.Steps),
		zap.Float64("reward", rec.Reward),
		zap.Bool("cleared", rec.Terminated))

	if s.recorder != nil {
		if err := s.recorder.RecordEpisode(ctx, rec); err != nil {
			s.logger.Warn("failed to record episode", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	if err := s.sessions.Save(sess.ID); err != nil {
		s.logger.Warn("failed to persist session after episode", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return rec
}

// touch looks up a session and refreshes its access time
func (s *gameServiceImpl) touch(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if err := s.sessions.UpdateLastAccessed(sessionID); err != nil {
		s.logger.Debug("failed to update last access", zap.String("session_id", sessionID), zap.Error(err))
	}
	return sess, nil
}

// getConfigID maps a display name to its config ID for consistent responses
func (s *gameServiceImpl) getConfigID(configName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

func (s *gameServiceImpl) availableConfigIDs() []string {
	var ids []string
	if configs, err := s.configs.ListConfigs(); err == nil {
		for _, cfg := range configs {
			ids = append(ids, cfg.ConfigID)
		}
	}
	return ids
}

func sessionInfo(sess *Session) *SessionInfo {
	obs := sess.Env.Observe()
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     sess.ConfigID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		Observation:    &obs,
		Config:         sess.Config,
		Curriculum:     sess.Env.Curriculum(),
		Episode:        sess.Env.Episode(),
	}
}

func resetEvent(info engine.ResetInfo) GameEvent {
	return GameEvent{
		Type:      "reset",
		Message:   fmt.Sprintf("Episode %d started with %d stocks", info.Episode, info.Level),
		Timestamp: time.Now(),
	}
}

// stepEvents extracts notable happenings from a step result
func stepEvents(res engine.StepResult) []GameEvent {
	var events []GameEvent
	now := time.Now()
	for _, c := range res.Info.Completions {
		events = append(events, GameEvent{
			Type:      "completion",
			Message:   fmt.Sprintf("Item %d left the yard from (%d,%d)", c.Rank, c.Position.Row, c.Position.Col),
			Timestamp: now,
		})
	}
	if res.Info.Upgraded {
		events = append(events, GameEvent{
			Type:      "level_up",
			Message:   fmt.Sprintf("Difficulty raised to %d stocks", res.Info.Level),
			Timestamp: now,
		})
	}
	switch {
	case res.Terminated:
		events = append(events, GameEvent{Type: "episode_end", Message: "Yard cleared", Timestamp: now})
	case res.Truncated:
		events = append(events, GameEvent{Type: "episode_end", Message: "Step limit reached", Timestamp: now})
	}
	return events
}
