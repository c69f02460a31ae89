package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
	"github.com/wricardo/mcp-training/storageyard/game/service"
)

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	sessions map[string]*service.Session
	saves    int
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id, configID string, config *engine.EnvConfig) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}

	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	env, err := engine.NewEnvironment(config, engine.WithSeed(7))
	if err != nil {
		return nil, err
	}

	session := &service.Session{
		ID:             id,
		ConfigID:       configID,
		Env:            env,
		Config:         config,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}

	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, service.ErrSessionNotFound
	}
	return session, nil
}

func (m *MockSessionManager) GetOrCreate(id, configID string, config *engine.EnvConfig) (*service.Session, error) {
	if session, exists := m.sessions[id]; exists {
		return session, nil
	}
	return m.Create(id, configID, config)
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errors.New("session not found")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if session, exists := m.sessions[id]; exists {
		session.LastAccessedAt = time.Now()
		return nil
	}
	return errors.New("session not found")
}

func (m *MockSessionManager) Save(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errors.New("session not found")
	}
	m.saves++
	return nil
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	configs map[string]*engine.EnvConfig
}

// tinyConfig is a 2x2 transfer yard with one item in column 0, so a single
// transfer to column 1 always clears it.
func tinyConfig(name string, maxSteps int) *engine.EnvConfig {
	return &engine.EnvConfig{
		Name:        name,
		Description: "Single item yard",
		Variant:     engine.VariantTransfer,
		Rows:        2,
		Cols:        2,
		MaxSteps:    maxSteps,
		Curriculum: engine.CurriculumConfig{
			InitialStocks:   1,
			MaxStocks:       2,
			UpgradeInterval: 100,
		},
	}
}

func NewMockConfigManager() *MockConfigManager {
	cart := &engine.EnvConfig{
		Name:    "cart",
		Variant: engine.VariantTransporter,
		Rows:    3,
		Cols:    3,
		Curriculum: engine.CurriculumConfig{
			InitialStocks:   1,
			MaxStocks:       3,
			UpgradeInterval: 10,
		},
	}
	return &MockConfigManager{
		configs: map[string]*engine.EnvConfig{
			"tiny":    tinyConfig("tiny", 0),
			"limited": tinyConfig("limited", 2),
			"cart":    cart,
		},
	}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.EnvConfig, error) {
	config, exists := m.configs[name]
	if !exists {
		return nil, errors.New("configuration not found")
	}
	return config, nil
}

func (m *MockConfigManager) ListConfigs() ([]*service.ConfigInfo, error) {
	result := make([]*service.ConfigInfo, 0, len(m.configs))
	for name, config := range m.configs {
		result = append(result, service.NewConfigInfo(name+".json", name, config))
	}
	return result, nil
}

func (m *MockConfigManager) GetDefault() *engine.EnvConfig {
	return m.configs["tiny"]
}

func (m *MockConfigManager) SaveConfig(name string, config *engine.EnvConfig) error {
	m.configs[name] = config
	return nil
}

// MockRecorder implements service.EpisodeRecorder for testing
type MockRecorder struct {
	records []service.EpisodeRecord
	failing bool
}

func (r *MockRecorder) RecordEpisode(ctx context.Context, rec service.EpisodeRecord) error {
	if r.failing {
		return errors.New("disk full")
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *MockRecorder) Stats(ctx context.Context, sessionID string) (*service.EpisodeStats, error) {
	if r.failing {
		return nil, errors.New("disk full")
	}
	var mine []service.EpisodeRecord
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			mine = append(mine, rec)
		}
	}
	return service.SummarizeEpisodes(sessionID, mine), nil
}

func newService(t *testing.T, opts ...service.Option) (service.GameService, *MockSessionManager) {
	t.Helper()
	sessions := NewMockSessionManager()
	return service.NewGameService(sessions, NewMockConfigManager(), opts...), sessions
}

// clearingAction returns the transfer that moves the single item to the exit
func clearingAction(obs *engine.Observation) int {
	cells := obs.Rows * obs.Cols
	src := obs.Target.Row*obs.Cols + obs.Target.Col
	dst := obs.Target.Row*obs.Cols + obs.ExitCol
	return int(engine.EncodeTransfer(src, dst, cells))
}

// emptyAction returns a transfer whose source is empty
func emptyAction(obs *engine.Observation) int {
	cells := obs.Rows * obs.Cols
	other := 1 - obs.Target.Row
	src := other*obs.Cols + obs.ExitCol
	return int(engine.EncodeTransfer(src, src, cells))
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestGameService_CreateSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	tests := []struct {
		name       string
		configName string
		wantConfig string
		wantErr    bool
	}{
		{"create with default config", "", "tiny", false},
		{"create with specific config", "cart", "cart", false},
		{"create with invalid config", "nonexistent", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.CreateSession(ctx, tt.configName, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "Available configs")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, info.ConfigName)
			require.NotNil(t, info.Observation)
			assert.Equal(t, 1, info.Observation.Stocks)
			assert.Equal(t, 1, info.Episode.Episode)
		})
	}
}

func TestGameService_CreateSessionSeeded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a, err := svc.CreateSession(ctx, "cart", int64Ptr(99))
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx, "cart", int64Ptr(99))
	require.NoError(t, err)

	assert.Equal(t, a.Observation.Grid, b.Observation.Grid)
	assert.Equal(t, 1, a.Episode.Episode, "seeding replaces the unplayed first episode")

	step, err := svc.Step(ctx, a.ID, service.StepRequest{Direction: "left"})
	require.NoError(t, err)
	assert.Equal(t, 1, step.Info.Episode)

	reset, err := svc.Reset(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reset.Info.Episode)
}

func TestGameService_StepForms(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	info, err := svc.CreateSession(ctx, "tiny", nil)
	require.NoError(t, err)
	obs := info.Observation

	t.Run("empty request", func(t *testing.T) {
		_, err := svc.Step(ctx, info.ID, service.StepRequest{})
		assert.ErrorIs(t, err, service.ErrEmptyStep)
	})

	t.Run("ambiguous request", func(t *testing.T) {
		_, err := svc.Step(ctx, info.ID, service.StepRequest{Action: intPtr(0), Direction: "up"})
		assert.ErrorIs(t, err, service.ErrAmbiguousStep)
	})

	t.Run("wrong variant", func(t *testing.T) {
		_, err := svc.Step(ctx, info.ID, service.StepRequest{Direction: "up"})
		assert.ErrorIs(t, err, engine.ErrWrongVariant)
	})

	t.Run("half a transfer", func(t *testing.T) {
		_, err := svc.Step(ctx, info.ID, service.StepRequest{Src: &obs.Target})
		assert.ErrorIs(t, err, engine.ErrInvalidAction)
	})

	t.Run("rejected transfer", func(t *testing.T) {
		resp, err := svc.Step(ctx, info.ID, service.StepRequest{Action: intPtr(emptyAction(obs))})
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeRejected, resp.Info.Outcome)
		assert.InDelta(t, engine.DefaultLoopPenalty, resp.Reward, 1e-9)
		assert.Nil(t, resp.EpisodeEnd)
	})

	t.Run("clearing transfer", func(t *testing.T) {
		dst := engine.Position{Row: obs.Target.Row, Col: obs.ExitCol}
		resp, err := svc.Step(ctx, info.ID, service.StepRequest{Src: &obs.Target, Dst: &dst})
		require.NoError(t, err)
		assert.True(t, resp.Terminated)
		require.NotNil(t, resp.EpisodeEnd)
		assert.Equal(t, 2, resp.EpisodeEnd.Steps)
		assert.Equal(t, "tiny", resp.EpisodeEnd.ConfigName)

		var types []string
		for _, ev := range resp.Events {
			types = append(types, ev.Type)
		}
		assert.Equal(t, []string{"completion", "episode_end"}, types)
	})

	t.Run("finished episode", func(t *testing.T) {
		_, err := svc.Step(ctx, info.ID, service.StepRequest{Action: intPtr(0)})
		assert.ErrorIs(t, err, engine.ErrEpisodeOver)
	})

	t.Run("reset flag", func(t *testing.T) {
		resp, err := svc.Step(ctx, info.ID, service.StepRequest{Action: intPtr(0), Reset: true})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Events)
		assert.Equal(t, "reset", resp.Events[0].Type)
	})
}

func TestGameService_StepDirections(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	info, err := svc.CreateSession(ctx, "cart", nil)
	require.NoError(t, err)

	resp, err := svc.Step(ctx, info.ID, service.StepRequest{Direction: "Left"})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeMoved, resp.Info.Outcome)

	_, err = svc.Step(ctx, info.ID, service.StepRequest{Direction: "sideways"})
	assert.ErrorIs(t, err, engine.ErrInvalidAction)

	resp, err = svc.Step(ctx, info.ID, service.StepRequest{Direction: "toggle"})
	require.NoError(t, err)
	assert.NotEqual(t, engine.OutcomeMoved, resp.Info.Outcome)
}

func TestGameService_BulkStep(t *testing.T) {
	ctx := context.Background()

	t.Run("stops at episode end", func(t *testing.T) {
		svc, _ := newService(t)
		info, err := svc.CreateSession(ctx, "tiny", nil)
		require.NoError(t, err)

		clear := clearingAction(info.Observation)
		res, err := svc.BulkStep(ctx, info.ID, []int{emptyAction(info.Observation), clear, clear}, service.BulkOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.StepsExecuted)
		assert.Equal(t, 3, res.RequestedSteps)
		assert.Equal(t, "terminated", res.StopReasonCode)
		assert.Equal(t, 2, res.StoppedOnStep)
		assert.InDelta(t, engine.DefaultLoopPenalty+engine.DefaultCompletionReward, res.TotalReward, 1e-9)
		require.Len(t, res.Episodes, 1)
		assert.True(t, res.Episodes[0].Terminated)
	})

	t.Run("auto reset", func(t *testing.T) {
		svc, _ := newService(t)
		info, err := svc.CreateSession(ctx, "limited", nil)
		require.NoError(t, err)

		noop := emptyAction(info.Observation)
		res, err := svc.BulkStep(ctx, info.ID, []int{noop, noop, noop, noop}, service.BulkOptions{AutoReset: true})
		require.NoError(t, err)
		assert.Equal(t, 4, res.StepsExecuted)
		require.Len(t, res.Episodes, 1)
		assert.True(t, res.Episodes[0].Truncated)
		assert.Empty(t, res.StopReasonCode)
	})

	t.Run("invalid action", func(t *testing.T) {
		svc, _ := newService(t)
		info, err := svc.CreateSession(ctx, "tiny", nil)
		require.NoError(t, err)

		res, err := svc.BulkStep(ctx, info.ID, []int{emptyAction(info.Observation), 999}, service.BulkOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.StepsExecuted)
		assert.Equal(t, "invalid_action", res.StopReasonCode)
	})

	t.Run("limit", func(t *testing.T) {
		svc, _ := newService(t)
		info, err := svc.CreateSession(ctx, "cart", nil)
		require.NoError(t, err)

		actions := make([]int, engine.MaxBulkSteps+10)
		for i := range actions {
			actions[i] = int(engine.Up) + i%2 // up, down, up, down...
		}
		res, err := svc.BulkStep(ctx, info.ID, actions, service.BulkOptions{})
		require.NoError(t, err)
		assert.True(t, res.Limited)
		assert.Equal(t, engine.MaxBulkSteps, res.Limit)
		assert.Equal(t, engine.MaxBulkSteps, res.StepsExecuted)
		assert.Equal(t, "limit", res.StopReasonCode)
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc, _ := newService(t)
		info, err := svc.CreateSession(ctx, "tiny", nil)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = svc.BulkStep(cancelled, info.ID, []int{0}, service.BulkOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGameService_Reset(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newService(t)

	info, err := svc.CreateSession(ctx, "cart", nil)
	require.NoError(t, err)

	first, err := svc.Reset(ctx, info.ID, int64Ptr(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.Info.Seed)
	assert.Equal(t, 1, first.Info.Episode)

	second, err := svc.Reset(ctx, info.ID, int64Ptr(5))
	require.NoError(t, err)
	assert.Equal(t, first.Observation.Grid, second.Observation.Grid)
	assert.Equal(t, 1, second.Info.Episode)
	assert.Equal(t, 2, sessions.saves)

	_, err = svc.Reset(ctx, "missing", nil)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestGameService_Spaces(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	info, err := svc.CreateSession(ctx, "tiny", nil)
	require.NoError(t, err)

	spaces, err := svc.Spaces(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.VariantTransfer, spaces.Variant)
	assert.Equal(t, 16, spaces.ActionSpace.N)
	assert.Equal(t, []int{2, 2}, spaces.ObservationSpace["grid"].Shape)
}

func TestGameService_EpisodeHistory(t *testing.T) {
	ctx := context.Background()
	recorder := &MockRecorder{}
	svc, _ := newService(t, service.WithRecorder(recorder))

	info, err := svc.CreateSession(ctx, "tiny", nil)
	require.NoError(t, err)

	// Clear five episodes
	for i := 0; i < 5; i++ {
		obs, err := svc.Observe(ctx, info.ID)
		require.NoError(t, err)
		_, err = svc.Step(ctx, info.ID, service.StepRequest{Action: intPtr(clearingAction(obs))})
		require.NoError(t, err)
		_, err = svc.Reset(ctx, info.ID, nil)
		require.NoError(t, err)
	}

	tests := []struct {
		name        string
		opts        service.HistoryOptions
		wantLen     int
		wantFirst   int
		wantHasNext bool
	}{
		{"first page", service.HistoryOptions{Page: 1, Limit: 2}, 2, 1, true},
		{"last page", service.HistoryOptions{Page: 3, Limit: 2}, 1, 5, false},
		{"descending", service.HistoryOptions{Page: 1, Limit: 2, Order: "desc"}, 2, 5, true},
		{"past the end", service.HistoryOptions{Page: 9, Limit: 2}, 0, 0, false},
		{"defaults", service.HistoryOptions{}, 5, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := svc.GetEpisodeHistory(ctx, info.ID, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, 5, history.TotalEpisodes)
			require.Len(t, history.Episodes, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, history.Episodes[0].Episode)
			}
			assert.Equal(t, tt.wantHasNext, history.HasNext)
		})
	}

	assert.Len(t, recorder.records, 5)

	stats, err := svc.GetEpisodeStats(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Episodes)
	assert.Equal(t, 5, stats.Cleared)
	assert.InDelta(t, 1.0, stats.ClearRate, 1e-9)
	assert.Equal(t, 1, stats.MaxLevel)
}

func TestGameService_StatsFallback(t *testing.T) {
	ctx := context.Background()
	recorder := &MockRecorder{failing: true}
	svc, _ := newService(t, service.WithRecorder(recorder))

	info, err := svc.CreateSession(ctx, "tiny", nil)
	require.NoError(t, err)

	_, err = svc.Step(ctx, info.ID, service.StepRequest{Action: intPtr(clearingAction(info.Observation))})
	require.NoError(t, err, "recorder failures must not fail the step")

	stats, err := svc.GetEpisodeStats(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Episodes)
}

func TestGameService_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	info, err := svc.CreateSession(ctx, "tiny", nil)
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteSession(ctx, info.ID))
	_, err = svc.GetSession(ctx, info.ID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, info.ID), service.ErrSessionNotFound)
}

func TestSummarizeEpisodes(t *testing.T) {
	stats := service.SummarizeEpisodes("s", nil)
	assert.Equal(t, 0, stats.Episodes)

	stats = service.SummarizeEpisodes("s", []service.EpisodeRecord{
		{Steps: 10, Reward: 2, Completions: 2, Level: 2, Terminated: true},
		{Steps: 30, Reward: -1, Level: 3, Truncated: true},
	})
	assert.Equal(t, 2, stats.Episodes)
	assert.Equal(t, 1, stats.Cleared)
	assert.InDelta(t, 0.5, stats.ClearRate, 1e-9)
	assert.InDelta(t, 0.5, stats.MeanReward, 1e-9)
	assert.InDelta(t, 20, stats.MeanSteps, 1e-9)
	assert.InDelta(t, 2, stats.BestReward, 1e-9)
	assert.Equal(t, 3, stats.MaxLevel)
	assert.Equal(t, 2, stats.Completions)
}

func TestSession_AddEpisodeBounded(t *testing.T) {
	sess := &service.Session{}
	for i := 0; i < service.MaxEpisodeHistory+5; i++ {
		sess.AddEpisode(service.EpisodeRecord{Episode: i + 1})
	}
	require.Len(t, sess.Episodes, service.MaxEpisodeHistory)
	assert.Equal(t, 6, sess.Episodes[0].Episode)
}
