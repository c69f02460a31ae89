package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEpisodeOver   = errors.New("episode is done, call Reset")
	ErrInvalidAction = errors.New("action outside the action space")
	ErrWrongVariant  = errors.New("action not supported by this variant")
)

// Env is the stepping contract consumed by learners and the service layer
type Env interface {
	Reset() (Observation, ResetInfo, error)
	ResetWithSeed(seed int64) (Observation, ResetInfo, error)
	Step(a Action) (StepResult, error)
	Observe() Observation
	ActionSpace() Space
	ObservationSpace() map[string]Space
}

// EpisodeSummary aggregates the current or last finished episode
type EpisodeSummary struct {
	Episode     int     `json:"episode"`
	Steps       int     `json:"steps"`
	Reward      float64 `json:"reward"`
	Completions int     `json:"completions"`
	Level       int     `json:"level"`
	Terminated  bool    `json:"terminated"`
	Truncated   bool    `json:"truncated"`
}

// Environment is one storage yard instance. It is not safe for concurrent use.
type Environment struct {
	config     *EnvConfig
	grid       *Grid
	curriculum *Curriculum
	rng        *rand.Rand
	seed       int64
	logger     *zap.Logger

	agent      Position
	loaded     bool
	loadedRank int
	loadedFrom Position
	justLoaded bool

	started     bool
	steps       int
	reward      float64
	completions int
	level       int
	done        bool
	terminated  bool
	truncated   bool
}

// Option configures an Environment
type Option func(*Environment)

// WithLogger sets the logger used for reset and curriculum events
func WithLogger(logger *zap.Logger) Option {
	return func(e *Environment) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSeed fixes the random source
func WithSeed(seed int64) Option {
	return func(e *Environment) {
		e.seed = seed
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// WithCurriculum resumes a difficulty ramp from a snapshot
func WithCurriculum(snapshot Curriculum) Option {
	return func(e *Environment) {
		e.curriculum.Restore(snapshot)
	}
}

// NewEnvironment validates the config, builds the grid and resets the first episode
func NewEnvironment(config *EnvConfig, opts ...Option) (*Environment, error) {
	if err := ValidateEnvConfig(config); err != nil {
		return nil, err
	}

	frameRows, frameCols := config.Frame()
	seed := time.Now().UnixNano()
	e := &Environment{
		config:     config,
		grid:       NewFramedGrid(config.Rows, config.Cols, frameRows, frameCols),
		curriculum: NewCurriculum(config.Curriculum),
		rng:        rand.New(rand.NewSource(seed)),
		seed:       seed,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, _, err := e.Reset(); err != nil {
		return nil, err
	}
	return e, nil
}

// Config returns the preset the environment was built from
func (e *Environment) Config() *EnvConfig { return e.config }

// Grid exposes the live grid. Callers must not mutate it.
func (e *Environment) Grid() *Grid { return e.grid }

// Curriculum returns a snapshot of the difficulty ramp
func (e *Environment) Curriculum() Curriculum { return e.curriculum.Snapshot() }

// Done reports whether the current episode has ended
func (e *Environment) Done() bool { return e.done }

// Episode summarizes the current episode
func (e *Environment) Episode() EpisodeSummary {
	return EpisodeSummary{
		Episode:     e.episodeNumber(),
		Steps:       e.steps,
		Reward:      e.reward,
		Completions: e.completions,
		Level:       e.level,
		Terminated:  e.terminated,
		Truncated:   e.truncated,
	}
}

// ResetWithSeed reseeds the random source, then resets
func (e *Environment) ResetWithSeed(seed int64) (Observation, ResetInfo, error) {
	e.seed = seed
	e.rng = rand.New(rand.NewSource(seed))
	return e.Reset()
}

// Reset clears the grid and spawns the current difficulty's stocks. The
// first stock becomes the target (rank 1) on a random placeable cell.
func (e *Environment) Reset() (Observation, ResetInfo, error) {
	g := e.grid
	g.Clear()

	e.loaded = false
	e.loadedRank = 0
	e.loadedFrom = NoPosition
	e.justLoaded = false
	e.started = false
	e.steps = 0
	e.reward = 0
	e.completions = 0
	e.done = false
	e.terminated = false
	e.truncated = false
	e.level = e.curriculum.Level

	if e.level > g.PlaceableCount() {
		return Observation{}, ResetInfo{}, fmt.Errorf("reset with %d stocks: %w", e.level, ErrTooManyStocks)
	}

	width := g.Cols() - 1
	idx := e.rng.Intn(g.PlaceableCount())
	target := Position{Row: idx / width, Col: idx % width}
	if _, err := g.PlaceItem(target, 1); err != nil {
		return Observation{}, ResetInfo{}, fmt.Errorf("place target: %w", err)
	}
	if err := g.PlaceRandomStocks(e.rng, e.level); err != nil {
		return Observation{}, ResetInfo{}, fmt.Errorf("place stocks: %w", err)
	}

	if e.config.Variant == VariantTransporter {
		e.agent = Position{Row: g.Rows() / 2, Col: g.ExitCol()}
	} else {
		e.agent = NoPosition
	}

	e.logger.Debug("episode reset",
		zap.Int("episode", e.episodeNumber()),
		zap.Int("stocks", e.level),
		zap.Any("target", target))

	info := ResetInfo{Episode: e.episodeNumber(), Level: e.level, Seed: e.seed}
	return e.Observe(), info, nil
}

// Observe returns a snapshot of the current state without mutating it
func (e *Environment) Observe() Observation {
	g := e.grid
	interval := e.config.Interval()

	raw := g.Values()
	values := make([]float64, len(raw))
	for i, v := range raw {
		if v > 0 {
			values[i] = float64(v) * interval
		} else {
			values[i] = float64(v)
		}
	}

	obs := Observation{
		Rows:             g.FrameRows(),
		Cols:             g.FrameCols(),
		Grid:             values,
		Agent:            e.agent,
		Target:           e.target(),
		ExitCol:          g.ExitCol(),
		Loaded:           e.loaded,
		LoadedFrom:       NoPosition,
		Stocks:           g.Stocks(),
		Ladder:           g.Ladder(),
		PriorityInterval: interval,
		Steps:            e.steps,
		Done:             e.done,
	}
	if e.loaded {
		obs.LoadedPriority = float64(e.carriedRank()) * interval
		obs.LoadedFrom = e.loadedFrom
	}
	return obs
}

// ActionSpace describes the discrete action index range
func (e *Environment) ActionSpace() Space {
	return Space{Kind: "discrete", N: e.config.ActionCount()}
}

// ObservationSpace describes each observation field
func (e *Environment) ObservationSpace() map[string]Space {
	rows, cols := e.config.Frame()
	side := rows
	if cols > side {
		side = cols
	}
	maxRank := e.config.Curriculum.MaxStocks + 1
	return map[string]Space{
		"grid":   {Kind: "box", Shape: []int{rows, cols}, Low: StuckCell, High: float64(maxRank) * e.config.Interval()},
		"agent":  {Kind: "box", Shape: []int{2}, Low: -1, High: float64(side - 1)},
		"target": {Kind: "box", Shape: []int{2}, Low: -1, High: float64(side - 1)},
		"loaded": {Kind: "discrete", N: 2},
	}
}

// Step decodes a flat action index for the configured variant and applies it
func (e *Environment) Step(a Action) (StepResult, error) {
	if n := e.config.ActionCount(); a < 0 || int(a) >= n {
		return StepResult{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidAction, a, n)
	}

	switch e.config.Variant {
	case VariantTransporter:
		if a == Toggle {
			return e.ToggleLoad()
		}
		return e.Move(Direction(a))
	case VariantCommander:
		return e.Select(e.cellAt(int(a)))
	default:
		src, dst := DecodeTransfer(a, e.grid.FrameRows()*e.grid.FrameCols())
		return e.Transfer(e.cellAt(src), e.cellAt(dst))
	}
}

// transition is the effect of one applied action
type transition struct {
	reward      float64
	outcome     Outcome
	reason      string
	completions []Completion
}

func (e *Environment) reject(reason string) transition {
	return transition{reward: e.config.Penalty(), outcome: OutcomeRejected, reason: reason}
}

// apply runs one action through the shared step bookkeeping
func (e *Environment) apply(variant Variant, fn func() transition) (StepResult, error) {
	if e.config.Variant != variant {
		return StepResult{}, fmt.Errorf("%w: %s environment", ErrWrongVariant, e.config.Variant)
	}
	if e.done {
		return StepResult{}, ErrEpisodeOver
	}

	if !e.started {
		e.started = true
		e.curriculum.Episodes++
	}
	e.steps++
	if e.config.MaxSteps > 0 && e.steps > e.config.MaxSteps {
		e.finish(false)
		return StepResult{
			Observation: e.Observe(),
			Truncated:   true,
			Info:        e.info(transition{outcome: OutcomeTruncated, reason: ReasonStepLimit}, false),
		}, nil
	}

	t := fn()
	e.reward += t.reward
	e.completions += len(t.completions)

	terminated := e.grid.Stocks() == 0
	upgraded := false
	if terminated {
		upgraded = e.finish(true)
	}

	return StepResult{
		Observation: e.Observe(),
		Reward:      t.reward,
		Terminated:  terminated,
		Info:        e.info(t, upgraded),
	}, nil
}

// finish closes the episode and advances the ramp on a clear
func (e *Environment) finish(cleared bool) bool {
	e.done = true
	e.terminated = cleared
	e.truncated = !cleared
	if !cleared {
		return false
	}
	upgraded := e.curriculum.RecordClear()
	if upgraded {
		e.logger.Info("difficulty increased",
			zap.Int("stocks", e.curriculum.Level),
			zap.Int("total_clears", e.curriculum.TotalClears))
	}
	return upgraded
}

func (e *Environment) info(t transition, upgraded bool) StepInfo {
	return StepInfo{
		Outcome:     t.outcome,
		Reason:      t.reason,
		Completions: t.completions,
		Steps:       e.steps,
		Episode:     e.episodeNumber(),
		Level:       e.curriculum.Level,
		Upgraded:    upgraded,
	}
}

// episodeNumber is the 1-based number of the current episode. Curriculum
// episodes count only episodes that took a step, so a reset without play
// replaces the pending episode instead of adding one.
func (e *Environment) episodeNumber() int {
	if e.started {
		return e.curriculum.Episodes
	}
	return e.curriculum.Episodes + 1
}

// target is the cell of the next item due at the exit
func (e *Environment) target() Position {
	if p, ok := e.grid.Find(1); ok {
		return p
	}
	if e.loaded && e.loadedRank == 1 {
		return e.loadedFrom
	}
	return NoPosition
}

func (e *Environment) carriedRank() int {
	if e.config.Variant == VariantTransporter {
		return e.grid.At(e.agent)
	}
	return e.loadedRank
}

// cellAt maps a flat frame index to a position
func (e *Environment) cellAt(i int) Position {
	cols := e.grid.FrameCols()
	return Position{Row: i / cols, Col: i % cols}
}
