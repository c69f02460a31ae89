package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid environment config")

// CurriculumConfig controls the difficulty ramp across episodes
type CurriculumConfig struct {
	InitialStocks   int `json:"initial_stocks" yaml:"initial_stocks"`
	MaxStocks       int `json:"max_stocks" yaml:"max_stocks"`
	UpgradeInterval int `json:"upgrade_interval" yaml:"upgrade_interval"`
}

// EnvConfig is an environment preset
type EnvConfig struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Variant     Variant `json:"variant" yaml:"variant"`
	Rows        int     `json:"rows" yaml:"rows"`
	Cols        int     `json:"cols" yaml:"cols"`

	// FrameRows and FrameCols size the observation frame. Cells outside the
	// active rows x cols area are stuck. Zero means same as the active area.
	FrameRows int `json:"frame_rows,omitempty" yaml:"frame_rows,omitempty"`
	FrameCols int `json:"frame_cols,omitempty" yaml:"frame_cols,omitempty"`

	MaxSteps         int      `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	LoopPenalty      *float64 `json:"loop_penalty,omitempty" yaml:"loop_penalty,omitempty"`
	CompletionReward float64  `json:"completion_reward,omitempty" yaml:"completion_reward,omitempty"`
	PriorityInterval float64  `json:"priority_interval,omitempty" yaml:"priority_interval,omitempty"`

	AllowInPlaceUnload bool `json:"allow_in_place_unload,omitempty" yaml:"allow_in_place_unload,omitempty"`
	PenalizeEdgeBump   bool `json:"penalize_edge_bump,omitempty" yaml:"penalize_edge_bump,omitempty"`

	Curriculum CurriculumConfig `json:"curriculum" yaml:"curriculum"`
}

// DefaultEnvConfig returns the 5x5 direct-transfer preset
func DefaultEnvConfig() *EnvConfig {
	return &EnvConfig{
		Name:        "default",
		Description: "5x5 direct transfer yard",
		Variant:     VariantTransfer,
		Rows:        5,
		Cols:        5,
		Curriculum: CurriculumConfig{
			InitialStocks:   10,
			MaxStocks:       DefaultMaxStocks,
			UpgradeInterval: DefaultUpgradeInterval,
		},
	}
}

// PlaceableCells is the size of the placement region (active area minus the exit column)
func (c *EnvConfig) PlaceableCells() int {
	return c.Rows * (c.Cols - 1)
}

// Frame returns the observation frame size
func (c *EnvConfig) Frame() (int, int) {
	rows, cols := c.FrameRows, c.FrameCols
	if rows == 0 {
		rows = c.Rows
	}
	if cols == 0 {
		cols = c.Cols
	}
	return rows, cols
}

// Penalty returns the loop penalty, defaulting by variant
func (c *EnvConfig) Penalty() float64 {
	if c.LoopPenalty != nil {
		return *c.LoopPenalty
	}
	if c.Variant == VariantTransporter {
		return 0
	}
	return DefaultLoopPenalty
}

// Reward returns the completion reward unit
func (c *EnvConfig) Reward() float64 {
	if c.CompletionReward == 0 {
		return DefaultCompletionReward
	}
	return c.CompletionReward
}

// Interval returns the priority scaling interval
func (c *EnvConfig) Interval() float64 {
	if c.PriorityInterval > 0 {
		return c.PriorityInterval
	}
	rows, cols := c.Frame()
	return 1 / float64(rows*cols)
}

// ActionCount is the size of the discrete action space
func (c *EnvConfig) ActionCount() int {
	rows, cols := c.Frame()
	switch c.Variant {
	case VariantTransporter:
		return 5
	case VariantCommander:
		return rows * cols
	default:
		return rows * cols * rows * cols
	}
}

// ValidateEnvConfig checks a preset for playability
func ValidateEnvConfig(config *EnvConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if config.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if !config.Variant.Valid() {
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, config.Variant)
	}
	if config.Rows < MinGridSize || config.Rows > MaxGridSize {
		return fmt.Errorf("%w: rows must be between %d and %d, got %d", ErrInvalidConfig, MinGridSize, MaxGridSize, config.Rows)
	}
	if config.Cols < MinGridSize || config.Cols > MaxGridSize {
		return fmt.Errorf("%w: cols must be between %d and %d, got %d", ErrInvalidConfig, MinGridSize, MaxGridSize, config.Cols)
	}

	frameRows, frameCols := config.Frame()
	if frameRows < config.Rows || frameCols < config.Cols {
		return fmt.Errorf("%w: frame %dx%d is smaller than the grid %dx%d", ErrInvalidConfig, frameRows, frameCols, config.Rows, config.Cols)
	}
	if frameRows > MaxGridSize || frameCols > MaxGridSize {
		return fmt.Errorf("%w: frame may not exceed %d cells per side", ErrInvalidConfig, MaxGridSize)
	}

	if config.MaxSteps < 0 {
		return fmt.Errorf("%w: max_steps must be >= 0, got %d", ErrInvalidConfig, config.MaxSteps)
	}
	if config.LoopPenalty != nil && *config.LoopPenalty > 0 {
		return fmt.Errorf("%w: loop_penalty must be <= 0, got %v", ErrInvalidConfig, *config.LoopPenalty)
	}
	if config.CompletionReward < 0 {
		return fmt.Errorf("%w: completion_reward must be positive, got %v", ErrInvalidConfig, config.CompletionReward)
	}
	if config.PriorityInterval < 0 || math.IsNaN(config.PriorityInterval) {
		return fmt.Errorf("%w: priority_interval must be positive", ErrInvalidConfig)
	}

	cur := config.Curriculum
	if cur.InitialStocks < 1 {
		return fmt.Errorf("%w: curriculum.initial_stocks must be >= 1, got %d", ErrInvalidConfig, cur.InitialStocks)
	}
	if cur.MaxStocks < cur.InitialStocks {
		return fmt.Errorf("%w: curriculum.max_stocks (%d) is below initial_stocks (%d)", ErrInvalidConfig, cur.MaxStocks, cur.InitialStocks)
	}
	if placeable := config.PlaceableCells(); cur.MaxStocks > placeable {
		return fmt.Errorf("%w: curriculum.max_stocks %d exceeds %d placeable cells: %w", ErrInvalidConfig, cur.MaxStocks, placeable, ErrTooManyStocks)
	}
	if cur.UpgradeInterval < 1 {
		return fmt.Errorf("%w: curriculum.upgrade_interval must be >= 1, got %d", ErrInvalidConfig, cur.UpgradeInterval)
	}

	return nil
}
