package engine

// Variant selects the action protocol of an environment
type Variant string

const (
	// VariantTransporter drives a cart one cell at a time and toggles load/unload.
	VariantTransporter Variant = "transporter"
	// VariantCommander selects a source cell, then a destination cell, in two steps.
	VariantCommander Variant = "commander"
	// VariantTransfer moves an item from source to destination in a single step.
	VariantTransfer Variant = "transfer"
)

// Valid reports whether v names a known variant
func (v Variant) Valid() bool {
	switch v {
	case VariantTransporter, VariantCommander, VariantTransfer:
		return true
	}
	return false
}

// Cell markers. Positive values are priority ranks.
const (
	EmptyCell    = 0
	SourceMarker = -1
	StuckCell    = -2
)

// Validation constants
const (
	MinGridSize  = 2
	MaxGridSize  = 50
	MaxBulkSteps = 500

	DefaultLoopPenalty      = -0.1
	DefaultCompletionReward = 1.0
	DefaultInitialStocks    = 5
	DefaultMaxStocks        = 18
	DefaultUpgradeInterval  = 2000
)

// Position is a (row, col) grid coordinate
type Position struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// NoPosition marks an absent agent or target
var NoPosition = Position{Row: -1, Col: -1}

// Valid reports whether p is not NoPosition
func (p Position) Valid() bool {
	return p.Row >= 0 && p.Col >= 0
}

// Direction is a cart move of the transporter variant
type Direction int

const (
	Right Direction = iota
	Left
	Up
	Down
)

// Toggle is the load/unload action index of the transporter variant
const Toggle Action = 4

var directionNames = map[Direction]string{
	Right: "right",
	Left:  "left",
	Up:    "up",
	Down:  "down",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "unknown"
}

// ParseDirection maps "right", "left", "up" and "down" to a Direction
func ParseDirection(name string) (Direction, bool) {
	for d, n := range directionNames {
		if n == name {
			return d, true
		}
	}
	return 0, false
}

// delta returns the row/col offset of a move
func (d Direction) delta() (int, int) {
	switch d {
	case Right:
		return 0, 1
	case Left:
		return 0, -1
	case Up:
		return -1, 0
	case Down:
		return 1, 0
	}
	return 0, 0
}

// Action is a flat discrete action index; its decoding depends on the variant
type Action int

// Outcome classifies what a step did
type Outcome string

const (
	OutcomeMoved       Outcome = "moved"
	OutcomeLoaded      Outcome = "loaded"
	OutcomeUnloaded    Outcome = "unloaded"
	OutcomeTransferred Outcome = "transferred"
	OutcomeNoop        Outcome = "noop"
	OutcomeRejected    Outcome = "rejected"
	OutcomeTruncated   Outcome = "truncated"
)

// Rejection reasons reported in StepInfo.Reason
const (
	ReasonEmptySource   = "empty_source"
	ReasonOccupiedDest  = "occupied_destination"
	ReasonUnreachable   = "unreachable"
	ReasonCollision     = "collision"
	ReasonEdgeBump      = "edge_bump"
	ReasonInPlaceUnload = "in_place_unload"
	ReasonNothingToLoad = "nothing_to_load"
	ReasonStepLimit     = "step_limit"
)

// Completion records one item removed at the exit column
type Completion struct {
	Rank     int      `json:"rank"`
	Position Position `json:"position"`
}

// StepInfo carries diagnostics for a single step
type StepInfo struct {
	Outcome     Outcome      `json:"outcome"`
	Reason      string       `json:"reason,omitempty"`
	Completions []Completion `json:"completions,omitempty"`
	Steps       int          `json:"steps"`
	Episode     int          `json:"episode"`
	Level       int          `json:"level"`
	Upgraded    bool         `json:"upgraded,omitempty"`
}

// StepResult is the outcome of Step
type StepResult struct {
	Observation Observation `json:"observation"`
	Reward      float64     `json:"reward"`
	Terminated  bool        `json:"terminated"`
	Truncated   bool        `json:"truncated"`
	Info        StepInfo    `json:"info"`
}

// ResetInfo describes a freshly reset episode
type ResetInfo struct {
	Episode int   `json:"episode"`
	Level   int   `json:"level"`
	Seed    int64 `json:"seed"`
}

// Space describes an action or observation space
type Space struct {
	Kind  string  `json:"kind"` // "discrete" or "box"
	N     int     `json:"n,omitempty"`
	Shape []int   `json:"shape,omitempty"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}
