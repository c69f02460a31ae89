package engine

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Observation is a read-only snapshot of an environment. Grid is row-major
// over the frame: 0 empty, -1 source marker, -2 stuck, otherwise rank*interval.
type Observation struct {
	Rows             int        `json:"rows"`
	Cols             int        `json:"cols"`
	Grid             []float64  `json:"grid"`
	Agent            Position   `json:"agent"`
	Target           Position   `json:"target"`
	ExitCol          int        `json:"exit_col"`
	Loaded           bool       `json:"loaded"`
	LoadedPriority   float64    `json:"loaded_priority"`
	LoadedFrom       Position   `json:"loaded_from"`
	Stocks           int        `json:"stocks"`
	Ladder           []Position `json:"ladder"`
	PriorityInterval float64    `json:"priority_interval"`
	Steps            int        `json:"steps"`
	Done             bool       `json:"done"`
}

// At returns the scaled value of a cell, or StuckCell outside the frame
func (o Observation) At(p Position) float64 {
	if p.Row < 0 || p.Row >= o.Rows || p.Col < 0 || p.Col >= o.Cols {
		return StuckCell
	}
	return o.Grid[p.Row*o.Cols+p.Col]
}

// Rank converts a scaled cell value back to its integer rank. Markers map to
// their raw values.
func (o Observation) Rank(p Position) int {
	v := o.At(p)
	if v <= 0 {
		return int(v)
	}
	return int(math.Round(v / o.PriorityInterval))
}

// Matrix returns the grid as a dense matrix
func (o Observation) Matrix() *mat.Dense {
	data := make([]float64, len(o.Grid))
	copy(data, o.Grid)
	return mat.NewDense(o.Rows, o.Cols, data)
}

// ColumnOccupancy counts items per column; the last entry is the exit column
// of an unframed grid.
func (o Observation) ColumnOccupancy() []float64 {
	m := o.Matrix()
	occupied := mat.NewDense(o.Rows, o.Cols, nil)
	occupied.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	}, m)

	ones := make([]float64, o.Rows)
	for i := range ones {
		ones[i] = 1
	}
	var counts mat.VecDense
	counts.MulVec(occupied.T(), mat.NewVecDense(o.Rows, ones))

	out := make([]float64, o.Cols)
	for c := range out {
		out[c] = counts.AtVec(c)
	}
	return out
}
