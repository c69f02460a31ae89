package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/zyedidia/generic/mapset"
)

var (
	ErrOutOfBounds   = errors.New("position out of bounds")
	ErrCellOccupied  = errors.New("cell is occupied")
	ErrTooManyStocks = errors.New("more stocks requested than placeable cells")
)

// Grid is a frame of cells holding priority ranks and markers. The active
// area is the top-left rows x cols block; everything else is stuck. The exit
// column is the last active column.
type Grid struct {
	frameRows int
	frameCols int
	rows      int
	cols      int
	cells     []int
	stocks    int
}

// NewGrid creates an empty grid whose frame equals its active area
func NewGrid(rows, cols int) *Grid {
	return NewFramedGrid(rows, cols, rows, cols)
}

// NewFramedGrid creates an empty rows x cols grid inside a larger frame
func NewFramedGrid(rows, cols, frameRows, frameCols int) *Grid {
	g := &Grid{
		frameRows: frameRows,
		frameCols: frameCols,
		rows:      rows,
		cols:      cols,
		cells:     make([]int, frameRows*frameCols),
	}
	g.Clear()
	return g
}

// Rows returns the number of active rows
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of active columns
func (g *Grid) Cols() int { return g.cols }

// FrameRows returns the number of rows in the observation frame
func (g *Grid) FrameRows() int { return g.frameRows }

// FrameCols returns the number of columns in the observation frame
func (g *Grid) FrameCols() int { return g.frameCols }

// ExitCol is the column items leave the yard from
func (g *Grid) ExitCol() int { return g.cols - 1 }

// Stocks is the number of items counted on the ladder, including a carried one
func (g *Grid) Stocks() int { return g.stocks }

// InBounds reports whether p lies in the active area
func (g *Grid) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < g.rows && p.Col >= 0 && p.Col < g.cols
}

// Placeable reports whether p may receive a randomly placed item
func (g *Grid) Placeable(p Position) bool {
	return g.InBounds(p) && p.Col != g.ExitCol()
}

// PlaceableCount is the size of the random placement region
func (g *Grid) PlaceableCount() int {
	return g.rows * (g.cols - 1)
}

// At returns the raw cell value; frame cells outside the active area are stuck
func (g *Grid) At(p Position) int {
	if p.Row < 0 || p.Row >= g.frameRows || p.Col < 0 || p.Col >= g.frameCols {
		return StuckCell
	}
	return g.cells[g.index(p)]
}

// IsEmpty reports whether p is an in-bounds empty cell
func (g *Grid) IsEmpty(p Position) bool {
	return g.InBounds(p) && g.cells[g.index(p)] == EmptyCell
}

// HasItem reports whether p holds a ranked item
func (g *Grid) HasItem(p Position) bool {
	return g.InBounds(p) && g.cells[g.index(p)] > 0
}

// Values returns a copy of the frame, row-major
func (g *Grid) Values() []int {
	out := make([]int, len(g.cells))
	copy(out, g.cells)
	return out
}

// Clear empties the active area and marks the rest of the frame stuck
func (g *Grid) Clear() {
	for r := 0; r < g.frameRows; r++ {
		for c := 0; c < g.frameCols; c++ {
			p := Position{Row: r, Col: c}
			if g.InBounds(p) {
				g.cells[g.index(p)] = EmptyCell
			} else {
				g.cells[g.index(p)] = StuckCell
			}
		}
	}
	g.stocks = 0
}

// Ladder returns item positions ordered by rank; index i holds rank i+1.
// A rank whose item is not on the grid (carried) is NoPosition.
func (g *Grid) Ladder() []Position {
	ladder := make([]Position, g.stocks)
	for i := range ladder {
		ladder[i] = NoPosition
	}
	for i, v := range g.cells {
		if v > 0 && v <= g.stocks {
			ladder[v-1] = g.position(i)
		}
	}
	return ladder
}

// Find returns the position holding rank, if any
func (g *Grid) Find(rank int) (Position, bool) {
	for i, v := range g.cells {
		if v == rank && rank > 0 {
			return g.position(i), true
		}
	}
	return NoPosition, false
}

// PlaceItem inserts an item at p with the requested rank, clamped to
// [1, stocks+1]. Items ranked at or above the requested rank shift up by one.
func (g *Grid) PlaceItem(p Position, requested int) (int, error) {
	if !g.InBounds(p) {
		return 0, fmt.Errorf("place item at %v: %w", p, ErrOutOfBounds)
	}
	if g.cells[g.index(p)] != EmptyCell {
		return 0, fmt.Errorf("place item at %v: %w", p, ErrCellOccupied)
	}

	rank := requested
	if rank < 1 {
		rank = 1
	}
	if rank > g.stocks+1 {
		rank = g.stocks + 1
	}

	if g.stocks > 0 {
		for i, v := range g.cells {
			if v >= rank {
				g.cells[i] = v + 1
			}
		}
	}
	g.cells[g.index(p)] = rank
	g.stocks++
	return rank, nil
}

// RemoveItem clears p and returns the removed rank. The ladder is left with a
// gap; callers renumber with ShiftDown.
func (g *Grid) RemoveItem(p Position) int {
	if !g.HasItem(p) {
		return 0
	}
	rank := g.cells[g.index(p)]
	g.cells[g.index(p)] = EmptyCell
	g.stocks--
	return rank
}

// ShiftDown lowers every item rank by k
func (g *Grid) ShiftDown(k int) {
	if k <= 0 {
		return
	}
	for i, v := range g.cells {
		if v > 0 {
			g.cells[i] = v - k
		}
	}
}

// PlaceRandomStocks places items uniformly at random over the placement region
// until the grid holds n items. New items are appended to the back of the ladder.
func (g *Grid) PlaceRandomStocks(rng *rand.Rand, n int) error {
	placeable := g.PlaceableCount()
	if n > placeable {
		return fmt.Errorf("%w: requested %d, placeable %d", ErrTooManyStocks, n, placeable)
	}

	used := mapset.New[Position]()
	for i, v := range g.cells {
		if v != EmptyCell {
			used.Put(g.position(i))
		}
	}

	width := g.cols - 1
	for g.stocks < n {
		idx := rng.Intn(placeable)
		p := Position{Row: idx / width, Col: idx % width}
		if used.Has(p) {
			continue
		}
		if _, err := g.PlaceItem(p, g.stocks+1); err != nil {
			return err
		}
		used.Put(p)
	}
	return nil
}

// set writes a raw marker or rank without touching the stock count
func (g *Grid) set(p Position, v int) {
	g.cells[g.index(p)] = v
}

func (g *Grid) index(p Position) int {
	return p.Row*g.frameCols + p.Col
}

func (g *Grid) position(i int) Position {
	return Position{Row: i / g.frameCols, Col: i % g.frameCols}
}
