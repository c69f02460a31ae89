package engine

import "github.com/zyedidia/generic/queue"

var neighborOffsets = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// IsReachable reports whether an item at src can travel to dst through
// 4-connected empty cells. The source marker counts as passable. Coordinates
// outside the active area are unreachable.
func IsReachable(g *Grid, src, dst Position) bool {
	if !g.InBounds(src) || !g.InBounds(dst) {
		return false
	}
	if src == dst {
		return true
	}

	visited := make([]bool, g.rows*g.cols)
	visited[src.Row*g.cols+src.Col] = true

	q := queue.New[Position]()
	q.Enqueue(src)
	for !q.Empty() {
		cur := q.Dequeue()
		for _, off := range neighborOffsets {
			next := Position{Row: cur.Row + off[0], Col: cur.Col + off[1]}
			if !g.InBounds(next) {
				continue
			}
			i := next.Row*g.cols + next.Col
			if visited[i] || !passable(g.At(next)) {
				continue
			}
			if next == dst {
				return true
			}
			visited[i] = true
			q.Enqueue(next)
		}
	}
	return false
}

// ReachableCells returns every cell an item at src could be moved to, in BFS order
func ReachableCells(g *Grid, src Position) []Position {
	if !g.InBounds(src) {
		return nil
	}
	visited := make([]bool, g.rows*g.cols)
	visited[src.Row*g.cols+src.Col] = true

	var out []Position
	q := queue.New[Position]()
	q.Enqueue(src)
	for !q.Empty() {
		cur := q.Dequeue()
		for _, off := range neighborOffsets {
			next := Position{Row: cur.Row + off[0], Col: cur.Col + off[1]}
			if !g.InBounds(next) {
				continue
			}
			i := next.Row*g.cols + next.Col
			if visited[i] || !passable(g.At(next)) {
				continue
			}
			visited[i] = true
			out = append(out, next)
			q.Enqueue(next)
		}
	}
	return out
}

func passable(v int) bool {
	return v == EmptyCell || v == SourceMarker
}
