package engine

// checkComplete removes the next-in-ladder items sitting in the exit column.
// The column is rescanned from the top after every removal so cascades within
// one step are resolved, then the remaining ranks are shifted down to stay dense.
func (e *Environment) checkComplete() []Completion {
	g := e.grid
	exit := g.ExitCol()

	var done []Completion
	for row := 0; row < g.Rows(); {
		p := Position{Row: row, Col: exit}
		if next := len(done) + 1; g.At(p) == next {
			g.RemoveItem(p)
			done = append(done, Completion{Rank: next, Position: p})
			row = 0
			continue
		}
		row++
	}
	g.ShiftDown(len(done))
	return done
}

// completionReward converts removals into reward
func (e *Environment) completionReward(done []Completion) float64 {
	return float64(len(done)) * e.config.Reward()
}
