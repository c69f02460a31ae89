package engine

// Select is the two-phase action of the commander variant. Selecting an item
// while idle picks it up and leaves the source marker behind; selecting a
// reachable empty cell while carrying puts it down there.
func (e *Environment) Select(p Position) (StepResult, error) {
	return e.apply(VariantCommander, func() transition {
		if !e.loaded {
			return e.pickUp(p)
		}
		return e.putDown(p)
	})
}

func (e *Environment) pickUp(p Position) transition {
	g := e.grid
	if !g.HasItem(p) {
		return e.reject(ReasonNothingToLoad)
	}
	e.loadedRank = g.At(p)
	e.loadedFrom = p
	e.loaded = true
	g.set(p, SourceMarker)
	return transition{outcome: OutcomeLoaded}
}

func (e *Environment) putDown(p Position) transition {
	g := e.grid

	if p == e.loadedFrom {
		g.set(p, e.loadedRank)
		e.dropCarry()
		if e.config.AllowInPlaceUnload {
			return transition{outcome: OutcomeUnloaded}
		}
		return e.reject(ReasonInPlaceUnload)
	}
	if !g.InBounds(p) {
		return e.reject(ReasonUnreachable)
	}
	if !g.IsEmpty(p) {
		return e.reject(ReasonOccupiedDest)
	}
	if !IsReachable(g, e.loadedFrom, p) {
		return e.reject(ReasonUnreachable)
	}

	g.set(p, e.loadedRank)
	g.set(e.loadedFrom, EmptyCell)
	e.dropCarry()

	done := e.checkComplete()
	return transition{
		reward:      e.completionReward(done),
		outcome:     OutcomeUnloaded,
		completions: done,
	}
}

func (e *Environment) dropCarry() {
	e.loaded = false
	e.loadedRank = 0
	e.loadedFrom = NoPosition
}
