package engine

// Move drives the cart one cell, clamped to the active area. A loaded cart
// carries its item along and completes it on reaching the exit column in
// ladder order.
func (e *Environment) Move(dir Direction) (StepResult, error) {
	return e.apply(VariantTransporter, func() transition {
		g := e.grid
		dr, dc := dir.delta()
		next := e.clamp(Position{Row: e.agent.Row + dr, Col: e.agent.Col + dc})

		if next == e.agent {
			if e.config.PenalizeEdgeBump {
				return e.reject(ReasonEdgeBump)
			}
			return transition{outcome: OutcomeNoop, reason: ReasonEdgeBump}
		}
		if g.HasItem(e.agent) && g.HasItem(next) {
			return e.reject(ReasonCollision)
		}

		if e.loaded {
			g.set(next, g.At(e.agent))
			g.set(e.agent, EmptyCell)
		}
		e.agent = next
		e.justLoaded = false

		t := transition{outcome: OutcomeMoved}
		if e.loaded && next.Col == g.ExitCol() {
			t.completions = e.checkComplete()
			t.reward = e.completionReward(t.completions)
			if !g.HasItem(e.agent) {
				e.dropCarry()
			}
		}
		return t
	})
}

// ToggleLoad picks up the item under an idle cart or sets down the carried
// one. Unloading on the cell it was just loaded from, with no move in between,
// is a penalized no-op unless in-place unloads are allowed.
func (e *Environment) ToggleLoad() (StepResult, error) {
	return e.apply(VariantTransporter, func() transition {
		g := e.grid
		if !e.loaded {
			if !g.HasItem(e.agent) {
				return e.reject(ReasonNothingToLoad)
			}
			e.loaded = true
			e.loadedRank = g.At(e.agent)
			e.loadedFrom = e.agent
			e.justLoaded = true
			return transition{outcome: OutcomeLoaded}
		}

		if e.justLoaded && !e.config.AllowInPlaceUnload {
			return e.reject(ReasonInPlaceUnload)
		}

		e.dropCarry()
		e.justLoaded = false
		done := e.checkComplete()
		return transition{
			reward:      e.completionReward(done),
			outcome:     OutcomeUnloaded,
			completions: done,
		}
	})
}

// clamp pins p to the active area
func (e *Environment) clamp(p Position) Position {
	g := e.grid
	if p.Row < 0 {
		p.Row = 0
	}
	if p.Row >= g.Rows() {
		p.Row = g.Rows() - 1
	}
	if p.Col < 0 {
		p.Col = 0
	}
	if p.Col >= g.Cols() {
		p.Col = g.Cols() - 1
	}
	return p
}
