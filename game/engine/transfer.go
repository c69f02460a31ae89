package engine

// DecodeTransfer splits a flat transfer action into source and destination
// cell indices over a frame of the given size.
func DecodeTransfer(a Action, cells int) (int, int) {
	return int(a) / cells, int(a) % cells
}

// EncodeTransfer is the inverse of DecodeTransfer
func EncodeTransfer(src, dst, cells int) Action {
	return Action(src*cells + dst)
}

// Transfer moves the item at src to dst in one step. It is rejected when src
// is empty, dst is occupied, or no empty path connects them.
func (e *Environment) Transfer(src, dst Position) (StepResult, error) {
	return e.apply(VariantTransfer, func() transition {
		g := e.grid
		if !g.InBounds(src) || !g.InBounds(dst) {
			return e.reject(ReasonUnreachable)
		}
		if !g.HasItem(src) {
			return e.reject(ReasonEmptySource)
		}
		if !g.IsEmpty(dst) {
			return e.reject(ReasonOccupiedDest)
		}
		if !IsReachable(g, src, dst) {
			return e.reject(ReasonUnreachable)
		}

		g.set(dst, g.At(src))
		g.set(src, EmptyCell)

		done := e.checkComplete()
		return transition{
			reward:      e.completionReward(done),
			outcome:     OutcomeTransferred,
			completions: done,
		}
	})
}
