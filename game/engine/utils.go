package engine

import (
	"fmt"
	"strings"
)

// FormatGrid renders an observation as text, one row per line. Items show
// their rank, "." is empty, "*" the source marker, "#" a stuck cell, and the
// cart is bracketed. The exit column is marked with a trailing "|".
func FormatGrid(obs Observation) string {
	var b strings.Builder
	width := len(fmt.Sprint(len(obs.Ladder)))
	if width < 1 {
		width = 1
	}

	for r := 0; r < obs.Rows; r++ {
		for c := 0; c < obs.Cols; c++ {
			p := Position{Row: r, Col: c}
			var cell string
			switch rank := obs.Rank(p); {
			case rank > 0:
				cell = fmt.Sprintf("%*d", width, rank)
			case rank == SourceMarker:
				cell = fmt.Sprintf("%*s", width, "*")
			case rank == StuckCell:
				cell = fmt.Sprintf("%*s", width, "#")
			default:
				cell = fmt.Sprintf("%*s", width, ".")
			}
			if p == obs.Agent {
				b.WriteString("[" + cell + "]")
			} else {
				b.WriteString(" " + cell + " ")
			}
			if c == obs.ExitCol {
				b.WriteString("|")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ValidActions lists the action indices that would not be rejected from the
// current state. Useful for masking random rollouts.
func (e *Environment) ValidActions() []Action {
	if e.done {
		return nil
	}
	g := e.grid
	cells := g.FrameRows() * g.FrameCols()

	var out []Action
	switch e.config.Variant {
	case VariantTransporter:
		for d := Right; d <= Down; d++ {
			dr, dc := d.delta()
			next := e.clamp(Position{Row: e.agent.Row + dr, Col: e.agent.Col + dc})
			if next == e.agent || (g.HasItem(e.agent) && g.HasItem(next)) {
				continue
			}
			out = append(out, Action(d))
		}
		if (!e.loaded && g.HasItem(e.agent)) || (e.loaded && (!e.justLoaded || e.config.AllowInPlaceUnload)) {
			out = append(out, Toggle)
		}
	case VariantCommander:
		if !e.loaded {
			for i := 0; i < cells; i++ {
				if g.HasItem(e.cellAt(i)) {
					out = append(out, Action(i))
				}
			}
			break
		}
		for _, p := range ReachableCells(g, e.loadedFrom) {
			out = append(out, Action(p.Row*g.FrameCols()+p.Col))
		}
	default:
		for src := 0; src < cells; src++ {
			from := e.cellAt(src)
			if !g.HasItem(from) {
				continue
			}
			for _, to := range ReachableCells(g, from) {
				out = append(out, EncodeTransfer(src, to.Row*g.FrameCols()+to.Col, cells))
			}
		}
	}
	return out
}
