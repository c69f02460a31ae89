// Package engine provides the storage yard simulation core.
//
// The engine package implements:
//   - The grid and its dense priority ladder (PlaceItem, RemoveItem, PlaceRandomStocks)
//   - A breadth-first reachability oracle shared by every variant
//   - The transition rules of three action protocols
//   - Episode control: reset, step ceiling, and the difficulty ramp
//
// Variants:
//
// A transporter drives a cart one cell at a time (right, left, up, down) and
// toggles load/unload. A commander selects a source cell and then a
// destination cell. A transfer environment moves an item from source to
// destination in a single flat action, decoded as src = a / cells and
// dst = a % cells.
//
// Items carry ranks 1..n. An item leaves the yard when it sits in the exit
// column (the last active column) and its rank is the lowest on the ladder;
// removals cascade within a step and the remaining ranks shift down.
//
// Usage:
//
//	cfg := engine.DefaultEnvConfig()
//	env, err := engine.NewEnvironment(cfg, engine.WithSeed(42))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	obs := env.Observe()
//	fmt.Print(engine.FormatGrid(obs))
//
//	res, err := env.Step(engine.Action(0))
//	if errors.Is(err, engine.ErrEpisodeOver) {
//		env.Reset()
//	}
//
// Invalid game actions are not errors. They return the configured loop
// penalty with StepInfo.Outcome set to OutcomeRejected and leave the grid
// unchanged. Errors are reserved for bad configuration, action indices
// outside the action space, and stepping a finished episode.
package engine
