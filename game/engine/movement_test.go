package engine

import (
	"testing"
)

func createTransporter(t *testing.T, mutate func(*EnvConfig)) *Environment {
	t.Helper()
	cfg := createTestConfig(VariantTransporter)
	cfg.Rows, cfg.Cols = 3, 4
	cfg.Curriculum = CurriculumConfig{InitialStocks: 2, MaxStocks: 4, UpgradeInterval: 10}
	if mutate != nil {
		mutate(cfg)
	}
	env := newTestEnv(t, cfg)
	setCells(t, env.grid, [][]int{
		{0, 0, 0, 0},
		{0, 2, 1, 0},
		{0, 0, 0, 0},
	})
	env.agent = Position{1, 2}
	return env
}

// mustStep fails the test on a step error: mustStep(t)(env.Move(Up))
func mustStep(t *testing.T) func(StepResult, error) StepResult {
	return func(res StepResult, err error) StepResult {
		t.Helper()
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		return res
	}
}

func TestTransporter_ResetPlacesCart(t *testing.T) {
	cfg := createTestConfig(VariantTransporter)
	cfg.Curriculum.InitialStocks = 3
	env := newTestEnv(t, cfg)

	obs := env.Observe()
	if obs.Agent != (Position{2, 4}) {
		t.Errorf("Expected cart at (2,4), got %v", obs.Agent)
	}
	if env.ActionSpace().N != 5 {
		t.Errorf("Expected 5 actions, got %d", env.ActionSpace().N)
	}
}

func TestTransporter_CarryToExit(t *testing.T) {
	env := createTransporter(t, nil)

	res := mustStep(t)(env.Step(Toggle))
	if res.Info.Outcome != OutcomeLoaded || !res.Observation.Loaded {
		t.Fatalf("Expected load, got %+v", res.Info)
	}
	if res.Observation.LoadedPriority != res.Observation.PriorityInterval {
		t.Errorf("Expected carried priority of rank 1, got %v", res.Observation.LoadedPriority)
	}

	res = mustStep(t)(env.Step(Action(Right)))
	if res.Reward != 1 {
		t.Errorf("Expected completion reward 1, got %v", res.Reward)
	}
	if res.Observation.Loaded {
		t.Error("Expected cart to be empty after its item completed")
	}
	if res.Observation.Stocks != 1 || env.grid.At(Position{1, 1}) != 1 {
		t.Errorf("Expected remaining item renumbered to rank 1, got %v", env.grid.Values())
	}
	if res.Observation.Agent != (Position{1, 3}) {
		t.Errorf("Expected cart at exit (1,3), got %v", res.Observation.Agent)
	}
}

func TestTransporter_CarriedMarkerMovesWithCart(t *testing.T) {
	env := createTransporter(t, nil)
	mustStep(t)(env.ToggleLoad())

	res := mustStep(t)(env.Move(Down))
	if res.Info.Outcome != OutcomeMoved {
		t.Fatalf("Expected move, got %+v", res.Info)
	}
	if env.grid.At(Position{1, 2}) != EmptyCell || env.grid.At(Position{2, 2}) != 1 {
		t.Errorf("Expected item to follow the cart, got %v", env.grid.Values())
	}
	if res.Observation.Stocks != 2 {
		t.Errorf("Expected stock count unchanged, got %d", res.Observation.Stocks)
	}
}

func TestTransporter_Collision(t *testing.T) {
	tests := []struct {
		name   string
		loaded bool
	}{
		{"idle under item", false},
		{"carrying", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTransporter(t, nil)
			if tt.loaded {
				mustStep(t)(env.ToggleLoad())
			}
			before := env.grid.Values()

			res := mustStep(t)(env.Move(Left))
			if res.Info.Reason != ReasonCollision || res.Reward != -0.1 {
				t.Errorf("Expected collision penalty, got reward %v info %+v", res.Reward, res.Info)
			}
			if res.Observation.Agent != (Position{1, 2}) {
				t.Errorf("Expected cart to stay at (1,2), got %v", res.Observation.Agent)
			}
			for i, v := range env.grid.Values() {
				if v != before[i] {
					t.Fatalf("Rejected move changed the grid")
				}
			}
		})
	}
}

func TestTransporter_EdgeClamp(t *testing.T) {
	tests := []struct {
		name       string
		penalize   bool
		wantReward float64
		wantOut    Outcome
	}{
		{"clamp is free", false, 0, OutcomeNoop},
		{"clamp penalized", true, -0.1, OutcomeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTransporter(t, func(c *EnvConfig) { c.PenalizeEdgeBump = tt.penalize })
			env.agent = Position{0, 3}

			res := mustStep(t)(env.Move(Up))
			if res.Reward != tt.wantReward || res.Info.Outcome != tt.wantOut {
				t.Errorf("Expected %s/%v, got %s/%v", tt.wantOut, tt.wantReward, res.Info.Outcome, res.Reward)
			}
			if res.Observation.Agent != (Position{0, 3}) {
				t.Errorf("Expected cart clamped at (0,3), got %v", res.Observation.Agent)
			}
		})
	}
}

func TestTransporter_InPlaceUnloadPolicy(t *testing.T) {
	tests := []struct {
		name       string
		allow      bool
		wantReward float64
		wantOut    Outcome
		wantLoaded bool
	}{
		{"strict", false, -0.1, OutcomeRejected, true},
		{"allowed", true, 0, OutcomeUnloaded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTransporter(t, func(c *EnvConfig) { c.AllowInPlaceUnload = tt.allow })
			mustStep(t)(env.ToggleLoad())

			res := mustStep(t)(env.ToggleLoad())
			if res.Reward != tt.wantReward || res.Info.Outcome != tt.wantOut {
				t.Errorf("Expected %s/%v, got %s/%v", tt.wantOut, tt.wantReward, res.Info.Outcome, res.Reward)
			}
			if res.Observation.Loaded != tt.wantLoaded {
				t.Errorf("Expected loaded=%v, got %v", tt.wantLoaded, res.Observation.Loaded)
			}
		})
	}
}

func TestTransporter_UnloadAfterMove(t *testing.T) {
	env := createTransporter(t, nil)
	mustStep(t)(env.ToggleLoad())
	mustStep(t)(env.Move(Up))

	res := mustStep(t)(env.ToggleLoad())
	if res.Info.Outcome != OutcomeUnloaded || res.Reward != 0 {
		t.Errorf("Expected free unload, got %s/%v", res.Info.Outcome, res.Reward)
	}
	if env.grid.At(Position{0, 2}) != 1 {
		t.Errorf("Expected item left at (0,2), got %v", env.grid.Values())
	}
}

func TestTransporter_ToggleOnEmptyCell(t *testing.T) {
	env := createTransporter(t, nil)
	env.agent = Position{2, 0}

	res := mustStep(t)(env.ToggleLoad())
	if res.Info.Reason != ReasonNothingToLoad || res.Reward != -0.1 {
		t.Errorf("Expected nothing_to_load penalty, got %v/%+v", res.Reward, res.Info)
	}
}

func TestTransporter_CascadeWhileCarrying(t *testing.T) {
	env := createTransporter(t, nil)
	setCells(t, env.grid, [][]int{
		{0, 0, 0, 2},
		{0, 0, 1, 0},
		{0, 0, 3, 0},
	})
	env.agent = Position{1, 2}

	mustStep(t)(env.ToggleLoad())
	res := mustStep(t)(env.Move(Right))
	if res.Reward != 2 || len(res.Info.Completions) != 2 {
		t.Errorf("Expected two cascaded completions, got reward %v info %+v", res.Reward, res.Info)
	}
	if env.grid.At(Position{2, 2}) != 1 {
		t.Errorf("Expected rank 3 renumbered to 1, got %v", env.grid.Values())
	}
}

func TestTransporter_MoveUnderItemIsFree(t *testing.T) {
	env := createTransporter(t, nil)
	env.agent = Position{0, 1}

	res := mustStep(t)(env.Move(Down))
	if res.Info.Outcome != OutcomeMoved || res.Reward != 0 {
		t.Errorf("Expected free move under item, got %s/%v", res.Info.Outcome, res.Reward)
	}
	if res.Observation.Agent != (Position{1, 1}) {
		t.Errorf("Expected cart at (1,1), got %v", res.Observation.Agent)
	}
}
