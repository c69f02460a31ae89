package engine

import "testing"

func TestCurriculum_RecordClear(t *testing.T) {
	c := NewCurriculum(CurriculumConfig{InitialStocks: 5, MaxStocks: 6, UpgradeInterval: 3})

	var upgrades int
	for i := 0; i < 9; i++ {
		if c.RecordClear() {
			upgrades++
		}
	}
	if upgrades != 1 {
		t.Errorf("Expected exactly 1 upgrade before the cap, got %d", upgrades)
	}
	if c.Level != 6 {
		t.Errorf("Expected level capped at 6, got %d", c.Level)
	}
	if c.TotalClears != 9 {
		t.Errorf("Expected 9 total clears, got %d", c.TotalClears)
	}
}

func TestCurriculum_Restore(t *testing.T) {
	c := NewCurriculum(CurriculumConfig{InitialStocks: 2, MaxStocks: 4, UpgradeInterval: 10})

	c.Restore(Curriculum{Level: 9, ClearsSinceUpdate: 3, TotalClears: 40, Episodes: 55})
	snap := c.Snapshot()
	if snap.Level != 4 {
		t.Errorf("Expected level clamped to 4, got %d", snap.Level)
	}
	if snap.ClearsSinceUpdate != 3 || snap.TotalClears != 40 || snap.Episodes != 55 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}
