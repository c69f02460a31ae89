package engine

// Curriculum tracks the difficulty ramp: the number of stocks spawned per
// episode grows by one every UpgradeInterval cleared episodes, up to MaxStocks.
// Episodes counts episodes in which at least one step was taken.
type Curriculum struct {
	Level             int `json:"level"`
	ClearsSinceUpdate int `json:"clears_since_update"`
	TotalClears       int `json:"total_clears"`
	Episodes          int `json:"episodes"`

	max      int
	interval int
}

// NewCurriculum starts a ramp at the configured initial level
func NewCurriculum(cfg CurriculumConfig) *Curriculum {
	return &Curriculum{
		Level:    cfg.InitialStocks,
		max:      cfg.MaxStocks,
		interval: cfg.UpgradeInterval,
	}
}

// Restore applies a saved snapshot, clamping the level to the configured range
func (c *Curriculum) Restore(snapshot Curriculum) {
	c.Level = snapshot.Level
	if c.Level > c.max {
		c.Level = c.max
	}
	if c.Level < 1 {
		c.Level = 1
	}
	c.ClearsSinceUpdate = snapshot.ClearsSinceUpdate
	c.TotalClears = snapshot.TotalClears
	c.Episodes = snapshot.Episodes
}

// Snapshot returns the exported counters
func (c *Curriculum) Snapshot() Curriculum {
	return Curriculum{
		Level:             c.Level,
		ClearsSinceUpdate: c.ClearsSinceUpdate,
		TotalClears:       c.TotalClears,
		Episodes:          c.Episodes,
	}
}

// RecordClear counts a cleared episode and reports whether the level went up
func (c *Curriculum) RecordClear() bool {
	c.TotalClears++
	c.ClearsSinceUpdate++
	if c.ClearsSinceUpdate < c.interval {
		return false
	}
	c.ClearsSinceUpdate = 0
	if c.Level >= c.max {
		return false
	}
	c.Level++
	return true
}
