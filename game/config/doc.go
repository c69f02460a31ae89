// Package config provides preset management for storage yard environments.
//
// The config package handles:
//   - Loading environment presets from JSON or YAML files
//   - Schema validation against an embedded JSON Schema
//   - Semantic validation through engine.ValidateEnvConfig
//   - Default preset selection and preset listing
//
// Preset Format:
//
// A preset names a variant (transporter, commander or transfer), the active
// grid size, an optional larger observation frame, reward settings and the
// difficulty ramp:
//
//	name: transporter_4x4
//	variant: transporter
//	rows: 4
//	cols: 4
//	max_steps: 400
//	curriculum:
//	  initial_stocks: 2
//	  max_stocks: 8
//	  upgrade_interval: 1000
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	preset, err := manager.LoadConfig("transporter_4x4")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// List available presets
//	presets, err := manager.ListConfigs()
//
// Files that fail validation are skipped by ListConfigs and reported by
// LoadConfig with ErrInvalidConfig.
package config
