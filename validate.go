package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/storageyard/game/config"
	"github.com/wricardo/mcp-training/storageyard/game/engine"
	"github.com/wricardo/mcp-training/storageyard/game/ledger"
	"github.com/wricardo/mcp-training/storageyard/game/service"
)

// denseYard is the stock-to-cell ratio above which a preset gets a warning
const denseYard = 0.9

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate preset files and report their capacity",
		ArgsUsage: "[file or directory ...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				paths = []string{cmd.String("config-dir")}
			}

			files, err := presetFiles(paths)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no preset files found in %s", strings.Join(paths, ", "))
			}

			allValid := true
			for _, file := range files {
				result := validatePreset(file)
				printValidation(result)
				allValid = allValid && result.Valid
			}

			fmt.Printf("\n%s\n", strings.Repeat("=", 40))
			if !allValid {
				return cli.Exit("❌ Some presets have errors", 1)
			}
			fmt.Println("✅ All presets are valid!")
			return nil
		},
	}
}

// ValidationResult captures the outcome of validating a single file.
// Info holds the capacity report; Errors is empty when Valid.
type ValidationResult struct {
	File     string
	Valid    bool
	Info     []string
	Warnings []string
	Errors   []string
}

// presetFiles expands directories into their preset files, sorted
func presetFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, ok := config.FormatForPath(entry.Name()); ok {
				files = append(files, filepath.Join(p, entry.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// validatePreset decodes one preset against the schema and engine rules, then
// checks that both ends of the difficulty ramp can spawn.
func validatePreset(path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Valid: true}

	format, ok := config.FormatForPath(path)
	if !ok {
		result.Valid = false
		result.Errors = append(result.Errors, "unsupported extension, use .json, .yaml or .yml")
		return result
	}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	cfg, err := config.DecodePreset(data, format)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	analyzeCapacity(cfg, &result)
	return result
}

// analyzeCapacity reports the action space, the placement region and the
// difficulty ramp, and resets an environment at the lowest and highest level.
func analyzeCapacity(cfg *engine.EnvConfig, result *ValidationResult) {
	frameRows, frameCols := cfg.Frame()
	placeable := cfg.PlaceableCells()
	cur := cfg.Curriculum

	result.Info = append(result.Info,
		fmt.Sprintf("Variant: %s, grid %dx%d, frame %dx%d", cfg.Variant, cfg.Rows, cfg.Cols, frameRows, frameCols),
		fmt.Sprintf("Actions: %d, placeable cells: %d", cfg.ActionCount(), placeable),
		fmt.Sprintf("Ramp: %d to %d stocks, +1 every %d clears (%d clears to max)",
			cur.InitialStocks, cur.MaxStocks, cur.UpgradeInterval, (cur.MaxStocks-cur.InitialStocks)*cur.UpgradeInterval),
		fmt.Sprintf("Rewards: loop penalty %g, completion %g, priority interval %.4f", cfg.Penalty(), cfg.Reward(), cfg.Interval()),
	)
	if cfg.MaxSteps > 0 {
		result.Info = append(result.Info, fmt.Sprintf("Episodes truncate after %d steps", cfg.MaxSteps))
	} else {
		result.Warnings = append(result.Warnings, "max_steps is 0, episodes only end when the yard is cleared")
	}

	if density := float64(cur.MaxStocks) / float64(placeable); density >= denseYard {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("at max difficulty %.0f%% of placeable cells hold stock", density*100))
	}

	for _, level := range []int{cur.InitialStocks, cur.MaxStocks} {
		env, err := engine.NewEnvironment(cfg,
			engine.WithSeed(1),
			engine.WithCurriculum(engine.Curriculum{Level: level}))
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("cannot spawn %d stocks: %v", level, err))
			continue
		}
		if got := env.Observe().Stocks; got != level {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("expected %d stocks after reset, got %d", level, got))
		}
	}
}

func printValidation(result ValidationResult) {
	fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

	if result.Valid {
		fmt.Println("✅ VALID")
	} else {
		fmt.Println("❌ INVALID")
	}
	for _, info := range result.Info {
		fmt.Println("  ✓ " + info)
	}
	for _, warning := range result.Warnings {
		fmt.Println("  ⚠️  " + warning)
	}
	for _, err := range result.Errors {
		fmt.Println("  ❌ " + err)
	}
}

func episodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "episodes",
		Usage: "Print finished episodes recorded in the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "Session ID (\"rollout\" for rollout runs)", Required: true},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Episodes to print, oldest first (0 for all)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("ledger")
			if path == "" {
				return fmt.Errorf("--ledger (or LEDGER_PATH) is required")
			}

			l, err := ledger.OpenSQLite(path, nil)
			if err != nil {
				return err
			}
			defer l.Close()

			sessionID := cmd.String("session")
			episodes, err := l.ListEpisodes(ctx, sessionID, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			stats, err := l.Stats(ctx, sessionID)
			if err != nil {
				return err
			}

			printEpisodes(episodes, stats)
			return nil
		},
	}
}

func printEpisodes(episodes []service.EpisodeRecord, stats *service.EpisodeStats) {
	for _, rec := range episodes {
		fmt.Printf("%s  %s  %s\n", rec.FinishedAt.Format("2006-01-02 15:04:05"), rec.SessionID, formatEpisodeLine(rec))
	}
	fmt.Println(formatStats(stats))
}
