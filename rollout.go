package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/storageyard/game/config"
	"github.com/wricardo/mcp-training/storageyard/game/engine"
	"github.com/wricardo/mcp-training/storageyard/game/ledger"
	"github.com/wricardo/mcp-training/storageyard/game/service"
)

// rolloutBatch is how many random actions the remote driver sends per request
const rolloutBatch = 100

func rolloutCommand() *cli.Command {
	return &cli.Command{
		Name:      "rollout",
		Usage:     "Play episodes with a uniform random policy and print a summary",
		ArgsUsage: "[preset]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "episodes", Aliases: []string{"n"}, Value: 10, Usage: "Episodes to play"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "Seed for the environment and the policy"},
			&cli.IntFlag{Name: "max-steps", Value: 1000, Usage: "Abort an episode after this many steps"},
			&cli.BoolFlag{Name: "masked", Value: true, Usage: "Sample only actions that would not be rejected (local only)"},
			&cli.StringFlag{Name: "url", Usage: "Drive a running server over REST instead of a local environment"},
		},
		Action: runRollout,
	}
}

// rolloutOptions are the parsed rollout flags
type rolloutOptions struct {
	Preset   string
	Episodes int
	Seed     int64
	MaxSteps int
	Masked   bool
}

func runRollout(ctx context.Context, cmd *cli.Command) error {
	logger, err := buildLogger(cmd.Bool("debug"))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	opts := rolloutOptions{
		Preset:   cmd.Args().First(),
		Episodes: int(cmd.Int("episodes")),
		Seed:     cmd.Int64("seed"),
		MaxSteps: int(cmd.Int("max-steps")),
		Masked:   cmd.Bool("masked"),
	}
	if opts.Episodes < 1 {
		return fmt.Errorf("episodes must be >= 1, got %d", opts.Episodes)
	}

	var records []service.EpisodeRecord
	if serverURL := cmd.String("url"); serverURL != "" {
		records, err = newRolloutClient(serverURL).run(ctx, opts)
	} else {
		records, err = localRollout(ctx, settingsFrom(cmd), opts, logger)
	}
	if err != nil {
		return err
	}

	for _, rec := range records {
		fmt.Println(formatEpisodeLine(rec))
	}
	fmt.Println(formatStats(service.SummarizeEpisodes("rollout", records)))
	return nil
}

// localRollout plays episodes in-process. Finished episodes go to the
// ledger when one is configured.
func localRollout(ctx context.Context, settings serviceSettings, opts rolloutOptions, logger *zap.Logger) ([]service.EpisodeRecord, error) {
	configs, err := config.NewManager(settings.ConfigDir, config.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	cfg := configs.GetDefault()
	if opts.Preset != "" {
		if cfg, err = configs.LoadConfig(opts.Preset); err != nil {
			return nil, err
		}
	}

	var recorder service.EpisodeRecorder
	if settings.LedgerPath != "" {
		l, err := ledger.OpenSQLite(settings.LedgerPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		defer l.Close()
		recorder = l
	}

	return playRandom(ctx, cfg, opts, recorder, logger)
}

// playRandom runs opts.Episodes episodes of a uniform random policy
func playRandom(ctx context.Context, cfg *engine.EnvConfig, opts rolloutOptions, recorder service.EpisodeRecorder, logger *zap.Logger) ([]service.EpisodeRecord, error) {
	env, err := engine.NewEnvironment(cfg, engine.WithSeed(opts.Seed), engine.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	actionCount := env.ActionSpace().N

	records := make([]service.EpisodeRecord, 0, opts.Episodes)
	for ep := 0; ep < opts.Episodes; ep++ {
		if ep > 0 {
			if _, _, err := env.Reset(); err != nil {
				return records, err
			}
		}

		for !env.Done() && env.Episode().Steps < opts.MaxSteps {
			if err := ctx.Err(); err != nil {
				return records, err
			}

			action := engine.Action(rng.Intn(actionCount))
			if opts.Masked {
				valid := env.ValidActions()
				if len(valid) == 0 {
					break
				}
				action = valid[rng.Intn(len(valid))]
			}
			if _, err := env.Step(action); err != nil {
				return records, err
			}
		}

		summary := env.Episode()
		rec := service.EpisodeRecord{
			SessionID:   "rollout",
			ConfigName:  cfg.Name,
			Episode:     summary.Episode,
			Steps:       summary.Steps,
			Reward:      summary.Reward,
			Completions: summary.Completions,
			Level:       summary.Level,
			Terminated:  summary.Terminated,
			Truncated:   summary.Truncated,
			FinishedAt:  time.Now(),
		}
		records = append(records, rec)

		if recorder != nil {
			if err := recorder.RecordEpisode(ctx, rec); err != nil {
				logger.Warn("failed to record episode", zap.Error(err))
			}
		}
	}
	return records, nil
}

// rolloutClient drives a session of a running server over REST
type rolloutClient struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func newRolloutClient(baseURL string) *rolloutClient {
	return &rolloutClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *rolloutClient) post(ctx context.Context, path string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s failed: %s - %s", path, resp.Status, string(raw))
	}
	return json.Unmarshal(raw, result)
}

// createSession starts a seeded session and returns its action count
func (c *rolloutClient) createSession(ctx context.Context, preset string, seed int64) (int, error) {
	body := map[string]interface{}{"seed": seed}
	if preset != "" {
		body["config_id"] = preset
	}

	var info service.SessionInfo
	if err := c.post(ctx, "/api/sessions", body, &info); err != nil {
		return 0, err
	}
	if info.Config == nil {
		return 0, fmt.Errorf("session %s has no config", info.ID)
	}
	c.sessionID = info.ID
	return info.Config.ActionCount(), nil
}

// run plays opts.Episodes episodes, sending random actions in batches. The
// server stops each batch at the end of an episode.
func (c *rolloutClient) run(ctx context.Context, opts rolloutOptions) ([]service.EpisodeRecord, error) {
	actionCount, err := c.createSession(ctx, opts.Preset, opts.Seed)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	path := "/api/sessions/" + url.PathEscape(c.sessionID) + "/bulk-step"

	var records []service.EpisodeRecord
	for len(records) < opts.Episodes {
		reset := len(records) > 0
		steps := 0
		reward := 0.0
		for {
			actions := make([]int, rolloutBatch)
			for i := range actions {
				actions[i] = rng.Intn(actionCount)
			}

			var result service.BulkStepResult
			if err := c.post(ctx, path, map[string]interface{}{"actions": actions, "reset": reset}, &result); err != nil {
				return records, err
			}
			reset = false
			steps += result.StepsExecuted
			reward += result.TotalReward

			if len(result.Episodes) > 0 {
				records = append(records, result.Episodes...)
				break
			}
			if steps >= opts.MaxSteps {
				// Abandon the episode; the next one starts with a reset
				records = append(records, service.EpisodeRecord{
					SessionID: c.sessionID,
					Steps:     steps,
					Reward:    reward,
				})
				break
			}
		}
	}
	return records, nil
}

func formatEpisodeLine(rec service.EpisodeRecord) string {
	status := "aborted"
	switch {
	case rec.Terminated:
		status = "cleared"
	case rec.Truncated:
		status = "truncated"
	}
	return fmt.Sprintf("episode %4d  level %2d  steps %6d  reward %9.3f  completions %3d  %s",
		rec.Episode, rec.Level, rec.Steps, rec.Reward, rec.Completions, status)
}

func formatStats(stats *service.EpisodeStats) string {
	return fmt.Sprintf("episodes %d  cleared %d (%.1f%%)  mean reward %.3f  mean steps %.1f  best %.3f  max level %d",
		stats.Episodes, stats.Cleared, stats.ClearRate*100, stats.MeanReward, stats.MeanSteps,
		stats.BestReward, stats.MaxLevel)
}
