// Command storageyard serves storage yard reinforcement learning environments.
//
// Commands:
//  1. "serve" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "rollout" – plays episodes with a uniform random policy and prints a summary per episode
//  4. "validate" – checks preset files against the schema and reports their capacity
//  5. "episodes" – prints finished episodes recorded in the SQLite ledger
//
// Flags control host/port, config directory, debug logging, the episode ledger,
// and optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/storageyard/game/config"
	"github.com/wricardo/mcp-training/storageyard/game/ledger"
	"github.com/wricardo/mcp-training/storageyard/game/service"
	"github.com/wricardo/mcp-training/storageyard/game/session"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Storage Yard Environments"
)

const (
	sessionMaxAge   = 24 * time.Hour
	cleanupInterval = time.Hour
	syncInterval    = 5 * time.Second
	ledgerRetention = 30 * 24 * time.Hour
)

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "storageyard",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "Directory containing environment presets",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
			&cli.StringFlag{
				Name:    "sessions-dir",
				Value:   "sessions",
				Usage:   "Directory for session files (empty disables persistence)",
				Sources: cli.EnvVars("SESSIONS_DIR"),
			},
			&cli.StringFlag{
				Name:    "ledger",
				Usage:   "SQLite file recording every finished episode (optional)",
				Sources: cli.EnvVars("LEDGER_PATH"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("DEBUG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			rolloutCommand(),
			validateCommand(),
			episodesCommand(),
		},
		DefaultCommand: "serve",
	}
}

// buildLogger returns a JSON production logger, or a console development
// logger when debug is set. Both write to stderr so stdio MCP stays clean.
func buildLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// serviceSettings are the storage locations shared by every command
type serviceSettings struct {
	ConfigDir   string
	SessionsDir string
	LedgerPath  string
}

func settingsFrom(cmd *cli.Command) serviceSettings {
	return serviceSettings{
		ConfigDir:   cmd.String("config-dir"),
		SessionsDir: cmd.String("sessions-dir"),
		LedgerPath:  cmd.String("ledger"),
	}
}

// services bundles the wired game stack
type services struct {
	Game     service.GameService
	Configs  *config.Manager
	Sessions *session.Manager
	Ledger   *ledger.SQLiteLedger
	logger   *zap.Logger
}

// Close flushes sessions and closes the ledger
func (s *services) Close() {
	if err := s.Sessions.SaveAllSessions(); err != nil {
		s.logger.Warn("failed to save sessions on shutdown", zap.Error(err))
	}
	if s.Ledger != nil {
		if err := s.Ledger.Close(); err != nil {
			s.logger.Warn("failed to close ledger", zap.Error(err))
		}
	}
}

// initializeServices wires config/session managers, the optional ledger and
// the game service. It also starts background routines that prune stale
// sessions until ctx is cancelled.
func initializeServices(ctx context.Context, settings serviceSettings, logger *zap.Logger) (*services, error) {
	// Create config manager first (needed for persistence)
	configManager, err := config.NewManager(settings.ConfigDir, config.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	var persistence session.SessionPersistence
	var sessionManager *session.Manager
	if settings.SessionsDir != "" {
		fp, err := session.NewFilePersistence(settings.SessionsDir, configManager, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		persistence = fp
		sessionManager = session.NewManagerWithPersistence(fp, session.WithLogger(logger))

		// Load persisted sessions on startup
		if err := sessionManager.LoadPersistedSessions(); err != nil {
			logger.Warn("failed to load persisted sessions", zap.Error(err))
		}
	} else {
		sessionManager = session.NewManager(session.WithLogger(logger))
	}

	opts := []service.Option{service.WithLogger(logger)}

	var episodeLedger *ledger.SQLiteLedger
	if settings.LedgerPath != "" {
		episodeLedger, err = ledger.OpenSQLite(settings.LedgerPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		opts = append(opts, service.WithRecorder(episodeLedger))
	}

	svc := &services{
		Game:     service.NewGameService(sessionManager, configManager, opts...),
		Configs:  configManager,
		Sessions: sessionManager,
		Ledger:   episodeLedger,
		logger:   logger,
	}

	go sessionCleanupRoutine(ctx, svc, sessionMaxAge, cleanupInterval)
	if persistence != nil {
		go filesystemSyncRoutine(ctx, sessionManager, persistence, logger)
	}

	return svc, nil
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within maxAge and prunes old ledger rows.
func sessionCleanupRoutine(ctx context.Context, svc *services, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if removed := svc.Sessions.CleanupExpiredSessions(maxAge); removed > 0 {
			svc.logger.Info("cleaned up expired sessions", zap.Int("removed", removed))
		}

		if svc.Ledger != nil {
			pruned, err := svc.Ledger.Prune(ctx, time.Now().Add(-ledgerRetention))
			if err != nil {
				svc.logger.Warn("ledger prune failed", zap.Error(err))
			} else if pruned > 0 {
				svc.logger.Info("pruned ledger episodes", zap.Int64("removed", pruned))
			}
		}
	}
}

// filesystemSyncRoutine removes sessions from memory when their files are deleted
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, logger *zap.Logger) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pruned := 0
		for _, sess := range manager.List() {
			if persistence.Exists(sess.ID) {
				continue
			}
			if err := manager.DeleteFromMemory(sess.ID); err == nil {
				pruned++
				logger.Debug("pruned session from memory (file deleted)", zap.String("session_id", sess.ID))
			}
		}

		if pruned > 0 {
			logger.Info("filesystem sync pruned orphaned sessions", zap.Int("pruned", pruned))
		}
	}
}
