// Package service provides the business logic layer for storage yard sessions.
//
// The service package implements:
//   - Multi-session environment management
//   - Step dispatch for flat action indices and variant-native requests
//   - Bulk stepping with optional auto reset
//   - Episode history, statistics and optional durable recording
//
// Core Interfaces:
//
// GameService is the main service interface used by every transport.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager loads and validates environment presets.
// EpisodeRecorder persists finished episodes (see the ledger package).
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	svc := service.NewGameService(sessionMgr, configMgr, service.WithLogger(logger))
//
//	info, err := svc.CreateSession(ctx, "transfer_5x5", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	action := 3
//	resp, err := svc.Step(ctx, info.ID, service.StepRequest{Action: &action})
//
// Episodes:
//
// When a step terminates or truncates an episode the service appends an
// EpisodeRecord to the session's bounded history, hands it to the recorder
// and persists the session. Recorder failures are logged, never returned.
package service
