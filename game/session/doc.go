// Package session provides session management for storage yard environments.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Short random session IDs, case-insensitive lookup
//   - Optional JSON file persistence with lazy reload
//   - Eviction of idle sessions
//
// Core Types:
//
// Manager owns every live service.Session. Each session has its own
// engine.Environment, so concurrent sessions never share yard state.
// FilePersistence stores one JSON file per session.
//
// Persistence:
//
// Only metadata is written: the preset ID, timestamps, the curriculum
// snapshot and the most recent finished episodes. The grid itself is never
// stored. Loading a session rebuilds its environment from the preset,
// restores the difficulty ramp and starts a fresh episode.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("sessions", configManager, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := session.NewManagerWithPersistence(persistence, session.WithLogger(logger))
//
//	sess, err := manager.Create("", "transfer_5x5", cfg)
//	sess, err = manager.Get(sess.ID)
//
// Evicted sessions stay on disk and are reloaded by the next Get.
package session
