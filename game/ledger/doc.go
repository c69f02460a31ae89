// Package ledger keeps a durable record of finished episodes.
//
// SQLiteLedger implements service.EpisodeRecorder on top of an embedded,
// cgo-free SQLite database. One row per episode holds the session ID, the
// preset, steps, reward, completions and how the episode ended. Stats
// aggregates in SQL, so training progress survives restarts and session
// eviction.
//
// Usage:
//
//	l, err := ledger.OpenSQLite("data/episodes.db", logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer l.Close()
//
//	svc := service.NewGameService(sessions, configs, service.WithRecorder(l))
package ledger
