// Package websocket streams environment updates to browser and agent clients.
//
// A central Hub tracks clients per session ID. Each client has a writer and
// a reader goroutine; the hub goroutine owns registration and fan-out.
//
// Message Protocol:
//
// Outgoing frames are JSON Message values, one per frame:
//   - {"event": "observation", "observation": {...}} after every step or reset
//   - {"event": "episode_end", "data": EpisodeRecord} when an episode finishes
//   - {"event": "reset", "data": ResetInfo} when a new episode starts
//
// Incoming frames are read and discarded so that pongs keep flowing.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	// clients connect to /ws?session=<id>
//	hub.ServeWS(w, r, sessionID)
//	hub.BroadcastObservation(sessionID, obs)
//
// Broadcasts never block the caller. When the queue is full or the hub has
// stopped the message is dropped; slow clients are disconnected.
package websocket
