// Package api provides the HTTP REST API for storage yard environments.
//
// Endpoints:
//
// Sessions:
//   - POST /api/sessions - Create a session {"config_id", "seed"}
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Session info with the current observation
//   - DELETE /api/sessions/{id} - Delete a session
//
// Environment:
//   - GET /api/sessions/{id}/observation - Observation plus a text rendering
//   - GET /api/sessions/{id}/spaces - Action and observation spaces
//   - POST /api/sessions/{id}/step - Apply one action
//   - POST /api/sessions/{id}/bulk-step - Apply up to 500 flat actions
//   - POST /api/sessions/{id}/reset - Start a new episode {"seed"}
//   - GET /api/sessions/{id}/history - Finished episodes (?page&limit&order)
//   - GET /api/sessions/{id}/stats - Aggregate episode statistics
//
// Configuration:
//   - GET /api/configs - List presets
//   - GET /api/configs/{name} - Load one preset
//   - POST /api/configs - Validate and save a JSON preset
//
// Other:
//   - GET /health, GET /api/health
//   - GET /ws?session={id} - WebSocket observation stream
//
// Step Request:
//
// Exactly one form must be set:
//
//	{"action": 17}                                       // flat index, any variant
//	{"direction": "up|down|left|right|toggle"}           // transporter
//	{"cell": {"row": 0, "col": 1}}                       // commander
//	{"src": {"row": 0, "col": 0}, "dst": {"row": 2, "col": 1}} // transfer
//
// "reset": true starts a new episode before the action.
//
// Error Handling:
//
// Errors are returned as {"error": "message"}. Unknown sessions and presets
// map to 404, malformed or out-of-space actions to 400, and stepping a
// finished episode to 409.
//
// Usage:
//
//	server := api.NewServer(gameService, hub, logger)
//	http.ListenAndServe(":8080", server)
package api
