// Package mcp exposes storage yard environments as Model Context Protocol
// tools.
//
// Client is a thin proxy: every tool call becomes a REST request against the
// api package, and the JSON response is rendered as text for the agent.
//
// MCP Tools:
//   - create_session: Start an environment from a preset, optionally seeded
//   - list_sessions, get_session: Inspect sessions and their difficulty
//   - observe: Rendered grid plus target, cart and carried stock
//   - step: One action as a flat index, direction, cell or src/dst pair
//   - bulk_step: A list of flat indices, with optional auto reset
//   - reset_env: Start a new episode
//   - episode_history, episode_stats: Finished episodes
//   - list_configs: Available presets
//   - env_instructions: Rules of every variant
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: mounted at /mcp by the serve command
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
