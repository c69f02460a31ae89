package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
	"github.com/wricardo/mcp-training/storageyard/game/service"
)

// Version reported to MCP clients
const Version = "1.0.0"

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Storage Yard Environments",
		Version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Storage Yard Environments - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
Move stocks out of the yard in priority order. The stock ranked 1 must reach
the exit column (the rightmost column) to complete; everything ranked behind
it then moves up one rank.

AVAILABLE TOOLS:
- create_session: Start an environment from a preset
- list_sessions / get_session: Inspect sessions
- observe: Current grid, target and carried stock
- step: Apply one action (flat index, direction, cell, or src/dst transfer)
- bulk_step: Apply a list of flat action indices
- reset_env: Start a new episode, optionally seeded
- episode_history / episode_stats: Finished episodes
- list_configs: Available presets
- env_instructions: Full rules for each variant

NOTE: The 'intent' parameter on step/bulk_step serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func positionProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"row": map[string]interface{}{"type": "integer"},
			"col": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"row", "col"},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new environment session from a preset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Preset ID from list_configs (optional, uses the default preset)",
				},
				"seed": map[string]interface{}{
					"type":        "integer",
					"description": "Random seed for a reproducible first episode (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	// Environment operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "observe",
		Description: "Get the current observation with a rendered grid",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleObserve)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Apply one action. Give exactly one of: action, direction, cell, or src and dst",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"action": map[string]interface{}{
					"type":        "integer",
					"description": "Flat discrete action index, valid for every variant",
				},
				"direction": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"up", "down", "left", "right", "toggle"},
					"description": "Transporter: move the cart or toggle load/unload",
				},
				"cell": positionProperty("Commander: cell to select"),
				"src":  positionProperty("Transfer: source cell"),
				"dst":  positionProperty("Transfer: destination cell"),
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this action (serves as a rubber duck to help explain your reasoning)",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before stepping",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "bulk_step",
		Description: "Apply up to 500 flat action indices in sequence",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"actions": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "integer"},
					"description": "Array of flat action indices",
				},
				"intent": map[string]interface{}{
					"type":        "string",
					"description": "Brief explanation of the intent behind this sequence (serves as a rubber duck to help explain your reasoning)",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before stepping",
				},
				"auto_reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Start a new episode and continue when one ends",
				},
			},
			Required: []string{"session_id", "actions"},
		},
	}, c.handleBulkStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_env",
		Description: "Start a new episode",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"seed": map[string]interface{}{
					"type":        "integer",
					"description": "Random seed (optional)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "episode_history",
		Description: "Get finished episodes for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Items per page",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Oldest or newest first",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEpisodeHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "episode_stats",
		Description: "Get aggregate statistics over a session's finished episodes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionIDProperty(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleEpisodeStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available environment presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "env_instructions",
		Description: "Get the rules of every variant",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Argument helpers. JSON numbers arrive as float64.

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func positionArg(args map[string]interface{}, key string) *engine.Position {
	raw, ok := args[key].(map[string]interface{})
	if !ok {
		return nil
	}
	row, okRow := intArg(raw, "row")
	col, okCol := intArg(raw, "col")
	if !okRow || !okCol {
		return nil
	}
	return &engine.Position{Row: row, Col: col}
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	configID, _ := args["config_id"].(string)

	body := map[string]interface{}{}
	if configID != "" {
		body["config_id"] = configID
	}
	if seed, ok := intArg(args, "seed"); ok {
		body["seed"] = seed
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nConfig: %s\n\n%s",
		session.ID, session.ConfigName, formatObservation(session.Observation))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&b, "- %s (Config: %s, Level: %d, Episodes: %d, Created: %s)\n",
			s.ID, s.ConfigName, s.Curriculum.Level, s.Curriculum.Episodes, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleObserve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Observation engine.Observation `json:"observation"`
	}
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/observation"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatObservation(&response.Observation)), nil
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_, _ = args["intent"].(string)

	body := service.StepRequest{
		Cell: positionArg(args, "cell"),
		Src:  positionArg(args, "src"),
		Dst:  positionArg(args, "dst"),
	}
	if action, ok := intArg(args, "action"); ok {
		body.Action = &action
	}
	body.Direction, _ = args["direction"].(string)
	body.Reset, _ = args["reset"].(bool)

	var result service.StepResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/step"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStepResult(&result)), nil
}

func (c *Client) handleBulkStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	actionsRaw, _ := args["actions"].([]interface{})

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_, _ = args["intent"].(string)

	actions := make([]int, 0, len(actionsRaw))
	for _, a := range actionsRaw {
		if v, ok := a.(float64); ok {
			actions = append(actions, int(v))
		}
	}
	if len(actions) == 0 {
		return mcp.NewToolResultError("actions must be a non-empty array of integers"), nil
	}

	reset, _ := args["reset"].(bool)
	autoReset, _ := args["auto_reset"].(bool)
	body := map[string]interface{}{
		"actions":    actions,
		"reset":      reset,
		"auto_reset": autoReset,
	}

	var result service.BulkStepResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/bulk-step"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBulkStepResult(sessionID, &result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	body := map[string]interface{}{}
	if seed, ok := intArg(args, "seed"); ok {
		body["seed"] = seed
	}

	var result service.ResetResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Episode %d started (level %d, seed %d)\n\n%s",
		result.Info.Episode, result.Info.Level, result.Info.Seed, formatObservation(&result.Observation))
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleEpisodeHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}
	if order, ok := args["order"].(string); ok && order != "" {
		params.Set("order", order)
	}

	path := sessionPath(sessionID, "/history")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleEpisodeStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var stats service.EpisodeStats
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/stats"), nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Episodes: %d (cleared %d, %.1f%%)\nMean reward: %.3f\nMean steps: %.1f\nBest reward: %.3f\nMax level: %d\nCompletions: %d\n",
		stats.Episodes, stats.Cleared, stats.ClearRate*100, stats.MeanReward, stats.MeanSteps,
		stats.BestReward, stats.MaxLevel, stats.Completions)
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Configurations:\n\n")
	for _, cfg := range configs {
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n  Grid: %dx%d, Actions: %d, Placeable: %d, Max stocks: %d\n\n",
			cfg.ConfigID, cfg.Variant, cfg.Description, cfg.Rows, cfg.Cols,
			cfg.ActionCount, cfg.PlaceableCells, cfg.MaxStocks)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Storage Yard Environments - Rules

THE YARD:
• A grid of cells. The rightmost column is the exit column; stocks are never placed there.
• Each stock has a priority rank. Rank 1 is the target.
• Observation grid values: 0 empty, -1 source marker, -2 stuck (outside the active area),
  positive values are 1 - (rank-1) * priority_interval, so the target reads highest.
• The ladder lists cells in rank order.

COMPLETION:
• When the target is placed in the exit column it leaves the yard and every other
  stock moves up one rank. If the new target already sits in the exit column it
  leaves in the same step.
• Each completion pays completion_reward. Clearing the yard ends the episode (terminated).
• Reaching max_steps ends the episode (truncated).

VARIANTS:
• transfer: one action moves a stock from src to dst. dst must be empty and reachable
  from src through empty cells. Action index = src * cells + dst.
• commander: select a stock (source marker appears), then select an empty reachable
  destination. Selecting an empty cell first, or an unreachable destination, is rejected.
• transporter: a cart moves right/left/up/down (actions 0-3) and toggles load/unload
  (action 4). It cannot drive into a stock while loaded.

REWARDS:
• Rejected or no-op actions cost loop_penalty (default -0.1, 0 for transporter).
• Completions earn completion_reward each (default 1).

DIFFICULTY:
• Each session starts at curriculum.initial_stocks stocks and adds one after every
  upgrade_interval cleared episodes, up to max_stocks.

TIPS:
• Use observe before acting; the rendered grid shows ranks, the cart and the exit.
• Use bulk_step with auto_reset to gather many episodes quickly.`

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nConfig: %s\nCreated: %s\nLevel: %d, Episodes: %d, Clears: %d\n\n%s",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		session.Curriculum.Level, session.Curriculum.Episodes, session.Curriculum.TotalClears,
		formatObservation(session.Observation))
}

func formatObservation(obs *engine.Observation) string {
	if obs == nil {
		return "No observation available"
	}

	var b strings.Builder
	b.WriteString(engine.FormatGrid(*obs))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Stocks: %d, Steps: %d, Target: (%d,%d)\n", obs.Stocks, obs.Steps, obs.Target.Row, obs.Target.Col)
	if obs.Agent.Valid() {
		fmt.Fprintf(&b, "Cart: (%d,%d)\n", obs.Agent.Row, obs.Agent.Col)
	}
	if obs.Loaded {
		fmt.Fprintf(&b, "Carrying stock from (%d,%d)\n", obs.LoadedFrom.Row, obs.LoadedFrom.Col)
	}
	if obs.Done {
		b.WriteString("Episode is over, reset to continue\n")
	}
	return b.String()
}

func formatStepResult(result *service.StepResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Outcome: %s", result.Info.Outcome)
	if result.Info.Reason != "" {
		fmt.Fprintf(&b, " (%s)", result.Info.Reason)
	}
	fmt.Fprintf(&b, ", reward %.3f\n", result.Reward)

	for _, done := range result.Info.Completions {
		fmt.Fprintf(&b, "Completed rank %d at (%d,%d)\n", done.Rank, done.Position.Row, done.Position.Col)
	}
	if result.Info.Upgraded {
		fmt.Fprintf(&b, "Difficulty raised to %d stocks\n", result.Info.Level+1)
	}
	if result.EpisodeEnd != nil {
		fmt.Fprintf(&b, "Episode %d ended after %d steps, total reward %.3f\n",
			result.EpisodeEnd.Episode, result.EpisodeEnd.Steps, result.EpisodeEnd.Reward)
	}

	b.WriteString("\n")
	b.WriteString(formatObservation(&result.Observation))
	return b.String()
}

func formatBulkStepResult(sessionID string, result *service.BulkStepResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session %s: executed %d/%d actions, total reward %.3f\n",
		sessionID, result.StepsExecuted, result.RequestedSteps, result.TotalReward)
	if result.Limited {
		fmt.Fprintf(&b, "Request truncated to %d actions\n", result.Limit)
	}
	if result.StoppedReason != "" {
		fmt.Fprintf(&b, "Stopped on action %d: %s [%s]\n", result.StoppedOnStep, result.StoppedReason, result.StopReasonCode)
	}

	for _, step := range result.Steps {
		if step.Outcome == engine.OutcomeRejected || step.Completions > 0 || step.Terminated || step.Truncated {
			fmt.Fprintf(&b, "  %d. action %d -> %s", step.Idx, step.Action, step.Outcome)
			if step.Reason != "" {
				fmt.Fprintf(&b, " (%s)", step.Reason)
			}
			if step.Completions > 0 {
				fmt.Fprintf(&b, " +%d completed", step.Completions)
			}
			b.WriteString("\n")
		}
	}

	for _, ep := range result.Episodes {
		status := "truncated"
		if ep.Terminated {
			status = "cleared"
		}
		fmt.Fprintf(&b, "Episode %d %s: %d steps, reward %.3f\n", ep.Episode, status, ep.Steps, ep.Reward)
	}

	b.WriteString("\n")
	b.WriteString(formatObservation(&result.Observation))
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Episode History (Page %d/%d), Total: %d\n\n",
		history.Page, history.TotalPages, history.TotalEpisodes)

	for _, ep := range history.Episodes {
		status := "✗"
		if ep.Terminated {
			status = "✓"
		}
		fmt.Fprintf(&b, "%d. %s steps %d, reward %.3f, completions %d, level %d\n",
			ep.Episode, status, ep.Steps, ep.Reward, ep.Completions, ep.Level)
	}

	return b.String()
}
