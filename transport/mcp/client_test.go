package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/mcp-training/storageyard/api"
	"github.com/wricardo/mcp-training/storageyard/game/config"
	"github.com/wricardo/mcp-training/storageyard/game/service"
	"github.com/wricardo/mcp-training/storageyard/game/session"
)

const testPreset = `{
  "name": "yard",
  "variant": "transfer",
  "rows": 3,
  "cols": 3,
  "max_steps": 3,
  "curriculum": {"initial_stocks": 1, "max_stocks": 2, "upgrade_interval": 10}
}`

// newAPIServer runs the real REST API over a temporary preset directory
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "yard.json"), []byte(testPreset), 0644); err != nil {
		t.Fatalf("Failed to write preset: %v", err)
	}

	configs, err := config.NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create config manager: %v", err)
	}

	svc := service.NewGameService(session.NewManager(), configs)
	ts := httptest.NewServer(api.NewServer(svc, nil, nil))
	t.Cleanup(ts.Close)
	return ts
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
	t.Helper()

	var req mcp.CallToolRequest
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("Expected content in tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", result.Content[0])
	}
	return text.Text, result.IsError
}

// createTestSession creates a session through the tool and returns its ID
func createTestSession(t *testing.T, client *Client) string {
	t.Helper()

	text, isErr := callTool(t, client.handleCreateSession, map[string]interface{}{
		"config_id": "yard",
		"seed":      float64(5),
	})
	if isErr {
		t.Fatalf("create_session failed: %s", text)
	}

	line := strings.SplitN(text, "\n", 2)[0]
	id := strings.TrimPrefix(line, "Created session: ")
	if len(id) != 4 {
		t.Fatalf("Expected a 4 character session ID, got %q", id)
	}
	return id
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]int{"echo": body["value"]})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]int
	if err := client.apiCall(context.Background(), "POST", "/echo", map[string]int{"value": 7}, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["echo"] != 7 {
		t.Errorf("Expected echo 7, got %d", response["echo"])
	}
}

func TestClient_apiCall_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/json" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/json", nil, nil)
	if err == nil || err.Error() != "session not found" {
		t.Errorf("Expected API error message, got %v", err)
	}

	err = client.apiCall(context.Background(), "GET", "/plain", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status code error, got %v", err)
	}

	unreachable := NewClient("http://127.0.0.1:1")
	if err := unreachable.apiCall(context.Background(), "GET", "/", nil, nil); err == nil {
		t.Error("Expected error for unreachable server")
	}
}

func TestToolsAgainstAPI(t *testing.T) {
	ts := newAPIServer(t)
	client := NewClient(ts.URL)
	sessionID := createTestSession(t, client)

	t.Run("list_sessions", func(t *testing.T) {
		text, isErr := callTool(t, client.handleListSessions, nil)
		if isErr || !strings.Contains(text, sessionID) {
			t.Errorf("Expected session %s listed, got %s", sessionID, text)
		}
	})

	t.Run("get_session", func(t *testing.T) {
		text, isErr := callTool(t, client.handleGetSession, map[string]interface{}{"session_id": sessionID})
		if isErr || !strings.Contains(text, "Config: yard") {
			t.Errorf("Unexpected get_session output: %s", text)
		}
	})

	t.Run("observe", func(t *testing.T) {
		text, isErr := callTool(t, client.handleObserve, map[string]interface{}{"session_id": sessionID})
		if isErr || !strings.Contains(text, "Stocks: 1") {
			t.Errorf("Unexpected observe output: %s", text)
		}
	})

	t.Run("step with transfer cells", func(t *testing.T) {
		text, isErr := callTool(t, client.handleStep, map[string]interface{}{
			"session_id": sessionID,
			"src":        map[string]interface{}{"row": float64(0), "col": float64(0)},
			"dst":        map[string]interface{}{"row": float64(0), "col": float64(0)},
			"intent":     "probe a self transfer",
		})
		if isErr || !strings.HasPrefix(text, "Outcome: ") {
			t.Errorf("Unexpected step output: %s", text)
		}
	})

	t.Run("step rejects wrong variant", func(t *testing.T) {
		text, isErr := callTool(t, client.handleStep, map[string]interface{}{
			"session_id": sessionID,
			"direction":  "up",
		})
		if !isErr {
			t.Errorf("Expected error result, got %s", text)
		}
	})

	t.Run("bulk_step", func(t *testing.T) {
		text, isErr := callTool(t, client.handleBulkStep, map[string]interface{}{
			"session_id": sessionID,
			"actions":    []interface{}{float64(0), float64(0), float64(0), float64(0)},
			"reset":      true,
			"auto_reset": true,
		})
		if isErr || !strings.Contains(text, "executed 4/4 actions") {
			t.Errorf("Unexpected bulk_step output: %s", text)
		}
	})

	t.Run("bulk_step requires actions", func(t *testing.T) {
		_, isErr := callTool(t, client.handleBulkStep, map[string]interface{}{"session_id": sessionID})
		if !isErr {
			t.Error("Expected error for missing actions")
		}
	})

	t.Run("reset_env", func(t *testing.T) {
		text, isErr := callTool(t, client.handleReset, map[string]interface{}{
			"session_id": sessionID,
			"seed":       float64(9),
		})
		if isErr || !strings.Contains(text, "seed 9") {
			t.Errorf("Unexpected reset_env output: %s", text)
		}
	})

	t.Run("episode_history", func(t *testing.T) {
		text, isErr := callTool(t, client.handleEpisodeHistory, map[string]interface{}{
			"session_id": sessionID,
			"limit":      float64(5),
			"order":      "asc",
		})
		if isErr || !strings.Contains(text, "Episode History") {
			t.Errorf("Unexpected episode_history output: %s", text)
		}
	})

	t.Run("episode_stats", func(t *testing.T) {
		text, isErr := callTool(t, client.handleEpisodeStats, map[string]interface{}{"session_id": sessionID})
		if isErr || !strings.Contains(text, "Episodes: ") {
			t.Errorf("Unexpected episode_stats output: %s", text)
		}
	})

	t.Run("list_configs", func(t *testing.T) {
		text, isErr := callTool(t, client.handleListConfigs, nil)
		if isErr || !strings.Contains(text, "yard (transfer)") {
			t.Errorf("Unexpected list_configs output: %s", text)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		text, isErr := callTool(t, client.handleObserve, map[string]interface{}{"session_id": "zzzz"})
		if !isErr {
			t.Errorf("Expected error result, got %s", text)
		}
	})
}

func TestInstructions(t *testing.T) {
	client := NewClient("http://localhost:0")

	text, isErr := callTool(t, client.handleInstructions, nil)
	if isErr {
		t.Fatal("Expected instructions, got error")
	}
	for _, variant := range []string{"transfer", "commander", "transporter"} {
		if !strings.Contains(text, variant) {
			t.Errorf("Expected instructions to cover %s", variant)
		}
	}
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"f":   float64(3),
		"i":   4,
		"s":   "x",
		"pos": map[string]interface{}{"row": float64(1), "col": float64(2)},
		"bad": map[string]interface{}{"row": float64(1)},
	}

	if v, ok := intArg(args, "f"); !ok || v != 3 {
		t.Errorf("Expected 3 from float64, got %d %v", v, ok)
	}
	if v, ok := intArg(args, "i"); !ok || v != 4 {
		t.Errorf("Expected 4 from int, got %d %v", v, ok)
	}
	if _, ok := intArg(args, "s"); ok {
		t.Error("Expected strings to be rejected")
	}

	pos := positionArg(args, "pos")
	if pos == nil || pos.Row != 1 || pos.Col != 2 {
		t.Errorf("Expected (1,2), got %v", pos)
	}
	if positionArg(args, "bad") != nil {
		t.Error("Expected nil for a position without col")
	}
	if positionArg(args, "missing") != nil {
		t.Error("Expected nil for a missing position")
	}
}
