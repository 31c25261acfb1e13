package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hylla/reqtrack/internal/adapters/server/common"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
)

// stubTracker provides deterministic tracker responses for MCP tool tests.
type stubTracker struct {
	timeline     domain.WeeklyTimeline
	blockers     common.ActiveBlockersResponse
	entry        domain.ActivityEntry
	err          error
	lastTimeline common.WeeklyTimelineRequest
	lastBlockers common.ActiveBlockersRequest
	lastResolve  common.ResolveBlockerRequest
	lastRecord   common.RecordActivityRequest
	lastActor    domain.Actor
}

// WeeklyTimeline records the request and returns the configured timeline.
func (s *stubTracker) WeeklyTimeline(_ context.Context, req common.WeeklyTimelineRequest) (domain.WeeklyTimeline, error) {
	s.lastTimeline = req
	if s.err != nil {
		return domain.WeeklyTimeline{}, s.err
	}
	return s.timeline, nil
}

// ActiveBlockers records the request and returns the configured blockers.
func (s *stubTracker) ActiveBlockers(_ context.Context, req common.ActiveBlockersRequest) (common.ActiveBlockersResponse, error) {
	s.lastBlockers = req
	if s.err != nil {
		return common.ActiveBlockersResponse{}, s.err
	}
	return s.blockers, nil
}

// ResolveBlocker records the request and session actor.
func (s *stubTracker) ResolveBlocker(ctx context.Context, req common.ResolveBlockerRequest) (domain.ActivityEntry, error) {
	s.lastResolve = req
	s.lastActor, _ = app.ActorFromContext(ctx)
	if s.err != nil {
		return domain.ActivityEntry{}, s.err
	}
	return s.entry, nil
}

// RecordActivity records the request and session actor.
func (s *stubTracker) RecordActivity(ctx context.Context, req common.RecordActivityRequest) (domain.ActivityEntry, error) {
	s.lastRecord = req
	s.lastActor, _ = app.ActorFromContext(ctx)
	if s.err != nil {
		return domain.ActivityEntry{}, s.err
	}
	return s.entry, nil
}

// stubActors resolves actors from one fixed directory.
type stubActors map[string]domain.Actor

// ResolveActor returns the fixture actor or a not-found error.
func (s stubActors) ResolveActor(_ context.Context, id string) (domain.Actor, error) {
	actor, ok := s[id]
	if !ok {
		return domain.Actor{}, common.ErrNotFound
	}
	return actor, nil
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "reqtrack-test",
				"version": "1.0.0",
			},
		},
	}
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

// listToolNames returns the registered tool names from one tools/list call.
func listToolNames(t *testing.T, server *httptest.Server) []string {
	t.Helper()
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})
	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	names := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		names = append(names, name)
	}
	return names
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubTracker{}, nil)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersTools verifies write tools only appear with an actor resolver.
func TestHandlerRegistersTools(t *testing.T) {
	readOnly, err := NewHandler(Config{}, &stubTracker{}, nil)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(readOnly)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	names := listToolNames(t, server)
	for _, want := range []string{"reqtrack.weekly_timeline", "reqtrack.active_blockers"} {
		if !slices.Contains(names, want) {
			t.Fatalf("tool list missing %s: %#v", want, names)
		}
	}
	if slices.Contains(names, "reqtrack.resolve_blocker") {
		t.Fatalf("unexpected write tool without actor resolver: %#v", names)
	}

	full, err := NewHandler(Config{}, &stubTracker{}, stubActors{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	fullServer := httptest.NewServer(full)
	defer fullServer.Close()
	_, _ = postJSONRPC(t, fullServer.Client(), fullServer.URL, initializeRequest())
	names = listToolNames(t, fullServer)
	for _, want := range []string{"reqtrack.resolve_blocker", "reqtrack.record_activity"} {
		if !slices.Contains(names, want) {
			t.Fatalf("tool list missing %s: %#v", want, names)
		}
	}
}

// TestHandlerReadToolCalls verifies read tools map arguments and return structured content.
func TestHandlerReadToolCalls(t *testing.T) {
	tracker := &stubTracker{
		timeline: domain.WeeklyTimeline{Unbucketed: 2, Metrics: domain.WeeklyMetrics{TotalEntries: 7}},
		blockers: common.ActiveBlockersResponse{Count: 0, Blockers: []domain.ActiveBlocker{}},
	}
	handler, err := NewHandler(Config{}, tracker, nil)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, timelineResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "reqtrack.weekly_timeline", map[string]any{
		"week_offset": -2,
		"actor_id":    "u1",
	}))
	if tracker.lastTimeline.WeekOffset != -2 || tracker.lastTimeline.ActorID != "u1" {
		t.Fatalf("unexpected timeline request %#v", tracker.lastTimeline)
	}
	structured := toolResultStructured(t, timelineResp.Result)
	if got, _ := structured["unbucketed"].(float64); got != 2 {
		t.Fatalf("unbucketed = %v, want 2", structured["unbucketed"])
	}

	_, blockersResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "reqtrack.active_blockers", map[string]any{
		"team_id":     "core",
		"fiscal_year": 2024,
	}))
	if tracker.lastBlockers.TeamID != "core" || tracker.lastBlockers.FiscalYear != 2024 {
		t.Fatalf("unexpected blockers request %#v", tracker.lastBlockers)
	}
	if isError, _ := blockersResp.Result["isError"].(bool); isError {
		t.Fatalf("active_blockers isError = true: %s", toolResultText(t, blockersResp.Result))
	}
}

// TestHandlerWriteToolCalls verifies actor attribution and argument mapping for write tools.
func TestHandlerWriteToolCalls(t *testing.T) {
	boss := domain.Actor{ID: "boss", DisplayName: "Boss", Role: domain.RoleManager}
	tracker := &stubTracker{entry: domain.ActivityEntry{ID: "e9", Type: domain.ActivityBlockerResolved}}
	handler, err := NewHandler(Config{}, tracker, stubActors{"boss": boss})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, resolveResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "reqtrack.resolve_blocker", map[string]any{
		"request_id":       "r1",
		"actor_id":         "boss",
		"blocker_entry_id": "e1",
	}))
	if isError, _ := resolveResp.Result["isError"].(bool); isError {
		t.Fatalf("resolve_blocker isError = true: %s", toolResultText(t, resolveResp.Result))
	}
	if tracker.lastResolve.RequestID != "r1" || tracker.lastResolve.BlockerEntryID != "e1" {
		t.Fatalf("unexpected resolve request %#v", tracker.lastResolve)
	}
	if tracker.lastActor != boss {
		t.Fatalf("session actor = %#v, want %#v", tracker.lastActor, boss)
	}

	_, recordResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "reqtrack.record_activity", map[string]any{
		"request_id":  "r1",
		"actor_id":    "boss",
		"type":        "status_change",
		"description": "moved",
		"metadata":    map[string]any{"old_status": "open", "new_status": "done"},
	}))
	if isError, _ := recordResp.Result["isError"].(bool); isError {
		t.Fatalf("record_activity isError = true: %s", toolResultText(t, recordResp.Result))
	}
	if tracker.lastRecord.Type != "status_change" || tracker.lastRecord.Metadata["new_status"] != "done" {
		t.Fatalf("unexpected record request %#v", tracker.lastRecord)
	}

	_, unknownResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "reqtrack.resolve_blocker", map[string]any{
		"request_id": "r1",
		"actor_id":   "ghost",
	}))
	if got := toolResultText(t, unknownResp.Result); !strings.HasPrefix(got, "unauthenticated:") {
		t.Fatalf("error text = %q, want prefix unauthenticated:", got)
	}

	_, missingResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "reqtrack.resolve_blocker", map[string]any{
		"actor_id": "boss",
	}))
	if got := toolResultText(t, missingResp.Result); !strings.Contains(got, `required argument "request_id" not found`) {
		t.Fatalf("error text = %q, want required request_id message", got)
	}
}

// TestHandlerWriteToolCallErrorMapping verifies mapped service errors surface as tool errors.
func TestHandlerWriteToolCallErrorMapping(t *testing.T) {
	tracker := &stubTracker{err: errors.Join(common.ErrConflict, errors.New("no open blocker"))}
	handler, err := NewHandler(Config{}, tracker, stubActors{"boss": {ID: "boss", Role: domain.RoleAdmin}})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "reqtrack.resolve_blocker", map[string]any{
		"request_id": "r1",
		"actor_id":   "boss",
	}))
	if isError, _ := resp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", resp.Result["isError"])
	}
	if got := toolResultText(t, resp.Result); !strings.HasPrefix(got, "no_open_blocker:") {
		t.Fatalf("error text = %q, want prefix no_open_blocker:", got)
	}
}

// TestNewHandlerRequiresTracker verifies construction fails without a tracker service.
func TestNewHandlerRequiresTracker(t *testing.T) {
	if _, err := NewHandler(Config{}, nil, nil); err == nil {
		t.Fatal("NewHandler() error = nil, want non-nil")
	}
}

// TestNormalizeConfig verifies deterministic MCP config defaults.
func TestNormalizeConfig(t *testing.T) {
	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "defaults",
			in:   Config{},
			want: Config{ServerName: "reqtrack", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
		{
			name: "trimmed values and slash prefix",
			in:   Config{ServerName: " reqtrack-server ", ServerVersion: " v1.2.3 ", EndpointPath: "custom/path"},
			want: Config{ServerName: "reqtrack-server", ServerVersion: "v1.2.3", EndpointPath: "/custom/path"},
		},
		{
			name: "endpoint trim of repeated slashes",
			in:   Config{ServerName: "reqtrack", ServerVersion: "dev", EndpointPath: "///mcp///"},
			want: Config{ServerName: "reqtrack", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeConfig(tt.in); got != tt.want {
				t.Fatalf("normalizeConfig() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// TestHandlerServeHTTPUnavailable verifies nil handler paths fail closed with 503.
func TestHandlerServeHTTPUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
	}{
		{name: "nil receiver", handler: nil},
		{name: "missing inner http handler", handler: &Handler{}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
			}
		})
	}
}

// TestToolResultFromErrorMapping verifies deterministic error-to-tool-result mapping.
func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{name: "nil error", err: nil, wantPrefix: "unknown error"},
		{name: "unavailable", err: errors.Join(common.ErrUnavailable, errors.New("db down")), wantPrefix: "unavailable:"},
		{name: "unauthenticated", err: common.ErrUnauthenticated, wantPrefix: "unauthenticated:"},
		{name: "forbidden", err: common.ErrForbidden, wantPrefix: "forbidden:"},
		{name: "conflict", err: common.ErrConflict, wantPrefix: "no_open_blocker:"},
		{name: "invalid", err: common.ErrInvalidRequest, wantPrefix: "invalid_request:"},
		{name: "not found", err: common.ErrNotFound, wantPrefix: "not_found:"},
		{name: "internal", err: errors.New("boom"), wantPrefix: "internal_error:"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			if got := callToolResultText(t, result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}
