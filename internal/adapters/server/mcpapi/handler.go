// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/reqtrack/internal/adapters/server/common"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter with the tracker tools.
//
// Mutating tools are only registered when an actor resolver is available,
// since each call names its acting user through `actor_id`.
func NewHandler(cfg Config, tracker common.TrackerService, actors common.ActorResolver) (*Handler, error) {
	if tracker == nil {
		return nil, fmt.Errorf("tracker service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerReadTools(mcpSrv, tracker)
	if actors != nil {
		registerWriteTools(mcpSrv, tracker, actors)
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "reqtrack"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerReadTools registers the `reqtrack.weekly_timeline` and `reqtrack.active_blockers` tools.
func registerReadTools(srv *mcpserver.MCPServer, tracker common.TrackerService) {
	srv.AddTool(
		mcp.NewTool(
			"reqtrack.weekly_timeline",
			mcp.WithDescription("Return the Monday-to-Friday activity timeline and metrics for one week."),
			mcp.WithNumber("week_offset", mcp.Description("Weeks relative to the current week (0 = this week, -1 = last week)")),
			mcp.WithString("actor_id", mcp.Description("Only include entries written by this user")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			timeline, err := tracker.WeeklyTimeline(ctx, common.WeeklyTimelineRequest{
				WeekOffset: req.GetInt("week_offset", 0),
				ActorID:    req.GetString("actor_id", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(timeline)
			if err != nil {
				return nil, fmt.Errorf("encode weekly_timeline result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"reqtrack.active_blockers",
			mcp.WithDescription("List requests whose latest blocker event is an open report, longest first."),
			mcp.WithString("team_id", mcp.Description("Restrict to requests owned by this team")),
			mcp.WithNumber("fiscal_year", mcp.Description("Restrict to requests in this fiscal year")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			blockers, err := tracker.ActiveBlockers(ctx, common.ActiveBlockersRequest{
				TeamID:     req.GetString("team_id", ""),
				FiscalYear: req.GetInt("fiscal_year", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(blockers)
			if err != nil {
				return nil, fmt.Errorf("encode active_blockers result: %w", err)
			}
			return result, nil
		},
	)
}

// registerWriteTools registers the actor-attributed resolve and record tools.
func registerWriteTools(srv *mcpserver.MCPServer, tracker common.TrackerService, actors common.ActorResolver) {
	srv.AddTool(
		mcp.NewTool(
			"reqtrack.resolve_blocker",
			mcp.WithDescription("Resolve the open blocker on one request."),
			mcp.WithString("request_id", mcp.Required(), mcp.Description("Request identifier")),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("User resolving the blocker")),
			mcp.WithString("blocker_entry_id", mcp.Description("Opening blocker entry id (defaults to the request's current blocker)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			requestID, err := req.RequireString("request_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			ctx, errResult := withToolActor(ctx, req, actors)
			if errResult != nil {
				return errResult, nil
			}
			entry, err := tracker.ResolveBlocker(ctx, common.ResolveBlockerRequest{
				RequestID:      requestID,
				BlockerEntryID: req.GetString("blocker_entry_id", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(entry)
			if err != nil {
				return nil, fmt.Errorf("encode resolve_blocker result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"reqtrack.record_activity",
			mcp.WithDescription("Append one activity entry to a request's log."),
			mcp.WithString("request_id", mcp.Required(), mcp.Description("Request identifier")),
			mcp.WithString("actor_id", mcp.Required(), mcp.Description("User recording the activity")),
			mcp.WithString("type", mcp.Required(), mcp.Description("Activity type"), mcp.Enum(recordableTypes()...)),
			mcp.WithString("description", mcp.Description("Human-readable description")),
			mcp.WithObject("metadata", mcp.Description("Optional type-specific metadata object")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				RequestID   string         `json:"request_id"`
				ActorID     string         `json:"actor_id"`
				Type        string         `json:"type"`
				Description string         `json:"description"`
				Metadata    map[string]any `json:"metadata"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.RequestID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "request_id" not found`), nil
			}
			if strings.TrimSpace(args.Type) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "type" not found`), nil
			}
			ctx, errResult := withToolActor(ctx, req, actors)
			if errResult != nil {
				return errResult, nil
			}
			entry, err := tracker.RecordActivity(ctx, common.RecordActivityRequest{
				RequestID:   args.RequestID,
				Type:        args.Type,
				Description: args.Description,
				Metadata:    args.Metadata,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(entry)
			if err != nil {
				return nil, fmt.Errorf("encode record_activity result: %w", err)
			}
			return result, nil
		},
	)
}

// withToolActor resolves the `actor_id` argument and attaches it as the session actor.
func withToolActor(ctx context.Context, req mcp.CallToolRequest, actors common.ActorResolver) (context.Context, *mcp.CallToolResult) {
	actorID := strings.TrimSpace(req.GetString("actor_id", ""))
	if actorID == "" {
		return ctx, mcp.NewToolResultError(`unauthenticated: required argument "actor_id" not found`)
	}
	actor, err := actors.ResolveActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return ctx, mcp.NewToolResultError("unauthenticated: unknown actor " + actorID)
		}
		return ctx, toolResultFromError(err)
	}
	return app.WithActor(ctx, actor), nil
}

// recordableTypes lists activity types accepted by `reqtrack.record_activity`.
func recordableTypes() []string {
	out := make([]string, 0, len(domain.ActivityTypes()))
	for _, t := range domain.ActivityTypes() {
		if t == domain.ActivityBlockerResolved {
			continue
		}
		out = append(out, string(t))
	}
	return out
}

// invalidRequestToolResult maps argument decode failures into one invalid_request result.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrUnavailable):
		return mcp.NewToolResultError("unavailable: " + err.Error())
	case errors.Is(err, common.ErrUnauthenticated):
		return mcp.NewToolResultError("unauthenticated: " + err.Error())
	case errors.Is(err, common.ErrForbidden):
		return mcp.NewToolResultError("forbidden: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("no_open_blocker: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
