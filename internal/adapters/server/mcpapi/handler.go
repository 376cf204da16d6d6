// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evanschultz/kanmetrics/internal/adapters/server/common"
	"github.com/evanschultz/kanmetrics/internal/app"
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

// NewHandler builds one stateless MCP adapter exposing the read-only report tools.
func NewHandler(cfg Config, reports common.ReportService, defaults app.ReportOptions) (*Handler, error) {
	if reports == nil {
		return nil, fmt.Errorf("report service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerReportTool(mcpSrv, reports, defaults)
	registerProgressBarsTool(mcpSrv, reports)
	registerTimelineTool(mcpSrv, reports)

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
		cfg.ServerName = "kanmetrics"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerReportTool registers the `kanmetrics.report` tool.
func registerReportTool(srv *mcpserver.MCPServer, reports common.ReportService, defaults app.ReportOptions) {
	srv.AddTool(
		mcp.NewTool(
			"kanmetrics.report",
			mcp.WithDescription("Compute the KPI report and completion forecast of the stored project."),
			mcp.WithString("today", mcp.Description("Reference date YYYY-MM-DD (defaults to the server date)")),
			mcp.WithString("eta", mcp.Description("Expected delivery date YYYY-MM-DD")),
			mcp.WithString("from", mcp.Description("First timeline date YYYY-MM-DD (defaults to the project start)")),
			mcp.WithNumber("incoming", mcp.Description("Stories expected to join the backlog")),
			mcp.WithNumber("window", mcp.Description("Lead-time averaging window in business days")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query := common.ReportQuery{
				Today:       req.GetString("today", ""),
				ETAExpected: req.GetString("eta", ""),
				From:        req.GetString("from", ""),
			}
			args := req.GetArguments()
			if _, ok := args["incoming"]; ok {
				v := req.GetInt("incoming", 0)
				query.IncomingStories = &v
			}
			if _, ok := args["window"]; ok {
				v := req.GetInt("window", 0)
				query.LeadTimeWindow = &v
			}
			opts, err := query.Options(defaults)
			if err != nil {
				return toolResultFromError(err), nil
			}
			report, err := reports.BuildReport(ctx, opts)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(report)
			if err != nil {
				return nil, fmt.Errorf("encode report result: %w", err)
			}
			return result, nil
		},
	)
}

// registerProgressBarsTool registers the `kanmetrics.progress_bars` tool.
func registerProgressBarsTool(srv *mcpserver.MCPServer, reports common.ReportService) {
	srv.AddTool(
		mcp.NewTool(
			"kanmetrics.progress_bars",
			mcp.WithDescription("Return one status progress bar per work item in display order."),
			mcp.WithString("from", mcp.Description("First timeline date YYYY-MM-DD")),
			mcp.WithString("to", mcp.Description("Last timeline date YYYY-MM-DD")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			from, err := common.ParseDate("from", req.GetString("from", ""), time.Time{})
			if err != nil {
				return toolResultFromError(err), nil
			}
			to, err := common.ParseDate("to", req.GetString("to", ""), time.Time{})
			if err != nil {
				return toolResultFromError(err), nil
			}
			bars, err := reports.ProgressBars(ctx, from, to)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"bars": bars,
			})
			if err != nil {
				return nil, fmt.Errorf("encode progress_bars result: %w", err)
			}
			return result, nil
		},
	)
}

// registerTimelineTool registers the `kanmetrics.timeline` tool.
func registerTimelineTool(srv *mcpserver.MCPServer, reports common.ReportService) {
	srv.AddTool(
		mcp.NewTool(
			"kanmetrics.timeline",
			mcp.WithDescription("List the working days between two dates."),
			mcp.WithString("from", mcp.Required(), mcp.Description("First date YYYY-MM-DD")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Last date YYYY-MM-DD")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rawFrom, err := req.RequireString("from")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rawTo, err := req.RequireString("to")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			from, err := common.ParseDate("from", rawFrom, time.Time{})
			if err != nil {
				return toolResultFromError(err), nil
			}
			to, err := common.ParseDate("to", rawTo, time.Time{})
			if err != nil {
				return toolResultFromError(err), nil
			}
			timeline, err := reports.Timeline(from, to)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"timeline": timeline,
			})
			if err != nil {
				return nil, fmt.Errorf("encode timeline result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	return mcp.NewToolResultError(common.ErrorCode(err) + ": " + err.Error())
}
