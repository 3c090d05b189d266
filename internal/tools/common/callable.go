package common

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/logging"
	"github.com/teemow/calsync/internal/server"
)

// DataBuilder turns tool arguments into the data object of a callable.
// Returning an error rejects the call before the callable runs.
type DataBuilder func(args map[string]any) (map[string]any, error)

// CallableToolHandler returns a tool handler that forwards the call to the
// named callable on behalf of the resolved caller. Metrics, tracing and
// audit logging happen in ServerContext.Invoke.
//
// Usage:
//
//	s.AddTool(tool, common.CallableToolHandler(sc, "calendar_status", calsync.CallableStatus, nil, logger))
func CallableToolHandler(sc *server.ServerContext, toolName, callable string, build DataBuilder, logger *slog.Logger) mcpserver.ToolHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithTool(logger, toolName)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var data json.RawMessage
		if build != nil {
			fields, err := build(request.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			data, err = json.Marshal(fields)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to encode arguments: %v", err)), nil
			}
		}

		result, err := sc.Invoke(ctx, instrumentation.SurfaceMCP, callable, ResolveCaller(ctx, sc), data)
		if err != nil {
			code := calsync.CodeOf(err)
			if code == calsync.CodeInternal {
				logger.Error("Tool call failed", logging.Err(err))
			}
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code.Status(), calsync.PublicMessage(err))), nil
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// StringArg returns the string argument key, or "" when absent or not a string.
func StringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// CopyStringArgs copies the present string arguments named by keys into dst.
func CopyStringArgs(dst, args map[string]any, keys ...string) {
	for _, key := range keys {
		if v, ok := args[key].(string); ok {
			dst[key] = v
		}
	}
}
