package calendar_tools

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/server"
	"github.com/teemow/calsync/internal/tools/common"
)

// calendarTool binds an MCP tool to the callable it forwards to.
type calendarTool struct {
	tool     mcp.Tool
	callable string
	build    common.DataBuilder
	write    bool
}

// RegisterCalendarTools registers all calendar tools with the MCP server.
// When readOnly is set, tools that change the calendar or the stored
// credential are skipped.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool, logger *slog.Logger) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}
	for _, ct := range availableTools(readOnly) {
		s.AddTool(ct.tool, common.CallableToolHandler(sc, ct.tool.Name, ct.callable, ct.build, logger))
	}
	return nil
}

func availableTools(readOnly bool) []calendarTool {
	all := calendarTools()
	if !readOnly {
		return all
	}
	var tools []calendarTool
	for _, ct := range all {
		if !ct.write {
			tools = append(tools, ct)
		}
	}
	return tools
}

func calendarTools() []calendarTool {
	return []calendarTool{
		{
			tool: mcp.NewTool("calendar_init_auth",
				mcp.WithDescription("Start connecting Google Calendar. Returns the consent URL the user has to visit."),
			),
			callable: calsync.CallableInitAuth,
		},
		{
			tool: mcp.NewTool("calendar_complete_auth",
				mcp.WithDescription("Finish connecting Google Calendar with the authorization code from the consent page"),
				mcp.WithString("code",
					mcp.Required(),
					mcp.Description("Authorization code shown after granting access"),
				),
			),
			callable: calsync.CallableCompleteAuth,
			build:    buildCompleteAuth,
			write:    true,
		},
		{
			tool: mcp.NewTool("calendar_status",
				mcp.WithDescription("Report whether Google Calendar is connected"),
			),
			callable: calsync.CallableStatus,
		},
		{
			tool: mcp.NewTool("calendar_disconnect",
				mcp.WithDescription("Disconnect Google Calendar and forget the stored credential"),
			),
			callable: calsync.CallableDisconnect,
			write:    true,
		},
		{
			tool: mcp.NewTool("calendar_create_event",
				mcp.WithDescription("Create a calendar event for a household task, project or plant care task"),
				mcp.WithString("kind",
					mcp.Description("Record kind: 'careTask', 'project' or 'simpleTask' (default)"),
				),
				mcp.WithString("title",
					mcp.Required(),
					mcp.Description("Task or project title"),
				),
				mcp.WithString("description",
					mcp.Description("Event description. Defaults to a description derived from the kind."),
				),
				mcp.WithString("dueDate",
					mcp.Required(),
					mcp.Description("Due date and time (RFC3339 format, e.g., '2025-01-15T09:00:00Z')"),
				),
				mcp.WithString("plantName",
					mcp.Description("Plant name, used in the default description of care tasks"),
				),
			),
			callable: calsync.CallableCreateEvent,
			build:    buildCreateEvent,
			write:    true,
		},
		{
			tool: mcp.NewTool("calendar_update_event",
				mcp.WithDescription("Update a calendar event. Only the given fields change."),
				mcp.WithString("eventId",
					mcp.Required(),
					mcp.Description("The ID of the event to update"),
				),
				mcp.WithString("kind",
					mcp.Description("Record kind used for the title prefix and duration: 'careTask', 'project' or 'simpleTask'. Required with title or dueDate."),
				),
				mcp.WithString("title",
					mcp.Description("New title"),
				),
				mcp.WithString("description",
					mcp.Description("New description"),
				),
				mcp.WithString("dueDate",
					mcp.Description("New due date and time (RFC3339 format)"),
				),
			),
			callable: calsync.CallableUpdateEvent,
			build:    buildUpdateEvent,
			write:    true,
		},
		{
			tool: mcp.NewTool("calendar_delete_event",
				mcp.WithDescription("Delete a calendar event"),
				mcp.WithString("eventId",
					mcp.Required(),
					mcp.Description("The ID of the event to delete"),
				),
			),
			callable: calsync.CallableDeleteEvent,
			build:    buildDeleteEvent,
			write:    true,
		},
	}
}

func buildCompleteAuth(args map[string]any) (map[string]any, error) {
	code := common.StringArg(args, "code")
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	return map[string]any{"code": code}, nil
}

func buildCreateEvent(args map[string]any) (map[string]any, error) {
	data := map[string]any{}
	common.CopyStringArgs(data, args, "kind", "title", "description", "dueDate", "plantName")
	return data, nil
}

func buildUpdateEvent(args map[string]any) (map[string]any, error) {
	event := map[string]any{}
	common.CopyStringArgs(event, args, "kind", "title", "description", "dueDate")
	return map[string]any{
		"eventId": common.StringArg(args, "eventId"),
		"event":   event,
	}, nil
}

func buildDeleteEvent(args map[string]any) (map[string]any, error) {
	return map[string]any{"eventId": common.StringArg(args, "eventId")}, nil
}
