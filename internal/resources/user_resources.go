package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/server"
	"github.com/teemow/calsync/internal/tools/common"
)

const (
	calendarURI = "user://calendar"
	unsyncedURI = "user://calendar/unsynced"
)

// CalendarStatus is the content of the user://calendar resource.
// It never carries the tokens themselves.
type CalendarStatus struct {
	UserID      string     `json:"userId"`
	Connected   bool       `json:"connected"`
	TokenExpiry *time.Time `json:"tokenExpiry,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// UnsyncedRecord is one entry of the user://calendar/unsynced resource.
type UnsyncedRecord struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	DueDate    time.Time `json:"dueDate"`
}

// RegisterUserResources registers the calendar resources of the current user.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc.Store() == nil {
		return fmt.Errorf("user resources require a store")
	}

	calendarResource := mcp.NewResource(
		calendarURI,
		"Calendar Connection",
		mcp.WithResourceDescription("Whether the current user has connected Google Calendar"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(calendarResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCalendarStatus(ctx, request, sc)
	})

	unsyncedResource := mcp.NewResource(
		unsyncedURI,
		"Unsynced Records",
		mcp.WithResourceDescription("Open tasks, projects and plant care tasks with a due date but no calendar event"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(unsyncedResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUnsyncedRecords(ctx, request, sc)
	})

	return nil
}

func callerOrError(ctx context.Context, sc *server.ServerContext) (string, error) {
	userID := common.ResolveCaller(ctx, sc)
	if userID == "" {
		return "", fmt.Errorf("no user configured for this session")
	}
	return userID, nil
}

// handleCalendarStatus returns the connection state of the caller's calendar
func handleCalendarStatus(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	userID, err := callerOrError(ctx, sc)
	if err != nil {
		return nil, err
	}

	profile, err := sc.Store().GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	status := CalendarStatus{
		UserID:    userID,
		Connected: profile.CalendarConnected,
	}
	if !profile.UpdatedAt.IsZero() {
		status.UpdatedAt = &profile.UpdatedAt
	}
	if cfg := profile.CalendarConfig; cfg != nil {
		if expiry := cfg.Expiry(); !expiry.IsZero() {
			status.TokenExpiry = &expiry
		}
	}

	return jsonContents(request.Params.URI, status)
}

// handleUnsyncedRecords lists the caller's open records that should have a
// calendar event but do not, typically because the initial push failed.
func handleUnsyncedRecords(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	userID, err := callerOrError(ctx, sc)
	if err != nil {
		return nil, err
	}

	unsynced := []UnsyncedRecord{}
	for _, collection := range records.Collections {
		recs, err := sc.Store().ListRecords(ctx, collection, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", collection, err)
		}
		for _, rec := range recs {
			if rec.Completed || rec.DueDate == nil || rec.Synced() {
				continue
			}
			unsynced = append(unsynced, UnsyncedRecord{
				Collection: collection,
				ID:         rec.ID,
				Title:      rec.Title,
				DueDate:    *rec.DueDate,
			})
		}
	}

	return jsonContents(request.Params.URI, unsynced)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
