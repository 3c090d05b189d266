package resources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/server"
	"github.com/teemow/calsync/internal/store"
)

func newTestContext(t *testing.T, st store.Store, opts ...server.ContextOption) *server.ServerContext {
	t.Helper()
	opts = append([]server.ContextOption{server.WithStore(st)}, opts...)
	sc := server.NewServerContext(context.Background(), nil, opts...)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func decodeContents(t *testing.T, contents []mcp.ResourceContents, v any) {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)
	require.NoError(t, json.Unmarshal([]byte(text.Text), v))
}

func TestRegisterUserResources(t *testing.T) {
	s := mcpserver.NewMCPServer("calsync-test", "dev", mcpserver.WithResourceCapabilities(false, false))

	assert.Error(t, RegisterUserResources(s, newTestContext(t, nil)))
	assert.NoError(t, RegisterUserResources(s, newTestContext(t, store.NewMemoryStore())))
}

func TestCalendarStatus(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sc := newTestContext(t, st, server.WithDefaultUser("u1"))

	contents, err := handleCalendarStatus(ctx, readRequest(calendarURI), sc)
	require.NoError(t, err)
	var status CalendarStatus
	decodeContents(t, contents, &status)
	assert.Equal(t, "u1", status.UserID)
	assert.False(t, status.Connected)
	assert.Nil(t, status.TokenExpiry)

	expiry := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveCredential(ctx, "u1", records.CalendarConfig{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiryDate:   records.ExpiryMillis(expiry),
	}))

	contents, err = handleCalendarStatus(ctx, readRequest(calendarURI), sc)
	require.NoError(t, err)
	decodeContents(t, contents, &status)
	assert.True(t, status.Connected)
	require.NotNil(t, status.TokenExpiry)
	assert.True(t, status.TokenExpiry.Equal(expiry))

	text := contents[0].(*mcp.TextResourceContents).Text
	assert.NotContains(t, text, "refreshToken")
	assert.NotContains(t, text, "accessToken")
}

func TestCalendarStatus_CallerFromContext(t *testing.T) {
	sc := newTestContext(t, store.NewMemoryStore())

	_, err := handleCalendarStatus(context.Background(), readRequest(calendarURI), sc)
	assert.Error(t, err)

	contents, err := handleCalendarStatus(server.WithCaller(context.Background(), "u2"), readRequest(calendarURI), sc)
	require.NoError(t, err)
	var status CalendarStatus
	decodeContents(t, contents, &status)
	assert.Equal(t, "u2", status.UserID)
}

func TestUnsyncedRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sc := newTestContext(t, st, server.WithDefaultUser("u1"))
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	for _, rec := range []*records.Record{
		{UserID: "u1", Kind: records.KindCareTask, Title: "Water fern", DueDate: records.TimePtr(due)},
		{UserID: "u1", Kind: records.KindProject, Title: "Shed", DueDate: records.TimePtr(due), CalendarEventID: records.StringPtr("evt-1")},
		{UserID: "u1", Kind: records.KindSimpleTask, Title: "Laundry"},
		{UserID: "u1", Kind: records.KindSimpleTask, Title: "Done", DueDate: records.TimePtr(due), Completed: true},
		{UserID: "u2", Kind: records.KindSimpleTask, Title: "Other user", DueDate: records.TimePtr(due)},
	} {
		require.NoError(t, st.CreateRecord(ctx, rec))
	}

	contents, err := handleUnsyncedRecords(ctx, readRequest(unsyncedURI), sc)
	require.NoError(t, err)

	var unsynced []UnsyncedRecord
	decodeContents(t, contents, &unsynced)
	require.Len(t, unsynced, 1)
	assert.Equal(t, records.CollectionTasks, unsynced[0].Collection)
	assert.Equal(t, "Water fern", unsynced[0].Title)
	assert.True(t, unsynced[0].DueDate.Equal(due))
}
