package calsync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Call(t *testing.T) {
	svc, _, clients, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Call(ctx, CallableCreateEvent, "u1", json.RawMessage(`{
		"kind": "project",
		"title": "Paint shed",
		"dueDate": "2024-06-01T09:00:00Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, &CreateEventResult{EventID: "evt-1"}, res)
	require.Len(t, clients.cal.inserts, 1)
	assert.Equal(t, "Project: Paint shed", clients.cal.inserts[0].Summary)

	res, err = svc.Call(ctx, CallableUpdateEvent, "u1", json.RawMessage(`{"eventId":"evt-1","event":{"description":""}}`))
	require.NoError(t, err)
	assert.Equal(t, &SuccessResult{Success: true}, res)
	require.Len(t, clients.cal.patches, 1)
	require.NotNil(t, clients.cal.patches[0].Patch.Description)
	assert.Equal(t, "", *clients.cal.patches[0].Patch.Description)
	assert.Nil(t, clients.cal.patches[0].Patch.Summary)

	res, err = svc.Call(ctx, CallableDeleteEvent, "u1", json.RawMessage(`{"eventId":"evt-1"}`))
	require.NoError(t, err)
	assert.Equal(t, &SuccessResult{Success: true}, res)

	res, err = svc.Call(ctx, CallableStatus, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, &StatusResult{Connected: false}, res)
}

func TestService_Call_Errors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Call(ctx, "listEverything", "u1", nil)
	assert.ErrorIs(t, err, ErrUnknownCallable)

	_, err = svc.Call(ctx, CallableCreateEvent, "u1", json.RawMessage(`{"title": 42}`))
	requireCode(t, err, CodeInvalidArgument)

	_, err = svc.Call(ctx, CallableCompleteAuth, "u1", json.RawMessage(`null`))
	requireCode(t, err, CodeInvalidArgument)

	_, err = svc.Call(ctx, CallableInitAuth, "", nil)
	requireCode(t, err, CodeUnauthenticated)

	// The caller is rejected before ill-formed data is looked at.
	_, err = svc.Call(ctx, CallableCreateEvent, "", json.RawMessage(`{"title": 42}`))
	requireCode(t, err, CodeUnauthenticated)

	_, err = svc.Call(ctx, "listEverything", "", nil)
	assert.ErrorIs(t, err, ErrUnknownCallable)
}

func TestCallables(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	for _, name := range Callables() {
		_, err := svc.Call(context.Background(), name, "", nil)
		requireCode(t, err, CodeUnauthenticated)
	}
}
