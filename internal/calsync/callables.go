package calsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Names of the user-invoked operations.
const (
	CallableInitAuth     = "initCalendarAuth"
	CallableCompleteAuth = "completeCalendarAuth"
	CallableCreateEvent  = "createCalendarEvent"
	CallableUpdateEvent  = "updateCalendarEvent"
	CallableDeleteEvent  = "deleteCalendarEvent"
	CallableDisconnect   = "disconnectCalendar"
	CallableStatus       = "calendarStatus"
)

// ErrUnknownCallable is returned by Call for names it does not serve.
var ErrUnknownCallable = errors.New("unknown callable")

// Callables lists every operation served by Call.
func Callables() []string {
	return []string{
		CallableInitAuth,
		CallableCompleteAuth,
		CallableCreateEvent,
		CallableUpdateEvent,
		CallableDeleteEvent,
		CallableDisconnect,
		CallableStatus,
	}
}

// Call runs the named operation with JSON encoded request data. Missing data
// decodes as an empty request. The caller is checked before data is decoded.
func (s *Service) Call(ctx context.Context, name, callerID string, data json.RawMessage) (any, error) {
	if !slices.Contains(Callables(), name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallable, name)
	}
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}

	switch name {
	case CallableInitAuth:
		return s.InitAuth(ctx, callerID)
	case CallableCompleteAuth:
		var req CompleteAuthRequest
		if err := decodeData(data, &req); err != nil {
			return nil, err
		}
		return s.CompleteAuth(ctx, callerID, req)
	case CallableCreateEvent:
		var req EventRequest
		if err := decodeData(data, &req); err != nil {
			return nil, err
		}
		return s.CreateEvent(ctx, callerID, req)
	case CallableUpdateEvent:
		var req UpdateEventRequest
		if err := decodeData(data, &req); err != nil {
			return nil, err
		}
		return s.UpdateEvent(ctx, callerID, req)
	case CallableDeleteEvent:
		var req DeleteEventRequest
		if err := decodeData(data, &req); err != nil {
			return nil, err
		}
		return s.DeleteEvent(ctx, callerID, req)
	case CallableDisconnect:
		return s.DisconnectCalendar(ctx, callerID)
	case CallableStatus:
		return s.Status(ctx, callerID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallable, name)
	}
}

func decodeData(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return InvalidArgument(fmt.Sprintf("invalid request data: %v", err))
	}
	return nil
}
