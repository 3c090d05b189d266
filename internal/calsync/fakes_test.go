package calsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/teemow/calsync/internal/calendar"
)

type patchCall struct {
	EventID string
	Patch   calendar.EventPatch
}

// fakeCalendar records every remote call.
type fakeCalendar struct {
	mu      sync.Mutex
	inserts []calendar.EventInput
	patches []patchCall
	deletes []string

	insertErr error
	patchErr  error
	deleteErr error
}

func (f *fakeCalendar) InsertEvent(ctx context.Context, calendarID string, input calendar.EventInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserts = append(f.inserts, input)
	return fmt.Sprintf("evt-%d", len(f.inserts)), nil
}

func (f *fakeCalendar) PatchEvent(ctx context.Context, calendarID, eventID string, patch calendar.EventPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches = append(f.patches, patchCall{EventID: eventID, Patch: patch})
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, eventID)
	return nil
}

func (f *fakeCalendar) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts) + len(f.patches) + len(f.deletes)
}

// fakeClients hands out the same fakeCalendar for every user.
type fakeClients struct {
	cal      *fakeCalendar
	err      error
	mu       sync.Mutex
	sessions int
}

func (f *fakeClients) ClientFor(ctx context.Context, userID string) (EventClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	if f.err != nil {
		return nil, f.err
	}
	return f.cal, nil
}
