package calsync

import (
	"context"
	"fmt"

	"github.com/teemow/calsync/internal/calendar"
	"github.com/teemow/calsync/internal/google"
	"github.com/teemow/calsync/internal/instrumentation"
)

// EventClient is the subset of the calendar API calsync calls.
type EventClient interface {
	InsertEvent(ctx context.Context, calendarID string, input calendar.EventInput) (string, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, patch calendar.EventPatch) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// ClientFactory returns a calendar client authenticated as userID. It fails
// with an error wrapping store.ErrNoCredential when the user never connected.
type ClientFactory interface {
	ClientFor(ctx context.Context, userID string) (EventClient, error)
}

// GoogleClients builds calendar clients from OAuth sessions.
type GoogleClients struct {
	sessions *google.SessionFactory
	metrics  *instrumentation.Metrics
}

// NewGoogleClients creates a ClientFactory backed by Google Calendar.
func NewGoogleClients(sessions *google.SessionFactory, metrics *instrumentation.Metrics) *GoogleClients {
	return &GoogleClients{sessions: sessions, metrics: metrics}
}

// ClientFor implements ClientFactory.
func (g *GoogleClients) ClientFor(ctx context.Context, userID string) (EventClient, error) {
	sess, err := g.sessions.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	c, err := calendar.NewClient(ctx, sess.HTTPClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return c.WithMetrics(g.metrics), nil
}
