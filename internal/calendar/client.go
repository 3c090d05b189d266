package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calsync/internal/instrumentation"
)

// Client wraps the Google Calendar events API for one authenticated user.
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
}

// NewClient creates a Calendar client on top of an already authenticated HTTP
// client, typically one produced by google.SessionFactory.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{svc: svc}, nil
}

// WithMetrics attaches Google API operation metrics to the client.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

func (c *Client) record(ctx context.Context, op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(start))
}

// InsertEvent creates an event and returns its id.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, input EventInput) (string, error) {
	start := time.Now()
	created, err := c.svc.Events.Insert(calendarID, toEvent(input)).Context(ctx).Do()
	c.record(ctx, instrumentation.OperationCreate, start, err)
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("failed to create event: response carried no event id")
	}
	return created.Id, nil
}

// PatchEvent updates only the fields present in patch.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, patch EventPatch) error {
	start := time.Now()
	_, err := c.svc.Events.Patch(calendarID, eventID, toPatchEvent(patch)).Context(ctx).Do()
	c.record(ctx, instrumentation.OperationUpdate, start, err)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent deletes a calendar event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	start := time.Now()
	err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	c.record(ctx, instrumentation.OperationDelete, start, err)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// IsGone reports whether err means the remote event no longer exists.
// Google answers 404 for unknown ids and 410 for events already deleted.
func IsGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
