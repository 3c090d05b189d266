package calsync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/calsync/internal/calendar"
	"github.com/teemow/calsync/internal/google"
	"github.com/teemow/calsync/internal/logging"
	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
	"github.com/teemow/calsync/internal/translator"
)

// Authorizer runs the OAuth consent flow. *google.OAuth implements it.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// InitAuthResult is returned by InitAuth.
type InitAuthResult struct {
	AuthURL string `json:"authUrl"`
}

// SuccessResult is returned by operations that only report success.
type SuccessResult struct {
	Success bool `json:"success"`
}

// CreateEventResult is returned by CreateEvent.
type CreateEventResult struct {
	EventID string `json:"eventId"`
}

// StatusResult is returned by Status.
type StatusResult struct {
	Connected bool `json:"connected"`
}

// CompleteAuthRequest carries the authorization code from the consent redirect.
type CompleteAuthRequest struct {
	Code string `json:"code"`
}

// EventRequest describes a calendar event created directly by a user.
type EventRequest struct {
	Kind        string     `json:"kind,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate"`
	PlantName   string     `json:"plantName,omitempty"`
}

// PartialEvent holds the fields to change on an event. Nil fields are kept.
type PartialEvent struct {
	Kind        string     `json:"kind,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// UpdateEventRequest updates an existing event.
type UpdateEventRequest struct {
	EventID string       `json:"eventId"`
	Event   PartialEvent `json:"event"`
}

// DeleteEventRequest deletes an event.
type DeleteEventRequest struct {
	EventID string `json:"eventId"`
}

// Service implements the user-invoked calendar operations. Every operation
// requires a caller and reports failures as *Error.
type Service struct {
	auth    Authorizer
	creds   store.CredentialStore
	clients ClientFactory
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(auth Authorizer, creds store.CredentialStore, clients ClientFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{auth: auth, creds: creds, clients: clients, logger: logger}
}

// InitAuth returns the consent URL for the caller.
func (s *Service) InitAuth(ctx context.Context, callerID string) (*InitAuthResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	return &InitAuthResult{AuthURL: s.auth.AuthURL(uuid.NewString())}, nil
}

// CompleteAuth exchanges the authorization code and stores the credential.
func (s *Service) CompleteAuth(ctx context.Context, callerID string, req CompleteAuthRequest) (*SuccessResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, InvalidArgument("authorization code is required")
	}

	tok, err := s.auth.Exchange(ctx, req.Code)
	if err != nil {
		s.logger.Error("Calendar authorization failed", logging.UserHash(callerID), logging.Err(err))
		return nil, Internal("failed to complete calendar authorization", err)
	}

	if err := s.creds.SaveCredential(ctx, callerID, google.CredentialFromToken(tok)); err != nil {
		return nil, Internal("failed to store calendar credential", err)
	}

	s.logger.Info("Calendar connected", logging.UserHash(callerID))
	return &SuccessResult{Success: true}, nil
}

// DisconnectCalendar removes the caller's credential. Events already on the
// calendar are kept.
func (s *Service) DisconnectCalendar(ctx context.Context, callerID string) (*SuccessResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	if err := s.creds.DeleteCredential(ctx, callerID); err != nil {
		return nil, Internal("failed to disconnect calendar", err)
	}
	s.logger.Info("Calendar disconnected", logging.UserHash(callerID))
	return &SuccessResult{Success: true}, nil
}

// Status reports whether the caller has a connected calendar.
func (s *Service) Status(ctx context.Context, callerID string) (*StatusResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	profile, err := s.creds.GetProfile(ctx, callerID)
	if err != nil {
		return nil, Internal("failed to load profile", err)
	}
	return &StatusResult{Connected: profile.CalendarConnected}, nil
}

// CreateEvent creates an event from req and returns its id.
func (s *Service) CreateEvent(ctx context.Context, callerID string, req EventRequest) (*CreateEventResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, InvalidArgument("title is required")
	}
	if req.DueDate == nil {
		return nil, InvalidArgument("dueDate is required")
	}
	kind, err := records.ParseKind(req.Kind)
	if err != nil {
		return nil, InvalidArgument(err.Error())
	}

	input, err := translator.ToEventInput(&records.Record{
		UserID:      callerID,
		Kind:        kind,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		PlantName:   req.PlantName,
	})
	if err != nil {
		return nil, InvalidArgument(err.Error())
	}

	client, err := s.client(ctx, callerID)
	if err != nil {
		return nil, err
	}
	eventID, err := client.InsertEvent(ctx, calendar.PrimaryCalendarID, input)
	if err != nil {
		s.logger.Error("Failed to create calendar event", logging.UserHash(callerID), logging.Err(err))
		return nil, Internal("failed to create calendar event", err)
	}
	return &CreateEventResult{EventID: eventID}, nil
}

// UpdateEvent applies the fields present in req.Event to an existing event.
func (s *Service) UpdateEvent(ctx context.Context, callerID string, req UpdateEventRequest) (*SuccessResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	if req.EventID == "" {
		return nil, InvalidArgument("eventId is required")
	}
	if req.Event.Title != nil && strings.TrimSpace(*req.Event.Title) == "" {
		return nil, InvalidArgument("title cannot be empty")
	}
	// The kind decides the title prefix and the duration, so it cannot be
	// guessed when either is rendered.
	if req.Event.Kind == "" && (req.Event.Title != nil || req.Event.DueDate != nil) {
		return nil, InvalidArgument("kind is required when title or dueDate change")
	}
	kind, err := records.ParseKind(req.Event.Kind)
	if err != nil {
		return nil, InvalidArgument(err.Error())
	}

	patch := translator.ToEventPatch(kind, translator.Partial{
		Title:       req.Event.Title,
		Description: req.Event.Description,
		DueDate:     req.Event.DueDate,
	})
	if patch.Empty() {
		return nil, InvalidArgument("event has no fields to update")
	}

	client, err := s.client(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := client.PatchEvent(ctx, calendar.PrimaryCalendarID, req.EventID, patch); err != nil {
		s.logger.Error("Failed to update calendar event",
			logging.UserHash(callerID), logging.EventID(req.EventID), logging.Err(err))
		return nil, Internal("failed to update calendar event", err)
	}
	return &SuccessResult{Success: true}, nil
}

// DeleteEvent deletes an event. Deleting an event that is already gone succeeds.
func (s *Service) DeleteEvent(ctx context.Context, callerID string, req DeleteEventRequest) (*SuccessResult, error) {
	if callerID == "" {
		return nil, Unauthenticated("authentication required")
	}
	if req.EventID == "" {
		return nil, InvalidArgument("eventId is required")
	}

	client, err := s.client(ctx, callerID)
	if err != nil {
		return nil, err
	}
	err = client.DeleteEvent(ctx, calendar.PrimaryCalendarID, req.EventID)
	if err != nil && !calendar.IsGone(err) {
		s.logger.Error("Failed to delete calendar event",
			logging.UserHash(callerID), logging.EventID(req.EventID), logging.Err(err))
		return nil, Internal("failed to delete calendar event", err)
	}
	return &SuccessResult{Success: true}, nil
}

func (s *Service) client(ctx context.Context, callerID string) (EventClient, error) {
	client, err := s.clients.ClientFor(ctx, callerID)
	if errors.Is(err, store.ErrNoCredential) {
		return nil, FailedPrecondition("calendar is not connected", err)
	}
	if err != nil {
		return nil, Internal("failed to open calendar session", err)
	}
	return client, nil
}
