package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teemow/calsync/internal/records"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNoCredential  = errors.New("no calendar credential")
	ErrInvalidRecord = errors.New("invalid record")
)

// Change phases, matching the document trigger kinds.
const (
	PhaseCreate = "create"
	PhaseUpdate = "update"
	PhaseDelete = "delete"
)

// Change describes one committed mutation of a record document.
// Before is nil for creates, After is nil for deletes. Handlers mirror
// calendar mapping write-backs onto After.
//
// External marks changes delivered from a document store other than this
// process's own; their records may be missing from the local store.
type Change struct {
	Collection string          `json:"collection"`
	Phase      string          `json:"phase"`
	UserID     string          `json:"userId"`
	RecordID   string          `json:"recordId"`
	Before     *records.Record `json:"before,omitempty"`
	After      *records.Record `json:"after,omitempty"`
	External   bool            `json:"-"`
}

// Sink receives record changes after they are committed. Publish must not
// block on the work it schedules; it is called from inside store operations.
type Sink interface {
	Publish(ctx context.Context, change Change)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, change Change)

// Publish calls f(ctx, change).
func (f SinkFunc) Publish(ctx context.Context, change Change) { f(ctx, change) }

// RecordStore holds the synchronized household records.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *records.Record) error
	GetRecord(ctx context.Context, collection, id string) (*records.Record, error)
	UpdateRecord(ctx context.Context, rec *records.Record) error
	DeleteRecord(ctx context.Context, collection, id string) error
	ListRecords(ctx context.Context, collection, userID string) ([]*records.Record, error)

	// SetCalendarEventID writes only the calendar mapping of a record.
	// A nil eventID clears it.
	SetCalendarEventID(ctx context.Context, collection, id string, eventID *string) error
}

// CredentialStore holds per-user calendar credentials on the user profile.
type CredentialStore interface {
	// GetProfile returns the user's profile. Users without a stored profile
	// get an empty, disconnected one.
	GetProfile(ctx context.Context, userID string) (*records.UserProfile, error)

	// GetCredential returns ErrNoCredential when the user never connected.
	GetCredential(ctx context.Context, userID string) (*records.CalendarConfig, error)

	// SaveCredential stores cfg and marks the calendar connected. An empty
	// refresh token in cfg never replaces a stored one.
	SaveCredential(ctx context.Context, userID string, cfg records.CalendarConfig) error

	// DeleteCredential removes the credential and marks the calendar disconnected.
	DeleteCredential(ctx context.Context, userID string) error
}

// Store is the complete document store used by calsync.
type Store interface {
	RecordStore
	CredentialStore

	// Ping reports whether the store can serve requests.
	Ping(ctx context.Context) error
	Close() error
}

// MergeCredential applies an incoming credential on top of the stored one,
// keeping the stored refresh token when the incoming one is empty.
func MergeCredential(existing *records.CalendarConfig, incoming records.CalendarConfig) records.CalendarConfig {
	merged := incoming
	if merged.RefreshToken == "" && existing != nil {
		merged.RefreshToken = existing.RefreshToken
	}
	return merged
}

// Option configures a store.
type Option func(*options)

type options struct {
	sink       Sink
	logger     *slog.Logger
	encryption *TokenEncryption
}

// WithSink publishes every committed record change to s.
func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEncryption encrypts OAuth tokens at rest. Only the SQLite store persists
// tokens, the memory store ignores it.
func WithEncryption(e *TokenEncryption) Option {
	return func(o *options) { o.encryption = e }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) publish(ctx context.Context, change Change) {
	if o.sink == nil {
		return
	}
	o.sink.Publish(ctx, change)
}

func validateRecord(rec *records.Record) error {
	if rec == nil || rec.UserID == "" || rec.Title == "" {
		return ErrInvalidRecord
	}
	if _, err := records.ParseKind(string(rec.Kind)); err != nil {
		return ErrInvalidRecord
	}
	return nil
}
