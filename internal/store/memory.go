package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/calsync/internal/records"
)

// MemoryStore is an in-memory Store. It is used in tests and for ephemeral
// deployments started with --db=memory.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]map[string]*records.Record
	profiles map[string]*records.UserProfile
	opts     options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]map[string]*records.Record),
		profiles: make(map[string]*records.UserProfile),
		opts:     buildOptions(opts),
	}
}

// CreateRecord stores a new record, assigning an id when it has none.
func (s *MemoryStore) CreateRecord(ctx context.Context, rec *records.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.Kind == "" {
		rec.Kind = records.KindSimpleTask
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	collection := rec.Kind.Collection()

	s.mu.Lock()
	if s.records[collection] == nil {
		s.records[collection] = make(map[string]*records.Record)
	}
	if _, exists := s.records[collection][rec.ID]; exists {
		s.mu.Unlock()
		return ErrInvalidRecord
	}
	s.records[collection][rec.ID] = rec.Clone()
	s.mu.Unlock()

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseCreate,
		UserID:     rec.UserID,
		RecordID:   rec.ID,
		After:      rec.Clone(),
	})
	return nil
}

// GetRecord returns a copy of a stored record.
func (s *MemoryStore) GetRecord(ctx context.Context, collection, id string) (*records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// UpdateRecord replaces a stored record. The stored calendar mapping is kept
// when rec carries none, since the mapping is owned by the sync engine.
func (s *MemoryStore) UpdateRecord(ctx context.Context, rec *records.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	collection := rec.Kind.Collection()

	s.mu.Lock()
	before, ok := s.records[collection][rec.ID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	after := rec.Clone()
	after.CreatedAt = before.CreatedAt
	after.UpdatedAt = time.Now().UTC()
	if after.CalendarEventID == nil {
		after.CalendarEventID = before.Clone().CalendarEventID
	}
	s.records[collection][rec.ID] = after
	s.mu.Unlock()

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseUpdate,
		UserID:     after.UserID,
		RecordID:   after.ID,
		Before:     before.Clone(),
		After:      after.Clone(),
	})
	return nil
}

// DeleteRecord removes a record.
func (s *MemoryStore) DeleteRecord(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	before, ok := s.records[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.records[collection], id)
	s.mu.Unlock()

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseDelete,
		UserID:     before.UserID,
		RecordID:   id,
		Before:     before.Clone(),
	})
	return nil
}

// ListRecords returns a user's records in a collection, oldest first.
func (s *MemoryStore) ListRecords(ctx context.Context, collection, userID string) ([]*records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*records.Record
	for _, rec := range s.records[collection] {
		if rec.UserID == userID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SetCalendarEventID writes only the calendar mapping of a record.
func (s *MemoryStore) SetCalendarEventID(ctx context.Context, collection, id string, eventID *string) error {
	s.mu.Lock()
	before, ok := s.records[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	after := before.Clone()
	after.CalendarEventID = nil
	if eventID != nil {
		after.CalendarEventID = records.StringPtr(*eventID)
	}
	after.UpdatedAt = time.Now().UTC()
	s.records[collection][id] = after
	s.mu.Unlock()

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseUpdate,
		UserID:     after.UserID,
		RecordID:   id,
		Before:     before.Clone(),
		After:      after.Clone(),
	})
	return nil
}

// GetProfile returns the user's profile or an empty disconnected one.
func (s *MemoryStore) GetProfile(ctx context.Context, userID string) (*records.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return &records.UserProfile{ID: userID}, nil
	}
	return cloneProfile(p), nil
}

// GetCredential returns the user's stored credential.
func (s *MemoryStore) GetCredential(ctx context.Context, userID string) (*records.CalendarConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok || p.CalendarConfig == nil {
		return nil, ErrNoCredential
	}
	cfg := *p.CalendarConfig
	return &cfg, nil
}

// SaveCredential stores a credential, never blanking a stored refresh token.
func (s *MemoryStore) SaveCredential(ctx context.Context, userID string, cfg records.CalendarConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = &records.UserProfile{ID: userID}
		s.profiles[userID] = p
	}
	merged := MergeCredential(p.CalendarConfig, cfg)
	p.CalendarConfig = &merged
	p.CalendarConnected = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteCredential forgets the user's credential.
func (s *MemoryStore) DeleteCredential(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil
	}
	p.CalendarConfig = nil
	p.CalendarConnected = false
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Close is a no-op for the memory store.
// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneProfile(p *records.UserProfile) *records.UserProfile {
	c := *p
	if p.CalendarConfig != nil {
		cfg := *p.CalendarConfig
		c.CalendarConfig = &cfg
	}
	return &c
}
