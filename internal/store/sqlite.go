package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/teemow/calsync/internal/records"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_user ON records (collection, user_id, created_at);

CREATE TABLE IF NOT EXISTS profiles (
	user_id            TEXT PRIMARY KEY,
	access_token       TEXT NOT NULL DEFAULT '',
	refresh_token      TEXT NOT NULL DEFAULT '',
	expiry_date        INTEGER NOT NULL DEFAULT 0,
	has_credential     INTEGER NOT NULL DEFAULT 0,
	calendar_connected INTEGER NOT NULL DEFAULT 0,
	updated_at         TEXT NOT NULL
);
`

// SQLiteStore is a Store backed by a SQLite database file.
// Records are kept as JSON documents keyed by collection and id.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

// Close closes the database.
// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeRecord(rec *records.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data), nil
}

func decodeRecord(data string) (*records.Record, error) {
	var rec records.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, collection, id string) (*records.Record, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM records WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return decodeRecord(data)
}

// CreateRecord stores a new record, assigning an id when it has none.
func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *records.Record) error {
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

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	collection := rec.Kind.Collection()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, user_id, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		collection, rec.ID, rec.UserID, data, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseCreate,
		UserID:     rec.UserID,
		RecordID:   rec.ID,
		After:      rec.Clone(),
	})
	return nil
}

// GetRecord loads a record.
func (s *SQLiteStore) GetRecord(ctx context.Context, collection, id string) (*records.Record, error) {
	return getRecord(ctx, s.db, collection, id)
}

// mutate applies fn to a stored record inside a transaction and publishes
// the resulting update.
func (s *SQLiteStore) mutate(ctx context.Context, collection, id string, fn func(before *records.Record) *records.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := getRecord(ctx, tx, collection, id)
	if err != nil {
		return err
	}

	after := fn(before.Clone())
	after.UpdatedAt = time.Now().UTC()
	data, err := encodeRecord(after)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ?, user_id = ? WHERE collection = ? AND id = ?`,
		data, after.UserID, collection, id,
	); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record update: %w", err)
	}

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseUpdate,
		UserID:     after.UserID,
		RecordID:   id,
		Before:     before,
		After:      after.Clone(),
	})
	return nil
}

// UpdateRecord replaces a stored record. The stored calendar mapping is kept
// when rec carries none.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *records.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	return s.mutate(ctx, rec.Kind.Collection(), rec.ID, func(before *records.Record) *records.Record {
		after := rec.Clone()
		after.CreatedAt = before.CreatedAt
		if after.CalendarEventID == nil {
			after.CalendarEventID = before.CalendarEventID
		}
		return after
	})
}

// SetCalendarEventID writes only the calendar mapping of a record.
func (s *SQLiteStore) SetCalendarEventID(ctx context.Context, collection, id string, eventID *string) error {
	return s.mutate(ctx, collection, id, func(rec *records.Record) *records.Record {
		rec.CalendarEventID = nil
		if eventID != nil {
			rec.CalendarEventID = records.StringPtr(*eventID)
		}
		return rec
	})
}

// DeleteRecord removes a record.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, collection, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := getRecord(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record delete: %w", err)
	}

	s.opts.publish(ctx, Change{
		Collection: collection,
		Phase:      PhaseDelete,
		UserID:     before.UserID,
		RecordID:   id,
		Before:     before,
	})
	return nil
}

// ListRecords returns a user's records in a collection, oldest first.
func (s *SQLiteStore) ListRecords(ctx context.Context, collection, userID string) ([]*records.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND user_id = ? ORDER BY created_at, id`,
		collection, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*records.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type profileRow struct {
	accessToken   string
	refreshToken  string
	expiryDate    int64
	hasCredential bool
	connected     bool
	updatedAt     string
}

func (s *SQLiteStore) loadProfile(ctx context.Context, q queryer, userID string) (*profileRow, error) {
	var row profileRow
	err := q.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expiry_date, has_credential, calendar_connected, updated_at
		 FROM profiles WHERE user_id = ?`, userID,
	).Scan(&row.accessToken, &row.refreshToken, &row.expiryDate, &row.hasCredential, &row.connected, &row.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &row, nil
}

func (s *SQLiteStore) decryptCredential(row *profileRow) (*records.CalendarConfig, error) {
	access, err := s.opts.encryption.Decrypt(row.accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := s.opts.encryption.Decrypt(row.refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &records.CalendarConfig{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiryDate:   row.expiryDate,
	}, nil
}

// GetProfile returns the user's profile or an empty disconnected one.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*records.UserProfile, error) {
	row, err := s.loadProfile(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	profile := &records.UserProfile{ID: userID}
	if row == nil {
		return profile, nil
	}

	profile.CalendarConnected = row.connected
	if t, err := time.Parse(time.RFC3339Nano, row.updatedAt); err == nil {
		profile.UpdatedAt = t
	}
	if row.hasCredential {
		cfg, err := s.decryptCredential(row)
		if err != nil {
			return nil, err
		}
		profile.CalendarConfig = cfg
	}
	return profile, nil
}

// GetCredential returns the user's stored credential.
func (s *SQLiteStore) GetCredential(ctx context.Context, userID string) (*records.CalendarConfig, error) {
	row, err := s.loadProfile(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.hasCredential {
		return nil, ErrNoCredential
	}
	return s.decryptCredential(row)
}

// SaveCredential stores a credential, never blanking a stored refresh token.
func (s *SQLiteStore) SaveCredential(ctx context.Context, userID string, cfg records.CalendarConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing *records.CalendarConfig
	row, err := s.loadProfile(ctx, tx, userID)
	if err != nil {
		return err
	}
	if row != nil && row.hasCredential {
		if existing, err = s.decryptCredential(row); err != nil {
			return err
		}
	}

	merged := MergeCredential(existing, cfg)
	access, err := s.opts.encryption.Encrypt(merged.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.opts.encryption.Encrypt(merged.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, access_token, refresh_token, expiry_date, has_credential, calendar_connected, updated_at)
		VALUES (?, ?, ?, ?, 1, 1, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry_date = excluded.expiry_date,
			has_credential = 1,
			calendar_connected = 1,
			updated_at = excluded.updated_at`,
		userID, access, refresh, merged.ExpiryDate, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return tx.Commit()
}

// DeleteCredential forgets the user's credential.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET access_token = '', refresh_token = '', expiry_date = 0,
			has_credential = 0, calendar_connected = 0, updated_at = ?
		WHERE user_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
