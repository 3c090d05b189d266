package calsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/calsync/internal/calendar"
	"github.com/teemow/calsync/internal/logging"
	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
	"github.com/teemow/calsync/internal/translator"
)

// Outcome is the result of handling one record change.
type Outcome string

const (
	// OutcomeSynced means a remote call was made and the mapping is current.
	OutcomeSynced Outcome = "synced"
	// OutcomeSkipped means no remote call was needed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means a remote or store call failed.
	OutcomeFailed Outcome = "failed"
)

// ErrOwnerMismatch is returned when a change names another user than the
// record it refers to.
var ErrOwnerMismatch = errors.New("record belongs to another user")

// Dispatcher keeps the calendar in step with record changes. Each call is
// independent; there is no shared state between records.
type Dispatcher struct {
	records store.RecordStore
	clients ClientFactory
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(recs store.RecordStore, clients ClientFactory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{records: recs, clients: clients, logger: logger}
}

// Handle routes change to the handler for its phase.
func (d *Dispatcher) Handle(ctx context.Context, change store.Change) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch change.Phase {
	case store.PhaseCreate:
		outcome, err = d.HandleCreate(ctx, change)
	case store.PhaseUpdate:
		outcome, err = d.HandleUpdate(ctx, change)
	case store.PhaseDelete:
		outcome, err = d.HandleDelete(ctx, change)
	default:
		return OutcomeSkipped, fmt.Errorf("unknown change phase %q", change.Phase)
	}
	if err != nil {
		return OutcomeFailed, err
	}
	return outcome, nil
}

// HandleCreate inserts a remote event for a new record with a due date and
// writes the event id back. Redelivery of the same change is a no-op, and so
// is a local record deleted before the change is handled. External records
// missing from the local store are rendered from the change itself; their
// event id is only written onto change.After.
func (d *Dispatcher) HandleCreate(ctx context.Context, change store.Change) (Outcome, error) {
	if change.After == nil || change.After.DueDate == nil || change.After.Synced() {
		return OutcomeSkipped, nil
	}
	if err := checkSnapshotOwner(change); err != nil {
		return OutcomeFailed, err
	}

	current, err := d.loadOwned(ctx, change)
	if err != nil {
		return OutcomeFailed, err
	}
	local := current != nil
	if !local {
		if !change.External {
			return OutcomeSkipped, nil
		}
		current = change.After
	}
	if current.Synced() || current.DueDate == nil {
		return OutcomeSkipped, nil
	}

	rec, err := withCollectionKind(current, change.Collection)
	if err != nil {
		return OutcomeFailed, err
	}
	input, err := translator.ToEventInput(rec)
	if err != nil {
		return OutcomeFailed, err
	}

	client, err := d.clients.ClientFor(ctx, change.UserID)
	if err != nil {
		return OutcomeFailed, err
	}
	eventID, err := client.InsertEvent(ctx, calendar.PrimaryCalendarID, input)
	if err != nil {
		return OutcomeFailed, err
	}

	if local {
		if err := d.records.SetCalendarEventID(ctx, change.Collection, change.RecordID, &eventID); err != nil {
			return OutcomeFailed, fmt.Errorf("failed to store calendar event id %s: %w", eventID, err)
		}
	}
	change.After.CalendarEventID = &eventID

	d.recordLogger(change).Debug("Created calendar event",
		logging.EventID(eventID), slog.Bool("local", local))
	return OutcomeSynced, nil
}

// HandleUpdate reacts to a record update. Completion removes the remote event
// and takes priority over any other change in the same write; otherwise a
// changed due date reschedules it. Records without a mapping are left alone.
func (d *Dispatcher) HandleUpdate(ctx context.Context, change store.Change) (Outcome, error) {
	before, after := change.Before, change.After
	if after == nil || !after.Synced() {
		return OutcomeSkipped, nil
	}
	eventID := after.EventID()

	if err := checkSnapshotOwner(change); err != nil {
		return OutcomeFailed, err
	}

	if after.Completed && (before == nil || !before.Completed) {
		current, err := d.loadOwned(ctx, change)
		if err != nil {
			return OutcomeFailed, err
		}
		if err := d.deleteRemote(ctx, change, eventID); err != nil {
			return OutcomeFailed, err
		}
		if current != nil {
			if err := d.records.SetCalendarEventID(ctx, change.Collection, change.RecordID, nil); err != nil {
				return OutcomeFailed, fmt.Errorf("failed to clear calendar event id: %w", err)
			}
		}
		after.CalendarEventID = nil
		d.recordLogger(change).Debug("Removed calendar event of completed record", logging.EventID(eventID))
		return OutcomeSynced, nil
	}

	if before == nil || records.SameDueDate(before.DueDate, after.DueDate) {
		return OutcomeSkipped, nil
	}

	rec, err := withCollectionKind(after, change.Collection)
	if err != nil {
		return OutcomeFailed, err
	}
	patch, err := translator.ToRescheduleInput(rec)
	if errors.Is(err, translator.ErrNoDueDate) {
		d.recordLogger(change).Debug("Due date removed, keeping calendar event", logging.EventID(eventID))
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	client, err := d.clients.ClientFor(ctx, change.UserID)
	if err != nil {
		return OutcomeFailed, err
	}
	if err := client.PatchEvent(ctx, calendar.PrimaryCalendarID, eventID, patch); err != nil {
		return OutcomeFailed, err
	}

	d.recordLogger(change).Debug("Rescheduled calendar event", logging.EventID(eventID))
	return OutcomeSynced, nil
}

// HandleDelete removes the remote event of a deleted record.
func (d *Dispatcher) HandleDelete(ctx context.Context, change store.Change) (Outcome, error) {
	if change.Before == nil || !change.Before.Synced() {
		return OutcomeSkipped, nil
	}
	if err := checkSnapshotOwner(change); err != nil {
		return OutcomeFailed, err
	}
	if err := d.deleteRemote(ctx, change, change.Before.EventID()); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSynced, nil
}

// deleteRemote deletes an event. An event that is already gone counts as deleted.
func (d *Dispatcher) deleteRemote(ctx context.Context, change store.Change, eventID string) error {
	client, err := d.clients.ClientFor(ctx, change.UserID)
	if err != nil {
		return err
	}
	err = client.DeleteEvent(ctx, calendar.PrimaryCalendarID, eventID)
	if calendar.IsGone(err) {
		d.recordLogger(change).Debug("Calendar event already gone", logging.EventID(eventID))
		return nil
	}
	return err
}

// loadOwned reads the stored record a change refers to. A record missing
// from the local store yields nil.
func (d *Dispatcher) loadOwned(ctx context.Context, change store.Change) (*records.Record, error) {
	rec, err := d.records.GetRecord(ctx, change.Collection, change.RecordID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if rec.UserID != change.UserID {
		return nil, fmt.Errorf("%w: %s/%s", ErrOwnerMismatch, change.Collection, change.RecordID)
	}
	return rec, nil
}

// checkSnapshotOwner rejects changes whose snapshots carry another owner.
func checkSnapshotOwner(change store.Change) error {
	for _, rec := range []*records.Record{change.Before, change.After} {
		if rec != nil && rec.UserID != "" && rec.UserID != change.UserID {
			return fmt.Errorf("%w: %s/%s", ErrOwnerMismatch, change.Collection, change.RecordID)
		}
	}
	return nil
}

func (d *Dispatcher) recordLogger(change store.Change) *slog.Logger {
	return logging.WithRecord(d.logger, change.UserID, change.Collection, change.RecordID)
}

// withCollectionKind returns a copy of rec whose kind matches the collection
// it lives in.
func withCollectionKind(rec *records.Record, collection string) (*records.Record, error) {
	kind, err := records.KindForCollection(collection)
	if err != nil {
		return nil, err
	}
	out := rec.Clone()
	out.Kind = kind
	return out, nil
}
