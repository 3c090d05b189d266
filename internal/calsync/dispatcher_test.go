package calsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/teemow/calsync/internal/calendar"
	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
)

var fernDue = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.MemoryStore, *fakeClients) {
	t.Helper()
	st := store.NewMemoryStore()
	clients := &fakeClients{cal: &fakeCalendar{}}
	return NewDispatcher(st, clients, nil), st, clients
}

func createRecord(t *testing.T, st *store.MemoryStore, rec *records.Record) store.Change {
	t.Helper()
	require.NoError(t, st.CreateRecord(context.Background(), rec))
	return store.Change{
		Collection: rec.Kind.Collection(),
		Phase:      store.PhaseCreate,
		UserID:     rec.UserID,
		RecordID:   rec.ID,
		After:      rec.Clone(),
	}
}

func fern() *records.Record {
	return &records.Record{
		UserID:    "u1",
		Kind:      records.KindCareTask,
		Title:     "Water fern",
		DueDate:   records.TimePtr(fernDue),
		PlantName: "Fern",
	}
}

func updateChange(rec *records.Record, mutate func(*records.Record)) store.Change {
	after := rec.Clone()
	mutate(after)
	return store.Change{
		Collection: rec.Kind.Collection(),
		Phase:      store.PhaseUpdate,
		UserID:     rec.UserID,
		RecordID:   rec.ID,
		Before:     rec.Clone(),
		After:      after,
	}
}

func TestDispatcher_WaterFernLifecycle(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()
	cal := clients.cal

	rec := fern()
	outcome, err := d.HandleCreate(ctx, createRecord(t, st, rec))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)

	require.Len(t, cal.inserts, 1)
	in := cal.inserts[0]
	assert.Equal(t, "Plant Care: Water fern", in.Summary)
	assert.Equal(t, "Care task for plant: Fern", in.Description)
	assert.Equal(t, fernDue, in.Start)
	assert.Equal(t, time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC), in.End)
	assert.Equal(t, []calendar.Reminder{
		{Method: calendar.ReminderPopup, Minutes: 15},
		{Method: calendar.ReminderEmail, Minutes: 60},
	}, in.Reminders)

	stored, err := st.GetRecord(ctx, records.CollectionTasks, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", stored.EventID())

	// Completing the task removes the event and clears the mapping.
	outcome, err = d.HandleUpdate(ctx, updateChange(stored, func(r *records.Record) { r.Completed = true }))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)

	assert.Equal(t, []string{"evt-1"}, cal.deletes)
	assert.Empty(t, cal.patches)
	assert.Len(t, cal.inserts, 1)

	stored, err = st.GetRecord(ctx, records.CollectionTasks, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CalendarEventID)
}

func TestDispatcher_HandleCreate_Idempotent(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()

	change := createRecord(t, st, fern())
	for i := 0; i < 3; i++ {
		_, err := d.HandleCreate(ctx, change)
		require.NoError(t, err)
	}
	assert.Len(t, clients.cal.inserts, 1)

	// A snapshot that already carries a mapping is skipped without a lookup.
	mapped := change
	mapped.After = change.After.Clone()
	mapped.After.CalendarEventID = records.StringPtr("evt-1")
	outcome, err := d.HandleCreate(ctx, mapped)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Len(t, clients.cal.inserts, 1)
}

func TestDispatcher_HandleCreate_NoDueDate(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()

	rec := &records.Record{UserID: "u1", Kind: records.KindSimpleTask, Title: "Someday"}
	outcome, err := d.HandleCreate(ctx, createRecord(t, st, rec))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	assert.Equal(t, 0, clients.cal.calls())
	assert.Equal(t, 0, clients.sessions)

	stored, err := st.GetRecord(ctx, records.CollectionSimpleTasks, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CalendarEventID)
}

func TestDispatcher_HandleCreate_RecordDeleted(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()

	change := createRecord(t, st, fern())
	require.NoError(t, st.DeleteRecord(ctx, change.Collection, change.RecordID))

	outcome, err := d.HandleCreate(ctx, change)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 0, clients.cal.calls())
}

func TestDispatcher_HandleCreate_ExternalRecord(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()

	rec := fern()
	rec.ID = "ext-1"
	change := store.Change{
		Collection: records.CollectionTasks,
		Phase:      store.PhaseCreate,
		UserID:     "u1",
		RecordID:   "ext-1",
		After:      rec,
		External:   true,
	}

	outcome, err := d.HandleCreate(ctx, change)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	require.Len(t, clients.cal.inserts, 1)
	assert.Equal(t, "Plant Care: Water fern", clients.cal.inserts[0].Summary)
	assert.Equal(t, "evt-1", change.After.EventID())

	_, err = st.GetRecord(ctx, records.CollectionTasks, "ext-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Redelivery of the answered snapshot does not insert twice.
	_, err = d.HandleCreate(ctx, change)
	require.NoError(t, err)
	assert.Len(t, clients.cal.inserts, 1)
}

func TestDispatcher_OwnerMismatch(t *testing.T) {
	tests := []struct {
		name   string
		handle func(t *testing.T, d *Dispatcher, st *store.MemoryStore) (Outcome, error)
	}{
		{
			name: "create of a stored record",
			handle: func(t *testing.T, d *Dispatcher, st *store.MemoryStore) (Outcome, error) {
				change := createRecord(t, st, fern())
				change.UserID = "intruder"
				change.After.UserID = ""
				change.External = true
				return d.HandleCreate(context.Background(), change)
			},
		},
		{
			name: "create with foreign snapshot",
			handle: func(t *testing.T, d *Dispatcher, st *store.MemoryStore) (Outcome, error) {
				change := createRecord(t, st, fern())
				change.UserID = "intruder"
				return d.HandleCreate(context.Background(), change)
			},
		},
		{
			name: "completion of a stored record",
			handle: func(t *testing.T, d *Dispatcher, st *store.MemoryStore) (Outcome, error) {
				change := updateChange(syncedFern(t, st), func(r *records.Record) { r.Completed = true })
				change.UserID = "intruder"
				change.Before.UserID = ""
				change.After.UserID = ""
				return d.HandleUpdate(context.Background(), change)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st, clients := newTestDispatcher(t)
			outcome, err := tt.handle(t, d, st)
			require.ErrorIs(t, err, ErrOwnerMismatch)
			assert.Equal(t, OutcomeFailed, outcome)
			assert.Equal(t, 0, clients.sessions)
			assert.Equal(t, 0, clients.cal.calls())
		})
	}
}

func TestDispatcher_HandleUpdate_CompletionOfExternalRecord(t *testing.T) {
	d, _, clients := newTestDispatcher(t)
	rec := fern()
	rec.ID = "ext-2"
	rec.CalendarEventID = records.StringPtr("evt-4")

	change := updateChange(rec, func(r *records.Record) { r.Completed = true })
	change.External = true
	outcome, err := d.HandleUpdate(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Equal(t, []string{"evt-4"}, clients.cal.deletes)
	assert.Nil(t, change.After.CalendarEventID)
}

func TestDispatcher_HandleCreate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeClients)
		wantErr error
	}{
		{
			name:    "no credential",
			setup:   func(c *fakeClients) { c.err = fmt.Errorf("load: %w", store.ErrNoCredential) },
			wantErr: store.ErrNoCredential,
		},
		{
			name:  "insert fails",
			setup: func(c *fakeClients) { c.cal.insertErr = errors.New("backend error") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st, clients := newTestDispatcher(t)
			ctx := context.Background()
			tt.setup(clients)

			change := createRecord(t, st, fern())
			outcome, err := d.HandleCreate(ctx, change)
			require.Error(t, err)
			assert.Equal(t, OutcomeFailed, outcome)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			stored, err := st.GetRecord(ctx, change.Collection, change.RecordID)
			require.NoError(t, err)
			assert.Nil(t, stored.CalendarEventID, "a failed push leaves the record unsynced")
		})
	}
}

func TestDispatcher_HandleCreate_KindFollowsCollection(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()

	rec := &records.Record{UserID: "u1", Kind: records.KindProject, Title: "Paint shed", DueDate: records.TimePtr(fernDue)}
	change := createRecord(t, st, rec)
	change.After.Kind = ""

	_, err := d.HandleCreate(ctx, change)
	require.NoError(t, err)

	require.Len(t, clients.cal.inserts, 1)
	in := clients.cal.inserts[0]
	assert.Equal(t, "Project: Paint shed", in.Summary)
	assert.Equal(t, "Project deadline: Paint shed", in.Description)
	assert.Equal(t, fernDue.Add(time.Hour), in.End)
}

func syncedFern(t *testing.T, st *store.MemoryStore) *records.Record {
	t.Helper()
	ctx := context.Background()
	rec := fern()
	require.NoError(t, st.CreateRecord(ctx, rec))
	require.NoError(t, st.SetCalendarEventID(ctx, rec.Kind.Collection(), rec.ID, records.StringPtr("evt-9")))
	stored, err := st.GetRecord(ctx, rec.Kind.Collection(), rec.ID)
	require.NoError(t, err)
	return stored
}

func TestDispatcher_HandleUpdate_CompletionWins(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	rec := syncedFern(t, st)

	outcome, err := d.HandleUpdate(context.Background(), updateChange(rec, func(r *records.Record) {
		r.Completed = true
		r.DueDate = records.TimePtr(fernDue.Add(24 * time.Hour))
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)

	assert.Equal(t, []string{"evt-9"}, clients.cal.deletes)
	assert.Empty(t, clients.cal.patches)
}

func TestDispatcher_HandleUpdate_Reschedule(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	rec := syncedFern(t, st)
	newDue := fernDue.Add(48 * time.Hour)

	outcome, err := d.HandleUpdate(context.Background(), updateChange(rec, func(r *records.Record) {
		r.DueDate = records.TimePtr(newDue)
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)

	require.Len(t, clients.cal.patches, 1)
	call := clients.cal.patches[0]
	assert.Equal(t, "evt-9", call.EventID)
	require.NotNil(t, call.Patch.Summary)
	assert.Equal(t, "Plant Care: Water fern", *call.Patch.Summary)
	require.NotNil(t, call.Patch.Description)
	require.NotNil(t, call.Patch.Start)
	assert.Equal(t, newDue, *call.Patch.Start)
	assert.Equal(t, newDue.Add(30*time.Minute), *call.Patch.End)
	assert.Nil(t, call.Patch.Reminders, "reminders are not re-sent on update")
	assert.Empty(t, clients.cal.deletes)
}

func TestDispatcher_HandleUpdate_NoRemoteCall(t *testing.T) {
	tests := []struct {
		name   string
		synced bool
		mutate func(*records.Record)
	}{
		{"unsynced due date change", false, func(r *records.Record) { r.DueDate = records.TimePtr(fernDue.Add(time.Hour)) }},
		{"unsynced completion", false, func(r *records.Record) { r.Completed = true }},
		{"title change only", true, func(r *records.Record) { r.Title = "Water the fern" }},
		{"same instant in another zone", true, func(r *records.Record) {
			r.DueDate = records.TimePtr(fernDue.In(time.FixedZone("CEST", 2*60*60)))
		}},
		{"due date removed", true, func(r *records.Record) { r.DueDate = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st, clients := newTestDispatcher(t)
			var rec *records.Record
			if tt.synced {
				rec = syncedFern(t, st)
			} else {
				rec = fern()
				createRecord(t, st, rec)
			}

			outcome, err := d.HandleUpdate(context.Background(), updateChange(rec, tt.mutate))
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, outcome)
			assert.Equal(t, 0, clients.cal.calls())
		})
	}
}

func TestDispatcher_HandleUpdate_CompletionOfGoneEvent(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	clients.cal.deleteErr = &googleapi.Error{Code: http.StatusGone}
	rec := syncedFern(t, st)
	ctx := context.Background()

	outcome, err := d.HandleUpdate(ctx, updateChange(rec, func(r *records.Record) { r.Completed = true }))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)

	stored, err := st.GetRecord(ctx, rec.Kind.Collection(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CalendarEventID)
}

func TestDispatcher_HandleUpdate_DeleteFailureKeepsMapping(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	clients.cal.deleteErr = &googleapi.Error{Code: http.StatusInternalServerError}
	rec := syncedFern(t, st)
	ctx := context.Background()

	outcome, err := d.HandleUpdate(ctx, updateChange(rec, func(r *records.Record) { r.Completed = true }))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	stored, err := st.GetRecord(ctx, rec.Kind.Collection(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-9", stored.EventID())
}

func TestDispatcher_HandleDelete(t *testing.T) {
	t.Run("unsynced simple task", func(t *testing.T) {
		d, _, clients := newTestDispatcher(t)
		outcome, err := d.HandleDelete(context.Background(), store.Change{
			Collection: records.CollectionSimpleTasks,
			Phase:      store.PhaseDelete,
			UserID:     "u1",
			RecordID:   "r1",
			Before:     &records.Record{ID: "r1", UserID: "u1", Title: "Dishes", Kind: records.KindSimpleTask},
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Equal(t, 0, clients.cal.calls())
		assert.Equal(t, 0, clients.sessions)
	})

	t.Run("synced record", func(t *testing.T) {
		d, _, clients := newTestDispatcher(t)
		outcome, err := d.HandleDelete(context.Background(), store.Change{
			Collection: records.CollectionProjects,
			Phase:      store.PhaseDelete,
			UserID:     "u1",
			RecordID:   "r2",
			Before:     &records.Record{ID: "r2", UserID: "u1", Title: "Shed", CalendarEventID: records.StringPtr("evt-3")},
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSynced, outcome)
		assert.Equal(t, []string{"evt-3"}, clients.cal.deletes)
	})

	t.Run("already gone", func(t *testing.T) {
		d, _, clients := newTestDispatcher(t)
		clients.cal.deleteErr = &googleapi.Error{Code: http.StatusNotFound}
		outcome, err := d.HandleDelete(context.Background(), store.Change{
			Collection: records.CollectionProjects,
			Phase:      store.PhaseDelete,
			RecordID:   "r2",
			Before:     &records.Record{ID: "r2", CalendarEventID: records.StringPtr("evt-3")},
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeSynced, outcome)
	})
}

func TestDispatcher_Handle(t *testing.T) {
	d, st, clients := newTestDispatcher(t)
	ctx := context.Background()

	outcome, err := d.Handle(ctx, createRecord(t, st, fern()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Len(t, clients.cal.inserts, 1)

	clients.cal.insertErr = errors.New("boom")
	outcome, err = d.Handle(ctx, createRecord(t, st, fern()))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	_, err = d.Handle(ctx, store.Change{Phase: "archive"})
	assert.Error(t, err)
}
