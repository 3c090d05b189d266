package server

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/calsync/internal/calendar"
	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/store"
	"github.com/teemow/calsync/internal/triggers"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeCalendar struct {
	mu      sync.Mutex
	inserts []calendar.EventInput
	deletes []string
}

func (f *fakeCalendar) InsertEvent(ctx context.Context, calendarID string, input calendar.EventInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, input)
	return "evt-1", nil
}

func (f *fakeCalendar) PatchEvent(ctx context.Context, calendarID, eventID string, patch calendar.EventPatch) error {
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, eventID)
	return nil
}

func (f *fakeCalendar) ClientFor(ctx context.Context, userID string) (calsync.EventClient, error) {
	return f, nil
}

type fakeAuthorizer struct{}

func (fakeAuthorizer) AuthURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?access_type=offline&state=" + state
}

func (fakeAuthorizer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}, nil
}

type testEnv struct {
	sc    *ServerContext
	store *store.MemoryStore
	cal   *fakeCalendar
	auth  *Authenticator
}

func newTestEnv(t *testing.T, opts ...ContextOption) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	cal := &fakeCalendar{}
	svc := calsync.NewService(fakeAuthorizer{}, st, cal, nil)
	rt := triggers.New(calsync.NewDispatcher(st, cal, nil))
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	auth, err := NewAuthenticator(testSecret, "household-app")
	require.NoError(t, err)

	opts = append([]ContextOption{WithRuntime(rt), WithStore(st)}, opts...)
	sc := NewServerContext(context.Background(), svc, opts...)
	t.Cleanup(func() { _ = sc.Shutdown() })

	return &testEnv{sc: sc, store: st, cal: cal, auth: auth}
}
