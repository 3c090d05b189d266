package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
	"github.com/teemow/calsync/internal/triggers"
)

func newPrometheusProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:     "calsync",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewMetricsServer(t *testing.T) {
	disabled, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{Enabled: false})
	require.NoError(t, err)

	stdout, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:     "calsync",
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterStdout,
		TracingExporter: instrumentation.ExporterNone,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stdout.Shutdown(context.Background()) })

	tests := []struct {
		name        string
		config      MetricsServerConfig
		wantAddr    string
		errContains string
	}{
		{
			name:     "explicit addr",
			config:   MetricsServerConfig{Addr: ":9091", InstrumentationProvider: newPrometheusProvider(t)},
			wantAddr: ":9091",
		},
		{
			name:     "default addr",
			config:   MetricsServerConfig{InstrumentationProvider: newPrometheusProvider(t)},
			wantAddr: DefaultMetricsAddr,
		},
		{
			name:        "nil provider",
			config:      MetricsServerConfig{},
			errContains: "instrumentation provider is required",
		},
		{
			name:        "disabled provider",
			config:      MetricsServerConfig{InstrumentationProvider: disabled},
			errContains: "instrumentation provider is not enabled",
		},
		{
			name:        "stdout exporter",
			config:      MetricsServerConfig{InstrumentationProvider: stdout},
			errContains: "metrics exporter is not prometheus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(tt.config)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, srv.Addr())
			assert.NoError(t, srv.Shutdown(context.Background()), "shutdown before start")
		})
	}
}

func TestMetricsServer_Healthz(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: newPrometheusProvider(t)})
	require.NoError(t, err)

	rec := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// A callable and a webhook trigger flow through the instrumented stack and
// show up on the scrape endpoint.
func TestMetricsServer_ScrapesSyncActivity(t *testing.T) {
	provider := newPrometheusProvider(t)
	metrics := provider.Metrics()

	st := store.NewMemoryStore()
	cal := &fakeCalendar{}
	rt := triggers.New(calsync.NewDispatcher(st, cal, nil), triggers.WithMetrics(metrics))
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	auth, err := NewAuthenticator(testSecret, "household-app")
	require.NoError(t, err)

	sc := NewServerContext(context.Background(), calsync.NewService(fakeAuthorizer{}, st, cal, nil),
		WithRuntime(rt), WithStore(st), WithMetrics(metrics))
	t.Cleanup(func() { _ = sc.Shutdown() })
	h := newTestHTTPServer(t, &testEnv{sc: sc, store: st, cal: cal, auth: auth}, "")

	token, err := auth.IssueToken("u1", time.Hour)
	require.NoError(t, err)
	rec, _ := doCallable(t, h, "createCalendarEvent", token,
		`{"data":{"kind":"simpleTask","title":"Buy soil","dueDate":"2024-06-01T09:00:00Z"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	due := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	rec = postTrigger(t, h, store.Change{
		Collection: records.CollectionProjects,
		Phase:      store.PhaseCreate,
		UserID:     "u1",
		RecordID:   "p1",
		After:      &records.Record{ID: "p1", UserID: "u1", Title: "Paint shed", DueDate: &due},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider})
	require.NoError(t, err)
	rec = get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	for _, want := range []string{
		"callable_invocations_total{",
		`callable="createCalendarEvent"`,
		`surface="http"`,
		"calendar_sync_triggers_total{",
		`collection="projects"`,
		`outcome="synced"`,
		"calendar_sync_trigger_duration_seconds_count{",
		"http_requests_total{",
	} {
		assert.Contains(t, body, want)
	}
}
