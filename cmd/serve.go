package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/google"
	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/logging"
	"github.com/teemow/calsync/internal/resources"
	"github.com/teemow/calsync/internal/server"
	"github.com/teemow/calsync/internal/store"
	"github.com/teemow/calsync/internal/tools/calendar_tools"
	"github.com/teemow/calsync/internal/triggers"
)

const (
	transportHTTP  = "http"
	transportStdio = "stdio"

	// defaultDBFile is the database location relative to the XDG data home.
	defaultDBFile = "calsync/calsync.db"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// GoogleConfig holds the OAuth client registered with Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// AuthConfig holds the caller token settings.
type AuthConfig struct {
	JWTSecret     string
	JWTIssuer     string
	TriggerSecret string
}

// ServeConfig is the resolved configuration of the serve command.
type ServeConfig struct {
	Transport     string
	HTTPAddr      string
	DBPath        string
	EncryptionKey string
	DefaultUser   string
	ReadOnly      bool
	Debug         bool
	LogFormat     string

	TriggerConcurrency int
	TriggerTimeout     time.Duration

	Google  GoogleConfig
	Auth    AuthConfig
	Metrics MetricsConfig
}

func newServeCmd() *cobra.Command {
	var (
		cfg  ServeConfig
		yolo bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the calendar sync service",
		Long: `Run the calendar sync service.

Supports two transport types:
  - http: callable operations on POST /callable/{name}, the trigger webhook
    on POST /triggers and health probes (default)
  - stdio: the calendar operations as MCP tools for a single user

Record changes written through the local store are synchronized to Google
Calendar in the background. External document stores deliver their changes
to the trigger webhook.

Google OAuth client (required):
  --google-client-id, --google-client-secret, --google-redirect-url
  OR GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URL env vars

Caller tokens (http transport):
  --jwt-secret OR CALSYNC_JWT_SECRET (HS256, at least 32 bytes)

Safety Mode (stdio transport):
  By default only calendar_status and calendar_init_auth are exposed.
  Use --yolo to enable the tools that change the calendar.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.ReadOnly = !yolo
			if err := resolveServeConfig(cmd, &cfg); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	bindServeFlags(cmd, &cfg, &yolo)

	return cmd
}

// bindServeFlags registers the serve flags on cmd.
func bindServeFlags(cmd *cobra.Command, cfg *ServeConfig, yolo *bool) {
	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", string(logging.FormatText), "Log format: text or json. Can also use LOG_FORMAT env var.")
	cmd.Flags().StringVar(&cfg.Transport, "transport", transportHTTP, "Transport type: http or stdio")
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address (for http transport). Can also use CALSYNC_HTTP_ADDR env var.")
	cmd.Flags().BoolVar(yolo, "yolo", false, "Expose MCP tools that change the calendar (stdio transport). Default is read-only mode.")
	cmd.Flags().StringVar(&cfg.DBPath, "db-path", "", "SQLite database path. Can also use CALSYNC_DB_PATH env var. Default: $XDG_DATA_HOME/"+defaultDBFile)
	cmd.Flags().StringVar(&cfg.EncryptionKey, "encryption-key", "", "AES-256 key for OAuth tokens at rest (32 bytes, base64 encoded). Can also use CALSYNC_ENCRYPTION_KEY env var. Generate with: openssl rand -base64 32")
	cmd.Flags().StringVar(&cfg.DefaultUser, "user", "", "User the MCP tools act for (stdio transport). Can also use CALSYNC_DEFAULT_USER env var.")

	cmd.Flags().IntVar(&cfg.TriggerConcurrency, "trigger-concurrency", triggers.DefaultConcurrency, "Record changes synchronized concurrently. Can also use CALSYNC_TRIGGER_CONCURRENCY env var.")
	cmd.Flags().DurationVar(&cfg.TriggerTimeout, "trigger-timeout", triggers.DefaultTimeout, "Time limit for synchronizing one record change")

	cmd.Flags().StringVar(&cfg.Google.ClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.Google.ClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&cfg.Google.RedirectURL, "google-redirect-url", "", "OAuth redirect URL registered with Google. Can also use GOOGLE_REDIRECT_URL env var.")

	cmd.Flags().StringVar(&cfg.Auth.JWTSecret, "jwt-secret", "", "HS256 secret for caller tokens. Can also use CALSYNC_JWT_SECRET env var.")
	cmd.Flags().StringVar(&cfg.Auth.JWTIssuer, "jwt-issuer", "", "Required issuer of caller tokens. Can also use CALSYNC_JWT_ISSUER env var.")
	cmd.Flags().StringVar(&cfg.Auth.TriggerSecret, "trigger-secret", "", "Bearer secret required on the trigger webhook. Can also use CALSYNC_TRIGGER_SECRET env var.")

	cmd.Flags().BoolVar(&cfg.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

// resolveServeConfig fills unset flags from the environment and validates
// the result. Flags given on the command line always win.
func resolveServeConfig(cmd *cobra.Command, cfg *ServeConfig) error {
	flags := cmd.Flags()
	fromEnv := func(flag string, dst *string, key string) {
		if !flags.Changed(flag) {
			if v := os.Getenv(key); v != "" {
				*dst = v
			}
		}
	}

	fromEnv("log-format", &cfg.LogFormat, "LOG_FORMAT")
	fromEnv("http-addr", &cfg.HTTPAddr, "CALSYNC_HTTP_ADDR")
	fromEnv("db-path", &cfg.DBPath, "CALSYNC_DB_PATH")
	fromEnv("encryption-key", &cfg.EncryptionKey, "CALSYNC_ENCRYPTION_KEY")
	fromEnv("user", &cfg.DefaultUser, "CALSYNC_DEFAULT_USER")
	fromEnv("google-client-id", &cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	fromEnv("google-client-secret", &cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	fromEnv("google-redirect-url", &cfg.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
	fromEnv("jwt-secret", &cfg.Auth.JWTSecret, "CALSYNC_JWT_SECRET")
	fromEnv("jwt-issuer", &cfg.Auth.JWTIssuer, "CALSYNC_JWT_ISSUER")
	fromEnv("trigger-secret", &cfg.Auth.TriggerSecret, "CALSYNC_TRIGGER_SECRET")
	fromEnv("metrics-addr", &cfg.Metrics.Addr, "METRICS_ADDR")

	if !flags.Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid METRICS_ENABLED value %q: %w", v, err)
			}
			cfg.Metrics.Enabled = enabled
		}
	}
	if !flags.Changed("trigger-concurrency") {
		if v := os.Getenv("CALSYNC_TRIGGER_CONCURRENCY"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid CALSYNC_TRIGGER_CONCURRENCY value %q: %w", v, err)
			}
			cfg.TriggerConcurrency = n
		}
	}

	return validateServeConfig(cfg)
}

func validateServeConfig(cfg *ServeConfig) error {
	switch cfg.Transport {
	case transportHTTP:
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("a JWT secret is required for the http transport (--jwt-secret or CALSYNC_JWT_SECRET)")
		}
	case transportStdio:
		if cfg.DefaultUser == "" {
			return fmt.Errorf("a user is required for the stdio transport (--user or CALSYNC_DEFAULT_USER)")
		}
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: http, stdio)", cfg.Transport)
	}
	if cfg.TriggerConcurrency < 1 {
		return fmt.Errorf("trigger concurrency must be at least 1, got %d", cfg.TriggerConcurrency)
	}
	return nil
}

func newLogger(cfg ServeConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, logging.Format(cfg.LogFormat), level)
}

func runServe(cfg ServeConfig) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var metrics *instrumentation.Metrics
	var auditLogger *instrumentation.AuditLogger
	if provider.Enabled() {
		metrics = provider.Metrics()
		auditLogger = instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)
	}

	st, relay, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Error closing store", logging.Err(err))
		}
	}()

	oauth, err := google.NewOAuth(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})
	if err != nil {
		return fmt.Errorf("invalid Google OAuth configuration: %w", err)
	}
	oauth.WithMetrics(metrics)

	clients := calsync.NewGoogleClients(google.NewSessionFactory(oauth, st, logger), metrics)
	triggerRuntime := triggers.New(calsync.NewDispatcher(st, clients, logger),
		triggers.WithConcurrency(cfg.TriggerConcurrency),
		triggers.WithTimeout(cfg.TriggerTimeout),
		triggers.WithLogger(logger),
		triggers.WithMetrics(metrics),
	)
	relay.attach(triggerRuntime)

	serverContext := server.NewServerContext(shutdownCtx,
		calsync.NewService(oauth, st, clients, logger),
		server.WithRuntime(triggerRuntime),
		server.WithStore(st),
		server.WithMetrics(metrics),
		server.WithAuditLogger(auditLogger),
		server.WithDefaultUser(cfg.DefaultUser),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := triggerRuntime.Shutdown(ctx); err != nil {
			logger.Warn("Trigger runtime did not drain", logging.Err(err))
		}
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	switch cfg.Transport {
	case transportStdio:
		return runStdioServer(serverContext, cfg, logger)
	default:
		return runHTTPServer(shutdownCtx, serverContext, cfg, provider, logger)
	}
}

// runtimeRelay forwards store changes to the trigger runtime once it exists.
// The store is opened first because the runtime's dispatcher reads from it.
type runtimeRelay struct {
	runtime *triggers.Runtime
}

func (r *runtimeRelay) attach(rt *triggers.Runtime) {
	r.runtime = rt
}

func (r *runtimeRelay) Publish(ctx context.Context, change store.Change) {
	if r.runtime != nil {
		r.runtime.Publish(ctx, change)
	}
}

func openStore(cfg ServeConfig, logger *slog.Logger) (store.Store, *runtimeRelay, error) {
	key, err := store.EncryptionKeyFromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	encryption, err := store.NewTokenEncryption(key)
	if err != nil {
		return nil, nil, err
	}
	if !encryption.Enabled() {
		logger.Warn("OAuth tokens are stored unencrypted (set CALSYNC_ENCRYPTION_KEY)")
	}

	path := cfg.DBPath
	if path == "" {
		path, err = xdg.DataFile(defaultDBFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
	}

	relay := &runtimeRelay{}
	st, err := store.OpenSQLite(path,
		store.WithSink(relay),
		store.WithLogger(logger),
		store.WithEncryption(encryption),
	)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Opened record store", "path", path)
	return st, relay, nil
}

func runStdioServer(sc *server.ServerContext, cfg ServeConfig, logger *slog.Logger) error {
	mcpSrv := mcpserver.NewMCPServer("calsync", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	if cfg.ReadOnly {
		logger.Info("Starting MCP server in READ-ONLY mode (use --yolo to enable calendar changes)")
	}
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, sc, cfg.ReadOnly, logger); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}
	if err := resources.RegisterUserResources(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register user resources: %w", err)
	}

	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, sc *server.ServerContext, cfg ServeConfig, provider *instrumentation.Provider, logger *slog.Logger) error {
	auth, err := server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	if cfg.Auth.TriggerSecret == "" {
		logger.Warn("Trigger webhook accepts unauthenticated deliveries (set CALSYNC_TRIGGER_SECRET)")
	}

	httpServer, err := server.NewHTTPServer(sc, server.HTTPServerConfig{
		Addr:          cfg.HTTPAddr,
		Authenticator: auth,
		TriggerSecret: cfg.Auth.TriggerSecret,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() && provider.MetricsHandler() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, stopping servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			err = errors.Join(err, metricsServer.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}
