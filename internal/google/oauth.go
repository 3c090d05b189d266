package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/calsync/internal/instrumentation"
)

// Config is the OAuth client configuration for the Google Calendar integration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides the Google OAuth endpoint. Zero means google.Endpoint.
	Endpoint oauth2.Endpoint

	// HTTPClient is used for token exchange and refresh requests.
	HTTPClient *http.Client
}

// Validate checks that the client credentials are present.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("google client id is required")
	}
	if c.ClientSecret == "" {
		return errors.New("google client secret is required")
	}
	if c.RedirectURL == "" {
		return errors.New("google redirect url is required")
	}
	return nil
}

// OAuth drives the Google consent flow.
type OAuth struct {
	conf       *oauth2.Config
	httpClient *http.Client
	metrics    *instrumentation.Metrics
}

// NewOAuth creates an OAuth flow from cfg.
func NewOAuth(cfg Config) (*OAuth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	return &OAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       CalendarScopes,
		},
		httpClient: cfg.HTTPClient,
	}, nil
}

// WithMetrics records OAuth exchange and refresh outcomes.
func (o *OAuth) WithMetrics(m *instrumentation.Metrics) *OAuth {
	o.metrics = m
	return o
}

// AuthURL returns the consent URL. Consent is always forced so that Google
// issues a refresh token even when the user already granted access.
func (o *OAuth) AuthURL(state string) string {
	return o.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	tok, err := o.conf.Exchange(o.clientContext(ctx), code)
	if err != nil {
		o.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	o.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	return tok, nil
}

// tokenSource returns a source that refreshes tok when it expires.
func (o *OAuth) tokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return o.conf.TokenSource(o.clientContext(ctx), tok)
}

func (o *OAuth) clientContext(ctx context.Context) context.Context {
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	return ctx
}
