package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/logging"
	"github.com/teemow/calsync/internal/records"
	"github.com/teemow/calsync/internal/store"
)

// Session is an authenticated Google API session for one user.
type Session struct {
	UserID string

	source oauth2.TokenSource
	client *http.Client
}

// HTTPClient returns a client that authorizes requests and refreshes the
// access token when needed.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Token returns the current token, refreshing it if it expired.
func (s *Session) Token() (*oauth2.Token, error) {
	return s.source.Token()
}

// SessionFactory creates sessions from stored credentials.
type SessionFactory struct {
	oauth  *OAuth
	creds  store.CredentialStore
	logger *slog.Logger
}

// NewSessionFactory creates a session factory.
func NewSessionFactory(oauth *OAuth, creds store.CredentialStore, logger *slog.Logger) *SessionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionFactory{oauth: oauth, creds: creds, logger: logger}
}

// GetSession builds a session for userID. It fails with store.ErrNoCredential
// when the user never completed the consent flow.
func (f *SessionFactory) GetSession(ctx context.Context, userID string) (*Session, error) {
	cred, err := f.creds.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential for %s: %w", logging.AnonymizeUserID(userID), err)
	}

	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.Expiry(),
	}

	src := &persistingTokenSource{
		ctx:     context.WithoutCancel(ctx),
		userID:  userID,
		base:    f.oauth.tokenSource(ctx, tok),
		last:    tok.AccessToken,
		creds:   f.creds,
		metrics: f.oauth.metrics,
		logger:  f.logger,
	}

	client := oauth2.NewClient(f.oauth.clientContext(ctx), src)
	return &Session{UserID: userID, source: src, client: client}, nil
}

// persistingTokenSource writes refreshed tokens back to the credential store.
type persistingTokenSource struct {
	ctx     context.Context
	userID  string
	base    oauth2.TokenSource
	creds   store.CredentialStore
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		s.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if tok.AccessToken == s.last {
		return tok, nil
	}

	s.last = tok.AccessToken
	s.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultSuccess)

	// The refreshed token is still usable when the write fails.
	if err := s.creds.SaveCredential(s.ctx, s.userID, CredentialFromToken(tok)); err != nil {
		s.logger.Warn("Failed to save refreshed token",
			logging.UserHash(s.userID),
			logging.Err(err))
	}
	return tok, nil
}

// CredentialFromToken converts an OAuth token to the stored credential form.
func CredentialFromToken(tok *oauth2.Token) records.CalendarConfig {
	return records.CalendarConfig{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiryDate:   records.ExpiryMillis(tok.Expiry),
	}
}
