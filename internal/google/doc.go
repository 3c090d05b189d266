// Package google builds authenticated Google API sessions for calsync users.
//
// OAuth holds the explicit client configuration (client id, secret and
// redirect URI) and drives the consent flow: AuthURL asks for offline access
// with forced consent so a refresh token is always issued, and Exchange
// trades an authorization code for tokens.
//
// SessionFactory reads a user's stored credential and returns a Session whose
// HTTP client refreshes the access token transparently. Every refreshed token
// is written back to the credential store.
package google
