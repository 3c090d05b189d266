// Package logging provides structured logging utilities for calsync.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Attach the identity of the record a trigger is working on:
//
//	logger := logging.WithRecord(slog.Default(), userID, "tasks", recordID)
//	logger.Info("calendar event created", logging.EventID(id))
//
// Never log OAuth tokens directly:
//
//	logger.Debug("token refreshed", "access_token", logging.SanitizeToken(tok.AccessToken))
package logging
