// Package store persists household records and per-user calendar credentials.
//
// Two implementations share the Store interface: SQLiteStore for deployments
// and MemoryStore for tests. Every committed record mutation is published as a
// Change to an optional Sink, which is how the trigger runtime learns about
// creates, updates and deletes. Writing the calendar mapping back onto a
// record publishes an update like any other write.
//
// Credentials live on the user profile. SaveCredential merges the incoming
// token with the stored one so a refresh response without a refresh token
// never erases the stored refresh token.
package store
