// Package resources provides MCP resources describing the calendar sync state
// of the current user. Resources are read-only: the connection state of the
// user's calendar and the records that have a due date but no calendar event.
package resources
