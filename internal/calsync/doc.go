// Package calsync is the calendar synchronization engine.
//
// Dispatcher reacts to record changes: it inserts a remote event when a
// record with a due date is created, reschedules it when the due date moves,
// removes it when the record is completed or deleted, and owns the
// calendarEventId mapping on the record. Its handlers report an Outcome and
// an error; callers decide what to do with failures.
//
// Service implements the user-invoked operations (OAuth bootstrap, direct
// event create/update/delete, disconnect and status). Its failures are typed
// as *Error with one of the Code values, so transports can map them to their
// own status codes.
package calsync
