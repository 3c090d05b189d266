// Package records defines the household documents that are synchronized to
// Google Calendar (care tasks, projects and simple tasks) and the user profile
// that carries each user's calendar credential.
package records
