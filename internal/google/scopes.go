package google

import calendar "google.golang.org/api/calendar/v3"

// CalendarScopes are the scopes requested when a user connects a calendar.
// Events are written to the primary calendar, so full calendar access is
// required.
var CalendarScopes = []string{
	calendar.CalendarScope,
}
