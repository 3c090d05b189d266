// Package calendar provides a small client for the Google Calendar events API.
//
// Only the three operations the synchronization engine needs are exposed:
// inserting an event, patching selected fields of an event, and deleting an
// event. Reminders are always sent as explicit overrides with useDefault=false
// so the account's default reminders never apply to synchronized events.
//
// Example usage:
//
//	client, err := calendar.NewClient(ctx, session.HTTPClient())
//	if err != nil {
//	    return err
//	}
//	id, err := client.InsertEvent(ctx, calendar.PrimaryCalendarID, input)
package calendar
