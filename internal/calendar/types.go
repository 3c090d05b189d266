package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// PrimaryCalendarID addresses the authenticated user's default calendar.
const PrimaryCalendarID = "primary"

// DefaultTimeZone is used when an input carries no time zone.
const DefaultTimeZone = "UTC"

// Reminder methods understood by Google Calendar.
const (
	ReminderPopup = "popup"
	ReminderEmail = "email"
)

// Reminder is a single reminder override.
type Reminder struct {
	Method  string `json:"method"`
	Minutes int64  `json:"minutes"`
}

// EventInput represents the full payload for creating a calendar event.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Reminders   []Reminder
}

// EventPatch represents a partial update. Nil fields are left untouched on
// the remote event; a nil Reminders slice keeps the remote reminders.
type EventPatch struct {
	Summary     *string
	Description *string
	Start       *time.Time
	End         *time.Time
	TimeZone    string
	Reminders   []Reminder
}

// Empty reports whether the patch would not change anything.
func (p EventPatch) Empty() bool {
	return p.Summary == nil && p.Description == nil && p.Start == nil && p.End == nil && p.Reminders == nil
}

func eventDateTime(t time.Time, tz string) *calendar.EventDateTime {
	if tz == "" {
		tz = DefaultTimeZone
	}
	return &calendar.EventDateTime{
		DateTime: t.UTC().Format(time.RFC3339),
		TimeZone: tz,
	}
}

// eventReminders always sends useDefault=false. The field is a plain bool in
// the generated client, so it must be forced or it would be dropped as empty.
func eventReminders(reminders []Reminder) *calendar.EventReminders {
	overrides := make([]*calendar.EventReminder, 0, len(reminders))
	for _, r := range reminders {
		overrides = append(overrides, &calendar.EventReminder{
			Method:          r.Method,
			Minutes:         r.Minutes,
			ForceSendFields: []string{"Minutes"},
		})
	}
	return &calendar.EventReminders{
		UseDefault:      false,
		Overrides:       overrides,
		ForceSendFields: []string{"UseDefault"},
	}
}

// toEvent converts an EventInput to the Google Calendar representation.
func toEvent(input EventInput) *calendar.Event {
	return &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Start:       eventDateTime(input.Start, input.TimeZone),
		End:         eventDateTime(input.End, input.TimeZone),
		Reminders:   eventReminders(input.Reminders),
	}
}

// toPatchEvent converts an EventPatch to a sparse Google Calendar event.
func toPatchEvent(patch EventPatch) *calendar.Event {
	event := &calendar.Event{}
	if patch.Summary != nil {
		event.Summary = *patch.Summary
		event.ForceSendFields = append(event.ForceSendFields, "Summary")
	}
	if patch.Description != nil {
		event.Description = *patch.Description
		event.ForceSendFields = append(event.ForceSendFields, "Description")
	}
	if patch.Start != nil {
		event.Start = eventDateTime(*patch.Start, patch.TimeZone)
	}
	if patch.End != nil {
		event.End = eventDateTime(*patch.End, patch.TimeZone)
	}
	if patch.Reminders != nil {
		event.Reminders = eventReminders(patch.Reminders)
	}
	return event
}
