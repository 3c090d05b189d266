package translator

import (
	"errors"
	"fmt"
	"time"

	"github.com/teemow/calsync/internal/calendar"
	"github.com/teemow/calsync/internal/records"
)

// ErrNoDueDate is returned when a record without a due date is translated.
// Such records are never placed on the calendar.
var ErrNoDueDate = errors.New("record has no due date")

// Policy describes how one record kind is rendered as a calendar event.
type Policy struct {
	Prefix      string
	Duration    time.Duration
	Reminders   []calendar.Reminder
	Description func(title, plantName string) string
}

var policies = map[records.Kind]Policy{
	records.KindCareTask: {
		Prefix:   "Plant Care: ",
		Duration: 30 * time.Minute,
		Reminders: []calendar.Reminder{
			{Method: calendar.ReminderPopup, Minutes: 15},
			{Method: calendar.ReminderEmail, Minutes: 60},
		},
		Description: func(_, plantName string) string {
			return "Care task for plant: " + plantName
		},
	},
	records.KindProject: {
		Prefix:   "Project: ",
		Duration: 60 * time.Minute,
		Reminders: []calendar.Reminder{
			{Method: calendar.ReminderPopup, Minutes: 30},
			{Method: calendar.ReminderEmail, Minutes: 1440},
		},
		Description: func(title, _ string) string {
			return "Project deadline: " + title
		},
	},
	records.KindSimpleTask: {
		Prefix:   "Task: ",
		Duration: 30 * time.Minute,
		Reminders: []calendar.Reminder{
			{Method: calendar.ReminderPopup, Minutes: 15},
		},
		Description: func(title, _ string) string {
			return "Household task: " + title
		},
	},
}

// PolicyFor returns the rendering policy of a kind. Unknown kinds render as
// simple tasks.
func PolicyFor(kind records.Kind) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return policies[records.KindSimpleTask]
}

func (p Policy) summary(title string) string {
	return p.Prefix + title
}

func (p Policy) description(description, title, plantName string) string {
	if description != "" {
		return description
	}
	return p.Description(title, plantName)
}

func (p Policy) reminders() []calendar.Reminder {
	out := make([]calendar.Reminder, len(p.Reminders))
	copy(out, p.Reminders)
	return out
}

// ToEventInput renders a record as a full calendar event, reminders included.
func ToEventInput(rec *records.Record) (calendar.EventInput, error) {
	if rec == nil {
		return calendar.EventInput{}, fmt.Errorf("record cannot be nil")
	}
	if rec.DueDate == nil {
		return calendar.EventInput{}, ErrNoDueDate
	}

	p := PolicyFor(rec.Kind)
	start := rec.DueDate.UTC()
	return calendar.EventInput{
		Summary:     p.summary(rec.Title),
		Description: p.description(rec.Description, rec.Title, rec.PlantName),
		Start:       start,
		End:         start.Add(p.Duration),
		TimeZone:    calendar.DefaultTimeZone,
		Reminders:   p.reminders(),
	}, nil
}

// ToRescheduleInput renders the patch sent when a synced record's due date
// moves: summary, description, start and end. Reminders stay as they were
// set when the event was created.
func ToRescheduleInput(rec *records.Record) (calendar.EventPatch, error) {
	in, err := ToEventInput(rec)
	if err != nil {
		return calendar.EventPatch{}, err
	}
	return calendar.EventPatch{
		Summary:     &in.Summary,
		Description: &in.Description,
		Start:       &in.Start,
		End:         &in.End,
		TimeZone:    in.TimeZone,
	}, nil
}

// Partial is a user supplied partial update. Nil fields are absent and are
// left untouched on the remote event.
type Partial struct {
	Title       *string
	Description *string
	DueDate     *time.Time
}

// ToEventPatch renders only the fields present in a partial update.
func ToEventPatch(kind records.Kind, partial Partial) calendar.EventPatch {
	p := PolicyFor(kind)
	var patch calendar.EventPatch

	if partial.Title != nil {
		s := p.summary(*partial.Title)
		patch.Summary = &s
	}
	if partial.Description != nil {
		d := *partial.Description
		patch.Description = &d
	}
	if partial.DueDate != nil {
		start := partial.DueDate.UTC()
		end := start.Add(p.Duration)
		patch.Start = &start
		patch.End = &end
		patch.TimeZone = calendar.DefaultTimeZone
	}
	return patch
}
