package records

import (
	"fmt"
	"time"
)

// Kind identifies which household record type a document represents.
type Kind string

const (
	KindCareTask   Kind = "careTask"
	KindProject    Kind = "project"
	KindSimpleTask Kind = "simpleTask"
)

// Collection names in the document store.
const (
	CollectionTasks       = "tasks"
	CollectionProjects    = "projects"
	CollectionSimpleTasks = "simpleTasks"
	CollectionUsers       = "users"
)

// Collections lists the record collections that are synchronized to the calendar.
var Collections = []string{CollectionTasks, CollectionProjects, CollectionSimpleTasks}

// KindForCollection maps a collection name to the record kind stored in it.
func KindForCollection(collection string) (Kind, error) {
	switch collection {
	case CollectionTasks:
		return KindCareTask, nil
	case CollectionProjects:
		return KindProject, nil
	case CollectionSimpleTasks:
		return KindSimpleTask, nil
	default:
		return "", fmt.Errorf("unknown record collection %q", collection)
	}
}

// Collection returns the collection records of this kind live in.
func (k Kind) Collection() string {
	switch k {
	case KindCareTask:
		return CollectionTasks
	case KindProject:
		return CollectionProjects
	default:
		return CollectionSimpleTasks
	}
}

// ParseKind accepts the kind names used by clients. An empty string means a simple task.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindSimpleTask, nil
	case KindCareTask, KindProject, KindSimpleTask:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown record kind %q", s)
	}
}

// Record is a synchronizable household record: a plant care task, a project
// or a simple task. CalendarEventID is the weak link to the remote calendar
// event and is nil while the record is unsynced.
type Record struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Kind            Kind       `json:"kind"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	Completed       bool       `json:"completed"`
	CalendarEventID *string    `json:"calendarEventId,omitempty"`
	PlantName       string     `json:"plantName,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// EventID returns the mapped calendar event id, or "" when the record is unsynced.
func (r *Record) EventID() string {
	if r == nil || r.CalendarEventID == nil {
		return ""
	}
	return *r.CalendarEventID
}

// Synced reports whether the record is linked to a remote calendar event.
func (r *Record) Synced() bool {
	return r.EventID() != ""
}

// Clone returns a deep copy so snapshots handed to triggers cannot be mutated.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.DueDate != nil {
		d := *r.DueDate
		c.DueDate = &d
	}
	if r.CalendarEventID != nil {
		id := *r.CalendarEventID
		c.CalendarEventID = &id
	}
	return &c
}

// StringPtr is a helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}

// TimePtr is a helper for optional time fields.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// SameDueDate reports whether two optional due dates denote the same instant.
func SameDueDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
