package model

import (
	"errors"
	"fmt"
	"time"
)

// ClockLayout is the wall clock format of session start/end times.
const ClockLayout = "15:04"

// Course is a unit of study sized in ECTS credits. The hour fields are
// derived from its sessions and are only written through hour
// reconciliation.
type Course struct {
	ID      string
	OwnerID string
	Name    string
	ECTS    float64

	// EstimatedHours is ECTS times the configured hours per credit.
	EstimatedHours float64
	CompletedHours float64
	ScheduledHours float64

	// FullyCompleted marks a course the student considers finished, whatever
	// its session hours say.
	FullyCompleted bool

	CreatedAt time.Time
}

// Session is one concrete study session, standalone or generated from a
// recurring series.
type Session struct {
	ID      string
	OwnerID string
	// CourseID is nil for unassigned "blocker" sessions.
	CourseID *string

	Date      time.Time // calendar date, UTC midnight
	StartTime string    // HH:MM
	EndTime   string    // HH:MM
	// DurationMinutes is always recomputed from StartTime/EndTime.
	DurationMinutes int

	Title                string
	Completed            bool
	CompletionPercentage int

	// LastModified is a unix-milli timestamp; newer wins on dedup.
	LastModified int64

	// RecurringSeriesID is the anchor session's id for series members (the
	// anchor included) and nil for standalone sessions.
	RecurringSeriesID *string
	// IsExceptionInstance marks a series member edited on its own.
	IsExceptionInstance bool

	// RecurrenceRule and ExceptionDates are only set on a series anchor.
	RecurrenceRule string
	ExceptionDates []time.Time

	// ForeignID links a session to an external calendar event.
	ForeignID string
}

// IsAnchor reports whether s carries a recurrence pattern.
func (s Session) IsAnchor() bool {
	return s.RecurrenceRule != ""
}

// CourseKey returns the course id or "" for unassigned sessions.
func (s Session) CourseKey() string {
	if s.CourseID == nil {
		return ""
	}
	return *s.CourseID
}

// SeriesKey returns the series id or "".
func (s Session) SeriesKey() string {
	if s.RecurringSeriesID == nil {
		return ""
	}
	return *s.RecurringSeriesID
}

// Hours is the session duration in hours.
func (s Session) Hours() float64 {
	if s.DurationMinutes <= 0 {
		return 0
	}
	return float64(s.DurationMinutes) / 60
}

// Program is the student's study program; PriorECTS is credit earned before
// using the planner.
type Program struct {
	OwnerID      string
	PriorECTS    float64
	HoursPerECTS float64
}

// PriorHours converts the prior credit to hours.
func (p Program) PriorHours() float64 {
	return p.PriorECTS * p.HoursPerECTS
}

// ErrEmptySpan is returned for a session that starts and ends at the same
// minute.
var ErrEmptySpan = errors.New("session has no duration")

// DurationMinutes computes the wall clock span between two HH:MM times. An
// end earlier than the start is read as crossing midnight; equal times are
// rejected.
func DurationMinutes(start, end string) (int, error) {
	st, err := time.Parse(ClockLayout, start)
	if err != nil {
		return 0, fmt.Errorf("start time %q: %w", start, err)
	}
	et, err := time.Parse(ClockLayout, end)
	if err != nil {
		return 0, fmt.Errorf("end time %q: %w", end, err)
	}
	d := et.Sub(st)
	if d == 0 {
		return 0, fmt.Errorf("start and end are both %s: %w", start, ErrEmptySpan)
	}
	if d < 0 {
		d += 24 * time.Hour
	}
	return int(d / time.Minute), nil
}

// StringPtr returns nil for "" and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
