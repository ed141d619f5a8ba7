package calsync

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"studyplan/internal/model"
)

// Export renders sessions as a VCALENDAR with one VEVENT per session. Wall
// clock times are read in loc and written as UTC.
func Export(calName string, sessions []model.Session, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//studyplan//sessions//EN")
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, s := range sessions {
		start, end, err := sessionSpan(s, loc)
		if err != nil {
			return "", fmt.Errorf("session %s: %w", s.ID, err)
		}
		ev := cal.AddEvent(s.ID)
		modified := time.UnixMilli(s.LastModified).UTC()
		ev.SetDtStampTime(modified)
		ev.SetModifiedAt(modified)
		ev.SetStartAt(start)
		ev.SetEndAt(end)
		if s.Title != "" {
			ev.SetSummary(s.Title)
		} else {
			ev.SetSummary("Study session")
		}
		if s.CourseID != nil {
			ev.SetProperty(ical.ComponentProperty("X-STUDYPLAN-COURSE"), *s.CourseID)
		}
		if s.Completed {
			ev.SetProperty(ical.ComponentPropertyStatus, "CONFIRMED")
		} else {
			ev.SetProperty(ical.ComponentPropertyStatus, "TENTATIVE")
		}
	}
	return cal.Serialize(), nil
}

// sessionSpan places a session on the wall clock of loc. A session whose
// end precedes its start ends the next day.
func sessionSpan(s model.Session, loc *time.Location) (time.Time, time.Time, error) {
	st, err := time.Parse(model.ClockLayout, s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := s.Date.Date()
	start := time.Date(y, m, d, st.Hour(), st.Minute(), 0, 0, loc)
	return start, start.Add(time.Duration(s.DurationMinutes) * time.Minute), nil
}
