package calsync

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "studyplan/internal/log"
)

// ParsedEvent is one VEVENT reduced to what the importer needs. Times carry
// the location they were declared in.
type ParsedEvent struct {
	UID         string
	Summary     string
	Description string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	// RecurrenceID is set for a VEVENT that overrides one occurrence of a
	// recurring event with the same UID.
	RecurrenceID *time.Time
}

// ParseICS reads every VEVENT of body. Floating times and bare EXDATE values
// are read in loc. Events that cannot be read are logged and skipped.
func ParseICS(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("calendar %s: empty body", src.ID)
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", src.ID, err)
	}

	var events []ParsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			appLog.Warn("skipping unreadable event", "calendar", src.ID, "uid", ev.UID, "err", err)
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("calendar parsed", "calendar", src.ID, "events", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	if isDateValue(dtStart) {
		// All-day entries are not study sessions; the importer drops them.
		out.AllDay = true
		return out, nil
	}

	start, err := propTime(dtStart, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, err := propTime(dtEnd, loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseICSTime(part, paramLocation(p, loc))
			if err != nil {
				appLog.Warn("ignoring bad EXDATE", "uid", out.UID, "value", part)
				continue
			}
			out.ExDates = append(out.ExDates, t)
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, err := propTime(p, loc)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.RecurrenceID = &t
	}
	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, paramLocation(p, loc))
}

// paramLocation honours a TZID parameter the runtime knows, else def.
func paramLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			return l
		}
	}
	return def
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
