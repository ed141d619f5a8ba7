package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appLog "studyplan/internal/log"
	"studyplan/internal/model"
	"studyplan/internal/recurrence"
	"studyplan/internal/store"
)

// importNamespace seeds the name-based ids of imported sessions, so the same
// occurrence maps to the same session on every sync.
var importNamespace = uuid.MustParse("5b0f6c1e-8f43-4a4e-9d55-3f0f2b7c9a11")

// Importer turns parsed calendar events into sessions.
type Importer struct {
	// Location is the wall clock sessions are recorded in.
	Location       *time.Location
	MaxOccurrences int
	// HorizonDays caps recurring events at this many days after Now.
	HorizonDays int
	Now         func() time.Time
}

// Sessions expands events of src into one session per occurrence. Recurring
// events go through the rule codec and the expander with their EXDATEs as
// exceptions; a RECURRENCE-ID override takes the slot of the occurrence it
// replaces. All-day and unreadable events are skipped.
func (im *Importer) Sessions(src Source, events []ParsedEvent) []model.Session {
	loc := im.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if im.Now != nil {
		now = im.Now
	}
	h := recurrence.Horizon{MaxOccurrences: im.MaxOccurrences}
	if im.HorizonDays > 0 {
		h.Until = recurrence.DateOf(now().In(loc)).AddDate(0, 0, im.HorizonDays)
	}

	overrides := make(map[string]map[time.Time]ParsedEvent)
	for _, ev := range events {
		if ev.RecurrenceID == nil {
			continue
		}
		if overrides[ev.UID] == nil {
			overrides[ev.UID] = make(map[time.Time]ParsedEvent)
		}
		overrides[ev.UID][recurrence.DateOf(ev.RecurrenceID.In(loc))] = ev
	}

	var out []model.Session
	for _, ev := range events {
		if ev.RecurrenceID != nil || ev.AllDay {
			continue
		}
		dates, err := im.occurrences(ev, loc, h)
		if err != nil {
			appLog.Warn("skipping calendar event", "calendar", src.ID, "uid", ev.UID, "err", err)
			continue
		}

		own := overrides[ev.UID]
		for _, d := range dates {
			occ := ev
			if o, ok := own[d]; ok {
				occ = o
				delete(own, d)
			}
			s, err := im.session(src, ev.UID, d, occ, loc)
			if err != nil {
				appLog.Warn("skipping calendar occurrence", "calendar", src.ID, "uid", ev.UID, "date", d.Format("2006-01-02"), "err", err)
				continue
			}
			out = append(out, s)
		}
	}

	// Overrides whose original slot is gone from the expansion still stand on
	// their own.
	for uid, own := range overrides {
		for d, o := range own {
			if o.AllDay {
				continue
			}
			s, err := im.session(src, uid, d, o, loc)
			if err != nil {
				appLog.Warn("skipping calendar override", "calendar", src.ID, "uid", uid, "err", err)
				continue
			}
			out = append(out, s)
		}
	}
	store.SortSessions(out)
	return out
}

func (im *Importer) occurrences(ev ParsedEvent, loc *time.Location, h recurrence.Horizon) ([]time.Time, error) {
	anchor := recurrence.DateOf(ev.Start.In(loc))
	if ev.RawRRule == "" {
		return []time.Time{anchor}, nil
	}

	p, err := recurrence.Decode(ev.RawRRule)
	if err != nil {
		return nil, err
	}
	if p.Frequency == recurrence.Weekly && len(p.ByDay) == 0 {
		p.ByDay = []recurrence.Weekday{recurrence.WeekdayOf(anchor)}
		p = p.Normalize()
	}
	ex := make([]time.Time, 0, len(ev.ExDates))
	for _, d := range ev.ExDates {
		ex = append(ex, recurrence.DateOf(d.In(loc)))
	}
	return recurrence.Dates(anchor, p, ex, h)
}

// session builds the stored form of occurrence occ of uid originally due on
// slot. The id depends on the slot, not on where an override moved it.
func (im *Importer) session(src Source, uid string, slot time.Time, occ ParsedEvent, loc *time.Location) (model.Session, error) {
	if occ.End.IsZero() || !occ.End.After(occ.Start) {
		return model.Session{}, errors.New("event has no positive duration")
	}
	if occ.End.Sub(occ.Start) >= 24*time.Hour {
		return model.Session{}, errors.New("event spans a whole day or more")
	}

	start := occ.Start.In(loc)
	end := occ.End.In(loc)
	date := slot
	if occ.RecurrenceID != nil {
		date = recurrence.DateOf(start)
	}

	name := src.ID + "|" + uid + "|" + slot.Format("2006-01-02")
	s := model.Session{
		ID:        uuid.NewSHA1(importNamespace, []byte(name)).String(),
		OwnerID:   src.OwnerID,
		CourseID:  model.StringPtr(src.CourseID),
		Date:      date,
		StartTime: start.Format(model.ClockLayout),
		EndTime:   end.Format(model.ClockLayout),
		Title:     occ.Summary,
		ForeignID: src.ID + ":" + uid,
	}
	d, err := model.DurationMinutes(s.StartTime, s.EndTime)
	if err != nil {
		return model.Session{}, err
	}
	s.DurationMinutes = d
	return s, nil
}

// Sink receives imported sessions. Each call carries every session of one
// source, so the sink may drop what the feed no longer lists.
// planner.Service satisfies it.
type Sink interface {
	ImportSessions(ctx context.Context, owner, source string, sessions []model.Session) (int, error)
}

// Syncer runs fetch, parse, import and store for a set of sources.
type Syncer struct {
	Fetcher  *Fetcher
	Importer *Importer
	Sink     Sink
}

// SyncAll processes every source and keeps going past failing ones. It
// returns the number of sessions stored and the per-source errors.
func (s *Syncer) SyncAll(ctx context.Context, sources []Source) (int, []error) {
	total := 0
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.Sync(ctx, src)
		if err != nil {
			appLog.Error("calendar sync failed", err, "calendar", src.ID)
			errs = append(errs, err)
			continue
		}
		total += n
	}
	appLog.Info("calendar sync finished", "sources", len(sources), "sessions", total, "failed", len(errs))
	return total, errs
}

// Sync imports a single source.
func (s *Syncer) Sync(ctx context.Context, src Source) (int, error) {
	if src.OwnerID == "" {
		return 0, fmt.Errorf("calendar %s: no owner configured", src.ID)
	}
	res, err := s.Fetcher.Fetch(ctx, src)
	if err != nil {
		return 0, err
	}
	events, err := ParseICS(src, res.Body, s.Importer.Location)
	if err != nil {
		return 0, err
	}
	sessions := s.Importer.Sessions(src, events)
	n, err := s.Sink.ImportSessions(ctx, src.OwnerID, src.ID, sessions)
	if err != nil {
		return 0, fmt.Errorf("calendar %s: %w", src.ID, err)
	}
	appLog.Info("calendar imported", "calendar", src.ID, "owner", src.OwnerID,
		"events", len(events), "sessions", n, "from_cache", res.FromCache)
	return n, nil
}
