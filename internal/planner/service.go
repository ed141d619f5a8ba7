// Package planner holds the session deduplicator, the hours reconciler and
// the workflow that keeps stored sessions and course hours consistent.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "studyplan/internal/log"
	"studyplan/internal/model"
	"studyplan/internal/recurrence"
	"studyplan/internal/store"
)

// ErrInvalidSession marks bad session or course input.
var ErrInvalidSession = errors.New("invalid session")

const (
	defaultHoursPerECTS   = 30
	defaultMaxOccurrences = 500
	defaultHorizonDays    = 365
	defaultSeriesLimit    = 5000
)

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	HoursPerECTS float64
	// MaxOccurrences and HorizonDays bound the expansion of open-ended
	// series.
	MaxOccurrences int
	HorizonDays    int
	// MaxSeriesOccurrences rejects bounded series that would produce more
	// sessions than this.
	MaxSeriesOccurrences int

	Now   func() time.Time
	NewID func() string
}

// Service runs session mutations as one unit each: mutate, reconcile the
// affected courses, persist. Each unit holds the owner's lock and a single
// storage transaction.
type Service struct {
	store store.Store
	opts  Options
	locks ownerLocks
}

func NewService(st store.Store, opts Options) *Service {
	if opts.HoursPerECTS <= 0 {
		opts.HoursPerECTS = defaultHoursPerECTS
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = defaultMaxOccurrences
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = defaultHorizonDays
	}
	if opts.MaxSeriesOccurrences <= 0 {
		opts.MaxSeriesOccurrences = defaultSeriesLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Service{store: st, opts: opts}
}

// NewSession is the input of CreateSession.
type NewSession struct {
	OwnerID              string
	CourseID             *string
	Date                 time.Time
	StartTime            string
	EndTime              string
	Title                string
	Completed            bool
	CompletionPercentage int

	// Pattern, if set, makes the session the anchor of a series.
	Pattern    *recurrence.Pattern
	Exceptions []time.Time
}

// SessionPatch lists the fields UpdateSession may change; nil means keep.
type SessionPatch struct {
	Date      *time.Time
	StartTime *string
	EndTime   *string
	Title     *string
	// CourseID reassigns the session; ClearCourse makes it unassigned.
	CourseID             *string
	ClearCourse          bool
	Completed            *bool
	CompletionPercentage *int
}

// seriesDates expands a pattern for storage. Only Never patterns are cut at
// the horizon; a bounded pattern is stored in full or rejected.
func (s *Service) seriesDates(anchor time.Time, p recurrence.Pattern, exceptions []time.Time) ([]time.Time, error) {
	if p.End.Kind() == recurrence.EndNever {
		return recurrence.Dates(anchor, p, exceptions, recurrence.Horizon{
			MaxOccurrences: s.opts.MaxOccurrences,
			Until:          recurrence.DateOf(anchor).AddDate(0, 0, s.opts.HorizonDays),
		})
	}
	limit := s.opts.MaxSeriesOccurrences
	dates, err := recurrence.Dates(anchor, p, exceptions, recurrence.Horizon{MaxOccurrences: limit + 1})
	if err != nil {
		return nil, err
	}
	if len(dates) > limit {
		return nil, fmt.Errorf("%w: series has more than %d occurrences", recurrence.ErrInvalidPattern, limit)
	}
	return dates, nil
}

func (s *Service) stamp() int64 {
	return s.opts.Now().UnixMilli()
}

// CreateSession stores a standalone session, or for a pattern the anchor
// plus one session per further occurrence. The anchor comes first in the
// returned slice.
func (s *Service) CreateSession(ctx context.Context, in NewSession) ([]model.Session, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidSession)
	}
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidSession)
	}
	if in.CompletionPercentage < 0 || in.CompletionPercentage > 100 {
		return nil, fmt.Errorf("%w: completion percentage must be 0-100", ErrInvalidSession)
	}
	duration, err := model.DurationMinutes(in.StartTime, in.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	base := model.Session{
		OwnerID:              in.OwnerID,
		CourseID:             in.CourseID,
		Date:                 recurrence.DateOf(in.Date),
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		DurationMinutes:      duration,
		Title:                in.Title,
		LastModified:         s.stamp(),
		CompletionPercentage: in.CompletionPercentage,
	}

	anchor := base
	anchor.ID = s.opts.NewID()
	anchor.Completed = in.Completed
	created := []model.Session{anchor}

	if in.Pattern != nil {
		p := *in.Pattern
		if p.Frequency == recurrence.Weekly && len(p.ByDay) == 0 {
			p.ByDay = []recurrence.Weekday{recurrence.WeekdayOf(base.Date)}
		}
		p = p.Normalize()

		series := recurrence.Series{Pattern: p}
		for _, d := range recurrence.NormalizeDates(in.Exceptions) {
			// The anchor is a concrete session and cannot be excluded.
			if !d.Equal(base.Date) {
				series.AddException(d)
			}
		}

		dates, err := s.seriesDates(base.Date, p, series.Exceptions)
		if err != nil {
			return nil, err
		}

		created[0].RecurringSeriesID = model.StringPtr(anchor.ID)
		created[0].RecurrenceRule = recurrence.Encode(p)
		created[0].ExceptionDates = series.Exceptions

		for _, d := range dates[1:] {
			inst := base
			inst.ID = s.opts.NewID()
			inst.Date = d
			inst.CompletionPercentage = 0
			inst.RecurringSeriesID = model.StringPtr(anchor.ID)
			created = append(created, inst)
		}
	}

	unlock := s.locks.lock(in.OwnerID)
	defer unlock()

	err = s.store.InTx(ctx, func(tx store.Store) error {
		if in.CourseID != nil {
			if err := s.checkCourse(ctx, tx, *in.CourseID, in.OwnerID); err != nil {
				return err
			}
		}
		for _, sess := range created {
			if err := tx.SaveSession(ctx, sess); err != nil {
				return err
			}
		}
		return s.reconcile(ctx, tx, anchor.CourseKey())
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("session created", "owner", in.OwnerID, "id", anchor.ID,
		"course", anchor.CourseKey(), "occurrences", len(created), "rule", created[0].RecurrenceRule)
	return created, nil
}

func (s *Service) checkCourse(ctx context.Context, tx store.Store, courseID, owner string) error {
	c, err := tx.LoadCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if c.OwnerID != owner {
		return fmt.Errorf("%w: course %s belongs to another owner", ErrInvalidSession, courseID)
	}
	return nil
}

// UpdateSession edits one session. Moving a series member (date or times)
// detaches it as an exception instance and excludes its original date from
// the series. A series anchor cannot change its date; replace the pattern
// instead.
func (s *Service) UpdateSession(ctx context.Context, id string, patch SessionPatch) (model.Session, error) {
	current, err := s.store.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}

	unlock := s.locks.lock(current.OwnerID)
	defer unlock()

	var updated model.Session
	err = s.store.InTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		next := cur

		if patch.Date != nil {
			next.Date = recurrence.DateOf(*patch.Date)
		}
		if patch.StartTime != nil {
			next.StartTime = *patch.StartTime
		}
		if patch.EndTime != nil {
			next.EndTime = *patch.EndTime
		}
		if patch.Title != nil {
			next.Title = *patch.Title
		}
		if patch.ClearCourse {
			next.CourseID = nil
		} else if patch.CourseID != nil {
			if err := s.checkCourse(ctx, tx, *patch.CourseID, cur.OwnerID); err != nil {
				return err
			}
			next.CourseID = model.StringPtr(*patch.CourseID)
		}
		if patch.Completed != nil {
			next.Completed = *patch.Completed
		}
		if patch.CompletionPercentage != nil {
			if *patch.CompletionPercentage < 0 || *patch.CompletionPercentage > 100 {
				return fmt.Errorf("%w: completion percentage must be 0-100", ErrInvalidSession)
			}
			next.CompletionPercentage = *patch.CompletionPercentage
		}

		if next.Date.IsZero() {
			return fmt.Errorf("%w: date is required", ErrInvalidSession)
		}
		next.DurationMinutes, err = model.DurationMinutes(next.StartTime, next.EndTime)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}

		moved := !next.Date.Equal(cur.Date) || next.StartTime != cur.StartTime || next.EndTime != cur.EndTime
		if moved && cur.IsAnchor() && !next.Date.Equal(cur.Date) {
			return fmt.Errorf("%w: a series anchor keeps its date; replace the pattern to move the series", ErrInvalidSession)
		}
		if moved && cur.RecurringSeriesID != nil && !cur.IsAnchor() && !cur.IsExceptionInstance {
			next.IsExceptionInstance = true
			if err := s.excludeFromSeries(ctx, tx, cur); err != nil {
				return err
			}
		}

		next.LastModified = s.stamp()
		if err := tx.SaveSession(ctx, next); err != nil {
			return err
		}
		updated = next
		return s.reconcile(ctx, tx, cur.CourseKey(), next.CourseKey())
	})
	if err != nil {
		return model.Session{}, err
	}

	appLog.Info("session updated", "owner", updated.OwnerID, "id", id,
		"course", updated.CourseKey(), "exception", updated.IsExceptionInstance)
	return updated, nil
}

// excludeFromSeries adds member's date to its anchor's exception list. A
// missing anchor is tolerated; the back-reference is weak.
func (s *Service) excludeFromSeries(ctx context.Context, tx store.Store, member model.Session) error {
	anchor, err := tx.GetSession(ctx, member.SeriesKey())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	series := recurrence.Series{Exceptions: anchor.ExceptionDates}
	series.AddException(member.Date)
	anchor.ExceptionDates = series.Exceptions
	anchor.LastModified = s.stamp()
	return tx.SaveSession(ctx, anchor)
}

// DeleteSession removes a session. Deleting a series anchor removes the
// pattern and every generated member that was not edited on its own;
// deleting a plain member excludes its date from the series.
func (s *Service) DeleteSession(ctx context.Context, id string) ([]string, error) {
	current, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(current.OwnerID)
	defer unlock()

	var deleted []string
	err = s.store.InTx(ctx, func(tx store.Store) error {
		cur, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}

		targets := []model.Session{cur}
		switch {
		case cur.IsAnchor():
			members, err := tx.LoadSessions(ctx, store.SessionFilter{OwnerID: cur.OwnerID, SeriesID: cur.ID})
			if err != nil {
				return err
			}
			for _, m := range members {
				if m.ID != cur.ID && !m.IsExceptionInstance {
					targets = append(targets, m)
				}
			}
		case cur.RecurringSeriesID != nil && !cur.IsExceptionInstance:
			if err := s.excludeFromSeries(ctx, tx, cur); err != nil {
				return err
			}
		}

		courses := make([]string, 0, len(targets))
		for _, t := range targets {
			if err := tx.DeleteSession(ctx, t.ID); err != nil {
				return err
			}
			deleted = append(deleted, t.ID)
			courses = append(courses, t.CourseKey())
		}
		return s.reconcile(ctx, tx, courses...)
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("session deleted", "owner", current.OwnerID, "id", id, "removed", len(deleted))
	return deleted, nil
}

// ReplacePattern swaps the whole pattern of a series. Generated members are
// dropped and re-expanded from the anchor; exception instances and the
// exception list survive. Completed members are kept as exception instances.
func (s *Service) ReplacePattern(ctx context.Context, anchorID string, p recurrence.Pattern) ([]model.Session, error) {
	current, err := s.store.GetSession(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(current.OwnerID)
	defer unlock()

	var out []model.Session
	err = s.store.InTx(ctx, func(tx store.Store) error {
		anchor, err := tx.GetSession(ctx, anchorID)
		if err != nil {
			return err
		}
		if anchor.RecurringSeriesID != nil && !anchor.IsAnchor() {
			return fmt.Errorf("%w: session %s is a series member, not an anchor", ErrInvalidSession, anchorID)
		}

		if p.Frequency == recurrence.Weekly && len(p.ByDay) == 0 {
			p.ByDay = []recurrence.Weekday{recurrence.WeekdayOf(anchor.Date)}
		}
		p = p.Normalize()

		members, err := tx.LoadSessions(ctx, store.SessionFilter{OwnerID: anchor.OwnerID, SeriesID: anchor.ID})
		if err != nil {
			return err
		}
		series := recurrence.Series{Pattern: p, Exceptions: anchor.ExceptionDates}
		courses := []string{anchor.CourseKey()}
		for _, m := range members {
			if m.ID == anchor.ID || m.IsExceptionInstance {
				continue
			}
			if m.Completed {
				// Completed work stays; it leaves the series as an exception.
				m.IsExceptionInstance = true
				m.LastModified = s.stamp()
				series.AddException(m.Date)
				if err := tx.SaveSession(ctx, m); err != nil {
					return err
				}
				continue
			}
			if err := tx.DeleteSession(ctx, m.ID); err != nil {
				return err
			}
			courses = append(courses, m.CourseKey())
		}

		dates, err := s.seriesDates(anchor.Date, p, series.Exceptions)
		if err != nil {
			return err
		}

		anchor.RecurringSeriesID = model.StringPtr(anchor.ID)
		anchor.RecurrenceRule = recurrence.Encode(p)
		anchor.ExceptionDates = series.Exceptions
		anchor.LastModified = s.stamp()
		if err := tx.SaveSession(ctx, anchor); err != nil {
			return err
		}
		out = append(out, anchor)

		for _, d := range dates[1:] {
			inst := anchor
			inst.ID = s.opts.NewID()
			inst.Date = d
			inst.Completed = false
			inst.CompletionPercentage = 0
			inst.RecurrenceRule = ""
			inst.ExceptionDates = nil
			inst.ForeignID = ""
			if err := tx.SaveSession(ctx, inst); err != nil {
				return err
			}
			out = append(out, inst)
		}
		return s.reconcile(ctx, tx, courses...)
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("series pattern replaced", "owner", current.OwnerID, "anchor", anchorID,
		"rule", out[0].RecurrenceRule, "occurrences", len(out))
	return out, nil
}

// reconcile recomputes hours for each distinct non-empty course id from the
// full session set of that course.
func (s *Service) reconcile(ctx context.Context, tx store.Store, courseIDs ...string) error {
	seen := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		course, err := tx.LoadCourse(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			appLog.Warn("reconcile: course missing", "course", id)
			continue
		}
		if err != nil {
			return err
		}
		sessions, err := tx.LoadSessions(ctx, store.SessionFilter{CourseID: &id})
		if err != nil {
			return err
		}
		h := Reconcile(course, sessions)
		if err := tx.UpdateCourseHours(ctx, id, h.CompletedHours, h.ScheduledHours); err != nil {
			return err
		}
		appLog.Debug("course reconciled", "course", id,
			"completed_hours", h.CompletedHours, "scheduled_hours", h.ScheduledHours, "sessions", len(sessions))
	}
	return nil
}

// Deduplicate runs the maintenance pass. With an empty ownerFilter every
// owner is processed in turn, each under its own lock.
func (s *Service) Deduplicate(ctx context.Context, ownerFilter string) (DedupReport, error) {
	owners := []string{ownerFilter}
	if ownerFilter == "" {
		all, err := s.store.LoadSessions(ctx, store.SessionFilter{})
		if err != nil {
			return DedupReport{}, err
		}
		owners = distinctOwners(all)
	}

	total := DedupReport{RemovedIDs: []string{}}
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rep, err := s.dedupOwner(ctx, owner)
		if err != nil {
			return total, fmt.Errorf("dedup owner %s: %w", owner, err)
		}
		total.SurvivorCount += rep.SurvivorCount
		total.RemovedCount += rep.RemovedCount
		total.RemovedIDs = append(total.RemovedIDs, rep.RemovedIDs...)
	}

	appLog.Info("dedup pass finished", "owner_filter", ownerFilter, "owners", len(owners),
		"survivors", total.SurvivorCount, "removed", total.RemovedCount)
	return total, nil
}

func (s *Service) dedupOwner(ctx context.Context, owner string) (DedupReport, error) {
	unlock := s.locks.lock(owner)
	defer unlock()

	var rep DedupReport
	err := s.store.InTx(ctx, func(tx store.Store) error {
		sessions, err := tx.LoadSessions(ctx, store.SessionFilter{OwnerID: owner})
		if err != nil {
			return err
		}
		res := Deduplicate(sessions, owner)
		courses := make([]string, 0, len(res.Removed))
		for _, r := range res.Removed {
			if err := tx.DeleteSession(ctx, r.ID); err != nil {
				return err
			}
			courses = append(courses, r.CourseKey())
		}
		rep = res.Report()
		for _, r := range res.Removed {
			if !r.IsAnchor() {
				continue
			}
			dropped, err := s.handOverSeries(ctx, tx, r, res.Replaced[r.ID])
			if err != nil {
				return err
			}
			for _, d := range dropped {
				rep.RemovedIDs = append(rep.RemovedIDs, d.ID)
				courses = append(courses, d.CourseKey())
			}
			rep.RemovedCount += len(dropped)
			rep.SurvivorCount -= len(dropped)
		}
		return s.reconcile(ctx, tx, courses...)
	})
	return rep, err
}

// handOverSeries keeps the series of a removed anchor consistent. A
// standalone survivor takes over the pattern and the remaining members. A
// survivor that already belongs to a series cannot, so the removed anchor's
// generated members go the way DeleteSession would take them.
func (s *Service) handOverSeries(ctx context.Context, tx store.Store, removed model.Session, heirID string) ([]model.Session, error) {
	members, err := tx.LoadSessions(ctx, store.SessionFilter{OwnerID: removed.OwnerID, SeriesID: removed.ID})
	if err != nil {
		return nil, err
	}
	heir, err := tx.GetSession(ctx, heirID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err != nil || heir.RecurringSeriesID != nil {
		var dropped []model.Session
		for _, m := range members {
			if m.IsExceptionInstance {
				continue
			}
			if err := tx.DeleteSession(ctx, m.ID); err != nil {
				return nil, err
			}
			dropped = append(dropped, m)
		}
		appLog.Warn("dedup: removed anchor's series dropped", "anchor", removed.ID,
			"survivor", heirID, "members", len(dropped))
		return dropped, nil
	}

	heir.RecurringSeriesID = model.StringPtr(heir.ID)
	heir.RecurrenceRule = removed.RecurrenceRule
	heir.ExceptionDates = removed.ExceptionDates
	heir.IsExceptionInstance = false
	if err := tx.SaveSession(ctx, heir); err != nil {
		return nil, err
	}
	for _, m := range members {
		m.RecurringSeriesID = model.StringPtr(heir.ID)
		if err := tx.SaveSession(ctx, m); err != nil {
			return nil, err
		}
	}
	appLog.Info("dedup: series handed over", "from", removed.ID, "to", heir.ID, "members", len(members))
	return nil, nil
}

func distinctOwners(sessions []model.Session) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sessions {
		if s.OwnerID == "" || seen[s.OwnerID] {
			continue
		}
		seen[s.OwnerID] = true
		out = append(out, s.OwnerID)
	}
	sort.Strings(out)
	return out
}

// ImportSessions upserts externally produced sessions (calendar sync) for one
// owner. Completion state of sessions already stored is preserved, and so is
// their LastModified when the slot did not change. With a
// non-empty source the call is a full snapshot of that feed: stored sessions
// whose ForeignID is "<source>:..." and that are missing from sessions are
// deleted, unless they are completed.
func (s *Service) ImportSessions(ctx context.Context, owner, source string, sessions []model.Session) (int, error) {
	unlock := s.locks.lock(owner)
	defer unlock()

	saved, pruned := 0, 0
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var courses []string
		seen := make(map[string]bool, len(sessions))
		for _, in := range sessions {
			seen[in.ID] = true
			if in.ID == "" {
				return fmt.Errorf("%w: imported session without id", ErrInvalidSession)
			}
			in.OwnerID = owner
			in.Date = recurrence.DateOf(in.Date)
			if in.CourseID != nil {
				err := s.checkCourse(ctx, tx, *in.CourseID, owner)
				if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrInvalidSession) {
					appLog.Warn("import: dropping unusable course", "id", in.ID, "course", *in.CourseID, "err", err)
					in.CourseID = nil
				} else if err != nil {
					return err
				}
			}
			d, err := model.DurationMinutes(in.StartTime, in.EndTime)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidSession, err)
			}
			in.DurationMinutes = d
			in.LastModified = s.stamp()

			prev, err := tx.GetSession(ctx, in.ID)
			switch {
			case err == nil:
				in.Completed = prev.Completed
				in.CompletionPercentage = prev.CompletionPercentage
				if prev.Date.Equal(in.Date) && prev.StartTime == in.StartTime && prev.EndTime == in.EndTime {
					in.LastModified = prev.LastModified
				}
				courses = append(courses, prev.CourseKey())
			case !errors.Is(err, store.ErrNotFound):
				return err
			}

			if err := tx.SaveSession(ctx, in); err != nil {
				return err
			}
			courses = append(courses, in.CourseKey())
			saved++
		}

		if source != "" {
			stored, err := tx.LoadSessions(ctx, store.SessionFilter{OwnerID: owner})
			if err != nil {
				return err
			}
			prefix := source + ":"
			for _, old := range stored {
				if seen[old.ID] || old.Completed || !strings.HasPrefix(old.ForeignID, prefix) {
					continue
				}
				if err := tx.DeleteSession(ctx, old.ID); err != nil {
					return err
				}
				courses = append(courses, old.CourseKey())
				pruned++
			}
		}
		return s.reconcile(ctx, tx, courses...)
	})
	if err != nil {
		return 0, err
	}
	appLog.Info("sessions imported", "owner", owner, "source", source, "count", saved, "pruned", pruned)
	return saved, nil
}

// ListSessions passes through to the store.
func (s *Service) ListSessions(ctx context.Context, f store.SessionFilter) ([]model.Session, error) {
	return s.store.LoadSessions(ctx, f)
}

// CreateCourse stores a new course sized by its ECTS credits.
func (s *Service) CreateCourse(ctx context.Context, owner, name string, ects float64) (model.Course, error) {
	if owner == "" || name == "" {
		return model.Course{}, fmt.Errorf("%w: course needs owner and name", ErrInvalidSession)
	}
	if ects < 0 {
		return model.Course{}, fmt.Errorf("%w: ects must not be negative", ErrInvalidSession)
	}
	c := model.Course{
		ID:             s.opts.NewID(),
		OwnerID:        owner,
		Name:           name,
		ECTS:           ects,
		EstimatedHours: ects * s.opts.HoursPerECTS,
		CreatedAt:      s.opts.Now().UTC().Truncate(time.Second),
	}
	if err := s.store.SaveCourse(ctx, c); err != nil {
		return model.Course{}, err
	}
	return c, nil
}

// GetCourse returns a course with its stored hour fields.
func (s *Service) GetCourse(ctx context.Context, id string) (model.Course, error) {
	return s.store.LoadCourse(ctx, id)
}

// ListCourses returns an owner's courses.
func (s *Service) ListCourses(ctx context.Context, owner string) ([]model.Course, error) {
	return s.store.ListCourses(ctx, owner)
}

// SetCourseCompleted flags a course as fully completed (or not).
func (s *Service) SetCourseCompleted(ctx context.Context, id string, done bool) (model.Course, error) {
	current, err := s.store.LoadCourse(ctx, id)
	if err != nil {
		return model.Course{}, err
	}

	unlock := s.locks.lock(current.OwnerID)
	defer unlock()

	var out model.Course
	err = s.store.InTx(ctx, func(tx store.Store) error {
		c, err := tx.LoadCourse(ctx, id)
		if err != nil {
			return err
		}
		c.FullyCompleted = done
		if err := tx.SaveCourse(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return model.Course{}, err
	}
	return out, nil
}

// SetProgram records the owner's prior credit.
func (s *Service) SetProgram(ctx context.Context, owner string, priorECTS float64) (model.Program, error) {
	if owner == "" || priorECTS < 0 {
		return model.Program{}, fmt.Errorf("%w: program needs owner and non-negative credit", ErrInvalidSession)
	}
	p := model.Program{OwnerID: owner, PriorECTS: priorECTS, HoursPerECTS: s.opts.HoursPerECTS}
	if err := s.store.SaveProgram(ctx, p); err != nil {
		return model.Program{}, err
	}
	return p, nil
}

// Progress aggregates the owner's program hours.
func (s *Service) Progress(ctx context.Context, owner string) (Progress, error) {
	program, err := s.store.LoadProgram(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		program = model.Program{OwnerID: owner, HoursPerECTS: s.opts.HoursPerECTS}
	} else if err != nil {
		return Progress{}, err
	}
	courses, err := s.store.ListCourses(ctx, owner)
	if err != nil {
		return Progress{}, err
	}
	sessions, err := s.store.LoadSessions(ctx, store.SessionFilter{OwnerID: owner})
	if err != nil {
		return Progress{}, err
	}
	return ProgramProgress(program, courses, sessions), nil
}
