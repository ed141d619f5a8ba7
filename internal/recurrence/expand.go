package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Horizon bounds an expansion. A zero field means "no bound" for that
// dimension; at least one bound is required for Never patterns. When set, it
// caps every end condition.
type Horizon struct {
	// MaxOccurrences caps the number of emitted dates.
	MaxOccurrences int
	// Until is the last date (inclusive) that may be emitted.
	Until time.Time
}

func (h Horizon) IsZero() bool {
	return h.MaxOccurrences <= 0 && h.Until.IsZero()
}

var rruleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var rruleWeekday = map[Weekday]rrule.Weekday{
	MO: rrule.MO,
	TU: rrule.TU,
	WE: rrule.WE,
	TH: rrule.TH,
	FR: rrule.FR,
	SA: rrule.SA,
	SU: rrule.SU,
}

// Sequence is a lazy, finite and restartable stream of occurrence dates.
// It is not safe for concurrent use; build one per goroutine.
type Sequence struct {
	anchor   time.Time
	rule     *rrule.RRule
	end      EndCondition
	horizon  Horizon
	excluded map[time.Time]bool

	next          rrule.Next
	started       bool
	done          bool
	emitted       int
	lastCandidate time.Time
}

// Expand prepares the occurrence sequence for a series anchored at anchor.
// The anchor date is always the first candidate. Later candidates come from
// stepping the pattern: for weekly patterns every ByDay weekday inside each
// interval-week window (weeks start on Monday), for monthly patterns
// ByMonthDay of every interval-month, with months lacking that day skipped.
//
// Dates in exceptions are skipped and do not count toward Count.
func Expand(anchor time.Time, p Pattern, exceptions []time.Time, h Horizon) (*Sequence, error) {
	if anchor.IsZero() {
		return nil, fmt.Errorf("%w: anchor date is zero", ErrInvalidPattern)
	}
	p = p.Normalize()
	if err := p.Validate(anchor); err != nil {
		return nil, err
	}
	if p.End.kind == EndNever && h.IsZero() {
		return nil, fmt.Errorf("%w: open-ended pattern needs a horizon", ErrInvalidPattern)
	}

	anchor = DateOf(anchor)
	opt := rrule.ROption{
		Freq:     rruleFreq[p.Frequency],
		Interval: p.Interval,
		Dtstart:  anchor,
		Wkst:     rrule.MO,
	}
	if p.Frequency == Weekly {
		for _, d := range p.ByDay {
			opt.Byweekday = append(opt.Byweekday, rruleWeekday[d])
		}
	}
	if p.Frequency == Monthly && p.ByMonthDay > 0 {
		opt.Bymonthday = []int{p.ByMonthDay}
	}
	// Let the iterator stop on its own for date-bounded series.
	if last := lastDate(p.End, h); !last.IsZero() {
		opt.Until = last.Add(24*time.Hour - time.Second)
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	excluded := make(map[time.Time]bool, len(exceptions))
	for _, d := range exceptions {
		excluded[DateOf(d)] = true
	}

	h.Until = DateOf(h.Until)
	s := &Sequence{
		anchor:   anchor,
		rule:     r,
		end:      p.End,
		horizon:  h,
		excluded: excluded,
	}
	s.Reset()
	return s, nil
}

// Reset rewinds the sequence to its first occurrence.
func (s *Sequence) Reset() {
	s.next = s.rule.Iterator()
	s.started = false
	s.done = false
	s.emitted = 0
	s.lastCandidate = time.Time{}
}

// Next returns the next occurrence date, or false once the sequence ends.
func (s *Sequence) Next() (time.Time, bool) {
	for !s.done {
		cand, ok := s.candidate()
		if !ok {
			s.done = true
			break
		}
		if s.pastEnd(cand) {
			s.done = true
			break
		}
		if s.excluded[cand] {
			continue
		}

		s.emitted++
		if n, ok := s.end.CountLimit(); ok && s.emitted >= n {
			s.done = true
		}
		if s.horizon.MaxOccurrences > 0 && s.emitted >= s.horizon.MaxOccurrences {
			s.done = true
		}
		return cand, true
	}
	return time.Time{}, false
}

// All drains a fresh pass of the sequence.
func (s *Sequence) All() []time.Time {
	s.Reset()
	var out []time.Time
	for d, ok := s.Next(); ok; d, ok = s.Next() {
		out = append(out, d)
	}
	return out
}

func (s *Sequence) candidate() (time.Time, bool) {
	if !s.started {
		s.started = true
		s.lastCandidate = s.anchor
		return s.anchor, true
	}
	for {
		t, ok := s.next()
		if !ok {
			return time.Time{}, false
		}
		t = DateOf(t)
		if !t.After(s.lastCandidate) {
			continue
		}
		s.lastCandidate = t
		return t, true
	}
}

func (s *Sequence) pastEnd(d time.Time) bool {
	if until, ok := s.end.UntilDate(); ok && d.After(until) {
		return true
	}
	if !s.horizon.Until.IsZero() && d.After(s.horizon.Until) {
		return true
	}
	return false
}

// Dates is a convenience wrapper around Expand and All.
func Dates(anchor time.Time, p Pattern, exceptions []time.Time, h Horizon) ([]time.Time, error) {
	seq, err := Expand(anchor, p, exceptions, h)
	if err != nil {
		return nil, err
	}
	return seq.All(), nil
}

func lastDate(end EndCondition, h Horizon) time.Time {
	last, _ := end.UntilDate()
	hu := DateOf(h.Until)
	if last.IsZero() || (!hu.IsZero() && hu.Before(last)) {
		last = hu
	}
	return last
}
