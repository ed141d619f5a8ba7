// Package recurrence holds the recurrence pattern model, its canonical rule
// string codec and the occurrence expander.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrMalformedRule is returned by Decode for rule strings that cannot be
	// turned into a Pattern.
	ErrMalformedRule = errors.New("malformed recurrence rule")
	// ErrInvalidPattern marks patterns that violate the model invariants or
	// cannot be expanded as requested.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")
)

// Frequency is the unit a pattern steps in.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

func (f Frequency) valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Weekday is a weekday code as used in BYDAY.
type Weekday string

const (
	MO Weekday = "MO"
	TU Weekday = "TU"
	WE Weekday = "WE"
	TH Weekday = "TH"
	FR Weekday = "FR"
	SA Weekday = "SA"
	SU Weekday = "SU"
)

// weekOrder is the canonical Mon->Sun order.
var weekOrder = map[Weekday]int{MO: 0, TU: 1, WE: 2, TH: 3, FR: 4, SA: 5, SU: 6}

// WeekdayOf returns the code for the weekday of t.
func WeekdayOf(t time.Time) Weekday {
	switch t.Weekday() {
	case time.Monday:
		return MO
	case time.Tuesday:
		return TU
	case time.Wednesday:
		return WE
	case time.Thursday:
		return TH
	case time.Friday:
		return FR
	case time.Saturday:
		return SA
	default:
		return SU
	}
}

// EndKind discriminates EndCondition.
type EndKind int

const (
	EndNever EndKind = iota
	EndUntil
	EndCount
)

func (k EndKind) String() string {
	switch k {
	case EndUntil:
		return "until"
	case EndCount:
		return "count"
	default:
		return "never"
	}
}

// EndCondition says when a series stops. Exactly one variant is active; the
// fields are unexported so both-set and neither-set states cannot be built.
type EndCondition struct {
	kind  EndKind
	until time.Time
	count int
}

// Never returns an open-ended condition.
func Never() EndCondition { return EndCondition{kind: EndNever} }

// Until ends the series on d (inclusive). Only the calendar date of d is kept.
func Until(d time.Time) EndCondition { return EndCondition{kind: EndUntil, until: DateOf(d)} }

// Count ends the series after n occurrences, the anchor included.
func Count(n int) EndCondition { return EndCondition{kind: EndCount, count: n} }

func (e EndCondition) Kind() EndKind { return e.kind }

// UntilDate returns the until date if the condition is Until.
func (e EndCondition) UntilDate() (time.Time, bool) {
	return e.until, e.kind == EndUntil
}

// CountLimit returns n if the condition is Count(n).
func (e EndCondition) CountLimit() (int, bool) {
	return e.count, e.kind == EndCount
}

func (e EndCondition) String() string {
	switch e.kind {
	case EndUntil:
		return "until " + e.until.Format(time.DateOnly)
	case EndCount:
		return fmt.Sprintf("count %d", e.count)
	default:
		return "never"
	}
}

// Pattern is the structured form of a recurrence rule. Exception dates are
// not part of it; see Series.
type Pattern struct {
	Frequency Frequency
	// Interval is the step in Frequency units. Zero is read as 1.
	Interval int
	// ByDay only applies to Weekly patterns.
	ByDay []Weekday
	// ByMonthDay only applies to Monthly patterns; 0 means the anchor's day.
	ByMonthDay int
	End        EndCondition
}

// Normalize returns a copy with Interval defaulted, ByDay sorted Mon->Sun and
// de-duplicated, and fields that do not apply to the frequency cleared.
func (p Pattern) Normalize() Pattern {
	out := p
	if out.Interval == 0 {
		out.Interval = 1
	}
	out.ByDay = nil
	if p.Frequency == Weekly && len(p.ByDay) > 0 {
		seen := make(map[Weekday]bool, len(p.ByDay))
		for _, d := range p.ByDay {
			d = Weekday(strings.ToUpper(string(d)))
			if seen[d] {
				continue
			}
			seen[d] = true
			out.ByDay = append(out.ByDay, d)
		}
		sortWeekdays(out.ByDay)
	}
	if p.Frequency != Monthly {
		out.ByMonthDay = 0
	}
	return out
}

func sortWeekdays(days []Weekday) {
	sort.SliceStable(days, func(i, j int) bool {
		return rankWeekday(days[i]) < rankWeekday(days[j])
	})
}

func rankWeekday(d Weekday) int {
	if r, ok := weekOrder[d]; ok {
		return r
	}
	return len(weekOrder)
}

// Validate checks the pattern invariants against the anchor date.
func (p Pattern) Validate(anchor time.Time) error {
	if !p.Frequency.valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPattern, p.Frequency)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidPattern, p.Interval)
	}
	if p.Frequency == Weekly {
		if len(p.ByDay) == 0 {
			return fmt.Errorf("%w: weekly pattern needs at least one weekday", ErrInvalidPattern)
		}
		for _, d := range p.ByDay {
			if _, ok := weekOrder[d]; !ok {
				return fmt.Errorf("%w: unknown weekday %q", ErrInvalidPattern, d)
			}
		}
	}
	if p.Frequency == Monthly && (p.ByMonthDay < 0 || p.ByMonthDay > 31) {
		return fmt.Errorf("%w: month day must be 1-31, got %d", ErrInvalidPattern, p.ByMonthDay)
	}
	switch p.End.kind {
	case EndCount:
		if p.End.count < 1 {
			return fmt.Errorf("%w: count must be >= 1, got %d", ErrInvalidPattern, p.End.count)
		}
	case EndUntil:
		if p.End.until.Before(DateOf(anchor)) {
			return fmt.Errorf("%w: until %s is before anchor %s", ErrInvalidPattern,
				p.End.until.Format(time.DateOnly), DateOf(anchor).Format(time.DateOnly))
		}
	}
	return nil
}

// Series is a pattern plus the dates removed from it.
type Series struct {
	Pattern    Pattern
	Exceptions []time.Time
}

// AddException records d as excluded, keeping the list sorted and unique.
func (s *Series) AddException(d time.Time) {
	s.Exceptions = NormalizeDates(append(s.Exceptions, d))
}

// DateOf truncates t to its calendar date at UTC midnight, using t's own
// wall clock fields.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeDates truncates, sorts and de-duplicates dates.
func NormalizeDates(dates []time.Time) []time.Time {
	if len(dates) == 0 {
		return nil
	}
	out := make([]time.Time, 0, len(dates))
	seen := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		d = DateOf(d)
		if d.IsZero() || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FormatDates renders dates as a comma separated ISO list, the persisted
// form of a series' exceptions.
func FormatDates(dates []time.Time) string {
	parts := make([]string, 0, len(dates))
	for _, d := range NormalizeDates(dates) {
		parts = append(parts, d.Format(time.DateOnly))
	}
	return strings.Join(parts, ",")
}

// ParseDates is the inverse of FormatDates. Empty input yields nil.
func ParseDates(s string) ([]time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []time.Time
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.Parse(time.DateOnly, part)
		if err != nil {
			return nil, fmt.Errorf("parse exception date %q: %w", part, err)
		}
		out = append(out, d)
	}
	return NormalizeDates(out), nil
}
