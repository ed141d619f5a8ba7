package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const untilLayout = "20060102T150405Z"

// Encode renders p as a canonical rule string:
//
//	FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=10
//
// Fields appear in fixed order; INTERVAL is omitted when 1, BYDAY only for
// weekly and BYMONTHDAY only for monthly patterns. UNTIL is written as the
// end of that day in UTC.
func Encode(p Pattern) string {
	p = p.Normalize()

	parts := []string{"FREQ=" + string(p.Frequency)}
	if p.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(p.Interval))
	}
	if p.Frequency == Weekly && len(p.ByDay) > 0 {
		days := make([]string, len(p.ByDay))
		for i, d := range p.ByDay {
			days[i] = string(d)
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	if p.Frequency == Monthly && p.ByMonthDay > 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(p.ByMonthDay))
	}
	switch p.End.kind {
	case EndUntil:
		eod := p.End.until.Add(24*time.Hour - time.Second)
		parts = append(parts, "UNTIL="+eod.Format(untilLayout))
	case EndCount:
		parts = append(parts, "COUNT="+strconv.Itoa(p.End.count))
	}
	return strings.Join(parts, ";")
}

// Decode parses a rule string produced by Encode (or a compatible RRULE
// subset). Unknown keys are ignored. An optional leading "RRULE:" prefix is
// accepted. Errors wrap ErrMalformedRule and no partial pattern is returned.
func Decode(rule string) (Pattern, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(rule, "RRULE:")

	fields := make(map[string]string)
	for _, seg := range strings.Split(rule, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		key, val, ok := strings.Cut(seg, "=")
		if !ok {
			return Pattern{}, fmt.Errorf("%w: segment %q is not KEY=VALUE", ErrMalformedRule, seg)
		}
		fields[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(val)
	}

	var p Pattern

	freq, ok := fields["FREQ"]
	if !ok || freq == "" {
		return Pattern{}, fmt.Errorf("%w: missing FREQ", ErrMalformedRule)
	}
	p.Frequency = Frequency(strings.ToUpper(freq))
	if !p.Frequency.valid() {
		return Pattern{}, fmt.Errorf("%w: unsupported FREQ %q", ErrMalformedRule, freq)
	}

	p.Interval = 1
	if v, ok := fields["INTERVAL"]; ok {
		n, err := parsePositive("INTERVAL", v, 1<<16)
		if err != nil {
			return Pattern{}, err
		}
		p.Interval = n
	}

	if v, ok := fields["BYDAY"]; ok && p.Frequency == Weekly {
		for _, code := range strings.Split(v, ",") {
			d := Weekday(strings.ToUpper(strings.TrimSpace(code)))
			if _, known := weekOrder[d]; !known {
				return Pattern{}, fmt.Errorf("%w: BYDAY value %q", ErrMalformedRule, code)
			}
			p.ByDay = append(p.ByDay, d)
		}
	}

	if v, ok := fields["BYMONTHDAY"]; ok && p.Frequency == Monthly {
		n, err := parsePositive("BYMONTHDAY", v, 31)
		if err != nil {
			return Pattern{}, err
		}
		p.ByMonthDay = n
	}

	untilVal, hasUntil := fields["UNTIL"]
	countVal, hasCount := fields["COUNT"]
	switch {
	case hasUntil && hasCount:
		return Pattern{}, fmt.Errorf("%w: both UNTIL and COUNT set", ErrMalformedRule)
	case hasUntil:
		d, err := parseUntil(untilVal)
		if err != nil {
			return Pattern{}, err
		}
		p.End = Until(d)
	case hasCount:
		n, err := parsePositive("COUNT", countVal, 1<<20)
		if err != nil {
			return Pattern{}, err
		}
		p.End = Count(n)
	default:
		p.End = Never()
	}

	return p.Normalize(), nil
}

func parsePositive(key, v string, max int) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrMalformedRule, key, v)
	}
	if n < 1 || n > max {
		return 0, fmt.Errorf("%w: %s=%d out of range 1-%d", ErrMalformedRule, key, n, max)
	}
	return n, nil
}

// parseUntil accepts the compact UTC form, a floating date-time and a bare
// date. Only the date part is kept.
func parseUntil(v string) (time.Time, error) {
	for _, layout := range []string{untilLayout, "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: UNTIL=%q", ErrMalformedRule, v)
}
