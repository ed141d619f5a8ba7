package calsync

import "strings"

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

var lectureFeed = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//feed//EN
BEGIN:VEVENT
UID:lec-1
DTSTAMP:20250101T000000Z
DTSTART:20250107T100000Z
DTEND:20250107T120000Z
SUMMARY:Lecture
RRULE:FREQ=WEEKLY;BYDAY=TU,TH;COUNT=4;WKST=MO
EXDATE:20250109T100000Z
END:VEVENT
BEGIN:VEVENT
UID:lec-1
DTSTAMP:20250101T000000Z
RECURRENCE-ID:20250114T100000Z
DTSTART:20250115T140000Z
DTEND:20250115T150000Z
SUMMARY:Lecture (moved)
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250110
DTEND;VALUE=DATE:20250111
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:single
DTSTAMP:20250101T000000Z
DTSTART:20250120T083000Z
DTEND:20250120T093000Z
SUMMARY:Exam prep
END:VEVENT
BEGIN:VEVENT
UID:broken-rule
DTSTAMP:20250101T000000Z
DTSTART:20250120T083000Z
DTEND:20250120T093000Z
RRULE:FREQ=HOURLY
SUMMARY:Would flood
END:VEVENT
END:VCALENDAR
`)
