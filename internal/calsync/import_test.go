package calsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"studyplan/internal/model"
)

func testImporter() *Importer {
	return &Importer{
		Location:       time.UTC,
		MaxOccurrences: 100,
		HorizonDays:    365,
		Now:            func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestImporterSessions(t *testing.T) {
	src := Source{ID: "uni", OwnerID: "u1", CourseID: "c1"}
	events, err := ParseICS(src, lectureFeed, time.UTC)
	require.NoError(t, err)

	sessions := testImporter().Sessions(src, events)

	type row struct{ date, start, end, title string }
	var got []row
	for _, s := range sessions {
		got = append(got, row{s.Date.Format("2006-01-02"), s.StartTime, s.EndTime, s.Title})
		require.Equal(t, "u1", s.OwnerID)
		require.Equal(t, "c1", s.CourseKey())
	}
	require.Equal(t, []row{
		{"2025-01-07", "10:00", "12:00", "Lecture"},
		{"2025-01-15", "14:00", "15:00", "Lecture (moved)"},
		{"2025-01-16", "10:00", "12:00", "Lecture"},
		{"2025-01-20", "08:30", "09:30", "Exam prep"},
		{"2025-01-21", "10:00", "12:00", "Lecture"},
	}, got)

	// The moved occurrence keeps the id of its original slot.
	moved := sessions[1]
	want := uuid.NewSHA1(importNamespace, []byte("uni|lec-1|2025-01-14")).String()
	require.Equal(t, want, moved.ID)
	require.Equal(t, "uni:lec-1", moved.ForeignID)
	require.Equal(t, 60, moved.DurationMinutes)
}

func TestImporterIDsStable(t *testing.T) {
	src := Source{ID: "uni", OwnerID: "u1"}
	events, err := ParseICS(src, lectureFeed, time.UTC)
	require.NoError(t, err)

	a := testImporter().Sessions(src, events)
	b := testImporter().Sessions(src, events)
	require.Equal(t, a, b)

	seen := map[string]bool{}
	for _, s := range a {
		require.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		require.Nil(t, s.CourseID)
	}
}

func TestImporterHorizonCapsOpenEvents(t *testing.T) {
	feed := crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:daily
DTSTAMP:20250101T000000Z
DTSTART:20250101T070000Z
DTEND:20250101T073000Z
RRULE:FREQ=DAILY
END:VEVENT
END:VCALENDAR
`)
	src := Source{ID: "gym", OwnerID: "u1"}
	events, err := ParseICS(src, feed, time.UTC)
	require.NoError(t, err)

	im := testImporter()
	im.HorizonDays = 9
	sessions := im.Sessions(src, events)
	require.Len(t, sessions, 10)
	require.Equal(t, "2025-01-10", sessions[9].Date.Format("2006-01-02"))
}

type captureSink struct {
	owner    string
	source   string
	sessions []model.Session
	err      error
}

func (c *captureSink) ImportSessions(_ context.Context, owner, source string, sessions []model.Session) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.owner = owner
	c.source = source
	c.sessions = sessions
	return len(sessions), nil
}

func TestSyncer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(lectureFeed)
	}))
	defer srv.Close()

	sink := &captureSink{}
	s := &Syncer{Fetcher: NewFetcher(t.TempDir(), srv.Client()), Importer: testImporter(), Sink: sink}

	n, errs := s.SyncAll(context.Background(), []Source{
		{ID: "uni", URL: srv.URL, OwnerID: "u1"},
		{ID: "orphan", URL: srv.URL},
	})
	require.Equal(t, 5, n)
	require.Len(t, errs, 1)
	require.Equal(t, "u1", sink.owner)
	require.Equal(t, "uni", sink.source)
	require.Len(t, sink.sessions, 5)

	sink.err = errors.New("disk full")
	_, err := s.Sync(context.Background(), Source{ID: "uni", URL: srv.URL, OwnerID: "u1"})
	require.ErrorIs(t, err, sink.err)
}
