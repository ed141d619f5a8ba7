package calsync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studyplan/internal/model"
)

func TestExportRoundTrip(t *testing.T) {
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	sessions := []model.Session{
		{
			ID: "s1", OwnerID: "u1", CourseID: model.StringPtr("c1"), Date: day,
			StartTime: "09:00", EndTime: "10:30", DurationMinutes: 90, Title: "Algebra",
			LastModified: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), Completed: true,
		},
		{
			ID: "s2", OwnerID: "u1", Date: day,
			StartTime: "23:30", EndTime: "00:30", DurationMinutes: 60,
		},
	}

	out, err := Export("u1 sessions", sessions, time.UTC)
	require.NoError(t, err)
	require.Contains(t, out, "X-STUDYPLAN-COURSE:c1")
	require.Contains(t, out, "SUMMARY:Study session")
	require.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))

	events, err := ParseICS(Source{ID: "export"}, []byte(out), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "s1", events[0].UID)
	require.True(t, events[0].Start.Equal(time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)))
	require.True(t, events[0].End.Equal(time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)))

	require.True(t, events[1].End.Equal(time.Date(2025, 3, 5, 0, 30, 0, 0, time.UTC)))
}

func TestExportBadClock(t *testing.T) {
	_, err := Export("", []model.Session{{ID: "s", StartTime: "late"}}, nil)
	require.Error(t, err)
}
