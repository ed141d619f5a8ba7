package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDurationMinutes(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"09:00", "10:30", 90},
		{"23:00", "01:00", 120},
	}
	for _, tt := range tests {
		got, err := DurationMinutes(tt.start, tt.end)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.start+"-"+tt.end)
	}

	_, err := DurationMinutes("14:15", "14:15")
	require.ErrorIs(t, err, ErrEmptySpan)

	_, err = DurationMinutes("9am", "10:00")
	require.Error(t, err)
	_, err = DurationMinutes("09:00", "25:00")
	require.Error(t, err)
}

func TestSessionHelpers(t *testing.T) {
	s := Session{DurationMinutes: 90}
	require.InDelta(t, 1.5, s.Hours(), 1e-9)
	require.Equal(t, "", s.CourseKey())
	require.False(t, s.IsAnchor())

	s.CourseID = StringPtr("c1")
	s.RecurrenceRule = "FREQ=DAILY;COUNT=2"
	require.Equal(t, "c1", s.CourseKey())
	require.True(t, s.IsAnchor())

	require.Nil(t, StringPtr(""))
	require.Zero(t, Session{DurationMinutes: -5}.Hours())
}

func TestProgramPriorHours(t *testing.T) {
	p := Program{PriorECTS: 10, HoursPerECTS: 30}
	require.InDelta(t, 300.0, p.PriorHours(), 1e-9)
}
