package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studyplan/internal/model"
	"studyplan/internal/store"
)

func storesToTest(t *testing.T) map[string]store.Store {
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]store.Store{
		"memory": store.NewMemory(),
		"sqlite": db,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, st := range storesToTest(t) {
		t.Run(name, func(t *testing.T) {
			course := model.Course{
				ID: "course-1", OwnerID: "u1", Name: "Algorithms",
				ECTS: 5, EstimatedHours: 150, CreatedAt: time.Unix(1700000000, 0).UTC(),
			}
			require.NoError(t, st.SaveCourse(ctx, course))

			got, err := st.LoadCourse(ctx, "course-1")
			require.NoError(t, err)
			require.Equal(t, course, got)

			_, err = st.LoadCourse(ctx, "missing")
			require.ErrorIs(t, err, store.ErrNotFound)

			anchorID := "s-anchor"
			sessions := []model.Session{
				{
					ID: anchorID, OwnerID: "u1", CourseID: model.StringPtr("course-1"),
					Date: day(2025, 1, 7), StartTime: "09:00", EndTime: "10:00", DurationMinutes: 60,
					LastModified: 10, RecurringSeriesID: &anchorID,
					RecurrenceRule: "FREQ=WEEKLY;BYDAY=TU;COUNT=2",
					ExceptionDates: []time.Time{day(2025, 1, 21)},
				},
				{
					ID: "s-2", OwnerID: "u1", CourseID: model.StringPtr("course-1"),
					Date: day(2025, 1, 14), StartTime: "09:00", EndTime: "10:00", DurationMinutes: 60,
					RecurringSeriesID: &anchorID, Completed: true,
				},
				{
					ID: "s-3", OwnerID: "u1", Date: day(2025, 1, 8),
					StartTime: "12:00", EndTime: "13:30", DurationMinutes: 90, Title: "blocker",
				},
				{
					ID: "s-4", OwnerID: "u2", Date: day(2025, 1, 8),
					StartTime: "12:00", EndTime: "13:30", DurationMinutes: 90, ForeignID: "cal:evt",
				},
			}
			for _, s := range sessions {
				require.NoError(t, st.SaveSession(ctx, s))
			}

			all, err := st.LoadSessions(ctx, store.SessionFilter{})
			require.NoError(t, err)
			require.Len(t, all, 4)

			mine, err := st.LoadSessions(ctx, store.SessionFilter{OwnerID: "u1"})
			require.NoError(t, err)
			require.Len(t, mine, 3)
			require.Equal(t, []string{anchorID, "s-3", "s-2"}, ids(mine))
			require.Equal(t, sessions[0], mine[0])

			byCourse, err := st.LoadSessions(ctx, store.SessionFilter{OwnerID: "u1", CourseID: model.StringPtr("course-1")})
			require.NoError(t, err)
			require.Len(t, byCourse, 2)

			series, err := st.LoadSessions(ctx, store.SessionFilter{SeriesID: anchorID})
			require.NoError(t, err)
			require.Equal(t, []string{anchorID, "s-2"}, ids(series))

			one, err := st.GetSession(ctx, "s-4")
			require.NoError(t, err)
			require.Equal(t, "cal:evt", one.ForeignID)
			require.Nil(t, one.CourseID)

			// Upsert replaces.
			edited := sessions[2]
			edited.Title = "renamed"
			require.NoError(t, st.SaveSession(ctx, edited))
			one, err = st.GetSession(ctx, "s-3")
			require.NoError(t, err)
			require.Equal(t, "renamed", one.Title)

			require.NoError(t, st.DeleteSession(ctx, "s-3"))
			_, err = st.GetSession(ctx, "s-3")
			require.ErrorIs(t, err, store.ErrNotFound)
			require.ErrorIs(t, st.DeleteSession(ctx, "s-3"), store.ErrNotFound)

			require.NoError(t, st.UpdateCourseHours(ctx, "course-1", 1.5, 2.25))
			got, err = st.LoadCourse(ctx, "course-1")
			require.NoError(t, err)
			require.InDelta(t, 1.5, got.CompletedHours, 1e-9)
			require.InDelta(t, 2.25, got.ScheduledHours, 1e-9)
			require.ErrorIs(t, st.UpdateCourseHours(ctx, "missing", 0, 0), store.ErrNotFound)

			stale := course
			stale.Name = "Algorithms II"
			stale.FullyCompleted = true
			require.NoError(t, st.SaveCourse(ctx, stale))
			got, err = st.LoadCourse(ctx, "course-1")
			require.NoError(t, err)
			require.Equal(t, "Algorithms II", got.Name)
			require.True(t, got.FullyCompleted)
			require.InDelta(t, 1.5, got.CompletedHours, 1e-9)
			require.InDelta(t, 2.25, got.ScheduledHours, 1e-9)

			courses, err := st.ListCourses(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, courses, 1)
			courses, err = st.ListCourses(ctx, "u2")
			require.NoError(t, err)
			require.Empty(t, courses)

			_, err = st.LoadProgram(ctx, "u1")
			require.ErrorIs(t, err, store.ErrNotFound)
			prog := model.Program{OwnerID: "u1", PriorECTS: 30, HoursPerECTS: 25}
			require.NoError(t, st.SaveProgram(ctx, prog))
			gotProg, err := st.LoadProgram(ctx, "u1")
			require.NoError(t, err)
			require.Equal(t, prog, gotProg)
		})
	}
}

func TestStoreTxRollback(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	for name, st := range storesToTest(t) {
		t.Run(name, func(t *testing.T) {
			err := st.InTx(ctx, func(tx store.Store) error {
				require.NoError(t, tx.SaveSession(ctx, model.Session{
					ID: "tx-1", OwnerID: "u1", Date: day(2025, 2, 1), StartTime: "08:00", EndTime: "09:00",
				}))
				return boom
			})
			require.ErrorIs(t, err, boom)
			_, err = st.GetSession(ctx, "tx-1")
			require.ErrorIs(t, err, store.ErrNotFound)

			err = st.InTx(ctx, func(tx store.Store) error {
				return tx.SaveSession(ctx, model.Session{
					ID: "tx-2", OwnerID: "u1", Date: day(2025, 2, 1), StartTime: "08:00", EndTime: "09:00",
				})
			})
			require.NoError(t, err)
			_, err = st.GetSession(ctx, "tx-2")
			require.NoError(t, err)
		})
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := store.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveSession(ctx, model.Session{
		ID: "keep", OwnerID: "u1", Date: day(2025, 3, 1), StartTime: "10:00", EndTime: "11:00", DurationMinutes: 60,
	}))
	require.NoError(t, db.Close())

	db, err = store.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	s, err := db.GetSession(ctx, "keep")
	require.NoError(t, err)
	require.Equal(t, 60, s.DurationMinutes)
}

func ids(sessions []model.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
