package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyplan/internal/config"
	"studyplan/internal/planner"
	"studyplan/internal/store"
)

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) *httptest.Server {
	t.Helper()
	seq := 0
	svc := planner.NewService(store.NewMemory(), planner.Options{
		HoursPerECTS: 30,
		Now:          func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	srv := httptest.NewServer(NewServer(svc, auth, time.UTC).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	var course courseDTO
	status := call(t, http.MethodPost, srv.URL+"/api/courses", createCourseRequest{OwnerID: "u1", Name: "Analysis", ECTS: 6}, &course)
	require.Equal(t, http.StatusCreated, status)
	require.InDelta(t, 180.0, course.EstimatedHours, 1e-9)

	var created []sessionDTO
	status = call(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{
		"owner_id":        "u1",
		"course_id":       course.ID,
		"date":            "2025-01-07",
		"start_time":      "10:00",
		"end_time":        "12:00",
		"recurrence_rule": "FREQ=WEEKLY;INTERVAL=1;BYDAY=TU,TH;COUNT=4",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, created, 4)
	assert.Equal(t, []string{"2025-01-07", "2025-01-09", "2025-01-14", "2025-01-16"},
		[]string{created[0].Date, created[1].Date, created[2].Date, created[3].Date})
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU,TH;COUNT=4", created[0].RecurrenceRule)

	var updated sessionDTO
	status = call(t, http.MethodPatch, srv.URL+"/api/sessions/"+created[2].ID, map[string]any{"completed": true}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, updated.Completed)

	var got courseDTO
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/courses/"+course.ID, nil, &got))
	assert.InDelta(t, 2.0, got.CompletedHours, 1e-9)
	assert.InDelta(t, 6.0, got.ScheduledHours, 1e-9)
	assert.InDelta(t, 172.0, got.RemainingHours, 1e-9)

	var list []sessionDTO
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/sessions?owner=u1&course="+course.ID, nil, &list))
	assert.Len(t, list, 4)

	var series []sessionDTO
	status = call(t, http.MethodPut, srv.URL+"/api/sessions/"+created[0].ID+"/pattern",
		patternRequest{RecurrenceRule: "FREQ=WEEKLY;BYDAY=TU;COUNT=2"}, &series)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, series, 2)

	var removed map[string][]string
	require.Equal(t, http.StatusOK, call(t, http.MethodDelete, srv.URL+"/api/sessions/"+created[0].ID, nil, &removed))
	assert.Len(t, removed["removed_ids"], 2)

	// The completed occurrence left the series when the pattern changed and
	// outlives the anchor.
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/sessions?owner=u1", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, created[2].ID, list[0].ID)
	assert.True(t, list[0].IsExceptionInstance)

	var progress progressDTO
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+"/api/progress/u1", nil, &progress))
	assert.InDelta(t, 2.0, progress.CompletedHours, 1e-9)
	assert.InDelta(t, 178.0, progress.RemainingHours, 1e-9)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)

	var e struct {
		Error string `json:"error"`
	}
	status := call(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{
		"owner_id": "u1", "date": "2025-01-07", "start_time": "10:00", "end_time": "11:00",
		"recurrence_rule": "INTERVAL=2",
	}, &e)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, e.Error, "FREQ")

	status = call(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{
		"owner_id": "u1", "date": "07.01.2025", "start_time": "10:00", "end_time": "11:00",
	}, &e)
	assert.Equal(t, http.StatusBadRequest, status)

	status = call(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{
		"owner_id": "u1", "date": "2025-01-07", "start_time": "10:00", "end_time": "11:00",
		"recurrence_rule": "FREQ=DAILY;UNTIL=20241231",
	}, &e)
	assert.Equal(t, http.StatusBadRequest, status)

	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, srv.URL+"/api/courses/missing", nil, &e))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodDelete, srv.URL+"/api/sessions/missing", nil, &e))
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodGet, srv.URL+"/api/sessions", nil, &e))
}

func TestDedupEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	body := map[string]any{"owner_id": "u1", "date": "2025-02-01", "start_time": "08:00", "end_time": "09:00"}
	var created []sessionDTO
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, srv.URL+"/api/sessions", body, &created))
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, srv.URL+"/api/sessions", body, &created))

	var rep planner.DedupReport
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, srv.URL+"/api/maintenance/dedup?owner=u1", nil, &rep))
	assert.Equal(t, 1, rep.SurvivorCount)
	assert.Equal(t, 1, rep.RemovedCount)
	// Same LastModified from the fixed clock, so the greater id survives.
	assert.Equal(t, []string{"id-1"}, rep.RemovedIDs)
}

func TestCalendarFeed(t *testing.T) {
	srv := newTestServer(t, nil)
	var created []sessionDTO
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{
		"owner_id": "u1", "date": "2025-02-01", "start_time": "08:00", "end_time": "09:00", "title": "Reading",
	}, &created))

	resp, err := http.Get(srv.URL + "/api/calendar/u1.ics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "SUMMARY:Reading")
	assert.Contains(t, string(b), "DTSTART:20250201T080000Z")

	resp2, err := http.Get(srv.URL + "/api/calendar/u1")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, &config.BasicAuthConfig{Username: "admin", Password: "pw"})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/progress/u1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/progress/u1", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "pw")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
