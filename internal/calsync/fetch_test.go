package calsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetcherConditionalAndFallback(t *testing.T) {
	const body = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	var (
		failing  atomic.Bool
		requests atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "uni", URL: srv.URL + "/feed.ics?token=secret"}
	ctx := context.Background()

	res, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, body, string(res.Body))

	res, err = f.Fetch(ctx, src)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, body, string(res.Body))

	failing.Store(true)
	res, err = f.Fetch(ctx, src)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, body, string(res.Body))
	require.EqualValues(t, 3, requests.Load())
}

func TestFetcherErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	_, err := f.Fetch(context.Background(), Source{ID: "x", URL: srv.URL})
	require.Error(t, err)

	_, err = f.Fetch(context.Background(), Source{ID: "x"})
	require.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	require.Equal(t, "https://cal.example.com/...", redactURL("https://cal.example.com/private/abc.ics?token=1"))
	require.Equal(t, "(redacted)", redactURL("not a url"))
}
