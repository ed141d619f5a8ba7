package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"studyplan/internal/config"
	appLog "studyplan/internal/log"
	"studyplan/internal/planner"
	"studyplan/internal/recurrence"
	"studyplan/internal/store"
)

// Server exposes the planner over a JSON API plus an ICS feed per owner.
type Server struct {
	svc  *planner.Service
	auth *config.BasicAuthConfig
	loc  *time.Location
}

// NewServer wires the routes. auth may be nil; loc is the wall clock
// session times are exported in.
func NewServer(svc *planner.Service, auth *config.BasicAuthConfig, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if auth != nil && (auth.Username == "" || auth.Password == "") {
		auth = nil
	}
	return &Server{svc: svc, auth: auth, loc: loc}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.basicAuth)
		}
		r.Route("/api", func(r chi.Router) {
			r.Route("/courses", func(r chi.Router) {
				r.Get("/", s.handleListCourses)
				r.Post("/", s.handleCreateCourse)
				r.Get("/{id}", s.handleGetCourse)
				r.Put("/{id}/completed", s.handleSetCourseCompleted)
			})
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)
				r.Post("/", s.handleCreateSession)
				r.Patch("/{id}", s.handleUpdateSession)
				r.Delete("/{id}", s.handleDeleteSession)
				r.Put("/{id}/pattern", s.handleReplacePattern)
			})
			r.Put("/program/{owner}", s.handleSetProgram)
			r.Get("/progress/{owner}", s.handleProgress)
			r.Post("/maintenance/dedup", s.handleDedup)
			r.Get("/calendar/{file}", s.handleCalendar)
		})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, listen string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.auth.Username) || !secureCompare(p, s.auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="studyplan", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recurrence.ErrMalformedRule),
		errors.Is(err, recurrence.ErrInvalidPattern),
		errors.Is(err, planner.ErrInvalidSession),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
