package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"studyplan/internal/calsync"
	"studyplan/internal/recurrence"
	"studyplan/internal/store"
)

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	courses, err := s.svc.ListCourses(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]courseDTO, 0, len(courses))
	for _, c := range courses {
		out = append(out, toCourseDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := s.svc.CreateCourse(r.Context(), req.OwnerID, req.Name, req.ECTS)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseDTO(c))
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(c))
}

func (s *Server) handleSetCourseCompleted(w http.ResponseWriter, r *http.Request) {
	var req completedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := s.svc.SetCourseCompleted(r.Context(), chi.URLParam(r, "id"), req.Completed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseDTO(c))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := q.Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	f := store.SessionFilter{OwnerID: owner}
	if course := q.Get("course"); course != "" {
		f.CourseID = &course
	}
	sessions, err := s.svc.ListSessions(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	in, err := req.toNewSession()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := s.svc.CreateSession(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTOs(created))
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	updated, err := s.svc.UpdateSession(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(updated))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	removed, err := s.svc.DeleteSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"removed_ids": removed})
}

func (s *Server) handleReplacePattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := recurrence.Decode(req.RecurrenceRule)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	series, err := s.svc.ReplacePattern(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(series))
}

func (s *Server) handleSetProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := s.svc.SetProgram(r.Context(), chi.URLParam(r, "owner"), req.PriorECTS)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id":    p.OwnerID,
		"prior_ects":  p.PriorECTS,
		"prior_hours": p.PriorHours(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	p, err := s.svc.Progress(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(owner, p))
}

func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Deduplicate(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleCalendar serves /api/calendar/{owner}.ics.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	owner, ok := strings.CutSuffix(file, ".ics")
	if !ok || owner == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	sessions, err := s.svc.ListSessions(r.Context(), store.SessionFilter{OwnerID: owner})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	body, err := calsync.Export(owner+" study sessions", sessions, s.loc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

