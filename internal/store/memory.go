package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"studyplan/internal/model"
)

// Memory is an in-process Store. Transactions are serialized and rolled back
// by restoring a snapshot, so writes made outside InTx while a transaction
// fails are lost as well; use it for tests and local runs only.
type Memory struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	sessions map[string]model.Session
	courses  map[string]model.Course
	programs map[string]model.Program
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]model.Session),
		courses:  make(map[string]model.Course),
		programs: make(map[string]model.Program),
	}
}

func cloneSession(s model.Session) model.Session {
	if s.CourseID != nil {
		c := *s.CourseID
		s.CourseID = &c
	}
	if s.RecurringSeriesID != nil {
		r := *s.RecurringSeriesID
		s.RecurringSeriesID = &r
	}
	if s.ExceptionDates != nil {
		s.ExceptionDates = append([]time.Time(nil), s.ExceptionDates...)
	}
	return s
}

func (m *Memory) LoadSessions(_ context.Context, f SessionFilter) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Session, 0)
	for _, s := range m.sessions {
		if matches(f, s) {
			out = append(out, cloneSession(s))
		}
	}
	SortSessions(out)
	return out, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return cloneSession(s), nil
}

func (m *Memory) SaveSession(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) LoadCourse(_ context.Context, id string) (model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *Memory) ListCourses(_ context.Context, ownerID string) ([]model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Course, 0)
	for _, c := range m.courses {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveCourse(_ context.Context, c model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.courses[c.ID]; ok {
		c.CompletedHours, c.ScheduledHours = prev.CompletedHours, prev.ScheduledHours
	}
	m.courses[c.ID] = c
	return nil
}

func (m *Memory) UpdateCourseHours(_ context.Context, id string, completed, scheduled float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	c.CompletedHours = completed
	c.ScheduledHours = scheduled
	m.courses[id] = c
	return nil
}

func (m *Memory) LoadProgram(_ context.Context, ownerID string) (model.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.programs[ownerID]
	if !ok {
		return model.Program{}, fmt.Errorf("program %s: %w", ownerID, ErrNotFound)
	}
	return p, nil
}

func (m *Memory) SaveProgram(_ context.Context, p model.Program) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[p.OwnerID] = p
	return nil
}

func (m *Memory) InTx(_ context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	sessions := make(map[string]model.Session, len(m.sessions))
	for k, v := range m.sessions {
		sessions[k] = cloneSession(v)
	}
	courses := make(map[string]model.Course, len(m.courses))
	for k, v := range m.courses {
		courses[k] = v
	}
	programs := make(map[string]model.Program, len(m.programs))
	for k, v := range m.programs {
		programs[k] = v
	}
	m.mu.RUnlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.sessions, m.courses, m.programs = sessions, courses, programs
		m.mu.Unlock()
		return err
	}
	return nil
}

// SortSessions orders by date, start time and id.
func SortSessions(sessions []model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}
