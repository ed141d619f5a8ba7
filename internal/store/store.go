// Package store persists courses, sessions and programs.
package store

import (
	"context"
	"errors"

	"studyplan/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// SessionFilter narrows LoadSessions. An empty OwnerID loads every owner;
// a nil CourseID loads every course (assigned or not).
type SessionFilter struct {
	OwnerID  string
	CourseID *string
	// SeriesID restricts to members of one recurring series.
	SeriesID string
}

// Store is the persistence boundary of the planner. Implementations return
// their own errors unmodified apart from %w wrapping.
type Store interface {
	LoadSessions(ctx context.Context, f SessionFilter) ([]model.Session, error)
	GetSession(ctx context.Context, id string) (model.Session, error)
	// SaveSession inserts or replaces by id.
	SaveSession(ctx context.Context, s model.Session) error
	DeleteSession(ctx context.Context, id string) error

	LoadCourse(ctx context.Context, id string) (model.Course, error)
	ListCourses(ctx context.Context, ownerID string) ([]model.Course, error)
	// SaveCourse inserts or updates a course. The hour columns of an existing
	// course are left alone; only UpdateCourseHours writes them.
	SaveCourse(ctx context.Context, c model.Course) error
	UpdateCourseHours(ctx context.Context, id string, completed, scheduled float64) error

	// LoadProgram returns ErrNotFound when the owner has no program yet.
	LoadProgram(ctx context.Context, ownerID string) (model.Program, error)
	SaveProgram(ctx context.Context, p model.Program) error

	// InTx runs fn against a transactional view. If fn returns an error no
	// write made through tx is visible afterwards.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

func matches(f SessionFilter, s model.Session) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if f.CourseID != nil && (s.CourseID == nil || *s.CourseID != *f.CourseID) {
		return false
	}
	if f.SeriesID != "" && s.SeriesKey() != f.SeriesID {
		return false
	}
	return true
}
