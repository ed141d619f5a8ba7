package planner

import (
	"math"

	"studyplan/internal/model"
)

// CourseHours is the derived hour state of one course.
type CourseHours struct {
	CompletedHours float64 `json:"completed_hours"`
	ScheduledHours float64 `json:"scheduled_hours"`
	// RemainingHours is for display only and never negative.
	RemainingHours float64 `json:"remaining_hours"`
}

// Reconcile recomputes a course's hour buckets from its full session set.
// Sessions assigned to other courses (or to none) are ignored. A completed
// session counts its whole duration, whatever its completion percentage.
func Reconcile(course model.Course, sessions []model.Session) CourseHours {
	var h CourseHours
	for _, s := range sessions {
		if s.CourseID == nil || *s.CourseID != course.ID {
			continue
		}
		if s.Completed {
			h.CompletedHours += s.Hours()
		} else {
			h.ScheduledHours += s.Hours()
		}
	}
	h.RemainingHours = Remaining(course.EstimatedHours, h.CompletedHours, h.ScheduledHours)
	return h
}

// Remaining is max(0, estimated - completed - scheduled).
func Remaining(estimated, completed, scheduled float64) float64 {
	return math.Max(0, estimated-completed-scheduled)
}

// UnassignedScheduledHours sums incomplete sessions without a course.
func UnassignedScheduledHours(sessions []model.Session) float64 {
	var total float64
	for _, s := range sessions {
		if s.CourseID == nil && !s.Completed {
			total += s.Hours()
		}
	}
	return total
}

// Progress is the program-wide aggregate shown on the dashboard.
type Progress struct {
	EstimatedHours float64 `json:"estimated_hours"`
	// PriorHours is prior credit after subtracting fully completed courses.
	PriorHours     float64 `json:"prior_hours"`
	CompletedHours float64 `json:"completed_hours"`
	ScheduledHours float64 `json:"scheduled_hours"`
	// UnassignedHours is the part of ScheduledHours not tied to a course.
	UnassignedHours float64 `json:"unassigned_hours"`
	RemainingHours  float64 `json:"remaining_hours"`
}

// ProgramProgress combines per-course reconciled hours with the program's
// prior credit. Prior credit is reduced by the hour equivalent of every
// course marked fully completed, so such a course is not counted both as
// prior credit and through its own completed sessions.
func ProgramProgress(program model.Program, courses []model.Course, sessions []model.Session) Progress {
	var p Progress

	prior := program.PriorHours()
	for _, c := range courses {
		h := Reconcile(c, sessions)
		p.EstimatedHours += c.EstimatedHours
		p.CompletedHours += h.CompletedHours
		p.ScheduledHours += h.ScheduledHours
		if c.FullyCompleted {
			prior -= c.ECTS * program.HoursPerECTS
		}
	}
	p.PriorHours = math.Max(0, prior)
	p.CompletedHours += p.PriorHours

	p.UnassignedHours = UnassignedScheduledHours(sessions)
	p.ScheduledHours += p.UnassignedHours

	p.RemainingHours = Remaining(p.EstimatedHours+p.PriorHours, p.CompletedHours, p.ScheduledHours)
	return p
}

// RoundDisplay rounds to one decimal for presentation. Stored aggregates are
// never rounded.
func RoundDisplay(h float64) float64 {
	return math.Round(h*10) / 10
}
