package web

import (
	"fmt"
	"time"

	"studyplan/internal/model"
	"studyplan/internal/planner"
	"studyplan/internal/recurrence"
)

const dateLayout = "2006-01-02"

type courseDTO struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	ECTS           float64   `json:"ects"`
	EstimatedHours float64   `json:"estimated_hours"`
	CompletedHours float64   `json:"completed_hours"`
	ScheduledHours float64   `json:"scheduled_hours"`
	RemainingHours float64   `json:"remaining_hours"`
	FullyCompleted bool      `json:"fully_completed"`
	CreatedAt      time.Time `json:"created_at"`

	CompletedHoursDisplay float64 `json:"completed_hours_display"`
	ScheduledHoursDisplay float64 `json:"scheduled_hours_display"`
	RemainingHoursDisplay float64 `json:"remaining_hours_display"`
}

func toCourseDTO(c model.Course) courseDTO {
	remaining := planner.Remaining(c.EstimatedHours, c.CompletedHours, c.ScheduledHours)
	return courseDTO{
		ID:             c.ID,
		OwnerID:        c.OwnerID,
		Name:           c.Name,
		ECTS:           c.ECTS,
		EstimatedHours: c.EstimatedHours,
		CompletedHours: c.CompletedHours,
		ScheduledHours: c.ScheduledHours,
		RemainingHours: remaining,
		FullyCompleted: c.FullyCompleted,
		CreatedAt:      c.CreatedAt,

		CompletedHoursDisplay: planner.RoundDisplay(c.CompletedHours),
		ScheduledHoursDisplay: planner.RoundDisplay(c.ScheduledHours),
		RemainingHoursDisplay: planner.RoundDisplay(remaining),
	}
}

type sessionDTO struct {
	ID                   string   `json:"id"`
	OwnerID              string   `json:"owner_id"`
	CourseID             *string  `json:"course_id"`
	Date                 string   `json:"date"`
	StartTime            string   `json:"start_time"`
	EndTime              string   `json:"end_time"`
	DurationMinutes      int      `json:"duration_minutes"`
	Title                string   `json:"title,omitempty"`
	Completed            bool     `json:"completed"`
	CompletionPercentage int      `json:"completion_percentage"`
	LastModified         int64    `json:"last_modified"`
	RecurringSeriesID    *string  `json:"recurring_series_id,omitempty"`
	IsExceptionInstance  bool     `json:"is_exception_instance"`
	RecurrenceRule       string   `json:"recurrence_rule,omitempty"`
	ExceptionDates       []string `json:"exception_dates,omitempty"`
	ForeignID            string   `json:"foreign_id,omitempty"`
}

func toSessionDTO(s model.Session) sessionDTO {
	out := sessionDTO{
		ID:                   s.ID,
		OwnerID:              s.OwnerID,
		CourseID:             s.CourseID,
		Date:                 s.Date.Format(dateLayout),
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
		DurationMinutes:      s.DurationMinutes,
		Title:                s.Title,
		Completed:            s.Completed,
		CompletionPercentage: s.CompletionPercentage,
		LastModified:         s.LastModified,
		RecurringSeriesID:    s.RecurringSeriesID,
		IsExceptionInstance:  s.IsExceptionInstance,
		RecurrenceRule:       s.RecurrenceRule,
		ForeignID:            s.ForeignID,
	}
	for _, d := range s.ExceptionDates {
		out.ExceptionDates = append(out.ExceptionDates, d.Format(dateLayout))
	}
	return out
}

func toSessionDTOs(in []model.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(in))
	for _, s := range in {
		out = append(out, toSessionDTO(s))
	}
	return out
}

type progressDTO struct {
	OwnerID         string  `json:"owner_id"`
	EstimatedHours  float64 `json:"estimated_hours"`
	PriorHours      float64 `json:"prior_hours"`
	CompletedHours  float64 `json:"completed_hours"`
	ScheduledHours  float64 `json:"scheduled_hours"`
	UnassignedHours float64 `json:"unassigned_hours"`
	RemainingHours  float64 `json:"remaining_hours"`

	CompletedHoursDisplay float64 `json:"completed_hours_display"`
	ScheduledHoursDisplay float64 `json:"scheduled_hours_display"`
	RemainingHoursDisplay float64 `json:"remaining_hours_display"`
}

func toProgressDTO(owner string, p planner.Progress) progressDTO {
	return progressDTO{
		OwnerID:         owner,
		EstimatedHours:  p.EstimatedHours,
		PriorHours:      p.PriorHours,
		CompletedHours:  p.CompletedHours,
		ScheduledHours:  p.ScheduledHours,
		UnassignedHours: p.UnassignedHours,
		RemainingHours:  p.RemainingHours,

		CompletedHoursDisplay: planner.RoundDisplay(p.CompletedHours),
		ScheduledHoursDisplay: planner.RoundDisplay(p.ScheduledHours),
		RemainingHoursDisplay: planner.RoundDisplay(p.RemainingHours),
	}
}

type createCourseRequest struct {
	OwnerID string  `json:"owner_id"`
	Name    string  `json:"name"`
	ECTS    float64 `json:"ects"`
}

type createSessionRequest struct {
	OwnerID              string   `json:"owner_id"`
	CourseID             *string  `json:"course_id"`
	Date                 string   `json:"date"`
	StartTime            string   `json:"start_time"`
	EndTime              string   `json:"end_time"`
	Title                string   `json:"title"`
	Completed            bool     `json:"completed"`
	CompletionPercentage int      `json:"completion_percentage"`
	RecurrenceRule       string   `json:"recurrence_rule"`
	ExceptionDates       []string `json:"exception_dates"`
}

func (req createSessionRequest) toNewSession() (planner.NewSession, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return planner.NewSession{}, err
	}
	in := planner.NewSession{
		OwnerID:              req.OwnerID,
		CourseID:             req.CourseID,
		Date:                 date,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Title:                req.Title,
		Completed:            req.Completed,
		CompletionPercentage: req.CompletionPercentage,
	}
	if req.RecurrenceRule != "" {
		p, err := recurrence.Decode(req.RecurrenceRule)
		if err != nil {
			return planner.NewSession{}, err
		}
		in.Pattern = &p
	}
	for _, raw := range req.ExceptionDates {
		d, err := parseDate(raw)
		if err != nil {
			return planner.NewSession{}, err
		}
		in.Exceptions = append(in.Exceptions, d)
	}
	return in, nil
}

type updateSessionRequest struct {
	Date                 *string `json:"date"`
	StartTime            *string `json:"start_time"`
	EndTime              *string `json:"end_time"`
	Title                *string `json:"title"`
	CourseID             *string `json:"course_id"`
	ClearCourse          bool    `json:"clear_course"`
	Completed            *bool   `json:"completed"`
	CompletionPercentage *int    `json:"completion_percentage"`
}

func (req updateSessionRequest) toPatch() (planner.SessionPatch, error) {
	patch := planner.SessionPatch{
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Title:                req.Title,
		CourseID:             req.CourseID,
		ClearCourse:          req.ClearCourse,
		Completed:            req.Completed,
		CompletionPercentage: req.CompletionPercentage,
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return planner.SessionPatch{}, err
		}
		patch.Date = &d
	}
	return patch, nil
}

type patternRequest struct {
	RecurrenceRule string `json:"recurrence_rule"`
}

type programRequest struct {
	PriorECTS float64 `json:"prior_ects"`
}

type completedRequest struct {
	Completed bool `json:"completed"`
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: want YYYY-MM-DD", errBadRequest, s)
	}
	return d, nil
}
