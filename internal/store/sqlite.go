package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"studyplan/internal/model"
	"studyplan/internal/recurrence"
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is the durable Store.
type SQLite struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// OpenSQLite creates or opens the database at dbPath, initializes the schema
// and applies pending migrations.
func OpenSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // single writer

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, q: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ects REAL NOT NULL DEFAULT 0,
			estimated_hours REAL NOT NULL DEFAULT 0,
			completed_hours REAL NOT NULL DEFAULT 0,
			scheduled_hours REAL NOT NULL DEFAULT 0,
			fully_completed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_courses_owner ON courses(owner_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			course_id TEXT REFERENCES courses(id) ON DELETE CASCADE,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_minutes INTEGER,
			title TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			completion_percentage INTEGER NOT NULL DEFAULT 0,
			last_modified INTEGER,
			recurring_series_id TEXT,
			is_exception INTEGER NOT NULL DEFAULT 0,
			recurrence_rule TEXT NOT NULL DEFAULT '',
			exception_dates TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_course ON sessions(course_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_series ON sessions(recurring_series_id)`,
		`CREATE TABLE IF NOT EXISTS programs (
			owner_id TEXT PRIMARY KEY,
			prior_ects REAL NOT NULL DEFAULT 0,
			hours_per_ects REAL NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies schema changes added after the initial schema. Each
// step is guarded so it is safe on every open.
func runMigrations(db *sql.DB) error {
	hasForeignID, err := columnExists(db, "sessions", "foreign_id")
	if err != nil {
		return fmt.Errorf("check foreign_id column: %w", err)
	}
	if !hasForeignID {
		migrations := []string{
			`ALTER TABLE sessions ADD COLUMN foreign_id TEXT NOT NULL DEFAULT ''`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_foreign_id ON sessions(foreign_id)`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration foreign_id: %w", err)
			}
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

const sessionColumns = `id, owner_id, course_id, date, start_time, end_time,
	COALESCE(duration_minutes, 0), title, completed, completion_percentage,
	COALESCE(last_modified, 0), recurring_series_id, is_exception,
	recurrence_rule, exception_dates, foreign_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		s          model.Session
		courseID   sql.NullString
		seriesID   sql.NullString
		date       string
		exceptions string
	)
	err := row.Scan(&s.ID, &s.OwnerID, &courseID, &date, &s.StartTime, &s.EndTime,
		&s.DurationMinutes, &s.Title, &s.Completed, &s.CompletionPercentage,
		&s.LastModified, &seriesID, &s.IsExceptionInstance,
		&s.RecurrenceRule, &exceptions, &s.ForeignID)
	if err != nil {
		return model.Session{}, err
	}
	if courseID.Valid {
		s.CourseID = &courseID.String
	}
	if seriesID.Valid {
		s.RecurringSeriesID = &seriesID.String
	}
	if d, err := time.Parse(time.DateOnly, date); err == nil {
		s.Date = d
	}
	// Unparseable legacy exception lists are dropped rather than failing reads.
	s.ExceptionDates, _ = recurrence.ParseDates(exceptions)
	return s, nil
}

func (s *SQLite) LoadSessions(ctx context.Context, f SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.CourseID != nil {
		query += ` AND course_id = ?`
		args = append(args, *f.CourseID)
	}
	if f.SeriesID != "" {
		query += ` AND recurring_series_id = ?`
		args = append(args, f.SeriesID)
	}
	query += ` ORDER BY date, start_time, id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLite) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLite) SaveSession(ctx context.Context, sess model.Session) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO sessions (
			id, owner_id, course_id, date, start_time, end_time, duration_minutes,
			title, completed, completion_percentage, last_modified,
			recurring_series_id, is_exception, recurrence_rule, exception_dates, foreign_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			course_id = excluded.course_id,
			date = excluded.date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration_minutes = excluded.duration_minutes,
			title = excluded.title,
			completed = excluded.completed,
			completion_percentage = excluded.completion_percentage,
			last_modified = excluded.last_modified,
			recurring_series_id = excluded.recurring_series_id,
			is_exception = excluded.is_exception,
			recurrence_rule = excluded.recurrence_rule,
			exception_dates = excluded.exception_dates,
			foreign_id = excluded.foreign_id`,
		sess.ID, sess.OwnerID, nullString(sess.CourseID), sess.Date.Format(time.DateOnly),
		sess.StartTime, sess.EndTime, sess.DurationMinutes,
		sess.Title, sess.Completed, sess.CompletionPercentage, sess.LastModified,
		nullString(sess.RecurringSeriesID), sess.IsExceptionInstance, sess.RecurrenceRule,
		recurrence.FormatDates(sess.ExceptionDates), sess.ForeignID,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireAffected(res, "session", id)
}

func (s *SQLite) LoadCourse(ctx context.Context, id string) (model.Course, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id, owner_id, name, ects, estimated_hours,
		completed_hours, scheduled_hours, fully_completed, created_at
		FROM courses WHERE id = ?`, id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Course{}, fmt.Errorf("load course: %w", err)
	}
	return c, nil
}

func (s *SQLite) ListCourses(ctx context.Context, ownerID string) ([]model.Course, error) {
	query := `SELECT id, owner_id, name, ects, estimated_hours,
		completed_hours, scheduled_hours, fully_completed, created_at FROM courses`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	out := make([]model.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCourse(row rowScanner) (model.Course, error) {
	var (
		c         model.Course
		createdAt int64
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.ECTS, &c.EstimatedHours,
		&c.CompletedHours, &c.ScheduledHours, &c.FullyCompleted, &createdAt)
	if err != nil {
		return model.Course{}, err
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return c, nil
}

func (s *SQLite) SaveCourse(ctx context.Context, c model.Course) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO courses (
			id, owner_id, name, ects, estimated_hours, completed_hours,
			scheduled_hours, fully_completed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			ects = excluded.ects,
			estimated_hours = excluded.estimated_hours,
			fully_completed = excluded.fully_completed`,
		c.ID, c.OwnerID, c.Name, c.ECTS, c.EstimatedHours, c.CompletedHours,
		c.ScheduledHours, c.FullyCompleted, c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save course %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateCourseHours(ctx context.Context, id string, completed, scheduled float64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE courses SET completed_hours = ?, scheduled_hours = ? WHERE id = ?`,
		completed, scheduled, id)
	if err != nil {
		return fmt.Errorf("update course hours %s: %w", id, err)
	}
	return requireAffected(res, "course", id)
}

func (s *SQLite) LoadProgram(ctx context.Context, ownerID string) (model.Program, error) {
	p := model.Program{OwnerID: ownerID}
	err := s.q.QueryRowContext(ctx,
		`SELECT prior_ects, hours_per_ects FROM programs WHERE owner_id = ?`, ownerID,
	).Scan(&p.PriorECTS, &p.HoursPerECTS)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Program{}, fmt.Errorf("program %s: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return model.Program{}, fmt.Errorf("load program: %w", err)
	}
	return p, nil
}

func (s *SQLite) SaveProgram(ctx context.Context, p model.Program) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO programs (owner_id, prior_ects, hours_per_ects)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			prior_ects = excluded.prior_ects,
			hours_per_ects = excluded.hours_per_ects`,
		p.OwnerID, p.PriorECTS, p.HoursPerECTS)
	if err != nil {
		return fmt.Errorf("save program %s: %w", p.OwnerID, err)
	}
	return nil
}

// InTx runs fn inside one database transaction. Nested calls reuse the
// outer transaction.
func (s *SQLite) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLite{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
