package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/classroom"
)

// Postgres persists classroom data via database/sql.
type Postgres struct {
	db *sql.DB
}

var _ classroom.Store = (*Postgres)(nil)

// NewPostgres creates the store and ensures the schema exists.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id         TEXT PRIMARY KEY,
		username   TEXT UNIQUE NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'student',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS classes (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		teacher_id        TEXT NOT NULL REFERENCES profiles(id),
		online_mode       BOOLEAN NOT NULL DEFAULT FALSE,
		active_session_id TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS classes_students (
		class_id   TEXT NOT NULL REFERENCES classes(id),
		student_id TEXT NOT NULL REFERENCES profiles(id),
		added_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (class_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS class_sessions (
		id         TEXT PRIMARY KEY,
		class_id   TEXT NOT NULL REFERENCES classes(id),
		start_time TIMESTAMPTZ NOT NULL,
		end_time   TIMESTAMPTZ,
		center_lat DOUBLE PRECISION,
		center_lng DOUBLE PRECISION,
		radius_m   DOUBLE PRECISION
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		class_id   TEXT NOT NULL,
		session_id TEXT NOT NULL REFERENCES class_sessions(id),
		student_id TEXT NOT NULL REFERENCES profiles(id),
		status     TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, student_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_class_start ON class_sessions(class_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_records_session ON attendance_records(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

// ---- classes ----

func (s *Postgres) CreateClass(ctx context.Context, c classroom.Class) (classroom.Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, name, teacher_id, online_mode)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.Name, c.TeacherID, c.OnlineMode)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return classroom.Class{}, err
	}
	return c, nil
}

func (s *Postgres) GetClass(ctx context.Context, id string) (classroom.Class, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, teacher_id, online_mode, active_session_id, created_at
		FROM classes WHERE id = $1
	`, id)
	var c classroom.Class
	if err := row.Scan(&c.ID, &c.Name, &c.TeacherID, &c.OnlineMode, &c.ActiveSessionID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classroom.Class{}, classroom.ErrNotFound
		}
		return classroom.Class{}, err
	}
	return c, nil
}

func (s *Postgres) SetOnlineMode(ctx context.Context, classID string, online bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE classes SET online_mode = $2 WHERE id = $1`, classID, online)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Postgres) ActivateClass(ctx context.Context, classID, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE classes SET active_session_id = $2
		WHERE id = $1 AND active_session_id IS NULL
	`, classID, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the class is gone or another start won the race.
		if _, err := s.GetClass(ctx, classID); err != nil {
			return err
		}
		return classroom.ErrSessionActive
	}
	return nil
}

func (s *Postgres) DeactivateClass(ctx context.Context, classID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE classes SET active_session_id = NULL WHERE id = $1`, classID)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

// ---- roster ----

func (s *Postgres) Enroll(ctx context.Context, classID, studentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes_students (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (class_id, student_id) DO NOTHING
	`, classID, studentID)
	return err
}

func (s *Postgres) Unenroll(ctx context.Context, classID, studentID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM classes_students WHERE class_id = $1 AND student_id = $2
	`, classID, studentID)
	return err
}

func (s *Postgres) Roster(ctx context.Context, classID string) ([]classroom.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.username, p.name, p.role, p.created_at
		FROM classes_students cs
		JOIN profiles p ON p.id = cs.student_id
		WHERE cs.class_id = $1
		ORDER BY cs.added_at, p.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []classroom.Profile
	for rows.Next() {
		var p classroom.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.Name, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		roster = append(roster, p)
	}
	return roster, rows.Err()
}

// ---- sessions ----

func (s *Postgres) CreateSession(ctx context.Context, sess classroom.Session) (classroom.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartTime.IsZero() {
		sess.StartTime = time.Now().UTC()
	}
	var lat, lng, radius *float64
	if gf := sess.Geofence; gf != nil {
		lat, lng, radius = &gf.Lat, &gf.Lng, &gf.Radius
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, class_id, start_time, end_time, center_lat, center_lng, radius_m)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.ClassID, sess.StartTime, sess.EndTime, lat, lng, radius)
	if err != nil {
		return classroom.Session{}, err
	}
	return sess, nil
}

func (s *Postgres) GetSession(ctx context.Context, classID, sessionID string) (classroom.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, class_id, start_time, end_time, center_lat, center_lng, radius_m
		FROM class_sessions WHERE id = $1 AND class_id = $2
	`, sessionID, classID)
	return scanSession(row)
}

func (s *Postgres) UpdateSessionGeofence(ctx context.Context, sessionID string, g classroom.Geofence) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET center_lat = $2, center_lng = $3, radius_m = $4
		WHERE id = $1
	`, sessionID, g.Lat, g.Lng, g.Radius)
	if err != nil {
		return err
	}
	return errIfNoRows(res)
}

func (s *Postgres) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	// Missing session is a no-op so stopping a class with a stale pointer
	// stays safe.
	_, err := s.db.ExecContext(ctx, `
		UPDATE class_sessions SET end_time = $2 WHERE id = $1 AND end_time IS NULL
	`, sessionID, at)
	return err
}

func (s *Postgres) SessionsBetween(ctx context.Context, classID string, from, to time.Time) ([]classroom.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, class_id, start_time, end_time, center_lat, center_lng, radius_m
		FROM class_sessions
		WHERE class_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`, classID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []classroom.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Postgres) DeleteSession(ctx context.Context, classID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM class_sessions WHERE id = $1 AND class_id = $2
	`, sessionID, classID)
	return err
}

// ---- attendance records ----

func (s *Postgres) UpsertRecord(ctx context.Context, rec classroom.AttendanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (class_id, session_id, student_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, rec.ClassID, rec.SessionID, rec.StudentID, rec.Status, rec.UpdatedAt)
	return err
}

func (s *Postgres) RecordsForSession(ctx context.Context, classID, sessionID string) ([]classroom.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT class_id, session_id, student_id, status, updated_at
		FROM attendance_records
		WHERE class_id = $1 AND session_id = $2
	`, classID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []classroom.AttendanceRecord
	for rows.Next() {
		var rec classroom.AttendanceRecord
		if err := rows.Scan(&rec.ClassID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Postgres) DeleteRecords(ctx context.Context, classID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM attendance_records WHERE class_id = $1 AND session_id = $2
	`, classID, sessionID)
	return err
}

// ---- profiles ----

func (s *Postgres) CreateProfile(ctx context.Context, p classroom.Profile) (classroom.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = "student"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, username, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, p.ID, p.Username, p.Name, p.Role)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return classroom.Profile{}, err
	}
	return p, nil
}

func (s *Postgres) GetProfile(ctx context.Context, id string) (classroom.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, role, created_at FROM profiles WHERE id = $1
	`, id)
	return scanProfile(row)
}

func (s *Postgres) ProfileByUsername(ctx context.Context, username string) (classroom.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, role, created_at FROM profiles WHERE username = $1
	`, username)
	return scanProfile(row)
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (classroom.Session, error) {
	var sess classroom.Session
	var lat, lng, radius *float64
	if err := row.Scan(&sess.ID, &sess.ClassID, &sess.StartTime, &sess.EndTime, &lat, &lng, &radius); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classroom.Session{}, classroom.ErrNotFound
		}
		return classroom.Session{}, err
	}
	if lat != nil && lng != nil && radius != nil {
		sess.Geofence = &classroom.Geofence{Lat: *lat, Lng: *lng, Radius: *radius}
	}
	return sess, nil
}

func scanProfile(row rowScanner) (classroom.Profile, error) {
	var p classroom.Profile
	if err := row.Scan(&p.ID, &p.Username, &p.Name, &p.Role, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classroom.Profile{}, classroom.ErrNotFound
		}
		return classroom.Profile{}, err
	}
	return p, nil
}

func errIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return classroom.ErrNotFound
	}
	return nil
}
