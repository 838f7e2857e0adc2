package classroom

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Every operation failure maps to one of these so the HTTP
// layer can translate without inspecting messages.
var (
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrSessionActive       = errors.New("class already has an active session")
	ErrGeofenceRequired    = errors.New("active session has no geofence")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrOutOfRange          = errors.New("out of allowed range")
)

// Status is the attendance state of one student for one session. Unmarked
// means no session context exists at all, as opposed to Absent which means
// a session ran and the student has no present record.
type Status string

const (
	StatusPresent  Status = "present"
	StatusAbsent   Status = "absent"
	StatusUnmarked Status = "unmarked"
)

// Valid reports whether s is a status a caller may write. Unmarked is a
// reconciler default, never stored.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Class is a course owned by one teacher with an enrolled roster.
// ActiveSessionID is the authoritative proof that a session is running.
type Class struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	TeacherID       string    `json:"teacher_id"`
	OnlineMode      bool      `json:"online_mode"`
	ActiveSessionID *string   `json:"active_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Geofence is the allowed check-in area for a session.
type Geofence struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius_m"`
}

// Session is one timed class meeting. EndTime nil means ongoing. Geofence
// is set only for sessions started with online mode off.
type Session struct {
	ID        string     `json:"id"`
	ClassID   string     `json:"class_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Geofence  *Geofence  `json:"geofence,omitempty"`
}

// Ended reports whether the session is terminal.
func (s Session) Ended() bool { return s.EndTime != nil }

// AttendanceRecord is the stored status of one student for one session.
// At most one record exists per (session, student); writes are upserts.
type AttendanceRecord struct {
	ClassID   string    `json:"class_id"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the display identity of a user.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// wrapPersist tags unexpected storage errors with ErrPersistenceFailure
// while letting domain sentinels pass through untouched.
func wrapPersist(err error) error {
	if err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionActive) ||
		errors.Is(err, ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
}
