package classroom

import (
	"context"
	"time"
)

// Store is the persistence boundary: a record store queryable by equality
// and date range. Implementations must return ErrNotFound for missing rows
// and ErrSessionActive from ActivateClass when the class already carries an
// active session.
type Store interface {
	// Classes.
	CreateClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id string) (Class, error)
	SetOnlineMode(ctx context.Context, classID string, online bool) error
	// ActivateClass sets active_session_id only if it is currently null.
	// The conditional update is what closes the start/start race.
	ActivateClass(ctx context.Context, classID, sessionID string) error
	DeactivateClass(ctx context.Context, classID string) error

	// Roster. Enrollment order is preserved by Roster.
	Enroll(ctx context.Context, classID, studentID string) error
	Unenroll(ctx context.Context, classID, studentID string) error
	Roster(ctx context.Context, classID string) ([]Profile, error)

	// Sessions.
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, classID, sessionID string) (Session, error)
	UpdateSessionGeofence(ctx context.Context, sessionID string, g Geofence) error
	// EndSession is a no-op (not an error) when the session does not exist.
	EndSession(ctx context.Context, sessionID string, at time.Time) error
	SessionsBetween(ctx context.Context, classID string, from, to time.Time) ([]Session, error)
	DeleteSession(ctx context.Context, classID, sessionID string) error

	// Attendance records, keyed by (session, student).
	UpsertRecord(ctx context.Context, rec AttendanceRecord) error
	RecordsForSession(ctx context.Context, classID, sessionID string) ([]AttendanceRecord, error)
	DeleteRecords(ctx context.Context, classID, sessionID string) error

	// Profiles.
	CreateProfile(ctx context.Context, p Profile) (Profile, error)
	GetProfile(ctx context.Context, id string) (Profile, error)
	ProfileByUsername(ctx context.Context, username string) (Profile, error)
}
