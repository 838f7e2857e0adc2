package classroom

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service exposes class, roster and attendance operations on top of the
// store, returning reconciled views after every mutation.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CreateClass registers a new class owned by teacherID.
func (s *Service) CreateClass(ctx context.Context, name, teacherID string) (Class, error) {
	if name == "" {
		return Class{}, errors.New("class name required")
	}
	cls, err := s.store.CreateClass(ctx, Class{Name: name, TeacherID: teacherID})
	return cls, wrapPersist(err)
}

// GetClass returns a class by id.
func (s *Service) GetClass(ctx context.Context, classID string) (Class, error) {
	cls, err := s.store.GetClass(ctx, classID)
	return cls, wrapPersist(err)
}

// Enroll adds a student to a class roster. Allowed at any time, including
// mid-session; past session snapshots are not rewritten, but see Reconcile
// for how live roster reads affect historical views.
func (s *Service) Enroll(ctx context.Context, classID, teacherID, studentID string) error {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return err
	}
	if _, err := s.store.GetProfile(ctx, studentID); err != nil {
		return wrapPersist(err)
	}
	return wrapPersist(s.store.Enroll(ctx, classID, studentID))
}

// Unenroll removes a student from a class roster.
func (s *Service) Unenroll(ctx context.Context, classID, teacherID, studentID string) error {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return err
	}
	return wrapPersist(s.store.Unenroll(ctx, classID, studentID))
}

// Roster returns the class roster in enrollment order.
func (s *Service) Roster(ctx context.Context, classID, teacherID string) ([]Profile, error) {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return nil, err
	}
	roster, err := s.store.Roster(ctx, classID)
	return roster, wrapPersist(err)
}

// SetAttendance upserts the status of one student for one session: an
// existing (session, student) record is updated in place, otherwise a new
// record is inserted with the current timestamp. The session only has to
// exist — editing historical sessions is allowed so past records can be
// corrected. Returns the re-reconciled view.
func (s *Service) SetAttendance(ctx context.Context, classID, teacherID, sessionID, studentID string, status Status) ([]Entry, error) {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	if _, err := s.store.GetSession(ctx, classID, sessionID); err != nil {
		return nil, wrapPersist(err)
	}
	err := s.store.UpsertRecord(ctx, AttendanceRecord{
		ClassID:   classID,
		SessionID: sessionID,
		StudentID: studentID,
		Status:    status,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, wrapPersist(err)
	}
	return s.reconciledRecords(ctx, classID, sessionID)
}

// RecordPresence marks studentID present on an existing session. It skips
// the teacher ownership check; callers gate access themselves (the
// self-check-in flow, the bulk-mark worker applying teacher uploads).
func (s *Service) RecordPresence(ctx context.Context, classID, sessionID, studentID string) error {
	if _, err := s.store.GetSession(ctx, classID, sessionID); err != nil {
		return wrapPersist(err)
	}
	return wrapPersist(s.store.UpsertRecord(ctx, AttendanceRecord{
		ClassID:   classID,
		SessionID: sessionID,
		StudentID: studentID,
		Status:    StatusPresent,
		UpdatedAt: s.now(),
	}))
}

// ResetAttendance deletes every record for the session, reverting each
// roster member to the reconciler's implicit absent default.
func (s *Service) ResetAttendance(ctx context.Context, classID, teacherID, sessionID string) error {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return err
	}
	if _, err := s.store.GetSession(ctx, classID, sessionID); err != nil {
		return wrapPersist(err)
	}
	return wrapPersist(s.store.DeleteRecords(ctx, classID, sessionID))
}

// Records returns the reconciled per-student view for one session: one
// entry per current roster member, defaulting to absent.
func (s *Service) Records(ctx context.Context, classID, teacherID, sessionID string) ([]Entry, error) {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return nil, err
	}
	return s.reconciledRecords(ctx, classID, sessionID)
}

func (s *Service) reconciledRecords(ctx context.Context, classID, sessionID string) ([]Entry, error) {
	if _, err := s.store.GetSession(ctx, classID, sessionID); err != nil {
		return nil, wrapPersist(err)
	}
	roster, err := s.store.Roster(ctx, classID)
	if err != nil {
		return nil, wrapPersist(err)
	}
	records, err := s.store.RecordsForSession(ctx, classID, sessionID)
	if err != nil {
		return nil, wrapPersist(err)
	}
	return Reconcile(roster, records, StatusAbsent), nil
}

// CurrentView returns the attendance view for the class's active session,
// or an all-unmarked roster view when no session is running.
func (s *Service) CurrentView(ctx context.Context, classID, teacherID string) ([]Entry, error) {
	cls, err := s.ownedClass(ctx, classID, teacherID)
	if err != nil {
		return nil, err
	}
	if cls.ActiveSessionID == nil {
		roster, err := s.store.Roster(ctx, classID)
		if err != nil {
			return nil, wrapPersist(err)
		}
		return Reconcile(roster, nil, StatusUnmarked), nil
	}
	return s.reconciledRecords(ctx, classID, *cls.ActiveSessionID)
}

func (s *Service) ownedClass(ctx context.Context, classID, teacherID string) (Class, error) {
	cls, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return Class{}, wrapPersist(err)
	}
	if cls.TeacherID != teacherID {
		return Class{}, fmt.Errorf("%w: class %s is not owned by %s", ErrPermissionDenied, classID, teacherID)
	}
	return cls, nil
}
