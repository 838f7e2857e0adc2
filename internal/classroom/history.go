package classroom

import (
	"context"
	"fmt"
	"time"
)

// SessionsOn lists a class's sessions whose start time falls within the
// calendar day containing day, i.e. [dayStart, dayStart+24h) in day's
// location.
func (s *Service) SessionsOn(ctx context.Context, classID, teacherID string, day time.Time) ([]Session, error) {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return nil, err
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	sessions, err := s.store.SessionsBetween(ctx, classID, dayStart, dayStart.Add(24*time.Hour))
	return sessions, wrapPersist(err)
}

// DeleteSession removes a session and everything recorded against it.
// Records are deleted first, then the session row; a failure in between is
// reported to the caller and not retried, leaving the session present with
// partial records rather than orphaning records of a deleted session.
// The class's active session cannot be deleted; stop it first.
func (s *Service) DeleteSession(ctx context.Context, classID, teacherID, sessionID string) error {
	cls, err := s.ownedClass(ctx, classID, teacherID)
	if err != nil {
		return err
	}
	if cls.ActiveSessionID != nil && *cls.ActiveSessionID == sessionID {
		return fmt.Errorf("%w: stop the session before deleting it", ErrSessionActive)
	}
	if _, err := s.store.GetSession(ctx, classID, sessionID); err != nil {
		return wrapPersist(err)
	}
	if err := s.store.DeleteRecords(ctx, classID, sessionID); err != nil {
		return fmt.Errorf("delete records: %w", wrapPersist(err))
	}
	if err := s.store.DeleteSession(ctx, classID, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", wrapPersist(err))
	}
	return nil
}
