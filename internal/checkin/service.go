package checkin

import (
	"context"
	"errors"
	"fmt"

	"classtrack/internal/classroom"
	"classtrack/internal/faceclient"
)

// Check-in failures beyond the shared classroom taxonomy.
var (
	ErrFaceRejected    = errors.New("face verification failed")
	ErrSelfCheckInOff  = errors.New("self check-in is disabled for this class")
	ErrSessionInactive = errors.New("session is not currently running")
)

// Service handles student self-check-in: the location gate, the face
// oracle and finally the attendance mark.
type Service struct {
	store    classroom.Store
	att      *classroom.Service
	verifier *Verifier
	face     *faceclient.Client
}

// NewService wires the check-in flow.
func NewService(store classroom.Store, att *classroom.Service, verifier *Verifier, face *faceclient.Client) *Service {
	return &Service{store: store, att: att, verifier: verifier, face: face}
}

// CheckIn marks studentID present on the class's active session, provided
// the location gate and the face oracle both pass.
//
// The location gate is skipped entirely when the session carries no
// geofence; otherwise the verifier's last outcome for this session must be
// valid. The face oracle is an opaque boolean: a rejection leaves all
// attendance state untouched.
func (s *Service) CheckIn(ctx context.Context, classID, sessionID, studentID, imageURL string) error {
	cls, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return err
	}
	if cls.OnlineMode {
		// Online mode delegates marking entirely to the teacher.
		return ErrSelfCheckInOff
	}
	if cls.ActiveSessionID == nil || *cls.ActiveSessionID != sessionID {
		return ErrSessionInactive
	}
	if err := s.requireEnrolled(ctx, classID, studentID); err != nil {
		return err
	}
	sess, err := s.store.GetSession(ctx, classID, sessionID)
	if err != nil {
		return err
	}

	if sess.Geofence != nil {
		if out := s.verifier.Outcome(sessionID, studentID); out != OutcomeValid {
			return fmt.Errorf("%w: location check outcome is %q", classroom.ErrOutOfRange, out)
		}
	}

	res, err := s.face.Verify(ctx, studentID, imageURL)
	if err != nil {
		return fmt.Errorf("face service: %w", err)
	}
	if !res.Verified {
		return ErrFaceRejected
	}

	return s.att.RecordPresence(ctx, classID, sessionID, studentID)
}

// requireEnrolled rejects check-ins from students outside the class
// roster; their records would never appear in any reconciled view.
func (s *Service) requireEnrolled(ctx context.Context, classID, studentID string) error {
	roster, err := s.store.Roster(ctx, classID)
	if err != nil {
		return err
	}
	for _, p := range roster {
		if p.ID == studentID {
			return nil
		}
	}
	return fmt.Errorf("%w: student %s is not enrolled in class %s", classroom.ErrPermissionDenied, studentID, classID)
}
