package classroom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"classtrack/internal/geoloc"
)

// Manager drives the per-class session state machine: Inactive <-> Active.
// It caches the current session id per class but always reconciles against
// the authoritative class row before acting; the cache is invalidated on
// every stop.
type Manager struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	current map[string]string // classID -> active session id
	pending map[string]bool   // classID -> online-off toggle awaiting geofence

	// OnTransition, when set, is called after a successful start (active
	// true) or stop (active false) so dependents can rebuild their views.
	OnTransition func(classID, sessionID string, active bool)
}

// NewManager creates a lifecycle manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
		current: make(map[string]string),
		pending: make(map[string]bool),
	}
}

func (m *Manager) ownedClass(ctx context.Context, classID, teacherID string) (Class, error) {
	cls, err := m.store.GetClass(ctx, classID)
	if err != nil {
		return Class{}, wrapPersist(err)
	}
	if cls.TeacherID != teacherID {
		return Class{}, fmt.Errorf("%w: class %s is not owned by %s", ErrPermissionDenied, classID, teacherID)
	}
	return cls, nil
}

// Start transitions a class from Inactive to Active. With online mode on
// the session carries no geofence. With online mode off a positive radius
// is required and the teacher's current position is sampled from p before
// anything is persisted; a provider failure surfaces as
// ErrLocationUnavailable and leaves the class inactive.
func (m *Manager) Start(ctx context.Context, p geoloc.Provider, classID, teacherID string, radius float64) (Session, error) {
	cls, err := m.ownedClass(ctx, classID, teacherID)
	if err != nil {
		return Session{}, err
	}
	if cls.ActiveSessionID != nil {
		return Session{}, ErrSessionActive
	}

	var gf *Geofence
	if !cls.OnlineMode {
		if radius <= 0 {
			return Session{}, errors.New("positive radius required when online mode is off")
		}
		pos, err := p.Current(ctx)
		if err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
		}
		gf = &Geofence{Lat: pos.Lat, Lng: pos.Lng, Radius: radius}
	}

	sess, err := m.store.CreateSession(ctx, Session{
		ClassID:   classID,
		StartTime: m.now(),
		Geofence:  gf,
	})
	if err != nil {
		return Session{}, wrapPersist(err)
	}
	if err := m.store.ActivateClass(ctx, classID, sess.ID); err != nil {
		// Lost the activation race or the update failed: remove the
		// session so no partial state survives.
		_ = m.store.DeleteSession(ctx, classID, sess.ID)
		return Session{}, wrapPersist(err)
	}

	m.mu.Lock()
	m.current[classID] = sess.ID
	m.mu.Unlock()

	if m.OnTransition != nil {
		m.OnTransition(classID, sess.ID, true)
	}
	return sess, nil
}

// Stop transitions a class from Active to Inactive: the session's end time
// is set and the class's active pointer cleared. Safe to call when no
// session is running; the session update is an idempotent no-op then.
func (m *Manager) Stop(ctx context.Context, classID, teacherID string) error {
	cls, err := m.ownedClass(ctx, classID, teacherID)
	if err != nil {
		return err
	}

	var ended string
	if cls.ActiveSessionID != nil {
		ended = *cls.ActiveSessionID
		if err := m.store.EndSession(ctx, ended, m.now()); err != nil {
			return wrapPersist(err)
		}
	}
	if err := m.store.DeactivateClass(ctx, classID); err != nil {
		return wrapPersist(err)
	}

	m.mu.Lock()
	delete(m.current, classID)
	delete(m.pending, classID)
	m.mu.Unlock()

	if m.OnTransition != nil {
		m.OnTransition(classID, ended, false)
	}
	return nil
}

// SetOnlineMode toggles a class's online flag. Turning online mode off
// while a session is active requires that session to already carry a
// geofence; if it does not, the toggle is recorded as pending and
// ErrGeofenceRequired is returned. The caller completes the switch with
// SetGeofence or abandons it with CancelPending.
func (m *Manager) SetOnlineMode(ctx context.Context, classID, teacherID string, online bool) error {
	cls, err := m.ownedClass(ctx, classID, teacherID)
	if err != nil {
		return err
	}

	if !online && cls.ActiveSessionID != nil {
		sess, err := m.store.GetSession(ctx, classID, *cls.ActiveSessionID)
		if err != nil {
			return wrapPersist(err)
		}
		if sess.Geofence == nil {
			m.mu.Lock()
			m.pending[classID] = true
			m.mu.Unlock()
			return ErrGeofenceRequired
		}
	}

	if err := m.store.SetOnlineMode(ctx, classID, online); err != nil {
		return wrapPersist(err)
	}
	m.mu.Lock()
	delete(m.pending, classID)
	m.mu.Unlock()
	return nil
}

// SetGeofence overwrites the active session's geofence. The teacher's
// position is re-sampled from p on every call, never reused from the
// session being edited, so moving classrooms takes effect immediately.
// A pending online-off toggle is completed once the geofence is in place.
func (m *Manager) SetGeofence(ctx context.Context, p geoloc.Provider, classID, teacherID string, radius float64) (Geofence, error) {
	cls, err := m.ownedClass(ctx, classID, teacherID)
	if err != nil {
		return Geofence{}, err
	}
	if cls.ActiveSessionID == nil {
		return Geofence{}, fmt.Errorf("%w: class has no active session", ErrNotFound)
	}
	if radius <= 0 {
		return Geofence{}, errors.New("positive radius required")
	}

	pos, err := p.Current(ctx)
	if err != nil {
		return Geofence{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	gf := Geofence{Lat: pos.Lat, Lng: pos.Lng, Radius: radius}
	if err := m.store.UpdateSessionGeofence(ctx, *cls.ActiveSessionID, gf); err != nil {
		return Geofence{}, wrapPersist(err)
	}

	m.mu.Lock()
	wasPending := m.pending[classID]
	delete(m.pending, classID)
	m.mu.Unlock()

	if wasPending {
		if err := m.store.SetOnlineMode(ctx, classID, false); err != nil {
			return gf, wrapPersist(err)
		}
	}
	return gf, nil
}

// CancelPending abandons a deferred online-off toggle, leaving the class
// in online mode.
func (m *Manager) CancelPending(classID string) {
	m.mu.Lock()
	delete(m.pending, classID)
	m.mu.Unlock()
}

// PendingToggle reports whether an online-off toggle is waiting on
// geofence capture for the class.
func (m *Manager) PendingToggle(classID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[classID]
}

// CurrentSession returns the manager's cached session id for the class,
// if any. The class row remains authoritative.
func (m *Manager) CurrentSession(classID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.current[classID]
	return id, ok
}
