package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/classroom"
)

// Memory is an in-process classroom.Store used for tests and the
// STORE_BACKEND=memory dev mode.
type Memory struct {
	mu       sync.RWMutex
	classes  map[string]*classroom.Class
	sessions map[string]*classroom.Session
	// records keyed by sessionID -> studentID, insertion order not needed
	// since the reconciler orders by roster.
	records  map[string]map[string]classroom.AttendanceRecord
	roster   map[string][]string // classID -> studentIDs in enrollment order
	profiles map[string]*classroom.Profile
}

var _ classroom.Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		classes:  make(map[string]*classroom.Class),
		sessions: make(map[string]*classroom.Session),
		records:  make(map[string]map[string]classroom.AttendanceRecord),
		roster:   make(map[string][]string),
		profiles: make(map[string]*classroom.Profile),
	}
}

// ---- classes ----

func (m *Memory) CreateClass(ctx context.Context, c classroom.Class) (classroom.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := c
	m.classes[c.ID] = &cp
	return c, nil
}

func (m *Memory) GetClass(ctx context.Context, id string) (classroom.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cls, ok := m.classes[id]
	if !ok {
		return classroom.Class{}, classroom.ErrNotFound
	}
	out := *cls
	if cls.ActiveSessionID != nil {
		sid := *cls.ActiveSessionID
		out.ActiveSessionID = &sid
	}
	return out, nil
}

func (m *Memory) SetOnlineMode(ctx context.Context, classID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cls, ok := m.classes[classID]
	if !ok {
		return classroom.ErrNotFound
	}
	cls.OnlineMode = online
	return nil
}

func (m *Memory) ActivateClass(ctx context.Context, classID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cls, ok := m.classes[classID]
	if !ok {
		return classroom.ErrNotFound
	}
	if cls.ActiveSessionID != nil {
		return classroom.ErrSessionActive
	}
	cls.ActiveSessionID = &sessionID
	return nil
}

func (m *Memory) DeactivateClass(ctx context.Context, classID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cls, ok := m.classes[classID]
	if !ok {
		return classroom.ErrNotFound
	}
	cls.ActiveSessionID = nil
	return nil
}

// ---- roster ----

func (m *Memory) Enroll(ctx context.Context, classID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.roster[classID] {
		if id == studentID {
			return nil
		}
	}
	m.roster[classID] = append(m.roster[classID], studentID)
	return nil
}

func (m *Memory) Unenroll(ctx context.Context, classID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.roster[classID]
	for i, id := range ids {
		if id == studentID {
			m.roster[classID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) Roster(ctx context.Context, classID string) ([]classroom.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var roster []classroom.Profile
	for _, id := range m.roster[classID] {
		if p, ok := m.profiles[id]; ok {
			roster = append(roster, *p)
		}
	}
	return roster, nil
}

// ---- sessions ----

func (m *Memory) CreateSession(ctx context.Context, sess classroom.Session) (classroom.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartTime.IsZero() {
		sess.StartTime = time.Now().UTC()
	}
	cp := sess
	if sess.Geofence != nil {
		gf := *sess.Geofence
		cp.Geofence = &gf
	}
	m.sessions[sess.ID] = &cp
	return sess, nil
}

func (m *Memory) GetSession(ctx context.Context, classID, sessionID string) (classroom.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.ClassID != classID {
		return classroom.Session{}, classroom.ErrNotFound
	}
	return copySession(sess), nil
}

func (m *Memory) UpdateSessionGeofence(ctx context.Context, sessionID string, g classroom.Geofence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return classroom.ErrNotFound
	}
	gf := g
	sess.Geofence = &gf
	return nil
}

func (m *Memory) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil // idempotent no-op
	}
	if sess.EndTime == nil {
		t := at
		sess.EndTime = &t
	}
	return nil
}

func (m *Memory) SessionsBetween(ctx context.Context, classID string, from, to time.Time) ([]classroom.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []classroom.Session
	for _, sess := range m.sessions {
		if sess.ClassID != classID {
			continue
		}
		if sess.StartTime.Before(from) || !sess.StartTime.Before(to) {
			continue
		}
		out = append(out, copySession(sess))
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) DeleteSession(ctx context.Context, classID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok && sess.ClassID == classID {
		delete(m.sessions, sessionID)
	}
	return nil
}

// ---- attendance records ----

func (m *Memory) UpsertRecord(ctx context.Context, rec classroom.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStudent, ok := m.records[rec.SessionID]
	if !ok {
		byStudent = make(map[string]classroom.AttendanceRecord)
		m.records[rec.SessionID] = byStudent
	}
	byStudent[rec.StudentID] = rec
	return nil
}

func (m *Memory) RecordsForSession(ctx context.Context, classID, sessionID string) ([]classroom.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []classroom.AttendanceRecord
	for _, rec := range m.records[sessionID] {
		if rec.ClassID == classID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) DeleteRecords(ctx context.Context, classID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

// ---- profiles ----

func (m *Memory) CreateProfile(ctx context.Context, p classroom.Profile) (classroom.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if existing.Username == p.Username {
			return classroom.Profile{}, fmt.Errorf("username %q taken", p.Username)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = "student"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := p
	m.profiles[p.ID] = &cp
	return p, nil
}

func (m *Memory) GetProfile(ctx context.Context, id string) (classroom.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return classroom.Profile{}, classroom.ErrNotFound
	}
	return *p, nil
}

func (m *Memory) ProfileByUsername(ctx context.Context, username string) (classroom.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.Username == username {
			return *p, nil
		}
	}
	return classroom.Profile{}, classroom.ErrNotFound
}

func copySession(sess *classroom.Session) classroom.Session {
	out := *sess
	if sess.EndTime != nil {
		t := *sess.EndTime
		out.EndTime = &t
	}
	if sess.Geofence != nil {
		gf := *sess.Geofence
		out.Geofence = &gf
	}
	return out
}

func sortSessions(sessions []classroom.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
}
