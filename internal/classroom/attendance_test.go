package classroom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"classtrack/internal/classroom"
)

func startedFixture(t *testing.T) (*fixture, classroom.Session) {
	t.Helper()
	f := newFixture(t, false)
	sess, err := f.manager.Start(context.Background(), testPos, f.class.ID, f.teacher.ID, 50)
	assert.NoError(t, err)
	return f, sess
}

func statusOf(entries []classroom.Entry, studentID string) classroom.Status {
	for _, e := range entries {
		if e.StudentID == studentID {
			return e.Status
		}
	}
	return ""
}

func TestSetAttendanceMarksPresent(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	entries, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusPresent)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, classroom.StatusPresent, statusOf(entries, "a"))
	assert.Equal(t, classroom.StatusAbsent, statusOf(entries, "b"))
	assert.Equal(t, classroom.StatusAbsent, statusOf(entries, "c"))
}

func TestSetAttendanceIdempotent(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusPresent)
	assert.NoError(t, err)
	entries, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusPresent)
	assert.NoError(t, err)

	records, err := f.store.RecordsForSession(ctx, f.class.ID, sess.ID)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, classroom.StatusPresent, statusOf(entries, "a"))
}

func TestSetAttendanceUpdatesInPlace(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusPresent)
	assert.NoError(t, err)
	entries, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusAbsent)
	assert.NoError(t, err)

	records, err := f.store.RecordsForSession(ctx, f.class.ID, sess.ID)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, classroom.StatusAbsent, statusOf(entries, "a"))
}

func TestSetAttendanceRejectsUnmarked(t *testing.T) {
	f, sess := startedFixture(t)
	_, err := f.svc.SetAttendance(context.Background(), f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusUnmarked)
	assert.Error(t, err)
}

func TestSetAttendanceUnknownSession(t *testing.T) {
	f, _ := startedFixture(t)
	_, err := f.svc.SetAttendance(context.Background(), f.class.ID, f.teacher.ID, "missing", "a", classroom.StatusPresent)
	assert.ErrorIs(t, err, classroom.ErrNotFound)
}

func TestSetAttendanceOnEndedSessionAllowed(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.manager.Stop(ctx, f.class.ID, f.teacher.ID))

	// History edits correct past records on any existing session.
	entries, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "b", classroom.StatusPresent)
	assert.NoError(t, err)
	assert.Equal(t, classroom.StatusPresent, statusOf(entries, "b"))
}

func TestResetAttendanceRevertsToAbsent(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "a", classroom.StatusPresent)
	assert.NoError(t, err)

	assert.NoError(t, f.svc.ResetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID))

	entries, err := f.svc.Records(ctx, f.class.ID, f.teacher.ID, sess.ID)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, classroom.StatusAbsent, e.Status)
	}
}

func TestCurrentViewInactiveClassIsUnmarked(t *testing.T) {
	f := newFixture(t, false)
	entries, err := f.svc.CurrentView(context.Background(), f.class.ID, f.teacher.ID)
	assert.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, classroom.StatusUnmarked, e.Status)
	}
}

func TestCurrentViewActiveClassDefaultsAbsent(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAttendance(ctx, f.class.ID, f.teacher.ID, sess.ID, "c", classroom.StatusPresent)
	assert.NoError(t, err)

	entries, err := f.svc.CurrentView(ctx, f.class.ID, f.teacher.ID)
	assert.NoError(t, err)
	assert.Equal(t, classroom.StatusAbsent, statusOf(entries, "a"))
	assert.Equal(t, classroom.StatusPresent, statusOf(entries, "c"))
}

func TestAttendanceOperationsTeacherMismatch(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAttendance(ctx, f.class.ID, "impostor", sess.ID, "a", classroom.StatusPresent)
	assert.ErrorIs(t, err, classroom.ErrPermissionDenied)

	assert.ErrorIs(t, f.svc.ResetAttendance(ctx, f.class.ID, "impostor", sess.ID), classroom.ErrPermissionDenied)

	_, err = f.svc.Records(ctx, f.class.ID, "impostor", sess.ID)
	assert.ErrorIs(t, err, classroom.ErrPermissionDenied)

	_, err = f.svc.CurrentView(ctx, f.class.ID, "impostor")
	assert.ErrorIs(t, err, classroom.ErrPermissionDenied)

	_, err = f.svc.Roster(ctx, f.class.ID, "impostor")
	assert.ErrorIs(t, err, classroom.ErrPermissionDenied)

	_, err = f.svc.SessionsOn(ctx, f.class.ID, "impostor", nowDay())
	assert.ErrorIs(t, err, classroom.ErrPermissionDenied)

	// Nothing was written along the way.
	records, err := f.store.RecordsForSession(ctx, f.class.ID, sess.ID)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestMidSessionEnrollmentShowsInView(t *testing.T) {
	f, sess := startedFixture(t)
	ctx := context.Background()

	p, err := f.store.CreateProfile(ctx, classroom.Profile{ID: "d", Username: "d", Name: "Student d"})
	assert.NoError(t, err)
	assert.NoError(t, f.svc.Enroll(ctx, f.class.ID, f.teacher.ID, p.ID))

	entries, err := f.svc.Records(ctx, f.class.ID, f.teacher.ID, sess.ID)
	assert.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, classroom.StatusAbsent, statusOf(entries, "d"))
}
