package classroom_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"classtrack/internal/classroom"
)

func profiles(ids ...string) []classroom.Profile {
	out := make([]classroom.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, classroom.Profile{ID: id, Username: "u-" + id, Name: "Student " + id})
	}
	return out
}

func TestReconcileOneEntryPerRosterMember(t *testing.T) {
	roster := profiles("a", "b", "c")
	records := []classroom.AttendanceRecord{
		{SessionID: "s1", StudentID: "b", Status: classroom.StatusPresent, UpdatedAt: time.Now()},
	}

	entries := classroom.Reconcile(roster, records, classroom.StatusAbsent)

	assert.Len(t, entries, 3)
	assert.Equal(t, classroom.StatusAbsent, entries[0].Status)
	assert.Equal(t, classroom.StatusPresent, entries[1].Status)
	assert.NotNil(t, entries[1].UpdatedAt)
	assert.Equal(t, classroom.StatusAbsent, entries[2].Status)
}

func TestReconcilePreservesRosterOrder(t *testing.T) {
	roster := profiles("z", "m", "a")
	entries := classroom.Reconcile(roster, nil, classroom.StatusAbsent)

	ids := []string{entries[0].StudentID, entries[1].StudentID, entries[2].StudentID}
	assert.Equal(t, []string{"z", "m", "a"}, ids)
}

func TestReconcileUnmarkedDefaultWhenInactive(t *testing.T) {
	entries := classroom.Reconcile(profiles("a", "b"), nil, classroom.StatusUnmarked)
	for _, e := range entries {
		assert.Equal(t, classroom.StatusUnmarked, e.Status)
		assert.Nil(t, e.UpdatedAt)
	}
}

func TestReconcileIgnoresRecordsOutsideRoster(t *testing.T) {
	roster := profiles("a")
	records := []classroom.AttendanceRecord{
		{SessionID: "s1", StudentID: "ghost", Status: classroom.StatusPresent},
	}
	entries := classroom.Reconcile(roster, records, classroom.StatusAbsent)
	assert.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].StudentID)
}

func TestReconcileEmptyRoster(t *testing.T) {
	entries := classroom.Reconcile(nil, nil, classroom.StatusAbsent)
	assert.Empty(t, entries)
}
