package classroom

import "time"

// Entry is one roster member's reconciled attendance state.
type Entry struct {
	StudentID string     `json:"student_id"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Reconcile merges raw attendance records with the full roster, producing
// exactly one entry per roster member in roster order. A student with an
// explicit record uses that record's status; everyone else gets def —
// StatusAbsent when reconciling against a session, StatusUnmarked when the
// class has no session context at all.
//
// The roster is read live at reconciliation time, not snapshotted per
// session, so roster edits change how historical sessions reconcile.
func Reconcile(roster []Profile, records []AttendanceRecord, def Status) []Entry {
	byStudent := make(map[string]AttendanceRecord, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	entries := make([]Entry, 0, len(roster))
	for _, p := range roster {
		e := Entry{
			StudentID: p.ID,
			Username:  p.Username,
			Name:      p.Name,
			Status:    def,
		}
		if rec, ok := byStudent[p.ID]; ok {
			e.Status = rec.Status
			t := rec.UpdatedAt
			e.UpdatedAt = &t
		}
		entries = append(entries, e)
	}
	return entries
}
