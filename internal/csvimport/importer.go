package csvimport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"classtrack/internal/classroom"
	"classtrack/internal/queue"
)

// MarkJob is one queued attendance mark produced by a bulk upload.
type MarkJob struct {
	ClassID   string `json:"class_id"`
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Username  string `json:"username"`
}

// JobType tags bulk-mark messages on the queue.
const JobType = "bulk-mark"

// sampleLimit caps how many unknown usernames are echoed back.
const sampleLimit = 5

// Report summarizes one bulk upload: how many marks were enqueued and
// which usernames could not be resolved (count plus a sample, never
// retried).
type Report struct {
	Enqueued      int      `json:"enqueued"`
	Unknown       int      `json:"unknown"`
	UnknownSample []string `json:"unknown_sample,omitempty"`
}

// Importer turns a username-list file into queued attendance marks.
type Importer struct {
	store classroom.Store
	q     queue.Queue
}

// NewImporter creates an importer publishing to q.
func NewImporter(store classroom.Store, q queue.Queue) *Importer {
	return &Importer{store: store, q: q}
}

// Import parses one username per CSV row (first field), resolves each
// against profiles and enqueues a mark job per recognized username. Only
// the class's owning teacher may upload. The session must exist;
// historical sessions are accepted since bulk uploads are also used to
// backfill past records.
func (i *Importer) Import(ctx context.Context, classID, teacherID, sessionID string, r io.Reader) (Report, error) {
	cls, err := i.store.GetClass(ctx, classID)
	if err != nil {
		return Report{}, err
	}
	if cls.TeacherID != teacherID {
		return Report{}, fmt.Errorf("%w: class %s is not owned by %s", classroom.ErrPermissionDenied, classID, teacherID)
	}
	if _, err := i.store.GetSession(ctx, classID, sessionID); err != nil {
		return Report{}, err
	}

	usernames, err := ParseUsernames(r)
	if err != nil {
		return Report{}, fmt.Errorf("parse upload: %w", err)
	}

	var report Report
	for _, username := range usernames {
		p, err := i.store.ProfileByUsername(ctx, username)
		if errors.Is(err, classroom.ErrNotFound) {
			report.Unknown++
			if len(report.UnknownSample) < sampleLimit {
				report.UnknownSample = append(report.UnknownSample, username)
			}
			continue
		}
		if err != nil {
			return report, err
		}

		body, err := json.Marshal(MarkJob{
			ClassID:   classID,
			SessionID: sessionID,
			StudentID: p.ID,
			Username:  username,
		})
		if err != nil {
			return report, err
		}
		if err := i.q.Publish(ctx, queue.Message{Type: JobType, Body: body}); err != nil {
			return report, fmt.Errorf("enqueue mark for %s: %w", username, err)
		}
		report.Enqueued++
	}
	return report, nil
}

// ParseUsernames reads a CSV stream and returns the first field of each
// non-empty row, skipping a leading "username" header if present.
func ParseUsernames(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var usernames []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		if len(usernames) == 0 && strings.EqualFold(name, "username") {
			continue
		}
		usernames = append(usernames, name)
	}
	return usernames, nil
}
