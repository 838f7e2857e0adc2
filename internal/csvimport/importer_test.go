package csvimport_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"classtrack/internal/classroom"
	"classtrack/internal/csvimport"
	"classtrack/internal/queue"
	"classtrack/internal/store"
)

func setup(t *testing.T) (*store.Memory, *queue.InMemory, *csvimport.Importer, classroom.Profile, classroom.Session) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	teacher, err := mem.CreateProfile(ctx, classroom.Profile{Username: "prof", Role: "teacher"})
	assert.NoError(t, err)
	cls, err := mem.CreateClass(ctx, classroom.Class{Name: "Chem", TeacherID: teacher.ID})
	assert.NoError(t, err)
	for _, u := range []string{"alice", "bob"} {
		_, err := mem.CreateProfile(ctx, classroom.Profile{Username: u})
		assert.NoError(t, err)
	}
	sess, err := mem.CreateSession(ctx, classroom.Session{ClassID: cls.ID})
	assert.NoError(t, err)

	q := queue.NewInMemory(16)
	return mem, q, csvimport.NewImporter(mem, q), teacher, sess
}

func drain(t *testing.T, q *queue.InMemory, n int) []csvimport.MarkJob {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := q.Consume(ctx)
	assert.NoError(t, err)

	jobs := make([]csvimport.MarkJob, 0, n)
	for i := 0; i < n; i++ {
		msg := <-msgs
		assert.Equal(t, csvimport.JobType, msg.Type)
		var job csvimport.MarkJob
		assert.NoError(t, json.Unmarshal(msg.Body, &job))
		jobs = append(jobs, job)
	}
	return jobs
}

func TestImportEnqueuesRecognizedUsernames(t *testing.T) {
	_, q, imp, teacher, sess := setup(t)

	report, err := imp.Import(context.Background(), sess.ClassID, teacher.ID, sess.ID, strings.NewReader("alice\nbob\n"))
	assert.NoError(t, err)
	assert.Equal(t, 2, report.Enqueued)
	assert.Zero(t, report.Unknown)

	jobs := drain(t, q, 2)
	assert.Equal(t, "alice", jobs[0].Username)
	assert.Equal(t, sess.ID, jobs[0].SessionID)
	assert.NotEmpty(t, jobs[0].StudentID)
}

func TestImportReportsUnknownUsernames(t *testing.T) {
	_, _, imp, teacher, sess := setup(t)

	input := "alice\nnobody1\nnobody2\nnobody3\nnobody4\nnobody5\nnobody6\n"
	report, err := imp.Import(context.Background(), sess.ClassID, teacher.ID, sess.ID, strings.NewReader(input))
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, 6, report.Unknown)
	// Sample is capped, count is not.
	assert.Len(t, report.UnknownSample, 5)
	assert.Equal(t, "nobody1", report.UnknownSample[0])
}

func TestImportSkipsHeaderAndBlankRows(t *testing.T) {
	usernames, err := csvimport.ParseUsernames(strings.NewReader("username\nalice\n\nbob\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, usernames)
}

func TestImportUnknownSession(t *testing.T) {
	_, _, imp, teacher, sess := setup(t)
	_, err := imp.Import(context.Background(), sess.ClassID, teacher.ID, "missing", strings.NewReader("alice\n"))
	assert.ErrorIs(t, err, classroom.ErrNotFound)
}

func TestImportFirstFieldOnly(t *testing.T) {
	usernames, err := csvimport.ParseUsernames(strings.NewReader("alice,Alice Doe\nbob,Bob Roe\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, usernames)
}

func TestImportTeacherMismatch(t *testing.T) {
	_, _, imp, _, sess := setup(t)
	_, err := imp.Import(context.Background(), sess.ClassID, "impostor", sess.ID, strings.NewReader("alice\n"))
	assert.ErrorIs(t, err, classroom.ErrPermissionDenied)
}
