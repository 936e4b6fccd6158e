package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/nntpgate/internal/domain"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenRunsMigrationsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// second open sees ErrNoChange and must still succeed
	j, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	entries := []*domain.JournalEntry{
		{
			MessageID:  "<1.1@host>",
			Newsgroups: "test.group",
			Subject:    "first",
			Status:     domain.JournalPosted,
			StatusCode: 240,
			DurationMS: 12,
			CreatedAt:  base,
		},
		{
			Newsgroups: "test.group",
			Subject:    "second",
			ReplyTo:    "<42@server>",
			Status:     domain.JournalFailed,
			ErrorKind:  "unexpected_status",
			StatusCode: 441,
			CreatedAt:  base.Add(time.Second),
		},
		{
			MessageID:  "<3.3@host>",
			Newsgroups: "alt.test",
			Subject:    "third",
			Status:     domain.JournalPosted,
			StatusCode: 240,
			CreatedAt:  base.Add(2 * time.Second),
		},
	}
	for _, e := range entries {
		require.NoError(t, j.Record(ctx, e))
		assert.NotEmpty(t, e.ID, "Record assigns an ID")
	}

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Subject)
	assert.Equal(t, "second", got[1].Subject)

	failed := got[1]
	assert.Equal(t, domain.JournalFailed, failed.Status)
	assert.Equal(t, "unexpected_status", failed.ErrorKind)
	assert.Equal(t, 441, failed.StatusCode)
	assert.Equal(t, "<42@server>", failed.ReplyTo)
	assert.Empty(t, failed.MessageID)
	assert.True(t, base.Add(time.Second).Equal(failed.CreatedAt))
}

func TestRecordDefaultsCreatedAt(t *testing.T) {
	j := openTestJournal(t)
	e := &domain.JournalEntry{Newsgroups: "g", Subject: "s", Status: domain.JournalPosted}

	before := time.Now().Add(-time.Second)
	require.NoError(t, j.Record(context.Background(), e))
	assert.True(t, e.CreatedAt.After(before))

	got, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
}

func TestRecordDuplicateID(t *testing.T) {
	j := openTestJournal(t)
	e := &domain.JournalEntry{ID: "fixed", Newsgroups: "g", Subject: "s", Status: domain.JournalPosted}
	require.NoError(t, j.Record(context.Background(), e))

	dup := *e
	assert.Error(t, j.Record(context.Background(), &dup))
}
