package store

import (
	"context"
	"fmt"
	"time"

	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/segmentio/ksuid"
)

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Record inserts one journal row. A missing ID gets a KSUID and a zero
// CreatedAt is set to now.
func (j *Journal) Record(ctx context.Context, e *domain.JournalEntry) error {
	if e.ID == "" {
		e.ID = ksuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var dbo postDBO
	dbo.FromDomain(e)

	query := `INSERT INTO posts (id, message_id, newsgroups, subject, reply_to, status, error_kind, status_code, duration_ms, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		dbo.ID,
		dbo.MessageID,
		dbo.Newsgroups,
		dbo.Subject,
		dbo.ReplyTo,
		dbo.Status,
		dbo.ErrorKind,
		dbo.StatusCode,
		dbo.DurationMS,
		dbo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record post %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns the newest journal rows first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = DefaultRecentLimit
	}

	query := `
			SELECT id, message_id, newsgroups, subject, reply_to, status, error_kind, status_code, duration_ms, created_at
			FROM posts
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.JournalEntry
	for rows.Next() {
		var dbo postDBO
		err := rows.Scan(
			&dbo.ID,
			&dbo.MessageID,
			&dbo.Newsgroups,
			&dbo.Subject,
			&dbo.ReplyTo,
			&dbo.Status,
			&dbo.ErrorKind,
			&dbo.StatusCode,
			&dbo.DurationMS,
			&dbo.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, dbo.ToDomain())
	}

	return entries, rows.Err()
}
