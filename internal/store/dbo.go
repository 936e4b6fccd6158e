package store

import (
	"database/sql"
	"time"

	"github.com/datallboy/nntpgate/internal/domain"
)

// postDBO maps to the posts table
type postDBO struct {
	ID         string         `db:"id"`
	MessageID  sql.NullString `db:"message_id"`
	Newsgroups string         `db:"newsgroups"`
	Subject    string         `db:"subject"`
	ReplyTo    sql.NullString `db:"reply_to"`
	Status     string         `db:"status"`
	ErrorKind  sql.NullString `db:"error_kind"`
	StatusCode int            `db:"status_code"`
	DurationMS int64          `db:"duration_ms"`
	CreatedAt  int64          `db:"created_at"`
}

// Mapper: DBO to Domain JournalEntry
func (p *postDBO) ToDomain() *domain.JournalEntry {
	return &domain.JournalEntry{
		ID:         p.ID,
		MessageID:  p.MessageID.String,
		Newsgroups: p.Newsgroups,
		Subject:    p.Subject,
		ReplyTo:    p.ReplyTo.String,
		Status:     p.Status,
		ErrorKind:  p.ErrorKind.String,
		StatusCode: p.StatusCode,
		DurationMS: p.DurationMS,
		CreatedAt:  time.UnixMilli(p.CreatedAt).UTC(),
	}
}

// Mapper: Domain JournalEntry to DBO
func (p *postDBO) FromDomain(e *domain.JournalEntry) {
	p.ID = e.ID
	p.MessageID = sql.NullString{String: e.MessageID, Valid: e.MessageID != ""}
	p.Newsgroups = e.Newsgroups
	p.Subject = e.Subject
	p.ReplyTo = sql.NullString{String: e.ReplyTo, Valid: e.ReplyTo != ""}
	p.Status = e.Status
	p.ErrorKind = sql.NullString{String: e.ErrorKind, Valid: e.ErrorKind != ""}
	p.StatusCode = e.StatusCode
	p.DurationMS = e.DurationMS
	p.CreatedAt = e.CreatedAt.UnixMilli()
}
