package domain

import "time"

// Journal status values.
const (
	JournalPosted = "posted"
	JournalFailed = "failed"
)

// JournalEntry is the audit record of one post attempt. Article bodies are
// never journaled.
type JournalEntry struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id,omitempty"`
	Newsgroups string    `json:"newsgroups"`
	Subject    string    `json:"subject"`
	ReplyTo    string    `json:"reply_to,omitempty"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
