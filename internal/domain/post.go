package domain

import (
	"strings"
	"time"
)

// Action values reported back to the HTTP caller.
const (
	ActionNewPost = "new_post"
	ActionReply   = "reply"
)

// PostRequest is a single article to relay. It is built by the HTTP decoder,
// consumed once by the poster and then discarded.
type PostRequest struct {
	From       string
	Newsgroups string
	Subject    string
	Body       string

	// ReplyTo is copied verbatim into the References header. Empty means
	// the post starts a new thread.
	ReplyTo string
}

// IsReply reports whether the request targets an existing article.
func (r PostRequest) IsReply() bool { return r.ReplyTo != "" }

// Action returns the response action derived from the request alone.
func (r PostRequest) Action() string {
	if r.IsReply() {
		return ActionReply
	}
	return ActionNewPost
}

// HeaderField is one caller supplied header value.
type HeaderField struct {
	Name  string
	Value string
}

// HeaderFields returns the caller supplied values that end up in the
// article header block, in wire order.
func (r PostRequest) HeaderFields() []HeaderField {
	fields := []HeaderField{
		{"From", r.From},
		{"Newsgroups", r.Newsgroups},
		{"Subject", r.Subject},
	}
	if r.IsReply() {
		fields = append(fields, HeaderField{"References", r.ReplyTo})
	}
	return fields
}

// HasLineBreak reports whether s contains a CR or LF.
func HasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// PostResult describes an article the remote server accepted.
type PostResult struct {
	MessageID  string
	Action     string
	ReplyTo    string
	StatusCode int
	Duration   time.Duration
}

// ServerConfig is the immutable address and limits of the NNTP server.
type ServerConfig struct {
	Host          string
	Port          int
	DialTimeout   time.Duration
	IOTimeout     time.Duration
	MaxLineLength int

	// Hostname overrides the domain part of generated Message-IDs.
	Hostname string
}
