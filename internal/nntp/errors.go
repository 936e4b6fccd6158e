package nntp

import (
	"context"
	"errors"
	"fmt"
)

// Transport level failures returned by Conn.
var (
	ErrConnectionClosed = errors.New("connection closed by peer")
	ErrLineTooLong      = errors.New("line exceeds maximum length")
	ErrBlockTooLarge    = errors.New("multi-line response exceeds maximum size")
)

// Negative answers to read commands. They are wrapped by a *ReadError of
// KindUnexpectedStatus.
var (
	ErrNoSuchGroup   = errors.New("no such newsgroup")
	ErrNoSuchArticle = errors.New("no such article")
)

// Post failure categories. A *PostError matches exactly one of these with errors.Is.
var (
	ErrConnect          = errors.New("connect error")
	ErrProtocol         = errors.New("protocol error")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrTransport        = errors.New("transport error")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidArticle   = errors.New("invalid article")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Kind classifies why a post failed.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindProtocol
	KindUnexpectedStatus
	KindTransport
	KindTimeout
	KindInvalidArticle
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect_error"
	case KindProtocol:
		return "protocol_error"
	case KindUnexpectedStatus:
		return "unexpected_status"
	case KindTransport:
		return "transport_error"
	case KindTimeout:
		return "timeout"
	case KindInvalidArticle:
		return "invalid_article"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnect:
		return ErrConnect
	case KindProtocol:
		return ErrProtocol
	case KindUnexpectedStatus:
		return ErrUnexpectedStatus
	case KindTransport:
		return ErrTransport
	case KindTimeout:
		return ErrTimeout
	case KindInvalidArticle:
		return ErrInvalidArticle
	case KindInvalidArgument:
		return ErrInvalidArgument
	default:
		return nil
	}
}

// PostError is the single failure type returned by Poster.Post. Code and Line
// hold the last status reply seen and are meant for logs, not end users.
type PostError struct {
	Kind  Kind
	State State
	Code  int
	Line  string
	Err   error
}

func (e *PostError) Error() string {
	msg := fmt.Sprintf("nntp: %s during %s", e.Kind, e.State)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PostError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) and friends match on Kind.
func (e *PostError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// ReadError is the single failure type returned by Reader. Command names
// the step that failed ("greeting", "GROUP misc.test", ...).
type ReadError struct {
	Kind    Kind
	Command string
	Code    int
	Line    string
	Err     error
}

func (e *ReadError) Error() string {
	msg := fmt.Sprintf("nntp: %s during %s", e.Kind, e.Command)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of a post or read failure, or 0 for any other error.
func KindOf(err error) Kind {
	var pe *PostError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// StatusOf returns the last status code carried by a post or read failure.
func StatusOf(err error) int {
	var pe *PostError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var re *ReadError
	if errors.As(err, &re) {
		return re.Code
	}
	return 0
}

// readErrKind classifies a failed Conn read.
func readErrKind(err error) Kind {
	switch {
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindTransport
	default:
		return KindProtocol
	}
}

// writeErrKind classifies a failed Conn write.
func writeErrKind(err error) Kind {
	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	return KindTransport
}
