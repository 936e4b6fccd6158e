package nntp

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"
)

// MessageIDGenerator builds <timestamp.random@hostname> identifiers. The
// random part only makes collisions unlikely; it is not a secret.
type MessageIDGenerator struct {
	hostname string
	now      func() time.Time
	random   func() int64
}

// NewMessageIDGenerator uses hostname as the domain part, falling back to
// the local host name when empty.
func NewMessageIDGenerator(hostname string) *MessageIDGenerator {
	if hostname == "" {
		hostname = LocalHostname()
	}
	return &MessageIDGenerator{
		hostname: sanitizeHostname(hostname),
		now:      time.Now,
		random:   rand.Int64,
	}
}

// Next returns a fresh Message-ID. Safe for concurrent use.
func (g *MessageIDGenerator) Next() string {
	return fmt.Sprintf("<%d.%d@%s>", g.now().Unix(), g.random(), g.hostname)
}

// Hostname is the domain part of generated identifiers.
func (g *MessageIDGenerator) Hostname() string { return g.hostname }

// LocalHostname returns the OS host name or "localhost".
func LocalHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// sanitizeHostname keeps the characters allowed in a dot-atom domain.
func sanitizeHostname(h string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, h)
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "localhost"
	}
	return clean
}
