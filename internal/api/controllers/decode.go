package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/datallboy/nntpgate/internal/domain"
)

// ErrBodyTooLarge is returned when the request body exceeds the configured cap
var ErrBodyTooLarge = errors.New("request body too large")

// DecodePostRequest reads at most maxBytes of JSON from r and validates it
// into a PostRequest. Header fields may not contain line breaks.
func DecodePostRequest(r io.Reader, maxBytes int64) (domain.PostRequest, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return domain.PostRequest{}, fmt.Errorf("%w: reading body: %v", domain.ErrInvalidRequest, err)
	}
	if int64(len(raw)) > maxBytes {
		return domain.PostRequest{}, ErrBodyTooLarge
	}

	var p PostPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.PostRequest{}, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidRequest, err)
	}

	if p.From == nil || p.Newsgroups == nil || p.Subject == nil || p.Body == nil {
		return domain.PostRequest{}, fmt.Errorf("%w: from, newsgroups, subject, body must be strings", domain.ErrInvalidRequest)
	}

	req := domain.PostRequest{
		From:       *p.From,
		Newsgroups: *p.Newsgroups,
		Subject:    *p.Subject,
		Body:       *p.Body,
	}
	if p.ReplyTo != nil {
		req.ReplyTo = *p.ReplyTo
	}

	required := []struct{ name, value string }{
		{"from", req.From},
		{"newsgroups", req.Newsgroups},
		{"subject", req.Subject},
		{"body", req.Body},
	}
	for _, f := range required {
		if f.value == "" {
			return domain.PostRequest{}, fmt.Errorf("%w: %s must not be empty", domain.ErrInvalidRequest, f.name)
		}
	}

	for _, f := range req.HeaderFields() {
		if domain.HasLineBreak(f.Value) {
			return domain.PostRequest{}, fmt.Errorf("%w: %s must be a single line", domain.ErrInvalidRequest, f.Name)
		}
	}

	return req, nil
}
