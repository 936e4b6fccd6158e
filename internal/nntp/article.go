package nntp

import (
	"fmt"
	"io"
	"strings"

	"github.com/datallboy/nntpgate/internal/domain"
)

const (
	contentType             = "text/plain; charset=UTF-8"
	contentTransferEncoding = "8bit"

	// endOfArticle terminates the body of a POST.
	endOfArticle = ".\r\n"
)

// Article is one outgoing post ready to be framed on the wire.
type Article struct {
	From       string
	Newsgroups string
	Subject    string
	MessageID  string
	References string
	Body       string
}

// NewArticle maps a post request onto an article. ReplyTo is carried into
// References untouched.
func NewArticle(req domain.PostRequest, messageID string) Article {
	return Article{
		From:       req.From,
		Newsgroups: req.Newsgroups,
		Subject:    req.Subject,
		MessageID:  messageID,
		References: req.ReplyTo,
		Body:       req.Body,
	}
}

// Validate rejects header values that would break out of their header line.
func (a Article) Validate() error {
	fields := []struct{ name, value string }{
		{"From", a.From},
		{"Newsgroups", a.Newsgroups},
		{"Subject", a.Subject},
		{"Message-ID", a.MessageID},
		{"References", a.References},
	}
	for _, f := range fields {
		if domain.HasLineBreak(f.value) {
			return fmt.Errorf("%s header contains a line break", f.name)
		}
	}
	return nil
}

// HeaderLines returns the header block in wire order, without terminators.
func (a Article) HeaderLines() []string {
	lines := []string{
		"From: " + a.From,
		"Newsgroups: " + a.Newsgroups,
		"Subject: " + a.Subject,
		"Message-ID: " + a.MessageID,
		"Content-Type: " + contentType,
		"Content-Transfer-Encoding: " + contentTransferEncoding,
	}
	if a.References != "" {
		lines = append(lines, "References: "+a.References)
	}
	return lines
}

// WriteTo writes headers, the blank separator, the dot-stuffed body and the
// end-of-article marker.
func (a Article) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(s string) error {
		n, err := io.WriteString(w, s)
		total += int64(n)
		return err
	}

	for _, h := range a.HeaderLines() {
		if err := write(h + "\r\n"); err != nil {
			return total, err
		}
	}
	if err := write("\r\n"); err != nil {
		return total, err
	}

	n, err := WriteBody(w, a.Body)
	total += n
	return total, err
}

// BodyLines splits body on LF the way it goes on the wire. A trailing LF does
// not start another line, and one trailing CR per line is dropped.
func BodyLines(body string) []string {
	if body == "" {
		return nil
	}
	lines := strings.Split(body, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// StuffLine escapes a body line that starts with the terminator character.
func StuffLine(line string) string {
	if strings.HasPrefix(line, ".") {
		return "." + line
	}
	return line
}

// WriteBody writes every body line dot-stuffed and CRLF-terminated, then the
// end-of-article marker.
func WriteBody(w io.Writer, body string) (int64, error) {
	var total int64
	for _, line := range BodyLines(body) {
		n, err := io.WriteString(w, StuffLine(line)+"\r\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	n, err := io.WriteString(w, endOfArticle)
	total += int64(n)
	return total, err
}
