// Package message turns raw articles into display form: RFC 2047 headers
// decoded to UTF-8, text parts joined into a body and every other MIME
// leaf listed as a downloadable attachment.
package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/datallboy/nntpgate/internal/domain"
)

const (
	DefaultFilename = "attachment.bin"
	maxDepth        = 8
)

var (
	ErrMalformed        = errors.New("malformed article")
	ErrNoSuchAttachment = errors.New("no such attachment")
)

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		return transform.NewReader(input, lookupCharset(charset).NewDecoder()), nil
	},
}

// lookupCharset resolves a MIME charset label. Unknown labels decode as
// ISO-8859-1 so that every byte still maps to some rune.
func lookupCharset(name string) encoding.Encoding {
	if enc, err := htmlindex.Get(strings.TrimSpace(name)); err == nil {
		return enc
	}
	return charmap.ISO8859_1
}

// DecodeHeader decodes RFC 2047 encoded-words in a header value. A value
// that fails to decode is returned unchanged.
func DecodeHeader(s string) string {
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

// FormatDate renders a Date header as RFC 3339, or returns it trimmed when
// it does not parse.
func FormatDate(raw string) string {
	t, err := mail.ParseDate(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return t.Format(time.RFC3339)
}

// leaf is a non-multipart MIME entity with its transfer encoding undone.
type leaf struct {
	header    textproto.MIMEHeader
	mediaType string
	params    map[string]string
	data      []byte
}

func (l leaf) isText() bool {
	if !strings.HasPrefix(l.mediaType, "text/") {
		return false
	}
	d, _, _ := mime.ParseMediaType(l.header.Get("Content-Disposition"))
	return d != "attachment"
}

func (l leaf) describe(index int) domain.Attachment {
	name := ""
	if _, p, err := mime.ParseMediaType(l.header.Get("Content-Disposition")); err == nil {
		name = p["filename"]
	}
	if name == "" {
		name = l.params["name"]
	}
	return domain.Attachment{
		Index:       index,
		Filename:    SanitizeFilename(DecodeHeader(name)),
		ContentType: l.mediaType,
		Size:        len(l.data),
	}
}

func readMessage(raw []byte) (*mail.Message, textproto.MIMEHeader, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, textproto.MIMEHeader(msg.Header), nil
}

// Parse builds the view of a raw article. id is what the article was
// requested by.
func Parse(id string, raw []byte) (*domain.ArticleView, error) {
	msg, h, err := readMessage(raw)
	if err != nil {
		return nil, err
	}

	view := &domain.ArticleView{
		ID:          id,
		MessageID:   strings.TrimSpace(h.Get("Message-ID")),
		Subject:     DecodeHeader(h.Get("Subject")),
		From:        DecodeHeader(h.Get("From")),
		Date:        FormatDate(h.Get("Date")),
		Newsgroups:  strings.TrimSpace(h.Get("Newsgroups")),
		References:  strings.TrimSpace(h.Get("References")),
		Attachments: []domain.Attachment{},
	}

	var body strings.Builder
	err = walk(h, msg.Body, 0, func(l leaf) bool {
		if l.isText() {
			body.WriteString(toUTF8(l.data, l.params["charset"]))
			return true
		}
		view.Attachments = append(view.Attachments, l.describe(len(view.Attachments)))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	view.Body = strings.ReplaceAll(body.String(), "\r\n", "\n")
	view.Reply = domain.ReplyTarget{ReplyTo: view.MessageID, Subject: ReplySubject(view.Subject)}
	return view, nil
}

// Attachment returns the decoded content of the attachment at index, in
// the order Parse lists them.
func Attachment(raw []byte, index int) (*domain.AttachmentData, error) {
	msg, h, err := readMessage(raw)
	if err != nil {
		return nil, err
	}

	var found *domain.AttachmentData
	n := 0
	err = walk(h, msg.Body, 0, func(l leaf) bool {
		if l.isText() {
			return true
		}
		if n == index {
			found = &domain.AttachmentData{Attachment: l.describe(n), Data: l.data}
			return false
		}
		n++
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchAttachment, index)
	}
	return found, nil
}

// walk visits every leaf in document order until visit returns false.
func walk(h textproto.MIMEHeader, body io.Reader, depth int, visit func(leaf) bool) error {
	_, err := walkEntity(h, body, depth, visit)
	return err
}

func walkEntity(h textproto.MIMEHeader, body io.Reader, depth int, visit func(leaf) bool) (bool, error) {
	mediaType, params := contentType(h.Get("Content-Type"))

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" && depth < maxDepth {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			p, err := mr.NextRawPart()
			if err == io.EOF {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			more, err := walkEntity(p.Header, p, depth+1, visit)
			if err != nil || !more {
				return false, err
			}
		}
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return false, err
	}
	data := decodeTransfer(h.Get("Content-Transfer-Encoding"), raw)
	return visit(leaf{header: h, mediaType: mediaType, params: params, data: data}), nil
}

func contentType(v string) (string, map[string]string) {
	if strings.TrimSpace(v) == "" {
		return "text/plain", map[string]string{}
	}
	mt, params, err := mime.ParseMediaType(v)
	if mt == "" {
		return "application/octet-stream", map[string]string{}
	}
	if err != nil || params == nil {
		params = map[string]string{}
	}
	return mt, params
}

// decodeTransfer undoes base64 or quoted-printable. Content that fails to
// decode is returned as it arrived.
func decodeTransfer(cte string, raw []byte) []byte {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(raw))
	case "quoted-printable":
		r = quotedprintable.NewReader(bytes.NewReader(raw))
	default:
		return raw
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return raw
	}
	return out
}

// toUTF8 converts text in the named charset. Invalid sequences become
// U+FFFD.
func toUTF8(data []byte, charset string) string {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}

	out, _, err := transform.Bytes(lookupCharset(charset).NewDecoder(), data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(out)
}

// SanitizeFilename reduces a MIME filename to a safe base name for a
// Content-Disposition header.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))

	name = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) || r == '"' {
			return -1
		}
		return r
	}, name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return DefaultFilename
	}
	return name
}
