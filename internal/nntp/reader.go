package nntp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/datallboy/nntpgate/internal/infra/logger"
)

// Status codes used by the read commands (RFC 3977).
const (
	StatusGroupSelected    = 211
	StatusArticleFollows   = 220
	StatusOverviewFollows  = 224
	StatusNoSuchGroup      = 411
	StatusNoCurrentArticle = 420
	StatusNoArticleInRange = 423
	StatusNoSuchMessageID  = 430
	StatusUnknownCommand   = 500
)

const (
	DefaultPageSize        = 25
	MaxPageSize            = 500
	DefaultMaxArticleBytes = 16 << 20
)

// Reader fetches group indexes and articles. Like Poster it opens a fresh
// connection per call and is safe for concurrent use.
type Reader struct {
	conf     domain.ServerConfig
	dialer   Dialer
	log      *logger.Logger
	maxBytes int
}

type ReaderOption func(*Reader)

func WithReaderDialer(d Dialer) ReaderOption { return func(r *Reader) { r.dialer = d } }

func WithReaderLogger(l *logger.Logger) ReaderOption { return func(r *Reader) { r.log = l } }

// WithMaxArticleBytes caps the size of a fetched article. n <= 0 keeps the default.
func WithMaxArticleBytes(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

func NewReader(c domain.ServerConfig, opts ...ReaderOption) *Reader {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}

	r := &Reader{conf: c, maxBytes: DefaultMaxArticleBytes}
	for _, opt := range opts {
		opt(r)
	}

	if r.dialer == nil {
		r.dialer = &net.Dialer{Timeout: c.DialTimeout}
	}
	if r.log == nil {
		r.log = logger.Discard()
	}
	return r
}

// PageRange maps a 1-based page of a group, newest first, to the article
// number range from..to. to < from means the page holds nothing. total is
// the page count, 0 for an empty group.
func PageRange(g domain.Group, page, size int) (from, to int64, total int) {
	if g.Empty() {
		return 1, 0, 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	total = int((g.High-g.Low)/int64(size)) + 1
	to = g.High - int64(page-1)*int64(size)
	from = max(to-int64(size)+1, g.Low)
	return from, to, total
}

// Overview returns one page of the group index, newest article first.
func (r *Reader) Overview(ctx context.Context, group string, page, pageSize int) (*domain.OverviewPage, error) {
	if err := checkGroupName(group); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}

	out, err := s.overview(group, page, pageSize)
	s.close(err != nil)
	if err != nil {
		r.log.Warn("overview of %s failed: %v", group, err)
		return nil, err
	}
	return out, nil
}

// Article fetches one raw article, headers and body joined by CRLF. id is
// either an article number within group or a Message-ID in angle brackets,
// in which case group may be empty.
func (r *Reader) Article(ctx context.Context, group, id string) ([]byte, error) {
	byNumber, err := checkArticleID(group, id)
	if err != nil {
		return nil, err
	}

	s, err := r.open(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := s.article(group, id, byNumber)
	s.close(err != nil)
	if err != nil {
		r.log.Warn("article %s failed: %v", id, err)
		return nil, err
	}
	return raw, nil
}

func checkGroupName(group string) error {
	if group == "" || strings.ContainsAny(group, " \t\r\n") {
		return &ReadError{Kind: KindInvalidArgument, Command: "GROUP", Err: fmt.Errorf("bad newsgroup name %q", group)}
	}
	return nil
}

func checkArticleID(group, id string) (byNumber bool, err error) {
	if strings.HasPrefix(id, "<") {
		if !strings.HasSuffix(id, ">") || len(id) < 3 || strings.ContainsAny(id, " \t\r\n") {
			return false, &ReadError{Kind: KindInvalidArgument, Command: "ARTICLE", Err: fmt.Errorf("bad message id %q", id)}
		}
		return false, nil
	}

	if n, perr := strconv.ParseInt(id, 10, 64); perr != nil || n < 1 {
		return false, &ReadError{Kind: KindInvalidArgument, Command: "ARTICLE", Err: fmt.Errorf("bad article number %q", id)}
	}
	return true, checkGroupName(group)
}

// readSession is one connection's worth of read commands.
type readSession struct {
	r    *Reader
	conn *Conn
	cmd  string
	code int
	line string
}

func (r *Reader) open(ctx context.Context) (*readSession, error) {
	conn, kind, err := dial(ctx, r.conf, r.dialer)
	if err != nil {
		return nil, &ReadError{Kind: kind, Command: "connect", Err: err}
	}
	r.log.Debug("connected to %s", conn.RemoteAddr())

	s := &readSession{r: r, conn: conn, cmd: "greeting"}
	if err := s.expect(StatusPostingAllowed, StatusPostingProhibited); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// close sends QUIT, reading the reply only after a clean exchange.
func (s *readSession) close(failed bool) {
	if err := s.conn.WriteLine("QUIT"); err == nil && !failed {
		s.conn.ReadLine(s.r.conf.MaxLineLength)
	}
	s.conn.Close()
}

func (s *readSession) fail(kind Kind, err error) *ReadError {
	return &ReadError{Kind: kind, Command: s.cmd, Code: s.code, Line: s.line, Err: err}
}

func (s *readSession) command(cmd string, accepted ...int) error {
	s.cmd, s.code, s.line = cmd, 0, ""
	if err := s.conn.WriteLine(cmd); err != nil {
		return s.fail(writeErrKind(err), err)
	}
	return s.expect(accepted...)
}

func (s *readSession) expect(accepted ...int) error {
	line, err := s.conn.ReadLine(s.r.conf.MaxLineLength)
	if err != nil {
		return s.fail(readErrKind(err), err)
	}
	s.line = line

	code, ok := ParseStatus(line)
	if !ok {
		return s.fail(KindProtocol, fmt.Errorf("unparsable status line %q", line))
	}
	s.code = code

	for _, a := range accepted {
		if code == a {
			return nil
		}
	}

	switch code {
	case StatusNoSuchGroup:
		return s.fail(KindUnexpectedStatus, ErrNoSuchGroup)
	case StatusNoCurrentArticle, StatusNoArticleInRange, StatusNoSuchMessageID:
		return s.fail(KindUnexpectedStatus, ErrNoSuchArticle)
	}
	return s.fail(KindUnexpectedStatus, fmt.Errorf("got %d, want %v", code, accepted))
}

func (s *readSession) block() ([]byte, error) {
	b, err := s.conn.ReadDotBlock(DefaultMaxDataLineLength, s.r.maxBytes)
	if err != nil {
		return nil, s.fail(readErrKind(err), err)
	}
	return b, nil
}

func (s *readSession) group(name string) (domain.Group, error) {
	if err := s.command("GROUP "+name, StatusGroupSelected); err != nil {
		return domain.Group{}, err
	}

	// 211 count low high name
	f := strings.Fields(s.line)
	if len(f) < 4 {
		return domain.Group{}, s.fail(KindProtocol, fmt.Errorf("short GROUP reply %q", s.line))
	}
	nums := make([]int64, 3)
	for i := range nums {
		n, err := strconv.ParseInt(f[i+1], 10, 64)
		if err != nil {
			return domain.Group{}, s.fail(KindProtocol, fmt.Errorf("bad GROUP reply %q", s.line))
		}
		nums[i] = n
	}
	return domain.Group{Name: name, Count: nums[0], Low: nums[1], High: nums[2]}, nil
}

func (s *readSession) overview(group string, page, pageSize int) (*domain.OverviewPage, error) {
	g, err := s.group(group)
	if err != nil {
		return nil, err
	}

	from, to, total := PageRange(g, page, pageSize)
	out := &domain.OverviewPage{Group: group, Page: page, PageSize: pageSize, TotalPages: total, Articles: []domain.Overview{}}
	if to < from {
		return out, nil
	}

	rng := fmt.Sprintf("%d-%d", from, to)
	err = s.command("OVER "+rng, StatusOverviewFollows)
	if err != nil && s.code == StatusUnknownCommand {
		err = s.command("XOVER "+rng, StatusOverviewFollows)
	}
	if errors.Is(err, ErrNoSuchArticle) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := s.block()
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\r\n") {
		if o, ok := parseOverview(line); ok {
			out.Articles = append(out.Articles, o)
		}
	}

	// newest first
	for i, j := 0, len(out.Articles)-1; i < j; i, j = i+1, j-1 {
		out.Articles[i], out.Articles[j] = out.Articles[j], out.Articles[i]
	}
	return out, nil
}

func (s *readSession) article(group, id string, byNumber bool) ([]byte, error) {
	if byNumber {
		if _, err := s.group(group); err != nil {
			return nil, err
		}
	}
	if err := s.command("ARTICLE "+id, StatusArticleFollows); err != nil {
		return nil, err
	}
	s.r.log.Debug("article %s: %s", id, s.line)

	return s.block()
}

// parseOverview splits one OVER line: number, subject, from, date,
// message-id, references, bytes, lines. Fields past those are ignored.
func parseOverview(line string) (domain.Overview, bool) {
	f := strings.Split(line, "\t")
	if len(f) < 5 {
		return domain.Overview{}, false
	}
	n, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return domain.Overview{}, false
	}

	o := domain.Overview{Number: n, Subject: f[1], From: f[2], Date: f[3], MessageID: f[4]}
	if len(f) > 5 {
		o.References = f[5]
	}
	if len(f) > 6 {
		o.Bytes, _ = strconv.ParseInt(f[6], 10, 64)
	}
	if len(f) > 7 {
		o.Lines, _ = strconv.ParseInt(f[7], 10, 64)
	}
	return o, true
}
