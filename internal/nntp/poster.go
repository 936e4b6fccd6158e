package nntp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/datallboy/nntpgate/internal/infra/logger"
)

// Status codes the POST exchange accepts (RFC 3977).
const (
	StatusPostingAllowed    = 200
	StatusPostingProhibited = 201
	StatusSendArticle       = 340
	StatusArticleReceived   = 240
)

// State is a step of the POST exchange.
type State int

const (
	StateConnecting State = iota
	StateAwaitGreeting
	StateAwaitPostAckRequest
	StateAwaitPostAck
	StateSendArticle
	StateAwaitResult
	StateQuitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitGreeting:
		return "greeting"
	case StateAwaitPostAckRequest:
		return "post command"
	case StateAwaitPostAck:
		return "post ack"
	case StateSendArticle:
		return "article transfer"
	case StateAwaitResult:
		return "post result"
	case StateQuitting:
		return "quit"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dialer opens the transport connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Poster relays articles to a single NNTP server. It holds no connection
// state, so one Poster serves any number of concurrent posts.
type Poster struct {
	conf   domain.ServerConfig
	dialer Dialer
	ids    *MessageIDGenerator
	log    *logger.Logger
}

type Option func(*Poster)

func WithDialer(d Dialer) Option { return func(p *Poster) { p.dialer = d } }

func WithLogger(l *logger.Logger) Option { return func(p *Poster) { p.log = l } }

func WithMessageIDGenerator(g *MessageIDGenerator) Option {
	return func(p *Poster) { p.ids = g }
}

func NewPoster(c domain.ServerConfig, opts ...Option) *Poster {
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}

	p := &Poster{conf: c}
	for _, opt := range opts {
		opt(p)
	}

	if p.dialer == nil {
		p.dialer = &net.Dialer{Timeout: c.DialTimeout}
	}
	if p.ids == nil {
		p.ids = NewMessageIDGenerator(c.Hostname)
	}
	if p.log == nil {
		p.log = logger.Discard()
	}
	return p
}

// Addr is the host:port the poster dials.
func (p *Poster) Addr() string {
	return net.JoinHostPort(p.conf.Host, strconv.Itoa(p.conf.Port))
}

// Post sends req as one article over a fresh connection. On failure the
// error is always a *PostError.
func (p *Poster) Post(ctx context.Context, req domain.PostRequest) (*domain.PostResult, error) {
	start := time.Now()
	s := &session{p: p, state: StateConnecting}

	article := NewArticle(req, "")
	if err := article.Validate(); err != nil {
		return nil, s.fail(KindInvalidArticle, err)
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	defer s.conn.Close()

	msgID, err := s.exchange(article)
	if err != nil {
		s.abort()
		p.log.Warn("post to %s failed: %v", p.Addr(), err)
		return nil, err
	}

	s.quit()

	return &domain.PostResult{
		MessageID:  msgID,
		Action:     req.Action(),
		ReplyTo:    req.ReplyTo,
		StatusCode: s.code,
		Duration:   time.Since(start),
	}, nil
}

// session is the per-post state machine. It is never shared.
type session struct {
	p     *Poster
	conn  *Conn
	state State
	code  int
	line  string
}

func (s *session) fail(kind Kind, err error) *PostError {
	pe := &PostError{Kind: kind, State: s.state, Code: s.code, Line: s.line, Err: err}
	s.state = StateFailed
	return pe
}

func (s *session) connect(ctx context.Context) error {
	conn, kind, err := dial(ctx, s.p.conf, s.p.dialer)
	if err != nil {
		return s.fail(kind, err)
	}

	s.conn = conn
	s.p.log.Debug("connected to %s", s.conn.RemoteAddr())
	s.state = StateAwaitGreeting
	return nil
}

// dial opens the transport and binds it to ctx. A failure is a timeout when
// the dial timeout or the ctx deadline expired, a connect error otherwise.
func dial(ctx context.Context, conf domain.ServerConfig, d Dialer) (*Conn, Kind, error) {
	addr := net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))

	dialCtx := ctx
	if conf.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, conf.DialTimeout)
		defer cancel()
	}

	nc, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, KindTimeout, fmt.Errorf("dial %s: %w", addr, err)
		}
		return nil, KindConnect, fmt.Errorf("dial %s: %w", addr, err)
	}

	return NewConn(ctx, nc, conf.IOTimeout), 0, nil
}

// exchange runs greeting through result and returns the Message-ID sent.
func (s *session) exchange(article Article) (string, error) {
	if err := s.expect(StatusPostingAllowed, StatusPostingProhibited); err != nil {
		return "", err
	}
	s.p.log.Debug("greeting: %s", s.line)

	s.state = StateAwaitPostAckRequest
	if err := s.conn.WriteLine("POST"); err != nil {
		return "", s.writeFailure(err)
	}

	s.state = StateAwaitPostAck
	if err := s.expect(StatusSendArticle); err != nil {
		return "", err
	}
	s.p.log.Debug("post ack: %s", s.line)

	s.state = StateSendArticle
	article.MessageID = s.p.ids.Next()
	w := bufio.NewWriterSize(s.conn, 4096)
	if _, err := article.WriteTo(w); err != nil {
		return "", s.writeFailure(err)
	}
	if err := w.Flush(); err != nil {
		return "", s.writeFailure(err)
	}

	s.state = StateAwaitResult
	if err := s.expect(StatusArticleReceived); err != nil {
		return "", err
	}
	s.p.log.Debug("result for %s: %s", article.MessageID, s.line)

	return article.MessageID, nil
}

// expect reads one status line and checks it against the accepted codes.
func (s *session) expect(accepted ...int) error {
	line, err := s.conn.ReadLine(s.p.conf.MaxLineLength)
	if err != nil {
		return s.readFailure(err)
	}
	s.line = line

	code, ok := ParseStatus(line)
	if !ok {
		s.code = 0
		return s.fail(KindProtocol, fmt.Errorf("unparsable status line %q", line))
	}
	s.code = code

	for _, a := range accepted {
		if code == a {
			return nil
		}
	}
	return s.fail(KindUnexpectedStatus, fmt.Errorf("got %d, want %v", code, accepted))
}

func (s *session) readFailure(err error) error {
	return s.fail(readErrKind(err), err)
}

func (s *session) writeFailure(err error) error {
	return s.fail(writeErrKind(err), err)
}

// abort sends QUIT without waiting for an answer. Errors are ignored; the
// deferred Close in Post still runs.
func (s *session) abort() {
	s.state = StateFailed
	if s.conn == nil {
		return
	}
	s.conn.WriteLine("QUIT")
}

// quit ends a successful session. The reply is read and dropped.
func (s *session) quit() {
	s.state = StateQuitting
	if err := s.conn.WriteLine("QUIT"); err == nil {
		if line, err := s.conn.ReadLine(s.p.conf.MaxLineLength); err == nil {
			s.p.log.Debug("quit: %s", line)
		}
	}
	s.state = StateDone
}

// ParseStatus extracts the leading three digit status code of a reply line.
func ParseStatus(line string) (int, bool) {
	if len(line) < 3 {
		return 0, false
	}
	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, false
		}
	}
	if len(line) > 3 && line[3] >= '0' && line[3] <= '9' {
		return 0, false
	}
	code, _ := strconv.Atoi(line[:3])
	return code, true
}
