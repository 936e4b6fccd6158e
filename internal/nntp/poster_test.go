package nntp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/datallboy/nntpgate/internal/infra/logger"
	"github.com/datallboy/nntpgate/internal/nntp/nntptest"
)

func startServer(t *testing.T, sc nntptest.Script) *nntptest.Server {
	t.Helper()
	srv, err := nntptest.NewServer(sc)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func transcript(t *testing.T, srv *nntptest.Server) string {
	t.Helper()
	got, err := srv.Transcript(5 * time.Second)
	require.NoError(t, err)
	return got
}

func serverConfig(srv *nntptest.Server) domain.ServerConfig {
	host, port := srv.HostPort()
	return domain.ServerConfig{
		Host:        host,
		Port:        port,
		DialTimeout: time.Second,
		IOTimeout:   2 * time.Second,
	}
}

// countingDialer records how often the dialled connection is closed.
type countingDialer struct {
	dials  atomic.Int32
	closes atomic.Int32
}

type countingConn struct {
	net.Conn
	d *countingDialer
}

func (c *countingConn) Close() error {
	c.d.closes.Add(1)
	return c.Conn.Close()
}

func (d *countingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.dials.Add(1)
	var nd net.Dialer
	c, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &countingConn{Conn: c, d: d}, nil
}

var helloRequest = domain.PostRequest{
	From:       "a@b.com",
	Newsgroups: "test.group",
	Subject:    "hi",
	Body:       "line1\nline2",
}

func TestPost_NewArticle(t *testing.T) {
	fs := startServer(t, nntptest.Script{Greeting: "200 ok", PostAck: "340 go", Result: "240 posted"})
	dialer := &countingDialer{}
	p := NewPoster(serverConfig(fs),
		WithDialer(dialer),
		WithMessageIDGenerator(fixedGenerator("test.host", 1700000000, 7)))

	res, err := p.Post(context.Background(), helloRequest)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionNewPost, res.Action)
	assert.Equal(t, "<1700000000.7@test.host>", res.MessageID)
	assert.Equal(t, 240, res.StatusCode)
	assert.Empty(t, res.ReplyTo)

	want := "POST\r\n" +
		"From: a@b.com\r\n" +
		"Newsgroups: test.group\r\n" +
		"Subject: hi\r\n" +
		"Message-ID: <1700000000.7@test.host>\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"Content-Transfer-Encoding: 8bit\r\n" +
		"\r\n" +
		"line1\r\n" +
		"line2\r\n" +
		".\r\n" +
		"QUIT\r\n"
	assert.Equal(t, want, transcript(t, fs))
	assert.Equal(t, int32(1), dialer.closes.Load())
}

func TestPost_LogsRemoteAddr(t *testing.T) {
	fs := startServer(t, nntptest.Accepting)
	var buf bytes.Buffer
	p := NewPoster(serverConfig(fs), WithLogger(logger.NewWithWriter(&buf, logger.LevelDebug, false)))

	_, err := p.Post(context.Background(), helloRequest)
	require.NoError(t, err)
	transcript(t, fs)

	assert.Contains(t, buf.String(), "connected to "+fs.Addr)
}

func TestPost_Reply(t *testing.T) {
	fs := startServer(t, nntptest.Script{Greeting: "200 ok", PostAck: "340 go", Result: "240 posted"})
	p := NewPoster(serverConfig(fs))

	req := helloRequest
	req.ReplyTo = "<42@server>"
	res, err := p.Post(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionReply, res.Action)
	assert.Equal(t, "<42@server>", res.ReplyTo)
	assert.Regexp(t, messageIDPattern, res.MessageID)

	sent := transcript(t, fs)
	assert.Contains(t, sent, "References: <42@server>\r\n")
	assert.Equal(t, 1, strings.Count(sent, "References:"))
}

func TestPost_GreetingNoPostingStillTried(t *testing.T) {
	fs := startServer(t, nntptest.Script{Greeting: "201 ready", PostAck: "340 send", Result: "240 ok"})
	p := NewPoster(serverConfig(fs))

	_, err := p.Post(context.Background(), helloRequest)
	require.NoError(t, err)
	transcript(t, fs)
}

func TestPost_QuitReplyMissingDoesNotFail(t *testing.T) {
	fs := startServer(t, nntptest.Script{Greeting: "200 ok", PostAck: "340 go", Result: "240 posted", NoQuitResp: true})
	p := NewPoster(serverConfig(fs))

	_, err := p.Post(context.Background(), helloRequest)
	require.NoError(t, err)
	transcript(t, fs)
}

func TestPost_Failures(t *testing.T) {
	tests := []struct {
		name      string
		script    nntptest.Script
		kind      Kind
		state     State
		code      int
		sentinel  error
		sentQuit  bool
		sentPost  bool
		articleTx bool
	}{
		{
			name:     "empty greeting",
			script:   nntptest.Script{Greeting: ""},
			kind:     KindProtocol,
			state:    StateAwaitGreeting,
			sentinel: ErrProtocol,
			sentQuit: true,
		},
		{
			name:     "greeting 400",
			script:   nntptest.Script{Greeting: "400 service unavailable"},
			kind:     KindUnexpectedStatus,
			state:    StateAwaitGreeting,
			code:     400,
			sentinel: ErrUnexpectedStatus,
			sentQuit: true,
		},
		{
			name:     "garbage greeting",
			script:   nntptest.Script{Greeting: "hello there"},
			kind:     KindProtocol,
			state:    StateAwaitGreeting,
			sentinel: ErrProtocol,
			sentQuit: true,
		},
		{
			name:     "post ack 440",
			script:   nntptest.Script{Greeting: "200 ok", PostAck: "440 posting not permitted"},
			kind:     KindUnexpectedStatus,
			state:    StateAwaitPostAck,
			code:     440,
			sentinel: ErrUnexpectedStatus,
			sentQuit: true,
			sentPost: true,
		},
		{
			name:      "result 441",
			script:    nntptest.Script{Greeting: "201 ready", PostAck: "340 send", Result: "441 rejected"},
			kind:      KindUnexpectedStatus,
			state:     StateAwaitResult,
			code:      441,
			sentinel:  ErrUnexpectedStatus,
			sentQuit:  true,
			sentPost:  true,
			articleTx: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := startServer(t, tt.script)
			dialer := &countingDialer{}
			p := NewPoster(serverConfig(fs), WithDialer(dialer))

			res, err := p.Post(context.Background(), helloRequest)
			require.Error(t, err)
			assert.Nil(t, res)

			var pe *PostError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.state, pe.State)
			assert.Equal(t, tt.code, pe.Code)
			assert.ErrorIs(t, err, tt.sentinel)

			sent := transcript(t, fs)
			assert.Equal(t, tt.sentQuit, strings.HasSuffix(sent, "QUIT\r\n"), "transcript %q", sent)
			assert.Equal(t, tt.sentPost, strings.HasPrefix(sent, "POST\r\n"), "transcript %q", sent)
			assert.Equal(t, tt.articleTx, strings.Contains(sent, "\r\n.\r\n"), "transcript %q", sent)
			assert.Equal(t, int32(1), dialer.closes.Load(), "connection must be closed exactly once")
		})
	}
}

func TestPost_PeerClosesMidBody(t *testing.T) {
	fs := startServer(t, nntptest.Script{Greeting: "200 ok", PostAck: "340 go", DropAfter: true})
	dialer := &countingDialer{}
	p := NewPoster(serverConfig(fs), WithDialer(dialer))

	req := helloRequest
	req.Body = strings.Repeat(".adversarial line of text\n", 20000)

	_, err := p.Post(context.Background(), req)
	require.Error(t, err)

	kind := KindOf(err)
	assert.Contains(t, []Kind{KindProtocol, KindTransport}, kind, "got %v", err)
	assert.Equal(t, int32(1), dialer.closes.Load())
	transcript(t, fs)
}

func TestPost_ConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	p := NewPoster(domain.ServerConfig{Host: "127.0.0.1", Port: port, DialTimeout: time.Second})
	_, err = p.Post(context.Background(), helloRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, StateConnecting, err.(*PostError).State)
}

func TestPost_GreetingTimeout(t *testing.T) {
	fs := startServer(t, nntptest.Script{Silent: true})
	conf := serverConfig(fs)
	conf.IOTimeout = 100 * time.Millisecond
	dialer := &countingDialer{}
	p := NewPoster(conf, WithDialer(dialer))

	start := time.Now()
	_, err := p.Post(context.Background(), helloRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, int32(1), dialer.closes.Load())
}

func TestPost_ContextDeadline(t *testing.T) {
	fs := startServer(t, nntptest.Script{Silent: true})
	conf := serverConfig(fs)
	conf.IOTimeout = 0
	p := NewPoster(conf)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := p.Post(ctx, helloRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPost_HeaderInjectionRejectedBeforeDial(t *testing.T) {
	dialer := &countingDialer{}
	p := NewPoster(domain.ServerConfig{Host: "127.0.0.1", Port: 1}, WithDialer(dialer))

	req := helloRequest
	req.Subject = "hi\r\nControl: cancel <1@x>"
	_, err := p.Post(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArticle)
	assert.Equal(t, int32(0), dialer.dials.Load())
}

func TestPost_ConcurrentPostsUseOwnConnections(t *testing.T) {
	const n = 8
	servers := make([]*nntptest.Server, n)
	for i := range servers {
		servers[i] = startServer(t, nntptest.Script{Greeting: "200 ok", PostAck: "340 go", Result: "240 posted"})
	}

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := NewPoster(serverConfig(servers[i]))
			res, err := p.Post(context.Background(), helloRequest)
			if assert.NoError(t, err) {
				ids[i] = res.MessageID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, fs := range servers {
		transcript(t, fs)
		assert.Equal(t, 1, fs.Accepted())
		assert.False(t, seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		line string
		code int
		ok   bool
	}{
		{"200 ok", 200, true},
		{"340", 340, true},
		{"240-posted", 240, true},
		{"", 0, false},
		{"20", 0, false},
		{"2000 too long", 0, false},
		{"abc", 0, false},
		{" 200", 0, false},
	}
	for _, tt := range tests {
		code, ok := ParseStatus(tt.line)
		assert.Equal(t, tt.ok, ok, "ParseStatus(%q)", tt.line)
		assert.Equal(t, tt.code, code, "ParseStatus(%q)", tt.line)
	}
}

func TestPostErrorMessage(t *testing.T) {
	err := &PostError{Kind: KindUnexpectedStatus, State: StateAwaitResult, Code: 441, Err: errors.New("got 441")}
	assert.Equal(t, "nntp: unexpected_status during post result (status 441): got 441", err.Error())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
