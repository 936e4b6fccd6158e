// Package nntptest provides a scripted NNTP server for exercising POST and
// read clients over real loopback TCP.
package nntptest

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Script decides how the server answers each step of an exchange.
type Script struct {
	Greeting string
	PostAck  string
	Result   string

	Silent     bool // accept but never send anything
	DropAfter  bool // close right after answering POST
	NoQuitResp bool // swallow QUIT without answering

	// Group is the only newsgroup GROUP selects. Articles are numbered
	// from Low (1 when unset) in slice order.
	Group    string
	Low      int64
	Articles []string
	NoOver   bool // answer OVER with 500 so clients fall back to XOVER
}

// Accepting is a script that takes any article.
var Accepting = Script{Greeting: "200 server ready", PostAck: "340 send article", Result: "240 article posted"}

// Server records what clients sent, one transcript per connection.
type Server struct {
	Addr string

	ln         net.Listener
	script     Script
	transcript chan string
	done       chan struct{}
	closeOnce  sync.Once
	accepted   atomic.Int32
}

// NewServer starts listening on 127.0.0.1 with a random port.
func NewServer(sc Script) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if sc.Low == 0 {
		sc.Low = 1
	}

	s := &Server{
		Addr:       ln.Addr().String(),
		ln:         ln,
		script:     sc,
		transcript: make(chan string, 16),
		done:       make(chan struct{}),
	}
	go s.serve()
	return s, nil
}

// HostPort splits Addr for building a server config.
func (s *Server) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(s.Addr)
	p, _ := strconv.Atoi(port)
	return host, p
}

// Accepted is the number of connections taken so far.
func (s *Server) Accepted() int { return int(s.accepted.Load()) }

// Transcript waits for the next session to end and returns every byte the
// client sent on it.
func (s *Server) Transcript(timeout time.Duration) (string, error) {
	select {
	case t := <-s.transcript:
		return t, nil
	case <-time.After(timeout):
		return "", errors.New("nntptest: session did not finish")
	}
}

// Close stops the listener and releases silent sessions.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.ln.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	sc := s.script
	if sc.Silent {
		<-s.done
		return
	}

	var got strings.Builder
	defer func() {
		select {
		case s.transcript <- got.String():
		default:
		}
	}()

	r := bufio.NewReader(conn)
	reply := func(line string) { conn.Write([]byte(line + "\r\n")) }

	selected := false
	reply(sc.Greeting)
	for {
		line, err := r.ReadString('\n')
		got.WriteString(line)
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		switch {
		case cmd == "POST":
			reply(sc.PostAck)
			if sc.DropAfter {
				return
			}
			if !strings.HasPrefix(sc.PostAck, "340") {
				continue
			}
			if !readArticle(r, &got) {
				return
			}
			reply(sc.Result)
		case cmd == "QUIT":
			if !sc.NoQuitResp {
				reply("205 closing connection")
			}
			return
		case strings.HasPrefix(cmd, "GROUP "):
			name := strings.TrimPrefix(cmd, "GROUP ")
			if sc.Group == "" || name != sc.Group {
				reply("411 no such newsgroup")
				continue
			}
			selected = true
			reply(fmt.Sprintf("211 %d %d %d %s", len(sc.Articles), sc.Low, sc.Low+int64(len(sc.Articles))-1, name))
		case strings.HasPrefix(cmd, "OVER ") && sc.NoOver:
			reply("500 unknown command")
		case strings.HasPrefix(cmd, "OVER "), strings.HasPrefix(cmd, "XOVER "):
			if !selected {
				reply("412 no newsgroup selected")
				continue
			}
			s.overview(cmd[strings.IndexByte(cmd, ' ')+1:], reply)
		case strings.HasPrefix(cmd, "ARTICLE "):
			s.article(strings.TrimPrefix(cmd, "ARTICLE "), selected, reply)
		}
	}
}

func (s *Server) overview(rng string, reply func(string)) {
	from, to, ok := strings.Cut(rng, "-")
	lo, err1 := strconv.ParseInt(from, 10, 64)
	hi, err2 := strconv.ParseInt(to, 10, 64)
	if !ok || err1 != nil || err2 != nil {
		reply("501 bad range")
		return
	}

	var lines []string
	for i, raw := range s.script.Articles {
		n := s.script.Low + int64(i)
		if n < lo || n > hi {
			continue
		}
		lines = append(lines, overviewLine(n, raw))
	}
	if len(lines) == 0 {
		reply("423 no articles in that range")
		return
	}

	reply("224 overview information follows")
	for _, l := range lines {
		reply(l)
	}
	reply(".")
}

func (s *Server) article(arg string, selected bool, reply func(string)) {
	idx := -1
	if strings.HasPrefix(arg, "<") {
		for i, raw := range s.script.Articles {
			if header(raw, "Message-ID") == arg {
				idx = i
			}
		}
		if idx < 0 {
			reply("430 no such article")
			return
		}
	} else {
		if !selected {
			reply("412 no newsgroup selected")
			return
		}
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n < s.script.Low || n-s.script.Low >= int64(len(s.script.Articles)) {
			reply("423 no article with that number")
			return
		}
		idx = int(n - s.script.Low)
	}

	raw := s.script.Articles[idx]
	reply(fmt.Sprintf("220 %d %s article follows", s.script.Low+int64(idx), header(raw, "Message-ID")))
	for _, l := range articleLines(raw) {
		if strings.HasPrefix(l, ".") {
			l = "." + l
		}
		reply(l)
	}
	reply(".")
}

func articleLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(raw, "\n"), "\n")
}

func header(raw, key string) string {
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	return msg.Header.Get(key)
}

func overviewLine(n int64, raw string) string {
	_, body, _ := strings.Cut(strings.ReplaceAll(raw, "\r\n", "\n"), "\n\n")
	fields := []string{
		strconv.FormatInt(n, 10),
		header(raw, "Subject"),
		header(raw, "From"),
		header(raw, "Date"),
		header(raw, "Message-ID"),
		header(raw, "References"),
		strconv.Itoa(len(raw)),
		strconv.Itoa(strings.Count(body, "\n")),
	}
	return strings.Join(fields, "\t")
}

// readArticle copies lines into got up to and including the terminator.
func readArticle(r *bufio.Reader, got *strings.Builder) bool {
	for {
		l, err := r.ReadString('\n')
		got.WriteString(l)
		if err != nil {
			return false
		}
		if l == ".\r\n" {
			return true
		}
	}
}
