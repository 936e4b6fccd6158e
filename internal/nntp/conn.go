package nntp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultMaxLineLength bounds a single status line including CRLF.
const DefaultMaxLineLength = 1024

// DefaultMaxDataLineLength bounds one line of a multi-line response.
const DefaultMaxDataLineLength = 64 << 10

// Conn frames CRLF-terminated lines over a net.Conn. It knows nothing about
// NNTP commands. Every read and write is bounded by the I/O timeout and by
// the context the Conn was created with.
type Conn struct {
	nc        net.Conn
	r         *bufio.Reader
	ctx       context.Context
	ioTimeout time.Duration

	mu        sync.Mutex
	cancelled bool
	stop      func() bool

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps nc. Cancelling ctx interrupts any blocking read or write.
func NewConn(ctx context.Context, nc net.Conn, ioTimeout time.Duration) *Conn {
	c := &Conn{
		nc:        nc,
		r:         bufio.NewReaderSize(nc, 4096),
		ctx:       ctx,
		ioTimeout: ioTimeout,
	}
	c.stop = context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cancelled = true
		c.nc.SetDeadline(time.Unix(1, 0))
		c.mu.Unlock()
	})
	return c
}

// arm sets the deadline for the next operation: now+ioTimeout, capped by the
// context deadline.
func (c *Conn) arm(limit time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled || c.ctx.Err() != nil {
		return c.ctxErr()
	}

	var dl time.Time
	if limit > 0 {
		dl = time.Now().Add(limit)
	}
	if ctxDl, ok := c.ctx.Deadline(); ok && (dl.IsZero() || ctxDl.Before(dl)) {
		dl = ctxDl
	}
	return c.nc.SetDeadline(dl)
}

func (c *Conn) ctxErr() error {
	err := c.ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if err == nil {
		err = context.Canceled
	}
	return err
}

// mapErr folds net and io errors into the transport sentinels.
func (c *Conn) mapErr(err error) error {
	if c.ctx.Err() != nil {
		return c.ctxErr()
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		// the socket deadline can fire a hair before the context notices
		if dl, ok := c.ctx.Deadline(); ok && !time.Now().Before(dl) {
			return fmt.Errorf("%w: %w", ErrTimeout, context.DeadlineExceeded)
		}
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}

// ReadLine reads up to and including the next CR LF and returns the line
// without it. A bare LF is kept as line content. ErrLineTooLong is returned
// once maxLen-1 bytes were consumed without a terminator.
func (c *Conn) ReadLine(maxLen int) (string, error) {
	if maxLen <= 2 {
		maxLen = DefaultMaxLineLength
	}
	if err := c.arm(c.ioTimeout); err != nil {
		return "", err
	}

	line := make([]byte, 0, 128)
	for {
		if len(line) >= maxLen-1 {
			return "", fmt.Errorf("%w (max %d)", ErrLineTooLong, maxLen)
		}
		b, err := c.r.ReadByte()
		if err != nil {
			return "", c.mapErr(err)
		}
		if b == '\n' && len(line) > 0 && line[len(line)-1] == '\r' {
			return string(line[:len(line)-1]), nil
		}
		line = append(line, b)
	}
}

// ReadDotBlock reads a multi-line response up to the lone "." line and
// undoes dot-stuffing. Lines are returned joined by CRLF. ErrBlockTooLarge
// is returned once the content would exceed maxBytes; maxBytes <= 0 means
// no limit.
func (c *Conn) ReadDotBlock(maxLine, maxBytes int) ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := c.ReadLine(maxLine)
		if err != nil {
			return nil, err
		}
		if line == "." {
			return buf.Bytes(), nil
		}
		line = strings.TrimPrefix(line, ".")

		if maxBytes > 0 && buf.Len()+len(line)+2 > maxBytes {
			return nil, fmt.Errorf("%w (max %d bytes)", ErrBlockTooLarge, maxBytes)
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
}

// WriteRaw writes p as is. The caller supplies any terminator.
func (c *Conn) WriteRaw(p []byte) (int, error) {
	if err := c.arm(c.ioTimeout); err != nil {
		return 0, err
	}
	n, err := c.nc.Write(p)
	if err != nil {
		return n, c.mapErr(err)
	}
	return n, nil
}

// Write makes Conn usable as an io.Writer for article framing.
func (c *Conn) Write(p []byte) (int, error) { return c.WriteRaw(p) }

// WriteLine writes s followed by CRLF.
func (c *Conn) WriteLine(s string) error {
	_, err := c.WriteRaw([]byte(s + "\r\n"))
	return err
}

// Close releases the connection. Only the first call reaches the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.stop()
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// RemoteAddr is the server address the connection is bound to.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
