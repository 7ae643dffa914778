// Package lan is a line-oriented TCP transport, for instruments and
// servers that take one command per line: the PPMS MultiVu remote server,
// or a raw socket instrument.
package lan

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Conn is a TCP connection carrying newline-terminated commands.
type Conn struct {
	mu      sync.Mutex
	c       net.Conn
	br      *bufio.Reader
	timeout time.Duration
	term    string
}

// Dial connects to addr. Each query waits at most timeout for its reply.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(c, timeout), nil
}

// New wraps an established connection.
func New(c net.Conn, timeout time.Duration) *Conn {
	return &Conn{c: c, br: bufio.NewReader(c), timeout: timeout, term: "\r\n"}
}

func (l *Conn) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(cmd)
}

func (l *Conn) Query(cmd string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(cmd); err != nil {
		return "", err
	}
	if l.timeout > 0 {
		if err := l.c.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
			return "", err
		}
	}
	s, err := l.br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%s: read: %w", cmd, err)
	}
	return s, nil
}

func (l *Conn) write(cmd string) error {
	if l.timeout > 0 {
		if err := l.c.SetWriteDeadline(time.Now().Add(l.timeout)); err != nil {
			return err
		}
	}
	if _, err := l.c.Write([]byte(strings.TrimSpace(cmd) + l.term)); err != nil {
		return fmt.Errorf("%s: write: %w", cmd, err)
	}
	return nil
}

// Read and Write expose the raw stream, so a Conn can also carry a GPIB
// controller's ++ protocol. Each call waits at most the Conn's timeout.
func (l *Conn) Read(p []byte) (int, error) {
	if l.timeout > 0 {
		if err := l.c.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
			return 0, err
		}
	}
	return l.c.Read(p)
}

func (l *Conn) Write(p []byte) (int, error) {
	if l.timeout > 0 {
		if err := l.c.SetWriteDeadline(time.Now().Add(l.timeout)); err != nil {
			return 0, err
		}
	}
	return l.c.Write(p)
}

func (l *Conn) Close() error { return l.c.Close() }
