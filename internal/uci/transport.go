package uci

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Transport is an ordered, line-delimited duplex stream to an engine.
// Send and Recv may be called from different goroutines; Recv is only ever
// called from one.
type Transport interface {
	// Send writes one line. The newline is added by the transport.
	Send(line string) error
	// Recv blocks for the next non-empty line. It returns io.EOF once the
	// stream is closed.
	Recv() (string, error)
	// Close releases the stream. It is safe to call more than once.
	Close() error
}

// StreamTransport adapts a reader/writer pair, such as process pipes.
type StreamTransport struct {
	scanner *bufio.Scanner
	r       io.Reader

	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

const maxLineBytes = 1 << 20

// NewStreamTransport wraps r and w. Closing the transport closes w and, if
// it implements io.Closer, r.
func NewStreamTransport(r io.Reader, w io.WriteCloser) *StreamTransport {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &StreamTransport{scanner: sc, r: r, w: w}
}

func (t *StreamTransport) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	if _, err := io.WriteString(t.w, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (t *StreamTransport) Recv() (string, error) {
	for t.scanner.Scan() {
		line := strings.TrimSpace(t.scanner.Text())
		if line != "" {
			return line, nil
		}
	}
	if err := t.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	errW := t.w.Close()
	var errR error
	if c, ok := t.r.(io.Closer); ok {
		errR = c.Close()
	}
	return errors.Join(errW, errR)
}
