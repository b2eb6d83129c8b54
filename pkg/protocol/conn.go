package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultMaxFrameBytes bounds a single envelope when no limit is configured.
const DefaultMaxFrameBytes = 1 << 20

// ErrFrameTooLarge is returned inside a FrameError when a record exceeds the limit.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// Conn moves whole envelopes. Each read or write corresponds to exactly one envelope.
type Conn interface {
	ReadEnvelope() (Envelope, error)
	WriteEnvelope(env Envelope) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// FrameError reports a record that arrived intact but is not a valid envelope. The
// connection remains usable.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("protocol: invalid frame: %v", e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// StreamConn carries newline-delimited JSON envelopes over a byte stream.
type StreamConn struct {
	conn     net.Conn
	reader   *bufio.Reader
	maxFrame int
}

// NewStreamConn wraps a net.Conn. maxFrame <= 0 selects DefaultMaxFrameBytes.
func NewStreamConn(conn net.Conn, maxFrame int) *StreamConn {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	return &StreamConn{conn: conn, reader: bufio.NewReader(conn), maxFrame: maxFrame}
}

// ReadEnvelope blocks until one full record arrives or the connection fails.
func (c *StreamConn) ReadEnvelope() (Envelope, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return Envelope{}, err
		}
		if len(line) == 0 {
			continue
		}
		return parseFrame(line)
	}
}

func (c *StreamConn) readLine() ([]byte, error) {
	var (
		buf      []byte
		overflow bool
	)
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if !overflow {
			if len(buf)+len(chunk) > c.maxFrame+1 {
				overflow = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			if overflow {
				return nil, &FrameError{Err: ErrFrameTooLarge}
			}
			return trimLine(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0 && !overflow:
			return trimLine(buf), nil
		default:
			return nil, err
		}
	}
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// WriteEnvelope writes one record terminated by a newline.
func (c *StreamConn) WriteEnvelope(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = c.conn.Write(payload)
	return err
}

func (c *StreamConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *StreamConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *StreamConn) Close() error                       { return c.conn.Close() }

func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func parseFrame(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &FrameError{Err: err}
	}
	if env.Op == "" {
		return Envelope{}, &FrameError{Err: errors.New("missing op")}
	}
	return env, nil
}
