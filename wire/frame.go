package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxFrameSize is the largest accepted frame body in bytes.
const MaxFrameSize = 1 << 20

const (
	lenHeaderSize  = 4
	partHeaderSize = 4
	maxParts       = 255
)

// Marshal serializes f into its length-prefixed stream form.
func Marshal(f Frame) ([]byte, error) {
	if len(f) > maxParts {
		return nil, fmt.Errorf("frame has %d parts, limit is %d", len(f), maxParts)
	}

	bodyLen := 1
	for _, part := range f {
		bodyLen += partHeaderSize + len(part)
	}
	if bodyLen > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, bodyLen)
	}

	buf := make([]byte, lenHeaderSize+bodyLen)
	binary.BigEndian.PutUint32(buf, uint32(bodyLen))
	buf[lenHeaderSize] = byte(len(f))

	off := lenHeaderSize + 1
	for _, part := range f {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(part)))
		off += partHeaderSize
		off += copy(buf[off:], part)
	}

	return buf, nil
}

// Unmarshal parses a frame body, without its length header, into parts.
func Unmarshal(body []byte) (Frame, error) {
	if len(body) == 0 {
		return nil, ErrEmptyFrame
	}

	count := int(body[0])
	f := make(Frame, 0, count)
	rest := body[1:]

	for i := 0; i < count; i++ {
		if len(rest) < partHeaderSize {
			return nil, fmt.Errorf("%w: part %d header", ErrTruncatedFrame, i)
		}
		n := binary.BigEndian.Uint32(rest)
		rest = rest[partHeaderSize:]

		if uint64(n) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: part %d needs %d bytes, %d left", ErrTruncatedFrame, i, n, len(rest))
		}
		f = append(f, rest[:n])
		rest = rest[n:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrTruncatedFrame, len(rest))
	}

	return f, nil
}

// WriteFrame writes f to w in one call.
func WriteFrame(w io.Writer, f Frame) error {
	buf, err := Marshal(f)
	if err != nil {
		return err
	}

	_, err = w.Write(buf)

	return err
}

// FrameReader reads length-prefixed frames from a net.Conn.
//
// It follows the same two phases as every read on the stream:
//  1. Read the 4-byte big-endian length with IdleTimeout (zero allows the session to idle forever).
//  2. Validate the length and read the body with BodyTimeout.
//
// FrameReader is NOT goroutine-safe; each connection has a single reader.
type FrameReader struct {
	IdleTimeout time.Duration
	BodyTimeout time.Duration

	lenBuf [lenHeaderSize]byte
}

// ReadFrame reads and parses one frame from conn.
func (fr *FrameReader) ReadFrame(conn net.Conn) (Frame, error) {
	if err := conn.SetReadDeadline(deadline(fr.IdleTimeout)); err != nil {
		return nil, fmt.Errorf("set idle deadline: %w", err)
	}

	if _, err := io.ReadFull(conn, fr.lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(fr.lenBuf[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	if err := conn.SetReadDeadline(deadline(fr.BodyTimeout)); err != nil {
		return nil, fmt.Errorf("set body deadline: %w", err)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	return Unmarshal(body)
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}

	return time.Now().Add(d)
}
