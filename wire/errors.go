package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame indicates a frame that does not have exactly two parts.
	ErrMalformedFrame = errors.New("malformed frame, expected 2 parts")

	// ErrFrameTooLarge indicates a frame whose length header exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrEmptyFrame indicates a frame with a zero length header.
	ErrEmptyFrame = errors.New("frame length is zero")

	// ErrTruncatedFrame indicates a frame body that ends in the middle of a part.
	ErrTruncatedFrame = errors.New("frame body truncated")
)

// DecodeError reports a request or reply part that could not be decoded.
// It is local to one request: the server answers ERROR and the session continues.
type DecodeError struct {
	// Part names the offending part, e.g. "args" or "status".
	Part string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Part, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
