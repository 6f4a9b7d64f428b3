package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates that no reply arrived within the call timeout. The server may still be
	// processing the request.
	ErrTimeout = errors.New("timeout waiting for reply")

	// ErrUnexpectedReply indicates an OK reply whose payload does not have the expected shape.
	ErrUnexpectedReply = errors.New("unexpected reply payload")

	// ErrClosed indicates a call on a closed client.
	ErrClosed = errors.New("client closed")
)

// RemoteCommandError is an ERROR reply from the server.
type RemoteCommandError struct {
	Command string
	// Message is the text supplied by the server.
	Message string
}

func (e *RemoteCommandError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Command, e.Message)
}
