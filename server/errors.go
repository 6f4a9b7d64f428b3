package server

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand indicates a command name absent from the registry.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrArity indicates a request with the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")

	// ErrArgType indicates an argument that cannot be coerced to the declared type.
	ErrArgType = errors.New("invalid argument type")

	// ErrArgRange indicates an argument of the right type but outside the accepted range.
	ErrArgRange = errors.New("argument out of range")

	// ErrShuttingDown indicates that the server left the Serving state.
	ErrShuttingDown = errors.New("server is shutting down")

	// ErrProtocolFatal indicates a corrupt multipart message, after which the server cannot continue.
	ErrProtocolFatal = errors.New("protocol fatal")
)

// UnknownCommandMessage is the ERROR payload for a command absent from the registry.
func UnknownCommandMessage(name string) string {
	return fmt.Sprintf("Function: %s not implemented", name)
}

// HandlerError wraps any failure of a known command. Its text is the ERROR payload sent to the client.
type HandlerError struct {
	Command string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("Exception occurred when calling: %s. Error message: %v", e.Command, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
