package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Status is the first element of every reply.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Frame is one multipart message.
type Frame [][]byte

// Request is a decoded request frame.
type Request struct {
	Command string
	// Args keeps each argument undecoded, in order, so handlers coerce them to their own types.
	Args []json.RawMessage
}

// Reply is a decoded reply frame.
type Reply struct {
	Status  Status
	Payload json.RawMessage
}

// EncodeRequest builds a request frame for command with the given positional arguments.
func EncodeRequest(command string, args ...any) (Frame, error) {
	if args == nil {
		args = []any{}
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args of %s: %w", command, err)
	}

	return Frame{[]byte(command), payload}, nil
}

// DecodeRequest splits a request frame into command name and argument list.
//
// It returns ErrMalformedFrame when the frame does not have two parts, and a *DecodeError when
// the command name or the argument array is invalid.
func DecodeRequest(f Frame) (Request, error) {
	if len(f) != 2 {
		return Request{}, fmt.Errorf("%w, got %d", ErrMalformedFrame, len(f))
	}

	if !utf8.Valid(f[0]) {
		return Request{}, &DecodeError{Part: "command", Err: errors.New("command name is not valid UTF-8")}
	}
	req := Request{Command: string(f[0])}

	raw := bytes.TrimSpace(f[1])
	if len(raw) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(raw, &req.Args); err != nil {
		return req, &DecodeError{Part: "args", Err: err}
	}

	return req, nil
}

// EncodeReply builds a reply frame. A nil payload is encoded as JSON null.
func EncodeReply(status Status, payload any) (Frame, error) {
	st, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	return Frame{st, body}, nil
}

// OKReply is EncodeReply(StatusOK, payload).
func OKReply(payload any) (Frame, error) {
	return EncodeReply(StatusOK, payload)
}

// ErrorReply builds an ERROR reply carrying msg. It cannot fail.
func ErrorReply(msg string) Frame {
	st, _ := json.Marshal(StatusError)
	body, _ := json.Marshal(msg)

	return Frame{st, body}
}

// DecodeReply splits a reply frame into status and raw payload.
func DecodeReply(f Frame) (Reply, error) {
	if len(f) != 2 {
		return Reply{}, fmt.Errorf("%w, got %d", ErrMalformedFrame, len(f))
	}

	var rep Reply
	if err := json.Unmarshal(f[0], &rep.Status); err != nil {
		return Reply{}, &DecodeError{Part: "status", Err: err}
	}

	if rep.Status != StatusOK && rep.Status != StatusError {
		return Reply{}, &DecodeError{Part: "status", Err: fmt.Errorf("unknown status %q", rep.Status)}
	}

	rep.Payload = json.RawMessage(bytes.TrimSpace(f[1]))
	if !json.Valid(rep.Payload) {
		return Reply{}, &DecodeError{Part: "payload", Err: errors.New("payload is not valid JSON")}
	}

	return rep, nil
}

// IsOK reports whether the reply carries StatusOK.
func (r Reply) IsOK() bool {
	return r.Status == StatusOK
}

// Decode unmarshals the payload into v.
func (r Reply) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return &DecodeError{Part: "payload", Err: err}
	}

	return nil
}

// Message returns the payload as text. String payloads are unquoted, anything else is
// returned in its JSON form.
func (r Reply) Message() string {
	var s string
	if err := json.Unmarshal(r.Payload, &s); err == nil {
		return s
	}

	return string(r.Payload)
}
