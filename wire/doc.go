// Package wire implements the request/reply encoding spoken between the TEM client and server.
//
// Every message is a Frame of exactly two parts.
//
// Requests:
//   - part 0: the command name, e.g. "SetTiltXAngle".
//   - part 1: the arguments as a JSON array, e.g. [20, true, false].
//
// Replies:
//   - part 0: the JSON encoded status, "OK" or "ERROR".
//   - part 1: the JSON encoded payload. On OK it is command specific (scalar, list or null);
//     on ERROR it is always a human readable string.
//
// The command name travels outside the JSON payload so the server can resolve the handler before
// decoding the arguments, and status and payload are encoded independently so a string payload is
// never confused with the status.
//
// On the TCP stream each frame is length prefixed:
//
//	uint32 BE body length | uint8 part count | (uint32 BE part length | part bytes)...
//
// A frame with a part count other than two decodes with ErrMalformedFrame. The server treats
// that as protocol corruption and exits; a frame with unparsable JSON yields a *DecodeError and
// only fails the one request.
package wire
