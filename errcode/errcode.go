package errcode

import (
	"errors"

	"sensorcode-go/drivers/dht22"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"

	// Sensor transaction failures.
	Timeout       Code = "timeout"
	ProtocolError Code = "protocol_error"
	ChecksumError Code = "checksum_error"
	IOError       Code = "io_error"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is matches the bare Code, so errors.Is(err, PinInUse) holds for a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps sensor driver errors to a Code. Errors the driver passes
// through from the line itself become IOError.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, dht22.ErrTimeout):
		return Timeout
	case errors.Is(err, dht22.ErrProtocol):
		return ProtocolError
	case errors.Is(err, dht22.ErrChecksum):
		return ChecksumError
	}
	if c := Of(err); c != Error {
		return c
	}
	return IOError
}
