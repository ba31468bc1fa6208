package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedHeader  = errors.New("malformed header")
	ErrTruncatedFrame   = errors.New("truncated frame")
	ErrAmbiguousTiming  = errors.New("ambiguous timing")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrReservedBits     = errors.New("reserved bits set")
	ErrUnknownProtocol  = errors.New("unknown protocol")
	ErrInvalidTolerance = errors.New("invalid tolerance (valid range: 1-32 percent)")
	ErrInvalidRawPulse  = errors.New("invalid raw pulse")
)

// DecodeError reports where in a capture decoding stopped.
// Slot is -1 for header failures.
type DecodeError struct {
	Err   error
	Slot  int
	Pulse *Pulse // nil when the capture ran out
}

func (e *DecodeError) Error() string {
	switch {
	case e.Slot < 0 && e.Pulse == nil:
		return fmt.Sprintf("%v: no header pulse", e.Err)
	case e.Slot < 0:
		return fmt.Sprintf("%v: header %s", e.Err, e.Pulse)
	case e.Pulse == nil:
		return fmt.Sprintf("%v: capture ended at slot %d", e.Err, e.Slot)
	default:
		return fmt.Sprintf("%v: slot %d got %s", e.Err, e.Slot, e.Pulse)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }
