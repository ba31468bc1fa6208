// Package ir drives IR codecs against emitter and capture hardware.
package ir

import (
	"context"
	"errors"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

// ErrCaptureTimeout is returned when no transmission arrives before the
// capture deadline
var ErrCaptureTimeout = errors.New("capture timed out")

// Emitter drives an IR LED. EmitPulse blocks for the duration of the
// pulse, holding the emitter at level.
type Emitter interface {
	EmitPulse(d time.Duration, level protocol.Level)
}

// Capturer hands over one complete received transmission per call
type Capturer interface {
	CapturePulses(ctx context.Context) ([]protocol.Pulse, error)
}
