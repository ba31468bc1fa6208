package ir

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/metrics"
	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

// Hit is a decoded shot
type Hit struct {
	Protocol   protocol.ProtocolID
	Bits       int
	Address    uint8
	Value      uint32
	Payload    protocol.Payload
	Valid      bool  // checksum and reserved bits verified
	VerifyErr  error // why Valid is false
	ReceivedAt time.Time
}

// HitHandler is called for every delivered hit
type HitHandler func(Hit)

// ReceiverOptions controls receive behaviour
type ReceiverOptions struct {
	// DropInvalid discards frames whose checksum or reserved bits are wrong
	// instead of delivering them flagged invalid
	DropInvalid bool
	// CaptureTimeout bounds each wait in Listen. Zero waits until ctx is done.
	CaptureTimeout time.Duration
}

// Receiver turns captures into hits
type Receiver struct {
	capturer Capturer
	codec    protocol.Codec
	opts     ReceiverOptions
	log      *logger.Logger
	metrics  *metrics.Collector

	handlersMu sync.RWMutex
	handlers   []HitHandler

	now func() time.Time
}

// NewReceiver creates a receiver. metrics may be nil.
func NewReceiver(c Capturer, codec protocol.Codec, opts ReceiverOptions, log *logger.Logger, m *metrics.Collector) *Receiver {
	return &Receiver{
		capturer: c,
		codec:    codec,
		opts:     opts,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// OnHit registers a handler for delivered hits
func (r *Receiver) OnHit(h HitHandler) {
	r.handlersMu.Lock()
	r.handlers = append(r.handlers, h)
	r.handlersMu.Unlock()
}

// Process decodes one capture. Structural failures are returned as errors
// matching the protocol sentinels. A frame that decodes but fails payload
// verification is returned with Valid false, or as an error when
// DropInvalid is set.
func (r *Receiver) Process(pulses []protocol.Pulse) (*Hit, error) {
	if r.metrics != nil {
		r.metrics.CaptureReceived()
	}

	res, err := r.codec.Decode(pulses)
	if err != nil {
		if r.metrics != nil {
			r.metrics.DecodeFailed(FailureKind(err))
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.FrameDecoded()
	}

	payload := protocol.UnpackPayload(res.Value, res.Address)
	hit := &Hit{
		Protocol:   res.Protocol,
		Bits:       res.Bits,
		Address:    res.Address,
		Value:      res.Value,
		Payload:    payload,
		Valid:      true,
		ReceivedAt: r.now(),
	}

	if verr := payload.Verify(); verr != nil {
		hit.Valid = false
		hit.VerifyErr = verr
		if r.metrics != nil {
			r.metrics.ChecksumMismatch(r.opts.DropInvalid)
		}
		r.log.Warn("Frame failed verification",
			logger.String("payload", payload.String()),
			logger.Bool("dropped", r.opts.DropInvalid),
			logger.Error(verr))
		if r.opts.DropInvalid {
			return nil, verr
		}
	}

	return hit, nil
}

// Backoff bounds for Listen when the capturer itself keeps failing
const (
	minCaptureBackoff = 10 * time.Millisecond
	maxCaptureBackoff = time.Second
)

// Receive waits for one capture and processes it
func (r *Receiver) Receive(ctx context.Context) (*Hit, error) {
	pulses, err := r.capture(ctx)
	if err != nil {
		return nil, err
	}
	return r.Process(pulses)
}

func (r *Receiver) capture(ctx context.Context) ([]protocol.Pulse, error) {
	if r.opts.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.CaptureTimeout)
		defer cancel()
	}
	return r.capturer.CapturePulses(ctx)
}

// Listen receives until ctx is cancelled, delivering hits to the registered
// handlers. Bad captures are logged and skipped; the next capture is tried.
// Capturer failures other than timeouts are retried with exponential
// backoff. A frame already decoded when ctx is cancelled is still delivered.
func (r *Receiver) Listen(ctx context.Context) error {
	r.log.Info("Receiver listening",
		logger.String("protocol", r.codec.Protocol().String()),
		logger.Bool("drop_invalid", r.opts.DropInvalid))

	var backoff time.Duration
	for {
		if ctx.Err() != nil {
			r.log.Info("Receiver stopped")
			return ctx.Err()
		}

		pulses, err := r.capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("Receiver stopped")
				return ctx.Err()
			}
			if errors.Is(err, ErrCaptureTimeout) {
				backoff = 0
				continue
			}
			backoff = nextCaptureBackoff(backoff)
			r.log.Warn("Capture failed",
				logger.Duration("retry_in", backoff),
				logger.Error(err))
			select {
			case <-ctx.Done():
				r.log.Info("Receiver stopped")
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		hit, err := r.Process(pulses)
		if err != nil {
			r.log.Debug("Capture rejected",
				logger.String("kind", FailureKind(err)),
				logger.Error(err))
			continue
		}
		r.deliver(*hit)
	}
}

func nextCaptureBackoff(d time.Duration) time.Duration {
	if d < minCaptureBackoff {
		return minCaptureBackoff
	}
	d *= 2
	if d > maxCaptureBackoff {
		return maxCaptureBackoff
	}
	return d
}

func (r *Receiver) deliver(hit Hit) {
	if r.metrics != nil {
		r.metrics.HitRecorded(hit.Payload.Team, hit.ReceivedAt.UnixMilli())
	}

	r.log.Info("Hit received",
		logger.Hex("team", uint64(hit.Payload.Team), 2),
		logger.Hex("weapon", uint64(hit.Payload.Weapon), 2),
		logger.Hex("seed", uint64(hit.Address), 2),
		logger.Bool("valid", hit.Valid))

	r.handlersMu.RLock()
	handlers := make([]HitHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.handlersMu.RUnlock()

	for _, h := range handlers {
		h(hit)
	}
}

// FailureKind names a receive error for logs and metrics
func FailureKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, protocol.ErrTruncatedFrame):
		return "truncated_frame"
	case errors.Is(err, protocol.ErrAmbiguousTiming):
		return "ambiguous_timing"
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, protocol.ErrReservedBits):
		return "reserved_bits"
	case errors.Is(err, ErrCaptureTimeout):
		return "capture_timeout"
	default:
		return "other"
	}
}
