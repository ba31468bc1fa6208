package ir

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

// Loopback is an in-memory Emitter and Capturer for hosts without IR
// hardware. Emitted pulses accumulate until a space of at least the trailer
// guard closes the frame, which is then queued for capture. When the queue
// is full the oldest frame is dropped.
type Loopback struct {
	mu      sync.Mutex
	current []protocol.Pulse
	queue   [][]protocol.Pulse
	limit   int
	ready   chan struct{} // signalled when a frame is queued
	jitter  time.Duration
	rng     *rand.Rand
	dropped uint64
}

// NewLoopback creates a loopback holding up to queue frames. Each captured
// pulse deviates from its emitted duration by a uniform random amount in
// [-jitter, +jitter].
func NewLoopback(queue int, jitter time.Duration) *Loopback {
	if queue <= 0 {
		queue = 1
	}
	return &Loopback{
		limit:  queue,
		ready:  make(chan struct{}, 1),
		jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EmitPulse implements Emitter. It does not block for d.
func (l *Loopback) EmitPulse(d time.Duration, level protocol.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.current = append(l.current, protocol.Pulse{Level: level, Duration: l.perturb(d)})
	if level == protocol.Space && d >= protocol.Dynasty20TrailerGuard {
		frame := l.current
		l.current = nil
		l.push(frame)
	}
}

// Inject queues a complete capture as if it had been received
func (l *Loopback) Inject(pulses []protocol.Pulse) {
	frame := make([]protocol.Pulse, len(pulses))
	copy(frame, pulses)

	l.mu.Lock()
	l.push(frame)
	l.mu.Unlock()
}

// CapturePulses implements Capturer
func (l *Loopback) CapturePulses(ctx context.Context) ([]protocol.Pulse, error) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			frame := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			if len(l.queue) > 0 {
				l.signal()
			}
			l.mu.Unlock()
			return frame, nil
		}
		l.mu.Unlock()

		select {
		case <-l.ready:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrCaptureTimeout
			}
			return nil, ctx.Err()
		}
	}
}

// Pending returns the number of frames waiting for capture
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Dropped returns the number of frames discarded because the queue was full
func (l *Loopback) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// push must be called with mu held
func (l *Loopback) push(frame []protocol.Pulse) {
	if len(l.queue) == l.limit {
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.dropped++
	}
	l.queue = append(l.queue, frame)
	l.signal()
}

func (l *Loopback) signal() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *Loopback) perturb(d time.Duration) time.Duration {
	if l.jitter <= 0 {
		return d
	}
	delta := time.Duration(l.rng.Int63n(int64(2*l.jitter)+1)) - l.jitter
	if d+delta <= 0 {
		return time.Microsecond
	}
	return d + delta
}
