package metrics

import (
	"sync"
)

// Collector collects transmitter and receiver metrics
type Collector struct {
	mu sync.RWMutex

	// Transmit metrics
	shotsSent     uint64
	pulsesEmitted uint64

	// Receive metrics
	capturesReceived  uint64
	framesDecoded     uint64
	decodeFailures    map[string]uint64 // key: failure kind
	checksumMismatch  uint64
	framesDropped     uint64
	hitsByTeam        map[uint8]uint64
	lastHitUnixMillis int64
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		decodeFailures: make(map[string]uint64),
		hitsByTeam:     make(map[uint8]uint64),
	}
}

// ShotSent records one complete transmission of the given number of pulses
func (c *Collector) ShotSent(pulses int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shotsSent++
	c.pulsesEmitted += uint64(pulses)
}

// CaptureReceived records a pulse buffer handed to the decoder
func (c *Collector) CaptureReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capturesReceived++
}

// FrameDecoded records a structurally valid frame
func (c *Collector) FrameDecoded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.framesDecoded++
}

// DecodeFailed records a structural decode failure by kind
// (malformed_header, truncated_frame, ambiguous_timing, ...)
func (c *Collector) DecodeFailed(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.decodeFailures[kind]++
}

// ChecksumMismatch records a decoded frame whose checksum or reserved bits were wrong
func (c *Collector) ChecksumMismatch(dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checksumMismatch++
	if dropped {
		c.framesDropped++
	}
}

// HitRecorded records a delivered hit for a team
func (c *Collector) HitRecorded(team uint8, unixMillis int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hitsByTeam[team]++
	c.lastHitUnixMillis = unixMillis
}

// Reset clears per-kind and per-team breakdowns (useful for testing).
// Cumulative totals are kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.decodeFailures = make(map[string]uint64)
	c.hitsByTeam = make(map[uint8]uint64)
}

// Getters for metrics

// GetShotsSent returns total transmissions
func (c *Collector) GetShotsSent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shotsSent
}

// GetPulsesEmitted returns total pulses handed to the emitter
func (c *Collector) GetPulsesEmitted() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pulsesEmitted
}

// GetCapturesReceived returns total captures processed
func (c *Collector) GetCapturesReceived() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturesReceived
}

// GetFramesDecoded returns total structurally valid frames
func (c *Collector) GetFramesDecoded() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.framesDecoded
}

// GetDecodeFailures returns a copy of failure counts by kind
func (c *Collector) GetDecodeFailures() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]uint64, len(c.decodeFailures))
	for k, v := range c.decodeFailures {
		out[k] = v
	}
	return out
}

// GetChecksumMismatches returns frames that failed payload verification
func (c *Collector) GetChecksumMismatches() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checksumMismatch
}

// GetFramesDropped returns frames discarded after failing verification
func (c *Collector) GetFramesDropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.framesDropped
}

// GetHitsByTeam returns a copy of hit counts by team code
func (c *Collector) GetHitsByTeam() map[uint8]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[uint8]uint64, len(c.hitsByTeam))
	for k, v := range c.hitsByTeam {
		out[k] = v
	}
	return out
}

// GetLastHitUnixMillis returns when the last hit was recorded, 0 if never
func (c *Collector) GetLastHitUnixMillis() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHitUnixMillis
}
