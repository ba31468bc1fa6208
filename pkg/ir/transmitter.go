package ir

import (
	"sync"

	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/metrics"
	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

// Transmitter sends encoded frames through an Emitter
type Transmitter struct {
	emitter Emitter
	codec   protocol.Codec
	seed    uint8
	log     *logger.Logger
	metrics *metrics.Collector
	mu      sync.Mutex // one frame on the emitter at a time
}

// NewTransmitter creates a transmitter. seed is the byte sent before every
// payload; guns pick it at power-on and keep it until reset. metrics may be nil.
func NewTransmitter(e Emitter, codec protocol.Codec, seed uint8, log *logger.Logger, m *metrics.Collector) *Transmitter {
	return &Transmitter{
		emitter: e,
		codec:   codec,
		seed:    seed,
		log:     log,
		metrics: m,
	}
}

// Seed returns the address byte sent with every shot
func (t *Transmitter) Seed() uint8 { return t.seed }

// SendWithTeamAndWeapon fires one shot identifying team and weapon
func (t *Transmitter) SendWithTeamAndWeapon(team, weapon uint8) {
	payload := protocol.NewPayload(t.seed, team, weapon)
	value, address := payload.Pack()

	t.log.Debug("Firing",
		logger.Hex("team", uint64(team), 2),
		logger.Hex("weapon", uint64(weapon), 2),
		logger.Hex("checksum", uint64(payload.Checksum), 1))

	t.Send(value, address)
}

// Send emits the header, the 8-bit address and 32-bit value MSB first, and
// the trailer. Returns once the last pulse has been emitted.
func (t *Transmitter) Send(value uint32, address uint8) {
	pulses := t.codec.Encode(value, address)

	t.mu.Lock()
	for _, p := range pulses {
		t.emitter.EmitPulse(p.Duration, p.Level)
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.ShotSent(len(pulses))
	}

	t.log.Debug("Frame sent",
		logger.String("protocol", t.codec.Protocol().String()),
		logger.Hex("address", uint64(address), 2),
		logger.Hex("value", uint64(value), 8),
		logger.Int("pulses", len(pulses)))
}
