package protocol

import "time"

// Dynasty20 is the DYNASTY20LASERTAG codec.
//
// A transmission is a 1600us mark followed by 40 alternating slots starting
// with a space (slot 0 space, slot 1 mark, ...). Polarity is fixed by slot
// position; only the duration carries data: 400us is a 0, 800us is a 1.
// The 8-bit address is sent MSB first, then the 32-bit value MSB first,
// then a 1000us space to settle the line.
type Dynasty20 struct {
	tolerance int // percent of nominal duration
}

// NewDynasty20 returns a codec that accepts durations within
// tolerancePercent of nominal when decoding. Zero selects the default.
func NewDynasty20(tolerancePercent int) (*Dynasty20, error) {
	if tolerancePercent == 0 {
		tolerancePercent = DefaultTolerancePercent
	}
	if tolerancePercent < 0 || tolerancePercent >= MaxTolerancePercent {
		return nil, ErrInvalidTolerance
	}
	return &Dynasty20{tolerance: tolerancePercent}, nil
}

// Protocol implements Codec
func (d *Dynasty20) Protocol() ProtocolID { return ProtocolDynasty20LaserTag }

// Tolerance returns the decode window in percent
func (d *Dynasty20) Tolerance() int { return d.tolerance }

// Encode implements Codec. The result always holds Dynasty20PulseCount pulses.
func (d *Dynasty20) Encode(value uint32, address uint8) []Pulse {
	pulses := make([]Pulse, 0, Dynasty20PulseCount)
	pulses = append(pulses, Pulse{Level: Mark, Duration: Dynasty20HeaderDuration})

	frame := uint64(address)<<Dynasty20ValueBits | uint64(value)
	for slot := 0; slot < Dynasty20Bits; slot++ {
		bit := frame>>(Dynasty20Bits-1-slot)&1 == 1
		pulses = append(pulses, Pulse{Level: slotLevel(slot), Duration: bitDuration(bit)})
	}

	return append(pulses, Pulse{Level: Space, Duration: Dynasty20TrailerGuard})
}

// EncodeTeamWeapon encodes the frame a gun with the default seed sends
func (d *Dynasty20) EncodeTeamWeapon(team, weapon uint8) []Pulse {
	return d.Encode(NewPayload(DefaultSeed, team, weapon).Pack())
}

// Decode implements Codec. It consumes the header and 40 slots; anything
// after the last slot (normally the trailer guard) is ignored.
func (d *Dynasty20) Decode(pulses []Pulse) (*Result, error) {
	if len(pulses) == 0 {
		return nil, &DecodeError{Err: ErrMalformedHeader, Slot: -1}
	}
	header := pulses[0]
	if header.Level != Mark || !d.within(header.Duration, Dynasty20HeaderDuration) {
		return nil, &DecodeError{Err: ErrMalformedHeader, Slot: -1, Pulse: &header}
	}

	var frame uint64
	for slot := 0; slot < Dynasty20Bits; slot++ {
		idx := slot + 1
		if idx >= len(pulses) {
			return nil, &DecodeError{Err: ErrTruncatedFrame, Slot: slot}
		}
		p := pulses[idx]
		if p.Level != slotLevel(slot) {
			return nil, &DecodeError{Err: ErrTruncatedFrame, Slot: slot, Pulse: &p}
		}

		var bit uint64
		switch {
		case d.within(p.Duration, Dynasty20ZeroDuration):
			bit = 0
		case d.within(p.Duration, Dynasty20OneDuration):
			bit = 1
		default:
			return nil, &DecodeError{Err: ErrAmbiguousTiming, Slot: slot, Pulse: &p}
		}
		frame = frame<<1 | bit
	}

	return &Result{
		Protocol: ProtocolDynasty20LaserTag,
		Bits:     Dynasty20Bits,
		Address:  uint8(frame >> Dynasty20ValueBits),
		Value:    uint32(frame),
	}, nil
}

// DecodePayload decodes a capture and unpacks it. The returned error is a
// structural decode failure; use Payload.Verify for the checksum.
func (d *Dynasty20) DecodePayload(pulses []Pulse) (Payload, error) {
	res, err := d.Decode(pulses)
	if err != nil {
		return Payload{}, err
	}
	return UnpackPayload(res.Value, res.Address), nil
}

func (d *Dynasty20) within(got, nominal time.Duration) bool {
	delta := nominal * time.Duration(d.tolerance) / 100
	return got >= nominal-delta && got <= nominal+delta
}

// Even slots are spaces, odd slots are marks
func slotLevel(slot int) Level {
	if slot&1 == 1 {
		return Mark
	}
	return Space
}

func bitDuration(one bool) time.Duration {
	if one {
		return Dynasty20OneDuration
	}
	return Dynasty20ZeroDuration
}
