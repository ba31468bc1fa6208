package protocol

import "fmt"

// Payload is the semantic content of one DYNASTY20LASERTAG transmission.
//
// Slot layout (slot 1 is sent first):
//
//	slots  1-8   Seed      random byte picked at power-on
//	slots  9-16  Marker    0xAA
//	slots 17-24  Team      team code
//	slots 25-32  Weapon    weapon code
//	slots 33-36  Reserved  0b0000
//	slots 37-40  Checksum  (0x0D + team + weapon) mod 16
type Payload struct {
	Seed     uint8
	Marker   uint8
	Team     uint8
	Weapon   uint8
	Reserved uint8 // 4 bits
	Checksum uint8 // 4 bits
}

// Checksum derives the 4-bit check nibble. The offset is only known for
// transmitters whose seed is 0xAE.
func Checksum(team, weapon uint8) uint8 {
	return uint8((ChecksumOffset + uint(team) + uint(weapon)) & ChecksumMask)
}

// NewPayload builds the payload a gun with the given seed sends for a team
// and weapon selection.
func NewPayload(seed, team, weapon uint8) Payload {
	return Payload{
		Seed:     seed,
		Marker:   FixedMarker,
		Team:     team,
		Weapon:   weapon,
		Checksum: Checksum(team, weapon),
	}
}

// Pack returns the two wire fields: the 32-bit value and the 8-bit address
// (seed) that precedes it on the wire.
func (p Payload) Pack() (value uint32, address uint8) {
	value = uint32(p.Marker)<<24 |
		uint32(p.Team)<<16 |
		uint32(p.Weapon)<<8 |
		uint32(p.Reserved&0x0F)<<4 |
		uint32(p.Checksum&ChecksumMask)
	return value, p.Seed
}

// UnpackPayload splits decoded wire fields back into a Payload
func UnpackPayload(value uint32, address uint8) Payload {
	return Payload{
		Seed:     address,
		Marker:   uint8(value >> 24),
		Team:     uint8(value >> 16),
		Weapon:   uint8(value >> 8),
		Reserved: uint8(value&ReservedMask) >> 4,
		Checksum: uint8(value & ChecksumMask),
	}
}

// Verify checks the checksum nibble and the reserved bits. A failure here is
// a semantic signal only; the frame itself decoded fine.
func (p Payload) Verify() error {
	if want := Checksum(p.Team, p.Weapon); p.Checksum != want {
		return fmt.Errorf("%w: got 0x%X, want 0x%X", ErrChecksumMismatch, p.Checksum, want)
	}
	if p.Reserved != 0 {
		return fmt.Errorf("%w: 0x%X", ErrReservedBits, p.Reserved)
	}
	return nil
}

func (p Payload) String() string {
	return fmt.Sprintf("seed=0x%02X marker=0x%02X team=0x%02X weapon=0x%02X checksum=0x%X",
		p.Seed, p.Marker, p.Team, p.Weapon, p.Checksum)
}
