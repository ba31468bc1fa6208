package protocol

import "time"

// DYNASTY20LASERTAG timing (microsecond resolution on the wire)
const (
	Dynasty20HeaderDuration = 1600 * time.Microsecond // Leading mark
	Dynasty20ZeroDuration   = 400 * time.Microsecond  // Slot carrying a 0 bit
	Dynasty20OneDuration    = 800 * time.Microsecond  // Slot carrying a 1 bit
	Dynasty20TrailerGuard   = 1000 * time.Microsecond // Idle space after the last slot

	// Carrier modulation frequency in Hz. Informational only; the host
	// generates the carrier.
	Dynasty20CarrierHz = 38_000
)

// Frame layout
const (
	Dynasty20Bits        = 40 // Data slots after the header
	Dynasty20AddressBits = 8  // Leading field (random seed)
	Dynasty20ValueBits   = 32 // Trailing field (marker, team, weapon, checksum)

	// Pulses per transmission: header + 40 slots + trailer
	Dynasty20PulseCount = 1 + Dynasty20Bits + 1
)

// Payload field values
const (
	DefaultSeed    = 0xAE // Random byte the transmitter picks at boot; checksum offset is known for this value
	FixedMarker    = 0xAA // 0b10101010
	ChecksumOffset = 0x0D
	ChecksumMask   = 0x0F
	ReservedMask   = 0xF0 // Upper nibble of the low byte, always zero
)

// Decode tolerance, as a percentage of the nominal duration
const (
	DefaultTolerancePercent = 25
	// Windows around 400us and 800us start to overlap at 1/3
	MaxTolerancePercent = 33
)
