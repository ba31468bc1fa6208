package protocol

import (
	"fmt"
	"strings"
)

// ProtocolID identifies an IR protocol. Numbers follow the IRLib protocol
// table so captures exchanged with IRLib tooling stay comparable.
type ProtocolID uint8

const (
	ProtocolUnknown           ProtocolID = 0
	ProtocolDynasty20LaserTag ProtocolID = 13
)

var protocolNames = map[ProtocolID]string{
	ProtocolUnknown:           "UNKNOWN",
	ProtocolDynasty20LaserTag: "DYNASTY20LASERTAG",
}

func (id ProtocolID) String() string {
	if name, ok := protocolNames[id]; ok {
		return name
	}
	return fmt.Sprintf("PROTOCOL(%d)", uint8(id))
}

// ParseProtocolID maps a protocol name (case-insensitive) to its id
func ParseProtocolID(name string) (ProtocolID, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for id, n := range protocolNames {
		if id != ProtocolUnknown && n == upper {
			return id, nil
		}
	}
	return ProtocolUnknown, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
}

// Result is a successfully decoded frame. Address holds the bits sent before
// Value (bits 39..32 of a 40-bit frame).
type Result struct {
	Protocol ProtocolID
	Bits     int
	Address  uint8
	Value    uint32
}

// Codec encodes and decodes one protocol's timed pulse sequences
type Codec interface {
	Protocol() ProtocolID
	Encode(value uint32, address uint8) []Pulse
	Decode(pulses []Pulse) (*Result, error)
}

// Lookup returns the codec for a protocol id. tolerancePercent of 0 selects
// the default.
func Lookup(id ProtocolID, tolerancePercent int) (Codec, error) {
	switch id {
	case ProtocolDynasty20LaserTag:
		c, err := NewDynasty20(tolerancePercent)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, id)
	}
}
