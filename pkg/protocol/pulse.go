package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Level is the emitter state during a pulse
type Level uint8

const (
	Space Level = iota // Emitter off
	Mark               // Emitter on (carrier modulated)
)

func (l Level) String() string {
	if l == Mark {
		return "mark"
	}
	return "space"
}

// Pulse is one timed interval of a transmission
type Pulse struct {
	Level    Level
	Duration time.Duration
}

// String renders the pulse in raw notation, e.g. "+1600" or "-400"
func (p Pulse) String() string {
	sign := "-"
	if p.Level == Mark {
		sign = "+"
	}
	return sign + strconv.FormatInt(p.Duration.Microseconds(), 10)
}

// FormatPulses renders a capture as space separated signed microseconds,
// the format AnalysIR and IRremote raw dumps use.
func FormatPulses(pulses []Pulse) string {
	parts := make([]string, len(pulses))
	for i, p := range pulses {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

// ParsePulses parses raw notation. A leading '+' marks the emitter on and
// '-' off. Commas are accepted as separators.
func ParsePulses(raw string) ([]Pulse, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	})

	pulses := make([]Pulse, 0, len(fields))
	for i, f := range fields {
		if len(f) < 2 || (f[0] != '+' && f[0] != '-') {
			return nil, fmt.Errorf("%w: token %d %q needs a +/- prefix", ErrInvalidRawPulse, i, f)
		}
		us, err := strconv.ParseUint(f[1:], 10, 32)
		if err != nil || us == 0 {
			return nil, fmt.Errorf("%w: token %d %q", ErrInvalidRawPulse, i, f)
		}
		level := Space
		if f[0] == '+' {
			level = Mark
		}
		pulses = append(pulses, Pulse{Level: level, Duration: time.Duration(us) * time.Microsecond})
	}
	return pulses, nil
}
