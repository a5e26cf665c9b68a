// Package capability defines the measurement categories a consumer can ask
// the analysis engine for.
//
// Capabilities are independent bit flags. A Set is the bitwise OR of any
// number of them and is a plain value: copying it never aliases state, which
// is what lets the orchestrator publish the current union as an immutable
// snapshot.
package capability

import (
	"fmt"
	"math/bits"
	"strings"
)

// Capability is a single measurement category.
type Capability uint32

const (
	// Waveform is per-frame sample extrema (min/max).
	Waveform Capability = 1 << iota
	// Spectrogram is per-frame spectrum magnitudes.
	Spectrogram
	// Pitch is fundamental frequency and confidence.
	Pitch
	// SpeechMetrics is scalar level/rate metrics (RMS, zero-crossing rate).
	SpeechMetrics
	// VoicingState is the voiced/unvoiced/silence state byte.
	VoicingState
	// Formants is the first formant frequencies.
	Formants
)

// All contains every known capability.
const All = Set(Waveform | Spectrogram | Pitch | SpeechMetrics | VoicingState | Formants)

// None is the empty set.
const None = Set(0)

var names = []struct {
	c    Capability
	name string
}{
	{Waveform, "waveform"},
	{Spectrogram, "spectrogram"},
	{Pitch, "pitch"},
	{SpeechMetrics, "speech_metrics"},
	{VoicingState, "voicing_state"},
	{Formants, "formants"},
}

// String returns the config name of the capability.
func (c Capability) String() string {
	for _, n := range names {
		if n.c == c {
			return n.name
		}
	}
	return fmt.Sprintf("capability(%#x)", uint32(c))
}

// Set is a bitset of capabilities.
type Set uint32

// Of builds a set from individual capabilities.
func Of(cs ...Capability) Set {
	var s Set
	for _, c := range cs {
		s |= Set(c)
	}
	return s
}

// Has reports whether every bit of c is present in s.
func (s Set) Has(c Capability) bool {
	return s&Set(c) == Set(c)
}

// Union returns s | o.
func (s Set) Union(o Set) Set { return s | o }

// Without returns s with the bits of o cleared.
func (s Set) Without(o Set) Set { return s &^ o }

// Empty reports whether no capability is set.
func (s Set) Empty() bool { return s == 0 }

// Len returns the number of capabilities in s.
func (s Set) Len() int { return bits.OnesCount32(uint32(s)) }

// List returns the known capabilities in s in declaration order.
func (s Set) List() []Capability {
	out := make([]Capability, 0, s.Len())
	for _, n := range names {
		if s.Has(n.c) {
			out = append(out, n.c)
		}
	}
	return out
}

// String renders the set as "waveform|pitch", or "none".
func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	list := s.List()
	parts := make([]string, 0, len(list)+1)
	for _, c := range list {
		parts = append(parts, c.String())
	}
	if rest := s.Without(All); rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Parse returns the capability with the given config name.
func Parse(name string) (Capability, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, n := range names {
		if n.name == key {
			return n.c, nil
		}
	}
	return 0, fmt.Errorf("capability: unknown capability %q", name)
}

// ParseSet parses a list of config names into a set. "all" selects every
// known capability.
func ParseSet(list []string) (Set, error) {
	var s Set
	for _, name := range list {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			s |= All
			continue
		}
		c, err := Parse(name)
		if err != nil {
			return 0, err
		}
		s |= Set(c)
	}
	return s, nil
}
