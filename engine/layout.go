package engine

import (
	"github.com/e7canasta/analysis-core/capability"
	"github.com/e7canasta/analysis-core/framestore"
)

// Channel names of the default layout.
const (
	ChannelWaveformMin = "waveform.min"
	ChannelWaveformMax = "waveform.max"
	ChannelSpectrum    = "spectrum"
	ChannelPitch       = "pitch.hz"
	ChannelRMS         = "speech.rms_db"
	ChannelZCR         = "speech.zcr"
	ChannelVoicing     = "voicing"
	ChannelFormants    = "formants"
)

// Voicing states written to ChannelVoicing.
const (
	Silence  float32 = 0
	Unvoiced float32 = 1
	Voiced   float32 = 2
)

// formantCount is F1..F3.
const formantCount = 3

// DefaultLayout returns the channel layout the engine produces.
// spectrumBins <= 0 is treated as 1.
func DefaultLayout(spectrumBins int) framestore.Layout {
	return framestore.Layout{
		{Name: ChannelWaveformMin, Capability: capability.Waveform, Width: 1},
		{Name: ChannelWaveformMax, Capability: capability.Waveform, Width: 1},
		{Name: ChannelSpectrum, Capability: capability.Spectrogram, Width: max(spectrumBins, 1)},
		{Name: ChannelPitch, Capability: capability.Pitch, Width: 1},
		{Name: ChannelRMS, Capability: capability.SpeechMetrics, Width: 1},
		{Name: ChannelZCR, Capability: capability.SpeechMetrics, Width: 1},
		{Name: ChannelVoicing, Capability: capability.VoicingState, Width: 1},
		{Name: ChannelFormants, Capability: capability.Formants, Width: formantCount},
	}
}
