// Package vad provides the speech-presence gate: a per-clip segment
// detector and a fast per-chunk check for streaming feedback. The energy
// gate is the built-in heuristic; a model-backed gate can replace it
// behind the same interface, and the passthrough gate is the fallback when
// no detector is available.
package vad

import (
	"math"

	"github.com/sori-ai/sori/pkg/audio"
)

// MinChunkSamples is the smallest chunk the streaming check accepts;
// shorter chunks are zero-padded.
const MinChunkSamples = 512

// SpeechSegment is one detected span of speech, in seconds.
type SpeechSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Detection is the result of a full-clip pass.
type Detection struct {
	Segments       []SpeechSegment
	SpeechDetected bool
}

// Gate classifies audio as speech vs. non-speech.
type Gate interface {
	// Detect runs over a whole utterance and returns speech segments.
	Detect(buf audio.Buffer) Detection
	// IsSpeechChunk is the fast streaming check for one incoming chunk.
	IsSpeechChunk(chunk []float32) (bool, float64)
}

// EnergyGate is a threshold-on-RMS heuristic detector. Frame decisions are
// smoothed with a silence hangover so short pauses inside speech do not
// split segments.
type EnergyGate struct {
	// Threshold is the RMS level above which a frame counts as speech.
	Threshold float64
	// SampleRate of incoming audio.
	SampleRate int
	// MinSilence is the hangover, in milliseconds, before a running
	// segment closes.
	MinSilenceMS int
}

// NewEnergyGate returns a gate with the pipeline defaults (threshold 0.02,
// 16 kHz, 500 ms hangover).
func NewEnergyGate() *EnergyGate {
	return &EnergyGate{Threshold: 0.02, SampleRate: audio.DefaultSampleRate, MinSilenceMS: 500}
}

const energyFrame = 512

// Detect scans fixed 512-sample frames and merges speech runs separated by
// less than the hangover into single segments.
func (g *EnergyGate) Detect(buf audio.Buffer) Detection {
	sr := g.SampleRate
	if buf.SampleRate > 0 {
		sr = buf.SampleRate
	}
	if sr <= 0 || buf.Len() == 0 {
		return Detection{Segments: []SpeechSegment{}}
	}

	hangoverFrames := (g.MinSilenceMS * sr / 1000) / energyFrame
	if hangoverFrames < 1 {
		hangoverFrames = 1
	}

	var (
		segments  []SpeechSegment
		inSpeech  bool
		start     int
		silentRun int
	)
	frameCount := (buf.Len() + energyFrame - 1) / energyFrame
	for i := 0; i < frameCount; i++ {
		lo := i * energyFrame
		hi := lo + energyFrame
		if hi > buf.Len() {
			hi = buf.Len()
		}
		speech := frameEnergy(buf.Samples[lo:hi]) > g.Threshold

		switch {
		case speech && !inSpeech:
			inSpeech = true
			start = lo
			silentRun = 0
		case speech:
			silentRun = 0
		case inSpeech:
			silentRun++
			if silentRun >= hangoverFrames {
				end := lo - (silentRun-1)*energyFrame
				segments = append(segments, newSegment(start, end, sr))
				inSpeech = false
			}
		}
	}
	if inSpeech {
		segments = append(segments, newSegment(start, buf.Len(), sr))
	}
	if segments == nil {
		segments = []SpeechSegment{}
	}
	return Detection{Segments: segments, SpeechDetected: len(segments) > 0}
}

// IsSpeechChunk reports whether the chunk's RMS clears the threshold, with
// a confidence proportional to how far above it sits.
func (g *EnergyGate) IsSpeechChunk(chunk []float32) (bool, float64) {
	if len(chunk) < MinChunkSamples {
		padded := make([]float32, MinChunkSamples)
		copy(padded, chunk)
		chunk = padded
	}
	rms := frameEnergy(chunk[:MinChunkSamples])
	if g.Threshold <= 0 {
		return rms > 0, 1.0
	}
	conf := rms / (g.Threshold * 2)
	if conf > 1 {
		conf = 1
	}
	return rms > g.Threshold, math.Round(conf*1000) / 1000
}

func newSegment(startSample, endSample, sr int) SpeechSegment {
	return SpeechSegment{
		Start: float64(startSample) / float64(sr),
		End:   float64(endSample) / float64(sr),
	}
}

func frameEnergy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// PassthroughGate is the detector-unavailable fallback: the whole clip is
// reported as one speech segment and every chunk counts as speech.
type PassthroughGate struct{}

func (PassthroughGate) Detect(buf audio.Buffer) Detection {
	duration := buf.Duration().Seconds()
	return Detection{
		Segments:       []SpeechSegment{{Start: 0, End: duration}},
		SpeechDetected: true,
	}
}

func (PassthroughGate) IsSpeechChunk(chunk []float32) (bool, float64) {
	return true, 1.0
}
