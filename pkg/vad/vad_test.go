package vad

import (
	"math"
	"testing"

	"github.com/sori-ai/sori/pkg/audio"
)

func toneBuffer(freq float64, amp float64, seconds float64, sr int) []float32 {
	n := int(seconds * float64(sr))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

func TestEnergyGateDetectsToneBetweenSilence(t *testing.T) {
	sr := audio.DefaultSampleRate
	var samples []float32
	samples = append(samples, make([]float32, sr/2)...)
	samples = append(samples, toneBuffer(220, 0.3, 1.0, sr)...)
	samples = append(samples, make([]float32, sr)...)

	g := NewEnergyGate()
	det := g.Detect(audio.New(samples, sr))
	if !det.SpeechDetected {
		t.Fatalf("SpeechDetected=false, want true")
	}
	if len(det.Segments) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(det.Segments), det.Segments)
	}
	seg := det.Segments[0]
	if seg.Start < 0.3 || seg.Start > 0.7 {
		t.Errorf("segment start=%.3f, want near 0.5", seg.Start)
	}
	if seg.End < 1.3 || seg.End > 1.7 {
		t.Errorf("segment end=%.3f, want near 1.5", seg.End)
	}
}

func TestEnergyGateSilenceOnly(t *testing.T) {
	g := NewEnergyGate()
	det := g.Detect(audio.New(make([]float32, 8000), audio.DefaultSampleRate))
	if det.SpeechDetected {
		t.Fatalf("SpeechDetected=true for silence")
	}
	if len(det.Segments) != 0 {
		t.Fatalf("got %d segments, want 0", len(det.Segments))
	}
}

func TestEnergyGateHangoverMergesShortPause(t *testing.T) {
	sr := audio.DefaultSampleRate
	var samples []float32
	samples = append(samples, toneBuffer(220, 0.3, 0.5, sr)...)
	samples = append(samples, make([]float32, sr/10)...) // 100 ms pause
	samples = append(samples, toneBuffer(220, 0.3, 0.5, sr)...)

	g := NewEnergyGate()
	det := g.Detect(audio.New(samples, sr))
	if len(det.Segments) != 1 {
		t.Fatalf("got %d segments, want 1 after hangover merge: %+v", len(det.Segments), det.Segments)
	}
}

func TestIsSpeechChunk(t *testing.T) {
	g := NewEnergyGate()

	loud := toneBuffer(220, 0.3, 0.1, audio.DefaultSampleRate)
	if ok, conf := g.IsSpeechChunk(loud[:MinChunkSamples]); !ok || conf <= 0 {
		t.Errorf("loud chunk: ok=%v conf=%v, want speech", ok, conf)
	}

	if ok, _ := g.IsSpeechChunk(make([]float32, MinChunkSamples)); ok {
		t.Errorf("silent chunk classified as speech")
	}

	// Short chunks are padded, not rejected.
	if ok, _ := g.IsSpeechChunk(make([]float32, 10)); ok {
		t.Errorf("short silent chunk classified as speech")
	}
}

func TestPassthroughGate(t *testing.T) {
	g := PassthroughGate{}
	buf := audio.New(make([]float32, audio.DefaultSampleRate), audio.DefaultSampleRate)
	det := g.Detect(buf)
	if !det.SpeechDetected || len(det.Segments) != 1 {
		t.Fatalf("det=%+v, want single full segment", det)
	}
	if det.Segments[0].End != 1.0 {
		t.Errorf("segment end=%v, want 1.0", det.Segments[0].End)
	}
	if ok, conf := g.IsSpeechChunk(nil); !ok || conf != 1.0 {
		t.Errorf("chunk check=(%v,%v), want (true,1.0)", ok, conf)
	}
}
