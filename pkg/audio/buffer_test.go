package audio

import (
	"math"
	"testing"
	"time"
)

func TestBufferDuration(t *testing.T) {
	b := New(make([]float32, 8000), 16000)
	if got, want := b.Duration(), 500*time.Millisecond; got != want {
		t.Fatalf("Duration=%v, want %v", got, want)
	}
	if got := New(nil, 16000).Duration(); got != 0 {
		t.Fatalf("empty Duration=%v, want 0", got)
	}
}

func TestBufferRMSAndPeak(t *testing.T) {
	b := New([]float32{0.5, -0.5, 0.5, -0.5}, 16000)
	if got := b.RMS(); math.Abs(got-0.5) > 1e-6 {
		t.Fatalf("RMS=%v, want 0.5", got)
	}
	if got := b.Peak(); got != 0.5 {
		t.Fatalf("Peak=%v, want 0.5", got)
	}
	if got := New(nil, 16000).RMS(); got != 0 {
		t.Fatalf("empty RMS=%v, want 0", got)
	}
}

func TestConcatKeepsOrderAndRate(t *testing.T) {
	a := New([]float32{1, 2}, 16000)
	b := New([]float32{3}, 16000)
	out := Concat([]Buffer{a, b})
	if out.Len() != 3 || out.Samples[2] != 3 {
		t.Fatalf("Concat=%v", out.Samples)
	}
	if out.SampleRate != 16000 {
		t.Fatalf("SampleRate=%d, want 16000", out.SampleRate)
	}
}

func TestClip(t *testing.T) {
	b := New([]float32{1.5, -2, 0.25}, 16000).Clip()
	want := []float32{1, -1, 0.25}
	for i, s := range b.Samples {
		if s != want[i] {
			t.Fatalf("Samples[%d]=%v, want %v", i, s, want[i])
		}
	}
}

func TestFloat32LERoundTrip(t *testing.T) {
	in := New([]float32{0, 0.5, -0.5, 1}, 16000)
	out := FromFloat32LE(in.ToFloat32LE(), 16000)
	if out.Len() != in.Len() {
		t.Fatalf("Len=%d, want %d", out.Len(), in.Len())
	}
	for i := range in.Samples {
		if out.Samples[i] != in.Samples[i] {
			t.Fatalf("Samples[%d]=%v, want %v", i, out.Samples[i], in.Samples[i])
		}
	}
	// Trailing partial samples are dropped, not an error.
	if got := FromFloat32LE(make([]byte, 7), 16000); got.Len() != 1 {
		t.Fatalf("partial Len=%d, want 1", got.Len())
	}
}

func TestPCM16ClipsOutOfRange(t *testing.T) {
	b := New([]float32{2, -2}, 16000)
	out := FromPCM16(b.ToPCM16(), 16000)
	if math.Abs(float64(out.Samples[0])-1) > 0.001 {
		t.Fatalf("Samples[0]=%v, want ~1", out.Samples[0])
	}
	if math.Abs(float64(out.Samples[1])+1) > 0.001 {
		t.Fatalf("Samples[1]=%v, want ~-1", out.Samples[1])
	}
}

func TestWAVRoundTrip(t *testing.T) {
	in := New([]float32{0, 0.25, -0.25, 0.5}, 22050)
	out, err := DecodeWAV(EncodeWAV(in))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != 22050 {
		t.Fatalf("SampleRate=%d, want 22050", out.SampleRate)
	}
	if out.Len() != in.Len() {
		t.Fatalf("Len=%d, want %d", out.Len(), in.Len())
	}
	for i := range in.Samples {
		if math.Abs(float64(out.Samples[i]-in.Samples[i])) > 0.001 {
			t.Fatalf("Samples[%d]=%v, want ~%v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not a wav file at all...........")); err == nil {
		t.Fatalf("expected error for non-RIFF input")
	}
	if _, err := DecodeWAV(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	// Hand-build a 2-channel 16-bit container: L=0.5, R=-0.5 should
	// average to ~0.
	mono := New([]float32{0.5}, 16000)
	blob := EncodeWAV(mono)
	// Patch channels=2 and append a second interleaved sample.
	blob[22] = 2
	pcm := New([]float32{0.5, -0.5}, 16000).ToPCM16()
	blob = append(blob[:44], pcm...)
	// Fix data chunk size.
	blob[40] = byte(len(pcm))

	out, err := DecodeWAV(blob)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("Len=%d, want 1 mono frame", out.Len())
	}
	if math.Abs(float64(out.Samples[0])) > 0.001 {
		t.Fatalf("Samples[0]=%v, want ~0", out.Samples[0])
	}
}

func TestResampleRate(t *testing.T) {
	in := New(make([]float32, 16000), 16000)
	out := ResampleRate(in, 8000)
	if out.SampleRate != 8000 {
		t.Fatalf("SampleRate=%d, want 8000", out.SampleRate)
	}
	if out.Len() != 8000 {
		t.Fatalf("Len=%d, want 8000", out.Len())
	}

	same := ResampleRate(in, 16000)
	if same.Len() != in.Len() {
		t.Fatalf("identity resample Len=%d, want %d", same.Len(), in.Len())
	}
}

func TestResampleToLengthInterpolates(t *testing.T) {
	out := ResampleToLength([]float32{0, 1}, 3)
	if len(out) != 3 {
		t.Fatalf("len=%d, want 3", len(out))
	}
	if math.Abs(float64(out[1])-0.5) > 1e-6 {
		t.Fatalf("midpoint=%v, want 0.5", out[1])
	}
	if out[0] != 0 || out[2] != 1 {
		t.Fatalf("endpoints=%v", out)
	}
}

func TestResampleToLengthSingleSample(t *testing.T) {
	out := ResampleToLength([]float32{0.25, 0.5, 0.75}, 1)
	if len(out) != 1 || out[0] != 0.25 {
		t.Fatalf("out=%v, want [0.25]", out)
	}
}
