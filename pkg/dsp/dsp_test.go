package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/sori-ai/sori/pkg/audio"
)

func tone(freq float64, dur float64, rate int) []float32 {
	n := int(dur * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestFramesShortSignalIsSingleFrame(t *testing.T) {
	fs := frames(make([]float32, 100), FrameLength, HopLength)
	if len(fs) != 1 || len(fs[0]) != 100 {
		t.Fatalf("frames=%d len0=%d, want one whole-signal frame", len(fs), len(fs[0]))
	}
	if frames(nil, FrameLength, HopLength) != nil {
		t.Fatalf("empty signal should yield nil frames")
	}
}

func TestFramesHop(t *testing.T) {
	signal := make([]float32, FrameLength+3*HopLength)
	fs := frames(signal, FrameLength, HopLength)
	if len(fs) != 3 {
		t.Fatalf("frames=%d, want 3", len(fs))
	}
	for _, f := range fs {
		if len(f) != FrameLength {
			t.Fatalf("frame len=%d, want %d", len(f), FrameLength)
		}
	}
}

func TestFrameRMSAndZCR(t *testing.T) {
	signal := tone(440, 0.5, 16000)
	rms := frameRMS(signal, FrameLength, HopLength)
	if len(rms) == 0 {
		t.Fatalf("no rms frames")
	}
	// A 0.5-amplitude sine has RMS 0.5/sqrt(2).
	want := 0.5 / math.Sqrt2
	if math.Abs(rms[0]-want) > 0.01 {
		t.Fatalf("rms=%v, want ~%v", rms[0], want)
	}

	zcr := frameZCR(signal, FrameLength, HopLength)
	// A 440 Hz tone crosses zero 880 times per second; per sample that is
	// 880/16000 = 0.055.
	if math.Abs(zcr[0]-0.055) > 0.01 {
		t.Fatalf("zcr=%v, want ~0.055", zcr[0])
	}
}

func TestFrameZCRZeroSampleIsOneCrossing(t *testing.T) {
	zcr := frameZCR([]float32{-1, 0, 1}, 3, 3)
	if len(zcr) != 1 {
		t.Fatalf("frames=%d, want 1", len(zcr))
	}
	if want := 1.0 / 2.0; zcr[0] != want {
		t.Fatalf("zcr=%v, want %v", zcr[0], want)
	}
}

func TestFFTMatchesDFTBin(t *testing.T) {
	const n = 64
	x := make([]complex128, n)
	// One full cycle across the window lands all energy in bin 1.
	for i := range x {
		x[i] = complex(math.Sin(2*math.Pi*float64(i)/n), 0)
	}
	if err := fft(x); err != nil {
		t.Fatalf("fft: %v", err)
	}
	if got := cmplx.Abs(x[1]); math.Abs(got-n/2) > 1e-6 {
		t.Fatalf("|X[1]|=%v, want %v", got, float64(n)/2)
	}
	if got := cmplx.Abs(x[2]); got > 1e-6 {
		t.Fatalf("|X[2]|=%v, want ~0", got)
	}
}

func TestFFTRejectsNonPowerOfTwo(t *testing.T) {
	if err := fft(make([]complex128, 100)); err == nil {
		t.Fatalf("expected error for length 100")
	}
}

func TestPitchTrackFindsToneFrequency(t *testing.T) {
	const freq = 220.0
	signal := tone(freq, 1.0, 16000)
	f0s := pitchTrack(signal, 16000, FrameLength, HopLength)
	if len(f0s) == 0 {
		t.Fatalf("no voiced frames for a pure tone")
	}
	mean, _ := meanStd(f0s)
	// Lag quantization limits precision at 16 kHz.
	if math.Abs(mean-freq) > 10 {
		t.Fatalf("f0 mean=%v, want ~%v", mean, freq)
	}
}

func TestPitchTrackSkipsSilence(t *testing.T) {
	if f0s := pitchTrack(make([]float32, 16000), 16000, FrameLength, HopLength); len(f0s) != 0 {
		t.Fatalf("silence produced %d voiced frames", len(f0s))
	}
}

func TestExtractToneFeatures(t *testing.T) {
	e := &Extractor{}
	fs := e.Extract(audio.New(tone(220, 1.0, 16000), 16000))

	if fs.PitchFallback {
		t.Fatalf("unexpected pitch fallback for a voiced tone")
	}
	if math.Abs(fs.F0Mean-220) > 10 {
		t.Fatalf("F0Mean=%v, want ~220", fs.F0Mean)
	}
	if fs.RMSMean < 0.2 || fs.RMSMean > 0.5 {
		t.Fatalf("RMSMean=%v out of expected range", fs.RMSMean)
	}
	if fs.ZCRMean <= 0 {
		t.Fatalf("ZCRMean=%v, want > 0", fs.ZCRMean)
	}
}

func TestExtractSilenceFallsBack(t *testing.T) {
	fallbacks := 0
	e := &Extractor{OnPitchFallback: func() { fallbacks++ }}
	fs := e.Extract(audio.New(make([]float32, 16000), 16000))

	if !fs.PitchFallback {
		t.Fatalf("expected pitch fallback for silence")
	}
	if fs.F0Mean != defaultPitchMean || fs.F0Std != defaultPitchStd {
		t.Fatalf("F0=(%v,%v), want defaults (%v,%v)", fs.F0Mean, fs.F0Std, defaultPitchMean, defaultPitchStd)
	}
	if fallbacks != 1 {
		t.Fatalf("fallback counter=%d, want 1", fallbacks)
	}
}

func TestExtractEmptyBuffer(t *testing.T) {
	e := &Extractor{}
	fs := e.Extract(audio.Buffer{})
	if !fs.PitchFallback {
		t.Fatalf("expected fallback for empty input")
	}
	if fs.RMSMean != 0 || fs.SpeakingRate != 0 {
		t.Fatalf("empty input produced nonzero energy features: %+v", fs)
	}
}

func TestMFCCFramesShape(t *testing.T) {
	coefs, err := mfccFrames(tone(220, 1.0, 16000), 16000, FrameLength, HopLength)
	if err != nil {
		t.Fatalf("mfccFrames: %v", err)
	}
	if len(coefs) == 0 {
		t.Fatalf("no mfcc frames")
	}
	for i, c := range coefs[0] {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			t.Fatalf("coef[%d]=%v", i, c)
		}
	}
}

func TestMelFilterbankCoversSpectrum(t *testing.T) {
	fb := melFilterbank(numMelBands, FrameLength, 16000)
	if len(fb) != numMelBands {
		t.Fatalf("bands=%d, want %d", len(fb), numMelBands)
	}
	nonZero := 0
	for _, row := range fb {
		for _, w := range row {
			if w > 0 {
				nonZero++
				break
			}
		}
	}
	if nonZero < numMelBands/2 {
		t.Fatalf("only %d of %d filters have weight", nonZero, numMelBands)
	}
}

func TestSpeakingRate(t *testing.T) {
	// Alternate loud and silent half-second bursts for 4 seconds: the RMS
	// envelope has distinct peaks, so the rate is positive.
	rate := 16000
	signal := make([]float32, 4*rate)
	for i := range signal {
		if (i/(rate/2))%2 == 0 {
			signal[i] = float32(0.5 * math.Sin(2*math.Pi*200*float64(i)/float64(rate)))
		}
	}
	rms := frameRMS(signal, FrameLength, HopLength)
	if got := speakingRate(rms, len(signal), rate); got <= 0 {
		t.Fatalf("speakingRate=%v, want > 0", got)
	}
	if got := speakingRate(nil, 0, rate); got != 0 {
		t.Fatalf("speakingRate on empty=%v, want 0", got)
	}
}
