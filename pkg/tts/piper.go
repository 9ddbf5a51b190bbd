package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sori-ai/sori/pkg/audio"
)

// PiperSynthesizer runs the piper TTS binary per call, feeding text on
// stdin and reading a WAV stream from stdout.
type PiperSynthesizer struct {
	// Binary is the piper executable. Defaults to "piper".
	Binary string
	// ModelPath is the .onnx voice model passed via --model.
	ModelPath string
	// SampleRate to resample output to. Zero keeps the model's native rate.
	SampleRate int
}

func (p *PiperSynthesizer) Synthesize(ctx context.Context, text string, opts Options) (audio.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Buffer{}, fmt.Errorf("tts: empty text")
	}
	bin := p.Binary
	if bin == "" {
		bin = "piper"
	}
	model := p.ModelPath
	if opts.Voice != "" {
		model = opts.Voice
	}
	if model == "" {
		return audio.Buffer{}, fmt.Errorf("tts: no voice model configured")
	}

	args := []string{"--model", model, "--output_file", "-"}
	if opts.Speaker != "" {
		args = append(args, "--speaker", opts.Speaker)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 400 {
			msg = msg[:400]
		}
		return audio.Buffer{}, fmt.Errorf("tts: piper failed: %v: %s", err, msg)
	}

	buf, err := audio.DecodeWAV(stdout.Bytes())
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("tts: decode piper output: %w", err)
	}
	if p.SampleRate > 0 && buf.SampleRate != p.SampleRate {
		buf = audio.ResampleRate(buf, p.SampleRate)
	}
	return buf, nil
}
