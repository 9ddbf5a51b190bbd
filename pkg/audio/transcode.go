package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Transcoder decodes a compressed container (webm/opus, ogg, ...) into
// float32 PCM at the requested rate.
type Transcoder interface {
	Decode(ctx context.Context, data []byte, targetRate int) (Buffer, error)
}

// FFmpegTranscoder shells out to ffmpeg for container decode. The binary
// path is configurable so tests can substitute a stub.
type FFmpegTranscoder struct {
	Binary string
}

// Decode runs ffmpeg with pipe I/O: container bytes in, raw float32 LE
// mono PCM out.
func (t FFmpegTranscoder) Decode(ctx context.Context, data []byte, targetRate int) (Buffer, error) {
	bin := t.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	if targetRate <= 0 {
		targetRate = DefaultSampleRate
	}

	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-i", "pipe:0",
		"-f", "f32le",
		"-ar", strconv.Itoa(targetRate),
		"-ac", "1",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := stderr.String()
		if len(detail) > 400 {
			detail = detail[:400]
		}
		return Buffer{}, fmt.Errorf("ffmpeg decode failed: %w: %s", err, detail)
	}
	return FromFloat32LE(stdout.Bytes(), targetRate), nil
}
