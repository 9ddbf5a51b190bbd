// Package tts turns reply text into audio. The piper synthesizer shells
// out to a local piper binary; the tone synthesizer is a deterministic
// fallback so the pipeline stays end-to-end functional without a voice
// model installed.
package tts

import (
	"context"

	"github.com/sori-ai/sori/pkg/audio"
)

// Options select the voice for one synthesis call.
type Options struct {
	// Voice is the model or voice identifier, synthesizer-specific.
	Voice string
	// Speaker selects a speaker within a multi-speaker voice.
	Speaker string
	// Language hint, BCP-47 style ("ko", "en").
	Language string
}

// Synthesizer renders text to mono audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) (audio.Buffer, error)
}
