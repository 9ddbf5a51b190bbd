// Package stt manages the out-of-process speech recognizer: one long-lived
// child process speaking a line-delimited JSON protocol over its standard
// streams, with lazy startup, serialized exchanges, and crash recovery.
package stt

import "errors"

// ErrWorkerUnavailable marks a transient worker failure: the handle has
// been torn down and the next call will respawn the process. Callers may
// retry.
var ErrWorkerUnavailable = errors.New("stt worker unavailable")

// Segment is one timed span of the transcript.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is a completed transcription.
type Result struct {
	Transcript string    `json:"transcript"`
	Segments   []Segment `json:"segments"`
	Language   string    `json:"language"`
}
