// Package protocol defines the live voice websocket frames and the
// client-frame decoder. All frames are JSON text messages discriminated by
// a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EncodingPCM  = "pcm"
	EncodingWebM = "webm"

	// MaxChunkBytes bounds one decoded audio_chunk payload.
	MaxChunkBytes = 1 << 20
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// HistoryTurn is one prior exchange supplied by the client for
// conversational context.
type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ClientConfig updates session settings mid-stream. Zero-valued fields
// leave the current setting unchanged; a non-nil History replaces the
// session history.
type ClientConfig struct {
	Type     string        `json:"type"`
	Language string        `json:"language,omitempty"`
	Speaker  string        `json:"speaker,omitempty"`
	Voice    string        `json:"voice,omitempty"`
	History  []HistoryTurn `json:"history,omitempty"`
}

// ClientAudioChunk carries one base64 audio payload. Encoding defaults to
// pcm (float32 little-endian mono).
type ClientAudioChunk struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// ClientEndStream marks the end of one utterance and triggers the
// pipeline over the buffered audio.
type ClientEndStream struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
}

// DecodeClientMessage parses one inbound text frame. Errors are always
// *DecodeError so callers can surface code and offending field.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "config":
		var msg ClientConfig
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid config frame", "")
		}
		for i, turn := range msg.History {
			role := strings.TrimSpace(turn.Role)
			if role != "user" && role != "assistant" {
				return nil, badRequest("history roles must be user or assistant", fmt.Sprintf("history[%d].role", i))
			}
			msg.History[i].Role = role
		}
		return msg, nil
	case "audio_chunk":
		var msg ClientAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_chunk frame", "")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badRequest("audio_chunk.data is required", "data")
		}
		switch strings.TrimSpace(msg.Encoding) {
		case "", EncodingPCM:
			msg.Encoding = EncodingPCM
		case EncodingWebM:
			msg.Encoding = EncodingWebM
		default:
			return nil, unsupported("unsupported audio encoding", "encoding")
		}
		if msg.SampleRate < 0 {
			return nil, badRequest("audio_chunk.sample_rate must be >= 0", "sample_rate")
		}
		return msg, nil
	case "end_stream":
		var msg ClientEndStream
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid end_stream frame", "")
		}
		if msg.SampleRate <= 0 {
			return nil, badRequest("end_stream.sample_rate must be > 0", "sample_rate")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// AckConfig echoes the session settings in force after a config frame.
type AckConfig struct {
	Language   string `json:"language"`
	Speaker    string `json:"speaker,omitempty"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	History    int    `json:"history_turns"`
}

type ServerAck struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Config    AckConfig `json:"config"`
}

type ServerVADEvent struct {
	Type           string  `json:"type"`
	SpeechDetected bool    `json:"speech_detected"`
	Confidence     float64 `json:"confidence"`
}

type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

type ServerFinalTranscript struct {
	Type     string              `json:"type"`
	Text     string              `json:"text"`
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

type ServerEmotion struct {
	Type            string             `json:"type"`
	EmotionLabel    string             `json:"emotion_label"`
	Intensity       float64            `json:"intensity"`
	Probabilities   map[string]float64 `json:"probabilities"`
	FeaturesSummary map[string]float64 `json:"features_summary"`
}

type ServerAIResponse struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerAudioChunk carries the synthesized reply as one base64 WAV blob.
// IsLast is always true today; the field exists so a chunked synthesizer
// can stream without a protocol change.
type ServerAudioChunk struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	SampleRate int    `json:"sample_rate"`
	IsLast     bool   `json:"is_last"`
}

type ServerMetrics struct {
	Type      string  `json:"type"`
	VADMS     float64 `json:"vad_ms"`
	STTMS     float64 `json:"stt_ms"`
	EmotionMS float64 `json:"emotion_ms"`
	TTSMS     float64 `json:"tts_ms"`
	TotalMS   float64 `json:"total_ms"`
	RTF       float64 `json:"rtf"`
}

type ServerErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
