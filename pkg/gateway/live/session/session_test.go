package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/emotion"
	"github.com/sori-ai/sori/pkg/reply"
	"github.com/sori-ai/sori/pkg/stt"
	"github.com/sori-ai/sori/pkg/tts"
	"github.com/sori-ai/sori/pkg/vad"
)

type stubTranscriber struct {
	result stt.Result
	err    error
}

func (s stubTranscriber) Transcribe(ctx context.Context, buf audio.Buffer, language string) (stt.Result, error) {
	return s.result, s.err
}

type stubReply struct {
	text string
	err  error
}

func (s stubReply) Generate(ctx context.Context, req reply.Request) (string, error) {
	return s.text, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &Session{
		logger:    quietLogger(),
		vad:       vad.PassthroughGate{},
		stt:       stubTranscriber{result: stt.Result{Transcript: "정말 행복해요", Language: "ko"}},
		analyzer:  emotion.NewAnalyzer(quietLogger(), nil),
		reply:     stubReply{text: "좋은 소식이네요!"},
		tts:       &tts.ToneSynthesizer{},
		sessionID: "test-sess",
		cfg: Config{
			Language:         "ko",
			TargetSampleRate: audio.DefaultSampleRate,
			FinalizeTimeout:  10 * time.Second,
		},
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan []byte, 64),
	}
}

func frameType(t *testing.T, raw []byte) string {
	t.Helper()
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal frame %q: %v", raw, err)
	}
	return envelope.Type
}

func TestFinalizeEventOrder(t *testing.T) {
	s := newTestSession(t)

	utterance := audio.New(make([]float32, audio.DefaultSampleRate/2), audio.DefaultSampleRate)
	userTurn, assistantTurn, err := s.finalize(utterance, "ko", "", "", nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	want := []string{"final_transcript", "emotion", "ai_response", "audio_chunk", "metrics"}
	for _, wantType := range want {
		select {
		case raw := <-s.outbound:
			if got := frameType(t, raw); got != wantType {
				t.Fatalf("frame type=%q, want %q", got, wantType)
			}
		default:
			t.Fatalf("missing %q frame", wantType)
		}
	}
	select {
	case raw := <-s.outbound:
		t.Fatalf("unexpected extra frame: %s", raw)
	default:
	}

	if !strings.Contains(userTurn, "정말 행복해요") || !strings.HasPrefix(userTurn, "[감정:") {
		t.Errorf("user turn=%q, want emotion-annotated transcript", userTurn)
	}
	if assistantTurn != "좋은 소식이네요!" {
		t.Errorf("assistant turn=%q", assistantTurn)
	}
}

func TestFinalizeAudioChunkIsSingleWAVBlob(t *testing.T) {
	s := newTestSession(t)

	utterance := audio.New(make([]float32, audio.DefaultSampleRate/4), audio.DefaultSampleRate)
	if _, _, err := s.finalize(utterance, "ko", "", "", nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var chunk struct {
		Type       string `json:"type"`
		Data       string `json:"data"`
		SampleRate int    `json:"sample_rate"`
		IsLast     bool   `json:"is_last"`
	}
	for i := 0; i < 5; i++ {
		raw := <-s.outbound
		if frameType(t, raw) != "audio_chunk" {
			continue
		}
		if err := json.Unmarshal(raw, &chunk); err != nil {
			t.Fatalf("unmarshal audio_chunk: %v", err)
		}
	}
	if !chunk.IsLast {
		t.Errorf("is_last=false, want true")
	}
	wav, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("decode audio data: %v", err)
	}
	decoded, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("audio payload is not a self-contained WAV: %v", err)
	}
	if decoded.SampleRate != chunk.SampleRate {
		t.Errorf("wav rate=%d, frame rate=%d", decoded.SampleRate, chunk.SampleRate)
	}
}

func TestFinalizeRecoversFromPanic(t *testing.T) {
	s := newTestSession(t)
	s.tts = panicSynthesizer{}

	utterance := audio.New(make([]float32, 1024), audio.DefaultSampleRate)
	_, _, err := s.finalize(utterance, "ko", "", "", nil)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err=%v, want pipeline panic error", err)
	}
}

type panicSynthesizer struct{}

func (panicSynthesizer) Synthesize(ctx context.Context, text string, opts tts.Options) (audio.Buffer, error) {
	panic("synth exploded")
}

func TestAnnotateUserTurn(t *testing.T) {
	got := annotateUserTurn(emotion.Happy, 0.73, "오늘 합격했어요")
	if got != "[감정: 행복 73%] 오늘 합격했어요" {
		t.Fatalf("got %q", got)
	}
}

// startTestServer upgrades inbound connections and runs a full session
// over a real websocket.
func startTestServer(t *testing.T) string {
	return startTestServerWith(t, stubTranscriber{result: stt.Result{Transcript: "안녕하세요", Language: "ko"}})
}

func startTestServerWith(t *testing.T, transcriber Transcriber) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s, err := New(Deps{
			Conn:      conn,
			Logger:    quietLogger(),
			VAD:       vad.PassthroughGate{},
			STT:       transcriber,
			Analyzer:  emotion.NewAnalyzer(quietLogger(), nil),
			Reply:     stubReply{text: "반가워요"},
			TTS:       &tts.ToneSynthesizer{},
			SessionID: "ws-test",
		})
		if err != nil {
			t.Errorf("New: %v", err)
			return
		}
		_ = s.Run()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame %q: %v", raw, err)
	}
	return frame
}

func TestSessionOverWebsocket(t *testing.T) {
	url := startTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Empty utterance: exactly one error frame, no transcript.
	if err := conn.WriteJSON(map[string]any{"type": "end_stream", "sample_rate": 16000}); err != nil {
		t.Fatalf("write end_stream: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame type=%v, want error", frame["type"])
	}

	// Config round-trip.
	if err := conn.WriteJSON(map[string]any{"type": "config", "language": "ko", "voice": "bora"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	frame = readFrame(t, conn)
	if frame["type"] != "ack" {
		t.Fatalf("frame type=%v, want ack", frame["type"])
	}

	// Stream one chunk, then end the utterance.
	chunk := audio.New(make([]float32, 1024), 16000)
	if err := conn.WriteJSON(map[string]any{
		"type": "audio_chunk",
		"data": base64.StdEncoding.EncodeToString(chunk.ToFloat32LE()),
	}); err != nil {
		t.Fatalf("write audio_chunk: %v", err)
	}
	frame = readFrame(t, conn)
	if frame["type"] != "vad_event" {
		t.Fatalf("frame type=%v, want vad_event", frame["type"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "end_stream", "sample_rate": 16000}); err != nil {
		t.Fatalf("write end_stream: %v", err)
	}
	want := []string{"final_transcript", "emotion", "ai_response", "audio_chunk", "metrics"}
	for _, wantType := range want {
		frame = readFrame(t, conn)
		if frame["type"] != wantType {
			t.Fatalf("frame type=%v, want %v", frame["type"], wantType)
		}
	}
}

type slowTranscriber struct {
	delay  time.Duration
	result stt.Result
}

func (s slowTranscriber) Transcribe(ctx context.Context, buf audio.Buffer, language string) (stt.Result, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	}
	return s.result, nil
}

// Config frames keep being served while a pipeline run is in flight, and
// the run's turns land on top of whatever history the client last set.
func TestConfigHistoryReplaceDuringFinalize(t *testing.T) {
	url := startTestServerWith(t, slowTranscriber{
		delay:  500 * time.Millisecond,
		result: stt.Result{Transcript: "안녕하세요", Language: "ko"},
	})
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	chunk := audio.New(make([]float32, 1024), 16000)
	if err := conn.WriteJSON(map[string]any{
		"type": "audio_chunk",
		"data": base64.StdEncoding.EncodeToString(chunk.ToFloat32LE()),
	}); err != nil {
		t.Fatalf("write audio_chunk: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "end_stream", "sample_rate": 16000}); err != nil {
		t.Fatalf("write end_stream: %v", err)
	}

	restored := []map[string]string{
		{"role": "user", "text": "어제 얘기"},
		{"role": "assistant", "text": "기억나요"},
		{"role": "user", "text": "그때 그거요"},
	}
	const configFrames = 10
	for i := 0; i < configFrames; i++ {
		if err := conn.WriteJSON(map[string]any{"type": "config", "history": restored}); err != nil {
			t.Fatalf("write config %d: %v", i, err)
		}
	}

	// Acks interleave with the pipeline frames; drain until both the
	// metrics frame and every ack have arrived.
	acks, sawMetrics := 0, false
	for acks < configFrames || !sawMetrics {
		frame := readFrame(t, conn)
		switch frame["type"] {
		case "ack":
			acks++
			if cfg, ok := frame["config"].(map[string]any); ok {
				if got := cfg["history_turns"].(float64); got != float64(len(restored)) {
					t.Fatalf("mid-run ack history=%v, want %d", got, len(restored))
				}
			}
		case "vad_event", "final_transcript", "emotion", "ai_response", "audio_chunk":
		case "metrics":
			sawMetrics = true
		default:
			t.Fatalf("unexpected frame type %v", frame["type"])
		}
	}

	// The finished run appends its two turns onto the replaced history.
	if err := conn.WriteJSON(map[string]any{"type": "config", "language": "ko"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "ack" {
		t.Fatalf("frame type=%v, want ack", frame["type"])
	}
	cfg := frame["config"].(map[string]any)
	if got := cfg["history_turns"].(float64); got != float64(len(restored)+2) {
		t.Fatalf("final ack history=%v, want %d", got, len(restored)+2)
	}
}
