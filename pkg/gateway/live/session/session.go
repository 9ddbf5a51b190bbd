// Package session runs one live voice connection: it buffers streamed
// audio, and on end_stream drives the full pipeline (VAD, STT, emotion,
// reply, prosody-shaped TTS) while emitting the protocol's server frames
// in order.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sori-ai/sori/pkg/audio"
	"github.com/sori-ai/sori/pkg/emotion"
	"github.com/sori-ai/sori/pkg/gateway/live/protocol"
	"github.com/sori-ai/sori/pkg/metrics"
	"github.com/sori-ai/sori/pkg/prosody"
	"github.com/sori-ai/sori/pkg/reply"
	"github.com/sori-ai/sori/pkg/stt"
	"github.com/sori-ai/sori/pkg/tts"
	"github.com/sori-ai/sori/pkg/vad"
)

// Transcriber is the slice of the STT worker the session needs.
type Transcriber interface {
	Transcribe(ctx context.Context, buf audio.Buffer, language string) (stt.Result, error)
}

type Config struct {
	// Language is the default STT/reply language.
	Language string
	// Voice is the default TTS voice.
	Voice string

	MaxJSONMessageBytes int64
	// MaxBufferedSamples caps the buffered utterance audio.
	MaxBufferedSamples int
	// TargetSampleRate is the rate buffered audio is normalized to.
	TargetSampleRate int

	PingInterval       time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	MaxSessionDuration time.Duration
	// FinalizeTimeout bounds one end_stream pipeline run.
	FinalizeTimeout   time.Duration
	OutboundQueueSize int
}

type Deps struct {
	Conn       *websocket.Conn
	Logger     *slog.Logger
	VAD        vad.Gate
	STT        Transcriber
	Analyzer   *emotion.Analyzer
	Reply      reply.Generator
	TTS        tts.Synthesizer
	Transcoder audio.Transcoder
	Metrics    metrics.Store
	SessionID  string
	Config     Config
	Now        func() time.Time
}

type Session struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	vad       vad.Gate
	stt       Transcriber
	analyzer  *emotion.Analyzer
	reply     reply.Generator
	tts       tts.Synthesizer
	transcode audio.Transcoder
	metrics   metrics.Store
	sessionID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// finalizeResult carries a finished pipeline run back onto the event loop.
// The turns ride along so that only the event loop ever touches history.
type finalizeResult struct {
	userTurn      string
	assistantTurn string
	err           error
}

func New(deps Deps) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.VAD == nil {
		return nil, fmt.Errorf("vad gate is required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("stt transcriber is required")
	}
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("emotion analyzer is required")
	}
	if deps.Reply == nil {
		return nil, fmt.Errorf("reply generator is required")
	}
	if deps.TTS == nil {
		return nil, fmt.Errorf("tts synthesizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.Language == "" {
		deps.Config.Language = "ko"
	}
	if deps.Config.TargetSampleRate <= 0 {
		deps.Config.TargetSampleRate = audio.DefaultSampleRate
	}
	if deps.Config.MaxBufferedSamples <= 0 {
		// 60 seconds at the target rate.
		deps.Config.MaxBufferedSamples = 60 * deps.Config.TargetSampleRate
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.FinalizeTimeout <= 0 {
		deps.Config.FinalizeTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:      deps.Conn,
		logger:    deps.Logger.With("session_id", deps.SessionID),
		vad:       deps.VAD,
		stt:       deps.STT,
		analyzer:  deps.Analyzer,
		reply:     deps.Reply,
		tts:       deps.TTS,
		transcode: deps.Transcoder,
		metrics:   deps.Metrics,
		sessionID: deps.SessionID,
		cfg:       deps.Config,
		now:       deps.Now,
		ctx:       ctx,
		cancel:    cancel,
		outbound:  make(chan []byte, deps.Config.OutboundQueueSize),
	}, nil
}

// Run drives the session until the client disconnects or the session
// deadline passes. It owns the read loop, the outbound writer, and at most
// one in-flight pipeline run.
func (s *Session) Run() error {
	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{ws: s.conn, ctx: s.ctx, cfg: s.cfg, outbound: s.outbound}
		writerErrCh <- w.Run()
	}()

	var sessionDeadline <-chan time.Time
	if s.cfg.MaxSessionDuration > 0 {
		timer := time.NewTimer(s.cfg.MaxSessionDuration)
		defer timer.Stop()
		sessionDeadline = timer.C
	}

	var (
		buffered   []float32
		language   = s.cfg.Language
		voice      = s.cfg.Voice
		speaker    string
		history    = newHistoryManager()
		finalizing bool
		finalizeCh = make(chan finalizeResult, 1)
		wg         sync.WaitGroup
	)
	// Cancel before waiting so an in-flight pipeline run blocked on the
	// outbound queue can bail out.
	defer func() {
		s.cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-sessionDeadline:
			s.sendError("session_timeout", "session duration limit reached")
			return nil
		case err := <-writerErrCh:
			return err
		case res := <-finalizeCh:
			finalizing = false
			if res.err != nil {
				s.logger.Error("pipeline failed", "err", res.err)
				s.sendError("pipeline_error", res.err.Error())
				continue
			}
			history.appendUser(res.userTurn)
			history.appendAssistant(res.assistantTurn)
		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return nil
				}
				return frame.err
			}
			if frame.messageType != websocket.TextMessage {
				s.sendError("bad_request", "binary frames are not supported")
				continue
			}

			msg, err := protocol.DecodeClientMessage(frame.data)
			if err != nil {
				var de *protocol.DecodeError
				if errors.As(err, &de) {
					s.sendError(de.Code, de.Error())
				} else {
					s.sendError("bad_request", err.Error())
				}
				continue
			}

			switch m := msg.(type) {
			case protocol.ClientConfig:
				if m.Language != "" {
					language = m.Language
				}
				if m.Speaker != "" {
					speaker = m.Speaker
				}
				if m.Voice != "" {
					voice = m.Voice
				}
				if m.History != nil {
					turns := make([]reply.Turn, 0, len(m.History))
					for _, t := range m.History {
						turns = append(turns, reply.Turn{Role: t.Role, Text: t.Text})
					}
					history.replace(turns)
					s.logger.Info("restored history", "turns", history.len())
				}
				s.send(protocol.ServerAck{
					Type:      "ack",
					SessionID: s.sessionID,
					Config: protocol.AckConfig{
						Language:   language,
						Speaker:    speaker,
						Voice:      voice,
						SampleRate: s.cfg.TargetSampleRate,
						History:    history.len(),
					},
				})

			case protocol.ClientAudioChunk:
				chunk, err := s.decodeChunk(m)
				if err != nil {
					s.sendError("bad_audio", err.Error())
					continue
				}
				if len(buffered)+len(chunk) > s.cfg.MaxBufferedSamples {
					s.sendError("buffer_full", "utterance exceeds the buffered audio limit")
					continue
				}
				buffered = append(buffered, chunk...)

				if len(chunk) >= vad.MinChunkSamples {
					isSpeech, conf := s.vad.IsSpeechChunk(chunk[:vad.MinChunkSamples])
					s.send(protocol.ServerVADEvent{
						Type:           "vad_event",
						SpeechDetected: isSpeech,
						Confidence:     conf,
					})
				}

			case protocol.ClientEndStream:
				if len(buffered) == 0 {
					s.sendError("empty_utterance", "No audio received.")
					continue
				}
				if finalizing {
					s.sendError("busy", "previous utterance is still processing")
					continue
				}
				utterance := audio.New(buffered, m.SampleRate)
				buffered = nil
				finalizing = true

				lang, vc, spk := language, voice, speaker
				snapshot := history.snapshot()
				wg.Add(1)
				go func() {
					defer wg.Done()
					userTurn, assistantTurn, err := s.finalize(utterance, lang, vc, spk, snapshot)
					finalizeCh <- finalizeResult{userTurn: userTurn, assistantTurn: assistantTurn, err: err}
				}()
			}
		}
	}
}

func (s *Session) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		select {
		case out <- inboundFrame{messageType: messageType, data: data, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
	}
}

// decodeChunk turns one inbound audio payload into float32 samples at the
// session's target rate.
func (s *Session) decodeChunk(m protocol.ClientAudioChunk) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %v", err)
	}
	if len(raw) > protocol.MaxChunkBytes {
		return nil, fmt.Errorf("audio chunk exceeds %d bytes", protocol.MaxChunkBytes)
	}

	if m.Encoding == protocol.EncodingWebM {
		if s.transcode == nil {
			return nil, fmt.Errorf("webm audio is not supported on this server")
		}
		buf, err := s.transcode.Decode(s.ctx, raw, s.cfg.TargetSampleRate)
		if err != nil {
			return nil, err
		}
		return buf.Samples, nil
	}

	// PCM chunks are buffered as-is; the end_stream frame declares the
	// rate the whole utterance is interpreted at.
	rate := m.SampleRate
	if rate <= 0 {
		rate = s.cfg.TargetSampleRate
	}
	return audio.FromFloat32LE(raw, rate).Samples, nil
}

// finalize runs the pipeline over one buffered utterance, emitting server
// frames in order. It returns the history turns to record on success.
func (s *Session) finalize(utterance audio.Buffer, language, voice, speaker string, history []reply.Turn) (userTurn, assistantTurn string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FinalizeTimeout)
	defer cancel()

	tracker := metrics.NewTracker(s.sessionID, newUtteranceID(), s.metrics, s.logger)
	tracker.RecordAudioDuration(utterance.Duration())

	s.logger.Info("utterance received",
		"duration_s", fmt.Sprintf("%.2f", utterance.Duration().Seconds()),
		"samples", utterance.Len(),
		"rms", fmt.Sprintf("%.4f", utterance.RMS()))

	t0 := s.now()
	detection := s.vad.Detect(utterance)
	tracker.RecordVAD(s.now().Sub(t0))
	if !detection.SpeechDetected {
		s.logger.Info("no speech segments detected, continuing with full clip")
	}

	t0 = s.now()
	sttRes, err := s.stt.Transcribe(ctx, utterance, language)
	tracker.RecordSTT(s.now().Sub(t0))
	if err != nil {
		return "", "", fmt.Errorf("stt: %w", err)
	}
	s.logger.Info("transcript", "text", sttRes.Transcript, "language", sttRes.Language)

	segments := make([]protocol.TranscriptSegment, 0, len(sttRes.Segments))
	for _, seg := range sttRes.Segments {
		segments = append(segments, protocol.TranscriptSegment{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Confidence: seg.Confidence,
		})
	}
	s.send(protocol.ServerFinalTranscript{
		Type:     "final_transcript",
		Text:     sttRes.Transcript,
		Language: sttRes.Language,
		Segments: segments,
	})

	t0 = s.now()
	emo := s.analyzer.Analyze(utterance, sttRes.Transcript)
	tracker.RecordEmotion(s.now().Sub(t0))

	s.send(protocol.ServerEmotion{
		Type:            "emotion",
		EmotionLabel:    string(emo.Label),
		Intensity:       emo.Intensity,
		Probabilities:   probabilityMap(emo.Probabilities),
		FeaturesSummary: emo.FeaturesSummary(),
	})

	aiText, err := s.reply.Generate(ctx, reply.Request{
		Transcript: sttRes.Transcript,
		Emotion:    emo.Label,
		Intensity:  emo.Intensity,
		Language:   language,
		History:    history,
	})
	if err != nil {
		return "", "", fmt.Errorf("reply: %w", err)
	}
	s.logger.Info("ai response", "text", aiText)
	s.send(protocol.ServerAIResponse{Type: "ai_response", Text: aiText})

	t0 = s.now()
	voiceBuf, err := s.tts.Synthesize(ctx, aiText, tts.Options{
		Voice:    voice,
		Speaker:  speaker,
		Language: language,
	})
	if err != nil {
		tracker.RecordTTS(s.now().Sub(t0))
		return "", "", fmt.Errorf("tts: %w", err)
	}
	shaped := prosody.Apply(s.logger, voiceBuf, emo.Label, emo.Intensity)
	tracker.RecordTTS(s.now().Sub(t0))

	// The reply audio goes out as one self-contained WAV blob. Chunked WAV
	// cannot be concatenated on the client; only the first header parses.
	wav := audio.EncodeWAV(shaped)
	s.send(protocol.ServerAudioChunk{
		Type:       "audio_chunk",
		Data:       base64.StdEncoding.EncodeToString(wav),
		SampleRate: shaped.SampleRate,
		IsLast:     true,
	})

	rec := tracker.Finish()
	s.send(protocol.ServerMetrics{
		Type:      "metrics",
		VADMS:     round1(rec.VADDetectMS),
		STTMS:     round1(rec.STTMS),
		EmotionMS: round1(rec.EmotionMS),
		TTSMS:     round1(rec.TTSMS),
		TotalMS:   round1(rec.TotalMS),
		RTF:       round3(rec.RTF()),
	})
	s.logger.Info("utterance complete", "summary", rec.Summary())

	return annotateUserTurn(emo.Label, emo.Intensity, sttRes.Transcript), aiText, nil
}

// emotionKorean labels the user turn in history so the reply generator can
// see the detected emotion on past turns too.
var emotionKorean = map[emotion.Label]string{
	emotion.Happy:   "행복",
	emotion.Sad:     "슬픔",
	emotion.Angry:   "분노",
	emotion.Excited: "흥분",
	emotion.Calm:    "차분",
	emotion.Neutral: "중립",
}

func annotateUserTurn(label emotion.Label, intensity float64, transcript string) string {
	name, ok := emotionKorean[label]
	if !ok {
		name = string(label)
	}
	return fmt.Sprintf("[감정: %s %d%%] %s", name, int(intensity*100), transcript)
}

func probabilityMap(dist emotion.Distribution) map[string]float64 {
	out := make(map[string]float64, len(dist))
	for label, p := range dist {
		out[string(label)] = p
	}
	return out
}

func (s *Session) send(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshal outbound frame", "err", err)
		return
	}
	select {
	case s.outbound <- payload:
	case <-s.ctx.Done():
	}
}

func (s *Session) sendError(code, message string) {
	s.send(protocol.ServerErrorFrame{Type: "error", Code: code, Message: message})
}

func newUtteranceID() string {
	return uuid.NewString()[:8]
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
