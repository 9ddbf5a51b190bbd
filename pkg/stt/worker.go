package stt

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sori-ai/sori/pkg/audio"
)

const (
	defaultStartTimeout = 60 * time.Second
	defaultCallTimeout  = 30 * time.Second
	maxStderrCapture    = 2000
)

// WorkerConfig describes how to spawn the recognizer process.
type WorkerConfig struct {
	// Command and Args launch the worker, e.g. python3 stt_worker.py
	// <model> <device> <compute>.
	Command string
	Args    []string

	// StartTimeout bounds the wait for the ready sentinel; CallTimeout
	// bounds a single transcription exchange. Zero selects the defaults
	// (60 s / 30 s).
	StartTimeout time.Duration
	CallTimeout  time.Duration

	// Language is the default recognition language; empty means
	// auto-detect.
	Language string

	Logger *slog.Logger
}

// handle owns one live subprocess and its pipes. It is replaced wholesale
// on any failure.
type handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *captureBuffer
}

// Worker is the manager for the shared recognizer subprocess. One instance
// serves all sessions; exchanges are mutually exclusive.
type Worker struct {
	cfg WorkerConfig

	startMu sync.Mutex // serializes (re)start attempts
	ioMu    sync.Mutex // serializes request/response exchanges

	mu sync.Mutex // guards h
	h  *handle
}

// NewWorker returns a manager that will spawn the process lazily on the
// first Transcribe call.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{cfg: cfg}
}

type workerRequest struct {
	AudioB64 string `json:"audio_b64"`
	Language string `json:"language"`
	SR       int    `json:"sr"`
}

type workerResponse struct {
	Transcript string    `json:"transcript"`
	Segments   []Segment `json:"segments"`
	Language   string    `json:"language"`
	Error      string    `json:"error"`
}

// Transcribe sends one utterance to the worker and waits for its reply.
// The worker is started on first use. Any pipe failure tears the handle
// down and returns ErrWorkerUnavailable so the next call respawns.
func (w *Worker) Transcribe(ctx context.Context, buf audio.Buffer, language string) (Result, error) {
	if err := w.ensureStarted(ctx); err != nil {
		return Result{}, err
	}

	if language == "" {
		language = w.cfg.Language
	}
	req := workerRequest{
		AudioB64: base64.StdEncoding.EncodeToString(buf.ToFloat32LE()),
		Language: language,
		SR:       buf.SampleRate,
	}
	line, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode stt request: %w", err)
	}

	w.ioMu.Lock()
	defer w.ioMu.Unlock()

	w.mu.Lock()
	h := w.h
	w.mu.Unlock()
	if h == nil {
		// Torn down between ensureStarted and the exchange.
		return Result{}, ErrWorkerUnavailable
	}

	raw, err := w.exchange(ctx, h, line)
	if err != nil {
		w.invalidate(h)
		w.cfg.Logger.Warn("stt worker exchange failed", "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	var resp workerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		w.invalidate(h)
		return Result{}, fmt.Errorf("%w: malformed response: %v", ErrWorkerUnavailable, err)
	}
	if resp.Error != "" {
		// The worker survived; only this request failed.
		return Result{}, fmt.Errorf("stt worker error: %s", resp.Error)
	}
	segments := resp.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return Result{
		Transcript: strings.TrimSpace(resp.Transcript),
		Segments:   segments,
		Language:   resp.Language,
	}, nil
}

// exchange writes one request line and reads one response line under a
// deadline enforced by a watchdog that kills the process on expiry.
func (w *Worker) exchange(ctx context.Context, h *handle, line []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-callCtx.Done():
			if callCtx.Err() != nil && h.cmd.Process != nil {
				_ = h.cmd.Process.Kill()
			}
		case <-done:
		}
	}()
	defer close(done)

	if _, err := h.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	raw, err := h.stdout.ReadBytes('\n')
	if err != nil {
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("call deadline exceeded: %w", callCtx.Err())
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}

// ensureStarted spawns the worker if no live handle exists. Idempotent: a
// caller finding the process already alive returns immediately.
func (w *Worker) ensureStarted(ctx context.Context) error {
	w.startMu.Lock()
	defer w.startMu.Unlock()

	w.mu.Lock()
	alive := w.h != nil
	w.mu.Unlock()
	if alive {
		return nil
	}

	if w.cfg.Command == "" {
		return fmt.Errorf("%w: no worker command configured", ErrWorkerUnavailable)
	}

	w.cfg.Logger.Info("starting stt worker", "command", w.cfg.Command, "args", w.cfg.Args)

	cmd := exec.Command(w.cfg.Command, w.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrWorkerUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrWorkerUnavailable, err)
	}
	stderr := &captureBuffer{limit: maxStderrCapture}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn: %v", ErrWorkerUnavailable, err)
	}

	h := &handle{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64<<10),
		stderr: stderr,
	}

	if err := w.awaitReady(ctx, h); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("%w: %v (stderr: %s)", ErrWorkerUnavailable, err, stderr.String())
	}

	// Reap the process when it exits so a crash doesn't leave a zombie.
	go func() { _ = cmd.Wait() }()

	w.mu.Lock()
	w.h = h
	w.mu.Unlock()
	w.cfg.Logger.Info("stt worker ready")
	return nil
}

// awaitReady scans worker stdout for the {"type":"ready"} sentinel within
// the startup deadline. Non-JSON lines are skipped. The scan is
// synchronous so no reader goroutine is left competing for the pipe; a
// watchdog kills the process on expiry to unblock the read.
func (w *Worker) awaitReady(ctx context.Context, h *handle) error {
	type readyMsg struct {
		Type string `json:"type"`
	}

	startCtx, cancel := context.WithTimeout(ctx, w.cfg.StartTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		select {
		case <-startCtx.Done():
			if startCtx.Err() != nil && h.cmd.Process != nil {
				_ = h.cmd.Process.Kill()
			}
		case <-done:
		}
	}()
	defer close(done)

	for {
		raw, err := h.stdout.ReadBytes('\n')
		if err != nil {
			if startCtx.Err() != nil {
				return fmt.Errorf("worker not ready within %s", w.cfg.StartTimeout)
			}
			return fmt.Errorf("worker exited before ready: %v", err)
		}
		var msg readyMsg
		if json.Unmarshal(raw, &msg) == nil && msg.Type == "ready" {
			return nil
		}
	}
}

// invalidate tears down h if it is still the current handle, so the next
// call triggers a fresh start.
func (w *Worker) invalidate(h *handle) {
	w.mu.Lock()
	if w.h == h {
		w.h = nil
	}
	w.mu.Unlock()

	_ = h.stdin.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// Close stops the worker process if running.
func (w *Worker) Close() error {
	w.mu.Lock()
	h := w.h
	w.h = nil
	w.mu.Unlock()
	if h == nil {
		return nil
	}
	_ = h.stdin.Close()
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	return nil
}

// captureBuffer keeps the first limit bytes written, for startup
// diagnostics.
type captureBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining := c.limit - len(c.buf); remaining > 0 {
		if len(p) > remaining {
			c.buf = append(c.buf, p[:remaining]...)
		} else {
			c.buf = append(c.buf, p...)
		}
	}
	return len(p), nil
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}
