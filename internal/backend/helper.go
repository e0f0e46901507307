package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
)

// helperStopGrace is how long a helper gets to exit after an interrupt.
const helperStopGrace = 2 * time.Second

// permissionHints mark helper diagnostics caused by a missing privacy grant.
var permissionHints = []string{"permission", "access", "denied", "not authorized", "tcc"}

// classify maps a helper diagnostic to the error kind it describes.
func classify(msg string) error {
	lower := strings.ToLower(msg)
	for _, hint := range permissionHints {
		if strings.Contains(lower, hint) {
			return audio.ErrPermissionDenied
		}
	}
	return audio.ErrDeviceUnavailable
}

// commandFunc builds the helper invocation for one session.
type commandFunc func(ctx context.Context, cfg audio.Config) *exec.Cmd

// helperArgs is the command line understood by audiotap-helper. PCM is
// written to stdout, diagnostics to stderr.
func helperArgs(mode string, cfg audio.Config) []string {
	return []string{
		"--mode", mode,
		"--rate", strconv.Itoa(cfg.SampleRate),
		"--channels", strconv.Itoa(cfg.Channels),
		"--format", "s16le",
	}
}

func helperCommand(path, mode string) commandFunc {
	return func(ctx context.Context, cfg audio.Config) *exec.Cmd {
		return exec.CommandContext(ctx, path, helperArgs(mode, cfg)...)
	}
}

// helperAvailable reports whether the helper binary can be resolved.
func helperAvailable(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}

// helperCapture streams PCM from a child process. The macOS tap APIs are only
// reachable from Swift/Objective-C, so a small signed helper owns the tap and
// this side only reads its stdout.
type helperCapture struct {
	method    audio.Method
	log       zerolog.Logger
	command   commandFunc
	preflight func() error

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	done     chan struct{}
	gate     gate
	stopping atomic.Bool
	running  atomic.Bool

	diagMu   sync.Mutex
	lastDiag string
}

func newHelperCapture(method audio.Method, log zerolog.Logger, command commandFunc, preflight func() error) *helperCapture {
	return &helperCapture{
		method:    method,
		log:       log.With().Str("backend", string(method)).Logger(),
		command:   command,
		preflight: preflight,
	}
}

func (h *helperCapture) Method() audio.Method { return h.method }

func (h *helperCapture) IsCapturing() bool { return h.running.Load() }

func (h *helperCapture) Start(cfg audio.Config, sinks Sinks) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd != nil {
		return audio.ErrAlreadyCapturing
	}
	if h.preflight != nil {
		if err := h.preflight(); err != nil {
			return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := h.command(ctx, cfg)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = helperStopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: helper stdout: %v", audio.ErrDeviceUnavailable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: helper stderr: %v", audio.ErrDeviceUnavailable, err)
	}

	h.setDiag("")
	h.stopping.Store(false)
	h.gate.arm(sinks)
	if err := cmd.Start(); err != nil {
		h.gate.close()
		cancel()
		return fmt.Errorf("%w: failed to start helper: %v", audio.ErrDeviceUnavailable, err)
	}

	h.cmd = cmd
	h.cancel = cancel
	h.done = make(chan struct{})
	h.running.Store(true)

	diagDone := make(chan struct{})
	go h.readDiagnostics(stderr, diagDone)
	go h.readLoop(cmd, stdout, cfg.FrameBytes(chunkMillis), diagDone)

	h.log.Info().
		Str("helper", cmd.Path).
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Msg("Helper capture started")
	return nil
}

func (h *helperCapture) readDiagnostics(r io.Reader, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.log.Debug().Str("line", line).Msg("Helper diagnostic")
		h.setDiag(line)
	}
}

func (h *helperCapture) readLoop(cmd *exec.Cmd, stdout io.Reader, chunk int, diagDone <-chan struct{}) {
	defer close(h.done)

	buf := make([]byte, chunk)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			h.gate.data(buf[:n])
		}
		if err != nil {
			break
		}
	}

	<-diagDone
	waitErr := cmd.Wait()
	h.running.Store(false)
	if h.stopping.Load() {
		return
	}

	msg := h.diag()
	if msg == "" {
		msg = "helper exited"
		if waitErr != nil {
			msg = fmt.Sprintf("helper exited: %v", waitErr)
		}
	}
	h.log.Error().Err(waitErr).Str("diagnostic", msg).Msg("Helper capture ended unexpectedly")
	h.gate.fail(audio.NewCaptureError(classify(msg), true, "%s", msg))
}

func (h *helperCapture) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil {
		return nil
	}
	h.stopping.Store(true)
	h.gate.close()
	h.cancel()
	<-h.done

	state := h.cmd.ProcessState
	h.cmd = nil
	h.cancel = nil
	h.log.Info().Stringer("exit", state).Msg("Helper capture stopped")
	if state == nil {
		return errors.New("helper did not exit")
	}
	return nil
}

func (h *helperCapture) setDiag(line string) {
	h.diagMu.Lock()
	h.lastDiag = line
	h.diagMu.Unlock()
}

func (h *helperCapture) diag() string {
	h.diagMu.Lock()
	defer h.diagMu.Unlock()
	return h.lastDiag
}
