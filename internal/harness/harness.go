// Package harness drives interactive command-line programs through a
// pseudo-terminal the way a person at a keyboard would.
//
// A Harness owns at most one child process. It accumulates everything the
// child prints, lets the caller type into it, and offers polling waits that
// turn asynchronous terminal output into simple true/false answers:
//
//	h := harness.New(harness.Options{Logger: logger})
//	if err := h.StartShell(ctx, harness.ShellOptions{}); err != nil { ... }
//	h.SendInput(h.Shell().CommandLine(eim, "-V"))
//	ok := h.WaitForOutput(ctx, "eim 0.1.6", 10*time.Second)
//	_ = h.Stop(ctx, 0)
//
// Waits never hang: they return false on timeout, and only infrastructure
// failures (spawn errors, asynchronous process errors) surface as errors.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/espressif/eim-e2e/internal/observability"
)

const (
	defaultStartGrace       = time.Second
	defaultPollInterval     = 100 * time.Millisecond
	defaultExitPollInterval = 200 * time.Millisecond
	defaultFlushDelay       = time.Second
	defaultStopTimeout      = 3 * time.Second
	defaultPromptTimeout    = 5 * time.Second
	defaultKillReap         = 2 * time.Second
	promptTailBytes         = 256
	interruptInput          = "\x03"
)

// Options configures a Harness. Zero values select the defaults.
type Options struct {
	// Logger receives structured harness events. Defaults to a discarding logger.
	Logger *slog.Logger

	// Spawner binds commands to a pseudo-terminal. Defaults to DefaultSpawner().
	Spawner Spawner

	// Shell is the platform strategy. Defaults to DefaultShell().
	Shell *Shell

	// Cols and Rows are the terminal dimensions (default 80x30).
	Cols int
	Rows int

	// StartGrace is how long Start waits for an early exit or error (default 1s).
	StartGrace time.Duration

	// PollInterval is the WaitForOutput polling period (default 100ms).
	PollInterval time.Duration

	// ExitPollInterval is the WaitForExit polling period (default 200ms).
	ExitPollInterval time.Duration

	// FlushDelay lets trailing output land after exit before WaitForExit checks it (default 1s).
	FlushDelay time.Duration

	// StopTimeout bounds each escalation stage of Stop (default 3s).
	StopTimeout time.Duration

	// PromptTimeout bounds waiting for the shell prompt marker (default 5s).
	PromptTimeout time.Duration

	// GracefulInput is typed first by Stop. Defaults to the shell's exit command.
	GracefulInput string

	// OnOutput is called with every output chunk, e.g. for transcript capture.
	OnOutput func(p []byte)

	// OnInput is called with every input written to the terminal.
	OnInput func(p []byte)

	// BeforeReset sees the accumulated output right before Stop clears it.
	BeforeReset func(output string)
}

// Harness owns one pseudo-terminal child process at a time.
// A Harness must not be shared across concurrently running tests.
type Harness struct {
	mu sync.Mutex

	term        Terminal
	output      []byte
	exited      bool
	exitCode    int
	hasExitCode bool
	lastErr     error

	// gen identifies the current process; events from older processes are dropped.
	gen uint64
	// settled resolves the pending Start of the current process.
	settled chan error

	opts    Options
	shell   Shell
	spawner Spawner
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a Harness with no process.
func New(opts Options) *Harness {
	h := &Harness{
		opts:    opts,
		spawner: opts.Spawner,
		logger:  opts.Logger,
		tracer:  observability.Tracer("github.com/espressif/eim-e2e/internal/harness"),
		// No process yet: the harness reads as exited until Start.
		exited: true,
	}

	if h.spawner == nil {
		h.spawner = DefaultSpawner()
	}

	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Shell != nil {
		h.shell = *opts.Shell
	} else {
		h.shell = DefaultShell()
	}

	h.logger = h.logger.With(slog.String("component", "harness"))

	return h
}

// Shell returns the platform strategy this harness uses.
func (h *Harness) Shell() Shell {
	return h.shell
}

// Start spawns c inside a new pseudo-terminal.
//
// Start returns once the child has stayed alive for the start grace period,
// or earlier when it exits cleanly. It returns a *SpawnError when the child
// cannot be created and the recorded error when the child fails during the
// grace period. When ctx ends during the grace period the child is killed and
// released, and ctx.Err() is returned.
func (h *Harness) Start(ctx context.Context, c Command) error {
	return h.start(ctx, h.shell.Wrap(c))
}

// ShellOptions configures StartShell.
type ShellOptions struct {
	// Dir and Env override the working directory and environment.
	Dir string
	Env []string

	// WaitPrompt blocks until the prompt marker shows in the output tail.
	WaitPrompt bool

	// PromptTimeout overrides Options.PromptTimeout.
	PromptTimeout time.Duration
}

// StartShell runs the platform's interactive shell with no program in it.
// Programs are typed into it afterward with SendInput.
func (h *Harness) StartShell(ctx context.Context, so ShellOptions) error {
	err := h.start(ctx, Command{
		Path: h.shell.Command,
		Args: h.shell.Args,
		Dir:  so.Dir,
		Env:  so.Env,
	})
	if err != nil {
		return err
	}

	if !so.WaitPrompt {
		return nil
	}

	return h.WaitForPrompt(ctx, so.PromptTimeout)
}

// StartActivatedShell starts the shell and loads an activation script into it.
func (h *Harness) StartActivatedShell(ctx context.Context, script string, so ShellOptions) error {
	if err := h.StartShell(ctx, so); err != nil {
		return err
	}

	h.logger.Debug(
		"loading activation script",
		slog.String("event.type", "harness.shell.source"),
		slog.String("harness.script", script),
	)
	h.SendInput(h.shell.SourceLine(script))

	return nil
}

func (h *Harness) start(ctx context.Context, c Command) (err error) {
	ctx, span := h.tracer.Start(ctx, "harness.start", trace.WithAttributes(
		attribute.String("harness.path", c.Path),
		attribute.Int("harness.argc", len(c.Args)),
	))
	defer func() {
		endSpan(span, err)
	}()

	c = h.withDefaults(c)

	h.mu.Lock()
	if h.term != nil && !h.exited {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}

	h.gen++
	gen := h.gen
	settled := make(chan error, 1)
	h.settled = settled
	h.term = nil
	h.output = nil
	h.exited = false
	h.exitCode = 0
	h.hasExitCode = false
	h.lastErr = nil
	h.mu.Unlock()

	h.logger.Debug(
		"starting process",
		slog.String("event.type", "harness.pty.start"),
		slog.String("harness.path", c.Path),
		slog.Any("harness.args", c.Args),
		slog.Int("harness.cols", c.Cols),
		slog.Int("harness.rows", c.Rows),
	)

	term, spawnErr := h.spawner.Spawn(c, &processObserver{h: h, gen: gen})
	if spawnErr != nil {
		wrapped := &SpawnError{Path: c.Path, Err: spawnErr}

		h.mu.Lock()
		if h.gen == gen {
			h.lastErr = wrapped
			h.exited = true
		}
		h.mu.Unlock()

		h.logger.Error(
			"process spawn failed",
			slog.String("event.type", "harness.pty.spawn_error"),
			slog.String("error", spawnErr.Error()),
		)

		return wrapped
	}

	h.mu.Lock()
	h.term = term
	h.mu.Unlock()

	span.SetAttributes(attribute.Int("harness.pid", term.Pid()))

	grace := durationOr(h.opts.StartGrace, defaultStartGrace)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-settled:
		return err
	case <-timer.C:
		return nil
	case <-ctx.Done():
		h.logger.Warn(
			"start cancelled, killing process",
			slog.String("event.type", "harness.pty.start_cancelled"),
			slog.Int("harness.pid", term.Pid()),
		)

		if err := term.Kill(); err != nil {
			h.logger.Debug(
				"kill failed",
				slog.String("event.type", "harness.stop.kill_error"),
				slog.String("error", err.Error()),
			)
		}

		h.release(term)

		return ctx.Err()
	}
}

func (h *Harness) withDefaults(c Command) Command {
	if c.Env == nil {
		c.Env = os.Environ()
	}

	if c.Dir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Dir = wd
		}
	}

	if c.Cols <= 0 {
		c.Cols = intOr(h.opts.Cols, defaultCols)
	}

	if c.Rows <= 0 {
		c.Rows = intOr(h.opts.Rows, defaultRows)
	}

	return c
}

// SendInput types text into the terminal exactly as given. The caller adds
// "\r" to press Enter; control characters such as "\x03" are sent literally.
//
// Input to a harness with no live process is dropped with a warning. A failed
// write is recorded (see Err) and marks the process exited; it is never
// returned to the caller.
func (h *Harness) SendInput(text string) {
	h.mu.Lock()
	term, exited := h.term, h.exited
	h.mu.Unlock()

	if term == nil || exited {
		h.logger.Warn(
			"attempted to send input, but process is not running",
			slog.String("event.type", "harness.input.dropped"),
			slog.String("harness.input", strconv.Quote(text)),
		)

		return
	}

	h.logger.Info(
		"sending input to terminal",
		slog.String("event.type", "harness.input"),
		slog.String("harness.input", strconv.Quote(text)),
	)

	if err := h.write(term, text); err != nil {
		h.mu.Lock()
		if h.term == term {
			if h.lastErr == nil {
				h.lastErr = err
			}

			h.exited = true
		}
		h.mu.Unlock()

		h.logger.Warn(
			"error sending input",
			slog.String("event.type", "harness.input.error"),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Harness) write(term Terminal, text string) error {
	p := []byte(text)

	if _, err := term.Write(p); err != nil {
		return err
	}

	if h.opts.OnInput != nil {
		h.opts.OnInput(p)
	}

	return nil
}

// WaitForOutput polls the accumulated output until it contains want.
// It returns true as soon as want is found, false once the process has
// exited without printing it, and false when timeout elapses or ctx ends.
func (h *Harness) WaitForOutput(ctx context.Context, want string, timeout time.Duration) bool {
	ctx, span := h.tracer.Start(ctx, "harness.wait_output", trace.WithAttributes(
		attribute.String("harness.want", want),
	))
	defer span.End()

	needle := []byte(want)
	found := false

	_ = poll(ctx, durationOr(h.opts.PollInterval, defaultPollInterval), timeout, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()

		if bytes.Contains(h.output, needle) {
			found = true
			return true
		}

		return h.exited
	})

	span.SetAttributes(attribute.Bool("harness.found", found))

	if !found {
		h.logger.Debug(
			"expected output not seen",
			slog.String("event.type", "harness.wait_output.miss"),
			slog.String("harness.want", want),
			slog.Duration("harness.timeout", timeout),
		)
	}

	return found
}

// WaitForExit polls until the process exits, waits a short flush delay for
// trailing output, and reports whether the output contains want. An
// asynchronous process error recorded before the exit is returned instead.
// A timeout yields (false, nil).
func (h *Harness) WaitForExit(ctx context.Context, want string, timeout time.Duration) (found bool, err error) {
	ctx, span := h.tracer.Start(ctx, "harness.wait_exit")
	defer func() {
		endSpan(span, err)
	}()

	pollErr := poll(ctx, durationOr(h.opts.ExitPollInterval, defaultExitPollInterval), timeout, h.Exited)
	if pollErr != nil {
		if errors.Is(pollErr, errPollTimeout) {
			return false, nil
		}

		return false, pollErr
	}

	if recorded := h.Err(); recorded != nil {
		return false, recorded
	}

	if err := sleep(ctx, durationOr(h.opts.FlushDelay, defaultFlushDelay)); err != nil {
		return false, err
	}

	return h.Contains(want), nil
}

// WaitForPrompt blocks until the shell prompt marker ends the output tail.
func (h *Harness) WaitForPrompt(ctx context.Context, timeout time.Duration) error {
	timeout = durationOr(timeout, durationOr(h.opts.PromptTimeout, defaultPromptTimeout))

	ready := false

	err := poll(ctx, durationOr(h.opts.PollInterval, defaultPollInterval), timeout, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()

		tail := h.output
		if len(tail) > promptTailBytes {
			tail = tail[len(tail)-promptTailBytes:]
		}

		if h.shell.promptReady(string(tail)) && len(h.output) > 0 {
			ready = true
			return true
		}

		return h.exited
	})

	switch {
	case ready:
		return nil
	case err != nil && !errors.Is(err, errPollTimeout):
		return err
	}

	if recorded := h.Err(); recorded != nil {
		return recorded
	}

	return fmt.Errorf("%w: none of %q seen within %s", ErrPromptTimeout, h.shell.PromptMarkers, timeout)
}

// Stop ends the process and resets the harness for the next test.
//
// Stop types the graceful exit input and waits up to timeout. If the process
// is still alive it sends interrupts plus the exit command and waits again,
// and finally kills the foreground job and the process group. Stop is idempotent and returns nil for
// a harness with no live process. timeout <= 0 selects Options.StopTimeout.
func (h *Harness) Stop(ctx context.Context, timeout time.Duration) error {
	ctx, span := h.tracer.Start(ctx, "harness.stop")
	defer span.End()

	timeout = durationOr(timeout, durationOr(h.opts.StopTimeout, defaultStopTimeout))

	h.mu.Lock()
	term, exited := h.term, h.exited
	h.mu.Unlock()

	if term == nil || exited {
		h.release(term)
		span.SetAttributes(attribute.String("harness.stop", "noop"))

		return nil
	}

	graceful := h.opts.GracefulInput
	if graceful == "" {
		graceful = h.shell.ExitCommand
	}

	h.logger.Debug(
		"stopping process",
		slog.String("event.type", "harness.stop.graceful"),
		slog.Int("harness.pid", term.Pid()),
	)
	_ = h.write(term, graceful)

	if h.awaitExit(ctx, timeout) {
		h.release(term)
		span.SetAttributes(attribute.String("harness.stop", "graceful"))

		return nil
	}

	h.logger.Warn(
		"process didn't exit gracefully, escalating",
		slog.String("event.type", "harness.stop.escalate"),
		slog.Duration("harness.timeout", timeout),
	)

	_ = h.write(term, interruptInput)
	_ = h.write(term, interruptInput)
	_ = h.write(term, h.shell.ExitCommand)

	if h.awaitExit(ctx, timeout) {
		h.release(term)
		span.SetAttributes(attribute.String("harness.stop", "escalated"))

		return nil
	}

	h.logger.Warn(
		"forcing process termination",
		slog.String("event.type", "harness.stop.kill"),
		slog.Int("harness.pid", term.Pid()),
	)

	if err := term.Kill(); err != nil {
		h.logger.Warn(
			"kill failed",
			slog.String("event.type", "harness.stop.kill_error"),
			slog.String("error", err.Error()),
		)
	}

	// Reaping is bounded even when ctx is already done.
	reapCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultKillReap)
	defer cancel()
	h.awaitExit(reapCtx, defaultKillReap)

	h.release(term)
	span.SetAttributes(attribute.String("harness.stop", "killed"))

	return nil
}

func (h *Harness) awaitExit(ctx context.Context, timeout time.Duration) bool {
	return poll(ctx, durationOr(h.opts.PollInterval, defaultPollInterval), timeout, h.Exited) == nil
}

// release closes term, hands the output to BeforeReset, then clears the
// harness so nothing leaks into the next test.
func (h *Harness) release(term Terminal) {
	if term != nil {
		if err := term.Close(); err != nil {
			h.logger.Debug(
				"closing pty failed",
				slog.String("event.type", "harness.pty.close_error"),
				slog.String("error", err.Error()),
			)
		}
	}

	h.mu.Lock()
	out := string(h.output)
	h.mu.Unlock()

	if h.opts.BeforeReset != nil && out != "" {
		h.opts.BeforeReset(out)
	}

	h.mu.Lock()
	if h.term == term {
		h.term = nil
	}

	if h.term == nil {
		// Detach observers of the released process.
		h.gen++
		h.exited = true
		h.output = nil
	}
	h.mu.Unlock()
}

// Output returns everything received since Start or the last ResetOutput.
func (h *Harness) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return string(h.output)
}

// PlainOutput returns Output with terminal escape sequences removed.
func (h *Harness) PlainOutput() string {
	return stripANSI(h.Output())
}

// Screen renders the output as it would appear on the terminal.
func (h *Harness) Screen() string {
	h.mu.Lock()
	raw := append([]byte(nil), h.output...)
	h.mu.Unlock()

	return renderScreen(raw, intOr(h.opts.Cols, defaultCols), intOr(h.opts.Rows, defaultRows))
}

// Contains reports whether the accumulated output contains s.
func (h *Harness) Contains(s string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return bytes.Contains(h.output, []byte(s))
}

// ResetOutput clears the accumulated output. Later output keeps accumulating.
func (h *Harness) ResetOutput() {
	h.mu.Lock()
	h.output = nil
	h.mu.Unlock()
}

// Exited reports whether the current process has ended (or none was started).
func (h *Harness) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.exited
}

// Running reports whether a live process is attached.
func (h *Harness) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.term != nil && !h.exited
}

// ExitCode returns the exit code and true once the process has exited
// through a normal exit event.
func (h *Harness) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.exited || !h.hasExitCode {
		return 0, false
	}

	return h.exitCode, true
}

// Err returns the spawn, process, or write error recorded for the current process.
func (h *Harness) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lastErr
}

// processObserver routes terminal events to the harness generation it was created for.
type processObserver struct {
	h   *Harness
	gen uint64
}

func (o *processObserver) OnData(p []byte) {
	h := o.h

	h.mu.Lock()
	if h.gen != o.gen {
		h.mu.Unlock()
		return
	}
	h.output = append(h.output, p...)
	h.mu.Unlock()

	if h.opts.OnOutput != nil {
		h.opts.OnOutput(p)
	}
}

func (o *processObserver) OnExit(code int) {
	h := o.h

	h.mu.Lock()
	if h.gen != o.gen || h.hasExitCode {
		h.mu.Unlock()
		return
	}

	h.exited = true
	h.exitCode = code
	h.hasExitCode = true
	failed := h.lastErr != nil
	settled := h.settled
	h.mu.Unlock()

	h.logger.Debug(
		"process exited",
		slog.String("event.type", "harness.pty.exit"),
		slog.Int("harness.exit_code", code),
	)

	if !failed {
		resolve(settled, nil)
	}
}

func (o *processObserver) OnError(err error) {
	h := o.h

	h.mu.Lock()
	if h.gen != o.gen {
		h.mu.Unlock()
		return
	}

	if h.lastErr == nil {
		h.lastErr = err
	}

	h.exited = true
	settled := h.settled
	h.mu.Unlock()

	h.logger.Warn(
		"process error",
		slog.String("event.type", "harness.pty.error"),
		slog.String("error", err.Error()),
	)

	resolve(settled, err)
}

// resolve settles a pending Start; the first outcome wins.
func resolve(settled chan error, err error) {
	if settled == nil {
		return
	}

	select {
	case settled <- err:
	default:
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}

	return fallback
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}

	return fallback
}
