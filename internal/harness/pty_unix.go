//go:build unix

package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// drainDeadline bounds how long the exit report waits for buffered output
// after the child has been reaped.
const drainDeadline = 2 * time.Second

// ptySpawner starts children with creack/pty.
type ptySpawner struct {
	// startWithSize is injectable for tests; defaults to pty.StartWithSize.
	startWithSize func(*exec.Cmd, *pty.Winsize) (*os.File, error)
}

// DefaultSpawner returns the platform pseudo-terminal spawner.
func DefaultSpawner() Spawner {
	return &ptySpawner{startWithSize: pty.StartWithSize}
}

func (s *ptySpawner) Spawn(c Command, obs Observer) (Terminal, error) {
	cmd := exec.Command(c.Path, c.Args...) //nolint:gosec // G204: the program under test is chosen by the caller
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	startWithSize := s.startWithSize
	if startWithSize == nil {
		startWithSize = pty.StartWithSize
	}

	// cmd.Stdin/Stdout/Stderr stay nil: StartWithSize assigns the tty to all three.
	ptmx, err := startWithSize(cmd, &pty.Winsize{
		Rows: uint16(c.Rows),
		Cols: uint16(c.Cols),
	})
	if err != nil {
		return nil, annotateStartPTYError(err, c.Path)
	}

	t := &ptyTerminal{
		cmd:        cmd,
		ptmx:       ptmx,
		readerDone: make(chan struct{}),
		readErrCh:  make(chan error, 1),
	}

	if cmd.Process != nil && cmd.Process.Pid > 0 {
		if pgid, pgErr := unix.Getpgid(cmd.Process.Pid); pgErr == nil {
			t.pgid = pgid
		}
	}

	go t.readOutput(obs)
	go t.waitExit(obs)

	return t, nil
}

type ptyTerminal struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pgid int

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	readerDone chan struct{}
	readErrCh  chan error
}

func (t *ptyTerminal) readOutput(obs Observer) {
	defer close(t.readerDone)

	buf := make([]byte, 4096)

	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			obs.OnData(chunk)
		}

		if err != nil {
			if !isTerminalClosed(err) {
				t.readErrCh <- fmt.Errorf("read from pty: %w", err)
			}

			return
		}
	}
}

func (t *ptyTerminal) waitExit(obs Observer) {
	waitErr := t.cmd.Wait()

	select {
	case <-t.readerDone:
	case <-time.After(drainDeadline):
	}

	select {
	case readErr := <-t.readErrCh:
		obs.OnError(readErr)
		return
	default:
	}

	if waitErr == nil {
		obs.OnExit(0)
		return
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		obs.OnExit(exitErr.ExitCode())
		return
	}

	obs.OnError(fmt.Errorf("wait for process: %w", waitErr))
}

func (t *ptyTerminal) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.ptmx.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to pty: %w", err)
	}

	return n, nil
}

// Kill signals the terminal's foreground job before the child itself.
// An interactive shell runs typed programs in their own process group, and
// such a job can outlive the shell and keep the tty open.
func (t *ptyTerminal) Kill() error {
	if t.cmd.Process == nil {
		return nil
	}

	var jobErr error

	if fg := t.foregroundGroup(); fg > 0 && fg != t.pgid {
		if err := unix.Kill(-fg, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			jobErr = fmt.Errorf("signal foreground group %d: %w", fg, err)
		}
	}

	return errors.Join(jobErr, sendSignal(t.cmd.Process.Pid, t.pgid, unix.SIGKILL))
}

// foregroundGroup returns the foreground process group of the terminal, or 0
// when it cannot be read. The fd is borrowed through SyscallConn so the
// pending read keeps its non-blocking mode.
func (t *ptyTerminal) foregroundGroup() int {
	rc, err := t.ptmx.SyscallConn()
	if err != nil {
		return 0
	}

	pgrp := 0

	ctrlErr := rc.Control(func(fd uintptr) {
		pgrp, err = unix.IoctlGetInt(int(fd), unix.TIOCGPGRP)
	})
	if ctrlErr != nil || err != nil {
		return 0
	}

	return pgrp
}

func (t *ptyTerminal) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.ptmx.Close()
	})

	return t.closeErr
}

func (t *ptyTerminal) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}

	return t.cmd.Process.Pid
}

// sendSignal signals the process group when known, falling back to the pid.
func sendSignal(pid, pgid int, sig syscall.Signal) error {
	if pgid > 0 {
		err := unix.Kill(-pgid, sig)
		if err == nil || errors.Is(err, unix.ESRCH) {
			return nil
		}
	}

	if pid <= 0 {
		return nil
	}

	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %d: %w", pid, err)
	}

	return nil
}

// isTerminalClosed reports read errors that mean the slave side hung up.
// Linux returns EIO once the child and every inheritor of the tty are gone.
func isTerminalClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, os.ErrClosed)
}

func annotateStartPTYError(err error, binaryPath string) error {
	if !errors.Is(err, syscall.EPERM) {
		return err
	}

	return fmt.Errorf(
		"%w (EPERM during PTY start for %q; check executable permissions and filesystem noexec)",
		err,
		binaryPath,
	)
}
