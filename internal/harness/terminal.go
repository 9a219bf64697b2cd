package harness

import (
	"errors"
	"fmt"
)

const (
	defaultCols = 80
	defaultRows = 30
)

// Command describes a program to run inside a pseudo-terminal.
type Command struct {
	// Path is the executable, resolved through PATH when it has no separator.
	Path string

	// Args are passed to the program verbatim.
	Args []string

	// Dir is the working directory. Empty means the caller's directory.
	Dir string

	// Env is the full child environment. Nil means the caller's environment.
	Env []string

	// Cols and Rows are the terminal dimensions (default 80x30).
	Cols int
	Rows int
}

// Observer receives the asynchronous events of one pseudo-terminal child.
//
// OnData is called with every chunk read from the terminal, in arrival order.
// Exactly one of OnExit or OnError ends the stream; no OnData call follows it.
type Observer interface {
	OnData(p []byte)
	OnExit(code int)
	OnError(err error)
}

// Terminal is a live child process bound to a pseudo-terminal.
type Terminal interface {
	// Write delivers bytes to the child's terminal input.
	Write(p []byte) (int, error)

	// Kill terminates the child, its process group and the terminal's foreground job without grace.
	Kill() error

	// Close releases the pseudo-terminal. It is safe to call more than once.
	Close() error

	// Pid returns the child's process id.
	Pid() int
}

// Spawner starts commands bound to a new pseudo-terminal.
type Spawner interface {
	Spawn(cmd Command, obs Observer) (Terminal, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(cmd Command, obs Observer) (Terminal, error)

// Spawn calls f(cmd, obs).
func (f SpawnerFunc) Spawn(cmd Command, obs Observer) (Terminal, error) {
	return f(cmd, obs)
}

var (
	// ErrAlreadyRunning is returned by Start while the previous process is still live.
	ErrAlreadyRunning = errors.New("harness: process already running")

	// ErrNotRunning is returned by operations that need a live process.
	ErrNotRunning = errors.New("harness: process is not running")

	// ErrPromptTimeout is returned when a shell prompt marker never appears.
	ErrPromptTimeout = errors.New("harness: shell prompt did not appear")

	// ErrUnsupportedPlatform is returned by the default spawner where no pseudo-terminal is available.
	ErrUnsupportedPlatform = errors.New("harness: pseudo-terminal not supported on this platform")
)

// SpawnError reports a child process that could not be created.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SpawnError) Unwrap() error {
	return e.Err
}
