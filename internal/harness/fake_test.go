package harness

import (
	"errors"
	"sync"
)

// fakeSpawner hands out scripted terminals and keeps the observer so tests
// can inject process events.
type fakeSpawner struct {
	mu      sync.Mutex
	err     error
	onSpawn func(obs Observer)
	react   func(input string, obs Observer)
	last    Command
	obs     Observer
	term    *fakeTerminal
	spawned int
}

func (s *fakeSpawner) Spawn(c Command, obs Observer) (Terminal, error) {
	s.mu.Lock()
	s.last = c
	s.spawned++

	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}

	t := &fakeTerminal{obs: obs, react: s.react}
	s.obs = obs
	s.term = t
	onSpawn := s.onSpawn
	s.mu.Unlock()

	if onSpawn != nil {
		onSpawn(obs)
	}

	return t, nil
}

func (s *fakeSpawner) observer() Observer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.obs
}

func (s *fakeSpawner) terminal() *fakeTerminal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.term
}

func (s *fakeSpawner) command() Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

type fakeTerminal struct {
	mu       sync.Mutex
	obs      Observer
	react    func(input string, obs Observer)
	writes   []string
	writeErr error
	killed   bool
	closed   bool
}

func (t *fakeTerminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.writeErr != nil {
		err := t.writeErr
		t.mu.Unlock()

		return 0, err
	}

	t.writes = append(t.writes, string(p))
	react := t.react
	t.mu.Unlock()

	if react != nil {
		react(string(p), t.obs)
	}

	return len(p), nil
}

func (t *fakeTerminal) Kill() error {
	t.mu.Lock()
	t.killed = true
	t.mu.Unlock()

	t.obs.OnExit(-1)

	return nil
}

func (t *fakeTerminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.New("already closed")
	}

	t.closed = true

	return nil
}

func (t *fakeTerminal) Pid() int { return 4242 }

func (t *fakeTerminal) inputs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.writes...)
}

func (t *fakeTerminal) wasKilled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.killed
}

func (t *fakeTerminal) wasClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}
