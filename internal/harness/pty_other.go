//go:build !unix

package harness

// DefaultSpawner returns a spawner that always fails: creack/pty has no
// ConPTY backend, so interactive runs need a unix host.
func DefaultSpawner() Spawner {
	return SpawnerFunc(func(Command, Observer) (Terminal, error) {
		return nil, ErrUnsupportedPlatform
	})
}
