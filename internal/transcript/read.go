package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Recording is a stored transcript found on disk.
type Recording struct {
	Meta
	Path string
}

// List returns recordings under root, newest first.
func List(root string) ([]Recording, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	recordings := make([]Recording, 0, len(entries))

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(root, ent.Name())

		data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
		if err != nil {
			continue
		}

		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		recordings = append(recordings, Recording{Meta: meta, Path: dir})
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].StartedAt.After(recordings[j].StartedAt)
	})

	return recordings, nil
}

// ReadEvents reads every event of the recording in dir. A transcript cut
// short by a crash yields the events written before the cut.
func ReadEvents(dir string) (events []Event, err error) {
	file, err := os.Open(filepath.Join(dir, eventsFileName)) //nolint:gosec // controlled path
	if err != nil {
		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gz, err := gzip.NewReader(file)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return events, fmt.Errorf("scan transcript events: %w", err)
	}

	return events, nil
}

// Prune removes recordings that closed (or started, if never closed)
// before cutoff.
func Prune(root string, cutoff time.Time) (int, error) {
	recordings, err := List(root)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, rec := range recordings {
		reference := rec.StartedAt
		if rec.ClosedAt != nil {
			reference = *rec.ClosedAt
		}

		if !reference.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(rec.Path); err != nil {
			return removed, fmt.Errorf("prune transcript %q: %w", rec.Name(), err)
		}

		removed++
	}

	return removed, nil
}

// DefaultRetention is how long recordings are kept.
func DefaultRetention() time.Duration {
	return defaultRetention
}
