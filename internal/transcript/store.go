// Package transcript records the terminal traffic of each test case so a
// failed case can be inspected after the harness has been reset.
package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/espressif/eim-e2e/internal/paths"
)

const (
	defaultLines     = 2000
	defaultRetention = 30 * 24 * time.Hour
	eventsFileName   = "events.jsonl.gz"
	metaFileName     = "meta.json"
)

// Streams recorded in a transcript.
const (
	StreamOutput = "output"
	StreamInput  = "input"
)

// Event is a single transcript record.
type Event struct {
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	Stream    string    `json:"stream"`
	RawBase64 string    `json:"rawBase64"`
	Text      string    `json:"text,omitempty"`
}

// Meta describes one recorded case.
type Meta struct {
	RunID     string     `json:"runId"`
	CaseID    string     `json:"caseId"`
	CaseName  string     `json:"caseName,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	Result    string     `json:"result,omitempty"`
}

// Name is the directory name of the recording.
func (m Meta) Name() string {
	return m.RunID + "-" + m.CaseID
}

// Options controls a recording.
type Options struct {
	// Root is the transcripts directory; "" selects the state directory.
	Root     string
	RunID    string
	CaseID   string
	CaseName string
	// MaxLines bounds the in-memory tail.
	MaxLines int
}

// Recorder writes one case's terminal traffic to a gzip JSONL file and
// keeps the most recent output lines in memory.
type Recorder struct {
	mu sync.Mutex

	dir  string
	meta Meta
	seq  uint64

	file *os.File
	gz   *gzip.Writer
	bw   *bufio.Writer

	lines     []string
	lineStart int
	lineCount int
	partial   string
	closed    bool
}

// Open starts a recording for one case.
func Open(opts Options) (*Recorder, error) {
	meta := Meta{
		RunID:     opts.RunID,
		CaseID:    opts.CaseID,
		CaseName:  opts.CaseName,
		StartedAt: time.Now().UTC(),
	}

	if err := validateName(meta.Name()); err != nil {
		return nil, err
	}

	root, err := resolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}

	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = defaultLines
	}

	dir := filepath.Join(root, meta.Name())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // name is validated
	if err != nil {
		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	gz := gzip.NewWriter(f)

	r := &Recorder{
		dir:   dir,
		meta:  meta,
		file:  f,
		gz:    gz,
		bw:    bufio.NewWriterSize(gz, 64*1024),
		lines: make([]string, maxLines),
	}

	if err := r.writeMeta(); err != nil {
		_ = r.Close("")
		return nil, err
	}

	return r, nil
}

func resolveRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}

	dir, err := paths.TranscriptDir()
	if err != nil {
		return "", fmt.Errorf("resolve transcript directory: %w", err)
	}

	return dir, nil
}

func (r *Recorder) writeMeta() error {
	data, err := json.Marshal(&r.meta)
	if err != nil {
		return fmt.Errorf("marshal transcript meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write transcript meta: %w", err)
	}

	return nil
}

// Dir is the recording's directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Output records bytes the terminal produced. It matches the harness
// OnOutput hook; write errors are dropped so recording never fails a case.
func (r *Recorder) Output(p []byte) {
	_ = r.Append(StreamOutput, p)
}

// Input records bytes typed into the terminal.
func (r *Recorder) Input(p []byte) {
	_ = r.Append(StreamInput, p)
}

// Append writes one event. Output events also feed the line tail.
func (r *Recorder) Append(stream string, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("transcript is closed")
	}

	text := ansi.Strip(string(chunk))
	r.seq++

	line, err := json.Marshal(&Event{
		Seq:       r.seq,
		TS:        time.Now().UTC(),
		Stream:    stream,
		RawBase64: base64.StdEncoding.EncodeToString(chunk),
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}

	if _, err := r.bw.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write transcript event: %w", err)
	}

	if stream == StreamOutput {
		r.appendLinesLocked(text)
	}

	return nil
}

func (r *Recorder) appendLinesLocked(text string) {
	parts := strings.Split(r.partial+text, "\n")

	for _, part := range parts[:len(parts)-1] {
		r.pushLineLocked(strings.TrimRight(part, "\r"))
	}

	r.partial = parts[len(parts)-1]
}

func (r *Recorder) pushLineLocked(line string) {
	size := len(r.lines)

	if r.lineCount < size {
		r.lines[(r.lineStart+r.lineCount)%size] = line
		r.lineCount++

		return
	}

	r.lines[r.lineStart] = line
	r.lineStart = (r.lineStart + 1) % size
}

// Tail returns up to n of the most recent output lines, oldest first.
// n <= 0 returns every line still held.
func (r *Recorder) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]string, 0, r.lineCount+1)
	for i := range r.lineCount {
		all = append(all, r.lines[(r.lineStart+i)%len(r.lines)])
	}

	if r.partial != "" {
		all = append(all, strings.TrimRight(r.partial, "\r"))
	}

	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}

	return all
}

// Close flushes the events and stamps the result into the metadata.
func (r *Recorder) Close(result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	now := time.Now().UTC()
	r.meta.ClosedAt = &now
	r.meta.Result = result

	var errs []error

	if err := r.bw.Flush(); err != nil {
		errs = append(errs, err)
	}

	if err := r.gz.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := r.writeMeta(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateName(name string) error {
	if name == "" || name == "-" {
		return errors.New("run id and case id are required")
	}

	if name != filepath.Base(name) || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid transcript name %q", name)
	}

	return nil
}
