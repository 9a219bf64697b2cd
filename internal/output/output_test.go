package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/espressif/eim-e2e/internal/testutil"
)

// testTerminal is a non-TTY, colorless terminal.
func testTerminal() *Terminal {
	return &Terminal{Width: 80, Height: 24, NoColor: true}
}

func TestWriter_Print(t *testing.T) {
	tests := []struct {
		name  string
		quiet bool
		json  bool
		want  string
	}{
		{name: "normal output", want: "Hello, world!"},
		{name: "quiet mode suppresses output", quiet: true},
		{name: "json mode suppresses output", json: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			w := NewWriter(&buf, &buf, testTerminal())
			w.Quiet = tt.quiet
			w.JSON = tt.json

			w.Print("Hello, %s!", "world")

			if got := buf.String(); got != tt.want {
				t.Errorf("Print() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriter_ErrorGoesToStderr(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	w.Error("Error: %s", "eim not found")
	w.Errorln("again")

	if got, want := errBuf.String(), "Error: eim not foundagain\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}

	if outBuf.Len() > 0 {
		t.Errorf("stdout = %q, want empty", outBuf.String())
	}
}

func TestWriter_FailureIsNeverSilenced(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	w.Quiet = true
	w.JSON = true

	w.Failure("Case %s failed", "2")

	if got := errBuf.String(); !strings.Contains(got, XMark+" Case 2 failed") {
		t.Errorf("Failure() = %q", got)
	}
}

func TestWriter_Write(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())
	w.Quiet = true

	n, err := w.Write([]byte("test data"))
	if err != nil || n != 9 {
		t.Fatalf("Write() = %d, %v, want 9, nil", n, err)
	}

	if buf.Len() != 0 {
		t.Errorf("Write() in quiet mode wrote %q", buf.String())
	}
}

func TestWriter_DebugOnlyWhenVerbose(t *testing.T) {
	var outBuf, errBuf bytes.Buffer

	w := NewWriter(&outBuf, &errBuf, testTerminal())
	w.Debug("hidden")

	if errBuf.Len() != 0 {
		t.Fatalf("Debug() without Verbose wrote %q", errBuf.String())
	}

	w.Verbose = true
	w.Debug("shown %d", 1)

	if !strings.Contains(errBuf.String(), "[debug] shown 1") {
		t.Fatalf("Debug() = %q", errBuf.String())
	}
}

func TestWriter_Context(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, &bytes.Buffer{}, testTerminal())

	if FromContext(w.WithContext(t.Context())) != w {
		t.Error("FromContext should return the stored writer")
	}

	if FromContext(t.Context()) == nil {
		t.Error("FromContext should fall back to a default writer")
	}
}

func TestWriter_SetNoColor(t *testing.T) {
	term := &Terminal{IsTTY: true}
	w := NewWriter(&bytes.Buffer{}, &bytes.Buffer{}, term)

	if !term.ColorEnabled() {
		t.Fatal("ColorEnabled() = false for a TTY without NO_COLOR")
	}

	w.SetNoColor(true)

	if term.ColorEnabled() {
		t.Error("ColorEnabled() = true after SetNoColor(true)")
	}
}

func TestSpinner_FallbackWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())

	s := w.Spinner("Waiting for installer")
	if !s.disabled {
		t.Fatal("Spinner should be disabled without a TTY")
	}

	s.Start()
	s.UpdateMessage("Still waiting")
	s.StopWithSuccess("Installed")

	if got, want := buf.String(), "Waiting for installer... done\n"+CheckMark+" Installed\n"; got != want {
		t.Errorf("spinner output = %q, want %q", got, want)
	}
}

func TestSpinner_QuietWritesNothing(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())
	w.Quiet = true

	s := w.Spinner("Loading")
	s.Start()
	s.StopWithWarning("slow")
	s.Stop()

	if buf.Len() != 0 {
		t.Errorf("quiet spinner wrote %q", buf.String())
	}
}

func TestPrintJSON_Golden(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())
	w.Quiet = true

	err := w.PrintJSON(struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Passed bool   `json:"passed"`
	}{ID: "1", Name: "arguments", Passed: true})
	if err != nil {
		t.Fatalf("PrintJSON() error = %v", err)
	}

	testutil.AssertGolden(t, buf.String(), "json_output.golden")
}

func TestStatusMessages_Golden(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, &buf, testTerminal())

	w.Success("Case 1 passed")
	w.Warning("Activation script not found")
	w.Info("Running 3 cases")
	w.Muted("Transcript saved")

	testutil.AssertGolden(t, buf.String(), "status_messages.golden")
}
