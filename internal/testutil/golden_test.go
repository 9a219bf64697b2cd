package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// recordingTB captures failures without aborting the outer test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper() {}
func (r *recordingTB) Errorf(string, ...any) { r.failed = true }
func (r *recordingTB) Fatalf(string, ...any) { r.failed = true }
func (r *recordingTB) Logf(string, ...any) {}

func TestAssertGolden(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := os.MkdirAll("testdata", 0o755); err != nil {
		t.Fatal(err)
	}

	content := "expected output\n"
	if err := os.WriteFile(filepath.Join("testdata", "test.golden"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("matching content passes", func(t *testing.T) {
		rec := &recordingTB{TB: t}
		AssertGolden(rec, content, "test.golden")

		if rec.failed {
			t.Error("AssertGolden should pass when content matches")
		}
	})

	t.Run("different content fails", func(t *testing.T) {
		rec := &recordingTB{TB: t}
		AssertGolden(rec, "other output\n", "test.golden")

		if !rec.failed {
			t.Error("AssertGolden should fail when content differs")
		}
	})

	t.Run("missing golden fails", func(t *testing.T) {
		rec := &recordingTB{TB: t}
		AssertGolden(rec, content, "missing.golden")

		if !rec.failed {
			t.Error("AssertGolden should fail when the golden file is missing")
		}
	})
}

func TestNormalizeTerminal(t *testing.T) {
	raw := "\x1b[1m? \x1b[0mPlease select all of the target platforms   \r\n\x1b[32m> all\x1b[0m\r\n"
	want := "? Please select all of the target platforms\n> all\n"

	if got := NormalizeTerminal(raw); got != want {
		t.Fatalf("NormalizeTerminal() = %q, want %q", got, want)
	}
}

func TestGoldenPath(t *testing.T) {
	if got, want := GoldenPath("x.golden"), filepath.Join("testdata", "x.golden"); got != want {
		t.Fatalf("GoldenPath() = %q, want %q", got, want)
	}
}
