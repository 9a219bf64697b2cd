package doctor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/espressif/eim-e2e/internal/harness"
	"github.com/espressif/eim-e2e/internal/output"
	"github.com/espressif/eim-e2e/internal/testutil"
)

func TestCompareVersion(t *testing.T) {
	tests := []struct {
		name     string
		reported string
		expected string
		want     Status
	}{
		{name: "exact match", reported: "eim 0.1.6", expected: "eim 0.1.6", want: StatusPass},
		{name: "older binary", reported: "idf-im-cli 0.1.3", expected: "eim 0.1.6", want: StatusFail},
		{name: "newer binary", reported: "eim 0.2.0", expected: "eim 0.1.6", want: StatusFail},
		{name: "constraint satisfied", reported: "eim 0.1.6", expected: ">= 0.1.5", want: StatusPass},
		{name: "constraint violated", reported: "eim 0.1.4", expected: "^0.1.5", want: StatusFail},
		{name: "prerelease", reported: "eim 0.1.6-rc.1", expected: "eim 0.1.6-rc.1", want: StatusPass},
		{name: "no expectation", reported: "eim 0.1.6", expected: "", want: StatusPass},
		{name: "no version in output", reported: "eim", expected: "eim 0.1.6", want: StatusWarn},
		{name: "no version in expectation", reported: "eim 0.1.6", expected: "latest", want: StatusWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detail := compareVersion(tt.reported, tt.expected)
			if got != tt.want {
				t.Errorf("compareVersion(%q, %q) = %v (%s), want %v", tt.reported, tt.expected, got, detail, tt.want)
			}
		})
	}
}

func TestCheckBinaryMissing(t *testing.T) {
	got := checkBinary("/nonexistent/eim")
	if got.Status != StatusFail || !strings.Contains(got.Detail, "EIM_FILE_PATH") {
		t.Fatalf("checkBinary() = %+v", got)
	}
}

func TestCheckScenario(t *testing.T) {
	if got := checkScenario("../../suites", ""); got.Status != StatusWarn {
		t.Errorf("no scenario: %+v", got)
	}

	if got := checkScenario("../../suites", "default"); got.Status != StatusPass {
		t.Errorf("default scenario: %+v", got)
	}

	if got := checkScenario("../../suites", "missing"); got.Status != StatusFail {
		t.Errorf("missing scenario: %+v", got)
	}
}

func TestCheckActivationScriptMissingWarns(t *testing.T) {
	home := t.TempDir()
	cfg := testutil.Config(t, home, nil)

	got := checkActivationScript(cfg, "linux")
	if got.Status != StatusWarn || !strings.Contains(got.Message, home) {
		t.Fatalf("checkActivationScript() = %+v", got)
	}
}

func TestCheckPTYSpawnFailure(t *testing.T) {
	cfg := testutil.Config(t, t.TempDir(), nil)
	spawner := harness.SpawnerFunc(func(harness.Command, harness.Observer) (harness.Terminal, error) {
		return nil, errors.New("no pty devices")
	})

	got := checkPTY(context.Background(), Options{Config: cfg, Spawner: spawner})
	if got.Status != StatusFail || !strings.Contains(got.Detail, "no pty devices") {
		t.Fatalf("checkPTY() = %+v", got)
	}
}

func TestRunnerOrderAndSummary(t *testing.T) {
	r := &Runner{}
	r.AddCheck("first", func(context.Context) Result { return Result{Status: StatusPass} })
	r.AddCheck("second", func(context.Context) Result { return Result{Status: StatusWarn} })
	r.AddCheck("third", func(context.Context) Result { return Result{Status: StatusFail} })

	results := r.Run(context.Background())
	if len(results) != 3 || results[0].Name != "first" || results[2].Name != "third" {
		t.Fatalf("Run() = %+v", results)
	}

	passed, failed, warnings := Summary(results)
	if passed != 1 || failed != 1 || warnings != 1 {
		t.Fatalf("Summary() = %d, %d, %d", passed, failed, warnings)
	}
}

func TestResultJSON(t *testing.T) {
	data, err := json.Marshal(Result{Name: "Installer binary", Status: StatusFail, Message: "Not found"})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(data), `"status":"fail"`) {
		t.Fatalf("json = %s", data)
	}
}

func TestRender_Golden(t *testing.T) {
	var buf bytes.Buffer

	out := output.NewWriter(&buf, &buf, &output.Terminal{Width: 80, Height: 24, NoColor: true})

	RenderResults([]Result{
		{Name: "Installer binary", Status: StatusPass, Message: "/home/ci/eim-cli/eim"},
		{Name: "Installer version", Status: StatusFail, Message: "idf-im-cli 0.1.3", Detail: "older than expected 0.1.6"},
		{Name: "Pseudo-terminal", Status: StatusPass, Message: "bash (80x30)"},
		{Name: "Activation script", Status: StatusWarn, Message: "Not found: /home/ci/.espressif/activate_idf_v5.4.sh"},
	}, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

	testutil.AssertGolden(t, buf.String(), "render.golden")
}
