package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallArgs(t *testing.T) {
	tests := []struct {
		name string
		data Data
		want []string
	}{
		{
			name: "empty data",
			data: Data{},
			want: nil,
		},
		{
			name: "full data in fixed order",
			data: Data{
				InstallFolder:  ".espressif2",
				TargetList:     "esp32s2|esp32c6",
				IDFList:        "v5.4|v5.3.2",
				ToolsMirror:    "dl_cn",
				IDFMirror:      "jihulab",
				Recursive:      "true",
				NonInteractive: "false",
			},
			want: []string{
				"-p", "/home/ci/.espressif2",
				"-t", "esp32s2,esp32c6",
				"-i", "v5.4,v5.3.2",
				"-m", "https://dl.espressif.cn/github_assets",
				"--idf-mirror", "https://jihulab.com/esp-mirror",
				"-r", "true",
				"-n", "false",
			},
		},
		{
			name: "mirror urls pass through",
			data: Data{ToolsMirror: "https://example.com/tools"},
			want: []string{"-m", "https://example.com/tools"},
		},
		{
			name: "absolute folder kept",
			data: Data{InstallFolder: "/opt/esp"},
			want: []string{"-p", "/opt/esp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InstallArgs(tt.data, "/home/ci", "linux")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstallArgsUnknownMirror(t *testing.T) {
	_, err := InstallArgs(Data{IDFMirror: "gitee"}, "/home/ci", "linux")
	require.ErrorContains(t, err, `unknown IDF mirror "gitee"`)
}

func TestInstallFolderAndActivationScript(t *testing.T) {
	tests := []struct {
		name       string
		goos       string
		data       Data
		wantFolder string
		wantScript string
	}{
		{
			name:       "unix default",
			goos:       "linux",
			wantFolder: "/home/ci/.espressif",
			wantScript: "/home/ci/.espressif/activate_idf_v5.4.sh",
		},
		{
			name:       "unix custom",
			goos:       "darwin",
			data:       Data{InstallFolder: ".espressif2", IDFList: "v5.3.2|v5.4"},
			wantFolder: "/home/ci/.espressif2",
			wantScript: "/home/ci/.espressif2/activate_idf_v5.3.2.sh",
		},
		{
			name:       "windows default",
			goos:       "windows",
			wantFolder: `C:\esp`,
			wantScript: `C:\esp\v5.4\Microsoft.PowerShell_profile.ps1`,
		},
		{
			name:       "windows absolute",
			goos:       "windows",
			data:       Data{InstallFolder: `D:\idf`},
			wantFolder: `D:\idf`,
			wantScript: `D:\idf\v5.4\Microsoft.PowerShell_profile.ps1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folder := InstallFolder(tt.data, "/home/ci", tt.goos)
			assert.Equal(t, tt.wantFolder, folder)
			assert.Equal(t, tt.wantScript, ActivationScript(folder, tt.data.FirstVersion("v5.4"), tt.goos))
		})
	}
}

func TestDataLists(t *testing.T) {
	d := Data{TargetList: " esp32s3 | esp32 ||", IDFList: ""}

	assert.Equal(t, []string{"esp32s3", "esp32"}, d.Targets())
	assert.Equal(t, "esp32s3", d.FirstTarget())
	assert.Equal(t, "v5.4", d.FirstVersion("v5.4"))
	assert.Equal(t, DefaultTarget, Data{}.FirstTarget())
	assert.False(t, d.RecursiveEnabled())
	assert.True(t, Data{Recursive: "true"}.RecursiveEnabled())
}

func TestParseFormats(t *testing.T) {
	jsonDoc := `[
		{"id": 1, "type": "arguments", "name": "args"},
		{"id": "2", "type": "custom", "name": "custom",
		 "data": {"installFolder": ".esp2", "targetList": "esp32|esp32s3", "recursive": true, "nonInteractive": "false"}}
	]`

	yamlDoc := `
entries:
  - id: 1
    type: arguments
    name: args
  - id: 2
    type: custom
    name: custom
    data:
      installFolder: .esp2
      targetList: esp32|esp32s3
      recursive: true
      nonInteractive: "false"
`

	tomlDoc := `
[[entries]]
id = 1
type = "arguments"
name = "args"

[[entries]]
id = 2
type = "custom"
name = "custom"
[entries.data]
installFolder = ".esp2"
targetList = "esp32|esp32s3"
recursive = true
nonInteractive = "false"
`

	want := []Entry{
		{ID: "1", Name: "args", Type: TypeArguments},
		{ID: "2", Name: "custom", Type: TypeCustom, Data: Data{
			InstallFolder:  ".esp2",
			TargetList:     "esp32|esp32s3",
			Recursive:      "true",
			NonInteractive: "false",
		}},
	}

	for format, doc := range map[Format]string{FormatJSON: jsonDoc, FormatYAML: yamlDoc, FormatTOML: tomlDoc} {
		t.Run(string(format), func(t *testing.T) {
			got, err := Parse([]byte(doc), format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "not a list", doc: `"hello"`, want: "must be a list"},
		{name: "empty", doc: `null`, want: "empty"},
		{name: "missing id", doc: `[{"type": "default"}]`, want: "id is required"},
		{name: "unknown type", doc: `[{"id": 1, "type": "upgrade"}]`, want: `unknown type "upgrade"`},
		{name: "duplicate id", doc: `[{"id": 1, "type": "default"}, {"id": "1", "type": "custom"}]`, want: "duplicate id"},
		{name: "bad flag", doc: `[{"id": 1, "type": "custom", "data": {"recursive": "maybe"}}]`, want: "recursive"},
		{name: "bad mirror", doc: `[{"id": 1, "type": "custom", "data": {"toolsMirror": "ftp"}}]`, want: "unknown tools mirror"},
		{name: "bad timeout", doc: `[{"id": 1, "type": "custom", "data": {"timeout": "soon"}}]`, want: "timeout"},
		{name: "no entries key", doc: `{"tests": []}`, want: `no "entries"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatJSON)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseBuildAndTimeout(t *testing.T) {
	got, err := Parse([]byte(`[{"id": 7, "type": "custom", "data": {"build": "true", "timeout": "45m"}}]`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Data.Build)
	assert.Equal(t, 45*time.Minute, got[0].Data.Timeout)
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nightly.yaml"), []byte("- id: 1\n  type: default\n"), 0o600))

	path, err := Find(dir, "nightly")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nightly.yaml"), path)

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Installation manager default installation", entries[0].Title())

	direct, err := Find("elsewhere", path)
	require.NoError(t, err)
	assert.Equal(t, path, direct)

	_, err = Find(dir, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Find(dir, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFormatFor(t *testing.T) {
	for path, want := range map[string]Format{"a.json": FormatJSON, "a.YML": FormatYAML, "a.yaml": FormatYAML, "a.toml": FormatTOML} {
		got, err := FormatFor(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}

	_, err := FormatFor("a.ini")
	require.Error(t, err)
}

func TestShippedSuitesParse(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("..", "..", "suites", "*"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		t.Run(filepath.Base(path), func(t *testing.T) {
			entries, err := Load(path)
			require.NoError(t, err)
			assert.NotEmpty(t, entries)
		})
	}
}
