package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellFor(t *testing.T) {
	tests := []struct {
		goos    string
		cmd     string
		markers []string
		source  string
	}{
		{goos: "linux", cmd: "bash", markers: []string{"$", "#"}, source: "source /x/activate\r"},
		{goos: "darwin", cmd: "bash", markers: []string{"$", "#"}, source: "source /x/activate\r"},
		{goos: "windows", cmd: "powershell.exe", markers: []string{">"}, source: ". \"/x/activate\"\r"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			sh := ShellFor(tt.goos)
			assert.Equal(t, tt.cmd, sh.Command)
			assert.Equal(t, tt.markers, sh.PromptMarkers)
			assert.Equal(t, "exit\r", sh.ExitCommand)
			assert.Equal(t, tt.source, sh.SourceLine("/x/activate"))
		})
	}
}

func TestWindowsShellArgs(t *testing.T) {
	assert.Equal(t, []string{"-ExecutionPolicy", "Bypass", "-NoProfile"}, ShellFor("windows").Args)
}

func TestWrapLeavesUnixCommandsAlone(t *testing.T) {
	c := Command{Path: "/home/u/eim-cli/eim", Args: []string{"-V"}}
	assert.Equal(t, c, ShellFor("linux").Wrap(c))
}

func TestWrapWithoutArgs(t *testing.T) {
	wrapped := ShellFor("windows").Wrap(Command{Path: `C:\eim.exe`})
	assert.Equal(t, []string{"-Command", `& 'C:\eim.exe'`}, wrapped.Args)
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "/bin/eim -V\r", ShellFor("linux").CommandLine("/bin/eim", "-V"))
	assert.Equal(t, `& 'C:\eim.exe' --help`+"\r", ShellFor("windows").CommandLine(`C:\eim.exe`, "--help"))
	assert.Equal(t, "ls\r", ShellFor("linux").Line("ls"))
}

func TestPromptReady(t *testing.T) {
	unix := ShellFor("linux")
	win := ShellFor("windows")

	assert.True(t, unix.promptReady("user@host:~$ "))
	assert.True(t, unix.promptReady("\x1b[32muser\x1b[0m$\x1b[0m "))
	assert.True(t, unix.promptReady("root@ci:/work# "))
	assert.False(t, unix.promptReady("Downloading tools..."))
	assert.False(t, unix.promptReady("Selected targets: #1"+"\r\n"+"Downloading"))
	assert.True(t, win.promptReady(`PS C:\Users\u> `))
	assert.False(t, win.promptReady(""))
}

func TestPollChecksImmediately(t *testing.T) {
	calls := 0
	err := poll(t.Context(), time.Hour, time.Hour, func() bool {
		calls++
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPollTimeout(t *testing.T) {
	err := poll(t.Context(), 5*time.Millisecond, 20*time.Millisecond, func() bool { return false })
	require.ErrorIs(t, err, errPollTimeout)
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := poll(ctx, 5*time.Millisecond, time.Second, func() bool { return false })
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleep(t.Context(), 0))
}

func TestRenderScreen(t *testing.T) {
	screen := renderScreen([]byte("Downloading 10%\rDownloading 99%\r\nDone"), 40, 5)
	assert.Equal(t, "Downloading 99%\nDone", screen)
}
