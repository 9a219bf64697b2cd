package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"eim-e2e": func() { os.Exit(run()) },
	})
}

func TestScripts(t *testing.T) {
	suites, err := filepath.Abs(filepath.Join("..", "..", "suites"))
	if err != nil {
		t.Fatal(err)
	}

	testscript.Run(t, testscript.Params{
		Dir: filepath.Join("testdata", "script"),
		Setup: func(env *testscript.Env) error {
			env.Setenv("HOME", env.WorkDir)
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("XDG_STATE_HOME", filepath.Join(env.WorkDir, ".state"))
			env.Setenv("EIM_E2E_SUITE_DIR", suites)
			env.Setenv("EIM_E2E_TRANSCRIPT_DIR", filepath.Join(env.WorkDir, "transcripts"))
			env.Setenv("EIM_E2E_LOG_STDERR", "off")
			env.Setenv("NO_COLOR", "true")
			env.Setenv("CI", "true")

			return nil
		},
	})
}
