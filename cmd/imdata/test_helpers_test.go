package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliEnv struct {
	configPath string
	dataDir    string
	stateDir   string
	rbDir      string
}

// setupCLIEnv writes a config rooted in a temp dir with quiet logging and
// no LLM key.
func setupCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")

	base := t.TempDir()
	env := cliEnv{
		configPath: filepath.Join(base, "imdata.toml"),
		dataDir:    filepath.Join(base, "data"),
		stateDir:   filepath.Join(base, "state"),
		rbDir:      filepath.Join(base, "rb"),
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
state_dir = %q

[logging]
level = "error"
dir = %q

[registered]
index_csv = %q
extracted_csv = %q
merged_csv = %q
`,
		env.dataDir, env.stateDir, filepath.Join(base, "logs"),
		filepath.Join(env.rbDir, "index.csv"),
		filepath.Join(env.rbDir, "extracted.csv"),
		filepath.Join(env.rbDir, "merged.csv"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substring string) {
	t.Helper()
	if !strings.Contains(output, substring) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", substring, output)
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// stubTools puts executables named after each tool on an otherwise empty PATH.
func stubTools(t *testing.T, names ...string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		writeTestFile(t, filepath.Join(dir, name), "#!/bin/sh\nexit 0\n")
		if err := os.Chmod(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("chmod: %v", err)
		}
	}
	t.Setenv("PATH", dir)
}
