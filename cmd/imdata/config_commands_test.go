package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSampleOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[registered]") {
		t.Fatalf("sample config missing [registered] section")
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsPath(t *testing.T) {
	env := setupCLIEnv(t)

	stdout, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Config path: "+env.configPath)
	requireContains(t, stdout, "LLM api key set: no")
	requireContains(t, stdout, "Configuration valid")
	if _, err := os.Stat(env.stateDir); err != nil {
		t.Fatalf("state dir not created: %v", err)
	}
}

func TestConfigValidateRejectsBadLogLevel(t *testing.T) {
	env := setupCLIEnv(t)

	_, _, err := runCLI(t, []string{"--log-level", "loud", "config", "validate"}, env.configPath)
	if err == nil {
		t.Fatal("expected invalid log level to fail")
	}
}
