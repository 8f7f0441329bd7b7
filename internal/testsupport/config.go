package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"imdata/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a normalized config rooted in a per-test temp directory
// with every politeness delay and retry wait set to zero.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.HTTP.Retries = 0
	cfgVal.HTTP.RetryWaitSeconds = 0
	cfgVal.HTTP.TimeoutSeconds = 10
	cfgVal.Companies.PageDelaySeconds = 0
	cfgVal.Companies.DetailsDelaySeconds = 0
	cfgVal.Registered.DelayMinSeconds = 0
	cfgVal.Registered.DelayMaxSeconds = 0
	cfgVal.Registered.Retries = 0
	cfgVal.LLM.APIKey = "test"
	cfgVal.LLM.DelayMinSeconds = 0
	cfgVal.LLM.DelayMaxSeconds = 0
	cfgVal.LLM.BackoffBaseSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Normalize(); err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	return builder.cfg
}

// With applies an arbitrary mutation before normalization.
func With(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// WithStubbedBinaries writes executables for the provided names and prepends
// them to PATH. Each stub runs script (a /bin/sh body); an empty script exits 0.
// If names is empty, the PDF toolchain is stubbed.
func WithStubbedBinaries(script string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ocrmypdf", "pdftotext", "pdfimages"}
		}
		if script == "" {
			script = "exit 0"
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		body := []byte("#!/bin/sh\n" + script + "\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, body, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
