package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imdata/internal/config"
	"imdata/internal/deps"
	"imdata/internal/logging"
	"imdata/internal/registered"
	"imdata/internal/services/llm"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var checkLLM bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := false

			fmt.Fprintln(out, renderHeading("Tools", colorize))
			for _, status := range deps.CheckBinaries(registered.Requirements()) {
				level, message := toolCheck(status)
				if level == checkFail {
					failed = true
				}
				fmt.Fprintln(out, renderCheck(status.Command, level, message, colorize))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderHeading("Configuration", colorize))
			configMessage := ctx.configPath
			if !ctx.configExists {
				configMessage += " (not found, using defaults)"
			}
			fmt.Fprintln(out, renderCheck("config", checkInfo, configMessage, colorize))
			for _, dir := range []struct{ label, path string }{
				{"data_dir", cfg.Paths.DataDir},
				{"state_dir", cfg.Paths.StateDir},
			} {
				level, message := dirCheck(dir.path)
				if level == checkFail {
					failed = true
				}
				fmt.Fprintln(out, renderCheck(dir.label, level, message, colorize))
			}
			fmt.Fprintln(out, renderCheck("rb index", fileLevel(cfg.Registered.IndexCSV), cfg.Registered.IndexCSV, colorize))
			if cfg.LLM.APIKey == "" {
				fmt.Fprintln(out, renderCheck("llm api key", checkWarn, "not set; rb extract will refuse to run", colorize))
			} else {
				fmt.Fprintln(out, renderCheck("llm api key", checkOK, "set", colorize))
			}

			if checkLLM {
				level, message := llmCheck(cmd, ctx, cfg)
				if level == checkFail {
					failed = true
				}
				fmt.Fprintln(out, renderCheck("llm endpoint", level, message, colorize))
			}

			if failed {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkLLM, "llm", false, "Also send a small request to the configured model")
	return cmd
}

func toolCheck(status deps.Status) (checkLevel, string) {
	switch {
	case status.Available:
		return checkOK, status.Path
	case status.Optional:
		return checkWarn, status.Description + " unavailable"
	default:
		detail := status.Detail
		if detail == "" {
			detail = "not found in PATH"
		}
		return checkFail, detail
	}
}

func dirCheck(path string) (checkLevel, string) {
	info, err := os.Stat(path)
	if err != nil {
		return checkFail, err.Error()
	}
	if !info.IsDir() {
		return checkFail, path + " is not a directory"
	}
	scratch, err := os.CreateTemp(path, ".imdata-doctor-*")
	if err != nil {
		return checkFail, "not writable: " + path
	}
	name := scratch.Name()
	_ = scratch.Close()
	_ = os.Remove(name)
	return checkOK, path
}

func fileLevel(path string) checkLevel {
	if _, err := os.Stat(filepath.Clean(path)); err != nil {
		return checkWarn
	}
	return checkOK
}

func llmCheck(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) (checkLevel, string) {
	if cfg.LLM.APIKey == "" {
		return checkWarn, "skipped, no api key"
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		logger = logging.NewNop()
	}
	client := llm.NewClient(registered.ClientConfig(cfg), llm.WithLogger(logger))
	if err := client.HealthCheck(cmd.Context()); err != nil {
		return checkFail, err.Error()
	}
	return checkOK, cfg.LLM.Model
}
