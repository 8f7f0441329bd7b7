package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"imdata/internal/config"
	"imdata/internal/deps"
	"imdata/internal/jobrun"
	"imdata/internal/registered"
)

func newRBCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rb",
		Short: "Registered buildings pipeline (download, extract, merge)",
	}
	cmd.AddCommand(newRBDownloadCommand(ctx))
	cmd.AddCommand(newRBExtractCommand(ctx))
	cmd.AddCommand(newRBMergeCommand(ctx))
	return cmd
}

func newRBDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Fetch register PDFs and write one Markdown file per building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if missing := deps.MissingRequired(deps.CheckBinaries(registered.Requirements())); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, status := range missing {
					names = append(names, status.Command)
				}
				return fmt.Errorf("missing required tools: %s (run `imdata doctor`)", strings.Join(names, ", "))
			}

			runCtx, cancel := signalContext(cmd)
			defer cancel()

			return ctx.withRun(func(cfg *config.Config, logger *slog.Logger, runner *jobrun.Runner) error {
				job := registered.NewDownload(registered.DownloadOptions{
					Config: cfg,
					Logger: logger,
					HTTP:   registered.NewPDFClient(cfg, logger),
					Tools:  registered.NewTools(),
				})
				return runner.Run(runCtx, job)
			})
		},
	}
}

func newRBExtractCommand(ctx *commandContext) *cobra.Command {
	var model string
	var maxChars int
	var noValidate bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract structured fields from the OCR text with the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signalContext(cmd)
			defer cancel()

			return ctx.withRun(func(cfg *config.Config, logger *slog.Logger, runner *jobrun.Runner) error {
				if strings.TrimSpace(model) != "" {
					cfg.LLM.Model = strings.TrimSpace(model)
				}
				if maxChars > 0 {
					cfg.Registered.MaxChars = maxChars
				}
				if noValidate {
					cfg.Registered.ValidateSchema = false
				}
				job := registered.NewExtract(registered.ExtractOptions{Config: cfg, Logger: logger})
				return runner.Run(runCtx, job)
			})
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Override llm.model for this run")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Override registered.max_chars for this run")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "Skip JSON schema validation of model answers")
	return cmd
}

func newRBMergeCommand(ctx *commandContext) *cobra.Command {
	var opts registered.MergeOptions

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Join extracted fields onto the index and optionally update the Markdown files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 0 {
				return errors.New("--limit must be zero or positive")
			}
			if !opts.UpdateMarkdown && (opts.Backup || opts.AddCleaned || opts.FillDates) {
				return errors.New("--backup-md, --add-cleaned-section and --fill-missing-dates require --update-md")
			}

			runCtx, cancel := signalContext(cmd)
			defer cancel()

			return ctx.withRun(func(cfg *config.Config, logger *slog.Logger, runner *jobrun.Runner) error {
				merge := opts
				merge.Config = cfg
				merge.Logger = logger
				return runner.Run(runCtx, registered.NewMerge(merge))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.UpdateMarkdown, "update-md", false, "Write extracted details into each Markdown file")
	cmd.Flags().BoolVar(&opts.Backup, "backup-md", false, "Keep a one-time .bak copy before the first rewrite")
	cmd.Flags().BoolVar(&opts.AddCleaned, "add-cleaned-section", false, "Add a \"Cleaned OCR\" section")
	cmd.Flags().BoolVar(&opts.FillDates, "fill-missing-dates", false, "Fill empty date sections from extracted date text")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Only merge the first N index rows (0 = all)")
	return cmd
}
