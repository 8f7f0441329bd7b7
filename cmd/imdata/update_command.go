package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"imdata/internal/companies"
	"imdata/internal/config"
	"imdata/internal/fetch"
	"imdata/internal/footprints"
	"imdata/internal/jobrun"
	"imdata/internal/landtx"
	"imdata/internal/osm"
	"imdata/internal/planning"
	"imdata/internal/prompt"
)

type updateFlags struct {
	companies  bool
	landtx     bool
	planning   bool
	osm        bool
	footprints bool

	companiesDownload  bool
	companiesDetails   bool
	landtxDownload     bool
	planningDownload   bool
	osmDownload        bool
	footprintsDownload bool

	yes     bool
	noInput bool
}

// selected reports whether any dataset selector was given; none means all.
func (f updateFlags) selected() bool {
	return f.companies || f.landtx || f.planning || f.osm || f.footprints
}

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var flags updateFlags

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh datasets (all of them unless some are selected)",
		Long: `Refresh datasets under the data directory.

With no selector every dataset is refreshed in a fixed order. A failing
dataset is logged and the others still run; the command exits non-zero
when any of them failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signalContext(cmd)
			defer cancel()

			return ctx.withRun(func(cfg *config.Config, logger *slog.Logger, runner *jobrun.Runner) error {
				jobs := buildUpdateJobs(cfg, logger, flags)
				if err := runner.RunAll(runCtx, jobs...); err != nil {
					return fmt.Errorf("update failed: %w", err)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.companies, "companies", false, "Refresh the companies registry dataset")
	f.BoolVar(&flags.landtx, "land-transactions", false, "Refresh the land transactions dataset")
	f.BoolVar(&flags.planning, "planning-applications", false, "Refresh the planning applications dataset")
	f.BoolVar(&flags.osm, "openstreetmap", false, "Refresh the OpenStreetMap extracts")
	f.BoolVar(&flags.footprints, "global-ml-building-footprints", false, "Refresh the building footprints dataset")

	f.BoolVar(&flags.companiesDownload, "companies-download", false, "Download registry search pages without asking")
	f.BoolVar(&flags.companiesDetails, "companies-details", false, "Download missing company detail pages without asking")
	f.BoolVar(&flags.landtxDownload, "land-transactions-download", false, "Download the land transactions source without asking")
	f.BoolVar(&flags.planningDownload, "planning-applications-download", false, "Download every yearly planning file without asking")
	f.BoolVar(&flags.osmDownload, "openstreetmap-download", false, "Run the Overpass queries without asking")
	f.BoolVar(&flags.footprintsDownload, "global-ml-building-footprints-download", false, "Download the footprint tiles without asking")

	f.BoolVarP(&flags.yes, "yes", "y", false, "Answer yes to every download question")
	f.BoolVar(&flags.noInput, "no-input", false, "Never ask; treat every download question as no")

	return cmd
}

func buildUpdateJobs(cfg *config.Config, logger *slog.Logger, flags updateFlags) []jobrun.Job {
	client := fetch.NewFromConfig(cfg, logger)
	asker := prompt.New(prompt.ModeFromFlags(flags.yes, flags.noInput), prompt.WithLogger(logger))
	all := !flags.selected()

	var jobs []jobrun.Job
	if all || flags.companies {
		jobs = append(jobs, companies.New(companies.Options{
			Config:       cfg,
			Logger:       logger,
			HTTP:         client,
			Asker:        asker,
			ForceSearch:  flags.companiesDownload,
			ForceDetails: flags.companiesDetails,
		}))
	}
	if all || flags.landtx {
		jobs = append(jobs, landtx.New(landtx.Options{
			Config:        cfg,
			Logger:        logger,
			HTTP:          client,
			Asker:         asker,
			ForceDownload: flags.landtxDownload,
		}))
	}
	if all || flags.planning {
		jobs = append(jobs, planning.New(planning.Options{
			Config:        cfg,
			Logger:        logger,
			HTTP:          client,
			Asker:         asker,
			ForceDownload: flags.planningDownload,
		}))
	}
	if all || flags.osm {
		jobs = append(jobs, osm.New(osm.Options{
			Config:        cfg,
			Logger:        logger,
			HTTP:          client,
			Asker:         asker,
			ForceDownload: flags.osmDownload,
		}))
	}
	if all || flags.footprints {
		jobs = append(jobs, footprints.New(footprints.Options{
			Config:        cfg,
			Logger:        logger,
			HTTP:          client,
			Asker:         asker,
			ForceDownload: flags.footprintsDownload,
		}))
	}
	return jobs
}
