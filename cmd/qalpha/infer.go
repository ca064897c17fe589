package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/operator-framework/qalpha/internal/config"
	"github.com/operator-framework/qalpha/internal/fixpoint"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/smt"
)

// newInferCmd builds the `qalpha infer` subcommand: load a typed module
// fixture and a run configuration, then drive the fixpoint search to a
// safe invariant or an exhausted schedule, reporting the result the way
// FoundFixpoint::report does. configPath, resolved by main before the
// flag set is built, seeds cfg's defaults so every other flag registered
// below already carries the file's values unless overridden on the CLI.
func newInferCmd(logger *log.Logger, configPath string) *cobra.Command {
	cfg, err := config.Load(configPath)

	var (
		modulePath     string
		teeDir         string
		printInvariant bool
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "search for an inductive invariant over a typed module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			entry := log.NewEntry(logger)

			if err := smt.EnsureTeeDir(teeDir); err != nil {
				return err
			}

			typed, err := module.LoadTyped(modulePath)
			if err != nil {
				return err
			}

			mainSolver, err := fixpoint.MainSolver(cfg)
			if err != nil {
				return err
			}
			simSolver := fixpoint.SimSolver(cfg)

			m := module.New(typed, mainSolver, entry, teeDir)
			simModule := module.New(typed, simSolver, entry, teeDir)

			result, err := fixpoint.Run(cmd.Context(), &cfg, m, simModule, entry)
			if err != nil {
				return err
			}
			result.Report(entry, printInvariant)
			if !result.Safe {
				cmd.SilenceUsage = true
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configPath, "config", "c", configPath, "path to a YAML run configuration")
	cfg.BindFlags(fs)
	fs.StringVar(&modulePath, "module", "", "path to a typed module JSON fixture")
	fs.StringVar(&teeDir, "tee-dir", "", "directory to log every SMT-LIB query to, empty to disable")
	fs.BoolVar(&printInvariant, "print-invariant", false, "log every discovered lemma at debug level")
	_ = cmd.MarkFlagRequired("module")
	_ = fs.MarkHidden("config") // already consumed by main's early scan; hidden from --help and kept registered only so re-parsing doesn't error

	return cmd
}
