// Command qalpha runs the inductive-invariant inference engine against a
// typed transition-system module, discharging counterexample queries to an
// external SMT solver subprocess.
//
// Grounded on cmd/operator-cli's cobra root-command wiring and
// cmd/olm/main.go's logging/metrics bootstrap.
package main

import (
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/operator-framework/qalpha/internal/metrics"
)

var buildVersion = "dev"

func main() {
	logger := log.New()

	var debug bool
	var metricsAddr string

	rootCmd := &cobra.Command{
		Use:   "qalpha",
		Short: "qalpha",
		Long:  `qalpha searches for inductive first-order invariants over a typed transition system.`,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logger.SetLevel(log.DebugLevel)
			}
			if metricsAddr != "" {
				metrics.Register()
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				go func() {
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						logger.WithError(err).Error("qalpha: metrics server stopped")
					}
				}()
			}
			return nil
		},
	}

	fs := pflag.NewFlagSet("qalpha", pflag.ExitOnError)
	fs.BoolVar(&debug, "debug", false, "enable debug logging")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on, empty to disable")
	rootCmd.PersistentFlags().AddFlagSet(fs)

	// --config is resolved by a plain scan of os.Args ahead of the normal
	// cobra/pflag parse, the same "read one flag early" trick kubectl uses
	// for --kubeconfig: it lets a YAML file's values seed the defaults that
	// the rest of the flag set is bound against, so the precedence ends up
	// built-in defaults < file < explicit flags with a single pflag pass.
	rootCmd.AddCommand(newInferCmd(logger, configPathFromArgs(os.Args[1:])))
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPathFromArgs scans for a --config/-c flag's value without invoking
// the full pflag parser, since the config file must be loaded before the
// rest of the flags it seeds are even registered.
func configPathFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(a) > len("--config=") && a[:len("--config=")] == "--config=":
			return a[len("--config="):]
		}
	}
	return ""
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the qalpha version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(buildVersion)
			return nil
		},
	}
}
