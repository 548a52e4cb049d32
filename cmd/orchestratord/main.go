// Command orchestratord runs the CherryQuant Multi-Agent Strategy
// Orchestrator: it loads configuration, wires every core component, and
// serves an operator-facing HTTP surface alongside the scheduler loop.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cherryquant/orchestrator/internal/config"
	"github.com/cherryquant/orchestrator/internal/logging"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string
	var debug bool

	root := &cobra.Command{
		Use:           "orchestratord",
		Short:         "CherryQuant multi-agent strategy orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default: ~/.config/cherryquant)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	buildApp := func() (*App, error) {
		cfg, err := config.Load(configDir)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		log := logging.NewLogger()
		if debug {
			log = log.Level(zerolog.DebugLevel)
		}
		return NewApp(cfg, log)
	}

	root.AddCommand(newServeCmd(buildApp))
	root.AddCommand(newAgentsCmd(buildApp))

	return root
}
