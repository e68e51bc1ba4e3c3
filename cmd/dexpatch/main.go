package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/dhamidi/dexpatch/config"
)

var log = commonlog.GetLogger("dexpatch")

// globals holds the flags shared by every command.
type globals struct {
	verbose    int
	logFile    string
	configPath string

	cfg *config.Config
}

func main() {
	if err := newRootCmd(&globals{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(g *globals) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dexpatch",
		Short:         "Find and patch methods in compiled class programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
	}
	rootCmd.PersistentFlags().CountVarP(&g.verbose, "verbose", "v", "increase log verbosity")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to "+config.FileName)

	rootCmd.AddCommand(newPatchCmd(g))
	rootCmd.AddCommand(newFindCmd(g))
	rootCmd.AddCommand(newDumpCmd(g))
	rootCmd.AddCommand(newListCmd(g))

	return rootCmd
}

func (g *globals) setup() error {
	var err error
	if g.configPath != "" {
		g.cfg, err = config.LoadFile(g.configPath)
	} else {
		g.cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}

	verbosity := g.cfg.Log.Verbosity
	if g.verbose > 0 {
		verbosity = g.verbose
	}
	logFile := g.logFile
	if logFile == "" {
		logFile = g.cfg.Path(g.cfg.Log.File)
	}
	if logFile != "" {
		commonlog.Configure(verbosity, &logFile)
	} else {
		commonlog.Configure(verbosity, nil)
	}
	log.Debugf("configuration directory %q", g.cfg.Dir)
	return nil
}
