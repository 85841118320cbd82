// Command skylink drives a linking session from the terminal: it runs the
// demo scenario and manages saved session snapshots.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"skylink/internal/config"
	"skylink/internal/logger"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// app carries state resolved by the root command for its subcommands.
type app struct {
	configPath string
	logLevel   string
	jsonLogs   bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "skylink",
		Short:         "Cross-viewer data linking and selection sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) { logger.Sync() },
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to skylink.toml (default: nearest skylink.toml)")
	flags.StringVar(&a.logLevel, "log-level", "", "override log.level")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "emit JSON logs")

	root.AddCommand(newDemoCmd(a), newSessionsCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.jsonLogs {
		cfg.Log.JSON = true
	}
	if err := logger.Initialize(logger.Options{JSON: cfg.Log.JSON, Level: cfg.Log.Level}); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
