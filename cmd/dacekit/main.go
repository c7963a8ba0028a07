// Command dacekit samples designs, merges design sites and fits kriging
// surrogate models from CSV data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dacekit/internal/logging"
	"dacekit/pkg/config"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool
	numCores   int

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "dacekit",
		Short:         "Kriging surrogate modeling toolbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "dacekit.yaml", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().IntVar(&a.numCores, "cores", 0, "Number of CPU cores to use (default: from config)")

	root.AddCommand(
		a.sampleCmd(),
		a.mergeCmd(),
		a.fitCmd(),
		a.selectCmd(),
		a.initConfigCmd(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Output.Verbose = a.verbose
	}
	if a.numCores > 0 {
		cfg.Processing.NumCores = a.numCores
	}
	a.cfg = cfg

	a.logger, err = logging.New(cfg.Output.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger.Debug("configuration loaded", zap.String("path", a.configPath), zap.Int("cores", cfg.Processing.NumCores))
	return nil
}

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Printf("Default configuration written to: %s\n", path)
			return nil
		},
	}
}
