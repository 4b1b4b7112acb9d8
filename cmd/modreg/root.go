package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/modreg/bootstrap"
	"github.com/artpar/modreg/config"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "modreg",
	Short: "Module registry and scheduled change engine",
	Long: `modreg keeps the registry of installed data-model modules.

Changes are scheduled first and take effect on the next apply, which
checks dependencies and migrates stored configuration data.

Quick start:
  modreg init                    # Create the registry with built-in modules
  modreg install acme.yaml -e x  # Schedule a module install
  modreg apply                   # Apply scheduled changes`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path")
}

// withApp loads configuration, wires the repository and runs fn against it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *bootstrap.App) error) (err error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	a, err := bootstrap.New(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), a)
}
