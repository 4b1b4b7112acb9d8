package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/modreg/bootstrap"
)

var (
	installFeatures []string
	featureEnable   bool
	featureDisable  bool
	replayOn        bool
	replayOff       bool
	replayAll       bool
)

var installCmd = &cobra.Command{
	Use:   "install <schema-file>",
	Short: "Schedule a module for installation",
	Example: `  modreg install acme-system.yaml
  modreg install acme-system.yaml -e ntp -e syslog`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.ScheduleInstall(ctx, text, installFeatures)
		})
	},
}

var cancelInstallCmd = &cobra.Command{
	Use:   "cancel-install <module>",
	Short: "Cancel a scheduled installation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.UnscheduleInstall(ctx, args[0])
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <module>",
	Short: "Schedule an installed module for removal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.ScheduleRemoval(ctx, args[0])
		})
	},
}

var cancelRemoveCmd = &cobra.Command{
	Use:   "cancel-remove <module>",
	Short: "Cancel a scheduled removal, along with removals of modules it imports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.UnscheduleRemoval(ctx, args[0])
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <schema-file>",
	Short: "Schedule an update to a newer revision of an installed module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.ScheduleUpdate(ctx, text)
		})
	},
}

var cancelUpdateCmd = &cobra.Command{
	Use:   "cancel-update <module>",
	Short: "Cancel a scheduled update",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.UnscheduleUpdate(ctx, args[0])
		})
	},
}

var featureCmd = &cobra.Command{
	Use:   "feature <module> <feature>",
	Short: "Schedule enabling or disabling a feature",
	Example: `  modreg feature acme-system ntp --enable
  modreg feature acme-system ntp --disable`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.ChangeFeature(ctx, args[0], args[1], featureEnable)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <module> <data-file>",
	Short: "Attach initial configuration to a module scheduled for installation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read data: %w", err)
		}
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.AttachSeedData(ctx, args[0], data)
		})
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay [module]",
	Short: "Turn notification replay support on or off",
	Example: `  modreg replay acme-system --on
  modreg replay --all --off`,
	Args: func(cmd *cobra.Command, args []string) error {
		if replayAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		module := ""
		if !replayAll {
			module = args[0]
		}
		return schedule(cmd, func(ctx context.Context, a *bootstrap.App) error {
			return a.Scheduler.SetReplaySupport(ctx, module, replayOn)
		})
	},
}

func init() {
	rootCmd.AddCommand(installCmd, cancelInstallCmd, removeCmd, cancelRemoveCmd,
		updateCmd, cancelUpdateCmd, featureCmd, seedCmd, replayCmd)

	installCmd.Flags().StringSliceVarP(&installFeatures, "enable-feature", "e", nil, "feature to enable (repeatable)")

	featureCmd.Flags().BoolVar(&featureEnable, "enable", false, "enable the feature")
	featureCmd.Flags().BoolVar(&featureDisable, "disable", false, "disable the feature")
	featureCmd.MarkFlagsMutuallyExclusive("enable", "disable")
	featureCmd.MarkFlagsOneRequired("enable", "disable")

	replayCmd.Flags().BoolVar(&replayOn, "on", false, "turn replay support on")
	replayCmd.Flags().BoolVar(&replayOff, "off", false, "turn replay support off")
	replayCmd.Flags().BoolVar(&replayAll, "all", false, "apply to every installed module")
	replayCmd.MarkFlagsMutuallyExclusive("on", "off")
	replayCmd.MarkFlagsOneRequired("on", "off")
}

func schedule(cmd *cobra.Command, fn func(ctx context.Context, a *bootstrap.App) error) error {
	return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
		if err := fn(ctx, a); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Scheduled. Run 'modreg apply' to apply.")
		return nil
	})
}
