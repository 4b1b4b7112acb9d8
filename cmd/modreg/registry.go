package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/modreg/bootstrap"
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/registry"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the registry with the built-in modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
			if err := a.Engine.Init(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry created at %s\n", a.Registry.Path())
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed and staged modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
			doc, err := a.Registry.Load()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tREVISION\tFEATURES\tREPLAY\tSCHEDULED")
			for _, m := range doc.Modules {
				replay := "-"
				if since, ok := m.ReplaySince(); ok {
					replay = since.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Name, dash(m.Revision), dash(strings.Join(m.EnabledFeatures, ",")), replay, scheduled(m))
			}
			for _, s := range doc.Installed {
				fmt.Fprintf(w, "%s\t%s\t%s\t-\tinstall\n",
					s.Name, dash(s.Revision), dash(strings.Join(s.EnabledFeatures, ",")))
			}
			return w.Flush()
		})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps <module>",
	Short: "Show the dependencies recorded for an installed module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
			doc, err := a.Registry.Load()
			if err != nil {
				return err
			}
			m := doc.FindModule(args[0])
			if m == nil {
				return errs.New(errs.NotFound, "module %q is not installed", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s@%s\n", m.Name, dash(m.Revision))
			printDeps(cmd, "  data", m.DataDeps)
			for _, op := range m.OpDeps {
				printDeps(cmd, "  "+op.XPath+" input", op.In)
				printDeps(cmd, "  "+op.XPath+" output", op.Out)
			}
			if len(m.InverseDeps) > 0 {
				fmt.Fprintf(out, "  required by: %s\n", strings.Join(m.InverseDeps, ", "))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd, listCmd, depsCmd)
}

func printDeps(cmd *cobra.Command, label string, d registry.Deps) {
	out := cmd.OutOrStdout()
	if len(d.Modules) == 0 && len(d.InstIDs) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", label)
	for _, name := range d.Modules {
		fmt.Fprintf(out, "    module %s\n", name)
	}
	for _, id := range d.InstIDs {
		if id.DefaultModule != "" {
			fmt.Fprintf(out, "    inst-id %s (default in %s)\n", id.XPath, id.DefaultModule)
		} else {
			fmt.Fprintf(out, "    inst-id %s\n", id.XPath)
		}
	}
}

func scheduled(m *registry.Module) string {
	if k := m.Pending(); k != registry.MarkerNone {
		return k.String()
	}
	return "-"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
