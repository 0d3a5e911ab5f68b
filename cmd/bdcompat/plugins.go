package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPluginsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage plugins",
		Example: `  # List the plugins in the plugins folder
  bdcompat plugins list

  # Enable a plugin; it starts on every later run
  bdcompat plugins enable MyPlugin

  # Download a plugin into the plugins folder
  bdcompat plugins install https://example.com/MyPlugin.plugin.js`,
	}
	cmd.AddCommand(newPluginsListCommand(g))
	cmd.AddCommand(newPluginsToggleCommand(g, true))
	cmd.AddCommand(newPluginsToggleCommand(g, false))
	cmd.AddCommand(newPluginsInstallCommand(g))
	return cmd
}

func newPluginsListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := g.open(false)
			if err != nil {
				return err
			}
			defer l.Close()
			g.start(cmd.Context(), l)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tENGINE\tSTATE\tENABLED\tFILE")
			for _, d := range l.Runtime().List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					d.Name(), d.Version(), d.Engine(), d.State(), l.Runtime().IsEnabled(d.Name()), d.Filename())
			}
			return w.Flush()
		},
	}
}

func newPluginsToggleCommand(g *globals, enable bool) *cobra.Command {
	use, short := "disable", "Disable a plugin"
	if enable {
		use, short = "enable", "Enable a plugin"
	}
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := g.open(false)
			if err != nil {
				return err
			}
			defer l.Close()
			g.start(cmd.Context(), l)

			name := args[0]
			if _, ok := l.Runtime().Get(name); !ok {
				return fmt.Errorf("plugin %q is not loaded", name)
			}
			if enable {
				err = l.Runtime().Enable(cmd.Context(), name)
			} else {
				err = l.Runtime().Disable(cmd.Context(), name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", name, use)
			return nil
		},
	}
}

func newPluginsInstallCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "install URL...",
		Short: "Download plugins into the plugins folder",
		Long: `Download plugins into the plugins folder. A plugin already present is
only replaced when the download declares a newer @version.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := g.open(false)
			if err != nil {
				return err
			}
			defer l.Close()

			folder := l.Runtime().Folder()
			if err := l.FS().MkdirRecursive(folder); err != nil {
				return err
			}
			results, err := l.Remote().Install(cmd.Context(), l.FS(), folder, args)
			for _, r := range results {
				switch {
				case r.Skipped:
					fmt.Fprintf(cmd.OutOrStdout(), "kept %s (installed version is not older than %s)\n", r.Path, r.Version)
				case r.Replaced:
					fmt.Fprintf(cmd.OutOrStdout(), "updated %s to %s\n", r.Path, r.Version)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "installed %s %s\n", r.Path, r.Version)
				}
			}
			return err
		},
	}
}
