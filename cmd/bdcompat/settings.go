package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/bdcompat/internal/config"
)

func newSettingsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the settings file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the settings with the environment overrides applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(g.configPath)
			if err != nil {
				return err
			}
			effective, err := config.ApplyEnv(store.Settings(), os.Environ())
			if err != nil {
				return err
			}
			data, err := config.Encode(config.FormatTOML, effective)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Long: `Change one setting. KEY is one of corsProxyUrl, storage, storagePath,
safeMode, logLevel, enableExperimentalRequestPolyfills and pluginUrls.
Booleans accept true/yes/on/1 and false/no/off/0. pluginUrls takes a comma
separated list or a JSON array.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Open(g.configPath)
			if err != nil {
				return err
			}
			var setErr error
			err = store.Update(func(s *config.Settings) {
				setErr = s.Set(args[0], args[1])
			})
			if setErr != nil {
				return setErr
			}
			return err
		},
	})
	return cmd
}
