package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/bdcompat/internal/app"
)

func newRunCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load every plugin and keep them running",
		Long: `Load every plugin in the plugins folder and keep them running until
interrupted. Edits of the settings file are applied while running: a plugin
whose status changes is enabled or disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := g.open(true)
			if err != nil {
				return err
			}
			defer l.Close()

			g.start(cmd.Context(), l)
			g.log.Infow("Running", "plugins", l.Runtime().Count(), "settings", l.Settings().Path())
			<-cmd.Context().Done()
			g.log.Infow("Shutting down")
			return nil
		},
	}
}

// start loads the plugins. Failures of single plugins are only logged.
func (g *globals) start(ctx context.Context, l *app.Layer) {
	err := l.Start(ctx)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrSafeMode):
		g.log.Warnw("Safe mode enabled, no plugin was loaded")
	default:
		g.log.Warnw("Some plugins failed to load", "error", err)
	}
}
