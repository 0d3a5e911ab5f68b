package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/bdcompat/internal/app"
	"github.com/dshills/bdcompat/internal/config"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath  string
	storage     string
	storagePath string
	logLevel    string
	safeMode    bool
	debug       bool

	log *zap.SugaredLogger
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "bdcompat",
		Short: "BetterDiscord compatibility layer",
		Long: `bdcompat loads BetterDiscord plugins written in JavaScript or Lua,
keeps their enabled state in a settings file and manages the virtual
filesystem the plugins live in.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := g.logLevel
			if !cmd.Flags().Changed("log-level") && g.configPath != "" {
				if s, err := config.Load(g.configPath); err == nil {
					if s, err = config.ApplyEnv(s, os.Environ()); err == nil && s.LogLevel != "" {
						level = s.LogLevel
					}
				}
			}
			log, err := app.NewLogger(level, g.debug)
			if err != nil {
				return err
			}
			g.log = log
			zap.ReplaceGlobals(log.Desugar())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.log != nil {
				_ = g.log.Sync()
			}
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nCommit: %s\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		commit, date, goVersion(), runtime.GOOS, runtime.GOARCH))

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", defaultConfigPath(), "Settings file (.toml, .yaml or .yml)")
	flags.StringVar(&g.storage, "storage", "", "Filesystem backend override: memory, buntdb, sqlite or dir")
	flags.StringVar(&g.storagePath, "storage-path", "", "Database file or directory of the backend override")
	flags.StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.BoolVar(&g.safeMode, "safe-mode", false, "Do not load any plugin")
	flags.BoolVar(&g.debug, "debug", false, "Human readable log output")

	root.AddCommand(newRunCommand(g))
	root.AddCommand(newPluginsCommand(g))
	root.AddCommand(newFSCommand(g))
	root.AddCommand(newSettingsCommand(g))
	return root
}

// open creates the layer from the persistent flags.
func (g *globals) open(watch bool) (*app.Layer, error) {
	return app.New(app.Options{
		ConfigPath:  g.configPath,
		Storage:     g.storage,
		StoragePath: g.storagePath,
		SafeMode:    g.safeMode,
		Watch:       watch,
		Env:         os.Environ(),
		Logger:      g.log,
	})
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bdcompat", "settings.toml")
}

func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
