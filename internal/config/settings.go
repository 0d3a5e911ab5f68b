package config

import (
	"errors"
	"maps"
	"slices"

	"github.com/dshills/bdcompat/internal/fetch"
	"github.com/dshills/bdcompat/internal/vfs"
)

// MaxPluginURLs is how many remote plugins can be configured.
const MaxPluginURLs = 4

// Settings is the persisted configuration of the compatibility layer.
type Settings struct {
	// PluginsStatus maps a plugin name to whether it was last enabled.
	PluginsStatus map[string]bool `toml:"pluginsStatus" yaml:"pluginsStatus"`

	// EnableExperimentalRequestPolyfills lets plugins fetch through the
	// CORS proxy fallback.
	EnableExperimentalRequestPolyfills bool `toml:"enableExperimentalRequestPolyfills" yaml:"enableExperimentalRequestPolyfills"`

	// CorsProxyURL is prefixed to a URL when a direct request fails.
	CorsProxyURL string `toml:"corsProxyUrl" yaml:"corsProxyUrl"`

	// Storage selects the filesystem backend.
	Storage string `toml:"storage" yaml:"storage"`

	// StoragePath is the database file or directory of the backend.
	StoragePath string `toml:"storagePath" yaml:"storagePath"`

	// SafeMode loads the filesystem but no plugins.
	SafeMode bool `toml:"safeMode" yaml:"safeMode"`

	// PluginURLs are remote plugins downloaded at startup.
	PluginURLs []string `toml:"pluginUrls" yaml:"pluginUrls"`

	// LogLevel is one of debug, info, warn and error.
	LogLevel string `toml:"logLevel" yaml:"logLevel"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		PluginsStatus: make(map[string]bool),
		CorsProxyURL:  fetch.DefaultProxy,
		Storage:       vfs.KindBunt,
		LogLevel:      "info",
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.PluginsStatus = maps.Clone(s.PluginsStatus)
	if c.PluginsStatus == nil {
		c.PluginsStatus = make(map[string]bool)
	}
	c.PluginURLs = slices.Clone(s.PluginURLs)
	return c
}

// Equal reports whether two settings hold the same values.
func (s Settings) Equal(o Settings) bool {
	return s.EnableExperimentalRequestPolyfills == o.EnableExperimentalRequestPolyfills &&
		s.CorsProxyURL == o.CorsProxyURL &&
		s.Storage == o.Storage &&
		s.StoragePath == o.StoragePath &&
		s.SafeMode == o.SafeMode &&
		s.LogLevel == o.LogLevel &&
		maps.Equal(s.PluginsStatus, o.PluginsStatus) &&
		slices.Equal(s.PluginURLs, o.PluginURLs)
}

// Validate checks the settings and returns every problem found.
func (s Settings) Validate() error {
	var errs []error
	switch s.Storage {
	case vfs.KindMemory, vfs.KindBunt, vfs.KindSQLite, vfs.KindDir:
	default:
		errs = append(errs, &ValidationError{Key: "storage", Value: s.Storage, Err: ErrInvalidStorage})
	}
	if s.Storage == vfs.KindDir && s.StoragePath == "" {
		errs = append(errs, &ValidationError{Key: "storagePath", Value: s.StoragePath, Err: errors.New("required by the dir backend")})
	}
	if len(s.PluginURLs) > MaxPluginURLs {
		errs = append(errs, &ValidationError{Key: "pluginUrls", Value: len(s.PluginURLs), Err: ErrTooManyURLs})
	}
	return errors.Join(errs...)
}
