package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/bdcompat/internal/fetch"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, fetch.DefaultProxy, s.CorsProxyURL)
	assert.Equal(t, "buntdb", s.Storage)
	assert.Equal(t, "info", s.LogLevel)
	assert.NotNil(t, s.PluginsStatus)
	assert.False(t, s.SafeMode)
	assert.False(t, s.EnableExperimentalRequestPolyfills)
	require.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		want   error
	}{
		{"unknown storage", func(s *Settings) { s.Storage = "floppy" }, ErrInvalidStorage},
		{"too many urls", func(s *Settings) { s.PluginURLs = make([]string, MaxPluginURLs+1) }, ErrTooManyURLs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(&s)
			err := s.Validate()
			require.ErrorIs(t, err, tt.want)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	s := Default()
	s.Storage = "dir"
	require.Error(t, s.Validate())
	s.StoragePath = "/tmp/plugins"
	require.NoError(t, s.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	s := Default()
	s.PluginsStatus["A"] = true
	s.PluginURLs = []string{"https://example.com/A.plugin.js"}

	c := s.Clone()
	c.PluginsStatus["A"] = false
	c.PluginURLs[0] = "changed"

	assert.True(t, s.PluginsStatus["A"])
	assert.Equal(t, "https://example.com/A.plugin.js", s.PluginURLs[0])
	assert.False(t, s.Equal(c))
	assert.True(t, s.Equal(s.Clone()))

	var zero Settings
	assert.NotNil(t, zero.Clone().PluginsStatus)
}
