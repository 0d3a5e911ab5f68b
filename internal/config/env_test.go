package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	base := Default()
	base.PluginsStatus["A"] = true

	s, err := ApplyEnv(base, []string{
		"HOME=/root",
		"BDCOMPAT_SAFE_MODE=yes",
		"BDCOMPAT_STORAGE=sqlite",
		"BDCOMPAT_STORAGE_PATH=/tmp/fs.db",
		"BDCOMPAT_CORS_PROXY_URL=",
		"BDCOMPAT_REQUEST_POLYFILLS=ON",
		"BDCOMPAT_PLUGIN_URLS=[\"https://a.example/A.plugin.js\", \" \"]",
		"BDCOMPAT_UNKNOWN=whatever",
		"NOT_AN_ASSIGNMENT",
	})
	require.NoError(t, err)
	assert.True(t, s.SafeMode)
	assert.Equal(t, "sqlite", s.Storage)
	assert.Equal(t, "/tmp/fs.db", s.StoragePath)
	assert.Empty(t, s.CorsProxyURL)
	assert.True(t, s.EnableExperimentalRequestPolyfills)
	assert.Equal(t, []string{"https://a.example/A.plugin.js"}, s.PluginURLs)
	assert.Equal(t, map[string]bool{"A": true}, s.PluginsStatus)

	// The input is not modified.
	assert.False(t, base.SafeMode)
	assert.Equal(t, "buntdb", base.Storage)
}

func TestApplyEnvErrors(t *testing.T) {
	_, err := ApplyEnv(Default(), []string{"BDCOMPAT_SAFE_MODE=maybe"})
	assert.ErrorIs(t, err, ErrNotBool)

	_, err = ApplyEnv(Default(), []string{"BDCOMPAT_STORAGE=floppy"})
	assert.ErrorIs(t, err, ErrInvalidStorage)

	_, err = ApplyEnv(Default(), []string{"BDCOMPAT_PLUGIN_URLS=[broken"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "pluginUrls", ve.Key)

	s, err := ApplyEnv(Default(), nil)
	require.NoError(t, err)
	assert.True(t, s.Equal(Default()))
}

func TestSet(t *testing.T) {
	s := Default()
	require.NoError(t, s.Set("pluginUrls", "https://a/A.plugin.js, ,https://b/B.plugin.js"))
	assert.Equal(t, []string{"https://a/A.plugin.js", "https://b/B.plugin.js"}, s.PluginURLs)

	require.NoError(t, s.Set("safeMode", "1"))
	assert.True(t, s.SafeMode)
	require.NoError(t, s.Set("safeMode", "off"))
	assert.False(t, s.SafeMode)

	require.NoError(t, s.Set("logLevel", "debug"))
	assert.Equal(t, "debug", s.LogLevel)

	assert.ErrorIs(t, s.Set("volume", "11"), ErrUnknownKey)
}
