package config

import (
	"encoding/json"
	"strings"
)

// EnvPrefix starts every environment variable read by ApplyEnv.
const EnvPrefix = "BDCOMPAT_"

// envMapping maps environment variables to settings keys.
var envMapping = map[string]string{
	"BDCOMPAT_CORS_PROXY_URL":    "corsProxyUrl",
	"BDCOMPAT_STORAGE":           "storage",
	"BDCOMPAT_STORAGE_PATH":      "storagePath",
	"BDCOMPAT_SAFE_MODE":         "safeMode",
	"BDCOMPAT_LOG_LEVEL":         "logLevel",
	"BDCOMPAT_REQUEST_POLYFILLS": "enableExperimentalRequestPolyfills",
	"BDCOMPAT_PLUGIN_URLS":       "pluginUrls",
}

// ApplyEnv returns s with the overrides found in environ, given in the
// "KEY=value" form of os.Environ. Unknown BDCOMPAT_ variables are ignored.
// The result is validated.
func ApplyEnv(s Settings, environ []string) (Settings, error) {
	s = s.Clone()
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, ok := envMapping[name]
		if !ok {
			continue
		}
		if err := s.Set(key, value); err != nil {
			return s, err
		}
	}
	return s, s.Validate()
}

// Set assigns one settings key from its string form. Booleans accept
// true/yes/on/1 and false/no/off/0. pluginUrls takes a comma separated
// list or a JSON array.
func (s *Settings) Set(key, value string) error {
	var err error
	switch key {
	case "corsProxyUrl":
		s.CorsProxyURL = value
	case "storage":
		s.Storage = value
	case "storagePath":
		s.StoragePath = value
	case "logLevel":
		s.LogLevel = value
	case "safeMode":
		s.SafeMode, err = parseBool(key, value)
	case "enableExperimentalRequestPolyfills":
		s.EnableExperimentalRequestPolyfills, err = parseBool(key, value)
	case "pluginUrls":
		s.PluginURLs, err = parseList(key, value)
	default:
		err = &ValidationError{Key: key, Value: value, Err: ErrUnknownKey}
	}
	return err
}

func parseBool(key, s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, &ValidationError{Key: key, Value: s, Err: ErrNotBool}
	}
}

func parseList(key, s string) ([]string, error) {
	s = strings.TrimSpace(s)
	var items []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, &ValidationError{Key: key, Value: s, Err: err}
		}
	} else {
		items = strings.Split(s, ",")
	}

	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}
