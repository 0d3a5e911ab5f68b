package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a settings file encoding.
type Format int

// Supported formats.
const (
	FormatTOML Format = iota
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads settings from path on top of the defaults. A missing file
// is not an error.
func Load(path string) (Settings, error) {
	s := Default()
	format, err := FormatOf(path)
	if err != nil {
		return s, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := Decode(format, path, data, &s); err != nil {
		return Default(), err
	}
	if s.PluginsStatus == nil {
		s.PluginsStatus = make(map[string]bool)
	}
	return s, nil
}

// Decode parses data onto s. source names the data in errors.
func Decode(format Format, source string, data []byte, s *Settings) error {
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, s); err != nil {
			pe := &ParseError{Path: source, Message: err.Error(), Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				pe.Line, pe.Column = derr.Position()
			}
			return pe
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, s); err != nil {
			return &ParseError{Path: source, Message: err.Error(), Err: err}
		}
	default:
		return ErrUnknownFormat
	}
	return nil
}

// Encode serializes s.
func Encode(format Format, s Settings) ([]byte, error) {
	switch format {
	case FormatTOML:
		return toml.Marshal(s)
	case FormatYAML:
		return yaml.Marshal(s)
	default:
		return nil, ErrUnknownFormat
	}
}

// Save writes s to path atomically: the new content goes to a temporary
// file in the same directory which then replaces path.
func Save(path string, s Settings) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Encode(format, s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
