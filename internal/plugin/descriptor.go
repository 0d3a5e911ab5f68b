package plugin

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// PlaceholderVersion is the version reported by a plugin whose getVersion
// returns nothing.
const PlaceholderVersion = "6.6.6"

// Option is one row of a plugin's settings panel.
type Option struct {
	// Key identifies the row, such as "versionLabel" or "openSettings".
	Key string

	// Label is the row caption.
	Label string

	// Value is the displayed text or link target.
	Value string

	// URL is set when Value is a link.
	URL bool

	// Action is set for the row that opens the plugin's own settings panel.
	Action bool

	// Disabled is set when the action cannot run.
	Disabled bool
}

// Descriptor is a converted plugin: its metadata, its instance and the
// lifecycle hooks the host registry drives.
type Descriptor struct {
	mu sync.RWMutex

	id           string
	name         string
	originalName string
	version      string
	description  string
	authors      []Author
	fields       map[string]string
	filename     string
	sourcePath   string
	engine       string
	options      []Option
	instance     Instance
	started      bool
	state        State
	err          error

	rt *Runtime
}

func newDescriptor(rt *Runtime, filename, sourcePath string) *Descriptor {
	return &Descriptor{
		rt:         rt,
		filename:   filename,
		sourcePath: sourcePath,
		authors:    []Author{{}},
		fields:     make(map[string]string),
		state:      StateUnloaded,
	}
}

// ID returns the plugin id.
func (d *Descriptor) ID() string { return d.id }

// Name returns the plugin name, unique among registered plugins.
func (d *Descriptor) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// OriginalName returns the name before duplicate suffixing.
func (d *Descriptor) OriginalName() string { return d.originalName }

// Version returns the plugin version.
func (d *Descriptor) Version() string { return d.version }

// Description returns the plugin description.
func (d *Descriptor) Description() string { return d.description }

// Authors returns the plugin authors.
func (d *Descriptor) Authors() []Author {
	out := make([]Author, len(d.authors))
	copy(out, d.authors)
	return out
}

// Filename returns the base name of the plugin file.
func (d *Descriptor) Filename() string { return d.filename }

// SourcePath returns where the plugin source came from.
func (d *Descriptor) SourcePath() string { return d.sourcePath }

// Engine returns the name of the engine that evaluated the plugin.
func (d *Descriptor) Engine() string { return d.engine }

// Field returns a generic metadata entry such as "invite" or "website".
func (d *Descriptor) Field(key string) string { return d.fields[key] }

// Fields returns a copy of the generic metadata entries.
func (d *Descriptor) Fields() map[string]string { return maps.Clone(d.fields) }

// Options returns the settings panel rows.
func (d *Descriptor) Options() []Option {
	out := make([]Option, len(d.options))
	copy(out, d.options)
	return out
}

// Instance returns the instantiated plugin object.
func (d *Descriptor) Instance() Instance { return d.instance }

// Started reports whether the plugin is running.
func (d *Descriptor) Started() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.started
}

// State returns the lifecycle state.
func (d *Descriptor) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Err returns the error of the last failed lifecycle call.
func (d *Descriptor) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

func (d *Descriptor) setState(s State, err error) {
	d.mu.Lock()
	d.state = s
	d.err = err
	d.mu.Unlock()
}

// Start records the plugin as enabled in the persisted status map, then
// runs the instance's start method.
func (d *Descriptor) Start(ctx context.Context) error {
	name := d.Name()
	d.rt.setStatus(name, true)

	if _, err := d.instance.Call(ctx, "start"); err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStartFailed, name, err)
		d.setState(StateError, err)
		d.rt.emit(Event{Type: EventFailed, Plugin: name, Error: err})
		return err
	}

	d.mu.Lock()
	d.started = true
	d.state = StateStarted
	d.err = nil
	d.mu.Unlock()
	d.rt.emit(Event{Type: EventStarted, Plugin: name})
	return nil
}

// Stop records the plugin as disabled in the persisted status map, then
// runs the instance's stop method. The plugin counts as stopped even when
// its stop method fails.
func (d *Descriptor) Stop(ctx context.Context) error {
	name := d.Name()
	d.rt.setStatus(name, false)

	_, err := d.instance.Call(ctx, "stop")

	d.mu.Lock()
	d.started = false
	d.state = StateStopped
	d.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStopFailed, name, err)
		d.setState(StateError, err)
		d.rt.emit(Event{Type: EventFailed, Plugin: name, Error: err})
		return err
	}
	d.rt.emit(Event{Type: EventStopped, Plugin: name})
	return nil
}

// HasSettingsPanel reports whether the instance provides a settings panel.
func (d *Descriptor) HasSettingsPanel() bool {
	return d.instance != nil && d.instance.Has("getSettingsPanel")
}

// SettingsPanel renders the instance's settings panel as text. String
// panels are returned as is; anything else is formatted with %v.
func (d *Descriptor) SettingsPanel(ctx context.Context) (string, error) {
	if !d.HasSettingsPanel() {
		return "", fmt.Errorf("%w: %s has no settings panel", ErrPluginNotFound, d.Name())
	}
	panel, err := d.instance.Call(ctx, "getSettingsPanel")
	if err != nil {
		return "", err
	}
	if s, ok := panel.(string); ok {
		return s, nil
	}
	if panel == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", panel), nil
}

func (d *Descriptor) missingFields() []string {
	var missing []string
	if d.name == "" {
		missing = append(missing, "name")
	}
	if d.version == "" {
		missing = append(missing, "version")
	}
	if d.description == "" {
		missing = append(missing, "description")
	}
	return missing
}

// buildOptions synthesizes the settings rows from the metadata.
func (d *Descriptor) buildOptions() []Option {
	opts := []Option{{Key: "versionLabel", Label: "Version", Value: d.version}}

	link := func(key, label, value string) {
		if value != "" {
			opts = append(opts, Option{Key: key, Label: label, Value: value, URL: true})
		}
	}
	if invite := d.fields["invite"]; invite != "" {
		link("inviteLabel", "Author's Server", "https://discord.gg/"+invite)
	}
	link("sourceLabel", "Plugin Source", d.fields["source"])
	link("websiteLabel", "Plugin's Website", d.fields["website"])
	link("authorLabel", "Author's Website", d.fields["authorLink"])
	link("donateLabel", "Author's Donation", d.fields["donate"])
	link("patreonLabel", "Author's Patreon", d.fields["patreon"])
	if len(d.authors) > 0 && d.authors[0].Name != "" {
		opts = append(opts, Option{Key: "authorsLabel", Label: "Author", Value: d.authors[0].Name})
	}

	return append(opts, Option{
		Key:      "openSettings",
		Label:    "Open settings",
		Action:   true,
		Disabled: !d.HasSettingsPanel(),
	})
}
