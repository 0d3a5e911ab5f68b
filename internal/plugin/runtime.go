package plugin

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DefaultFolder is the virtual folder plugins are loaded from.
const DefaultFolder = "/BD/plugins"

// Unpatcher reverts every interception a caller installed.
// *patcher.Patcher implements it.
type Unpatcher interface {
	UnpatchAll(caller string) int
}

// Config configures a Runtime.
type Config struct {
	// Folder is the plugins folder in Files.
	Folder string

	// Files holds the plugin sources.
	Files Files

	// Registry is the host plugin registry.
	Registry Registry

	// Status persists each plugin's last known enabled state.
	Status StatusStore

	// Notifier shows conversion problems to the user.
	Notifier Notifier

	// Patcher reverts a removed plugin's interceptions. Optional.
	Patcher Unpatcher

	Logger *zap.SugaredLogger
}

// DefaultConfig returns a configuration backed by in-memory collaborators.
// Files must still be set before LoadAll is used.
func DefaultConfig() Config {
	return Config{
		Folder:   DefaultFolder,
		Registry: NewMemRegistry(),
		Status:   NewMemStatus(nil),
		Notifier: NewLogNotifier(nil),
		Logger:   zap.NewNop().Sugar(),
	}
}

// FolderMeta is the host's metadata record for a user plugin.
type FolderMeta struct {
	UserPlugin bool
	FolderName string
}

// EventHandler handles runtime events.
type EventHandler func(event Event)

// Event represents a runtime event.
type Event struct {
	Type   EventType
	Plugin string
	Error  error
}

// EventType is the type of runtime event.
type EventType int

const (
	// EventRegistered is emitted when a plugin is registered with the host.
	EventRegistered EventType = iota
	// EventStarted is emitted when a plugin starts.
	EventStarted
	// EventStopped is emitted when a plugin stops.
	EventStopped
	// EventRemoved is emitted when a plugin is removed.
	EventRemoved
	// EventFailed is emitted when loading or running a plugin fails.
	EventFailed
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventRemoved:
		return "removed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Runtime converts plugin files into descriptors and manages the
// descriptors it registered with the host.
type Runtime struct {
	mu sync.RWMutex

	config      Config
	engines     []Engine
	descriptors []*Descriptor
	meta        map[string]FolderMeta
	handlers    []EventHandler
	log         *zap.SugaredLogger
}

// NewRuntime creates a runtime. Nil collaborators in config are replaced
// by the defaults.
func NewRuntime(config Config, engines ...Engine) *Runtime {
	def := DefaultConfig()
	if config.Folder == "" {
		config.Folder = def.Folder
	}
	if config.Registry == nil {
		config.Registry = def.Registry
	}
	if config.Status == nil {
		config.Status = def.Status
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Notifier == nil {
		config.Notifier = NewLogNotifier(config.Logger)
	}

	return &Runtime{
		config:  config,
		engines: engines,
		meta:    make(map[string]FolderMeta),
		log:     config.Logger,
	}
}

// AddEngine registers an engine for the file suffix it handles.
func (r *Runtime) AddEngine(e Engine) {
	r.mu.Lock()
	r.engines = append(r.engines, e)
	r.mu.Unlock()
}

// Folder returns the plugins folder.
func (r *Runtime) Folder() string {
	return r.config.Folder
}

// Registry returns the host registry.
func (r *Runtime) Registry() Registry {
	return r.config.Registry
}

// Notifier returns the notifier.
func (r *Runtime) Notifier() Notifier {
	return r.config.Notifier
}

func (r *Runtime) engineFor(filename string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Find(r.engines, func(e Engine) bool { return handles(e, filename) })
}

// RegisterDescriptor records d in the plugin metadata table and registers
// it with the host, disabled. If the persisted status says the plugin was
// enabled, it is enabled and started.
func (r *Runtime) RegisterDescriptor(ctx context.Context, d *Descriptor) error {
	name := d.Name()
	reg := r.config.Registry

	r.mu.Lock()
	r.meta[name] = FolderMeta{UserPlugin: true, FolderName: name + "/" + d.filename}
	if err := reg.Register(d); err != nil {
		delete(r.meta, name)
		r.mu.Unlock()
		return err
	}
	r.descriptors = append(r.descriptors, d)
	r.mu.Unlock()

	_ = reg.SetEnabled(name, false)
	d.setState(StateRegistered, nil)
	r.emit(Event{Type: EventRegistered, Plugin: name})

	enabled, known := r.config.Status.Status(name)
	if !known {
		return nil
	}
	if err := reg.SetEnabled(name, enabled); err != nil {
		return err
	}
	if enabled {
		// Start failures are recorded on the descriptor; it stays registered.
		return reg.Start(ctx, name)
	}
	return nil
}

// RemoveAll disables, stops and unregisters every descriptor this runtime
// registered. A stopped plugin keeps the enabled status it had, so it comes
// back on the next load. Failures do not stop the remaining removals.
func (r *Runtime) RemoveAll(ctx context.Context) error {
	r.mu.Lock()
	descriptors := r.descriptors
	r.descriptors = nil
	r.mu.Unlock()

	var errs []error
	for _, d := range descriptors {
		if err := r.remove(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) remove(ctx context.Context, d *Descriptor) (err error) {
	name := d.Name()
	reg := r.config.Registry

	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Join(err, fmt.Errorf("removing %s: panic: %v", name, rec))
		}
		if r.config.Patcher != nil {
			r.config.Patcher.UnpatchAll(name)
		}
		r.mu.Lock()
		delete(r.meta, name)
		r.mu.Unlock()
		reg.Unregister(name)
		d.setState(StateRemoved, err)
		r.emit(Event{Type: EventRemoved, Plugin: name, Error: err})
	}()

	_ = reg.SetEnabled(name, false)
	if d.Started() {
		enabled, _ := r.config.Status.Status(name)
		defer func() {
			if enabled {
				r.setStatus(name, true)
			}
		}()
		if stopErr := reg.Stop(ctx, name); stopErr != nil {
			err = stopErr
		}
	}
	return err
}

// Convert turns plugin source into a descriptor. See the package
// documentation for the steps.
func (r *Runtime) Convert(ctx context.Context, source, filename string, detectDuplicateName bool, sourcePath string) (*Descriptor, error) {
	eng, ok := r.engineFor(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEngine, filename)
	}

	d := newDescriptor(r, filename, sourcePath)
	d.engine = eng.Name()

	meta, err := ParseMeta(source, eng.MetaSyntax())
	if err != nil {
		var me *MetaError
		if errors.As(err, &me) {
			me.File = filename
		}
		r.log.Errorw("Something snapped during parsing of meta", "file", filename, "error", err)
		return nil, err
	}
	d.applyMeta(meta)

	exports, err := eng.Evaluate(ctx, Source{
		Filename: filename,
		Folder:   r.config.Folder,
		Path:     sourcePath,
		Code:     source,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEvaluation, filename, err)
	}

	inst, err := exports.Instantiate(ctx, d.name, d)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstantiation, filename, err)
	}
	d.instance = inst

	if err := d.reconcile(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstantiation, filename, err)
	}

	d.originalName = d.name
	if detectDuplicateName && r.nameTaken(d.name) {
		d.name += "-BD"
	}

	if missing := d.missingFields(); len(missing) > 0 {
		label := lo.Ternary(d.name != "", d.name, d.id)
		r.config.Notifier.Notify(Notice{
			Kind:  KindNotice,
			Title: "Notice",
			Content: fmt.Sprintf("The BD Plugin %s is missing the following metadata below: %s. The plugin could not be started, Please fix.",
				label, upper(missing)),
			Buttons: []string{"Didn't ask ;-)"},
		})
		return nil, &MissingFieldsError{Plugin: label, Fields: missing}
	}

	d.options = d.buildOptions()
	d.setState(StateConverted, nil)
	return d, nil
}

func (d *Descriptor) applyMeta(meta Meta) {
	d.name = meta.Name
	d.id = meta.Name
	if d.id == "" {
		d.id = path.Base(d.filename)
	}
	d.description = meta.Description
	d.authors[0] = meta.Author
	d.fields = meta.Fields
	d.version = meta.Fields["version"]
}

// reconcile runs the instance's load hook and lets its legacy getters
// override the metadata block.
func (d *Descriptor) reconcile(ctx context.Context) error {
	inst := d.instance
	if inst.Has("load") {
		if _, err := inst.Call(ctx, "load"); err != nil {
			return err
		}
	}
	if inst.Has("getName") {
		v, err := inst.Call(ctx, "getName")
		if err != nil {
			return err
		}
		d.name = toString(v)
	}
	if inst.Has("getVersion") {
		v, err := inst.Call(ctx, "getVersion")
		if err != nil {
			return err
		}
		d.version = lo.CoalesceOrEmpty(toString(v), PlaceholderVersion)
	}
	if inst.Has("getDescription") {
		v, err := inst.Call(ctx, "getDescription")
		if err != nil {
			return err
		}
		d.description = toString(v)
	}
	return nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func upper(fields []string) string {
	return strings.ToUpper(strings.Join(fields, ", "))
}

func (r *Runtime) nameTaken(name string) bool {
	if _, ok := r.config.Registry.Lookup(name); ok {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.ContainsBy(r.descriptors, func(d *Descriptor) bool { return d.Name() == name })
}

// LoadAll converts and registers every plugin file in the plugins folder,
// in lexical filename order. A file that fails does not stop the others;
// the failures are joined into the returned error.
func (r *Runtime) LoadAll(ctx context.Context) error {
	if r.config.Files == nil {
		return fmt.Errorf("%w: no plugin files configured", ErrPluginNotFound)
	}

	loader := NewLoader(r.config.Files, r.config.Folder)
	files, err := loader.Discover(r.extensions()...)
	if err != nil {
		return err
	}

	var errs []error
	for _, f := range files {
		if err := r.loadFile(ctx, loader, f); err != nil {
			r.log.Errorw("Failed to load plugin", "file", f, "error", err)
			r.emit(Event{Type: EventFailed, Plugin: f, Error: err})
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) loadFile(ctx context.Context, loader *Loader, filename string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInstantiation, rec)
		}
	}()

	source, err := loader.Read(filename)
	if err != nil {
		return err
	}
	d, err := r.Convert(ctx, source, filename, true, loader.Path(filename))
	if err != nil {
		return err
	}
	return r.RegisterDescriptor(ctx, d)
}

func (r *Runtime) extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.engines, func(e Engine, _ int) string { return e.Extension() })
}

// Reload removes every plugin and loads the plugins folder again.
func (r *Runtime) Reload(ctx context.Context) error {
	return errors.Join(r.RemoveAll(ctx), r.LoadAll(ctx))
}

// Get returns the descriptor with the given name, falling back to a match
// on the original name.
func (r *Runtime) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := lo.Find(r.descriptors, func(d *Descriptor) bool { return d.Name() == name }); ok {
		return d, true
	}
	return lo.Find(r.descriptors, func(d *Descriptor) bool { return d.originalName == name })
}

// List returns the registered descriptors in load order.
func (r *Runtime) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Count returns the number of registered descriptors.
func (r *Runtime) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// Meta returns the metadata table entry for a plugin.
func (r *Runtime) Meta(name string) (FolderMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[name]
	return m, ok
}

// IsEnabled reports whether the host has the plugin enabled.
func (r *Runtime) IsEnabled(name string) bool {
	return r.config.Registry.IsEnabled(name)
}

// Enable enables a registered plugin, starts it and persists the status.
func (r *Runtime) Enable(ctx context.Context, name string) error {
	if err := r.config.Registry.SetEnabled(name, true); err != nil {
		return err
	}
	return r.config.Registry.Start(ctx, name)
}

// Disable disables a registered plugin and stops it.
func (r *Runtime) Disable(ctx context.Context, name string) error {
	if err := r.config.Registry.SetEnabled(name, false); err != nil {
		return err
	}
	if !r.config.Registry.IsStarted(name) {
		r.setStatus(name, false)
		return nil
	}
	return r.config.Registry.Stop(ctx, name)
}

func (r *Runtime) setStatus(name string, enabled bool) {
	if err := r.config.Status.SetStatus(name, enabled); err != nil {
		r.log.Warnw("Could not persist plugin status", "plugin", name, "enabled", enabled, "error", err)
	}
}

// Subscribe registers an event handler and returns a function that
// unregisters it.
func (r *Runtime) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	r.mu.Lock()
	r.handlers = append(r.handlers, handler)
	index := len(r.handlers) - 1
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// Nil out rather than remove so later indexes stay valid.
		if index < len(r.handlers) {
			r.handlers[index] = nil
		}
	}
}

func (r *Runtime) emit(event Event) {
	r.mu.RLock()
	handlers := make([]EventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Warnw("Event handler panicked", "event", event.Type.String(), "panic", rec)
				}
			}()
			handler(event)
		}()
	}
}
