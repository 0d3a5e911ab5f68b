package patcher

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dshills/bdcompat/internal/module"
)

// Target is anything with method slots that can be intercepted.
// Implementations must be comparable; pointer types are the norm.
type Target interface {
	// Method returns the method in the named slot, or nil.
	Method(name string) *module.Method

	// SetMethod installs m in the named slot.
	SetMethod(name string, m *module.Method)
}

// Identifier is implemented by targets that are views of some other value.
// Two targets with equal identities share patches.
type Identifier interface {
	Identity() any
}

// Resolver finds targets by symbolic name or by property set.
// *module.Registry implements it.
type Resolver interface {
	Lookup(name string) (*module.Object, bool)
	FindByUniqueProperties(props []string, first bool) []*module.Object
}

type named interface {
	Name() string
}

// occupant is implemented by targets whose method slots may hold plain
// values. Occupied reports a value that is set and not empty.
type occupant interface {
	Occupied(key string) bool
}

type valueHolder interface {
	Get(key string) (any, bool)
}

// occupied reports whether the slot holds a non-empty value that is not a
// method. Empty values (nil, Null, false, zero, "") are replaced when
// force patching.
func occupied(t Target, key string) bool {
	switch h := t.(type) {
	case occupant:
		return h.Occupied(key)
	case valueHolder:
		v, ok := h.Get(key)
		return ok && v != nil && !IsNull(v) && !reflect.ValueOf(v).IsZero()
	}
	return false
}

// Patcher intercepts method calls on shared targets on behalf of many
// independent callers.
type Patcher struct {
	mu       sync.Mutex
	patches  []*Patch
	resolver Resolver
	log      *zap.SugaredLogger
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithResolver sets the resolver used for string and []string targets.
func WithResolver(r Resolver) Option {
	return func(p *Patcher) {
		p.resolver = r
	}
}

// WithLogger sets the logger that receives subscriber errors.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Patcher) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Patcher.
func New(opts ...Option) *Patcher {
	p := &Patcher{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type patchConfig struct {
	displayName string
	force       bool
}

// PatchOption configures a single subscription.
type PatchOption func(*patchConfig)

// WithDisplayName sets the name used in the patch id.
func WithDisplayName(name string) PatchOption {
	return func(c *patchConfig) {
		c.displayName = name
	}
}

// WithoutForce refuses to patch a method that does not exist yet.
func WithoutForce() PatchOption {
	return func(c *patchConfig) {
		c.force = false
	}
}

// Before runs cb ahead of every call to target.method.
func (p *Patcher) Before(caller string, target any, method string, cb BeforeFunc, opts ...PatchOption) (Unpatch, error) {
	if cb == nil {
		return noop, ErrNoCallback
	}
	sub, err := p.subscribe(caller, target, method, &Subscription{phase: Before, before: cb}, opts)
	if err != nil {
		return noop, err
	}
	return sub.unpatch, nil
}

// Instead runs cb in place of target.method.
func (p *Patcher) Instead(caller string, target any, method string, cb InsteadFunc, opts ...PatchOption) (Unpatch, error) {
	if cb == nil {
		return noop, ErrNoCallback
	}
	sub, err := p.subscribe(caller, target, method, &Subscription{phase: Instead, instead: cb}, opts)
	if err != nil {
		return noop, err
	}
	return sub.unpatch, nil
}

// After runs cb once target.method has produced a return value.
func (p *Patcher) After(caller string, target any, method string, cb AfterFunc, opts ...PatchOption) (Unpatch, error) {
	if cb == nil {
		return noop, ErrNoCallback
	}
	sub, err := p.subscribe(caller, target, method, &Subscription{phase: After, after: cb}, opts)
	if err != nil {
		return noop, err
	}
	return sub.unpatch, nil
}

// Resolve turns a target reference into a Target. A Target is used as is, a
// string is looked up by alias and a []string by unique properties.
func (p *Patcher) Resolve(ref any) (Target, error) {
	switch v := ref.(type) {
	case *module.Object:
		if v != nil {
			return v, nil
		}
	case Target:
		if v != nil {
			return v, nil
		}
	case string:
		if p.resolver != nil {
			if o, ok := p.resolver.Lookup(v); ok {
				return o, nil
			}
		}
	case []string:
		if p.resolver != nil {
			if found := p.resolver.FindByUniqueProperties(v, true); len(found) > 0 {
				return found[0], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTargetNotFound, ref)
}

func (p *Patcher) subscribe(caller string, ref any, method string, sub *Subscription, opts []PatchOption) (*Subscription, error) {
	cfg := patchConfig{force: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	target, err := p.Resolve(ref)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	patch := p.lookup(target, method)
	if patch == nil {
		patch, err = p.install(target, method, cfg)
		if err != nil {
			return nil, err
		}
	}

	sub.id = patch.counter
	sub.caller = caller
	sub.patch = patch
	sub.unpatch = sync.OnceFunc(func() { p.remove(sub) })
	patch.counter++
	patch.children = append(patch.children, sub)
	return sub, nil
}

// install creates the patch for (target, method). Callers hold p.mu.
func (p *Patcher) install(target Target, method string, cfg patchConfig) (*Patch, error) {
	original := target.Method(method)
	if original == nil {
		if occupied(target, method) {
			return nil, fmt.Errorf("%w: %s", ErrNotFunction, method)
		}
		if !cfg.force {
			return nil, fmt.Errorf("%w: %s", ErrNotFunction, method)
		}
		original = module.NewMethod(func(any, []any) any { return nil })
		target.SetMethod(method, original)
	}

	name := cfg.displayName
	if name == "" {
		if n, ok := target.(named); ok {
			name = n.Name()
		}
	}

	patch := &Patch{
		owner:    p,
		id:       name + "." + method,
		name:     name,
		target:   target,
		key:      identity(target),
		method:   method,
		original: original,
	}
	patch.proxy = module.NewMethod(p.dispatcher(patch))
	target.SetMethod(method, patch.proxy)
	p.patches = append(p.patches, patch)
	return patch, nil
}

// lookup returns the live patch for (target, method). Callers hold p.mu.
func (p *Patcher) lookup(target Target, method string) *Patch {
	key := identity(target)
	for _, patch := range p.patches {
		if patch.key == key && patch.method == method {
			return patch
		}
	}
	return nil
}

func identity(t Target) any {
	if id, ok := t.(Identifier); ok {
		return id.Identity()
	}
	return t
}

func (p *Patcher) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	patch := sub.patch
	i := slices.Index(patch.children, sub)
	if i < 0 {
		return
	}
	patch.children = slices.Delete(patch.children, i, i+1)
	if len(patch.children) > 0 {
		return
	}

	patch.target.SetMethod(patch.method, patch.original)
	if j := slices.Index(p.patches, patch); j >= 0 {
		p.patches = slices.Delete(p.patches, j, j+1)
	}
}

// dispatcher builds the method installed in place of the original.
func (p *Patcher) dispatcher(patch *Patch) module.Func {
	return func(this any, args []any) any {
		p.mu.Lock()
		children := slices.Clone(patch.children)
		original := patch.original
		p.mu.Unlock()

		if len(children) == 0 {
			return original.Invoke(this, args)
		}

		for _, sub := range children {
			if sub.phase == Before {
				p.fire(sub, func() error { return sub.before(this, args) })
			}
		}

		var ret any
		insteads := lo.Filter(children, func(s *Subscription, _ int) bool { return s.phase == Instead })
		if len(insteads) == 0 {
			ret = original.Invoke(this, args)
		} else {
			bound := func(a ...any) any { return original.Invoke(this, a) }
			for _, sub := range insteads {
				var r any
				ok := p.fire(sub, func() (err error) {
					r, err = sub.instead(this, args, bound)
					return err
				})
				if ok && r != nil {
					ret = r
				}
			}
		}

		for _, sub := range children {
			if sub.phase != After {
				continue
			}
			var r any
			current := ret
			ok := p.fire(sub, func() (err error) {
				r, err = sub.after(this, args, current)
				return err
			})
			if ok && r != nil {
				ret = r
			}
		}
		return ret
	}
}

// fire runs one callback, logging a returned error or a panic.
func (p *Patcher) fire(sub *Subscription, fn func() error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logFailure(sub, fmt.Errorf("panic: %v", rec))
			ok = false
		}
	}()
	if err := fn(); err != nil {
		p.logFailure(sub, err)
		return false
	}
	return true
}

func (p *Patcher) logFailure(sub *Subscription, err error) {
	p.log.Errorw(
		fmt.Sprintf("Could not fire %s callback of %s for %s", sub.phase, sub.patch.id, sub.caller),
		"phase", sub.phase.String(),
		"method", sub.patch.method,
		"caller", sub.caller,
		"error", err,
	)
}

// Patches returns the live patches.
func (p *Patcher) Patches() []*Patch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.patches)
}

// GetPatchesByCaller returns every subscription registered under caller.
// An empty caller matches nothing.
func (p *Patcher) GetPatchesByCaller(caller string) []*Subscription {
	if caller == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var subs []*Subscription
	for _, patch := range p.patches {
		for _, sub := range patch.children {
			if sub.caller == caller {
				subs = append(subs, sub)
			}
		}
	}
	return subs
}

// UnpatchAll removes every subscription registered under caller and
// returns how many were removed.
func (p *Patcher) UnpatchAll(caller string) int {
	subs := p.GetPatchesByCaller(caller)
	p.UnpatchSubscriptions(subs)
	return len(subs)
}

// UnpatchSubscriptions removes each of subs.
func (p *Patcher) UnpatchSubscriptions(subs []*Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Unpatch()
		}
	}
}
