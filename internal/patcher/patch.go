package patcher

import (
	"slices"

	"github.com/dshills/bdcompat/internal/module"
)

// Phase is the point in a call at which a subscription runs.
type Phase int

const (
	// Before runs ahead of the original method. Its return value is ignored.
	Before Phase = iota
	// Instead replaces the original method.
	Instead
	// After runs once a return value exists and may replace it.
	After
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Before:
		return "before"
	case Instead:
		return "instead"
	case After:
		return "after"
	default:
		return "unknown"
	}
}

// Original invokes the method a patch wraps, bound to the intercepted receiver.
type Original func(args ...any) any

// BeforeFunc observes a call before it happens. It may modify args in place.
type BeforeFunc func(this any, args []any) error

// InsteadFunc replaces a call. A nil result leaves the return value alone;
// Null replaces it with an explicit empty value.
type InsteadFunc func(this any, args []any, original Original) (any, error)

// AfterFunc observes a finished call. A nil result keeps ret.
type AfterFunc func(this any, args []any, ret any) (any, error)

type null struct{}

func (null) String() string { return "null" }

// Null is an explicit empty result. Unlike nil it counts as a return value:
// a callback returning Null overrides the result, and a patched method may
// return it. Script engines map it to their null.
var Null any = null{}

// IsNull reports whether v is Null.
func IsNull(v any) bool {
	_, ok := v.(null)
	return ok
}

// Unpatch removes a subscription. It is safe to call more than once.
type Unpatch func()

func noop() {}

// Subscription is one caller's interception of a patched method.
type Subscription struct {
	id      int
	caller  string
	phase   Phase
	patch   *Patch
	before  BeforeFunc
	instead InsteadFunc
	after   AfterFunc
	unpatch Unpatch
}

// ID returns the subscription id, unique within its patch.
func (s *Subscription) ID() int { return s.id }

// Caller returns the caller id the subscription was registered under.
func (s *Subscription) Caller() string { return s.caller }

// Phase returns the subscription phase.
func (s *Subscription) Phase() Phase { return s.phase }

// Patch returns the patch the subscription belongs to.
func (s *Subscription) Patch() *Patch { return s.patch }

// Unpatch removes the subscription.
func (s *Subscription) Unpatch() { s.unpatch() }

// Patch is the interception state of one (target, method) pair.
type Patch struct {
	owner    *Patcher
	id       string
	name     string
	target   Target
	key      any
	method   string
	original *module.Method
	proxy    *module.Method
	counter  int
	children []*Subscription
}

// ID returns "<display name>.<method>".
func (p *Patch) ID() string { return p.id }

// Name returns the display name of the patched target.
func (p *Patch) Name() string { return p.name }

// Method returns the patched method name.
func (p *Patch) Method() string { return p.method }

// Target returns the patched target.
func (p *Patch) Target() Target { return p.target }

// Original returns the method that was installed before patching.
func (p *Patch) Original() *module.Method { return p.original }

// Proxy returns the dispatcher installed in the method slot.
func (p *Patch) Proxy() *module.Method { return p.proxy }

// Subscriptions returns the patch's subscriptions in registration order.
func (p *Patch) Subscriptions() []*Subscription {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return slices.Clone(p.children)
}
