package module

import (
	"fmt"
	"sort"
	"sync"
)

// Func is the body of a host method. this is the receiver the call was made
// on and args are the call arguments, which the callee may modify in place.
type Func func(this any, args []any) any

// Method is a value stored in an object's method slot.
//
// Slots compare by pointer: restoring a slot to the exact *Method it held
// before is how an interception layer proves it left no trace.
type Method struct {
	fn     Func
	native any
}

// NewMethod wraps fn as an installable method.
func NewMethod(fn Func) *Method {
	return &Method{fn: fn}
}

// NativeMethod wraps fn and remembers the engine value it came from, so the
// exact engine value can be put back when the method is reinstalled.
func NativeMethod(native any, fn Func) *Method {
	return &Method{fn: fn, native: native}
}

// Native returns the engine value the method was created from, if any.
func (m *Method) Native() any {
	if m == nil {
		return nil
	}
	return m.native
}

// Invoke calls the method. A nil method returns nil.
func (m *Method) Invoke(this any, args []any) any {
	if m == nil || m.fn == nil {
		return nil
	}
	return m.fn(this, args)
}

// Func returns the method body.
func (m *Method) Func() Func {
	if m == nil {
		return nil
	}
	return m.fn
}

// Object is a host object: a set of named properties and method slots.
// Objects are safe for concurrent use.
type Object struct {
	mu      sync.RWMutex
	name    string
	props   map[string]any
	methods map[string]*Method
	proto   *Object
}

// NewObject creates an empty object with the given display name.
func NewObject(name string) *Object {
	return &Object{
		name:    name,
		props:   make(map[string]any),
		methods: make(map[string]*Method),
	}
}

// Name returns the display name of the object.
func (o *Object) Name() string {
	return o.name
}

// String implements fmt.Stringer.
func (o *Object) String() string {
	return fmt.Sprintf("[object %s]", o.name)
}

// Set stores a property and returns the object for chaining.
func (o *Object) Set(key string, value any) *Object {
	o.mu.Lock()
	o.props[key] = value
	o.mu.Unlock()
	return o
}

// Get returns a property value.
func (o *Object) Get(key string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.props[key]
	return v, ok
}

// Delete removes a property or a method slot.
func (o *Object) Delete(key string) {
	o.mu.Lock()
	delete(o.props, key)
	delete(o.methods, key)
	o.mu.Unlock()
}

// Define installs fn in the named method slot and returns the object for chaining.
func (o *Object) Define(name string, fn Func) *Object {
	o.SetMethod(name, NewMethod(fn))
	return o
}

// Method returns the method currently installed in the named slot, or nil.
func (o *Object) Method(name string) *Method {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.methods[name]
}

// SetMethod installs m in the named slot, replacing a property of the same
// name. A nil m clears the slot.
func (o *Object) SetMethod(name string, m *Method) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m == nil {
		delete(o.methods, name)
		return
	}
	delete(o.props, name)
	o.methods[name] = m
}

// Has reports whether key names a property or a method slot.
func (o *Object) Has(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if _, ok := o.props[key]; ok {
		return true
	}
	_, ok := o.methods[key]
	return ok
}

// HasMethod reports whether the named slot holds a method.
func (o *Object) HasMethod(name string) bool {
	return o.Method(name) != nil
}

// Keys returns the property and method names in sorted order.
func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	keys := make([]string, 0, len(o.props)+len(o.methods))
	for k := range o.props {
		keys = append(keys, k)
	}
	for k := range o.methods {
		if _, dup := o.props[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SetPrototype sets the object's prototype.
func (o *Object) SetPrototype(proto *Object) *Object {
	o.mu.Lock()
	o.proto = proto
	o.mu.Unlock()
	return o
}

// Prototype returns the object's prototype, or nil.
func (o *Object) Prototype() *Object {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.proto
}

// Call invokes the method currently installed in the named slot with o as
// the receiver. Calls go through the slot, so interceptors installed after
// the object was handed out still see them.
func (o *Object) Call(name string, args ...any) (any, error) {
	m := o.Method(name)
	if m == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoMethod, o.name, name)
	}
	return m.Invoke(o, args), nil
}
