package patcher

import (
	"fmt"

	"github.com/dshills/bdcompat/internal/module"
)

// DefaultCallerID is the caller id MonkeyPatch uses when none is given.
const DefaultCallerID = "BdApi"

// CallData is the context handed to a MonkeyPatch callback.
type CallData struct {
	// OriginalMethod is the method that was installed before patching.
	OriginalMethod *module.Method

	// ThisObject is the receiver of the intercepted call.
	ThisObject any

	// MethodArguments are the intercepted call's arguments.
	MethodArguments []any

	// ReturnValue is the current return value. For an instead patch it is
	// nil until CallOriginalMethod is used.
	ReturnValue any

	// CancelPatch removes the patch.
	CancelPatch Unpatch
}

// CallOriginalMethod invokes the original method with the current receiver
// and arguments and stores the result in ReturnValue.
func (d *CallData) CallOriginalMethod() any {
	d.ReturnValue = d.OriginalMethod.Invoke(d.ThisObject, d.MethodArguments)
	return d.ReturnValue
}

// MonkeyFunc is a MonkeyPatch callback. Its return value is used the way
// the matching phase uses callback results.
type MonkeyFunc func(data *CallData) any

// MonkeyOptions configures MonkeyPatch. Exactly one of Before, Instead and
// After is used; Before wins over After, which wins over Instead.
type MonkeyOptions struct {
	Before  MonkeyFunc
	After   MonkeyFunc
	Instead MonkeyFunc

	// Once removes the patch after the first intercepted call.
	Once bool

	// CallerID defaults to DefaultCallerID.
	CallerID string

	DisplayName string
}

// MonkeyPatch is the single-callback form of Before, Instead and After.
func (p *Patcher) MonkeyPatch(target any, method string, opts MonkeyOptions) (Unpatch, error) {
	caller := opts.CallerID
	if caller == "" {
		caller = DefaultCallerID
	}

	var (
		phase Phase
		cb    MonkeyFunc
	)
	switch {
	case opts.Before != nil:
		phase, cb = Before, opts.Before
	case opts.After != nil:
		phase, cb = After, opts.After
	case opts.Instead != nil:
		phase, cb = Instead, opts.Instead
	default:
		p.log.Named(DefaultCallerID).Error(ErrNoPhase.Error())
		return noop, ErrNoPhase
	}

	var (
		cancel   Unpatch = noop
		original *module.Method
	)
	run := func(this any, args []any, ret any) (result any) {
		data := &CallData{
			OriginalMethod:  original,
			ThisObject:      this,
			MethodArguments: args,
			ReturnValue:     ret,
			CancelPatch:     cancel,
		}
		defer func() {
			if rec := recover(); rec != nil {
				p.log.Named(caller+":monkeyPatch").Errorw(
					fmt.Sprintf("Error in the %s of %s", phase, method),
					"error", rec,
				)
				result = nil
			}
		}()
		result = cb(data)
		if opts.Once {
			cancel()
		}
		return result
	}

	sub := &Subscription{phase: phase}
	switch phase {
	case Before:
		sub.before = func(this any, args []any) error {
			run(this, args, nil)
			return nil
		}
	case After:
		sub.after = func(this any, args []any, ret any) (any, error) {
			return run(this, args, ret), nil
		}
	case Instead:
		sub.instead = func(this any, args []any, _ Original) (any, error) {
			return run(this, args, nil), nil
		}
	}

	var patchOpts []PatchOption
	if opts.DisplayName != "" {
		patchOpts = append(patchOpts, WithDisplayName(opts.DisplayName))
	}
	installed, err := p.subscribe(caller, target, method, sub, patchOpts)
	if err != nil {
		return noop, err
	}
	cancel = installed.unpatch
	original = installed.patch.original
	return cancel, nil
}
