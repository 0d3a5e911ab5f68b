package app

import "github.com/dshills/bdcompat/internal/plugin"

// unpatchers reverts a caller's interceptions on every engine. The engines
// share one patcher, so at most one of them finds anything to revert, but
// each must run the revert on its own loop.
type unpatchers []plugin.Unpatcher

// UnpatchAll implements plugin.Unpatcher.
func (u unpatchers) UnpatchAll(caller string) int {
	n := 0
	for _, p := range u {
		n += p.UnpatchAll(caller)
	}
	return n
}
