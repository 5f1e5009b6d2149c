// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named probes evaluated on demand for stats dumps.

package control

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// DebugProbes maps probe names to value producers. Probes are evaluated
// without holding any registry lock, so a probe may itself read the registry.
type DebugProbes struct {
	probes *xsync.MapOf[string, func() any]
}

func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: xsync.NewMapOf[string, func() any]()}
}

// RegisterProbe installs fn under name, replacing any earlier probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	if fn == nil {
		dp.probes.Delete(name)
		return
	}
	dp.probes.Store(name, fn)
}

// Probe evaluates a single probe.
func (dp *DebugProbes) Probe(name string) (any, bool) {
	fn, ok := dp.probes.Load(name)
	if !ok {
		return nil, false
	}
	return eval(fn), true
}

// DumpState evaluates every probe. A panicking probe reports its panic value
// as a string instead of aborting the dump.
func (dp *DebugProbes) DumpState() map[string]any {
	out := make(map[string]any, dp.probes.Size())
	dp.probes.Range(func(name string, fn func() any) bool {
		out[name] = eval(fn)
		return true
	})
	return out
}

func eval(fn func() any) (v any) {
	defer func() {
		if r := recover(); r != nil {
			v = fmt.Sprintf("probe panic: %v", r)
		}
	}()
	return fn()
}
