package vm

import (
	"github.com/chazu/squirrel/manifest"
)

// WithConfig applies the [vm], [stdlib] and [project] sections of a
// manifest. Options given after it override the manifest.
func WithConfig(m *manifest.Manifest) Option {
	return func(o *Options) {
		if m == nil {
			return
		}
		if m.VM.HeapLimit > 0 {
			o.HeapLimit = m.VM.HeapLimit
		}
		if m.VM.StackSize > 0 {
			o.StackSize = m.VM.StackSize
		}
		if m.VM.MaxCallDepth > 0 {
			o.MaxCallDepth = m.VM.MaxCallDepth
		}
		if m.VM.CheckInterval > 0 {
			o.CheckInterval = m.VM.CheckInterval
		}
		if m.VM.GCThreshold > 0 {
			o.GCThreshold = m.VM.GCThreshold
		}
		if m.Stdlib.Modules != nil {
			o.Libraries = append([]string(nil), m.Stdlib.Modules...)
		}
		o.SearchPaths = m.SearchPaths(nil)
	}
}
