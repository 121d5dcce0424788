package vm

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/squirrel/pkg/bytecode"
)

var log = commonlog.GetLogger("squirrel.vm")

// Defaults applied when an option is left at zero.
const (
	DefaultStackSize     = 1 << 16
	DefaultMaxCallDepth  = 1000
	DefaultCheckInterval = 1024
	DefaultGCThreshold   = 4096
)

// ChunkCache stores compiled chunks so unchanged sources skip compilation.
type ChunkCache interface {
	Get(name string, src []byte) (*bytecode.Chunk, bool)
	Put(name string, src []byte, chunk *bytecode.Chunk) error
}

// Options configures a VM.
type Options struct {
	HeapLimit     int64 // bytes; 0 is unlimited
	StackSize     int   // value stack slots
	MaxCallDepth  int   // script frames
	CheckInterval int   // instructions between abort checks
	GCThreshold   int   // allocations between automatic reclaims

	Print        func(string) // print output
	ErrorHandler func(string) // error() output and uncaught fault reports

	Libraries   []string // stdlib modules to open; nil opens all
	SearchPaths []string // directories searched by dofile
	Cache       ChunkCache
}

// Option mutates Options.
type Option func(*Options)

func WithHeapLimit(limit int64) Option { return func(o *Options) { o.HeapLimit = limit } }
func WithStackSize(n int) Option       { return func(o *Options) { o.StackSize = n } }
func WithMaxCallDepth(n int) Option    { return func(o *Options) { o.MaxCallDepth = n } }
func WithCheckInterval(n int) Option   { return func(o *Options) { o.CheckInterval = n } }
func WithGCThreshold(n int) Option     { return func(o *Options) { o.GCThreshold = n } }

// WithPrintHandler redirects print output.
func WithPrintHandler(fn func(string)) Option { return func(o *Options) { o.Print = fn } }

// WithErrorHandler redirects error output and uncaught fault reports.
func WithErrorHandler(fn func(string)) Option { return func(o *Options) { o.ErrorHandler = fn } }

// WithLibraries selects the standard library modules to open.
func WithLibraries(names ...string) Option {
	return func(o *Options) { o.Libraries = append([]string(nil), names...) }
}

// WithSearchPaths sets the directories dofile searches.
func WithSearchPaths(paths ...string) Option {
	return func(o *Options) { o.SearchPaths = append([]string(nil), paths...) }
}

// WithChunkCache enables compiled chunk caching.
func WithChunkCache(c ChunkCache) Option { return func(o *Options) { o.Cache = c } }

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM is one interpreter instance. It owns its heap, root table and native
// registrations; nothing is shared between instances. A VM is not safe
// for concurrent use.
type VM struct {
	id   uuid.UUID
	opts Options
	heap *Heap

	stack      []Value
	sp         int
	frames     []frame
	openUpvals []*upvalue // sorted by slot
	temps      []Value    // uncounted roots held by Go code
	hostStack  []Value
	lastResult Value
	depth      int // nested top-level entries

	root      Value
	registry  Value
	delegates map[Kind]Value
	onError   Value // script error handler
	consts    map[*bytecode.Chunk][]Value

	allocs    int
	lastLive  int
	steps     int
	gcPending bool
	inHandler bool
	destroyed bool

	abort atomic.Bool
	ctx   context.Context
}

// New creates a VM with the standard library opened.
func New(opts ...Option) *VM {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.StackSize <= 0 {
		o.StackSize = DefaultStackSize
	}
	if o.MaxCallDepth <= 0 {
		o.MaxCallDepth = DefaultMaxCallDepth
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.GCThreshold <= 0 {
		o.GCThreshold = DefaultGCThreshold
	}
	if o.Print == nil {
		o.Print = func(s string) { os.Stdout.WriteString(s) }
	}
	if o.ErrorHandler == nil {
		o.ErrorHandler = func(s string) { os.Stderr.WriteString(s) }
	}

	vm := &VM{
		id:        uuid.New(),
		opts:      o,
		heap:      NewHeap(o.HeapLimit),
		stack:     make([]Value, 256),
		delegates: make(map[Kind]Value),
		consts:    make(map[*bytecode.Chunk][]Value),
		ctx:       context.Background(),
	}
	if err := vm.bootstrap(); err != nil {
		// The heap limit is too small to hold the standard library.
		log.Errorf("vm %s: bootstrap: %v", vm.id, err)
	}
	log.Debugf("vm %s created (heap limit %d)", vm.id, o.HeapLimit)
	return vm
}

// NewWithHeapLimit creates a VM whose heap may not exceed limit bytes.
func NewWithHeapLimit(limit int64) *VM {
	return New(WithHeapLimit(limit))
}

// ID returns the VM's instance identifier.
func (vm *VM) ID() uuid.UUID { return vm.id }

// Options returns the effective configuration.
func (vm *VM) Options() Options { return vm.opts }

// bootstrap creates the root table, the registry and the libraries.
func (vm *VM) bootstrap() error {
	root, err := vm.newTable(0)
	if err != nil {
		return err
	}
	vm.heap.hostRetain(root)
	vm.root = root

	reg, err := vm.newTable(0)
	if err != nil {
		return err
	}
	vm.heap.hostRetain(reg)
	vm.registry = reg

	if err := vm.registerDelegates(); err != nil {
		return err
	}
	libs := vm.opts.Libraries
	if libs == nil {
		libs = AllLibraries
	}
	for _, name := range libs {
		if err := vm.OpenLibrary(name); err != nil {
			return err
		}
	}
	vm.temps = vm.temps[:0]
	return nil
}

// ---------------------------------------------------------------------------
// Allocation and roots
// ---------------------------------------------------------------------------

// alloc stores obj in the heap. The new value is protected until the next
// instruction boundary or top-level return, so callers may hold it in Go
// variables meanwhile. On hitting the heap limit a full collection runs
// and the allocation is retried once.
func (vm *VM) alloc(obj heapObject) (Value, error) {
	h, err := vm.heap.Allocate(obj)
	if err == errHeapLimit {
		vm.collect()
		h, err = vm.heap.Allocate(obj)
	}
	if err != nil {
		return Null, newError(OutOfMemory, "heap limit of %d bytes exceeded", vm.heap.limit)
	}
	v := fromHandle(obj.kind(), h)
	vm.temps = append(vm.temps, v)
	vm.allocs++
	if vm.allocs >= vm.opts.GCThreshold {
		vm.gcPending = true
	}
	return v, nil
}

// charge adjusts the bytes accounted to v, collecting once when the heap
// limit is hit.
func (vm *VM) charge(v Value, delta int64) error {
	if delta == 0 || !v.IsHeap() {
		return nil
	}
	err := vm.heap.grow(v.Handle(), delta)
	if err == errHeapLimit {
		vm.collect()
		err = vm.heap.grow(v.Handle(), delta)
	}
	if err != nil {
		return newError(OutOfMemory, "heap limit of %d bytes exceeded", vm.heap.limit)
	}
	return nil
}

// maxReserve bounds a single native buffer when no heap limit is set.
const maxReserve = 1 << 32

// reserve checks that n more bytes fit under the heap limit before a
// native builds a buffer of that size, collecting once when they do not.
func (vm *VM) reserve(n int64) error {
	if n < 0 || n > maxReserve {
		return newError(OutOfMemory, "allocation of %d bytes exceeds the maximum of %d", n, int64(maxReserve))
	}
	h := vm.heap
	if h.limit == 0 || h.bytes+n <= h.limit {
		return nil
	}
	vm.collect()
	if h.bytes+n <= h.limit {
		return nil
	}
	return newError(OutOfMemory, "heap limit of %d bytes exceeded", h.limit)
}

// reserveEach reserves count items of size bytes each.
func (vm *VM) reserveEach(count, size int64) error {
	if size > 0 && count > maxReserve/size {
		return newError(OutOfMemory, "allocation of %d items of %d bytes exceeds the maximum of %d", count, size, int64(maxReserve))
	}
	return vm.reserve(count * size)
}

// protect keeps v alive until the enclosing native call or top-level
// entry returns.
func (vm *VM) protect(v Value) Value {
	if v.IsHeap() {
		vm.temps = append(vm.temps, v)
	}
	return v
}

// roots visits every uncounted root. Counted roots (root table,
// registry, delegates, host references) are reached through hostRefs.
func (vm *VM) roots(visit func(Value)) {
	for _, v := range vm.stack[:vm.sp] {
		visit(v)
	}
	for _, v := range vm.temps {
		visit(v)
	}
	for _, v := range vm.hostStack {
		visit(v)
	}
	for i := range vm.frames {
		visit(vm.frames[i].gen)
	}
	visit(vm.lastResult)
}

// maybeCollect runs a reclaim when enough allocations have happened,
// and a cycle pass when the live set has doubled since the last one.
func (vm *VM) maybeCollect() {
	if !vm.gcPending {
		return
	}
	vm.gcPending = false
	vm.allocs = 0
	freed := vm.heap.Reclaim(vm.roots)
	live := vm.heap.live
	if live > 2*vm.lastLive && live > vm.opts.GCThreshold {
		collected, _ := vm.heap.CollectCycles(vm.roots)
		freed += collected
		vm.lastLive = vm.heap.live
	}
	log.Debugf("vm %s: automatic gc freed %d objects, %d live", vm.id, freed, vm.heap.live)
}

// collect runs a full reclaim and cycle pass.
func (vm *VM) collect() GCStats {
	start := time.Now()
	before := vm.heap.bytes
	stats := GCStats{Timestamp: start}
	stats.Reclaimed = vm.heap.Reclaim(vm.roots)
	stats.Collected, _ = vm.heap.CollectCycles(vm.roots)
	stats.Reclaimed += vm.heap.Reclaim(vm.roots)
	stats.FreedBytes = before - vm.heap.bytes
	stats.Duration = time.Since(start)
	vm.lastLive = vm.heap.live
	vm.allocs = 0
	vm.gcPending = false
	log.Debugf("vm %s: gc reclaimed %d, collected %d cycles' objects, freed %d bytes in %s",
		vm.id, stats.Reclaimed, stats.Collected, stats.FreedBytes, stats.Duration)
	return stats
}

// CollectGarbage frees every object unreachable from the roots,
// including reference cycles.
func (vm *VM) CollectGarbage() GCStats {
	if vm.destroyed {
		return GCStats{Timestamp: time.Now()}
	}
	return vm.collect()
}

// HeapStats reports heap occupancy.
func (vm *VM) HeapStats() HeapStats { return vm.heap.Stats() }

// ---------------------------------------------------------------------------
// Host ownership
// ---------------------------------------------------------------------------

// Copy returns v with one more host reference. Scalars are returned
// unchanged. Every Copy must be matched by a Release.
func (vm *VM) Copy(v Value) Value {
	vm.heap.hostRetain(v)
	return v
}

// Release drops a host reference obtained from Copy, NewTable or NewArray.
func (vm *VM) Release(v Value) {
	vm.heap.hostRelease(v)
}

// RefCount returns the counted references to v.
func (vm *VM) RefCount(v Value) int { return vm.heap.RefCount(v) }

// IsLive reports whether v is a scalar or refers to a live heap object.
func (vm *VM) IsLive(v Value) bool {
	return !v.IsHeap() || vm.heap.Valid(v.Handle())
}

// SetFinalizer registers fn to run once when v is reclaimed.
func (vm *VM) SetFinalizer(v Value, fn func(Value)) {
	vm.heap.SetFinalizer(v, fn)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Destroy frees every object and makes the VM unusable. Finalizers of
// user data (open files and the like) run here.
func (vm *VM) Destroy() {
	if vm.destroyed {
		return
	}
	vm.abort.Store(true)
	vm.sp = 0
	vm.frames = nil
	vm.openUpvals = nil
	vm.temps = nil
	vm.hostStack = nil
	vm.lastResult = Null
	clear(vm.heap.hostRefs)
	n, _ := vm.heap.CollectCycles(func(func(Value)) {})
	vm.destroyed = true
	log.Debugf("vm %s destroyed, %d objects freed", vm.id, n)
}

// Destroyed reports whether Destroy has been called.
func (vm *VM) Destroyed() bool { return vm.destroyed }

// enter wraps a top-level API call. The outermost entry resets temporary
// roots and keeps the result alive until the next entry; uncaught faults
// are reported to the error handlers.
func (vm *VM) enter(ctx context.Context, fn func() (Value, error)) (Value, error) {
	if vm.destroyed {
		return Null, ErrDestroyed
	}
	outer := vm.depth == 0
	if outer {
		vm.abort.Store(false)
		vm.temps = vm.temps[:0]
		vm.lastResult = Null
		if ctx != nil {
			vm.ctx = ctx
		}
	}
	vm.depth++
	res, err := vm.guarded(fn)
	vm.depth--
	if !outer {
		return vm.protect(res), err
	}

	vm.ctx = context.Background()
	vm.lastResult = res
	if err != nil {
		if se, ok := err.(*ScriptError); ok {
			vm.reportError(se)
		}
	}
	vm.temps = vm.temps[:0]
	vm.maybeCollect()
	return res, err
}

// reportError hands an uncaught fault to the script error handler, if
// one is set, or else to the host error sink.
func (vm *VM) reportError(se *ScriptError) {
	if se.abort || se.Kind == CompileError {
		return
	}
	log.Debugf("vm %s: uncaught %s", vm.id, se)
	if !vm.onError.IsNull() && !vm.inHandler {
		vm.inHandler = true
		_, err := vm.callValue(vm.onError, vm.root, []Value{se.Value})
		vm.inHandler = false
		if err == nil {
			return
		}
		// A failing handler falls back to the host sink.
		log.Warningf("vm %s: error handler failed: %v", vm.id, err)
	}
	msg := fmt.Sprintf("AN ERROR HAS OCCURRED [%s]\n", se.Message)
	if len(se.Trace) > 0 {
		msg += "\nCALLSTACK\n" + se.FormatTrace()
	}
	vm.opts.ErrorHandler(msg)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}
