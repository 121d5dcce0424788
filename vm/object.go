package vm

import (
	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Heap object kinds
// ---------------------------------------------------------------------------

// heapObject is implemented by every object kind stored in the heap.
//
// trace visits every value the object can reach, for marking. release
// drops the references the object owns when it is freed; for most kinds
// that is the same set of values.
type heapObject interface {
	kind() Kind
	size() int64
	trace(visit func(Value))
	release(rel func(Value))
}

// finalizable objects run cleanup when they are reclaimed.
type finalizable interface {
	finalize()
}

// Approximate per-object and per-slot costs charged against the heap limit.
const (
	objectOverhead = 48
	valueCost      = 32
	entryCost      = 2*valueCost + 8
)

func valueBytes(v Value) int64 {
	return valueCost + int64(len(v.str))
}

func entryBytes(k, v Value) int64 {
	return entryCost + int64(len(k.str)) + int64(len(v.str))
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

type tableEntry struct {
	key, val Value
	live     bool
}

// tableObject is an insertion-ordered hash table. Deleted entries leave
// tombstones until enough accumulate to compact.
type tableObject struct {
	entries []tableEntry
	index   map[Value]int
	dead    int
}

func newTableObject(capacity int) *tableObject {
	return &tableObject{
		entries: make([]tableEntry, 0, capacity),
		index:   make(map[Value]int, capacity),
	}
}

func (t *tableObject) kind() Kind { return KindTable }

func (t *tableObject) size() int64 {
	n := int64(objectOverhead)
	for _, e := range t.entries {
		if e.live {
			n += entryBytes(e.key, e.val)
		}
	}
	return n
}

func (t *tableObject) trace(visit func(Value)) {
	for _, e := range t.entries {
		if e.live {
			visit(e.key)
			visit(e.val)
		}
	}
}

func (t *tableObject) release(rel func(Value)) { t.trace(rel) }

func (t *tableObject) len() int { return len(t.index) }

func (t *tableObject) get(k Value) (Value, bool) {
	if i, ok := t.index[k]; ok {
		return t.entries[i].val, true
	}
	return Null, false
}

// set stores v under k and returns the previous value if the key existed.
func (t *tableObject) set(k, v Value) (old Value, existed bool) {
	if i, ok := t.index[k]; ok {
		old = t.entries[i].val
		t.entries[i].val = v
		return old, true
	}
	t.index[k] = len(t.entries)
	t.entries = append(t.entries, tableEntry{key: k, val: v, live: true})
	return Null, false
}

func (t *tableObject) remove(k Value) (old Value, ok bool) {
	i, ok := t.index[k]
	if !ok {
		return Null, false
	}
	old = t.entries[i].val
	t.entries[i] = tableEntry{}
	delete(t.index, k)
	t.dead++
	if t.dead > 16 && t.dead > len(t.index) {
		t.compact()
	}
	return old, true
}

func (t *tableObject) compact() {
	live := t.entries[:0]
	for _, e := range t.entries {
		if e.live {
			t.index[e.key] = len(live)
			live = append(live, e)
		}
	}
	for i := len(live); i < len(t.entries); i++ {
		t.entries[i] = tableEntry{}
	}
	t.entries = live
	t.dead = 0
}

func (t *tableObject) clear() {
	t.entries = t.entries[:0]
	t.index = make(map[Value]int)
	t.dead = 0
}

// next returns the first live entry at or after pos and the position to
// continue from.
func (t *tableObject) next(pos int) (k, v Value, nextPos int, ok bool) {
	for ; pos < len(t.entries); pos++ {
		if e := t.entries[pos]; e.live {
			return e.key, e.val, pos + 1, true
		}
	}
	return Null, Null, pos, false
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

type arrayObject struct {
	items []Value
}

func (a *arrayObject) kind() Kind { return KindArray }

func (a *arrayObject) size() int64 {
	n := int64(objectOverhead)
	for _, v := range a.items {
		n += valueBytes(v)
	}
	return n
}

func (a *arrayObject) trace(visit func(Value)) {
	for _, v := range a.items {
		visit(v)
	}
}

func (a *arrayObject) release(rel func(Value)) { a.trace(rel) }

// ---------------------------------------------------------------------------
// Closures and upvalues
// ---------------------------------------------------------------------------

// upvalue is a captured variable. While open it aliases a stack slot;
// closing copies the value out and the upvalue owns a reference to it.
// refs counts the closures sharing it.
type upvalue struct {
	slot  int
	open  bool
	value Value
	refs  int
}

type closureObject struct {
	proto  *bytecode.Chunk
	consts []Value
	upvals []*upvalue
	owner  Value // class the function was installed in as a member
}

func (c *closureObject) kind() Kind { return KindClosure }

func (c *closureObject) size() int64 {
	return objectOverhead + int64(len(c.upvals))*valueCost
}

func (c *closureObject) trace(visit func(Value)) {
	for _, uv := range c.upvals {
		if !uv.open {
			visit(uv.value)
		}
	}
	visit(c.owner)
}

func (c *closureObject) release(rel func(Value)) {
	for _, uv := range c.upvals {
		uv.refs--
		if uv.refs == 0 && !uv.open {
			rel(uv.value)
			uv.value = Null
		}
	}
	c.upvals = nil
	rel(c.owner)
}

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFunc is a Go function callable from scripts. args excludes this.
type NativeFunc func(vm *VM, this Value, args []Value) (Value, error)

type nativeObject struct {
	name string
	fn   NativeFunc
	sig  Signature
}

func (n *nativeObject) kind() Kind              { return KindNative }
func (n *nativeObject) size() int64             { return objectOverhead }
func (n *nativeObject) trace(visit func(Value)) {}
func (n *nativeObject) release(rel func(Value)) {}

// ---------------------------------------------------------------------------
// User data
// ---------------------------------------------------------------------------

// userDataObject wraps host data. Its delegate table supplies methods.
type userDataObject struct {
	typeTag  string
	data     interface{}
	delegate Value
	onFree   func()
}

func (u *userDataObject) kind() Kind              { return KindUserData }
func (u *userDataObject) size() int64             { return objectOverhead }
func (u *userDataObject) trace(visit func(Value)) { visit(u.delegate) }
func (u *userDataObject) release(rel func(Value)) { rel(u.delegate) }

func (u *userDataObject) finalize() {
	if u.onFree != nil {
		u.onFree()
		u.onFree = nil
	}
}

// ---------------------------------------------------------------------------
// Classes and instances
// ---------------------------------------------------------------------------

type classObject struct {
	name    string
	base    Value
	members *tableObject
	static  map[Value]bool
	locked  bool // set once the first instance exists
}

func (c *classObject) kind() Kind { return KindClass }

func (c *classObject) size() int64 {
	return objectOverhead + c.members.size()
}

func (c *classObject) trace(visit func(Value)) {
	visit(c.base)
	c.members.trace(visit)
}

func (c *classObject) release(rel func(Value)) { c.trace(rel) }

type instanceObject struct {
	class  Value
	fields *tableObject
}

func (i *instanceObject) kind() Kind { return KindInstance }

func (i *instanceObject) size() int64 {
	return objectOverhead + i.fields.size()
}

func (i *instanceObject) trace(visit func(Value)) {
	visit(i.class)
	i.fields.trace(visit)
}

func (i *instanceObject) release(rel func(Value)) { i.trace(rel) }

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

// GeneratorState is the lifecycle state of a generator.
type GeneratorState uint8

const (
	GenSuspended GeneratorState = iota
	GenRunning
	GenDead
)

func (s GeneratorState) String() string {
	switch s {
	case GenSuspended:
		return "suspended"
	case GenRunning:
		return "running"
	}
	return "dead"
}

// generatorObject holds the saved frame of a suspended generator: its
// program counter, the frame's stack window and its try handlers. The
// window holds owned references while suspended.
type generatorObject struct {
	closure Value
	state   GeneratorState
	pc      int
	window  []Value
	traps   []trap
	started bool
}

func (g *generatorObject) kind() Kind { return KindGenerator }

func (g *generatorObject) size() int64 {
	return objectOverhead + int64(len(g.window))*valueCost
}

func (g *generatorObject) trace(visit func(Value)) {
	visit(g.closure)
	for _, v := range g.window {
		visit(v)
	}
}

func (g *generatorObject) release(rel func(Value)) {
	g.trace(rel)
	g.window = nil
}

// ---------------------------------------------------------------------------
// Weak references
// ---------------------------------------------------------------------------

// weakRefObject observes a target without owning a reference. Reading it
// after the target is reclaimed yields null because the target handle's
// generation no longer matches.
type weakRefObject struct {
	target Value
}

func (w *weakRefObject) kind() Kind              { return KindWeakRef }
func (w *weakRefObject) size() int64             { return objectOverhead }
func (w *weakRefObject) trace(visit func(Value)) {}
func (w *weakRefObject) release(rel func(Value)) {}
