package vm

import (
	"context"
	"errors"

	"github.com/chazu/squirrel/compiler"
	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Compiling and running scripts
// ---------------------------------------------------------------------------

// Compile turns src into a main chunk. src may be script source or a
// serialized chunk, told apart by the bytecode magic. Compiled sources
// go through the chunk cache when one is configured.
func (vm *VM) Compile(src []byte, name string) (*bytecode.Chunk, error) {
	if bytecode.IsBytecode(src) {
		chunk, err := bytecode.Deserialize(src)
		if err != nil {
			se := newError(CompileError, "%s: %v", name, err)
			se.Cause = err
			return nil, se
		}
		if len(chunk.Upvalues) > 0 {
			return nil, newError(CompileError, "%s: main chunk cannot capture upvalues", name)
		}
		return chunk, nil
	}

	if c := vm.opts.Cache; c != nil {
		if chunk, ok := c.Get(name, src); ok {
			log.Debugf("vm %s: chunk cache hit for %s", vm.id, name)
			return chunk, nil
		}
	}
	chunk, err := compiler.Compile(string(src), name)
	if err != nil {
		return nil, compileError(err)
	}
	if c := vm.opts.Cache; c != nil {
		if err := c.Put(name, src, chunk); err != nil {
			log.Warningf("vm %s: caching %s: %v", vm.id, name, err)
		}
	}
	return chunk, nil
}

func compileError(err error) *ScriptError {
	se := newError(CompileError, "%v", err)
	se.Cause = err
	var ce *compiler.Error
	if errors.As(err, &ce) {
		se.Message = ce.Msg
		se.Value = String(ce.Msg)
		se.Trace = []TraceEntry{{Function: "main", Source: ce.Source, Line: ce.Pos.Line}}
	}
	return se
}

// LoadAndRun compiles and runs src as a script named "main".
func (vm *VM) LoadAndRun(src []byte) (Value, error) {
	return vm.RunContext(context.Background(), src, "main")
}

// RunContext compiles and runs src. Cancelling ctx aborts the script
// within CheckInterval instructions. args are visible to the script as
// vargv.
func (vm *VM) RunContext(ctx context.Context, src []byte, name string, args ...Value) (Value, error) {
	if vm.destroyed {
		return Null, ErrDestroyed
	}
	chunk, err := vm.Compile(src, name)
	if err != nil {
		return Null, err
	}
	return vm.RunChunkContext(ctx, chunk, args...)
}

// Eval runs interactive input. src is first tried as a single expression
// whose value is returned; input that does not parse as one runs as
// statements.
func (vm *VM) Eval(ctx context.Context, src, name string) (Value, error) {
	if vm.destroyed {
		return Null, ErrDestroyed
	}
	if chunk, err := compiler.Compile("return ("+src+"\n)", name); err == nil {
		return vm.RunChunkContext(ctx, chunk)
	}
	return vm.RunContext(ctx, []byte(src), name)
}

// Run executes a compiled main chunk.
func (vm *VM) Run(chunk *bytecode.Chunk, args ...Value) (Value, error) {
	return vm.RunChunkContext(context.Background(), chunk, args...)
}

// RunChunkContext executes a compiled main chunk under ctx. The result
// is borrowed: it stays valid until the next top-level call unless the
// host takes a reference with Copy.
func (vm *VM) RunChunkContext(ctx context.Context, chunk *bytecode.Chunk, args ...Value) (Value, error) {
	return vm.enter(ctx, func() (Value, error) {
		fn, err := vm.newClosure(chunk, nil)
		if err != nil {
			return Null, err
		}
		return vm.callValue(fn, vm.root, args)
	})
}

// Call invokes a script function, native or class with the given this.
func (vm *VM) Call(fn, this Value, args ...Value) (Value, error) {
	return vm.enter(nil, func() (Value, error) {
		return vm.callValue(fn, this, args)
	})
}

// Resume runs a generator until its next yield, sending v as the value
// of the suspended yield expression. Once the generator has finished,
// Resume returns ErrTerminated.
func (vm *VM) Resume(gen, v Value) (Value, error) {
	return vm.enter(nil, func() (Value, error) {
		g, ok := vm.heap.get(gen).(*generatorObject)
		if !ok {
			return Null, newError(TypeError, "cannot resume a '%s'", gen.TypeName())
		}
		if g.state == GenDead {
			return Null, ErrTerminated
		}
		res, done, err := vm.resumeGenerator(gen, v)
		if err != nil {
			return Null, err
		}
		if done {
			return Null, ErrTerminated
		}
		return vm.protect(res), nil
	})
}

// guarded runs fn, turning a Go panic into a RuntimeFault and restoring
// the stack to its state on entry.
func (vm *VM) guarded(fn func() (Value, error)) (res Value, err error) {
	sp, frames, upvals := vm.sp, len(vm.frames), len(vm.openUpvals)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("vm %s: recovered panic: %v", vm.id, r)
			if len(vm.openUpvals) > upvals {
				vm.closeUpvalues(vm.openUpvals[upvals].slot)
			}
			vm.sp = sp
			vm.frames = vm.frames[:frames]
			res, err = Null, newError(RuntimeFault, "internal error: %v", r)
		}
	}()
	return fn()
}

// ---------------------------------------------------------------------------
// Tables and arrays
// ---------------------------------------------------------------------------

// RootTable returns the root table. It is owned by the VM.
func (vm *VM) RootTable() Value { return vm.root }

// Registry returns a table reserved for the host, invisible to scripts.
func (vm *VM) Registry() Value { return vm.registry }

// NewTable creates an empty table owned by the caller, who must Release
// it.
func (vm *VM) NewTable() (Value, error) {
	t, err := vm.newTable(0)
	if err != nil {
		return Null, err
	}
	vm.heap.hostRetain(t)
	return t, nil
}

// NewArray creates an array of size nulls owned by the caller, who must
// Release it.
func (vm *VM) NewArray(size int) (Value, error) {
	if size < 0 {
		return Null, newError(ArgumentError, "negative array size %d", size)
	}
	a, err := vm.newArray(make([]Value, size))
	if err != nil {
		return Null, err
	}
	vm.heap.hostRetain(a)
	return a, nil
}

// TableGet reads a slot of a table, instance or class without consulting
// delegates.
func (vm *VM) TableGet(t, key Value) (Value, error) {
	if vm.tableOf(t) == nil {
		return Null, newError(TypeError, "expected a table, got '%s'", t.TypeName())
	}
	if v, ok := vm.lookupSlot(t, key); ok {
		return v, nil
	}
	return Null, missingKey(key)
}

// TableSet creates or assigns a slot of a table.
func (vm *VM) TableSet(t, key, val Value) error {
	tbl, ok := vm.heap.get(t).(*tableObject)
	if !ok {
		return newError(TypeError, "expected a table, got '%s'", t.TypeName())
	}
	if err := validKey(key); err != nil {
		return err
	}
	return vm.tableStore(t, tbl, key, val)
}

// TableDelete removes a slot of a table. Removing a missing key is not
// an error.
func (vm *VM) TableDelete(t, key Value) error {
	tbl, ok := vm.heap.get(t).(*tableObject)
	if !ok {
		return newError(TypeError, "expected a table, got '%s'", t.TypeName())
	}
	vm.tableRemove(t, tbl, key)
	return nil
}

// TableLen returns the number of slots of a table, instance or class.
func (vm *VM) TableLen(t Value) (int, error) {
	tbl := vm.tableOf(t)
	if tbl == nil {
		return 0, newError(TypeError, "expected a table, got '%s'", t.TypeName())
	}
	return tbl.len(), nil
}

// TableEach calls fn for every slot in insertion order until fn returns
// false.
func (vm *VM) TableEach(t Value, fn func(key, val Value) bool) error {
	tbl := vm.tableOf(t)
	if tbl == nil {
		return newError(TypeError, "expected a table, got '%s'", t.TypeName())
	}
	for pos := 0; ; {
		k, v, next, ok := tbl.next(pos)
		if !ok || !fn(k, v) {
			return nil
		}
		pos = next
	}
}

func (vm *VM) array(a Value) (*arrayObject, error) {
	arr, ok := vm.heap.get(a).(*arrayObject)
	if !ok {
		return nil, newError(TypeError, "expected an array, got '%s'", a.TypeName())
	}
	return arr, nil
}

// ArrayGet reads an element.
func (vm *VM) ArrayGet(a Value, i int) (Value, error) {
	arr, err := vm.array(a)
	if err != nil {
		return Null, err
	}
	if i < 0 || i >= len(arr.items) {
		return Null, newError(IndexError, "index %d out of range [0, %d)", i, len(arr.items))
	}
	return arr.items[i], nil
}

// ArraySet assigns an element.
func (vm *VM) ArraySet(a Value, i int, v Value) error {
	return vm.set(a, Int(int64(i)), v)
}

// ArrayAppend adds v to the end of an array.
func (vm *VM) ArrayAppend(a Value, v Value) error {
	arr, err := vm.array(a)
	if err != nil {
		return err
	}
	if err := vm.charge(a, valueBytes(v)); err != nil {
		return err
	}
	vm.heap.retain(v)
	arr.items = append(arr.items, v)
	return nil
}

// ArrayLen returns the number of elements.
func (vm *VM) ArrayLen(a Value) (int, error) {
	arr, err := vm.array(a)
	if err != nil {
		return 0, err
	}
	return len(arr.items), nil
}

// ArrayItems returns a copy of the elements.
func (vm *VM) ArrayItems(a Value) ([]Value, error) {
	arr, err := vm.array(a)
	if err != nil {
		return nil, err
	}
	return append([]Value(nil), arr.items...), nil
}

// Index reads obj[key] the way scripts do, including delegates.
func (vm *VM) Index(obj, key Value) (Value, error) {
	return vm.get(obj, key)
}

// TypeOf returns the name typeof reports for v.
func (vm *VM) TypeOf(v Value) string { return typeOf(v) }

// ToString formats v the way tostring does, calling a _tostring method
// on instances and tables that define one.
func (vm *VM) ToString(v Value) (string, error) {
	var s string
	_, err := vm.enter(nil, func() (Value, error) {
		var err error
		s, err = vm.tostring(v)
		return Null, err
	})
	return s, err
}

// ---------------------------------------------------------------------------
// Host stack
// ---------------------------------------------------------------------------

// Push pushes v on the host stack. Values on the host stack are roots.
func (vm *VM) Push(v Value) { vm.hostStack = append(vm.hostStack, v) }

// Pop removes n values from the host stack.
func (vm *VM) Pop(n int) {
	vm.SetTop(len(vm.hostStack) - n)
}

// Top returns the number of values on the host stack.
func (vm *VM) Top() int { return len(vm.hostStack) }

// SetTop grows the host stack with nulls or shrinks it to n values.
func (vm *VM) SetTop(n int) {
	n = max(n, 0)
	for len(vm.hostStack) < n {
		vm.hostStack = append(vm.hostStack, Null)
	}
	clear(vm.hostStack[n:])
	vm.hostStack = vm.hostStack[:n]
}

func (vm *VM) stackIndex(idx int) (int, error) {
	i := idx - 1
	if idx < 0 {
		i = len(vm.hostStack) + idx
	}
	if i < 0 || i >= len(vm.hostStack) {
		return 0, newError(IndexError, "host stack index %d out of range (top %d)", idx, len(vm.hostStack))
	}
	return i, nil
}

// Get returns the host stack value at idx. Positive indices count from the bottom
// starting at 1; negative indices count from the top, -1 being the top.
func (vm *VM) Get(idx int) (Value, error) {
	i, err := vm.stackIndex(idx)
	if err != nil {
		return Null, err
	}
	return vm.hostStack[i], nil
}

// Integer reads an integer at idx, truncating floats.
func (vm *VM) Integer(idx int) (int64, error) {
	v, err := vm.Get(idx)
	if err != nil {
		return 0, err
	}
	if !v.IsNumber() {
		return 0, mismatch(idx, maskOf(KindInteger, KindFloat), v)
	}
	return v.AsInt(), nil
}

// Float reads a float at idx, converting integers.
func (vm *VM) Float(idx int) (float64, error) {
	v, err := vm.Get(idx)
	if err != nil {
		return 0, err
	}
	if !v.IsNumber() {
		return 0, mismatch(idx, maskOf(KindInteger, KindFloat), v)
	}
	return v.AsFloat(), nil
}

// Bool reads a bool at idx.
func (vm *VM) Bool(idx int) (bool, error) {
	v, err := vm.Get(idx)
	if err != nil {
		return false, err
	}
	if !v.IsBool() {
		return false, mismatch(idx, maskOf(KindBool), v)
	}
	return v.AsBool(), nil
}

// String reads a string at idx.
func (vm *VM) String(idx int) (string, error) {
	v, err := vm.Get(idx)
	if err != nil {
		return "", err
	}
	if !v.IsString() {
		return "", mismatch(idx, maskOf(KindString), v)
	}
	return v.AsString(), nil
}

// CallStack calls the function at -(nargs+2) with this at -(nargs+1) and
// nargs arguments above it, pops them and pushes the result.
func (vm *VM) CallStack(nargs int) error {
	if nargs < 0 || len(vm.hostStack) < nargs+2 {
		return newError(ArgumentError, "host stack holds %d values, call needs %d", len(vm.hostStack), nargs+2)
	}
	base := len(vm.hostStack) - nargs - 2
	fn, this := vm.hostStack[base], vm.hostStack[base+1]
	args := append([]Value(nil), vm.hostStack[base+2:]...)
	res, err := vm.Call(fn, this, args...)
	if err != nil {
		return err
	}
	vm.SetTop(base)
	vm.Push(res)
	return nil
}
