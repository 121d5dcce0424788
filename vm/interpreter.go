package vm

import (
	"slices"
	"sort"

	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frame is the execution state of one script function invocation. The
// callee sits at stack[base-1], this at stack[base], then the
// parameters, vargv and the locals.
type frame struct {
	closure   *closureObject
	fn        Value
	chunk     *bytecode.Chunk
	consts    []Value
	pc        int
	base      int
	traps     []trap
	gen       Value // generator running in this frame, or null
	construct bool  // constructor call: the result is this
}

// trap is an installed try handler.
type trap struct {
	catchPC int
	height  int // stack height relative to the frame base
}

// instrLen caches fixed instruction lengths; OpClosure is variable.
var instrLen [256]int

func init() {
	for op := 0; op < 256; op++ {
		info := bytecode.Opcode(op).Info()
		instrLen[op] = 1 + max(info.OperandLen, 0)
	}
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	if vm.sp == len(vm.stack) {
		vm.stack = append(vm.stack, make([]Value, len(vm.stack))...)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) top() Value {
	return vm.stack[vm.sp-1]
}

// constants converts a chunk's scalar constants once per VM. Function
// prototypes stay null; OpClosure reads them from the chunk.
func (vm *VM) constants(c *bytecode.Chunk) []Value {
	if cs, ok := vm.consts[c]; ok {
		return cs
	}
	cs := make([]Value, len(c.Constants))
	for i, k := range c.Constants {
		switch k.Kind {
		case bytecode.ConstInt:
			cs[i] = Int(k.Int)
		case bytecode.ConstFloat:
			cs[i] = Float(k.Float)
		case bytecode.ConstString:
			cs[i] = String(k.Str)
		}
	}
	vm.consts[c] = cs
	return cs
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// callValue calls fn from Go and returns its result, protected until the
// enclosing native or top-level entry returns.
func (vm *VM) callValue(fn, this Value, args []Value) (Value, error) {
	fnSlot := vm.sp
	vm.push(fn)
	vm.push(this)
	for _, a := range args {
		vm.push(a)
	}
	depth := len(vm.frames)
	if err := vm.call(fnSlot, len(args)); err != nil {
		se := vm.fault(err)
		vm.sp = fnSlot
		return Null, se
	}
	if len(vm.frames) > depth {
		res, err := vm.execute(depth)
		vm.sp = fnSlot
		if err != nil {
			return Null, err
		}
		return vm.protect(res), nil
	}
	res := vm.stack[fnSlot]
	vm.sp = fnSlot
	return vm.protect(res), nil
}

// call invokes the callee at stack[fnSlot] with this above it and argc
// arguments above that. Closures push a frame; every other callable
// completes in place and leaves its result at fnSlot.
func (vm *VM) call(fnSlot, argc int) error {
	fn := vm.stack[fnSlot]
	switch fn.kind {
	case KindClosure:
		return vm.callClosure(fnSlot, argc, false)
	case KindNative:
		return vm.callNative(fnSlot, argc)
	case KindClass:
		return vm.instantiate(fnSlot, argc)
	}
	return newError(NotCallable, "attempt to call '%s'", fn.TypeName())
}

func (vm *VM) callClosure(fnSlot, argc int, construct bool) error {
	fn := vm.stack[fnSlot]
	c := vm.heap.get(fn).(*closureObject)
	proto := c.proto
	params := int(proto.ParamCount)
	base := fnSlot + 1

	switch {
	case argc < params:
		for i := argc; i < params; i++ {
			vm.push(Null)
		}
	case argc > params && !proto.IsVarargs():
		return newError(ArgumentError, "wrong number of parameters: '%s' expects %d, got %d", proto.Name, params, argc)
	}
	if proto.IsVarargs() {
		first := base + 1 + params
		arr, err := vm.newArray(slices.Clone(vm.stack[first:vm.sp]))
		if err != nil {
			return err
		}
		vm.sp = first
		vm.push(arr)
	}

	if proto.IsGenerator() {
		gen, err := vm.newGenerator(fn, vm.stack[base:vm.sp])
		if err != nil {
			return err
		}
		vm.sp = fnSlot
		vm.push(gen)
		return nil
	}

	if err := vm.checkDepth(base); err != nil {
		return err
	}
	vm.frames = append(vm.frames, frame{
		closure:   c,
		fn:        fn,
		chunk:     proto,
		consts:    c.consts,
		base:      base,
		construct: construct,
	})
	return nil
}

func (vm *VM) checkDepth(base int) error {
	if len(vm.frames) >= vm.opts.MaxCallDepth || base >= vm.opts.StackSize {
		return newError(RuntimeFault, "stack overflow")
	}
	return nil
}

func (vm *VM) callNative(fnSlot, argc int) error {
	n := vm.heap.get(vm.stack[fnSlot]).(*nativeObject)
	this := vm.stack[fnSlot+1]
	args := vm.stack[fnSlot+2 : vm.sp : vm.sp]
	if err := n.sig.Check(this, args); err != nil {
		return vm.nativeFault(n, err)
	}
	if len(vm.frames) >= vm.opts.MaxCallDepth {
		return newError(RuntimeFault, "stack overflow")
	}

	mark := len(vm.temps)
	res, err := vm.invokeNative(n, this, args)
	vm.temps = vm.temps[:mark]
	if err != nil {
		return vm.nativeFault(n, err)
	}
	vm.sp = fnSlot
	vm.push(res)
	return nil
}

// invokeNative runs a native, turning a Go panic into a RuntimeFault.
func (vm *VM) invokeNative(n *nativeObject, this Value, args []Value) (res Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("vm %s: native %s panicked: %v", vm.id, n.name, r)
			err = newError(RuntimeFault, "native '%s' panicked: %v", n.name, r)
		}
	}()
	return n.fn(vm, this, args)
}

func (vm *VM) nativeFault(n *nativeObject, err error) error {
	se := vm.normalize(err)
	if se.Trace == nil && !se.abort {
		se.Trace = append([]TraceEntry{{Function: n.name, Source: "native"}}, vm.trace()...)
	}
	return se
}

// instantiate creates an instance of the class at fnSlot and runs its
// constructor with the instance as this.
func (vm *VM) instantiate(fnSlot, argc int) error {
	classV := vm.stack[fnSlot]
	cls := vm.heap.get(classV).(*classObject)
	inst, err := vm.newInstance(classV, cls)
	if err != nil {
		return err
	}
	vm.stack[fnSlot+1] = inst

	ctor, ok := cls.members.get(String("constructor"))
	if !ok {
		if argc > 0 {
			return newError(ArgumentError, "wrong number of parameters: class '%s' has no constructor", cls.name)
		}
		vm.sp = fnSlot
		vm.push(inst)
		return nil
	}
	vm.stack[fnSlot] = ctor
	switch ctor.kind {
	case KindClosure:
		return vm.callClosure(fnSlot, argc, true)
	case KindNative:
		if err := vm.callNative(fnSlot, argc); err != nil {
			return err
		}
		vm.stack[fnSlot] = inst
		return nil
	}
	return newError(NotCallable, "constructor of '%s' is not a function", cls.name)
}

// ret pops the current frame. done reports that the frame was the last
// one this execute call owns.
func (vm *VM) ret(result Value, stop int) (Value, bool) {
	fr := &vm.frames[len(vm.frames)-1]
	if fr.construct {
		result = vm.stack[fr.base]
	}
	vm.closeUpvalues(fr.base)
	if !fr.gen.IsNull() {
		vm.finishGenerator(fr.gen)
	}
	vm.sp = fr.base - 1
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == stop {
		return result, true
	}
	vm.push(result)
	return Null, false
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

func (vm *VM) captureUpvalue(slot int) *upvalue {
	i := sort.Search(len(vm.openUpvals), func(i int) bool { return vm.openUpvals[i].slot >= slot })
	if i < len(vm.openUpvals) && vm.openUpvals[i].slot == slot {
		return vm.openUpvals[i]
	}
	uv := &upvalue{slot: slot, open: true}
	vm.openUpvals = slices.Insert(vm.openUpvals, i, uv)
	return uv
}

// closeUpvalues moves every open upvalue at or above slot off the stack.
func (vm *VM) closeUpvalues(slot int) {
	i := sort.Search(len(vm.openUpvals), func(i int) bool { return vm.openUpvals[i].slot >= slot })
	for _, uv := range vm.openUpvals[i:] {
		uv.open = false
		if uv.refs > 0 {
			uv.value = vm.stack[uv.slot]
			vm.heap.retain(uv.value)
		}
	}
	clear(vm.openUpvals[i:])
	vm.openUpvals = vm.openUpvals[:i]
}

func (vm *VM) getUpvalue(uv *upvalue) Value {
	if uv.open {
		return vm.stack[uv.slot]
	}
	return uv.value
}

func (vm *VM) setUpvalue(uv *upvalue, v Value) {
	if uv.open {
		vm.stack[uv.slot] = v
		return
	}
	vm.heap.retain(v)
	vm.heap.release(uv.value)
	uv.value = v
}

func (vm *VM) makeClosure(fr *frame, pc int) error {
	code := fr.chunk.Code
	proto := fr.chunk.Constants[bytecode.ReadU16(code, pc+1)].Func
	upvals := make([]*upvalue, len(proto.Upvalues))
	off := pc + 3
	for i := range upvals {
		isLocal, index := code[off] != 0, int(code[off+1])
		off += 2
		if isLocal {
			upvals[i] = vm.captureUpvalue(fr.base + index)
		} else {
			upvals[i] = fr.closure.upvals[index]
		}
	}
	fr.pc = off
	c, err := vm.newClosure(proto, upvals)
	if err != nil {
		return err
	}
	vm.push(c)
	return nil
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute runs frames until the frame count drops back to stop and
// returns the value of the last return or yield. Faults unwind to the
// nearest try handler above stop; a fault with no handler is returned.
func (vm *VM) execute(stop int) (Value, error) {
	tempMark := len(vm.temps)
	for {
		vm.temps = vm.temps[:tempMark]
		if vm.gcPending {
			vm.maybeCollect()
		}

		var err error
		vm.steps++
		if vm.steps >= vm.opts.CheckInterval {
			vm.steps = 0
			err = vm.checkAbort()
		}
		if err == nil && vm.sp > vm.opts.StackSize {
			err = newError(RuntimeFault, "stack overflow")
		}
		if err == nil {
			var result Value
			var done bool
			result, done, err = vm.step(stop)
			if done {
				return result, nil
			}
		}
		if err != nil {
			if se := vm.unwind(err, stop); se != nil {
				return Null, se
			}
		}
	}
}

// step executes one instruction of the innermost frame.
func (vm *VM) step(stop int) (Value, bool, error) {
	fr := &vm.frames[len(vm.frames)-1]
	code := fr.chunk.Code
	pc := fr.pc
	op := bytecode.Opcode(code[pc])
	fr.pc = pc + instrLen[op]

	switch op {
	case bytecode.OpNop:

	// Stack manipulation
	case bytecode.OpPop:
		vm.sp--
	case bytecode.OpPopN:
		vm.sp -= int(code[pc+1])
	case bytecode.OpDup:
		vm.push(vm.top())
	case bytecode.OpDup2:
		a, b := vm.stack[vm.sp-2], vm.stack[vm.sp-1]
		vm.push(a)
		vm.push(b)
	case bytecode.OpSwap:
		vm.stack[vm.sp-1], vm.stack[vm.sp-2] = vm.stack[vm.sp-2], vm.stack[vm.sp-1]

	// Constants
	case bytecode.OpConst:
		vm.push(fr.consts[bytecode.ReadU16(code, pc+1)])
	case bytecode.OpNull:
		vm.push(Null)
	case bytecode.OpTrue:
		vm.push(True)
	case bytecode.OpFalse:
		vm.push(False)
	case bytecode.OpThis:
		vm.push(vm.stack[fr.base])
	case bytecode.OpBase:
		vm.push(vm.baseOf(fr.closure))

	// Variables
	case bytecode.OpGetLocal:
		vm.push(vm.stack[fr.base+int(code[pc+1])])
	case bytecode.OpSetLocal:
		vm.stack[fr.base+int(code[pc+1])] = vm.top()
	case bytecode.OpGetUpval:
		vm.push(vm.getUpvalue(fr.closure.upvals[code[pc+1]]))
	case bytecode.OpSetUpval:
		vm.setUpvalue(fr.closure.upvals[code[pc+1]], vm.top())
	case bytecode.OpCloseUpvals:
		vm.closeUpvalues(fr.base + int(code[pc+1]))
	case bytecode.OpClosure:
		return Null, false, vm.makeClosure(fr, pc)

	case bytecode.OpGetName:
		v, err := vm.getName(vm.stack[fr.base], fr.consts[bytecode.ReadU16(code, pc+1)])
		if err != nil {
			return Null, false, err
		}
		vm.push(v)
	case bytecode.OpSetName:
		return Null, false, vm.setName(vm.stack[fr.base], fr.consts[bytecode.ReadU16(code, pc+1)], vm.top())
	case bytecode.OpNewSlotName:
		return Null, false, vm.newSlotName(vm.stack[fr.base], fr.consts[bytecode.ReadU16(code, pc+1)], vm.top())
	case bytecode.OpGetRoot:
		key := fr.consts[bytecode.ReadU16(code, pc+1)]
		v, ok := vm.rootTable().get(key)
		if !ok {
			return Null, false, missingKey(key)
		}
		vm.push(v)
	case bytecode.OpSetRootSlot:
		return Null, false, vm.newSlot(vm.root, fr.consts[bytecode.ReadU16(code, pc+1)], vm.top())

	// Indexing
	case bytecode.OpGet:
		v, err := vm.get(vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		if err != nil {
			return Null, false, err
		}
		vm.sp -= 2
		vm.push(v)
	case bytecode.OpGetOrNull:
		v := vm.getOrNull(vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		vm.sp -= 2
		vm.push(v)
	case bytecode.OpSet, bytecode.OpNewSlot, bytecode.OpInitSlot:
		obj, key, val := vm.stack[vm.sp-3], vm.stack[vm.sp-2], vm.stack[vm.sp-1]
		var err error
		if op == bytecode.OpSet {
			err = vm.set(obj, key, val)
		} else {
			err = vm.newSlot(obj, key, val)
		}
		if err != nil {
			return Null, false, err
		}
		vm.sp -= 2
		if op != bytecode.OpInitSlot {
			vm.stack[vm.sp-1] = val
		}
	case bytecode.OpDelete:
		v, err := vm.delete(vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		if err != nil {
			return Null, false, err
		}
		vm.sp -= 2
		vm.push(v)
	case bytecode.OpIn:
		ok, err := vm.in(vm.stack[vm.sp-1], vm.stack[vm.sp-2])
		if err != nil {
			return Null, false, err
		}
		vm.sp -= 2
		vm.push(Bool(ok))

	// Arithmetic
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr:
		r, err := Arith(op, vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		if err != nil {
			return Null, false, err
		}
		vm.sp--
		vm.stack[vm.sp-1] = r
	case bytecode.OpNeg:
		r, err := Negate(vm.top())
		if err != nil {
			return Null, false, err
		}
		vm.stack[vm.sp-1] = r
	case bytecode.OpBitNot:
		r, err := BitNot(vm.top())
		if err != nil {
			return Null, false, err
		}
		vm.stack[vm.sp-1] = r

	// Comparison
	case bytecode.OpEq, bytecode.OpNe:
		eq := Equal(vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		vm.sp--
		vm.stack[vm.sp-1] = Bool(eq == (op == bytecode.OpEq))
	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe, bytecode.OpCmp:
		c, err := Compare(vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		if err != nil {
			return Null, false, err
		}
		vm.sp--
		vm.stack[vm.sp-1] = compareResult(op, c)
	case bytecode.OpNot:
		vm.stack[vm.sp-1] = Bool(!Truthy(vm.top()))
	case bytecode.OpInstanceOf:
		ok, err := vm.instanceOf(vm.stack[vm.sp-2], vm.stack[vm.sp-1])
		if err != nil {
			return Null, false, err
		}
		vm.sp--
		vm.stack[vm.sp-1] = Bool(ok)
	case bytecode.OpTypeOf:
		vm.stack[vm.sp-1] = String(typeOf(vm.top()))

	// Control flow
	case bytecode.OpJump:
		fr.pc = pc + 3 + bytecode.ReadI16(code, pc+1)
	case bytecode.OpJumpIfFalse:
		if !Truthy(vm.pop()) {
			fr.pc = pc + 3 + bytecode.ReadI16(code, pc+1)
		}
	case bytecode.OpJumpIfTrue:
		if Truthy(vm.pop()) {
			fr.pc = pc + 3 + bytecode.ReadI16(code, pc+1)
		}
	case bytecode.OpJumpIfFalseKeep:
		if !Truthy(vm.top()) {
			fr.pc = pc + 3 + bytecode.ReadI16(code, pc+1)
		} else {
			vm.sp--
		}
	case bytecode.OpJumpIfTrueKeep:
		if Truthy(vm.top()) {
			fr.pc = pc + 3 + bytecode.ReadI16(code, pc+1)
		} else {
			vm.sp--
		}
	case bytecode.OpForeach:
		return Null, false, vm.foreach(pc)
	case bytecode.OpPushTrap:
		fr.traps = append(fr.traps, trap{catchPC: pc + 3 + bytecode.ReadI16(code, pc+1), height: vm.sp - fr.base})
	case bytecode.OpPopTrap:
		fr.traps = fr.traps[:len(fr.traps)-1]
	case bytecode.OpThrow:
		return Null, false, Throw(vm.pop())

	// Calls and generators
	case bytecode.OpCall:
		argc := int(code[pc+1])
		return Null, false, vm.call(vm.sp-argc-2, argc)
	case bytecode.OpYield:
		return vm.yield(stop)
	case bytecode.OpResume:
		gen := vm.top()
		if gen.kind != KindGenerator {
			return Null, false, newError(TypeError, "cannot resume a '%s'", gen.TypeName())
		}
		v, _, err := vm.resumeGenerator(gen, Null)
		if err != nil {
			return Null, false, err
		}
		vm.stack[vm.sp-1] = v
	case bytecode.OpReturn:
		res, done := vm.ret(vm.pop(), stop)
		return res, done, nil
	case bytecode.OpReturnNull:
		res, done := vm.ret(Null, stop)
		return res, done, nil

	// Construction
	case bytecode.OpNewTable:
		t, err := vm.newTable(0)
		if err != nil {
			return Null, false, err
		}
		vm.push(t)
	case bytecode.OpNewArray:
		n := int(bytecode.ReadU16(code, pc+1))
		arr, err := vm.newArray(slices.Clone(vm.stack[vm.sp-n : vm.sp]))
		if err != nil {
			return Null, false, err
		}
		vm.sp -= n
		vm.push(arr)
	case bytecode.OpClass:
		name := fr.consts[bytecode.ReadU16(code, pc+1)].str
		base := Null
		if code[pc+3] != 0 {
			base = vm.top()
			if base.kind != KindClass {
				return Null, false, newError(TypeError, "invalid base type '%s'", base.TypeName())
			}
		}
		cls, err := vm.newClass(name, base)
		if err != nil {
			return Null, false, err
		}
		if !base.IsNull() {
			vm.sp--
		}
		vm.push(cls)
	case bytecode.OpClassMember:
		if err := vm.addMember(vm.stack[vm.sp-3], vm.stack[vm.sp-2], vm.stack[vm.sp-1], code[pc+1] != 0); err != nil {
			return Null, false, err
		}
		vm.sp -= 2
	case bytecode.OpClone:
		v, err := vm.clone(vm.top())
		if err != nil {
			return Null, false, err
		}
		vm.stack[vm.sp-1] = v

	default:
		return Null, false, newError(RuntimeFault, "invalid opcode 0x%02x at %s:%d", byte(op), fr.chunk.Name, pc)
	}
	return Null, false, nil
}

func compareResult(op bytecode.Opcode, c int) Value {
	switch op {
	case bytecode.OpLt:
		return Bool(c < 0)
	case bytecode.OpLe:
		return Bool(c <= 0)
	case bytecode.OpGt:
		return Bool(c > 0)
	case bytecode.OpGe:
		return Bool(c >= 0)
	}
	return Int(int64(c))
}

// foreach advances the iterator in the four slots starting at the operand
// slot: container, iterator state, key, value.
func (vm *VM) foreach(pc int) error {
	fr := &vm.frames[len(vm.frames)-1]
	code := fr.chunk.Code
	slot := fr.base + int(code[pc+1])
	exit := pc + 4 + bytecode.ReadI16(code, pc+2)

	container, iter := vm.stack[slot], vm.stack[slot+1]
	pos := 0
	if iter.IsInteger() {
		pos = int(iter.AsInt())
	}

	var key, val Value
	switch container.kind {
	case KindTable, KindInstance, KindClass:
		k, v, next, ok := vm.tableOf(container).next(pos)
		if !ok {
			fr.pc = exit
			return nil
		}
		key, val, pos = k, v, next
	case KindArray:
		items := vm.heap.get(container).(*arrayObject).items
		if pos >= len(items) {
			fr.pc = exit
			return nil
		}
		key, val, pos = Int(int64(pos)), items[pos], pos+1
	case KindString:
		s := container.str
		if pos >= len(s) {
			fr.pc = exit
			return nil
		}
		key, val, pos = Int(int64(pos)), Int(int64(s[pos])), pos+1
	case KindGenerator:
		if vm.heap.get(container).(*generatorObject).state == GenDead {
			fr.pc = exit
			return nil
		}
		v, done, err := vm.resumeGenerator(container, Null)
		// The nested run may have grown the frame slice.
		fr = &vm.frames[len(vm.frames)-1]
		if err != nil {
			return err
		}
		if done {
			fr.pc = exit
			return nil
		}
		key, val, pos = Int(int64(pos)), v, pos+1
	default:
		return newError(TypeError, "cannot iterate a '%s'", container.TypeName())
	}
	vm.stack[slot+1] = Int(int64(pos))
	vm.stack[slot+2] = key
	vm.stack[slot+3] = val
	return nil
}

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

// normalize converts any error to a ScriptError owned by this raise.
func (vm *VM) normalize(err error) *ScriptError {
	se := asScriptError(err)
	if isSentinel(se) {
		c := *se
		se = &c
	}
	if se.Value.IsNull() && !se.thrown {
		se.Value = String(se.Message)
	}
	return se
}

// fault normalizes err and captures the call stack at the raise point.
func (vm *VM) fault(err error) *ScriptError {
	se := vm.normalize(err)
	if se.Trace == nil && !se.abort {
		se.Trace = vm.trace()
	}
	return se
}

// unwind delivers err to the innermost try handler above stop. It returns
// nil when a handler took the fault, else the fault with every frame
// above stop popped.
func (vm *VM) unwind(err error, stop int) *ScriptError {
	se := vm.fault(err)
	for len(vm.frames) > stop {
		fr := &vm.frames[len(vm.frames)-1]
		if n := len(fr.traps); n > 0 && !se.abort {
			t := fr.traps[n-1]
			fr.traps = fr.traps[:n-1]
			vm.closeUpvalues(fr.base + t.height)
			vm.sp = fr.base + t.height
			vm.push(se.Value)
			fr.pc = t.catchPC
			return nil
		}
		vm.popFrame()
	}
	return se
}

func (vm *VM) popFrame() {
	fr := &vm.frames[len(vm.frames)-1]
	vm.closeUpvalues(fr.base)
	if !fr.gen.IsNull() {
		vm.finishGenerator(fr.gen)
	}
	vm.sp = fr.base - 1
	vm.frames = vm.frames[:len(vm.frames)-1]
}

// trace returns the script call stack, innermost first.
func (vm *VM) trace() []TraceEntry {
	out := make([]TraceEntry, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		line, _ := fr.chunk.GetSourceLocation(uint32(max(fr.pc-1, 0)))
		out = append(out, TraceEntry{Function: fr.chunk.Name, Source: fr.chunk.Source, Line: int(line)})
	}
	return out
}
