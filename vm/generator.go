package vm

import (
	"slices"
)

// ---------------------------------------------------------------------------
// Generators: saved single-frame coroutines
// ---------------------------------------------------------------------------

// newGenerator creates a suspended generator for the closure fn. window
// holds this, the parameters and vargv; the generator takes references
// to them.
func (vm *VM) newGenerator(fn Value, window []Value) (Value, error) {
	g := &generatorObject{closure: fn, window: slices.Clone(window)}
	v, err := vm.alloc(g)
	if err != nil {
		return Null, err
	}
	vm.heap.retain(fn)
	for _, w := range g.window {
		vm.heap.retain(w)
	}
	return v, nil
}

// resumeGenerator re-enters a suspended generator, sending send as the
// value of the pending yield expression. It returns the next yielded
// value, or the return value with done set once the generator finishes.
//
// The generator runs in a nested dispatch loop on top of the current
// stack: [gen, closure, this, params..., locals...].
func (vm *VM) resumeGenerator(genV, send Value) (Value, bool, error) {
	g, ok := vm.heap.get(genV).(*generatorObject)
	if !ok {
		return Null, true, newError(TypeError, "cannot resume a '%s'", genV.TypeName())
	}
	switch g.state {
	case GenDead:
		return Null, true, newError(RuntimeFault, "resuming dead generator")
	case GenRunning:
		return Null, true, newError(RuntimeFault, "resuming active generator")
	}

	depth := len(vm.frames)
	mark := vm.sp
	vm.push(genV)
	vm.push(g.closure)
	base := vm.sp
	if err := vm.checkDepth(base); err != nil {
		vm.sp = mark
		return Null, true, err
	}

	// Window values move to the stack, where references are not counted.
	for _, v := range g.window {
		vm.push(v)
	}
	for _, v := range g.window {
		vm.heap.release(v)
	}
	g.window = nil
	if g.started {
		vm.push(send)
	}

	c := vm.heap.get(g.closure).(*closureObject)
	vm.frames = append(vm.frames, frame{
		closure: c,
		fn:      g.closure,
		chunk:   c.proto,
		consts:  c.consts,
		pc:      g.pc,
		base:    base,
		traps:   g.traps,
		gen:     genV,
	})
	g.traps = nil
	g.state = GenRunning

	res, err := vm.execute(depth)
	vm.sp = mark
	if err != nil {
		return Null, true, err
	}
	return res, g.state == GenDead, nil
}

// yield suspends the generator running in the current frame. The frame's
// window minus the yielded value is saved with owned references, open
// upvalues into it are closed, and the frame is popped.
func (vm *VM) yield(stop int) (Value, bool, error) {
	fr := &vm.frames[len(vm.frames)-1]
	g, ok := vm.heap.get(fr.gen).(*generatorObject)
	if !ok {
		return Null, false, newError(RuntimeFault, "yield outside a generator")
	}
	val := vm.pop()
	vm.closeUpvalues(fr.base)

	g.window = slices.Clone(vm.stack[fr.base:vm.sp])
	for _, v := range g.window {
		vm.heap.retain(v)
	}
	g.pc = fr.pc
	g.traps = slices.Clone(fr.traps)
	g.started = true
	g.state = GenSuspended

	vm.sp = fr.base - 1
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == stop {
		return val, true, nil
	}
	vm.push(val)
	return Null, false, nil
}

// finishGenerator marks a generator dead once its frame returns or faults.
func (vm *VM) finishGenerator(genV Value) {
	if g, ok := vm.heap.get(genV).(*generatorObject); ok {
		g.state = GenDead
		g.traps = nil
	}
}

// GeneratorStatus reports the state of a generator value.
func (vm *VM) GeneratorStatus(gen Value) (GeneratorState, error) {
	g, ok := vm.heap.get(gen).(*generatorObject)
	if !ok {
		return GenDead, newError(TypeError, "expected a generator, got '%s'", gen.TypeName())
	}
	return g.state, nil
}
