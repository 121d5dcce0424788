package vm

// ---------------------------------------------------------------------------
// Weak references
// ---------------------------------------------------------------------------

// NewWeakRef returns a weak reference to v. Weak references to scalars
// are the scalars themselves, since they cannot be reclaimed.
func (vm *VM) NewWeakRef(v Value) (Value, error) {
	if !v.IsHeap() {
		return v, nil
	}
	if !vm.heap.Valid(v.Handle()) {
		return Null, newError(RuntimeFault, "weak reference to a reclaimed object")
	}
	return vm.alloc(&weakRefObject{target: v})
}

// WeakRefTarget returns the target of a weak reference, or null once the
// target has been reclaimed.
func (vm *VM) WeakRefTarget(ref Value) (Value, error) {
	w, ok := vm.heap.get(ref).(*weakRefObject)
	if !ok {
		return Null, newError(TypeError, "expected a weakref, got '%s'", ref.TypeName())
	}
	if !vm.heap.Valid(w.target.Handle()) {
		return Null, nil
	}
	return w.target, nil
}
