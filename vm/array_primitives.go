package vm

import (
	"slices"
)

// ---------------------------------------------------------------------------
// Array delegate
// ---------------------------------------------------------------------------

func arrayOf(vm *VM, a Value) *arrayObject {
	return vm.heap.get(a).(*arrayObject)
}

// arrayInsert puts v at index i, shifting later elements up.
func (vm *VM) arrayInsert(a Value, i int, v Value) error {
	arr := arrayOf(vm, a)
	if i < 0 || i > len(arr.items) {
		return newError(IndexError, "index %d out of range [0, %d]", i, len(arr.items))
	}
	if err := vm.charge(a, valueBytes(v)); err != nil {
		return err
	}
	vm.heap.retain(v)
	arr.items = slices.Insert(arr.items, i, v)
	return nil
}

// arrayRemove deletes index i and returns the element. The element is
// protected for the rest of the native call.
func (vm *VM) arrayRemove(a Value, i int) Value {
	arr := arrayOf(vm, a)
	v := vm.protect(arr.items[i])
	arr.items = slices.Delete(arr.items, i, i+1)
	vm.charge(a, -valueBytes(v))
	vm.heap.release(v)
	return v
}

// arrayResize truncates or extends with fill.
func (vm *VM) arrayResize(a Value, n int, fill Value) error {
	arr := arrayOf(vm, a)
	if n < 0 {
		return newError(ArgumentError, "negative array size %d", n)
	}
	for len(arr.items) > n {
		vm.arrayRemove(a, len(arr.items)-1)
	}
	if grow := n - len(arr.items); grow > 0 {
		if err := vm.reserveEach(int64(grow), valueBytes(fill)); err != nil {
			return err
		}
		if err := vm.charge(a, int64(grow)*valueBytes(fill)); err != nil {
			return err
		}
		for i := 0; i < grow; i++ {
			vm.heap.retain(fill)
			arr.items = append(arr.items, fill)
		}
	}
	return nil
}

// snapshot copies the elements for callbacks that may mutate the array.
// The copies stay protected until the native returns.
func (vm *VM) snapshot(a Value) []Value {
	items := slices.Clone(arrayOf(vm, a).items)
	for _, it := range items {
		vm.protect(it)
	}
	return items
}

var arrayDelegate = map[string]NativeDef{
	"len": {"a", func(vm *VM, this Value, _ []Value) (Value, error) {
		return Int(int64(len(arrayOf(vm, this).items))), nil
	}},

	"append": {"a .", func(vm *VM, this Value, args []Value) (Value, error) {
		return this, vm.ArrayAppend(this, args[0])
	}},

	"push": {"a .", func(vm *VM, this Value, args []Value) (Value, error) {
		return this, vm.ArrayAppend(this, args[0])
	}},

	// pop - remove and return the last element
	"pop": {"a", func(vm *VM, this Value, _ []Value) (Value, error) {
		n := len(arrayOf(vm, this).items)
		if n == 0 {
			return Null, newError(IndexError, "pop on an empty array")
		}
		return vm.arrayRemove(this, n-1), nil
	}},

	"top": {"a", func(vm *VM, this Value, _ []Value) (Value, error) {
		items := arrayOf(vm, this).items
		if len(items) == 0 {
			return Null, newError(IndexError, "top on an empty array")
		}
		return items[len(items)-1], nil
	}},

	"insert": {"a i .", func(vm *VM, this Value, args []Value) (Value, error) {
		return this, vm.arrayInsert(this, int(args[0].AsInt()), args[1])
	}},

	"remove": {"a i", func(vm *VM, this Value, args []Value) (Value, error) {
		i, err := arrayIndex(args[0], len(arrayOf(vm, this).items))
		if err != nil {
			return Null, err
		}
		return vm.arrayRemove(this, i), nil
	}},

	"resize": {"a i ?.", func(vm *VM, this Value, args []Value) (Value, error) {
		fill := Null
		if len(args) > 1 {
			fill = args[1]
		}
		return this, vm.arrayResize(this, int(args[0].AsInt()), fill)
	}},

	// sort - stable sort in place, by the natural order or a comparator
	// returning <0, 0 or >0
	"sort": {"a ?c", func(vm *VM, this Value, args []Value) (Value, error) {
		items := vm.snapshot(this)
		var sortErr error
		cmp := func(a, b Value) int {
			if sortErr != nil {
				return 0
			}
			if len(args) == 0 {
				c, err := Compare(a, b)
				sortErr = err
				return c
			}
			r, err := vm.callValue(args[0], vm.root, []Value{a, b})
			if err != nil {
				sortErr = err
				return 0
			}
			if !r.IsNumber() {
				sortErr = newError(TypeError, "sort comparator must return a number, got '%s'", r.TypeName())
				return 0
			}
			return int(r.AsInt())
		}
		slices.SortStableFunc(items, cmp)
		if sortErr != nil {
			return Null, sortErr
		}
		arr := arrayOf(vm, this)
		if len(arr.items) != len(items) {
			return Null, newError(RuntimeFault, "array modified during sort")
		}
		copy(arr.items, items)
		return this, nil
	}},

	"reverse": {"a", func(vm *VM, this Value, _ []Value) (Value, error) {
		slices.Reverse(arrayOf(vm, this).items)
		return this, nil
	}},

	"slice": {"a i ?i|o", func(vm *VM, this Value, args []Value) (Value, error) {
		items := arrayOf(vm, this).items
		start, end, err := sliceBounds(len(items), args)
		if err != nil {
			return Null, err
		}
		return vm.newArray(slices.Clone(items[start:end]))
	}},

	// map - new array of fn(value) for every element
	"map": {"a c", func(vm *VM, this Value, args []Value) (Value, error) {
		items := vm.snapshot(this)
		out := make([]Value, len(items))
		for i, it := range items {
			r, err := vm.callValue(args[0], vm.root, []Value{it})
			if err != nil {
				return Null, err
			}
			out[i] = r
		}
		return vm.newArray(out)
	}},

	// filter - new array of the elements for which fn(index, value) is true
	"filter": {"a c", func(vm *VM, this Value, args []Value) (Value, error) {
		items := vm.snapshot(this)
		var out []Value
		for i, it := range items {
			r, err := vm.callValue(args[0], vm.root, []Value{Int(int64(i)), it})
			if err != nil {
				return Null, err
			}
			if Truthy(r) {
				out = append(out, it)
			}
		}
		return vm.newArray(out)
	}},

	// reduce - fold with fn(accumulator, value); an empty array without
	// an initial value reduces to null
	"reduce": {"a c ?.", func(vm *VM, this Value, args []Value) (Value, error) {
		items := vm.snapshot(this)
		acc := Null
		switch {
		case len(args) > 1:
			acc = args[1]
		case len(items) == 0:
			return Null, nil
		default:
			acc, items = items[0], items[1:]
		}
		for _, it := range items {
			r, err := vm.callValue(args[0], vm.root, []Value{acc, it})
			if err != nil {
				return Null, err
			}
			acc = r
		}
		return acc, nil
	}},

	// find - index of the first element equal to v, or null
	"find": {"a .", func(vm *VM, this Value, args []Value) (Value, error) {
		for i, it := range arrayOf(vm, this).items {
			if Equal(it, args[0]) {
				return Int(int64(i)), nil
			}
		}
		return Null, nil
	}},

	"clear": {"a", func(vm *VM, this Value, _ []Value) (Value, error) {
		return this, vm.arrayResize(this, 0, Null)
	}},

	"tostring": {"a", tostringDef},
}
