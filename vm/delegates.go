package vm

import (
	"fmt"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ---------------------------------------------------------------------------
// Default delegates: methods of non-table values
// ---------------------------------------------------------------------------

// AllLibraries lists every standard library module in the order New
// opens them.
var AllLibraries = []string{"base", "string", "math", "io", "blob", "system"}

// OpenLibrary installs a standard library module in the root table.
func (vm *VM) OpenLibrary(name string) error {
	var err error
	switch name {
	case "base":
		err = vm.registerBasePrimitives()
	case "string":
		err = vm.registerStringPrimitives()
	case "math":
		err = vm.registerMathPrimitives()
	case "io":
		err = vm.registerIOPrimitives()
	case "blob":
		err = vm.registerBlobPrimitives()
	case "system":
		err = vm.registerSystemPrimitives()
	default:
		return fmt.Errorf("unknown library %q", name)
	}
	if err != nil {
		return fmt.Errorf("open library %s: %w", name, err)
	}
	log.Debugf("vm %s: opened library %s", vm.id, name)
	return nil
}

func (vm *VM) registerDelegates() error {
	tables := []struct {
		kind Kind
		defs map[string]NativeDef
	}{
		{KindInteger, numberDelegate},
		{KindFloat, numberDelegate},
		{KindBool, boolDelegate},
		{KindString, stringDelegate},
		{KindArray, arrayDelegate},
		{KindTable, tableDelegate},
		{KindClosure, closureDelegate},
		{KindGenerator, generatorDelegate},
		{KindWeakRef, weakRefDelegate},
		{KindClass, classDelegate},
		{KindInstance, instanceDelegate},
	}
	for _, t := range tables {
		d, err := vm.buildTable(t.kind.String(), t.defs, nil)
		if err != nil {
			return err
		}
		vm.heap.hostRetain(d)
		vm.delegates[t.kind] = d
	}
	return nil
}

// Delegate returns the delegate table for a kind, or null.
func (vm *VM) Delegate(k Kind) Value {
	if k == KindNative {
		k = KindClosure
	}
	return vm.delegates[k]
}

func tostringDef(vm *VM, this Value, _ []Value) (Value, error) {
	s, err := vm.tostring(this)
	return String(s), err
}

var numberDelegate = map[string]NativeDef{
	"tointeger": {"n", func(_ *VM, this Value, _ []Value) (Value, error) { return toInteger(this) }},
	"tofloat":   {"n", func(_ *VM, this Value, _ []Value) (Value, error) { return toFloat(this) }},
	"tostring":  {"n", tostringDef},
	"tochar": {"n", func(_ *VM, this Value, _ []Value) (Value, error) {
		return String(string(rune(this.AsInt()))), nil
	}},
}

var boolDelegate = map[string]NativeDef{
	"tointeger": {"b", func(_ *VM, this Value, _ []Value) (Value, error) { return toInteger(this) }},
	"tofloat":   {"b", func(_ *VM, this Value, _ []Value) (Value, error) { return toFloat(this) }},
	"tostring":  {"b", tostringDef},
}

var stringDelegate = map[string]NativeDef{
	"len": {"s", func(_ *VM, this Value, _ []Value) (Value, error) {
		return Int(int64(len(this.str))), nil
	}},
	"slice": {"s i ?i|o", func(_ *VM, this Value, args []Value) (Value, error) {
		return stringSlice(this.str, args)
	}},
	"find": {"s s ?i", func(_ *VM, this Value, args []Value) (Value, error) {
		return stringFind(this.str, args[0].str, append([]Value{this}, args...))
	}},
	"tointeger": {"s", func(_ *VM, this Value, _ []Value) (Value, error) { return toInteger(this) }},
	"tofloat":   {"s", func(_ *VM, this Value, _ []Value) (Value, error) { return toFloat(this) }},
	"toupper": {"s", func(_ *VM, this Value, _ []Value) (Value, error) {
		return String(cases.Upper(language.Und).String(this.str)), nil
	}},
	"tolower": {"s", func(_ *VM, this Value, _ []Value) (Value, error) {
		return String(cases.Lower(language.Und).String(this.str)), nil
	}},
	"tostring": {"s", tostringDef},
}

var tableDelegate = map[string]NativeDef{
	"len": {"t", func(vm *VM, this Value, _ []Value) (Value, error) {
		return Int(int64(vm.tableOf(this).len())), nil
	}},
	"rawget": {"t .", func(vm *VM, this Value, args []Value) (Value, error) {
		if v, ok := vm.tableOf(this).get(args[0]); ok {
			return v, nil
		}
		return Null, missingKey(args[0])
	}},
	"rawset": {"t . .", func(vm *VM, this Value, args []Value) (Value, error) {
		if err := vm.TableSet(this, args[0], args[1]); err != nil {
			return Null, err
		}
		return this, nil
	}},
	"rawin": {"t .", func(vm *VM, this Value, args []Value) (Value, error) {
		_, ok := vm.tableOf(this).get(args[0])
		return Bool(ok), nil
	}},
	"rawdelete": {"t .", func(vm *VM, this Value, args []Value) (Value, error) {
		v, _ := vm.tableRemove(this, vm.tableOf(this), args[0])
		return v, nil
	}},
	"keys": {"t", func(vm *VM, this Value, _ []Value) (Value, error) {
		var keys []Value
		vm.TableEach(this, func(k, _ Value) bool {
			keys = append(keys, k)
			return true
		})
		return vm.newArray(keys)
	}},
	"values": {"t", func(vm *VM, this Value, _ []Value) (Value, error) {
		var vals []Value
		vm.TableEach(this, func(_, v Value) bool {
			vals = append(vals, v)
			return true
		})
		return vm.newArray(vals)
	}},
	"clear": {"t", func(vm *VM, this Value, _ []Value) (Value, error) {
		vm.tableClear(this, vm.tableOf(this))
		return this, nil
	}},
	"tostring": {"t", tostringDef},
}

var closureDelegate = map[string]NativeDef{
	// call - call with an explicit this
	"call": {"c . ...", func(vm *VM, this Value, args []Value) (Value, error) {
		return vm.callValue(this, args[0], args[1:])
	}},
	// acall - call with this and the arguments taken from an array
	"acall": {"c a", func(vm *VM, this Value, args []Value) (Value, error) {
		items := vm.heap.get(args[0]).(*arrayObject).items
		if len(items) == 0 {
			return Null, newError(ArgumentError, "acall expects at least this in the array")
		}
		return vm.callValue(this, items[0], slices.Clone(items[1:]))
	}},
	"getinfos": {"c", func(vm *VM, this Value, _ []Value) (Value, error) {
		return vm.functionInfo(this)
	}},
	"tostring": {"c", tostringDef},
}

var generatorDelegate = map[string]NativeDef{
	"status": {"g", func(vm *VM, this Value, _ []Value) (Value, error) {
		st, err := vm.GeneratorStatus(this)
		return String(st.String()), err
	}},
	"tostring": {"g", tostringDef},
}

var weakRefDelegate = map[string]NativeDef{
	"ref": {"r", func(vm *VM, this Value, _ []Value) (Value, error) {
		return vm.WeakRefTarget(this)
	}},
	"tostring": {"r", tostringDef},
}

var classDelegate = map[string]NativeDef{
	"getbase": {"y", func(vm *VM, this Value, _ []Value) (Value, error) {
		return vm.heap.get(this).(*classObject).base, nil
	}},
	// instance - create an instance without running the constructor
	"instance": {"y", func(vm *VM, this Value, _ []Value) (Value, error) {
		return vm.newInstance(this, vm.heap.get(this).(*classObject))
	}},
	"rawin": {"y .", func(vm *VM, this Value, args []Value) (Value, error) {
		_, ok := vm.tableOf(this).get(args[0])
		return Bool(ok), nil
	}},
	"tostring": {"y", tostringDef},
}

var instanceDelegate = map[string]NativeDef{
	"getclass": {"x", func(vm *VM, this Value, _ []Value) (Value, error) {
		return vm.heap.get(this).(*instanceObject).class, nil
	}},
	"rawin": {"x .", func(vm *VM, this Value, args []Value) (Value, error) {
		_, ok := vm.lookupSlot(this, args[0])
		return Bool(ok), nil
	}},
	"rawget": {"x .", func(vm *VM, this Value, args []Value) (Value, error) {
		if v, ok := vm.lookupSlot(this, args[0]); ok {
			return v, nil
		}
		return Null, missingKey(args[0])
	}},
	"rawset": {"x . .", func(vm *VM, this Value, args []Value) (Value, error) {
		if err := vm.set(this, args[0], args[1]); err != nil {
			return Null, err
		}
		return this, nil
	}},
	"tostring": {"x", tostringDef},
}

// functionInfo describes a function for getinfos.
func (vm *VM) functionInfo(fn Value) (Value, error) {
	tv, err := vm.newTable(4)
	if err != nil {
		return Null, err
	}
	switch o := vm.heap.get(fn).(type) {
	case *closureObject:
		names := make([]Value, 0, len(o.proto.ParamNames)+1)
		names = append(names, String("this"))
		for _, n := range o.proto.ParamNames {
			names = append(names, String(n))
		}
		params, err := vm.newArray(names)
		if err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("name"), String(o.proto.Name)); err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("src"), String(o.proto.Source)); err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("parameters"), params); err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("varargs"), Bool(o.proto.IsVarargs())); err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("native"), False); err != nil {
			return Null, err
		}
	case *nativeObject:
		if err := vm.TableSet(tv, String("name"), String(o.name)); err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("typecheck"), String(o.sig.String())); err != nil {
			return Null, err
		}
		if err := vm.TableSet(tv, String("native"), True); err != nil {
			return Null, err
		}
	}
	return tv, nil
}
