package vm

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/squirrel"
)

// ---------------------------------------------------------------------------
// Base library: global functions
// ---------------------------------------------------------------------------

func (vm *VM) registerBasePrimitives() error {
	defs := map[string]NativeDef{
		// print - write the arguments to the print handler, no newline
		"print": {". ...", func(vm *VM, _ Value, args []Value) (Value, error) {
			var sb strings.Builder
			for _, a := range args {
				s, err := vm.tostring(a)
				if err != nil {
					return Null, err
				}
				sb.WriteString(s)
			}
			vm.opts.Print(sb.String())
			return Null, nil
		}},

		// error - write the arguments to the error handler
		"error": {". ...", func(vm *VM, _ Value, args []Value) (Value, error) {
			var sb strings.Builder
			for _, a := range args {
				s, err := vm.tostring(a)
				if err != nil {
					return Null, err
				}
				sb.WriteString(s)
			}
			vm.opts.ErrorHandler(sb.String())
			return Null, nil
		}},

		"assert": {". . ?s", func(_ *VM, _ Value, args []Value) (Value, error) {
			if Truthy(args[0]) {
				return Null, nil
			}
			if len(args) > 1 {
				return Null, newError(RuntimeFault, "%s", args[1].str)
			}
			return Null, newError(RuntimeFault, "assertion failed")
		}},

		"type": {". .", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(typeOf(args[0])), nil
		}},

		"tostring": {". .", func(vm *VM, _ Value, args []Value) (Value, error) {
			s, err := vm.tostring(args[0])
			return String(s), err
		}},

		"tointeger": {". .", func(_ *VM, _ Value, args []Value) (Value, error) {
			return toInteger(args[0])
		}},

		"tofloat": {". .", func(_ *VM, _ Value, args []Value) (Value, error) {
			return toFloat(args[0])
		}},

		"len": {". .", func(vm *VM, _ Value, args []Value) (Value, error) {
			n, err := vm.length(args[0])
			return Int(int64(n)), err
		}},

		// array - create an array of n elements, each set to fill
		"array": {". n ?.", func(vm *VM, _ Value, args []Value) (Value, error) {
			n := args[0].AsInt()
			if n < 0 {
				return Null, newError(ArgumentError, "negative array size %d", n)
			}
			fill := Null
			if len(args) > 1 {
				fill = args[1]
			}
			if err := vm.reserveEach(n, valueBytes(fill)); err != nil {
				return Null, err
			}
			items := make([]Value, n)
			for i := range items {
				items[i] = fill
			}
			return vm.newArray(items)
		}},

		"getroottable": {".", func(vm *VM, _ Value, _ []Value) (Value, error) {
			return vm.root, nil
		}},

		// collectgarbage - run a full collection; returns the objects freed
		"collectgarbage": {".", func(vm *VM, _ Value, _ []Value) (Value, error) {
			stats := vm.collect()
			return Int(int64(stats.Reclaimed + stats.Collected)), nil
		}},

		"weakref": {". .", func(vm *VM, _ Value, args []Value) (Value, error) {
			return vm.NewWeakRef(args[0])
		}},

		// seterrorhandler - install fn to receive uncaught errors; null removes it
		"seterrorhandler": {". c|o", func(vm *VM, _ Value, args []Value) (Value, error) {
			vm.heap.hostRelease(vm.onError)
			vm.onError = args[0]
			vm.heap.hostRetain(vm.onError)
			return Null, nil
		}},

		"geterrorhandler": {".", func(vm *VM, _ Value, _ []Value) (Value, error) {
			return vm.onError, nil
		}},

		// compilestring - compile source into a function without running it
		"compilestring": {". s ?s", func(vm *VM, _ Value, args []Value) (Value, error) {
			name := "compilestring"
			if len(args) > 1 {
				name = args[1].str
			}
			chunk, err := vm.Compile([]byte(args[0].str), name)
			if err != nil {
				return Null, err
			}
			return vm.newClosure(chunk, nil)
		}},

		// loadfile - compile a script file into a function
		"loadfile": {". s", func(vm *VM, _ Value, args []Value) (Value, error) {
			return vm.loadFile(args[0].str)
		}},

		// dofile - compile and run a script file with the root table as this
		"dofile": {". s", func(vm *VM, _ Value, args []Value) (Value, error) {
			fn, err := vm.loadFile(args[0].str)
			if err != nil {
				return Null, err
			}
			return vm.callValue(fn, vm.root, nil)
		}},
	}
	for _, name := range sortedKeys(defs) {
		def := defs[name]
		if err := vm.RegisterNative(name, def.Fn, def.Sig); err != nil {
			return err
		}
	}
	if err := vm.TableSet(vm.root, String("_versionnumber_"), Int(squirrel.VersionNumber)); err != nil {
		return err
	}
	return vm.TableSet(vm.root, String("_version_"), String(squirrel.VersionString))
}

// tostring formats v for print and tostring. Tables and instances with
// a _tostring method format through it.
func (vm *VM) tostring(v Value) (string, error) {
	switch v.kind {
	case KindTable, KindInstance:
		m, ok := vm.lookupSlot(v, String("_tostring"))
		if !ok || !isFunction(m) {
			break
		}
		r, err := vm.callValue(m, v, nil)
		if err != nil {
			return "", err
		}
		return r.String(), nil
	}
	return v.String(), nil
}

func toInteger(v Value) (Value, error) {
	switch v.kind {
	case KindInteger:
		return v, nil
	case KindFloat:
		return Int(v.AsInt()), nil
	case KindBool:
		if v.AsBool() {
			return Int(1), nil
		}
		return Int(0), nil
	case KindString:
		if n, ok := ParseNumber(v.str); ok {
			return Int(n.AsInt()), nil
		}
		return Null, newError(TypeError, "cannot convert '%s' to integer", v.str)
	}
	return Null, newError(TypeError, "cannot convert a '%s' to integer", v.TypeName())
}

func toFloat(v Value) (Value, error) {
	switch v.kind {
	case KindInteger, KindFloat:
		return Float(v.AsFloat()), nil
	case KindBool:
		if v.AsBool() {
			return Float(1), nil
		}
		return Float(0), nil
	case KindString:
		if n, ok := ParseNumber(v.str); ok {
			return Float(n.AsFloat()), nil
		}
		return Null, newError(TypeError, "cannot convert '%s' to float", v.str)
	}
	return Null, newError(TypeError, "cannot convert a '%s' to float", v.TypeName())
}

// length is what len reports: bytes of a string, elements of an array,
// slots of a table, or the result of a len method on user data.
func (vm *VM) length(v Value) (int, error) {
	switch o := vm.heap.get(v).(type) {
	case nil:
		if v.kind == KindString {
			return len(v.str), nil
		}
	case *arrayObject:
		return len(o.items), nil
	case *tableObject:
		return o.len(), nil
	case *instanceObject:
		return o.fields.len(), nil
	case *classObject:
		return o.members.len(), nil
	case *userDataObject:
		m, err := vm.get(v, String("len"))
		if err != nil {
			break
		}
		r, err := vm.callValue(m, v, nil)
		if err != nil {
			return 0, err
		}
		return int(r.AsInt()), nil
	}
	return 0, newError(TypeError, "'%s' has no length", v.TypeName())
}

// loadFile compiles a script found directly or in the search paths.
func (vm *VM) loadFile(path string) (Value, error) {
	full, err := vm.findScript(path)
	if err != nil {
		return Null, err
	}
	src, err := os.ReadFile(full)
	if err != nil {
		return Null, hostError(IOError, err, "cannot read '%s'", path)
	}
	chunk, err := vm.Compile(src, full)
	if err != nil {
		return Null, err
	}
	return vm.newClosure(chunk, nil)
}

func (vm *VM) findScript(path string) (string, error) {
	if _, err := os.Stat(path); err == nil || filepath.IsAbs(path) {
		return path, nil
	}
	for _, dir := range vm.opts.SearchPaths {
		full := filepath.Join(dir, path)
		if _, err := os.Stat(full); err == nil {
			return full, nil
		}
	}
	return "", hostError(IOError, fs.ErrNotExist, "cannot open '%s'", path)
}

// errNotFound reports whether err means a missing file.
func errNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
