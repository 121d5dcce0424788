package vm

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ---------------------------------------------------------------------------
// String library
// ---------------------------------------------------------------------------

func (vm *VM) registerStringPrimitives() error {
	patterns := make(map[string]*regexp.Regexp)

	defs := map[string]NativeDef{
		"len": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Int(int64(len(args[0].str))), nil
		}},
		"upper": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(cases.Upper(language.Und).String(args[0].str)), nil
		}},
		"lower": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(cases.Lower(language.Und).String(args[0].str)), nil
		}},
		"strip": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(strings.TrimSpace(args[0].str)), nil
		}},
		"lstrip": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(strings.TrimLeft(args[0].str, " \t\r\n\v\f")), nil
		}},
		"rstrip": {". s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(strings.TrimRight(args[0].str, " \t\r\n\v\f")), nil
		}},

		// split - split at any of the separator bytes, dropping empty fields
		"split": {". s s", func(vm *VM, _ Value, args []Value) (Value, error) {
			seps := args[1].str
			fields := strings.FieldsFunc(args[0].str, func(r rune) bool {
				return strings.ContainsRune(seps, r)
			})
			items := make([]Value, len(fields))
			for i, f := range fields {
				items[i] = String(f)
			}
			return vm.newArray(items)
		}},

		// find - index of the first occurrence at or after start, or null
		"find": {". s s ?i", func(_ *VM, _ Value, args []Value) (Value, error) {
			return stringFind(args[0].str, args[1].str, args)
		}},

		"slice": {". s i ?i", func(_ *VM, _ Value, args []Value) (Value, error) {
			return stringSlice(args[0].str, args[1:])
		}},
		"replace": {". s s s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return String(strings.ReplaceAll(args[0].str, args[1].str, args[2].str)), nil
		}},
		"startswith": {". s s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Bool(strings.HasPrefix(args[0].str, args[1].str)), nil
		}},
		"endswith": {". s s", func(_ *VM, _ Value, args []Value) (Value, error) {
			return Bool(strings.HasSuffix(args[0].str, args[1].str)), nil
		}},

		// join - join the array elements, formatted with tostring
		"join": {". a s", func(vm *VM, _ Value, args []Value) (Value, error) {
			items := vm.heap.get(args[0]).(*arrayObject).items
			parts := make([]string, len(items))
			for i, it := range items {
				s, err := vm.tostring(it)
				if err != nil {
					return Null, err
				}
				parts[i] = s
			}
			return String(strings.Join(parts, args[1].str)), nil
		}},

		"format": {". s ...", func(vm *VM, _ Value, args []Value) (Value, error) {
			s, err := vm.format(args[0].str, args[1:])
			return String(s), err
		}},

		"repeat": {". s i", func(vm *VM, _ Value, args []Value) (Value, error) {
			n := args[1].AsInt()
			if n < 0 {
				return Null, newError(ArgumentError, "negative repeat count %d", n)
			}
			if err := vm.reserveEach(n, int64(len(args[0].str))); err != nil {
				return Null, err
			}
			return String(strings.Repeat(args[0].str, int(n))), nil
		}},

		// match - the submatches of the first match of a regular
		// expression, or null
		"match": {". s s", func(vm *VM, _ Value, args []Value) (Value, error) {
			re, ok := patterns[args[1].str]
			if !ok {
				var err error
				re, err = regexp.Compile(args[1].str)
				if err != nil {
					return Null, newError(ArgumentError, "invalid pattern: %v", err)
				}
				patterns[args[1].str] = re
			}
			m := re.FindStringSubmatch(args[0].str)
			if m == nil {
				return Null, nil
			}
			items := make([]Value, len(m))
			for i, s := range m {
				items[i] = String(s)
			}
			return vm.newArray(items)
		}},
	}
	_, err := vm.RegisterModule("string", defs, nil)
	return err
}

func stringFind(s, sub string, args []Value) (Value, error) {
	start := 0
	if len(args) > 2 {
		start = int(args[2].AsInt())
		if start < 0 || start > len(s) {
			return Null, newError(IndexError, "start %d out of range [0, %d]", start, len(s))
		}
	}
	i := strings.Index(s[start:], sub)
	if i < 0 {
		return Null, nil
	}
	return Int(int64(start + i)), nil
}

// stringSlice returns s[start:end]; negative bounds count from the end.
func stringSlice(s string, bounds []Value) (Value, error) {
	start, end, err := sliceBounds(len(s), bounds)
	if err != nil {
		return Null, err
	}
	return String(s[start:end]), nil
}

func sliceBounds(n int, bounds []Value) (int, int, error) {
	start, end := int(bounds[0].AsInt()), n
	if len(bounds) > 1 && !bounds[1].IsNull() {
		end = int(bounds[1].AsInt())
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 || start > end || end > n {
		return 0, 0, newError(IndexError, "slice [%d:%d] out of range for length %d", start, end, n)
	}
	return start, end, nil
}

// format implements printf-style formatting over script values. Each
// verb consumes one argument, converted to what the verb expects.
func (vm *VM) format(f string, args []Value) (string, error) {
	var sb strings.Builder
	next := 0
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(f) && strings.IndexByte("-+ #0123456789.", f[j]) >= 0 {
			j++
		}
		if j == len(f) {
			return "", newError(ArgumentError, "incomplete format verb at %d", i)
		}
		verb := f[j]
		if verb == '%' {
			sb.WriteByte('%')
			i = j
			continue
		}
		if next >= len(args) {
			return "", newError(ArgumentError, "not enough arguments for format string")
		}
		a := args[next]
		next++
		spec := f[i : j+1]
		switch verb {
		case 'd', 'i', 'x', 'X', 'o', 'c':
			if !a.IsNumber() {
				return "", newError(ArgumentError, "format %s expects a number, got '%s'", spec, a.TypeName())
			}
			if verb == 'i' {
				spec = spec[:len(spec)-1] + "d"
			}
			fmt.Fprintf(&sb, spec, a.AsInt())
		case 'f', 'F', 'e', 'E', 'g', 'G':
			if !a.IsNumber() {
				return "", newError(ArgumentError, "format %s expects a number, got '%s'", spec, a.TypeName())
			}
			fmt.Fprintf(&sb, spec, a.AsFloat())
		case 's':
			s, err := vm.tostring(a)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, spec, s)
		default:
			return "", newError(ArgumentError, "invalid format verb '%c'", verb)
		}
		i = j
	}
	return sb.String(), nil
}
