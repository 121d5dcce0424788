package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Native signatures
// ---------------------------------------------------------------------------

// TypeMask is a set of accepted kinds.
type TypeMask uint32

// MaskAny accepts every kind.
const MaskAny TypeMask = 1<<(KindWeakRef+1) - 1

func maskOf(kinds ...Kind) TypeMask {
	var m TypeMask
	for _, k := range kinds {
		m |= 1 << k
	}
	return m
}

var maskLetters = map[byte]TypeMask{
	'o': maskOf(KindNull),
	'b': maskOf(KindBool),
	'i': maskOf(KindInteger),
	'f': maskOf(KindFloat),
	'n': maskOf(KindInteger, KindFloat),
	's': maskOf(KindString),
	't': maskOf(KindTable),
	'a': maskOf(KindArray),
	'c': maskOf(KindClosure, KindNative),
	'u': maskOf(KindUserData),
	'y': maskOf(KindClass),
	'x': maskOf(KindInstance),
	'g': maskOf(KindGenerator),
	'r': maskOf(KindWeakRef),
	'.': MaskAny,
}

// Accepts reports whether k is in the mask.
func (m TypeMask) Accepts(k Kind) bool {
	return m&(1<<k) != 0
}

func (m TypeMask) String() string {
	if m == MaskAny {
		return "any"
	}
	var names []string
	for k := KindNull; k <= KindWeakRef; k++ {
		if m.Accepts(k) {
			names = append(names, k.String())
		}
	}
	return strings.Join(names, "|")
}

// Signature declares the receiver and argument kinds a native accepts.
type Signature struct {
	This     TypeMask
	Params   []TypeMask
	Required int  // leading params that must be present
	Variadic bool // extra arguments are accepted unchecked
	text     string
}

// ParseSignature parses a space separated mask list. The first mask
// applies to this, the rest to the arguments. Each mask is one or more
// type letters joined by '|':
//
//	o null  b bool  i integer  f float  n number  s string  t table
//	a array  c function  u userdata  y class  x instance  g generator
//	r weakref  . any
//
// A '?' prefix marks an optional argument; a final "..." accepts any
// number of extra arguments. For example ". s ?n ..." is any this, a
// required string, an optional number and anything after that.
func ParseSignature(text string) (Signature, error) {
	sig := Signature{This: MaskAny, text: text}
	fields := strings.Fields(text)
	for i, field := range fields {
		if field == "..." {
			if i != len(fields)-1 {
				return sig, fmt.Errorf("signature %q: '...' must be last", text)
			}
			sig.Variadic = true
			break
		}
		optional := strings.HasPrefix(field, "?")
		field = strings.TrimPrefix(field, "?")
		var mask TypeMask
		for _, alt := range strings.Split(field, "|") {
			for j := 0; j < len(alt); j++ {
				m, ok := maskLetters[alt[j]]
				if !ok {
					return sig, fmt.Errorf("signature %q: unknown type letter %q", text, alt[j])
				}
				mask |= m
			}
		}
		if i == 0 {
			if optional {
				return sig, fmt.Errorf("signature %q: this cannot be optional", text)
			}
			sig.This = mask
			continue
		}
		if !optional {
			if sig.Required != len(sig.Params) {
				return sig, fmt.Errorf("signature %q: required parameter after optional", text)
			}
			sig.Required++
		}
		sig.Params = append(sig.Params, mask)
	}
	return sig, nil
}

// MustParseSignature is ParseSignature for static tables; it panics on a
// malformed signature.
func MustParseSignature(text string) Signature {
	sig, err := ParseSignature(text)
	if err != nil {
		panic(err)
	}
	return sig
}

func (s Signature) String() string { return s.text }

// Check validates a call against the signature.
func (s Signature) Check(this Value, args []Value) error {
	if len(args) < s.Required || (!s.Variadic && len(args) > len(s.Params)) {
		return newError(ArgumentError, "wrong number of parameters: expected %s, got %d", s.arity(), len(args))
	}
	if !s.This.Accepts(this.kind) {
		return mismatch(0, s.This, this)
	}
	for i, v := range args {
		if i >= len(s.Params) {
			break
		}
		if !s.Params[i].Accepts(v.kind) {
			return mismatch(i+1, s.Params[i], v)
		}
	}
	return nil
}

func (s Signature) arity() string {
	switch {
	case s.Variadic:
		return fmt.Sprintf("at least %d", s.Required)
	case s.Required == len(s.Params):
		return fmt.Sprintf("%d", s.Required)
	}
	return fmt.Sprintf("%d to %d", s.Required, len(s.Params))
}

func mismatch(index int, expected TypeMask, got Value) error {
	err := newError(ArgumentError, "parameter %d has an invalid type '%s' ; expected: '%s'", index, got.TypeName(), expected)
	err.Arg = &ArgMismatch{Index: index, Expected: expected.String(), Actual: got.kind}
	return err
}

// ---------------------------------------------------------------------------
// Native registration helpers
// ---------------------------------------------------------------------------

// NativeDef pairs a native function with its signature for module tables.
type NativeDef struct {
	Sig string
	Fn  NativeFunc
}

// newNative allocates a native function object.
func (vm *VM) newNative(name string, fn NativeFunc, sig Signature) (Value, error) {
	return vm.alloc(&nativeObject{name: name, fn: fn, sig: sig})
}

// RegisterNative installs fn in the root table under name.
func (vm *VM) RegisterNative(name string, fn NativeFunc, signature string) error {
	sig, err := ParseSignature(signature)
	if err != nil {
		return err
	}
	nv, err := vm.newNative(name, fn, sig)
	if err != nil {
		return err
	}
	return vm.TableSet(vm.root, String(name), nv)
}

// RegisterModule installs a table of natives and constants in the root
// table under name and returns the table.
func (vm *VM) RegisterModule(name string, defs map[string]NativeDef, consts map[string]Value) (Value, error) {
	table, err := vm.buildTable(name, defs, consts)
	if err != nil {
		return Null, err
	}
	if err := vm.TableSet(vm.root, String(name), table); err != nil {
		return Null, err
	}
	return table, nil
}

// buildTable creates a table holding natives and constants.
func (vm *VM) buildTable(prefix string, defs map[string]NativeDef, consts map[string]Value) (Value, error) {
	table, err := vm.newTable(len(defs) + len(consts))
	if err != nil {
		return Null, err
	}
	vm.protect(table)
	for _, name := range sortedKeys(defs) {
		def := defs[name]
		sig, err := ParseSignature(def.Sig)
		if err != nil {
			return Null, err
		}
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		nv, err := vm.newNative(full, def.Fn, sig)
		if err != nil {
			return Null, err
		}
		if err := vm.TableSet(table, String(name), nv); err != nil {
			return Null, err
		}
	}
	for _, name := range sortedKeys(consts) {
		if err := vm.TableSet(table, String(name), consts[name]); err != nil {
			return Null, err
		}
	}
	return table, nil
}
