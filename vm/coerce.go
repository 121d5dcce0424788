package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Truthiness and number parsing
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in a condition. Only null and
// false are falsy; 0 and "" are truthy.
func Truthy(v Value) bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.bits != 0
	}
	return true
}

// ParseNumber converts a string to a number using the literal grammar:
// optional sign, then a decimal or 0x hex integer, or a decimal float
// with optional fraction and exponent. Surrounding whitespace is ignored.
func ParseNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null, false
	}
	body := s
	neg := false
	if body[0] == '+' || body[0] == '-' {
		neg = body[0] == '-'
		body = body[1:]
	}

	if len(body) > 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		u, err := strconv.ParseUint(body[2:], 16, 64)
		if err != nil {
			return Null, false
		}
		i := int64(u)
		if neg {
			i = -i
		}
		return Int(i), true
	}

	if !isDecimalNumber(body) {
		return Null, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeError(err) {
		return Null, false
	}
	return Float(f), true
}

func isRangeError(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// isDecimalNumber accepts digits [. digits] [e [+-] digits].
func isDecimalNumber(s string) bool {
	i, n := 0, len(s)
	digits := func() int {
		start := i
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		return i - start
	}
	if digits() == 0 {
		return false
	}
	if i < n && s[i] == '.' {
		i++
		if digits() == 0 {
			return false
		}
	}
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < n && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if digits() == 0 {
			return false
		}
	}
	return i == n
}

// toNumber returns v as a number, converting numeric strings.
func toNumber(v Value) (Value, bool) {
	switch v.kind {
	case KindInteger, KindFloat:
		return v, true
	case KindString:
		return ParseNumber(v.str)
	}
	return Null, false
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

var arithSymbols = map[bytecode.Opcode]string{
	bytecode.OpAdd:    "+",
	bytecode.OpSub:    "-",
	bytecode.OpMul:    "*",
	bytecode.OpDiv:    "/",
	bytecode.OpMod:    "%",
	bytecode.OpBitAnd: "&",
	bytecode.OpBitOr:  "|",
	bytecode.OpBitXor: "^",
	bytecode.OpShl:    "<<",
	bytecode.OpShr:    ">>",
	bytecode.OpUShr:   ">>>",
}

// Arith applies a binary arithmetic or bitwise opcode to two values.
//
// int op int stays integer; a float operand makes the result float. A
// numeric string next to a number is converted. Two strings concatenate
// under +. Anything else is a TypeError.
func Arith(op bytecode.Opcode, a, b Value) (Value, error) {
	if op == bytecode.OpAdd && a.kind == KindString && b.kind == KindString {
		return String(a.str + b.str), nil
	}

	x, y := a, b
	if a.kind == KindString || b.kind == KindString {
		var okA, okB bool
		x, okA = toNumber(a)
		y, okB = toNumber(b)
		if !okA || !okB {
			return Null, arithError(op, a, b)
		}
	}
	if !x.IsNumber() || !y.IsNumber() {
		return Null, arithError(op, a, b)
	}

	switch op {
	case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor,
		bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr:
		if x.kind != KindInteger || y.kind != KindInteger {
			return Null, arithError(op, a, b)
		}
		return bitwise(op, x.AsInt(), y.AsInt()), nil
	}

	if x.kind == KindInteger && y.kind == KindInteger {
		return intArith(op, x.AsInt(), y.AsInt())
	}
	return floatArith(op, x.AsFloat(), y.AsFloat())
}

func intArith(op bytecode.Opcode, a, b int64) (Value, error) {
	switch op {
	case bytecode.OpAdd:
		return Int(a + b), nil
	case bytecode.OpSub:
		return Int(a - b), nil
	case bytecode.OpMul:
		return Int(a * b), nil
	case bytecode.OpDiv:
		if b == 0 {
			return Null, newError(TypeError, "division by zero")
		}
		return Int(a / b), nil
	case bytecode.OpMod:
		if b == 0 {
			return Null, newError(TypeError, "division by zero")
		}
		return Int(a % b), nil
	}
	return Null, newError(RuntimeFault, "unknown arithmetic opcode %s", op)
}

func floatArith(op bytecode.Opcode, a, b float64) (Value, error) {
	switch op {
	case bytecode.OpAdd:
		return Float(a + b), nil
	case bytecode.OpSub:
		return Float(a - b), nil
	case bytecode.OpMul:
		return Float(a * b), nil
	case bytecode.OpDiv:
		return Float(a / b), nil
	case bytecode.OpMod:
		return Float(math.Mod(a, b)), nil
	}
	return Null, newError(RuntimeFault, "unknown arithmetic opcode %s", op)
}

func bitwise(op bytecode.Opcode, a, b int64) Value {
	switch op {
	case bytecode.OpBitAnd:
		return Int(a & b)
	case bytecode.OpBitOr:
		return Int(a | b)
	case bytecode.OpBitXor:
		return Int(a ^ b)
	case bytecode.OpShl:
		return Int(a << (uint64(b) & 63))
	case bytecode.OpShr:
		return Int(a >> (uint64(b) & 63))
	default: // OpUShr
		return Int(int64(uint64(a) >> (uint64(b) & 63)))
	}
}

func arithError(op bytecode.Opcode, a, b Value) error {
	return newError(TypeError, "arith op %s on between '%s' and '%s'", arithSymbols[op], a.TypeName(), b.TypeName())
}

// Negate returns -v for numbers.
func Negate(v Value) (Value, error) {
	switch v.kind {
	case KindInteger:
		return Int(-v.AsInt()), nil
	case KindFloat:
		return Float(-v.AsFloat()), nil
	}
	return Null, newError(TypeError, "attempt to negate a %s", v.TypeName())
}

// BitNot returns ^v for integers.
func BitNot(v Value) (Value, error) {
	if v.kind != KindInteger {
		return Null, newError(TypeError, "attempt to perform a bitwise op on a %s", v.TypeName())
	}
	return Int(^v.AsInt()), nil
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// Compare orders two numbers (int and float mixed) or two strings
// (byte-wise), returning -1, 0 or 1. Other pairs are a TypeError.
func Compare(a, b Value) (int, error) {
	switch {
	case a.IsNumber() && b.IsNumber():
		if a.kind == KindInteger && b.kind == KindInteger {
			return cmp3(a.AsInt(), b.AsInt()), nil
		}
		return cmp3(a.AsFloat(), b.AsFloat()), nil
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.str, b.str), nil
	}
	return 0, newError(TypeError, "comparison between '%s' and '%s'", a.TypeName(), b.TypeName())
}

func cmp3[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports script equality: numbers by value across int and float,
// strings by content, booleans and null by value, everything else by
// heap identity.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInteger && b.kind == KindInteger {
			return a.bits == b.bits
		}
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindString {
		return a.str == b.str
	}
	return a.bits == b.bits
}
