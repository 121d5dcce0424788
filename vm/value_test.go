package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Scalars
// ---------------------------------------------------------------------------

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Null, false},
		{False, false},
		{True, true},
		{Int(0), true},
		{Float(0), true},
		{String(""), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truthy(tt.v), "Truthy(%s)", tt.v)
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null, "null"},
		{True, "true"},
		{Int(-42), "-42"},
		{Float(1.5), "1.5"},
		{Float(2), "2"},
		{String("hi"), "hi"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.String())
	}
}

func TestValueConversions(t *testing.T) {
	assert.Equal(t, int64(3), Float(3.9).AsInt())
	assert.Equal(t, 7.0, Int(7).AsFloat())
	assert.True(t, Int(1).IsNumber())
	assert.True(t, Float(1).IsNumber())
	assert.False(t, String("1").IsNumber())
	assert.False(t, Int(1).IsHeap())
	assert.Equal(t, "integer", Int(1).TypeName())
	assert.Equal(t, "float", Float(1).TypeName())
}

// ---------------------------------------------------------------------------
// Number parsing
// ---------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want Value
		ok   bool
	}{
		{"42", Int(42), true},
		{"  -7 ", Int(-7), true},
		{"+3", Int(3), true},
		{"0x1F", Int(31), true},
		{"-0x10", Int(-16), true},
		{"1.5", Float(1.5), true},
		{"2e3", Float(2000), true},
		{"1.25E-2", Float(0.0125), true},
		{"", Null, false},
		{"abc", Null, false},
		{"1.", Null, false},
		{".5", Null, false},
		{"12abc", Null, false},
		{"0x", Null, false},
		{"1e", Null, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want.Kind(), got.Kind())
				assert.True(t, Equal(tt.want, got), "got %s", got)
			}
		})
	}
}

func TestParseNumberOverflowIsFloat(t *testing.T) {
	got, ok := ParseNumber("99999999999999999999")
	require.True(t, ok)
	assert.Equal(t, KindFloat, got.Kind())
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestArith(t *testing.T) {
	tests := []struct {
		name string
		op   bytecode.Opcode
		a, b Value
		want Value
	}{
		{"int add", bytecode.OpAdd, Int(2), Int(3), Int(5)},
		{"mixed add", bytecode.OpAdd, Int(2), Float(0.5), Float(2.5)},
		{"int division truncates", bytecode.OpDiv, Int(7), Int(2), Int(3)},
		{"float division", bytecode.OpDiv, Float(7), Int(2), Float(3.5)},
		{"modulo sign follows dividend", bytecode.OpMod, Int(-7), Int(3), Int(-1)},
		{"float modulo", bytecode.OpMod, Float(7.5), Int(2), Float(1.5)},
		{"numeric string", bytecode.OpAdd, Int(1), String("2"), Int(3)},
		{"float string", bytecode.OpMul, String("1.5"), Int(2), Float(3)},
		{"concat", bytecode.OpAdd, String("a"), String("b"), String("ab")},
		{"and", bytecode.OpBitAnd, Int(6), Int(3), Int(2)},
		{"shl", bytecode.OpShl, Int(1), Int(4), Int(16)},
		{"arithmetic shr", bytecode.OpShr, Int(-16), Int(2), Int(-4)},
		{"logical shr", bytecode.OpUShr, Int(-1), Int(60), Int(15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Arith(tt.op, tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind(), got.Kind())
			assert.True(t, Equal(tt.want, got), "got %s", got)
		})
	}
}

func TestArithErrors(t *testing.T) {
	tests := []struct {
		name string
		op   bytecode.Opcode
		a, b Value
	}{
		{"string plus int", bytecode.OpAdd, String("x"), Int(1)},
		{"null operand", bytecode.OpAdd, Null, Int(1)},
		{"int divide by zero", bytecode.OpDiv, Int(1), Int(0)},
		{"int modulo by zero", bytecode.OpMod, Int(1), Int(0)},
		{"bitwise on float", bytecode.OpBitOr, Float(1), Int(1)},
		{"string minus string", bytecode.OpSub, String("a"), String("b")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Arith(tt.op, tt.a, tt.b)
			assert.ErrorIs(t, err, ErrTypeError)
		})
	}
}

func TestFloatDivisionByZero(t *testing.T) {
	got, err := Arith(bytecode.OpDiv, Float(1), Int(0))
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.AsFloat(), 1))
}

func TestNegateAndBitNot(t *testing.T) {
	v, err := Negate(Int(3))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), v.AsInt())

	_, err = Negate(String("3"))
	assert.ErrorIs(t, err, ErrTypeError)

	v, err = BitNot(Int(0))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v.AsInt())

	_, err = BitNot(Float(0))
	assert.ErrorIs(t, err, ErrTypeError)
}

// ---------------------------------------------------------------------------
// Comparison and equality
// ---------------------------------------------------------------------------

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{Int(1), Int(2), -1},
		{Int(2), Float(1.5), 1},
		{Float(2), Int(2), 0},
		{String("a"), String("b"), -1},
		{String("b"), String("a"), 1},
		{String("abc"), String("abc"), 0},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Compare(%s, %s)", tt.a, tt.b)
	}

	_, err := Compare(Int(1), String("1"))
	assert.ErrorIs(t, err, ErrTypeError)
	_, err = Compare(Null, Null)
	assert.ErrorIs(t, err, ErrTypeError)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(1), Float(1)))
	assert.True(t, Equal(String("a"), String("a")))
	assert.True(t, Equal(Null, Null))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Null, False))
	assert.False(t, Equal(Float(math.NaN()), Float(math.NaN())))
}
