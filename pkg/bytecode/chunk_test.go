package bytecode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunk(t *testing.T) {
	c := NewChunk("main")
	assert.Equal(t, BytecodeVersion, c.Version)
	assert.Equal(t, "main", c.Name)
	assert.NotNil(t, c.Code)
	assert.NotNil(t, c.Constants)
}

func TestChunkAddConstantDeduplicates(t *testing.T) {
	c := NewChunk("main")

	i0, err := c.AddConstant(Constant{Kind: ConstString, Str: "hello"})
	require.NoError(t, err)
	i1, _ := c.AddConstant(Constant{Kind: ConstString, Str: "world"})
	i2, _ := c.AddConstant(Constant{Kind: ConstString, Str: "hello"})
	i3, _ := c.AddConstant(Constant{Kind: ConstInt, Int: 7})
	i4, _ := c.AddConstant(Constant{Kind: ConstFloat, Float: 7})
	i5, _ := c.AddConstant(Constant{Kind: ConstInt, Int: 7})

	assert.Equal(t, uint16(0), i0)
	assert.Equal(t, uint16(1), i1)
	assert.Equal(t, i0, i2)
	assert.NotEqual(t, i3, i4, "int and float constants are distinct")
	assert.Equal(t, i3, i5)
	assert.Len(t, c.Constants, 4)

	// Function prototypes are never shared
	f0, _ := c.AddConstant(Constant{Kind: ConstFunc, Func: NewChunk("f")})
	f1, _ := c.AddConstant(Constant{Kind: ConstFunc, Func: NewChunk("f")})
	assert.NotEqual(t, f0, f1)
}

func TestChunkJumpPatching(t *testing.T) {
	c := NewChunk("main")

	c.Emit(OpTrue)
	hole := c.EmitJump(OpJumpIfFalse)
	c.Emit(OpNull)
	c.Emit(OpPop)
	require.NoError(t, c.PatchJump(hole))
	assert.Equal(t, 2, ReadI16(c.Code, hole))

	loopStart := c.CurrentOffset()
	c.Emit(OpNop)
	require.NoError(t, c.EmitLoop(loopStart))
	back := ReadI16(c.Code, len(c.Code)-2)
	assert.Equal(t, loopStart, len(c.Code)+back)
}

func TestChunkJumpTooLong(t *testing.T) {
	c := NewChunk("main")
	hole := c.EmitJump(OpJump)
	c.Code = append(c.Code, make([]byte, 40000)...)
	assert.Error(t, c.PatchJump(hole))
}

func TestSourceLocations(t *testing.T) {
	c := NewChunk("main")
	c.AddSourceLocation(0, 1, 0)
	c.Emit(OpNull)
	c.AddSourceLocation(1, 1, 0) // same line, merged
	c.Emit(OpPop)
	c.AddSourceLocation(2, 3, 0)
	c.Emit(OpReturnNull)

	assert.Len(t, c.SourceMap, 2)
	line, _ := c.GetSourceLocation(1)
	assert.Equal(t, uint32(1), line)
	line, _ = c.GetSourceLocation(2)
	assert.Equal(t, uint32(3), line)
	assert.NotZero(t, c.Flags&ChunkFlagDebug)

	c.StripDebug()
	assert.Empty(t, c.SourceMap)
	assert.Zero(t, c.Flags&ChunkFlagDebug)
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

func sampleChunk(t *testing.T) *Chunk {
	t.Helper()
	inner := NewChunk("add")
	inner.ParamCount = 2
	inner.ParamNames = []string{"a", "b"}
	inner.Flags |= ChunkFlagHasCaptures
	inner.Upvalues = []UpvalueDesc{{Name: "k", IsLocal: true, Index: 1}}
	inner.EmitWithOperand(OpGetLocal, 1)
	inner.EmitWithOperand(OpGetLocal, 2)
	inner.Emit(OpAdd)
	inner.EmitWithOperand(OpGetUpval, 0)
	inner.Emit(OpAdd)
	inner.Emit(OpReturn)

	c := NewChunk("main")
	c.Source = "sample.nut"
	fi, err := c.AddConstant(Constant{Kind: ConstFunc, Func: inner})
	require.NoError(t, err)
	ki, _ := c.AddConstant(Constant{Kind: ConstFloat, Float: 2.5})
	si, _ := c.AddConstant(Constant{Kind: ConstString, Str: "x"})

	c.AddSourceLocation(0, 1, 1)
	c.EmitU16(OpConst, ki)
	c.EmitU16(OpClosure, fi)
	c.Code = append(c.Code, 1, 1)
	c.EmitU16(OpSetRootSlot, si)
	c.Emit(OpPop)
	hole := c.EmitJump(OpJump)
	c.Emit(OpNop)
	require.NoError(t, c.PatchJump(hole))
	c.Emit(OpReturnNull)
	return c
}

func TestSerializeRoundTrip(t *testing.T) {
	c := sampleChunk(t)

	data, err := c.Serialize()
	require.NoError(t, err)
	assert.True(t, IsBytecode(data))

	got, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Source, got.Source)
	assert.Equal(t, c.Flags, got.Flags)
	assert.Equal(t, c.Code, got.Code)
	assert.Equal(t, c.SourceMap, got.SourceMap)
	require.Len(t, got.Constants, 3)
	inner := got.Constants[0].Func
	require.NotNil(t, inner)
	assert.Equal(t, []string{"a", "b"}, inner.ParamNames)
	assert.Equal(t, c.Constants[0].Func.Code, inner.Code)
	assert.Equal(t, BytecodeVersion, inner.Version)
	assert.Equal(t, 2.5, got.Constants[1].Float)
}

func TestSerializeIsDeterministic(t *testing.T) {
	a, err := sampleChunk(t).Serialize()
	require.NoError(t, err)
	b, err := sampleChunk(t).Serialize()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	good, err := sampleChunk(t).Serialize()
	require.NoError(t, err)

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 0xFF

	badFlags := append([]byte(nil), good...)
	badFlags[7] ^= 0x80

	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("SQB")},
		{"magic", append([]byte("XXXX"), good[4:]...)},
		{"version", badVersion},
		{"flags", badFlags},
		{"body", append(append([]byte(nil), good[:8]...), 0xFF, 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *Chunk)
	}{
		{"unknown opcode", func(c *Chunk) { c.Code = append(c.Code, 0xEE) }},
		{"truncated operand", func(c *Chunk) { c.Code = append(c.Code, byte(OpConst), 0) }},
		{"constant out of range", func(c *Chunk) { c.EmitU16(OpConst, 9) }},
		{"jump out of range", func(c *Chunk) { c.EmitWithOperand(OpJump, 0x10, 0x00) }},
		{"upvalue out of range", func(c *Chunk) { c.EmitWithOperand(OpGetUpval, 3) }},
		{"closure of non-function", func(c *Chunk) {
			idx, _ := c.AddConstant(Constant{Kind: ConstInt, Int: 1})
			c.EmitU16(OpClosure, idx)
		}},
		{"bad nested chunk", func(c *Chunk) {
			f := NewChunk("f")
			f.Code = append(f.Code, 0xEE)
			c.AddConstant(Constant{Kind: ConstFunc, Func: f})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChunk("main")
			tt.build(c)
			assert.ErrorIs(t, c.Verify(), ErrMalformed)
		})
	}

	assert.NoError(t, sampleChunk(t).Verify())
}
