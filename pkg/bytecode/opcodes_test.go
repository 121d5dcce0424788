package bytecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for op, info := range opcodeInfoTable {
		assert.NotEmpty(t, info.Name, "opcode 0x%02X has no name", byte(op))
		assert.False(t, strings.HasPrefix(info.Name, "UNKNOWN"))
	}
}

func TestOpcodeNamesUnique(t *testing.T) {
	seen := make(map[string]Opcode)
	for op, info := range opcodeInfoTable {
		if prev, ok := seen[info.Name]; ok {
			t.Fatalf("opcodes 0x%02X and 0x%02X share name %s", byte(prev), byte(op), info.Name)
		}
		seen[info.Name] = op
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPop, "POP"},
		{OpConst, "CONST"},
		{OpAdd, "ADD"},
		{OpGetOrNull, "GET_OR_NULL"},
		{OpForeach, "FOREACH"},
		{OpCall, "CALL"},
		{OpYield, "YIELD"},
		{OpClosure, "CLOSURE"},
		{OpClass, "CLASS"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xEE)
	assert.False(t, op.Known())
	assert.True(t, strings.HasPrefix(op.String(), "UNKNOWN"))
}

func TestInstructionLen(t *testing.T) {
	inner := NewChunk("inner")
	inner.Upvalues = []UpvalueDesc{{Name: "a", IsLocal: true, Index: 1}, {Name: "b", Index: 0}}

	c := NewChunk("main")
	idx, err := c.AddConstant(Constant{Kind: ConstFunc, Func: inner})
	assert.NoError(t, err)

	c.Emit(OpNull)
	c.EmitU16(OpConst, 0)
	c.EmitWithOperand(OpForeach, 2, 0, 0)
	c.EmitU16(OpClosure, idx)
	c.Code = append(c.Code, 1, 1, 0, 0)

	assert.Equal(t, 1, c.InstructionLen(0))
	assert.Equal(t, 3, c.InstructionLen(1))
	assert.Equal(t, 4, c.InstructionLen(4))
	assert.Equal(t, 7, c.InstructionLen(8))
	assert.Equal(t, 4, c.InstructionCount())
}
