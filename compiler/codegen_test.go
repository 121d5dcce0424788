package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/squirrel/pkg/bytecode"
)

func mustCompile(t *testing.T, src string) *bytecode.Chunk {
	t.Helper()
	chunk, err := Compile(src, "test.nut")
	require.NoError(t, err)
	require.NoError(t, chunk.Verify())
	return chunk
}

// opcodes lists the instruction stream of a chunk without operands.
func opcodes(c *bytecode.Chunk) []bytecode.Opcode {
	var ops []bytecode.Opcode
	for off := 0; off < len(c.Code); off += c.InstructionLen(off) {
		ops = append(ops, bytecode.Opcode(c.Code[off]))
	}
	return ops
}

func nested(t *testing.T, c *bytecode.Chunk, name string) *bytecode.Chunk {
	t.Helper()
	for _, k := range c.Constants {
		if k.Kind == bytecode.ConstFunc && k.Func.Name == name {
			return k.Func
		}
	}
	t.Fatalf("no nested function %q", name)
	return nil
}

func TestCompileMainChunk(t *testing.T) {
	chunk := mustCompile(t, "")
	assert.Equal(t, "main", chunk.Name)
	assert.True(t, chunk.IsVarargs())
	assert.Equal(t, []bytecode.Opcode{bytecode.OpReturnNull}, opcodes(chunk))
}

func TestCompileLocals(t *testing.T) {
	chunk := mustCompile(t, "local a = 1\nreturn a")
	assert.Equal(t, []bytecode.Opcode{
		bytecode.OpConst, bytecode.OpGetLocal, bytecode.OpReturn, bytecode.OpReturnNull,
	}, opcodes(chunk))
	// slot 0 is this, slot 1 is vargv
	assert.Equal(t, byte(2), chunk.Code[4])
}

func TestCompileMethodCall(t *testing.T) {
	chunk := mustCompile(t, "a.b(1)")
	assert.Equal(t, []bytecode.Opcode{
		bytecode.OpGetName, bytecode.OpDup, bytecode.OpConst, bytecode.OpGet, bytecode.OpSwap,
		bytecode.OpConst, bytecode.OpCall, bytecode.OpPop, bytecode.OpReturnNull,
	}, opcodes(chunk))

	chunk = mustCompile(t, "f(1, 2)")
	assert.Equal(t, []bytecode.Opcode{
		bytecode.OpGetName, bytecode.OpThis, bytecode.OpConst, bytecode.OpConst,
		bytecode.OpCall, bytecode.OpPop, bytecode.OpReturnNull,
	}, opcodes(chunk))
}

func TestCompileLogicalShortCircuit(t *testing.T) {
	chunk := mustCompile(t, "return a && b || c")
	ops := opcodes(chunk)
	assert.Contains(t, ops, bytecode.OpJumpIfFalseKeep)
	assert.Contains(t, ops, bytecode.OpJumpIfTrueKeep)
}

func TestCompileRootAccess(t *testing.T) {
	chunk := mustCompile(t, "::x <- 1\n::x = ::x + 1")
	ops := opcodes(chunk)
	assert.Contains(t, ops, bytecode.OpSetRootSlot)
	assert.Contains(t, ops, bytecode.OpGetRoot)
	assert.NotContains(t, ops, bytecode.OpGetName)
}

func TestCompileUpvalues(t *testing.T) {
	chunk := mustCompile(t, `
local x = 1
local function outer() {
	local function inner() { return x }
	return inner
}
`)
	outer := nested(t, chunk, "outer")
	inner := nested(t, outer, "inner")

	require.Len(t, outer.Upvalues, 1)
	assert.True(t, outer.Upvalues[0].IsLocal)
	assert.Equal(t, uint8(2), outer.Upvalues[0].Index)
	assert.NotZero(t, outer.Flags&bytecode.ChunkFlagHasCaptures)

	require.Len(t, inner.Upvalues, 1)
	assert.False(t, inner.Upvalues[0].IsLocal)
	assert.Equal(t, uint8(0), inner.Upvalues[0].Index)
	assert.Contains(t, opcodes(inner), bytecode.OpGetUpval)
}

func TestCompileClosesCapturedLocals(t *testing.T) {
	chunk := mustCompile(t, `
local fns = []
for (local i = 0; i < 3; i++) {
	local j = i
	fns.append(function() { return j })
}
`)
	assert.Contains(t, opcodes(chunk), bytecode.OpCloseUpvals)
}

func TestCompileGeneratorFlag(t *testing.T) {
	chunk := mustCompile(t, "function gen(n) { for (local i = 0; i < n; i++) yield i }")
	gen := nested(t, chunk, "gen")
	assert.True(t, gen.IsGenerator())
	assert.Contains(t, opcodes(gen), bytecode.OpYield)
	assert.False(t, chunk.IsGenerator())
}

func TestCompileForeachAndTry(t *testing.T) {
	chunk := mustCompile(t, `
foreach (i, v in [1, 2, 3]) {
	try {
		if (v == 2) continue
		if (v == 3) break
	} catch (e) {
		throw e
	}
}
`)
	ops := opcodes(chunk)
	assert.Contains(t, ops, bytecode.OpForeach)
	assert.Contains(t, ops, bytecode.OpPushTrap)
	assert.Contains(t, ops, bytecode.OpThrow)

	// continue and break each leave the try block first
	pops := 0
	for _, op := range ops {
		if op == bytecode.OpPopTrap {
			pops++
		}
	}
	assert.Equal(t, 3, pops)
}

func TestCompileClass(t *testing.T) {
	chunk := mustCompile(t, `
class Foo {
	x = 1
	static count = 0
	constructor(v) { x = v }
	function get() { return base.get() }
}`)
	ops := opcodes(chunk)
	assert.Contains(t, ops, bytecode.OpClass)
	members := 0
	for _, op := range ops {
		if op == bytecode.OpClassMember {
			members++
		}
	}
	assert.Equal(t, 4, members)
	assert.Contains(t, opcodes(nested(t, chunk, "get")), bytecode.OpBase)
}

func TestCompileLineInfo(t *testing.T) {
	chunk := mustCompile(t, "local a = 1\n\nlocal b = a + 2\n")
	assert.NotZero(t, chunk.Flags&bytecode.ChunkFlagDebug)

	lines := map[uint32]bool{}
	for off := 0; off < len(chunk.Code); off += chunk.InstructionLen(off) {
		line, _ := chunk.GetSourceLocation(uint32(off))
		lines[line] = true
	}
	assert.True(t, lines[1])
	assert.True(t, lines[3])
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"break outside loop", "break", "'break' has to be in a loop block"},
		{"continue outside loop", "if (x) continue", "'continue' has to be in a loop block"},
		{"parse error", "local 1", "expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src, "bad.nut")
			require.Error(t, err)
			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Contains(t, cerr.Msg, tt.msg)
			assert.Equal(t, "bad.nut", cerr.Source)
		})
	}
}

func TestCompileTooManyLocals(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("function f() {\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, "local v%d = %d\n", i, i)
	}
	sb.WriteString("}\n")

	_, err := Compile(sb.String(), "big.nut")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many locals in function 'f'")
}

func TestCompiledChunkRoundTrip(t *testing.T) {
	chunk := mustCompile(t, `
local t = { a = 1, b = [1, 2.5, "x"] }
function t.sum() {
	local s = 0
	foreach (v in this.b) if (typeof v != "string") s += v
	return s
}
return t.sum()
`)
	data, err := chunk.Serialize()
	require.NoError(t, err)

	loaded, err := bytecode.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, chunk.Disassemble(), loaded.Disassemble())
}
