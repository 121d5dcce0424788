package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for bytecode files: "SQBC" (SQuirrel ByteCode)
var BytecodeMagic = []byte{'S', 'Q', 'B', 'C'}

// headerLen is magic + version + flags.
const headerLen = 8

// ErrMalformed is wrapped by every decoding and verification failure.
var ErrMalformed = errors.New("malformed bytecode")

// ChunkFlags contains compilation flags for a chunk.
type ChunkFlags uint16

const (
	// ChunkFlagDebug indicates debug line information is present.
	ChunkFlagDebug ChunkFlags = 1 << 0

	// ChunkFlagVarargs indicates the function collects extra arguments into vargv.
	ChunkFlagVarargs ChunkFlags = 1 << 1

	// ChunkFlagGenerator indicates the function body contains a yield.
	ChunkFlagGenerator ChunkFlags = 1 << 2

	// ChunkFlagHasCaptures indicates the function captures upvalues.
	ChunkFlagHasCaptures ChunkFlags = 1 << 3
)

// ConstKind tags a constant pool entry.
type ConstKind uint8

const (
	ConstInt    ConstKind = 1
	ConstFloat  ConstKind = 2
	ConstString ConstKind = 3
	ConstFunc   ConstKind = 4
)

// String returns a human-readable name for ConstKind.
func (k ConstKind) String() string {
	switch k {
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	case ConstFunc:
		return "func"
	default:
		return fmt.Sprintf("ConstKind(%d)", k)
	}
}

// Constant is a constant pool entry. Nested function prototypes live in the
// pool of their enclosing chunk.
type Constant struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Int   int64     `cbor:"2,keyasint,omitempty"`
	Float float64   `cbor:"3,keyasint,omitempty"`
	Str   string    `cbor:"4,keyasint,omitempty"`
	Func  *Chunk    `cbor:"5,keyasint,omitempty"`
}

// UpvalueDesc describes how a closure captures one variable when it is created.
type UpvalueDesc struct {
	Name    string `cbor:"1,keyasint"`
	IsLocal bool   `cbor:"2,keyasint,omitempty"` // true: enclosing frame's local slot; false: enclosing closure's upvalue
	Index   uint8  `cbor:"3,keyasint"`
}

// SourceLocation maps bytecode position to source location for debugging.
type SourceLocation struct {
	BytecodeOffset uint32 `cbor:"1,keyasint"` // Offset in code section
	Line           uint32 `cbor:"2,keyasint"` // Source line number (1-based)
	Column         uint16 `cbor:"3,keyasint,omitempty"`
}

// Chunk represents compiled bytecode for one function prototype.
// The top-level script compiles to a chunk named "main"; nested functions are
// ConstFunc entries of their enclosing chunk.
type Chunk struct {
	// Header
	Version uint16     `cbor:"-"`
	Flags   ChunkFlags `cbor:"1,keyasint"`

	Name   string `cbor:"2,keyasint"`
	Source string `cbor:"3,keyasint,omitempty"`

	// Parameter information (not counting the implicit this in slot 0)
	ParamCount uint8    `cbor:"4,keyasint"`
	ParamNames []string `cbor:"5,keyasint,omitempty"`

	// Capture information for closures
	Upvalues []UpvalueDesc `cbor:"6,keyasint,omitempty"`

	// Constant pool
	Constants []Constant `cbor:"7,keyasint,omitempty"`

	// Code section
	Code []byte `cbor:"8,keyasint"`

	// Debug information (optional, present if ChunkFlagDebug is set)
	SourceMap []SourceLocation `cbor:"9,keyasint,omitempty"`
}

// NewChunk creates a new empty chunk with the current version.
func NewChunk(name string) *Chunk {
	return &Chunk{
		Version:   BytecodeVersion,
		Name:      name,
		Code:      make([]byte, 0, 64),
		Constants: make([]Constant, 0, 8),
	}
}

// IsGenerator reports whether calling the chunk creates a generator.
func (c *Chunk) IsGenerator() bool { return c.Flags&ChunkFlagGenerator != 0 }

// IsVarargs reports whether the chunk accepts extra arguments.
func (c *Chunk) IsVarargs() bool { return c.Flags&ChunkFlagVarargs != 0 }

// AddConstant adds a constant to the pool and returns its index.
// Scalar constants are deduplicated; function prototypes never are.
func (c *Chunk) AddConstant(k Constant) (uint16, error) {
	if k.Kind != ConstFunc {
		for i, existing := range c.Constants {
			if existing.Kind != k.Kind {
				continue
			}
			switch k.Kind {
			case ConstInt:
				if existing.Int == k.Int {
					return uint16(i), nil
				}
			case ConstFloat:
				if math.Float64bits(existing.Float) == math.Float64bits(k.Float) {
					return uint16(i), nil
				}
			case ConstString:
				if existing.Str == k.Str {
					return uint16(i), nil
				}
			}
		}
	}
	if len(c.Constants) >= math.MaxUint16 {
		return 0, fmt.Errorf("too many constants in %s", c.Name)
	}
	idx := uint16(len(c.Constants))
	c.Constants = append(c.Constants, k)
	return idx, nil
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitU16 appends an opcode with a big-endian u16 operand.
func (c *Chunk) EmitU16(op Opcode, v uint16) int {
	return c.EmitWithOperand(op, byte(v>>8), byte(v))
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1                              // Return offset of the placeholder bytes
}

// PatchJump patches a jump instruction's offset to jump to the current position.
func (c *Chunk) PatchJump(placeholderOffset int) error {
	return c.PatchJumpTo(placeholderOffset, len(c.Code))
}

// PatchJumpTo patches a jump to go to a specific offset.
func (c *Chunk) PatchJumpTo(placeholderOffset int, target int) error {
	jumpFrom := placeholderOffset + 2 // After the 2-byte offset
	delta := target - jumpFrom
	if delta > math.MaxInt16 || delta < math.MinInt16 {
		return fmt.Errorf("jump too long in %s (%d bytes)", c.Name, delta)
	}

	// Encode as signed 16-bit
	c.Code[placeholderOffset] = byte(uint16(int16(delta)) >> 8)
	c.Code[placeholderOffset+1] = byte(uint16(int16(delta)))
	return nil
}

// EmitLoop emits a backward jump to the given loop start.
func (c *Chunk) EmitLoop(loopStart int) error {
	placeholder := c.EmitJump(OpJump)
	return c.PatchJumpTo(placeholder, loopStart)
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// ReadU16 decodes a big-endian u16 operand at offset.
func ReadU16(code []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(code[offset:])
}

// ReadI16 decodes a signed jump delta at offset.
func ReadI16(code []byte, offset int) int {
	return int(int16(binary.BigEndian.Uint16(code[offset:])))
}

// AddSourceLocation adds a debug source location mapping.
// Consecutive instructions on the same line share one entry.
func (c *Chunk) AddSourceLocation(bytecodeOffset uint32, line uint32, column uint16) {
	c.Flags |= ChunkFlagDebug
	if n := len(c.SourceMap); n > 0 && c.SourceMap[n-1].Line == line {
		return
	}
	c.SourceMap = append(c.SourceMap, SourceLocation{
		BytecodeOffset: bytecodeOffset,
		Line:           line,
		Column:         column,
	})
}

// GetSourceLocation returns the source location for a bytecode offset.
// Returns line 0, column 0 if no mapping exists.
func (c *Chunk) GetSourceLocation(offset uint32) (line uint32, column uint16) {
	// Find the nearest mapping at or before the offset
	for i := len(c.SourceMap) - 1; i >= 0; i-- {
		if c.SourceMap[i].BytecodeOffset <= offset {
			return c.SourceMap[i].Line, c.SourceMap[i].Column
		}
	}
	return 0, 0
}

// StripDebug removes line tables from the chunk and its nested prototypes.
func (c *Chunk) StripDebug() {
	c.SourceMap = nil
	c.Flags &^= ChunkFlagDebug
	for _, k := range c.Constants {
		if k.Func != nil {
			k.Func.StripDebug()
		}
	}
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// IsBytecode reports whether data starts with the bytecode magic.
func IsBytecode(data []byte) bool {
	return len(data) >= len(BytecodeMagic) && string(data[:len(BytecodeMagic)]) == string(BytecodeMagic)
}

// Serialize encodes the chunk to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[body: CBOR-encoded Chunk (constant pool, code, debug line table)]
func (c *Chunk) Serialize() ([]byte, error) {
	body, err := cborEncMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode chunk %s: %w", c.Name, err)
	}

	buf := make([]byte, 0, headerLen+len(body))
	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, BytecodeVersion)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Flags))
	buf = append(buf, body...)
	return buf, nil
}

// Deserialize decodes and verifies a chunk from bytes.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrMalformed, headerLen, len(data))
	}

	// Check magic
	if !IsBytecode(data) {
		return nil, fmt.Errorf("%w: invalid magic %q", ErrMalformed, data[0:4])
	}

	version := binary.BigEndian.Uint16(data[4:6])
	if version > BytecodeVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d", ErrMalformed, version, BytecodeVersion)
	}
	flags := ChunkFlags(binary.BigEndian.Uint16(data[6:8]))

	var c Chunk
	if err := cbor.Unmarshal(data[headerLen:], &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if c.Flags != flags {
		return nil, fmt.Errorf("%w: header flags 0x%04X disagree with body flags 0x%04X", ErrMalformed, flags, c.Flags)
	}
	c.setVersion(version)

	if err := c.Verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Chunk) setVersion(v uint16) {
	c.Version = v
	for _, k := range c.Constants {
		if k.Func != nil {
			k.Func.setVersion(v)
		}
	}
}

// Verify checks that every instruction is well formed: known opcodes,
// operands inside the code section, constant and jump targets in range.
// Nested prototypes are verified recursively.
func (c *Chunk) Verify() error {
	if int(c.ParamCount) != len(c.ParamNames) && len(c.ParamNames) != 0 {
		return fmt.Errorf("%w: %s declares %d params but names %d", ErrMalformed, c.Name, c.ParamCount, len(c.ParamNames))
	}
	for i, k := range c.Constants {
		switch k.Kind {
		case ConstInt, ConstFloat, ConstString:
		case ConstFunc:
			if k.Func == nil {
				return fmt.Errorf("%w: %s constant %d is an empty function", ErrMalformed, c.Name, i)
			}
			if err := k.Func.Verify(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s constant %d has kind %d", ErrMalformed, c.Name, i, k.Kind)
		}
	}

	for pc := 0; pc < len(c.Code); {
		op := Opcode(c.Code[pc])
		if !op.Known() {
			return fmt.Errorf("%w: %s unknown opcode 0x%02X at %d", ErrMalformed, c.Name, byte(op), pc)
		}
		n := c.InstructionLen(pc)
		if pc+n > len(c.Code) {
			return fmt.Errorf("%w: %s truncated %s at %d", ErrMalformed, c.Name, op, pc)
		}
		switch op {
		case OpConst, OpGetName, OpSetName, OpNewSlotName, OpGetRoot, OpSetRootSlot, OpClass:
			if idx := int(ReadU16(c.Code, pc+1)); idx >= len(c.Constants) {
				return fmt.Errorf("%w: %s %s constant %d out of range", ErrMalformed, c.Name, op, idx)
			}
		case OpClosure:
			idx := int(ReadU16(c.Code, pc+1))
			if idx >= len(c.Constants) || c.Constants[idx].Kind != ConstFunc {
				return fmt.Errorf("%w: %s closure prototype %d invalid", ErrMalformed, c.Name, idx)
			}
		case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseKeep, OpJumpIfTrueKeep, OpPushTrap:
			if t := pc + 3 + ReadI16(c.Code, pc+1); t < 0 || t > len(c.Code) {
				return fmt.Errorf("%w: %s %s target %d out of range", ErrMalformed, c.Name, op, t)
			}
		case OpForeach:
			if t := pc + 4 + ReadI16(c.Code, pc+2); t < 0 || t > len(c.Code) {
				return fmt.Errorf("%w: %s %s target %d out of range", ErrMalformed, c.Name, op, t)
			}
		case OpGetUpval, OpSetUpval:
			if idx := int(c.Code[pc+1]); idx >= len(c.Upvalues) {
				return fmt.Errorf("%w: %s upvalue %d out of range", ErrMalformed, c.Name, idx)
			}
		}
		pc += n
	}
	return nil
}
