package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpDup2 Opcode = 0x03 // Duplicate top two: a b -> a b a b
	OpSwap Opcode = 0x04 // Swap top two stack elements
	OpPopN Opcode = 0x05 // Pop n values: OpPopN <n:u8>

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpNull  Opcode = 0x11 // Push null
	OpTrue  Opcode = 0x12 // Push true
	OpFalse Opcode = 0x13 // Push false
	OpThis  Opcode = 0x14 // Push the frame's this
	OpBase  Opcode = 0x15 // Push the base class of the running method's owner

	// ========================================================================
	// Local variables and upvalues (0x20-0x2F)
	// ========================================================================

	OpGetLocal     Opcode = 0x20 // Push local: OpGetLocal <slot:u8>
	OpSetLocal     Opcode = 0x21 // Store TOS to local, keep TOS: OpSetLocal <slot:u8>
	OpGetUpval     Opcode = 0x22 // Push upvalue: OpGetUpval <index:u8>
	OpSetUpval     Opcode = 0x23 // Store TOS to upvalue, keep TOS: OpSetUpval <index:u8>
	OpCloseUpvals  Opcode = 0x24 // Close upvalues at or above slot: OpCloseUpvals <slot:u8>
	OpClosure      Opcode = 0x25 // Make closure: OpClosure <proto:u16> then <isLocal:u8 index:u8>*n
	OpGetName      Opcode = 0x26 // Resolve name in this, then root: OpGetName <name:u16>
	OpSetName      Opcode = 0x27 // Assign existing name, keep TOS: OpSetName <name:u16>
	OpNewSlotName  Opcode = 0x28 // Create slot in this, keep TOS: OpNewSlotName <name:u16>
	OpGetRoot      Opcode = 0x29 // Read root table slot: OpGetRoot <name:u16>
	OpSetRootSlot  Opcode = 0x2A // Create/assign root slot, keep TOS: OpSetRootSlot <name:u16>

	// ========================================================================
	// Indexing (0x30-0x3F)
	// ========================================================================

	OpGet       Opcode = 0x30 // obj key -> value (KeyError/IndexError when missing)
	OpGetOrNull Opcode = 0x31 // obj key -> value or null
	OpSet       Opcode = 0x32 // obj key value -> value (slot must exist)
	OpNewSlot   Opcode = 0x33 // obj key value -> value (creates slot)
	OpInitSlot  Opcode = 0x34 // obj key value -> obj (literal construction)
	OpDelete    Opcode = 0x35 // obj key -> removed value
	OpIn        Opcode = 0x36 // key obj -> bool

	// ========================================================================
	// Arithmetic and bitwise (0x40-0x4F)
	// ========================================================================

	OpAdd    Opcode = 0x40 // Pop two, push sum
	OpSub    Opcode = 0x41 // Pop two, push difference (a - b where b is TOS)
	OpMul    Opcode = 0x42 // Pop two, push product
	OpDiv    Opcode = 0x43 // Pop two, push quotient
	OpMod    Opcode = 0x44 // Pop two, push remainder
	OpNeg    Opcode = 0x45 // Negate top of stack
	OpBitAnd Opcode = 0x46
	OpBitOr  Opcode = 0x47
	OpBitXor Opcode = 0x48
	OpBitNot Opcode = 0x49
	OpShl    Opcode = 0x4A
	OpShr    Opcode = 0x4B
	OpUShr   Opcode = 0x4C

	// ========================================================================
	// Comparison and logic (0x50-0x5F)
	// ========================================================================

	OpEq         Opcode = 0x50 // Pop two, push equality
	OpNe         Opcode = 0x51 // Pop two, push inequality
	OpLt         Opcode = 0x52 // Pop two, push a < b
	OpLe         Opcode = 0x53 // Pop two, push a <= b
	OpGt         Opcode = 0x54 // Pop two, push a > b
	OpGe         Opcode = 0x55 // Pop two, push a >= b
	OpCmp        Opcode = 0x56 // Pop two, push -1/0/1 (<=>)
	OpNot        Opcode = 0x57 // Logical NOT
	OpInstanceOf Opcode = 0x58 // instance class -> bool
	OpTypeOf     Opcode = 0x59 // value -> type name

	// ========================================================================
	// Control flow (0x60-0x6F)
	// ========================================================================

	OpJump             Opcode = 0x60 // Unconditional jump: OpJump <offset:i16>
	OpJumpIfFalse      Opcode = 0x61 // Pop, jump if falsy: OpJumpIfFalse <offset:i16>
	OpJumpIfTrue       Opcode = 0x62 // Pop, jump if truthy: OpJumpIfTrue <offset:i16>
	OpJumpIfFalseKeep  Opcode = 0x63 // Jump keeping TOS if falsy, else pop (&&)
	OpJumpIfTrueKeep   Opcode = 0x64 // Jump keeping TOS if truthy, else pop (||)
	OpForeach          Opcode = 0x65 // Advance iterator: OpForeach <slot:u8> <exit:i16>
	OpPushTrap         Opcode = 0x66 // Install handler: OpPushTrap <catch:i16>
	OpPopTrap          Opcode = 0x67 // Remove innermost handler
	OpThrow            Opcode = 0x68 // Throw TOS

	// ========================================================================
	// Calls and generators (0x70-0x7F)
	// ========================================================================

	OpCall       Opcode = 0x70 // fn this args... -> result: OpCall <argc:u8>
	OpYield      Opcode = 0x71 // Suspend generator with TOS, push resume value
	OpResume     Opcode = 0x72 // gen -> next yielded value
	OpReturn     Opcode = 0x73 // Return TOS
	OpReturnNull Opcode = 0x74 // Return null

	// ========================================================================
	// Construction (0x80-0x8F)
	// ========================================================================

	OpNewTable    Opcode = 0x80 // Push empty table
	OpNewArray    Opcode = 0x81 // Pop n values into a new array: OpNewArray <n:u16>
	OpClass       Opcode = 0x82 // Make class: OpClass <name:u16> <hasBase:u8>
	OpClassMember Opcode = 0x83 // class key value -> class: OpClassMember <static:u8>
	OpClone       Opcode = 0x84 // Shallow copy of table/array/instance
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode (-1 = variable)
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, 0},
	OpPop:  {"POP", 1, 0, 0},
	OpDup:  {"DUP", 1, 2, 0},
	OpDup2: {"DUP2", 2, 4, 0},
	OpSwap: {"SWAP", 2, 2, 0},
	OpPopN: {"POPN", -1, 0, 1},

	// Constants
	OpConst: {"CONST", 0, 1, 2},
	OpNull:  {"NULL", 0, 1, 0},
	OpTrue:  {"TRUE", 0, 1, 0},
	OpFalse: {"FALSE", 0, 1, 0},
	OpThis:  {"THIS", 0, 1, 0},
	OpBase:  {"BASE", 0, 1, 0},

	// Variables
	OpGetLocal:    {"GET_LOCAL", 0, 1, 1},
	OpSetLocal:    {"SET_LOCAL", 1, 1, 1},
	OpGetUpval:    {"GET_UPVAL", 0, 1, 1},
	OpSetUpval:    {"SET_UPVAL", 1, 1, 1},
	OpCloseUpvals: {"CLOSE_UPVALS", 0, 0, 1},
	OpClosure:     {"CLOSURE", 0, 1, -1},
	OpGetName:     {"GET_NAME", 0, 1, 2},
	OpSetName:     {"SET_NAME", 1, 1, 2},
	OpNewSlotName: {"NEWSLOT_NAME", 1, 1, 2},
	OpGetRoot:     {"GET_ROOT", 0, 1, 2},
	OpSetRootSlot: {"SET_ROOT", 1, 1, 2},

	// Indexing
	OpGet:       {"GET", 2, 1, 0},
	OpGetOrNull: {"GET_OR_NULL", 2, 1, 0},
	OpSet:       {"SET", 3, 1, 0},
	OpNewSlot:   {"NEWSLOT", 3, 1, 0},
	OpInitSlot:  {"INIT_SLOT", 3, 1, 0},
	OpDelete:    {"DELETE", 2, 1, 0},
	OpIn:        {"IN", 2, 1, 0},

	// Arithmetic
	OpAdd:    {"ADD", 2, 1, 0},
	OpSub:    {"SUB", 2, 1, 0},
	OpMul:    {"MUL", 2, 1, 0},
	OpDiv:    {"DIV", 2, 1, 0},
	OpMod:    {"MOD", 2, 1, 0},
	OpNeg:    {"NEG", 1, 1, 0},
	OpBitAnd: {"BITAND", 2, 1, 0},
	OpBitOr:  {"BITOR", 2, 1, 0},
	OpBitXor: {"BITXOR", 2, 1, 0},
	OpBitNot: {"BITNOT", 1, 1, 0},
	OpShl:    {"SHL", 2, 1, 0},
	OpShr:    {"SHR", 2, 1, 0},
	OpUShr:   {"USHR", 2, 1, 0},

	// Comparison
	OpEq:         {"EQ", 2, 1, 0},
	OpNe:         {"NE", 2, 1, 0},
	OpLt:         {"LT", 2, 1, 0},
	OpLe:         {"LE", 2, 1, 0},
	OpGt:         {"GT", 2, 1, 0},
	OpGe:         {"GE", 2, 1, 0},
	OpCmp:        {"CMP", 2, 1, 0},
	OpNot:        {"NOT", 1, 1, 0},
	OpInstanceOf: {"INSTANCEOF", 2, 1, 0},
	OpTypeOf:     {"TYPEOF", 1, 1, 0},

	// Control flow
	OpJump:            {"JUMP", 0, 0, 2},
	OpJumpIfFalse:     {"JUMP_IF_FALSE", 1, 0, 2},
	OpJumpIfTrue:      {"JUMP_IF_TRUE", 1, 0, 2},
	OpJumpIfFalseKeep: {"JUMP_IF_FALSE_KEEP", 1, -1, 2},
	OpJumpIfTrueKeep:  {"JUMP_IF_TRUE_KEEP", 1, -1, 2},
	OpForeach:         {"FOREACH", 0, 0, 3},
	OpPushTrap:        {"PUSH_TRAP", 0, 0, 2},
	OpPopTrap:         {"POP_TRAP", 0, 0, 0},
	OpThrow:           {"THROW", 1, 0, 0},

	// Calls
	OpCall:       {"CALL", -1, 1, 1},
	OpYield:      {"YIELD", 1, 1, 0},
	OpResume:     {"RESUME", 1, 1, 0},
	OpReturn:     {"RETURN", 1, 0, 0},
	OpReturnNull: {"RETURN_NULL", 0, 0, 0},

	// Construction
	OpNewTable:    {"NEW_TABLE", 0, 1, 0},
	OpNewArray:    {"NEW_ARRAY", -1, 1, 2},
	OpClass:       {"CLASS", -1, 1, 3},
	OpClassMember: {"CLASS_MEMBER", 3, 1, 1},
	OpClone:       {"CLONE", 1, 1, 0},
}

// Info returns metadata for an opcode.
// Returns a zero-value OpcodeInfo if the opcode is unknown.
func (op Opcode) Info() OpcodeInfo {
	return opcodeInfoTable[op]
}

// Known reports whether the opcode is defined.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of the opcode.
func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// InstructionLen returns the total length of the instruction at code[offset],
// including its operands. Variable-length instructions (OpClosure) read their
// upvalue count from the chunk's constant pool, so the chunk is required.
func (c *Chunk) InstructionLen(offset int) int {
	op := Opcode(c.Code[offset])
	info := op.Info()
	if info.OperandLen >= 0 {
		return 1 + info.OperandLen
	}
	// OpClosure: u16 proto index followed by two bytes per upvalue
	if offset+2 >= len(c.Code) {
		return 3
	}
	idx := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	if idx >= len(c.Constants) || c.Constants[idx].Func == nil {
		return 3
	}
	return 3 + 2*len(c.Constants[idx].Func.Upvalues)
}
