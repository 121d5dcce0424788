package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk and
// every nested prototype.
func (c *Chunk) Disassemble() string {
	var sb strings.Builder
	c.disassembleInto(&sb, c.Name)
	return sb.String()
}

func (c *Chunk) disassembleInto(sb *strings.Builder, path string) {
	// Header
	fmt.Fprintf(sb, "; === %s ===\n", path)
	fmt.Fprintf(sb, "; Squirrel Bytecode v%d\n", c.Version)
	fmt.Fprintf(sb, "; Flags: 0x%04X", c.Flags)
	if c.Flags&ChunkFlagDebug != 0 {
		sb.WriteString(" [DEBUG]")
	}
	if c.Flags&ChunkFlagVarargs != 0 {
		sb.WriteString(" [VARARGS]")
	}
	if c.Flags&ChunkFlagGenerator != 0 {
		sb.WriteString(" [GENERATOR]")
	}
	if c.Flags&ChunkFlagHasCaptures != 0 {
		sb.WriteString(" [CAPTURES]")
	}
	sb.WriteString("\n")

	// Parameters
	if c.ParamCount > 0 {
		fmt.Fprintf(sb, "; Parameters (%d): %s\n", c.ParamCount, strings.Join(c.ParamNames, ", "))
	}

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range c.Constants {
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, formatConstant(k))
		}
	}

	// Upvalues
	if len(c.Upvalues) > 0 {
		sb.WriteString("; Upvalues:\n")
		for i, uv := range c.Upvalues {
			src := "upval"
			if uv.IsLocal {
				src = "local"
			}
			fmt.Fprintf(sb, ";   [%3d] %s (%s %d)\n", i, uv.Name, src, uv.Index)
		}
	}
	sb.WriteString("\n")

	// Code section
	sb.WriteString("; Code:\n")
	for offset := 0; offset < len(c.Code); {
		line, instrLen := c.disassembleInstruction(offset)
		if srcLine, _ := c.GetSourceLocation(uint32(offset)); srcLine > 0 && c.Flags&ChunkFlagDebug != 0 {
			fmt.Fprintf(sb, "%04X  %-34s ; line %d\n", offset, line, srcLine)
		} else {
			fmt.Fprintf(sb, "%04X  %s\n", offset, line)
		}
		if instrLen <= 0 {
			break
		}
		offset += instrLen
	}

	for _, k := range c.Constants {
		if k.Kind == ConstFunc && k.Func != nil {
			sb.WriteString("\n")
			k.Func.disassembleInto(sb, path+"/"+k.Func.Name)
		}
	}
}

func formatConstant(k Constant) string {
	switch k.Kind {
	case ConstInt:
		return fmt.Sprintf("int %d", k.Int)
	case ConstFloat:
		return fmt.Sprintf("float %g", k.Float)
	case ConstString:
		// Truncate long strings for readability
		display := k.Str
		if len(display) > 40 {
			display = display[:37] + "..."
		}
		return fmt.Sprintf("string %q", display)
	case ConstFunc:
		if k.Func == nil {
			return "func <nil>"
		}
		return fmt.Sprintf("func %s/%d", k.Func.Name, k.Func.ParamCount)
	default:
		return k.Kind.String()
	}
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	op := Opcode(c.Code[offset])
	if !op.Known() {
		return op.String(), 1
	}
	info := op.Info()
	n := c.InstructionLen(offset)
	if offset+n > len(c.Code) {
		return fmt.Sprintf("%s <truncated>", info.Name), len(c.Code) - offset
	}

	switch op {
	case OpConst, OpGetName, OpSetName, OpNewSlotName, OpGetRoot, OpSetRootSlot:
		idx := ReadU16(c.Code, offset+1)
		return fmt.Sprintf("%s %d ; %s", info.Name, idx, c.constantComment(idx)), n

	case OpGetLocal, OpSetLocal, OpCloseUpvals, OpPopN, OpCall:
		return fmt.Sprintf("%s %d", info.Name, c.Code[offset+1]), n

	case OpGetUpval, OpSetUpval:
		idx := c.Code[offset+1]
		if int(idx) < len(c.Upvalues) {
			return fmt.Sprintf("%s %d ; %s", info.Name, idx, c.Upvalues[idx].Name), n
		}
		return fmt.Sprintf("%s %d", info.Name, idx), n

	case OpClosure:
		idx := ReadU16(c.Code, offset+1)
		var caps []string
		for i := offset + 3; i+1 < offset+n; i += 2 {
			kind := "upval"
			if c.Code[i] != 0 {
				kind = "local"
			}
			caps = append(caps, fmt.Sprintf("%s %d", kind, c.Code[i+1]))
		}
		return fmt.Sprintf("%s %d ; %s [%s]", info.Name, idx, c.constantComment(idx), strings.Join(caps, ", ")), n

	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseKeep, OpJumpIfTrueKeep, OpPushTrap:
		delta := ReadI16(c.Code, offset+1)
		return fmt.Sprintf("%s %+d (-> %04X)", info.Name, delta, offset+3+delta), n

	case OpForeach:
		slot := c.Code[offset+1]
		delta := ReadI16(c.Code, offset+2)
		return fmt.Sprintf("%s %d %+d (-> %04X)", info.Name, slot, delta, offset+4+delta), n

	case OpNewArray:
		return fmt.Sprintf("%s %d", info.Name, ReadU16(c.Code, offset+1)), n

	case OpClass:
		idx := ReadU16(c.Code, offset+1)
		return fmt.Sprintf("%s %d ; %s base=%d", info.Name, idx, c.constantComment(idx), c.Code[offset+3]), n

	case OpClassMember:
		if c.Code[offset+1] != 0 {
			return info.Name + " static", n
		}
		return info.Name, n

	default:
		return info.Name, n
	}
}

func (c *Chunk) constantComment(idx uint16) string {
	if int(idx) >= len(c.Constants) {
		return "<bad constant>"
	}
	return formatConstant(c.Constants[idx])
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (c *Chunk) DisassembleInstruction(offset int) string {
	line, _ := c.disassembleInstruction(offset)
	return line
}

// DisassembleToLines returns the disassembly of this chunk's code as a slice of lines.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	for offset := 0; offset < len(c.Code); {
		line, instrLen := c.disassembleInstruction(offset)
		lines = append(lines, fmt.Sprintf("%04X  %s", offset, line))
		if instrLen <= 0 {
			break
		}
		offset += instrLen
	}
	return lines
}

// InstructionCount returns the number of instructions in the chunk.
// Note: This iterates through all code, so it's O(n).
func (c *Chunk) InstructionCount() int {
	count := 0
	for offset := 0; offset < len(c.Code); offset += c.InstructionLen(offset) {
		count++
	}
	return count
}
