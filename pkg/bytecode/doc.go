// Package bytecode defines the compiled form of Squirrel programs.
//
// The format is designed for:
//   - Compact representation (one opcode byte plus 0-3 operand bytes)
//   - Fast decoding (fixed-width operands, big-endian, signed relative jumps)
//   - Easy serialization (chunks can be cached in SQLite or shipped between processes)
//
// # Architecture Overview
//
//   - Opcodes: stack-based instructions grouped in ranges by category
//     (stack, constants, variables, indexing, arithmetic, comparison,
//     control flow, calls, construction).
//
//   - Chunk: one compiled function prototype holding code, a constant pool,
//     parameter names, upvalue descriptors and an optional line table.
//     Nested functions are ConstFunc entries in the enclosing chunk's pool.
//
//   - Serialization: the "SQBC" magic, a u16 format version and u16 flags,
//     followed by a canonical CBOR body. Deserialize verifies every
//     instruction before returning the chunk.
//
//   - Disassembler: readable listings used by the CLI's -d flag.
//
// # Calling Convention
//
// A call site pushes the callee, the receiver (this) and the arguments, then
// executes CALL argc. Inside the callee slot 0 holds this, slots 1..n hold
// parameters, and further slots hold block-scoped locals.
package bytecode
