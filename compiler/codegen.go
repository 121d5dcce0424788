package compiler

import (
	"fmt"
	"math"

	"github.com/chazu/squirrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// maxSlots bounds locals per function; slot operands are one byte.
const maxSlots = 256

// Hidden local names cannot collide with identifiers.
const (
	hiddenThis      = "(this)"
	hiddenContainer = "(container)"
	hiddenIterator  = "(iterator)"
	hiddenKey       = "(key)"
)

type localVar struct {
	name     string
	depth    int
	captured bool
}

type loopState struct {
	breaks    []int // jump placeholders patched to the loop exit
	continues []int // jump placeholders patched to the continue target
	slots     int   // locals live at loop entry
	traps     int   // active try blocks at loop entry
}

// funcState is the per-function compilation context.
type funcState struct {
	parent   *funcState
	chunk    *bytecode.Chunk
	locals   []localVar // index is the frame slot
	depth    int
	loops    []*loopState
	traps    int
	lastLine int
}

// Compiler compiles AST nodes to bytecode.
type Compiler struct {
	source string
	fs     *funcState
}

// NewCompiler creates a compiler for the named script.
func NewCompiler(source string) *Compiler {
	return &Compiler{source: source}
}

// Compile parses and compiles a script into its main chunk.
func Compile(input, source string) (*bytecode.Chunk, error) {
	prog, err := Parse(input, source)
	if err != nil {
		return nil, err
	}
	return NewCompiler(source).CompileProgram(prog)
}

// CompileProgram compiles a parsed script. The main chunk is variadic so
// host arguments are visible to the script as vargv.
func (c *Compiler) CompileProgram(prog *Program) (chunk *bytecode.Chunk, err error) {
	defer catchBailout(&err)

	main := &FuncDecl{
		SpanVal: prog.SpanVal,
		Name:    "main",
		Varargs: true,
		Body:    prog.Stmts,
	}
	return c.compileFunc(main), nil
}

// errorf aborts compilation with an error at the node's position.
func (c *Compiler) errorf(n Node, format string, args ...interface{}) {
	panic(bailout{&Error{Source: c.source, Pos: n.Span().Start, Msg: fmt.Sprintf(format, args...)}})
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) chunk() *bytecode.Chunk {
	return c.fs.chunk
}

// mark records the node's line for the next emitted instruction.
func (c *Compiler) mark(n Node) {
	pos := n.Span().Start
	if pos.Line == 0 || pos.Line == c.fs.lastLine {
		return
	}
	c.fs.lastLine = pos.Line
	c.chunk().AddSourceLocation(uint32(c.chunk().CurrentOffset()), uint32(pos.Line), uint16(min(pos.Column, math.MaxUint16)))
}

func (c *Compiler) emit(op bytecode.Opcode) {
	c.chunk().Emit(op)
}

func (c *Compiler) emitByte(op bytecode.Opcode, b byte) {
	c.chunk().EmitWithOperand(op, b)
}

func (c *Compiler) emitU16(op bytecode.Opcode, v uint16) {
	c.chunk().EmitU16(op, v)
}

func (c *Compiler) constant(n Node, k bytecode.Constant) uint16 {
	idx, err := c.chunk().AddConstant(k)
	if err != nil {
		c.errorf(n, "%v", err)
	}
	return idx
}

func (c *Compiler) stringConst(n Node, s string) uint16 {
	return c.constant(n, bytecode.Constant{Kind: bytecode.ConstString, Str: s})
}

func (c *Compiler) patch(n Node, placeholder int) {
	if err := c.chunk().PatchJump(placeholder); err != nil {
		c.errorf(n, "%v", err)
	}
}

func (c *Compiler) patchTo(n Node, placeholder, target int) {
	if err := c.chunk().PatchJumpTo(placeholder, target); err != nil {
		c.errorf(n, "%v", err)
	}
}

func (c *Compiler) emitLoop(n Node, start int) {
	if err := c.chunk().EmitLoop(start); err != nil {
		c.errorf(n, "%v", err)
	}
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

// declareLocal names the value on top of the stack.
func (c *Compiler) declareLocal(n Node, name string) int {
	fs := c.fs
	if len(fs.locals) >= maxSlots {
		c.errorf(n, "too many locals in function '%s'", fs.chunk.Name)
	}
	fs.locals = append(fs.locals, localVar{name: name, depth: fs.depth})
	return len(fs.locals) - 1
}

func (c *Compiler) beginScope() {
	c.fs.depth++
}

func (c *Compiler) endScope() {
	fs := c.fs
	fs.depth--
	keep := len(fs.locals)
	for keep > 0 && fs.locals[keep-1].depth > fs.depth {
		keep--
	}
	c.emitDiscard(keep)
	fs.locals = fs.locals[:keep]
}

// emitDiscard pops locals down to keep slots, closing captured ones first.
// The compile-time scope is left untouched.
func (c *Compiler) emitDiscard(keep int) {
	fs := c.fs
	n := len(fs.locals) - keep
	if n <= 0 {
		return
	}
	for _, l := range fs.locals[keep:] {
		if l.captured {
			c.emitByte(bytecode.OpCloseUpvals, byte(keep))
			break
		}
	}
	if n == 1 {
		c.emit(bytecode.OpPop)
	} else {
		c.emitByte(bytecode.OpPopN, byte(n))
	}
}

func (fs *funcState) resolveLocal(name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(n Node, fs *funcState, name string, isLocal bool, index int) int {
	for i, uv := range fs.chunk.Upvalues {
		if uv.IsLocal == isLocal && int(uv.Index) == index {
			return i
		}
	}
	if len(fs.chunk.Upvalues) >= 255 {
		c.errorf(n, "too many captured variables in function '%s'", fs.chunk.Name)
	}
	fs.chunk.Upvalues = append(fs.chunk.Upvalues, bytecode.UpvalueDesc{Name: name, IsLocal: isLocal, Index: uint8(index)})
	fs.chunk.Flags |= bytecode.ChunkFlagHasCaptures
	return len(fs.chunk.Upvalues) - 1
}

func (c *Compiler) resolveUpvalue(n Node, fs *funcState, name string) int {
	if fs.parent == nil {
		return -1
	}
	if slot := fs.parent.resolveLocal(name); slot >= 0 {
		fs.parent.locals[slot].captured = true
		return c.addUpvalue(n, fs, name, true, slot)
	}
	if idx := c.resolveUpvalue(n, fs.parent, name); idx >= 0 {
		return c.addUpvalue(n, fs, name, false, idx)
	}
	return -1
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// compileFunc compiles decl into a new chunk in its own function context.
func (c *Compiler) compileFunc(decl *FuncDecl) *bytecode.Chunk {
	name := decl.Name
	if name == "" {
		name = "(anonymous)"
	}
	chunk := bytecode.NewChunk(name)
	chunk.Source = c.source
	chunk.ParamCount = uint8(len(decl.Params))
	chunk.ParamNames = append([]string(nil), decl.Params...)
	if decl.Varargs {
		chunk.Flags |= bytecode.ChunkFlagVarargs
	}
	if decl.IsGenerator {
		chunk.Flags |= bytecode.ChunkFlagGenerator
	}

	fs := &funcState{parent: c.fs, chunk: chunk}
	c.fs = fs
	defer func() { c.fs = fs.parent }()

	c.declareLocal(decl, hiddenThis)
	for _, p := range decl.Params {
		c.declareLocal(decl, p)
	}
	if decl.Varargs {
		c.declareLocal(decl, "vargv")
	}

	c.mark(decl)
	for _, s := range decl.Body {
		c.compileStmt(s)
	}
	c.emit(bytecode.OpReturnNull)
	return chunk
}

// compileClosure compiles decl as a nested prototype and emits CLOSURE.
func (c *Compiler) compileClosure(decl *FuncDecl) {
	chunk := c.compileFunc(decl)
	idx := c.constant(decl, bytecode.Constant{Kind: bytecode.ConstFunc, Func: chunk})
	c.emitU16(bytecode.OpClosure, idx)
	for _, uv := range chunk.Upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		c.chunk().Code = append(c.chunk().Code, isLocal, uv.Index)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStmt(stmt Stmt) {
	c.mark(stmt)

	switch s := stmt.(type) {
	case *ExprStmt:
		c.compileExpr(s.X)
		c.emit(bytecode.OpPop)

	case *BlockStmt:
		c.beginScope()
		for _, inner := range s.Stmts {
			c.compileStmt(inner)
		}
		c.endScope()

	case *LocalStmt:
		for i, name := range s.Names {
			if s.Values[i] != nil {
				c.compileExpr(s.Values[i])
			} else {
				c.emit(bytecode.OpNull)
			}
			c.declareLocal(s, name)
		}

	case *LocalFuncStmt:
		// Declare first so the body can call itself through an upvalue.
		c.emit(bytecode.OpNull)
		slot := c.declareLocal(s, s.Func.Name)
		c.compileClosure(s.Func)
		c.emitByte(bytecode.OpSetLocal, byte(slot))
		c.emit(bytecode.OpPop)

	case *FunctionStmt:
		c.compileSlotDecl(s, s.Path, func() { c.compileClosure(s.Func) })

	case *ClassStmt:
		c.compileSlotDecl(s, s.Path, func() { c.compileClass(s.Class) })

	case *IfStmt:
		c.compileExpr(s.Cond)
		elseJump := c.chunk().EmitJump(bytecode.OpJumpIfFalse)
		c.compileScoped(s.Then)
		if s.Else == nil {
			c.patch(s, elseJump)
			return
		}
		endJump := c.chunk().EmitJump(bytecode.OpJump)
		c.patch(s, elseJump)
		c.compileScoped(s.Else)
		c.patch(s, endJump)

	case *WhileStmt:
		start := c.chunk().CurrentOffset()
		c.compileExpr(s.Cond)
		exit := c.chunk().EmitJump(bytecode.OpJumpIfFalse)
		loop := c.pushLoop()
		c.compileScoped(s.Body)
		c.emitLoop(s, start)
		c.patch(s, exit)
		c.popLoop(s, loop, start)

	case *DoWhileStmt:
		start := c.chunk().CurrentOffset()
		loop := c.pushLoop()
		c.compileScoped(s.Body)
		cond := c.chunk().CurrentOffset()
		c.compileExpr(s.Cond)
		hole := c.chunk().EmitJump(bytecode.OpJumpIfTrue)
		c.patchTo(s, hole, start)
		c.popLoop(s, loop, cond)

	case *ForStmt:
		c.compileFor(s)

	case *ForeachStmt:
		c.compileForeach(s)

	case *BreakStmt:
		loop := c.currentLoop(s, "break")
		c.emitLoopExit(loop)
		loop.breaks = append(loop.breaks, c.chunk().EmitJump(bytecode.OpJump))

	case *ContinueStmt:
		loop := c.currentLoop(s, "continue")
		c.emitLoopExit(loop)
		loop.continues = append(loop.continues, c.chunk().EmitJump(bytecode.OpJump))

	case *ReturnStmt:
		if s.Value == nil {
			c.emit(bytecode.OpReturnNull)
			return
		}
		c.compileExpr(s.Value)
		c.emit(bytecode.OpReturn)

	case *ThrowStmt:
		c.compileExpr(s.Value)
		c.mark(s)
		c.emit(bytecode.OpThrow)

	case *TryStmt:
		trap := c.chunk().EmitJump(bytecode.OpPushTrap)
		c.fs.traps++
		c.compileScoped(s.Body)
		c.fs.traps--
		c.emit(bytecode.OpPopTrap)
		end := c.chunk().EmitJump(bytecode.OpJump)

		// The VM unwinds to the trap's stack height and pushes the error.
		c.patch(s, trap)
		c.beginScope()
		c.declareLocal(s, s.CatchVar)
		c.compileStmt(s.Catch)
		c.endScope()
		c.patch(s, end)

	default:
		c.errorf(stmt, "unsupported statement %T", stmt)
	}
}

// compileScoped compiles a nested statement so its locals end with it.
func (c *Compiler) compileScoped(stmt Stmt) {
	c.beginScope()
	c.compileStmt(stmt)
	c.endScope()
}

// compileSlotDecl creates a new slot named by path: in this for a single
// name, otherwise in the table reached through the leading names.
func (c *Compiler) compileSlotDecl(n Node, path []string, value func()) {
	last := path[len(path)-1]
	if len(path) == 1 {
		value()
		c.emitU16(bytecode.OpNewSlotName, c.stringConst(n, last))
		c.emit(bytecode.OpPop)
		return
	}
	c.compileExpr(&Identifier{SpanVal: n.Span(), Name: path[0]})
	for _, name := range path[1 : len(path)-1] {
		c.emitU16(bytecode.OpConst, c.stringConst(n, name))
		c.emit(bytecode.OpGet)
	}
	c.emitU16(bytecode.OpConst, c.stringConst(n, last))
	value()
	c.emit(bytecode.OpNewSlot)
	c.emit(bytecode.OpPop)
}

func (c *Compiler) pushLoop() *loopState {
	loop := &loopState{slots: len(c.fs.locals), traps: c.fs.traps}
	c.fs.loops = append(c.fs.loops, loop)
	return loop
}

// popLoop patches breaks to the current offset and continues to target.
func (c *Compiler) popLoop(n Node, loop *loopState, continueTarget int) {
	for _, hole := range loop.breaks {
		c.patch(n, hole)
	}
	for _, hole := range loop.continues {
		c.patchTo(n, hole, continueTarget)
	}
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) currentLoop(n Node, what string) *loopState {
	if len(c.fs.loops) == 0 {
		c.errorf(n, "'%s' has to be in a loop block", what)
	}
	return c.fs.loops[len(c.fs.loops)-1]
}

// emitLoopExit drops locals and try handlers opened inside the loop body.
func (c *Compiler) emitLoopExit(loop *loopState) {
	c.emitDiscard(loop.slots)
	for i := loop.traps; i < c.fs.traps; i++ {
		c.emit(bytecode.OpPopTrap)
	}
}

func (c *Compiler) compileFor(s *ForStmt) {
	c.beginScope()
	if s.Init != nil {
		c.compileStmt(s.Init)
	}

	start := c.chunk().CurrentOffset()
	exit := -1
	if s.Cond != nil {
		c.compileExpr(s.Cond)
		exit = c.chunk().EmitJump(bytecode.OpJumpIfFalse)
	}

	loop := c.pushLoop()
	c.compileScoped(s.Body)

	post := c.chunk().CurrentOffset()
	if s.Post != nil {
		c.compileExpr(s.Post)
		c.emit(bytecode.OpPop)
	}
	c.emitLoop(s, start)
	if exit >= 0 {
		c.patch(s, exit)
	}
	c.popLoop(s, loop, post)
	c.endScope()
}

// compileForeach reserves four consecutive slots: the container, the
// iterator state, the key and the value. FOREACH advances the iterator and
// fills key and value, or jumps to the exit when exhausted.
func (c *Compiler) compileForeach(s *ForeachStmt) {
	c.beginScope()
	c.compileExpr(s.Iterable)
	base := c.declareLocal(s, hiddenContainer)
	c.emit(bytecode.OpNull)
	c.declareLocal(s, hiddenIterator)
	key := s.Key
	if key == "" {
		key = hiddenKey
	}
	c.emit(bytecode.OpNull)
	c.declareLocal(s, key)
	c.emit(bytecode.OpNull)
	c.declareLocal(s, s.Value)

	start := c.chunk().CurrentOffset()
	c.mark(s)
	c.chunk().EmitWithOperand(bytecode.OpForeach, byte(base), 0xFF, 0xFF)
	exit := c.chunk().CurrentOffset() - 2

	loop := c.pushLoop()
	c.compileScoped(s.Body)
	c.emitLoop(s, start)
	c.patch(s, exit)
	c.popLoop(s, loop, start)
	c.endScope()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOps = map[TokenType]bytecode.Opcode{
	TokenPlus:       bytecode.OpAdd,
	TokenMinus:      bytecode.OpSub,
	TokenStar:       bytecode.OpMul,
	TokenSlash:      bytecode.OpDiv,
	TokenPercent:    bytecode.OpMod,
	TokenAmp:        bytecode.OpBitAnd,
	TokenPipe:       bytecode.OpBitOr,
	TokenCaret:      bytecode.OpBitXor,
	TokenShl:        bytecode.OpShl,
	TokenShr:        bytecode.OpShr,
	TokenUShr:       bytecode.OpUShr,
	TokenEq:         bytecode.OpEq,
	TokenNe:         bytecode.OpNe,
	TokenLt:         bytecode.OpLt,
	TokenLe:         bytecode.OpLe,
	TokenGt:         bytecode.OpGt,
	TokenGe:         bytecode.OpGe,
	TokenCmp:        bytecode.OpCmp,
	TokenInstanceof: bytecode.OpInstanceOf,
}

var compoundOps = map[TokenType]bytecode.Opcode{
	TokenPlusEq:    bytecode.OpAdd,
	TokenMinusEq:   bytecode.OpSub,
	TokenStarEq:    bytecode.OpMul,
	TokenSlashEq:   bytecode.OpDiv,
	TokenPercentEq: bytecode.OpMod,
}

var unaryOps = map[TokenType]bytecode.Opcode{
	TokenMinus:  bytecode.OpNeg,
	TokenBang:   bytecode.OpNot,
	TokenTilde:  bytecode.OpBitNot,
	TokenTypeof: bytecode.OpTypeOf,
	TokenClone:  bytecode.OpClone,
	TokenResume: bytecode.OpResume,
}

// compileExpr leaves exactly one value on the stack.
func (c *Compiler) compileExpr(expr Expr) {
	switch e := expr.(type) {
	case *IntLiteral:
		c.emitU16(bytecode.OpConst, c.constant(e, bytecode.Constant{Kind: bytecode.ConstInt, Int: e.Value}))

	case *FloatLiteral:
		c.emitU16(bytecode.OpConst, c.constant(e, bytecode.Constant{Kind: bytecode.ConstFloat, Float: e.Value}))

	case *StringLiteral:
		c.emitU16(bytecode.OpConst, c.stringConst(e, e.Value))

	case *BoolLiteral:
		if e.Value {
			c.emit(bytecode.OpTrue)
		} else {
			c.emit(bytecode.OpFalse)
		}

	case *NullLiteral:
		c.emit(bytecode.OpNull)

	case *ThisExpr:
		c.emit(bytecode.OpThis)

	case *BaseExpr:
		c.emit(bytecode.OpBase)

	case *Identifier:
		c.compileLoad(e)

	case *RootExpr:
		c.mark(e)
		c.emitU16(bytecode.OpGetRoot, c.stringConst(e, e.Name))

	case *IndexExpr:
		c.compileExpr(e.Object)
		c.compileExpr(e.Key)
		c.mark(e)
		if e.NullSafe {
			c.emit(bytecode.OpGetOrNull)
		} else {
			c.emit(bytecode.OpGet)
		}

	case *CallExpr:
		c.compileCall(e)

	case *UnaryExpr:
		if e.Op == TokenDelete {
			idx := e.X.(*IndexExpr)
			c.compileExpr(idx.Object)
			c.compileExpr(idx.Key)
			c.mark(e)
			c.emit(bytecode.OpDelete)
			return
		}
		op, ok := unaryOps[e.Op]
		if !ok {
			c.errorf(e, "unsupported operator '%s'", e.Op)
		}
		c.compileExpr(e.X)
		c.mark(e)
		c.emit(op)

	case *BinaryExpr:
		if e.Op == TokenIn {
			c.compileExpr(e.Left)
			c.compileExpr(e.Right)
			c.mark(e)
			c.emit(bytecode.OpIn)
			return
		}
		op, ok := binaryOps[e.Op]
		if !ok {
			c.errorf(e, "unsupported operator '%s'", e.Op)
		}
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.mark(e)
		c.emit(op)

	case *LogicalExpr:
		c.compileExpr(e.Left)
		op := bytecode.OpJumpIfFalseKeep
		if e.Op == TokenOrOr {
			op = bytecode.OpJumpIfTrueKeep
		}
		end := c.chunk().EmitJump(op)
		c.compileExpr(e.Right)
		c.patch(e, end)

	case *TernaryExpr:
		c.compileExpr(e.Cond)
		elseJump := c.chunk().EmitJump(bytecode.OpJumpIfFalse)
		c.compileExpr(e.Then)
		endJump := c.chunk().EmitJump(bytecode.OpJump)
		c.patch(e, elseJump)
		c.compileExpr(e.Else)
		c.patch(e, endJump)

	case *AssignExpr:
		c.compileAssign(e)

	case *IncDecExpr:
		c.compileIncDec(e)

	case *YieldExpr:
		if e.Value != nil {
			c.compileExpr(e.Value)
		} else {
			c.emit(bytecode.OpNull)
		}
		c.mark(e)
		c.emit(bytecode.OpYield)

	case *FuncLiteral:
		c.compileClosure(e.Func)

	case *TableLiteral:
		c.emit(bytecode.OpNewTable)
		for _, entry := range e.Entries {
			c.compileExpr(entry.Key)
			c.compileExpr(entry.Value)
			c.emit(bytecode.OpInitSlot)
		}

	case *ArrayLiteral:
		if len(e.Elements) > math.MaxUint16 {
			c.errorf(e, "array literal too long")
		}
		for _, el := range e.Elements {
			c.compileExpr(el)
		}
		c.emitU16(bytecode.OpNewArray, uint16(len(e.Elements)))

	case *ClassLiteral:
		c.compileClass(e.Class)

	default:
		c.errorf(expr, "unsupported expression %T", expr)
	}
}

// compileLoad resolves a bare name: locals, upvalues, then this and root at runtime.
func (c *Compiler) compileLoad(id *Identifier) {
	if slot := c.fs.resolveLocal(id.Name); slot >= 0 {
		c.emitByte(bytecode.OpGetLocal, byte(slot))
		return
	}
	if idx := c.resolveUpvalue(id, c.fs, id.Name); idx >= 0 {
		c.emitByte(bytecode.OpGetUpval, byte(idx))
		return
	}
	c.mark(id)
	c.emitU16(bytecode.OpGetName, c.stringConst(id, id.Name))
}

// compileStore assigns TOS to a bare name, keeping it on the stack.
func (c *Compiler) compileStore(id *Identifier, newSlot bool) {
	if slot := c.fs.resolveLocal(id.Name); slot >= 0 {
		c.emitByte(bytecode.OpSetLocal, byte(slot))
		return
	}
	if idx := c.resolveUpvalue(id, c.fs, id.Name); idx >= 0 {
		c.emitByte(bytecode.OpSetUpval, byte(idx))
		return
	}
	c.mark(id)
	if newSlot {
		c.emitU16(bytecode.OpNewSlotName, c.stringConst(id, id.Name))
	} else {
		c.emitU16(bytecode.OpSetName, c.stringConst(id, id.Name))
	}
}

func (c *Compiler) compileAssign(e *AssignExpr) {
	arith, compound := compoundOps[e.Op]
	newSlot := e.Op == TokenNewSlot

	switch t := e.Target.(type) {
	case *Identifier:
		if compound {
			c.compileLoad(t)
			c.compileExpr(e.Value)
			c.mark(e)
			c.emit(arith)
		} else {
			c.compileExpr(e.Value)
		}
		c.compileStore(t, newSlot)

	case *RootExpr:
		if compound {
			c.emitU16(bytecode.OpGetRoot, c.stringConst(t, t.Name))
			c.compileExpr(e.Value)
			c.mark(e)
			c.emit(arith)
		} else {
			c.compileExpr(e.Value)
		}
		c.emitU16(bytecode.OpSetRootSlot, c.stringConst(t, t.Name))

	case *IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Key)
		if compound {
			c.emit(bytecode.OpDup2)
			c.mark(e)
			c.emit(bytecode.OpGet)
			c.compileExpr(e.Value)
			c.emit(arith)
		} else {
			c.compileExpr(e.Value)
		}
		c.mark(e)
		if newSlot {
			c.emit(bytecode.OpNewSlot)
		} else {
			c.emit(bytecode.OpSet)
		}

	default:
		c.errorf(e, "can't assign expression")
	}
}

// compileIncDec compiles ++x as x += 1 and x++ as (x += 1) - 1.
func (c *Compiler) compileIncDec(e *IncDecExpr) {
	one := &IntLiteral{SpanVal: e.SpanVal, Value: 1}
	op := TokenPlusEq
	undo := bytecode.OpSub
	if e.Op == TokenDec {
		op = TokenMinusEq
		undo = bytecode.OpAdd
	}
	c.compileAssign(&AssignExpr{SpanVal: e.SpanVal, Op: op, Target: e.Target, Value: one})
	if !e.Prefix {
		c.compileExpr(one)
		c.emit(undo)
	}
}

// compileCall pushes callee, receiver and arguments, then CALL.
// Method calls bind the receiver; plain calls pass the caller's this.
func (c *Compiler) compileCall(e *CallExpr) {
	switch fn := e.Fn.(type) {
	case *IndexExpr:
		if _, isBase := fn.Object.(*BaseExpr); isBase {
			c.emit(bytecode.OpBase)
			c.compileExpr(fn.Key)
			c.mark(fn)
			c.emit(bytecode.OpGet)
			c.emit(bytecode.OpThis)
			break
		}
		c.compileExpr(fn.Object)
		c.emit(bytecode.OpDup)
		c.compileExpr(fn.Key)
		c.mark(fn)
		if fn.NullSafe {
			c.emit(bytecode.OpGetOrNull)
		} else {
			c.emit(bytecode.OpGet)
		}
		c.emit(bytecode.OpSwap)
	default:
		c.compileExpr(e.Fn)
		c.emit(bytecode.OpThis)
	}

	for _, arg := range e.Args {
		c.compileExpr(arg)
	}
	c.mark(e)
	c.emitByte(bytecode.OpCall, byte(len(e.Args)))
}

// compileClass leaves the new class on the stack.
func (c *Compiler) compileClass(cls *ClassDecl) {
	hasBase := byte(0)
	if cls.Base != nil {
		c.compileExpr(cls.Base)
		hasBase = 1
	}
	nameIdx := c.stringConst(cls, cls.Name)
	c.mark(cls)
	c.chunk().EmitWithOperand(bytecode.OpClass, byte(nameIdx>>8), byte(nameIdx), hasBase)

	for _, m := range cls.Members {
		c.compileExpr(m.Key)
		c.compileExpr(m.Value)
		static := byte(0)
		if m.Static {
			static = 1
		}
		c.emitByte(bytecode.OpClassMember, static)
	}
}
